package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduceNav(t *testing.T) {
	results := []SearchResult{
		{ID: 1, Name: "Kinshasa"},
		{ID: 2, Name: "Lubumbashi"},
		{ID: 3, Name: "Kisangani"},
	}

	t.Run("Down walks the list and stops at the end", func(t *testing.T) {
		s := NewNavState("ki", results)
		assert.Equal(t, -1, s.SelectedIndex)

		s = ReduceNav(s, KeyDown)
		assert.Equal(t, 0, s.SelectedIndex)
		s = ReduceNav(s, KeyDown)
		s = ReduceNav(s, KeyDown)
		s = ReduceNav(s, KeyDown)
		assert.Equal(t, 2, s.SelectedIndex)
	})

	t.Run("Up stops at the first entry", func(t *testing.T) {
		s := NewNavState("ki", results)
		s = ReduceNav(s, KeyDown)
		s = ReduceNav(s, KeyDown)
		s = ReduceNav(s, KeyUp)
		s = ReduceNav(s, KeyUp)
		assert.Equal(t, 0, s.SelectedIndex)
	})

	t.Run("Enter chooses the highlighted entry", func(t *testing.T) {
		s := NewNavState("ki", results)
		s = ReduceNav(s, KeyDown)
		s = ReduceNav(s, KeyDown)
		s = ReduceNav(s, KeyEnter)

		assert.False(t, s.Open)
		if assert.NotNil(t, s.Chosen) {
			assert.Equal(t, int64(2), s.Chosen.ID)
		}
	})

	t.Run("Enter without highlight does nothing", func(t *testing.T) {
		s := NewNavState("ki", results)
		next := ReduceNav(s, KeyEnter)
		assert.Equal(t, s, next)
	})

	t.Run("Escape closes and clears highlight", func(t *testing.T) {
		s := NewNavState("ki", results)
		s = ReduceNav(s, KeyDown)
		s = ReduceNav(s, KeyEscape)
		assert.False(t, s.Open)
		assert.Equal(t, -1, s.SelectedIndex)
	})

	t.Run("Keys on an empty list are ignored", func(t *testing.T) {
		s := NewNavState("zz", nil)
		assert.False(t, s.Open)
		assert.Equal(t, s, ReduceNav(s, KeyDown))
		assert.Equal(t, s, ReduceNav(s, KeyUp))
	})

	t.Run("Reducer does not mutate its input", func(t *testing.T) {
		s := NewNavState("ki", results)
		_ = ReduceNav(s, KeyDown)
		assert.Equal(t, -1, s.SelectedIndex)
	})
}

func TestQuoteInputComplete(t *testing.T) {
	assert.True(t, QuoteInput{OriginID: 1, DestinationID: 2, WeightKg: 10}.Complete())
	assert.False(t, QuoteInput{OriginID: 1, DestinationID: 2, WeightKg: 0}.Complete())
	assert.False(t, QuoteInput{OriginID: 1, DestinationID: 2, WeightKg: -3}.Complete())
	assert.False(t, QuoteInput{OriginID: 1, WeightKg: 10}.Complete())
}

func TestParseSearchKind(t *testing.T) {
	kind, err := ParseSearchKind("cities")
	assert.NoError(t, err)
	assert.Equal(t, SearchCities, kind)

	_, err = ParseSearchKind("invoices")
	assert.Error(t, err)
}
