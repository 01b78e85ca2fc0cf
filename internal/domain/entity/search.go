package entity

import "fmt"

// SearchKind names an entity collection that supports name search
type SearchKind string

const (
	// SearchClients searches clients by name
	SearchClients SearchKind = "clients"
	// SearchCities searches cities by name
	SearchCities SearchKind = "cities"
)

// ParseSearchKind validates a search kind coming from the outside
func ParseSearchKind(s string) (SearchKind, error) {
	switch SearchKind(s) {
	case SearchClients, SearchCities:
		return SearchKind(s), nil
	}
	return "", fmt.Errorf("unsupported search kind: %q", s)
}

// SearchResult is one autocomplete match
type SearchResult struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// NavKey is a keyboard key handled by the autocomplete list
type NavKey string

const (
	KeyUp     NavKey = "up"
	KeyDown   NavKey = "down"
	KeyEnter  NavKey = "enter"
	KeyEscape NavKey = "escape"
)

// NavState is the visible state of an autocomplete list.
// SelectedIndex is -1 when nothing is highlighted.
type NavState struct {
	Query         string         `json:"query"`
	Results       []SearchResult `json:"results"`
	SelectedIndex int            `json:"selectedIndex"`
	Open          bool           `json:"open"`
	Chosen        *SearchResult  `json:"chosen,omitempty"`
}

// NewNavState opens a list over fresh results with nothing highlighted
func NewNavState(query string, results []SearchResult) NavState {
	if results == nil {
		results = []SearchResult{}
	}
	return NavState{
		Query:         query,
		Results:       results,
		SelectedIndex: -1,
		Open:          len(results) > 0,
	}
}

// ReduceNav applies a key to the list state. It never mutates s.
func ReduceNav(s NavState, key NavKey) NavState {
	next := s
	n := len(s.Results)

	switch key {
	case KeyDown:
		if n == 0 {
			return next
		}
		next.Open = true
		if s.SelectedIndex < n-1 {
			next.SelectedIndex = s.SelectedIndex + 1
		}
	case KeyUp:
		if n == 0 {
			return next
		}
		next.Open = true
		if s.SelectedIndex > 0 {
			next.SelectedIndex = s.SelectedIndex - 1
		} else {
			next.SelectedIndex = 0
		}
	case KeyEnter:
		if !s.Open || s.SelectedIndex < 0 || s.SelectedIndex >= n {
			return next
		}
		chosen := s.Results[s.SelectedIndex]
		next.Chosen = &chosen
		next.Open = false
	case KeyEscape:
		next.Open = false
		next.SelectedIndex = -1
	}

	return next
}
