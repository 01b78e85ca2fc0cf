package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSequencer(t *testing.T) {
	var s Sequencer

	a := s.Issue()
	assert.True(t, s.IsCurrent(a))

	b := s.Issue()
	assert.False(t, s.IsCurrent(a))
	assert.True(t, s.IsCurrent(b))
	assert.Equal(t, b, s.Latest())

	s.Invalidate()
	assert.False(t, s.IsCurrent(b))
}

func TestSequencerConcurrentIssue(t *testing.T) {
	var s Sequencer
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Issue()
		}()
	}
	wg.Wait()

	assert.Equal(t, Token(50), s.Latest())
}

func TestDebouncerCollapsesBurst(t *testing.T) {
	var calls atomic.Int32
	var firedAt atomic.Int64

	d := NewDebouncer(50*time.Millisecond, func() {
		calls.Add(1)
		firedAt.Store(time.Now().UnixNano())
	})
	defer d.Stop()

	var last time.Time
	for i := 0; i < 20; i++ {
		last = time.Now()
		d.Trigger()
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.GreaterOrEqual(t, time.Duration(firedAt.Load()-last.UnixNano()), 50*time.Millisecond)
}

func TestDebouncerStopAndCancel(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	d.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	d.Stop()
	d.Trigger()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
