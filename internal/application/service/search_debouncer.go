package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/damon-houk/waybill-pricing/internal/domain/service"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/concurrency"
	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
)

// SearchDebouncer turns raw keystrokes into debounced, de-duplicated searches
// of one entity kind. Results of superseded searches are never shown.
type SearchDebouncer struct {
	kind   entity.SearchKind
	api    service.SearchAPI
	logger logger.Logger

	seq       concurrency.Sequencer
	debouncer *concurrency.Debouncer

	ctx      context.Context
	stop     context.CancelFunc
	inflight sync.WaitGroup
	notifyMu sync.Mutex

	mu            sync.Mutex
	pending       string
	lastSearched  string
	hasSearched   bool
	state         entity.NavState
	cancelRequest context.CancelFunc
	subs          map[int]func(entity.NavState)
	nextSubID     int
	closed        bool
}

// NewSearchDebouncer creates a debouncer searching kind through api
func NewSearchDebouncer(kind entity.SearchKind, api service.SearchAPI, wait time.Duration, log logger.Logger) *SearchDebouncer {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if wait <= 0 {
		wait = 300 * time.Millisecond
	}

	ctx, stop := context.WithCancel(context.Background())

	s := &SearchDebouncer{
		kind:   kind,
		api:    api,
		logger: log.WithFields(map[string]interface{}{"component": "search_debouncer", "kind": string(kind)}),
		ctx:    ctx,
		stop:   stop,
		state:  entity.NewNavState("", nil),
		subs:   make(map[int]func(entity.NavState)),
	}
	s.debouncer = concurrency.NewDebouncer(wait, s.search)
	return s
}

// Kind returns the searched entity kind
func (s *SearchDebouncer) Kind() entity.SearchKind {
	return s.kind
}

// Input feeds the current text of the search box
func (s *SearchDebouncer) Input(text string) {
	q := strings.TrimSpace(text)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if q == "" {
		s.pending = ""
		s.lastSearched = ""
		s.hasSearched = false
		if s.cancelRequest != nil {
			s.cancelRequest()
			s.cancelRequest = nil
		}
		token := s.seq.Issue()
		s.mu.Unlock()

		s.debouncer.Cancel()
		s.publish(token, "", nil)
		return
	}

	s.pending = q
	s.mu.Unlock()

	s.debouncer.Trigger()
}

// State returns the visible list state
func (s *SearchDebouncer) State() entity.NavState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Navigate applies a keyboard key to the list and returns the new state
func (s *SearchDebouncer) Navigate(key entity.NavKey) entity.NavState {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.state = entity.ReduceNav(s.state, key)
	state := s.state
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
	return state
}

// Subscribe registers fn for every state change
func (s *SearchDebouncer) Subscribe(fn func(entity.NavState)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close stops the debouncer and waits for an in-flight search
func (s *SearchDebouncer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.debouncer.Stop()
	s.seq.Invalidate()
	s.stop()
	s.inflight.Wait()
}

// search runs after the input has been quiet for the debounce period
func (s *SearchDebouncer) search() {
	s.mu.Lock()
	q := s.pending
	if s.closed || q == "" || (s.hasSearched && q == s.lastSearched) {
		s.mu.Unlock()
		return
	}
	s.lastSearched = q
	s.hasSearched = true

	if s.cancelRequest != nil {
		s.cancelRequest()
	}
	token := s.seq.Issue()
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelRequest = cancel
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	defer cancel()

	results, err := s.api.Search(ctx, s.kind, q)
	if err != nil {
		if !s.seq.IsCurrent(token) {
			return
		}
		s.logger.Warn("Search failed, showing no matches", map[string]interface{}{
			"query": q,
			"error": err.Error(),
		})
		results = nil
	}

	s.publish(token, q, results)
}

func (s *SearchDebouncer) publish(token concurrency.Token, q string, results []entity.SearchResult) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed || !s.seq.IsCurrent(token) {
		s.mu.Unlock()
		return
	}
	s.state = entity.NewNavState(q, results)
	state := s.state
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// subscribers must be called with mu held
func (s *SearchDebouncer) subscribers() []func(entity.NavState) {
	subs := make([]func(entity.NavState), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}
