package handler

import (
	"sync"
	"time"

	"github.com/damon-houk/waybill-pricing/internal/infrastructure/logger"
	"github.com/google/uuid"
)

type closer interface {
	Close()
}

type sessionEntry[T closer] struct {
	value    T
	lastSeen time.Time
}

// sessionStore keeps per-client stateful components addressable by id.
// With a positive ttl, sessions left untouched for longer are closed.
type sessionStore[T closer] struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry[T]
	ttl      time.Duration
	now      func() time.Time
	logger   logger.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSessionStore[T closer](ttl time.Duration, log logger.Logger) *sessionStore[T] {
	s := &sessionStore[T]{
		sessions: make(map[string]*sessionEntry[T]),
		ttl:      ttl,
		now:      time.Now,
		logger:   log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if ttl > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s
}

func (s *sessionStore[T]) add(v T) string {
	id := uuid.New().String()

	s.mu.Lock()
	s.sessions[id] = &sessionEntry[T]{value: v, lastSeen: s.now()}
	s.mu.Unlock()

	return id
}

// get returns the session and marks it as used
func (s *sessionStore[T]) get(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		var zero T
		return zero, ErrSessionNotFound
	}
	e.lastSeen = s.now()
	return e.value, nil
}

func (s *sessionStore[T]) remove(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.value.Close()
	return nil
}

func (s *sessionStore[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// expireIdle closes every session idle for longer than ttl and returns how many it closed
func (s *sessionStore[T]) expireIdle() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []T
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.value)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, v := range expired {
		v.Close()
	}
	return len(expired)
}

func (s *sessionStore[T]) sweepLoop() {
	defer close(s.done)

	interval := s.ttl / 2
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.expireIdle(); n > 0 {
				s.logger.Info("Expired idle sessions", map[string]interface{}{
					"expired":   n,
					"remaining": s.count(),
				})
			}
		}
	}
}

func (s *sessionStore[T]) closeAll() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*sessionEntry[T])
	s.mu.Unlock()

	for _, e := range sessions {
		e.value.Close()
	}
}
