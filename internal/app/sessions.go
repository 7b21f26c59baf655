package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

type sessionEntry struct {
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Bound is a snapshot of one live connection.
type Bound struct {
	Handle domain.ConnHandle
	Conn   core.SignalConnection
}

// Sessions is the handle -> connection side table. Room membership lives in
// core.Registry; this table only knows how to reach and cancel a connection.
type Sessions struct {
	mu      sync.RWMutex
	entries map[domain.ConnHandle]*sessionEntry
}

func NewSessions() *Sessions {
	return &Sessions{entries: make(map[domain.ConnHandle]*sessionEntry)}
}

func (s *Sessions) Bind(h domain.ConnHandle, conn core.SignalConnection, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[h] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.sessions").Str("conn", string(h)).Msg("bound signal")
}

func (s *Sessions) Get(h domain.ConnHandle) (core.SignalConnection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[h]; ok {
		return e.Conn, true
	}
	return nil, false
}

// Unbind reports whether the handle was bound.
func (s *Sessions) Unbind(h domain.ConnHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[h]; !ok {
		return false
	}
	delete(s.entries, h)
	log.Info().Str("module", "app.sessions").Str("conn", string(h)).Msg("unbind session")
	return true
}

func (s *Sessions) All() []Bound {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Bound, 0, len(s.entries))
	for h, e := range s.entries {
		out = append(out, Bound{Handle: h, Conn: e.Conn})
	}
	return out
}

// Cancel stops the connection's pumps and closes it. The adapter observes the
// close and runs the disconnect path.
func (s *Sessions) Cancel(h domain.ConnHandle) bool {
	s.mu.RLock()
	e, ok := s.entries[h]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	e.Conn.Close()
	log.Info().Str("module", "app.sessions").Str("conn", string(h)).Msg("canceled session")
	return true
}
