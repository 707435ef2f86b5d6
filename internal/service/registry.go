package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/isoplanner/backend/internal/domain"
	"github.com/isoplanner/backend/internal/logging"
	"github.com/isoplanner/backend/internal/observability"
)

// SessionRegistry keeps the open sessions of the process
type SessionRegistry struct {
	orchestrator *Orchestrator
	metrics      *observability.Collector
	log          logging.Logger

	mu       sync.RWMutex
	sessions map[string]*IsochroneSession
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry(orchestrator *Orchestrator, metrics *observability.Collector, log logging.Logger) *SessionRegistry {
	if log == nil {
		log = logging.Noop()
	}
	return &SessionRegistry{
		orchestrator: orchestrator,
		metrics:      metrics,
		log:          log,
		sessions:     make(map[string]*IsochroneSession),
	}
}

// Create opens a new empty session
func (r *SessionRegistry) Create() *IsochroneSession {
	s := NewIsochroneSession(uuid.NewString(), r.orchestrator, r.metrics, r.log)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	return s
}

// Get looks a session up by id
func (r *SessionRegistry) Get(id string) (*IsochroneSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrSessionNotFound
	}
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Delete closes a session
func (r *SessionRegistry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	r.metrics.SetActiveSessions(n)
	return nil
}

// Len returns the number of open sessions
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
