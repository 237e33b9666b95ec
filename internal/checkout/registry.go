package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gitarcode-test/opencollective-frontend-sub001/internal/apperr"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 2 * time.Hour

// Registry keeps the open checkout sessions in memory and drops those idle
// for longer than its TTL.
type Registry struct {
	cfg  Config
	deps Deps
	ttl  time.Duration
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	o    *Orchestrator
	seen time.Time
}

// NewRegistry returns an empty registry. A non-positive ttl uses
// DefaultSessionTTL.
func NewRegistry(cfg Config, deps Deps, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{cfg: cfg, deps: deps, ttl: ttl, log: log, sessions: make(map[string]*entry)}
}

// Open starts a new session at rt.
func (r *Registry) Open(ctx context.Context, rt Route, id *Identity) (*Orchestrator, error) {
	sid := uuid.NewString()
	o, err := Open(ctx, r.cfg, r.deps, sid, rt, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.sessions[sid] = &entry{o: o, seen: r.cfg.now()}
	return o, nil
}

// Get returns the session with id and marks it as used.
func (r *Registry) Get(id string) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	now := r.cfg.now()
	if !ok || now.Sub(e.seen) > r.ttl {
		delete(r.sessions, id)
		return nil, apperr.ErrSessionNotFound
	}
	e.seen = now
	return e.o, nil
}

// Sweep drops expired sessions and returns how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

func (r *Registry) sweepLocked() int {
	now := r.cfg.now()
	n := 0
	for id, e := range r.sessions {
		if now.Sub(e.seen) > r.ttl {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		r.log.Debug("expired checkout sessions dropped", zap.Int("count", n))
	}
	return n
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
