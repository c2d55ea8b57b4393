package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/errors"
)

// Instance is the operation-agnostic view of a running machine.
type Instance interface {
	Operation() operation.Type
	Submit(ctx context.Context, raw json.RawMessage) (Snapshot, error)
	Execute(ctx context.Context) (Snapshot, error)
	Back() (Snapshot, error)
	Reset(ctx context.Context) (Snapshot, error)
	Snapshot() Snapshot
}

// Session binds a machine to its owner, token, and lifetime.
type Session struct {
	ID        string
	ProjectID string
	TokenID   string
	Operation operation.Type
	Instance  Instance
	CreatedAt time.Time

	lastActive time.Time
}

// Registry tracks live workflow sessions and expires idle ones.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// DefaultSessionTTL is how long an idle session survives between calls.
const DefaultSessionTTL = 30 * time.Minute

// NewRegistry creates a session registry with the given idle TTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create registers a new session for the instance.
func (r *Registry) Create(projectID, tokenID string, inst Instance) *Session {
	now := time.Now().UTC()
	session := &Session{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		TokenID:    tokenID,
		Operation:  inst.Operation(),
		Instance:   inst,
		CreatedAt:  now,
		lastActive: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return session
}

// Get returns the session if it exists and belongs to the project, updating
// its activity timestamp. Sessions of other projects are reported as absent.
func (r *Registry) Get(id, projectID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || session.ProjectID != projectID {
		return nil, errors.NotFound("session", id)
	}
	session.lastActive = time.Now().UTC()
	return session, nil
}

// Remove drops a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle past the TTL and returns how many it dropped.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, session := range r.sessions {
		if now.Sub(session.lastActive) > r.ttl {
			delete(r.sessions, id)
			dropped++
		}
	}
	return dropped
}
