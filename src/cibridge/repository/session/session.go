// Package session stores the connected IDE sessions.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/internal/errors"
	"github.com/uber/cibridge/src/cibridge/mapper"
)

const _gaugeActive = "active_connections"

// Repository keeps one Session per open IDE connection. Callers always receive copies.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	GetFromContext(ctx context.Context) (*entity.Session, error)
	// Update applies fn to the session of the calling connection while no other caller can modify it.
	Update(ctx context.Context, fn func(s *entity.Session)) error
	Set(ctx context.Context, s *entity.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]entity.Session
	active   tally.Gauge
}

// New returns an in-memory session Repository.
func New(stats tally.Scope) Repository {
	return &repository{
		sessions: make(map[uuid.UUID]entity.Session),
		active:   stats.Gauge(_gaugeActive),
	}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, &errors.SessionNotFoundError{UUID: id}
	}
	return &s, nil
}

func (r *repository) GetFromContext(ctx context.Context) (*entity.Session, error) {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, fn func(s *entity.Session)) error {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return &errors.SessionNotFoundError{UUID: id}
	}
	fn(&s)
	if s.UUID != id {
		return fmt.Errorf("session %s cannot change its id", id)
	}
	r.sessions[id] = s
	return nil
}

func (r *repository) Set(ctx context.Context, s *entity.Session) error {
	if s == nil {
		return errors.New("can't save nil session")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.UUID] = *s
	r.active.Update(float64(len(r.sessions)))
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	r.active.Update(float64(len(r.sessions)))
	return nil
}
