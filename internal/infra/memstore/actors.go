package memstore

import (
	"context"
	"sync"

	"tabula/internal/domain"
)

type ActorStore struct {
	mu     sync.RWMutex
	actors map[string]domain.ActorIdentity
}

func NewActorStore() *ActorStore {
	return &ActorStore{actors: make(map[string]domain.ActorIdentity)}
}

func (s *ActorStore) Create(ctx context.Context, actor domain.ActorIdentity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[actor.ID]; ok {
		return domain.ErrConflict
	}
	s.actors[actor.ID] = actor
	return nil
}

func (s *ActorStore) Get(ctx context.Context, id string) (domain.ActorIdentity, error) {
	if err := ctx.Err(); err != nil {
		return domain.ActorIdentity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	actor, ok := s.actors[id]
	if !ok {
		return domain.ActorIdentity{}, domain.ErrNotFound
	}
	return actor, nil
}
