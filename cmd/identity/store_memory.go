package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository for dev mode and tests.
// Data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]Record
	byNorm map[string]int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int64]Record),
		byNorm: make(map[string]int64),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.MemoryStore.Insert"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNorm[in.NameNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "name"}
	}
	s.nextID++
	rec := Record{
		User: User{
			ID:        s.nextID,
			Name:      in.Name,
			CreatedAt: in.Now,
			UpdatedAt: in.Now,
		},
		NameNorm:     in.NameNorm,
		PasswordHash: in.PasswordHash,
	}
	s.byID[rec.ID] = rec
	s.byNorm[rec.NameNorm] = rec.ID
	return rec.User, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, NotFoundError{Op: "identity.MemoryStore.GetByID", Resource: "user"}
	}
	return rec, nil
}

func (s *MemoryStore) GetByNameNorm(ctx context.Context, norm string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNorm[norm]
	if !ok {
		return Record{}, NotFoundError{Op: "identity.MemoryStore.GetByNameNorm", Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) UpdateName(ctx context.Context, id int64, name, norm string, now time.Time) (User, error) {
	const op = "identity.MemoryStore.UpdateName"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if owner, taken := s.byNorm[norm]; taken && owner != id {
		return User{}, ConflictError{Op: op, Field: "name"}
	}

	delete(s.byNorm, rec.NameNorm)
	rec.Name = name
	rec.NameNorm = norm
	rec.UpdatedAt = now
	s.byID[id] = rec
	s.byNorm[norm] = id
	return rec.User, nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id int64, hash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.MemoryStore.UpdatePasswordHash", Resource: "user"}
	}
	rec.PasswordHash = hash
	rec.UpdatedAt = now
	s.byID[id] = rec
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.MemoryStore.Delete", Resource: "user"}
	}
	delete(s.byID, id)
	delete(s.byNorm, rec.NameNorm)
	return nil
}

func (s *MemoryStore) Close() {}
