package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"binhacken/cmd/security/token"
)

// MemoryStore is an in-process Store for dev mode and tests.
// A single mutex serializes Rotate, which is stronger than per-sid locking.
type MemoryStore struct {
	mu    sync.Mutex
	bySID map[string]Row
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bySID: make(map[string]Row)}
}

func (m *MemoryStore) Insert(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.bySID[row.SID]; dup {
		return errDuplicateSID
	}
	m.bySID[row.SID] = row
	return nil
}

func (m *MemoryStore) Rotate(ctx context.Context, in RotateInput) (RotateOutcome, int64, error) {
	if err := ctx.Err(); err != nil {
		return UnknownSID, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.bySID[in.SID]
	if !ok {
		return UnknownSID, 0, nil
	}
	if row.IdentityKey != in.IdentityKey || !token.EqualHex(row.TokenHash, in.TokenHash) {
		delete(m.bySID, in.SID)
		return Mismatch, 1, nil
	}
	if row.CreatedAt.Before(in.CreatedCutoff) {
		delete(m.bySID, in.SID)
		return Expired, 1, nil
	}

	row.TokenHash = in.NewTokenHash
	row.LastUsedAt = in.Now
	m.bySID[in.SID] = row
	return Rotated, 0, nil
}

func (m *MemoryStore) DeleteBySession(ctx context.Context, identityKey, sid string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.bySID[sid]
	if !ok || row.IdentityKey != identityKey {
		return 0, nil
	}
	delete(m.bySID, sid)
	return 1, nil
}

func (m *MemoryStore) DeleteAllForIdentity(ctx context.Context, identityKey string) (int64, error) {
	return m.deleteWhere(ctx, func(r Row) bool { return r.IdentityKey == identityKey })
}

func (m *MemoryStore) PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.deleteWhere(ctx, func(r Row) bool { return r.CreatedAt.Before(cutoff) })
}

func (m *MemoryStore) deleteWhere(ctx context.Context, match func(Row) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for sid, r := range m.bySID {
		if match(r) {
			delete(m.bySID, sid)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RenameIdentity(ctx context.Context, oldKey, newKey string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for sid, r := range m.bySID {
		if r.IdentityKey == oldKey {
			r.IdentityKey = newKey
			m.bySID[sid] = r
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListByIdentity(ctx context.Context, identityKey string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Row
	for _, r := range m.bySID {
		if r.IdentityKey == identityKey {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Close() {}
