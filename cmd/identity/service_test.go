package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binhacken/cmd/security/password"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	repo := NewMemoryStore()
	svc, err := NewService(repo, password.FastConfig())
	require.NoError(t, err)
	return svc, repo
}

func TestService_CreateAndAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	u, err := svc.Create(ctx, "  Alice ", "password-one")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.NotZero(t, u.ID)

	got, err := svc.Authenticate(ctx, "alice", "password-one")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "alice", "password-two")
	assert.True(t, IsInvalidCredentials(err), "wrong password: %v", err)

	_, err = svc.Authenticate(ctx, "bob", "password-one")
	assert.True(t, IsInvalidCredentials(err), "unknown user: %v", err)
}

func TestService_Create_Conflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Create(ctx, "Navid", "password-one")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "nAvId", "password-two")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestService_Create_InvalidInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	cases := map[string][2]string{
		"empty name":     {"   ", "password-one"},
		"long name":      {"abcdefghijklmnopqrstuvwxyz0123456789", "password-one"},
		"slash in name":  {"a/b", "password-one"},
		"short password": {"carol", "short"},
	}
	for name, c := range cases {
		_, err := svc.Create(ctx, c[0], c[1])
		assert.True(t, IsInvalidInput(err), "%s: got %v", name, err)
	}
}

func TestService_Rename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	a, err := svc.Create(ctx, "alice", "password-one")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", "password-two")
	require.NoError(t, err)

	_, _, err = svc.Rename(ctx, a.ID, "BOB")
	assert.True(t, IsConflict(err), "expected conflict, got %v", err)

	before, after, err := svc.Rename(ctx, a.ID, "alicia")
	require.NoError(t, err)
	assert.Equal(t, "alice", before.Name)
	assert.Equal(t, "alicia", after.Name)
	assert.Equal(t, a.ID, after.ID)

	_, err = svc.Authenticate(ctx, "alice", "password-one")
	assert.True(t, IsInvalidCredentials(err))
	_, err = svc.Authenticate(ctx, "alicia", "password-one")
	assert.NoError(t, err)

	// Case-only change of the own name is not a conflict.
	_, after, err = svc.Rename(ctx, a.ID, "Alicia")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", after.Name)
}

func TestService_ChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	u, err := svc.Create(ctx, "dora", "password-one")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, u.ID, "wrong-password", "password-two")
	assert.True(t, IsInvalidCredentials(err))

	err = svc.ChangePassword(ctx, u.ID, "password-one", "short")
	assert.True(t, IsInvalidInput(err))

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "password-one", "password-two"))
	_, err = svc.Authenticate(ctx, "dora", "password-two")
	assert.NoError(t, err)
}

func TestService_Authenticate_UpgradesLegacyHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newTestService(t)

	sum := sha256.Sum256([]byte("pw1"))
	u, err := repo.Insert(ctx, NewUser{
		Name:         "legacy",
		NameNorm:     "legacy",
		PasswordHash: hex.EncodeToString(sum[:]),
		Now:          time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "legacy", "pw1")
	require.NoError(t, err)

	rec, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, password.SchemeArgon2id, password.Identify(rec.PasswordHash))

	// Still verifies after the upgrade, even though "pw1" is below the policy minimum.
	_, err = svc.Authenticate(ctx, "legacy", "pw1")
	assert.NoError(t, err)
}

func TestService_Remove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	u, err := svc.Create(ctx, "erin", "password-one")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, u.ID))
	assert.True(t, IsNotFound(svc.Remove(ctx, u.ID)))

	_, err = svc.GetByID(ctx, u.ID)
	assert.True(t, IsNotFound(err))
	_, err = svc.Authenticate(ctx, "erin", "password-one")
	assert.True(t, IsInvalidCredentials(err))
}
