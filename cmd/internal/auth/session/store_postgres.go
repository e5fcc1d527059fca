package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"binhacken/cmd/security/token"
)

// PostgresStore implements Store using PostgreSQL (<schema>.sessions).
//
// Rotate runs in one transaction and locks the sid row with SELECT ... FOR UPDATE,
// so concurrent validations of the same sid serialize; the loser sees the new
// hash and is handled as a mismatch.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresStore creates a Postgres-backed session store in schema.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if !schemaRe.MatchString(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresStore{
		pool:  pool,
		table: pgx.Identifier{schema, "sessions"}.Sanitize(),
	}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (id, identity_key, sid, token_hash, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, row.ID, row.IdentityKey, row.SID, row.TokenHash, row.CreatedAt, row.LastUsedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errDuplicateSID
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Rotate(ctx context.Context, in RotateInput) (RotateOutcome, int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return UnknownSID, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id          string
		identityKey string
		tokenHash   string
		createdAt   time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT id, identity_key, token_hash, created_at
		FROM `+s.table+`
		WHERE sid = $1
		FOR UPDATE
	`, in.SID).Scan(&id, &identityKey, &tokenHash, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UnknownSID, 0, nil
	}
	if err != nil {
		return UnknownSID, 0, err
	}

	outcome := Rotated
	switch {
	case identityKey != in.IdentityKey || !token.EqualHex(tokenHash, in.TokenHash):
		outcome = Mismatch
	case createdAt.Before(in.CreatedCutoff):
		outcome = Expired
	}

	var removed int64
	if outcome == Rotated {
		_, err = tx.Exec(ctx, `
			UPDATE `+s.table+`
			SET token_hash = $2, last_used_at = $3
			WHERE id = $1
		`, id, in.NewTokenHash, in.Now)
	} else {
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `DELETE FROM `+s.table+` WHERE sid = $1`, in.SID)
		removed = tag.RowsAffected()
	}
	if err != nil {
		return UnknownSID, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return UnknownSID, 0, err
	}
	return outcome, removed, nil
}

func (s *PostgresStore) DeleteBySession(ctx context.Context, identityKey, sid string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table+` WHERE identity_key = $1 AND sid = $2`, identityKey, sid)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteAllForIdentity(ctx context.Context, identityKey string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE identity_key = $1`, identityKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RenameIdentity(ctx context.Context, oldKey, newKey string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+` SET identity_key = $2 WHERE identity_key = $1`, oldKey, newKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identityKey string) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, identity_key, sid, token_hash, created_at, last_used_at
		FROM `+s.table+`
		WHERE identity_key = $1
		ORDER BY created_at DESC
	`, identityKey)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (Row, error) {
		var row Row
		err := r.Scan(&row.ID, &row.IdentityKey, &row.SID, &row.TokenHash, &row.CreatedAt, &row.LastUsedAt)
		return row, err
	})
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() {}
