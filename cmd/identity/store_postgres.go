package identity

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
)

// PostgresStore implements Repository over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; Close does not close it.
// - Schema/table identifiers are quoted via pgx.Identifier.
// - Unique violations on name_norm map to ConflictError{Field: "name"}.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema holding all tables.
const DefaultSchema = "binhacken"

// WithSchema sets the Postgres schema (default DefaultSchema).
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) users() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

const userColumns = `id, name, name_norm, password_hash, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Name, &r.NameNorm, &r.PasswordHash, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) Insert(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.Insert"

	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.users()+` (name, name_norm, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING `+userColumns,
		in.Name, in.NameNorm, in.PasswordHash, in.Now,
	))
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec.User, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (Record, error) {
	const op = "identity.GetByID"

	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (s *PostgresStore) GetByNameNorm(ctx context.Context, norm string) (Record, error) {
	const op = "identity.GetByNameNorm"

	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+` WHERE name_norm = $1`, norm))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (s *PostgresStore) UpdateName(ctx context.Context, id int64, name, norm string, now time.Time) (User, error) {
	const op = "identity.UpdateName"

	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE `+s.users()+`
		    SET name = $2, name_norm = $3, updated_at = $4
		  WHERE id = $1
		 RETURNING `+userColumns,
		id, name, norm, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec.User, nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id int64, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+` SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, now,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	const op = "identity.Delete"

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.users()+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close() {}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names, fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_name_norm", strings.Contains(c, "name"):
		return "name", true
	default:
		return "unique", true
	}
}
