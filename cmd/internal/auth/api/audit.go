package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one security-relevant event.
type AuditEntry struct {
	Action    string
	UserID    int64
	SIDPrefix string
	IP        string
	UserAgent string
	Meta      map[string]any
}

// Auditor records audit entries. Implementations must not block the request
// on failure; errors are logged by the Handler.
type Auditor interface {
	Record(ctx context.Context, e AuditEntry) error
}

// LogAuditor writes entries to a slog.Logger.
type LogAuditor struct {
	Log *slog.Logger
}

func (a LogAuditor) Record(_ context.Context, e AuditEntry) error {
	l := a.Log
	if l == nil {
		l = slog.Default()
	}
	l.Info("audit",
		"action", e.Action,
		"user_id", e.UserID,
		"sid", e.SIDPrefix,
		"ip", e.IP,
		"meta", e.Meta,
	)
	return nil
}

// PostgresAuditor appends entries to <schema>.audit_log.
type PostgresAuditor struct {
	pool  *pgxpool.Pool
	table string
}

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresAuditor returns an Auditor writing to schema.audit_log.
func NewPostgresAuditor(pool *pgxpool.Pool, schema string) (*PostgresAuditor, error) {
	if pool == nil {
		return nil, fmt.Errorf("audit: nil pool")
	}
	if !schemaRe.MatchString(schema) {
		return nil, fmt.Errorf("audit: invalid schema identifier")
	}
	return &PostgresAuditor{pool: pool, table: pgx.Identifier{schema, "audit_log"}.Sanitize()}, nil
}

func (a *PostgresAuditor) Record(ctx context.Context, e AuditEntry) error {
	var meta *string
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			s := string(b)
			meta = &s
		}
	}
	_, err := a.pool.Exec(ctx, `
		INSERT INTO `+a.table+` (action, user_id, sid_prefix, ip, user_agent, meta)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, e.Action, nilIfZero(e.UserID), nilIfEmpty(e.SIDPrefix), nilIfEmpty(e.IP), nilIfEmpty(e.UserAgent), meta)
	return err
}

func (h *Handler) audit(r *http.Request, action string, userID int64, sid string, meta map[string]any) {
	e := AuditEntry{
		Action:    action,
		UserID:    userID,
		SIDPrefix: sidPrefix(sid),
		IP:        ipString(clientIP(r, h.cfg.TrustProxy)),
		UserAgent: strings.TrimSpace(r.UserAgent()),
		Meta:      meta,
	}
	if err := h.auditor.Record(r.Context(), e); err != nil {
		h.log.Error("auth.audit.insert.fail", "action", action, "err", err)
	}
}

func sidPrefix(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8]
}

func nilIfEmpty(s string) any {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}

func nilIfZero(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
