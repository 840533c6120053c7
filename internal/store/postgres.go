package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore is the reference store: CRUD and joined reads over accounts,
// contents and groups. It enforces no business rules; keeping the
// bidirectional arrays consistent across collections is the app layer's job.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// uniqueConstraintName returns the violated constraint for a unique
// violation, or "" when err is anything else. Callers with more than one
// unique index use it to label the conflicting field.
func uniqueConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}

// escapeLike escapes the LIKE metacharacters so text matches as a literal
// substring. Postgres treats backslash as the escape character by default.
func escapeLike(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `%`, `\%`)
	return strings.ReplaceAll(text, `_`, `\_`)
}

// idList round-trips jsonb id arrays. Empty lists are stored as '[]', never
// NULL, so decode always yields a non-nil slice.
func encodeIDList(ids []string) []byte {
	if ids == nil {
		ids = []string{}
	}
	raw, _ := json.Marshal(ids)
	return raw
}

func decodeIDList(raw []byte) []string {
	ids := []string{}
	_ = json.Unmarshal(raw, &ids)
	return ids
}

func orderDirection(asc bool) string {
	if asc {
		return "ASC"
	}
	return "DESC"
}
