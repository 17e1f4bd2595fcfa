// Package archive keeps entries that left the bounded history log, so they
// remain available for export and inspection. The aggregator never reads it.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
)

// Reason records why an entry was archived.
type Reason string

const (
	ReasonTruncated Reason = "truncated"
	ReasonDeleted   Reason = "deleted"
	ReasonCleared   Reason = "cleared"
)

const (
	table         = "history_archive"
	colID         = "id"
	colMatrix     = "matrix_type"
	colNumbers    = "numbers"
	colSpecial    = "special_number"
	colAnalysis   = "analysis"
	colOrigin     = "origin"
	colCreatedAt  = "created_at_ms"
	colReason     = "reason"
	colArchivedAt = "archived_at"
)

// Record is one archived entry.
type Record struct {
	Entry      history.Entry `json:"entry"`
	Reason     Reason        `json:"reason"`
	ArchivedAt time.Time     `json:"archivedAt"`
}

// Store writes archived entries into a SQLite database.
type Store struct {
	db *sql.DB
}

// New prepares the archive table on db.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history_archive (
			id TEXT PRIMARY KEY,
			matrix_type TEXT NOT NULL,
			numbers TEXT NOT NULL,
			special_number INTEGER,
			analysis TEXT NOT NULL DEFAULT '',
			origin TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			reason TEXT NOT NULL,
			archived_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_archive_type ON history_archive(matrix_type, created_at_ms DESC);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Add archives entries in one transaction. Entries already archived are
// left as they are.
func (s *Store) Add(ctx context.Context, reason Reason, entries ...history.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	q := sq.Insert(table).
		Options("OR IGNORE").
		Columns(colID, colMatrix, colNumbers, colSpecial, colAnalysis, colOrigin, colCreatedAt, colReason, colArchivedAt)
	for _, e := range entries {
		nums, err := json.Marshal(e.Numbers)
		if err != nil {
			return fmt.Errorf("archive: encode numbers: %w", err)
		}
		var special any
		if e.SpecialNumber != nil {
			special = *e.SpecialNumber
		}
		q = q.Values(e.ID, string(e.MatrixType), string(nums), special, e.Analysis, string(e.Origin), e.Timestamp, string(reason), now)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("archive: insert: %w", err)
	}
	return tx.Commit()
}

// List returns archived entries newest first. An empty or "All" matrix type
// matches everything.
func (s *Store) List(ctx context.Context, f history.Filter, limit, offset int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q := sq.Select(colID, colMatrix, colNumbers, colSpecial, colAnalysis, colOrigin, colCreatedAt, colReason, colArchivedAt).
		From(table).
		OrderBy(colCreatedAt + " DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if f.MatrixType != "" && f.MatrixType != history.All {
		q = q.Where(sq.Eq{colMatrix: f.MatrixType})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			mt      string
			nums    string
			special sql.NullInt64
			origin  string
			reason  string
		)
		if err := rows.Scan(&r.Entry.ID, &mt, &nums, &special, &r.Entry.Analysis, &origin, &r.Entry.Timestamp, &reason, &r.ArchivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(nums), &r.Entry.Numbers); err != nil {
			return nil, fmt.Errorf("archive: decode numbers for %s: %w", r.Entry.ID, err)
		}
		if special.Valid {
			v := int(special.Int64)
			r.Entry.SpecialNumber = &v
		}
		r.Entry.MatrixType = matrix.Type(mt)
		r.Entry.Origin = history.Origin(origin)
		r.Reason = Reason(reason)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of archived entries matching f.
func (s *Store) Count(ctx context.Context, f history.Filter) (int, error) {
	q := sq.Select("COUNT(*)").From(table)
	if f.MatrixType != "" && f.MatrixType != history.All {
		q = q.Where(sq.Eq{colMatrix: f.MatrixType})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return n, nil
}
