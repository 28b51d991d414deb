package assignments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/novacriatura/rota/internal/calendar"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assignments (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	date       TEXT NOT NULL,
	member     TEXT NOT NULL,
	role_id    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (member, date)
);
CREATE INDEX IF NOT EXISTS idx_assignments_date_role ON assignments (date, role_id);
`

const sqliteColumns = `id, seq, date, member, role_id, created_at`

// SQLiteRepository stores assignments in an embedded SQLite database. It is
// meant for single-process deployments and tests; the connection pool must
// be limited to one connection so that inserts are serialised.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open database and ensures the schema exists.
func NewSQLiteRepository(ctx context.Context, conn *sql.DB) (*SQLiteRepository, error) {
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("assignments: sqlite schema: %w", err)
	}
	return &SQLiteRepository{db: conn}, nil
}

func (r *SQLiteRepository) HasAssignment(ctx context.Context, member string, date calendar.Date) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments WHERE member = ? AND date = ?`, member, date.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("assignments: has assignment: %w", err)
	}
	return count > 0, nil
}

func (r *SQLiteRepository) AssignmentsForDate(ctx context.Context, date calendar.Date) ([]Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM assignments WHERE date = ? ORDER BY seq`, date.String())
	if err != nil {
		return nil, fmt.Errorf("assignments: for date: %w", err)
	}
	return collectSQLite(rows)
}

func (r *SQLiteRepository) LastAssignmentForMember(ctx context.Context, member string) (Assignment, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM assignments WHERE member = ? ORDER BY date DESC, seq DESC LIMIT 1`, member)
	return scanOneSQLite(row)
}

func (r *SQLiteRepository) AssignmentForMemberAndDate(ctx context.Context, member string, date calendar.Date) (Assignment, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM assignments WHERE member = ? AND date = ? ORDER BY seq LIMIT 1`, member, date.String())
	return scanOneSQLite(row)
}

// InsertAssignment checks capacity and inserts inside one write transaction.
func (r *SQLiteRepository) InsertAssignment(ctx context.Context, in InsertParams) (Assignment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if in.Capacity > 0 {
		var used int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments WHERE date = ? AND role_id = ?`, in.Date.String(), in.RoleID).Scan(&used); err != nil {
			return Assignment{}, fmt.Errorf("assignments: count role usage: %w", err)
		}
		if used >= in.Capacity {
			return Assignment{}, ErrCapacityExceeded
		}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO assignments (id, date, member, role_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		in.ID.String(), in.Date.String(), in.Member, in.RoleID, in.CreatedAt.UTC())
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return Assignment{}, ErrDuplicateAssignment
		}
		return Assignment{}, fmt.Errorf("assignments: insert: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Assignment{}, fmt.Errorf("assignments: commit: %w", err)
	}
	return Assignment{
		ID:        in.ID,
		Seq:       seq,
		Date:      in.Date,
		Member:    in.Member,
		RoleID:    in.RoleID,
		CreatedAt: in.CreatedAt.UTC(),
	}, nil
}

func (r *SQLiteRepository) DeleteAllAssignments(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignments`)
	if err != nil {
		return 0, fmt.Errorf("assignments: delete all: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) ListAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM assignments ORDER BY date, seq`)
	if err != nil {
		return nil, fmt.Errorf("assignments: list: %w", err)
	}
	return collectSQLite(rows)
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row sqliteScanner) (Assignment, error) {
	var (
		a         Assignment
		id        string
		day       string
		createdAt time.Time
	)
	if err := row.Scan(&id, &a.Seq, &day, &a.Member, &a.RoleID, &createdAt); err != nil {
		return Assignment{}, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: stored id %q: %w", id, err)
	}
	date, err := calendar.Parse(day)
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: stored date %q: %w", day, err)
	}
	a.ID = parsedID
	a.Date = date
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

func scanOneSQLite(row *sql.Row) (Assignment, bool, error) {
	a, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, fmt.Errorf("assignments: scan: %w", err)
	}
	return a, true, nil
}

func collectSQLite(rows *sql.Rows) ([]Assignment, error) {
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("assignments: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignments: rows: %w", err)
	}
	return out, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT:
		return true
	}
	return false
}
