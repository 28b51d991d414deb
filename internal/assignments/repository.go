package assignments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/platform/db"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS assignments (
	id         UUID PRIMARY KEY,
	seq        BIGSERIAL NOT NULL,
	date       DATE NOT NULL,
	member     TEXT NOT NULL,
	role_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_assignments_member_date UNIQUE (member, date)
);
CREATE INDEX IF NOT EXISTS idx_assignments_date_role ON assignments (date, role_id);
CREATE INDEX IF NOT EXISTS idx_assignments_member_date ON assignments (member, date DESC, seq DESC);
`

// advisoryLockspace namespaces the per-date advisory locks taken on insert.
const advisoryLockspace int32 = 0x524f5441

const pgColumns = `id, seq, date, member, role_id, created_at`

// PGRepository stores assignments in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository over pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Migrate creates the table and indexes when missing.
func (r *PGRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("assignments: migrate: %w", err)
	}
	return nil
}

func (r *PGRepository) HasAssignment(ctx context.Context, member string, date calendar.Date) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM assignments WHERE member = $1 AND date = $2)`, member, date.Time()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("assignments: has assignment: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) AssignmentsForDate(ctx context.Context, date calendar.Date) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pgColumns+` FROM assignments WHERE date = $1 ORDER BY seq`, date.Time())
	if err != nil {
		return nil, fmt.Errorf("assignments: for date: %w", err)
	}
	return collectPG(rows)
}

func (r *PGRepository) LastAssignmentForMember(ctx context.Context, member string) (Assignment, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM assignments WHERE member = $1 ORDER BY date DESC, seq DESC LIMIT 1`, member)
	return scanOnePG(row)
}

func (r *PGRepository) AssignmentForMemberAndDate(ctx context.Context, member string, date calendar.Date) (Assignment, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM assignments WHERE member = $1 AND date = $2 ORDER BY seq LIMIT 1`, member, date.Time())
	return scanOnePG(row)
}

// InsertAssignment serialises writers of the same date on an advisory lock,
// re-checks the role's capacity and inserts. The unique key on
// (member, date) rejects duplicates even if callers skipped their checks.
func (r *PGRepository) InsertAssignment(ctx context.Context, in InsertParams) (Assignment, error) {
	var out Assignment
	err := db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, advisoryLockspace, in.Date.String()); err != nil {
			return fmt.Errorf("assignments: lock date: %w", err)
		}
		if in.Capacity > 0 {
			var used int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM assignments WHERE date = $1 AND role_id = $2`, in.Date.Time(), in.RoleID).Scan(&used); err != nil {
				return fmt.Errorf("assignments: count role usage: %w", err)
			}
			if used >= in.Capacity {
				return ErrCapacityExceeded
			}
		}
		row := tx.QueryRow(ctx,
			`INSERT INTO assignments (id, date, member, role_id, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING `+pgColumns,
			in.ID, in.Date.Time(), in.Member, in.RoleID, in.CreatedAt)
		a, err := scanPG(row)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Assignment{}, ErrDuplicateAssignment
		}
		if errors.Is(err, ErrCapacityExceeded) {
			return Assignment{}, err
		}
		return Assignment{}, fmt.Errorf("assignments: insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) DeleteAllAssignments(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assignments`)
	if err != nil {
		return 0, fmt.Errorf("assignments: delete all: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) ListAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pgColumns+` FROM assignments ORDER BY date, seq`)
	if err != nil {
		return nil, fmt.Errorf("assignments: list: %w", err)
	}
	return collectPG(rows)
}

func scanPG(row pgx.Row) (Assignment, error) {
	var (
		a         Assignment
		id        uuid.UUID
		day       time.Time
		createdAt time.Time
	)
	if err := row.Scan(&id, &a.Seq, &day, &a.Member, &a.RoleID, &createdAt); err != nil {
		return Assignment{}, err
	}
	a.ID = id
	a.Date = calendar.FromTime(day)
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

func scanOnePG(row pgx.Row) (Assignment, bool, error) {
	a, err := scanPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, fmt.Errorf("assignments: scan: %w", err)
	}
	return a, true, nil
}

func collectPG(rows pgx.Rows) ([]Assignment, error) {
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanPG(rows)
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
