package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/launchpad/internal/model"
)

const timetableColumns = `id, owner_id, title, day_of_week, starts_at, ends_at, location, created_at, updated_at`

// PostgresTimetableRepo はPostgreSQLを使用した時間割リポジトリ。
type PostgresTimetableRepo struct {
	db *sql.DB
}

// NewPostgresTimetableRepo はPostgresTimetableRepoを生成する。
func NewPostgresTimetableRepo(db *sql.DB) *PostgresTimetableRepo {
	return &PostgresTimetableRepo{db: db}
}

func scanTimetableEntry(row rowScanner) (*model.TimetableEntry, error) {
	e := &model.TimetableEntry{}
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Title, &e.DayOfWeek, &e.StartsAt, &e.EndsAt,
		&e.Location, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByOwner は所有者のエントリをday_of_week, starts_at, id順で返す。
func (r *PostgresTimetableRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.TimetableEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+timetableColumns+` FROM timetable_entries
		 WHERE owner_id = $1
		 ORDER BY day_of_week, starts_at, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list timetable entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.TimetableEntry
	for rows.Next() {
		e, err := scanTimetableEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timetable entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timetable entries: %w", err)
	}
	return entries, nil
}

// Create はエントリを作成する。
func (r *PostgresTimetableRepo) Create(ctx context.Context, e *model.TimetableEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timetable_entries (id, owner_id, title, day_of_week, starts_at, ends_at, location, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OwnerID, e.Title, e.DayOfWeek, e.StartsAt, e.EndsAt, e.Location, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create timetable entry: %w", err)
	}
	return nil
}

// Update は所有者で絞り込んでエントリを単一のUPDATE文で部分更新する。
// 見つからない場合はnilを返す。
func (r *PostgresTimetableRepo) Update(ctx context.Context, id, ownerID string, in model.TimetableInput) (*model.TimetableEntry, error) {
	var day sql.NullInt64
	if in.DayOfWeek != nil {
		day = sql.NullInt64{Int64: int64(*in.DayOfWeek), Valid: true}
	}

	e, err := scanTimetableEntry(r.db.QueryRowContext(ctx,
		`UPDATE timetable_entries
		 SET title = COALESCE($3, title),
		     day_of_week = COALESCE($4, day_of_week),
		     starts_at = COALESCE($5, starts_at),
		     ends_at = COALESCE($6, ends_at),
		     location = COALESCE($7, location),
		     updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+timetableColumns,
		id, ownerID,
		nullString(in.Title), day, nullString(in.StartsAt), nullString(in.EndsAt), nullString(in.Location),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update timetable entry: %w", err)
	}
	return e, nil
}

// DeleteByIDAndOwner は所有者で絞り込んでエントリを削除する。
func (r *PostgresTimetableRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM timetable_entries WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete timetable entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// DeleteByOwner は所有者の全エントリを削除する。
func (r *PostgresTimetableRepo) DeleteByOwner(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timetable_entries WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete timetable entries: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TimetableRepository = (*PostgresTimetableRepo)(nil)
