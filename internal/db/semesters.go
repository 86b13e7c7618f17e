package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Tanth170203/EduXtend-sub002/internal/models"
)

func GetActiveSemester(ctx context.Context, q Querier) (*models.Semester, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, is_active FROM semesters WHERE is_active LIMIT 1`)
	var s models.Semester
	if err := row.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive); err != nil {
		return nil, err
	}
	return &s, nil
}

func GetSemesterByID(ctx context.Context, q Querier, id int64) (*models.Semester, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, is_active FROM semesters WHERE id = $1`, id)
	var s models.Semester
	if err := row.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindDueSuccessor returns the earliest-starting semester whose start date has
// arrived and lies after the active semester's start, or nil when there is no
// pending transition.
func FindDueSuccessor(ctx context.Context, q Querier, activeStart, now time.Time) (*models.Semester, error) {
	row := q.QueryRowContext(ctx, `
SELECT id, name, start_date, end_date, is_active
FROM semesters
WHERE start_date > $1 AND start_date <= $2
ORDER BY start_date
LIMIT 1`, activeStart, now)
	var s models.Semester
	err := row.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SwitchActiveSemester deactivates the old semester and activates the new one
// in a single transaction. Rollover Automation is the only caller.
func SwitchActiveSemester(ctx context.Context, database *sql.DB, oldID, newID int64) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE semesters SET is_active = FALSE WHERE id = $1`, oldID); err != nil {
		return fmt.Errorf("deactivate semester %d: %w", oldID, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE semesters SET is_active = TRUE WHERE id = $1`, newID); err != nil {
		return fmt.Errorf("activate semester %d: %w", newID, err)
	}
	return tx.Commit()
}

func CreateSemester(ctx context.Context, q Querier, s models.Semester) (int64, error) {
	if s.StartDate.After(s.EndDate) {
		return 0, fmt.Errorf("semester end date before start date")
	}
	var id int64
	err := q.QueryRowContext(ctx, `
INSERT INTO semesters (name, start_date, end_date, is_active)
VALUES ($1, $2, $3, $4)
RETURNING id`, s.Name, s.StartDate, s.EndDate, s.IsActive).Scan(&id)
	return id, err
}

func ListSemesters(ctx context.Context, q Querier) ([]models.Semester, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, start_date, end_date, is_active FROM semesters ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Semester
	for rows.Next() {
		var s models.Semester
		if err := rows.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
