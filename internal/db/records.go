package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Tanth170203/EduXtend-sub002/internal/models"
)

func scanRecord(row *sql.Row) (*models.ScoreRecord, error) {
	var r models.ScoreRecord
	err := row.Scan(&r.ID, &r.SubjectID, &r.TargetType, &r.SemesterID, &r.Month, &r.TotalScore, &r.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func GetRecord(ctx context.Context, q Querier, subjectID int64, target models.TargetType, semesterID int64, month *int) (*models.ScoreRecord, error) {
	row := q.QueryRowContext(ctx, `
SELECT id, subject_id, target_type, semester_id, month, total_score, last_updated
FROM score_records
WHERE subject_id = $1 AND target_type = $2 AND semester_id = $3 AND COALESCE(month, 0) = COALESCE($4, 0)`,
		subjectID, target, semesterID, month)
	return scanRecord(row)
}

func GetRecordByID(ctx context.Context, q Querier, id int64) (*models.ScoreRecord, error) {
	row := q.QueryRowContext(ctx, `
SELECT id, subject_id, target_type, semester_id, month, total_score, last_updated
FROM score_records WHERE id = $1`, id)
	return scanRecord(row)
}

// GetOrCreateRecord is lookup-before-insert. The unique index on
// (subject, target, semester, month) makes the insert race-safe: a loser of
// the race falls back to the row the winner created.
func GetOrCreateRecord(ctx context.Context, q Querier, subjectID int64, target models.TargetType, semesterID int64, month *int) (*models.ScoreRecord, error) {
	r, err := GetRecord(ctx, q, subjectID, target, semesterID, month)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	row := q.QueryRowContext(ctx, `
INSERT INTO score_records (subject_id, target_type, semester_id, month)
VALUES ($1, $2, $3, $4)
ON CONFLICT (subject_id, target_type, semester_id, (COALESCE(month, 0))) DO NOTHING
RETURNING id, subject_id, target_type, semester_id, month, total_score, last_updated`,
		subjectID, target, semesterID, month)
	r, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GetRecord(ctx, q, subjectID, target, semesterID, month)
	}
	return r, err
}

// SetRecordTotal persists a recalculated total. Callers must hold the
// per-record advisory lock; nothing else ever writes total_score.
func SetRecordTotal(ctx context.Context, q Querier, recordID int64, total int) error {
	_, err := q.ExecContext(ctx,
		`UPDATE score_records SET total_score = $1, last_updated = now() WHERE id = $2`,
		total, recordID)
	return err
}

// LockRecord serializes insert-plus-recalculate per record. The lock is
// transaction-scoped and released on commit or rollback.
func LockRecord(ctx context.Context, tx *sql.Tx, recordID int64) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, recordID)
	return err
}
