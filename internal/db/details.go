package db

import (
	"context"
	"time"

	"github.com/Tanth170203/EduXtend-sub002/internal/models"
)

func InsertDetail(ctx context.Context, q Querier, d models.ScoreDetail) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
INSERT INTO score_details (record_id, criterion_id, source_activity_id, score, score_type, note, created_by, awarded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		d.RecordID, d.CriterionID, d.SourceActivityID, d.Score, d.ScoreType, d.Note, d.CreatedBy, d.AwardedAt,
	).Scan(&id)
	return id, err
}

func GetDetailByID(ctx context.Context, q Querier, id int64) (*models.ScoreDetail, error) {
	var d models.ScoreDetail
	err := q.QueryRowContext(ctx, `
SELECT id, record_id, criterion_id, source_activity_id, score, score_type, note, created_by, awarded_at
FROM score_details WHERE id = $1`, id,
	).Scan(&d.ID, &d.RecordID, &d.CriterionID, &d.SourceActivityID, &d.Score, &d.ScoreType, &d.Note, &d.CreatedBy, &d.AwardedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func UpdateDetail(ctx context.Context, q Querier, id int64, score int, note *string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE score_details SET score = $1, note = $2 WHERE id = $3`, score, note, id)
	return err
}

func DeleteDetail(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM score_details WHERE id = $1`, id)
	return err
}

func ListDetailsByRecord(ctx context.Context, q Querier, recordID int64) ([]models.ScoreDetailWithCriterion, error) {
	rows, err := q.QueryContext(ctx, `
SELECT d.id, d.record_id, d.criterion_id, d.source_activity_id, d.score, d.score_type, d.note, d.created_by, d.awarded_at,
       c.title, g.id, g.name
FROM score_details d
JOIN criteria c ON c.id = d.criterion_id
JOIN criterion_groups g ON g.id = c.group_id
WHERE d.record_id = $1
ORDER BY d.awarded_at, d.id`, recordID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ScoreDetailWithCriterion
	for rows.Next() {
		var d models.ScoreDetailWithCriterion
		if err := rows.Scan(&d.ID, &d.RecordID, &d.CriterionID, &d.SourceActivityID, &d.Score, &d.ScoreType, &d.Note, &d.CreatedBy, &d.AwardedAt,
			&d.CriterionTitle, &d.GroupID, &d.GroupName); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SumDetails is the single source of truth for a record's total.
func SumDetails(ctx context.Context, q Querier, recordID int64) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(score), 0) FROM score_details WHERE record_id = $1`, recordID,
	).Scan(&sum)
	return sum, err
}

// GroupTotal sums a record's existing lines whose criterion belongs to the
// given group. excludeDetailID skips the line being edited.
func GroupTotal(ctx context.Context, q Querier, recordID, groupID int64, excludeDetailID *int64) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx, `
SELECT COALESCE(SUM(d.score), 0)
FROM score_details d
JOIN criteria c ON c.id = d.criterion_id
WHERE d.record_id = $1 AND c.group_id = $2 AND ($3::bigint IS NULL OR d.id <> $3)`,
		recordID, groupID, excludeDetailID,
	).Scan(&sum)
	return sum, err
}

// ClubWeekTotal sums a club's lines for one criterion group across the ISO
// week [weekStart, weekEnd), keyed by the source activity's end time. A week
// can straddle two club months, so this crosses record boundaries.
func ClubWeekTotal(ctx context.Context, q Querier, clubID, groupID int64, weekStart, weekEnd time.Time) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx, `
SELECT COALESCE(SUM(d.score), 0)
FROM score_details d
JOIN score_records r ON r.id = d.record_id
JOIN criteria c ON c.id = d.criterion_id
JOIN activities a ON a.id = d.source_activity_id
WHERE r.subject_id = $1 AND r.target_type = 'club' AND c.group_id = $2
  AND a.end_time >= $3 AND a.end_time < $4`,
		clubID, groupID, weekStart, weekEnd,
	).Scan(&sum)
	return sum, err
}

// HasActivityAward reports whether the record already holds a line for this
// criterion sourced from an activity ending on the same date. Used by the
// rescan path to tolerate repeated scans.
func HasActivityAward(ctx context.Context, q Querier, recordID, criterionID int64, endDate time.Time) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1
    FROM score_details d
    JOIN activities a ON a.id = d.source_activity_id
    WHERE d.record_id = $1 AND d.criterion_id = $2 AND a.end_time::date = $3::date
)`, recordID, criterionID, endDate,
	).Scan(&exists)
	return exists, err
}

// HasRoleAwardInMonth reports whether the record already holds a line for this
// criterion awarded within the calendar month containing at.
func HasRoleAwardInMonth(ctx context.Context, q Querier, recordID, criterionID int64, at time.Time) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1 FROM score_details
    WHERE record_id = $1 AND criterion_id = $2
      AND date_trunc('month', awarded_at) = date_trunc('month', $3::timestamptz)
)`, recordID, criterionID, at,
	).Scan(&exists)
	return exists, err
}
