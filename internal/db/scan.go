package db

import (
	"context"
	"time"

	"github.com/Tanth170203/EduXtend-sub002/internal/models"
)

// ListCompletedActivities returns completed activities with a nonzero movement
// point ending within [from, to), for the rollover catch-up scan.
func ListCompletedActivities(ctx context.Context, q Querier, from, to time.Time) ([]models.Activity, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, type, club_id, collaborating_club_id, end_time, nominal_movement_point, nominal_collab_point, status
FROM activities
WHERE status = $1 AND nominal_movement_point > 0 AND end_time >= $2 AND end_time < $3
ORDER BY end_time`, models.ActivityCompleted, from, to)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.Type, &a.ClubID, &a.CollaboratingClubID, &a.EndTime,
			&a.NominalMovementPoint, &a.NominalCollabPoint, &a.Status); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func GetActivityByID(ctx context.Context, q Querier, id int64) (*models.Activity, error) {
	row := q.QueryRowContext(ctx, `
SELECT id, type, club_id, collaborating_club_id, end_time, nominal_movement_point, nominal_collab_point, status
FROM activities WHERE id = $1`, id)
	var a models.Activity
	if err := row.Scan(&a.ID, &a.Type, &a.ClubID, &a.CollaboratingClubID, &a.EndTime,
		&a.NominalMovementPoint, &a.NominalCollabPoint, &a.Status); err != nil {
		return nil, err
	}
	return &a, nil
}

func ListPresentAttendees(ctx context.Context, q Querier, activityID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT subject_id FROM activity_attendees WHERE activity_id = $1 AND is_present`, activityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func ListActiveMemberships(ctx context.Context, q Querier) ([]models.ClubMembership, error) {
	rows, err := q.QueryContext(ctx, `
SELECT subject_id, club_id, role_in_club, is_active
FROM club_memberships WHERE is_active
ORDER BY club_id, subject_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ClubMembership
	for rows.Next() {
		var m models.ClubMembership
		if err := rows.Scan(&m.SubjectID, &m.ClubID, &m.RoleInClub, &m.IsActive); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func ListActiveStudentIDs(ctx context.Context, q Querier) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM students WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
