package models

import "time"

// Activity is owned by the activity workflow; the engine only reads it.
type Activity struct {
	ID                   int64     `db:"id"`
	Type                 string    `db:"type"`
	ClubID               int64     `db:"club_id"`
	CollaboratingClubID  *int64    `db:"collaborating_club_id"`
	EndTime              time.Time `db:"end_time"`
	NominalMovementPoint int       `db:"nominal_movement_point"`
	NominalCollabPoint   *int      `db:"nominal_collab_point"`
	Status               string    `db:"status"`
	AttendeeSubjectIDs   []int64   `db:"-"`
}

const ActivityCompleted = "completed"

// ClubMembership is a read-only snapshot row from the membership service.
type ClubMembership struct {
	SubjectID  int64  `db:"subject_id"`
	ClubID     int64  `db:"club_id"`
	RoleInClub string `db:"role_in_club"`
	IsActive   bool   `db:"is_active"`
}
