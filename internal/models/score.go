package models

import "time"

type ScoreType string

const (
	ScoreAuto   ScoreType = "auto"
	ScoreManual ScoreType = "manual"
)

// Global accumulation caps. The cached total of a record never exceeds these.
const (
	StudentGlobalCap   = 140
	ClubMonthGlobalCap = 100
	ClubWeeklyCap      = 5
)

// ScoreRecord is the cached aggregate per (subject, semester) for students and
// per (subject, semester, month) for clubs. TotalScore is derived from the
// detail ledger and written only by recalculation.
type ScoreRecord struct {
	ID          int64      `db:"id"`
	SubjectID   int64      `db:"subject_id"`
	TargetType  TargetType `db:"target_type"`
	SemesterID  int64      `db:"semester_id"`
	Month       *int       `db:"month"`
	TotalScore  int        `db:"total_score"`
	LastUpdated time.Time  `db:"last_updated"`
}

func (r ScoreRecord) GlobalCap() int {
	if r.TargetType == TargetClub {
		return ClubMonthGlobalCap
	}
	return StudentGlobalCap
}

// ScoreDetail is one append-only ledger line. Auto lines are immutable;
// manual lines may be edited or deleted by an admin.
type ScoreDetail struct {
	ID               int64     `db:"id"`
	RecordID         int64     `db:"record_id"`
	CriterionID      int64     `db:"criterion_id"`
	SourceActivityID *int64    `db:"source_activity_id"`
	Score            int       `db:"score"`
	ScoreType        ScoreType `db:"score_type"`
	Note             *string   `db:"note"`
	CreatedBy        *int64    `db:"created_by"`
	AwardedAt        time.Time `db:"awarded_at"`
}

type ScoreDetailWithCriterion struct {
	ScoreDetail
	CriterionTitle string `db:"criterion_title"`
	GroupID        int64  `db:"group_id"`
	GroupName      string `db:"group_name"`
}
