package models

type TargetType string

const (
	TargetStudent TargetType = "student"
	TargetClub    TargetType = "club"
)

type SignalKind string

const (
	SignalActivityType     SignalKind = "activity_type"
	SignalClubRole         SignalKind = "club_role"
	SignalEvidenceCategory SignalKind = "evidence_category"
)

type CriterionGroup struct {
	ID         int64      `db:"id"`
	Name       string     `db:"name"`
	TargetType TargetType `db:"target_type"`
	MaxScore   int        `db:"max_score"`
}

type Criterion struct {
	ID           int64      `db:"id"`
	GroupID      int64      `db:"group_id"`
	Title        string     `db:"title"`
	MinScore     int        `db:"min_score"`
	MaxScore     int        `db:"max_score"`
	TargetType   TargetType `db:"target_type"`
	WeeklyCapped bool       `db:"weekly_capped"`
	IsActive     bool       `db:"is_active"`
}

// CriterionMapping is one row of the signal→criterion lookup table that
// replaces hard-coded id switches.
type CriterionMapping struct {
	ID          int64      `db:"id"`
	SignalKind  SignalKind `db:"signal_kind"`
	SignalValue string     `db:"signal_value"`
	TargetType  TargetType `db:"target_type"`
	CriterionID int64      `db:"criterion_id"`
}
