package scoring

import (
	"fmt"

	"github.com/Tanth170203/EduXtend-sub002/internal/models"
)

// CapInput carries everything the cap evaluator needs; the evaluator itself
// never touches storage.
type CapInput struct {
	Nominal   int
	Criterion models.Criterion
	Group     models.CriterionGroup

	// CategoryTotal is the record's existing sum for the criterion's group.
	CategoryTotal int

	// WeekTotal is the club's existing same-group sum in the ISO week of the
	// triggering activity. Only read when WeeklyApplies is set.
	WeekTotal     int
	WeeklyApplies bool
}

// ComputeAllowedScore applies the caps in fixed order: per-criterion, then
// category, then the weekly club-activity ceiling. It returns the creditable
// amount and a note describing any clamp, empty when nothing was cut.
func ComputeAllowedScore(in CapInput) (int, string) {
	allowed := in.Nominal
	note := ""

	if allowed > in.Criterion.MaxScore {
		allowed = in.Criterion.MaxScore
		note = fmt.Sprintf("capped at criterion max %d", in.Criterion.MaxScore)
	}

	if in.CategoryTotal+allowed > in.Group.MaxScore {
		allowed = in.Group.MaxScore - in.CategoryTotal
		if allowed < 0 {
			allowed = 0
		}
		note = fmt.Sprintf("category %q cap %d reached (%d already awarded)", in.Group.Name, in.Group.MaxScore, in.CategoryTotal)
	}

	if in.WeeklyApplies && in.Criterion.WeeklyCapped {
		if in.WeekTotal+allowed > models.ClubWeeklyCap {
			allowed = models.ClubWeeklyCap - in.WeekTotal
			if allowed < 0 {
				allowed = 0
			}
			note = fmt.Sprintf("weekly cap %d reached (%d already awarded this week)", models.ClubWeeklyCap, in.WeekTotal)
		}
	}

	return allowed, note
}

// ValidateManualRange rejects a manual amount outside the criterion's
// [min, max] before any write happens.
func ValidateManualRange(cr models.Criterion, amount int) error {
	if amount < cr.MinScore || amount > cr.MaxScore {
		return &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("%d outside [%d, %d] for criterion %q", amount, cr.MinScore, cr.MaxScore, cr.Title),
		}
	}
	return nil
}

// ApplyGlobalCap clamps a recalculated ledger sum to the record's global
// ceiling (140 per student semester, 100 per club month).
func ApplyGlobalCap(record models.ScoreRecord, sum int) int {
	if cap := record.GlobalCap(); sum > cap {
		return cap
	}
	if sum < 0 {
		return 0
	}
	return sum
}
