package scoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Tanth170203/EduXtend-sub002/internal/db"
	"github.com/Tanth170203/EduXtend-sub002/internal/metrics"
	"github.com/Tanth170203/EduXtend-sub002/internal/models"
)

// Engine orchestrates awards over the append-only ledger. Every award runs as
// one transaction holding the per-record advisory lock across the detail
// insert and the total recalculation, so concurrent awards against the same
// record serialize while different records proceed in parallel.
type Engine struct {
	db      *sql.DB
	catalog *Catalog
	log     *zap.SugaredLogger
	loc     *time.Location
}

func NewEngine(database *sql.DB, catalog *Catalog, log *zap.SugaredLogger, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{db: database, catalog: catalog, log: log, loc: loc}
}

func (e *Engine) Catalog() *Catalog { return e.catalog }

type AwardResult struct {
	DetailID  int64
	Requested int
	Credited  int
	Note      string
	NewTotal  int
}

type ActivityAward struct {
	Organizer    *AwardResult
	Collaborator *AwardResult
	Attendees    map[int64]*AwardResult
}

type ManualAwardInput struct {
	SubjectID   int64
	TargetType  models.TargetType
	SemesterID  int64 // 0 means the active semester
	Month       *int
	CriterionID int64
	Amount      int
	Note        string
	ActorID     *int64
}

type ScoreView struct {
	Record  models.ScoreRecord
	Details []models.ScoreDetailWithCriterion
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func (e *Engine) activeSemester(ctx context.Context) (*models.Semester, error) {
	s, err := db.GetActiveSemester(ctx, e.db)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no active semester: %w", ErrInvalidOperation)
	}
	return s, err
}

// GetOrCreateRecord looks up, then lazily creates, the cached aggregate for
// (subject, semester[, month]). It never duplicates.
func (e *Engine) GetOrCreateRecord(ctx context.Context, subjectID int64, target models.TargetType, semesterID int64, month *int) (*models.ScoreRecord, error) {
	if target == models.TargetStudent {
		month = nil
	}
	return db.GetOrCreateRecord(ctx, e.db, subjectID, target, semesterID, month)
}

// GetScore returns the cached record with its full detail ledger.
func (e *Engine) GetScore(ctx context.Context, subjectID int64, target models.TargetType, semesterID int64, month *int) (*ScoreView, error) {
	if target == models.TargetStudent {
		month = nil
	}
	record, err := db.GetRecord(ctx, e.db, subjectID, target, semesterID, month)
	if err != nil {
		return nil, notFound(err, "score record")
	}
	details, err := db.ListDetailsByRecord(ctx, e.db, record.ID)
	if err != nil {
		return nil, err
	}
	return &ScoreView{Record: *record, Details: details}, nil
}

// RecalculateTotal re-sums the ledger, applies the global cap and persists the
// result. This is the only path that writes total_score.
func (e *Engine) RecalculateTotal(ctx context.Context, recordID int64) (int, error) {
	record, err := db.GetRecordByID(ctx, e.db, recordID)
	if err != nil {
		return 0, notFound(err, "score record")
	}

	var total int
	err = e.inRecordTx(ctx, recordID, func(tx *sql.Tx) error {
		total, err = e.recalcLocked(ctx, tx, *record)
		return err
	})
	return total, err
}

// AwardForActivityCompletion handles the transition-to-completed signal: it
// awards the organizing club, the collaborating club when present, and every
// present attendee. The caller is trusted to invoke it once per transition.
func (e *Engine) AwardForActivityCompletion(ctx context.Context, act models.Activity) (*ActivityAward, error) {
	return e.awardActivity(ctx, act, false)
}

// RescanActivity is the catch-up variant: identical semantics, but each award
// is guarded by a (record, criterion, activity end-date) existence check so
// repeated scans never double-credit.
func (e *Engine) RescanActivity(ctx context.Context, act models.Activity) (*ActivityAward, error) {
	return e.awardActivity(ctx, act, true)
}

func (e *Engine) awardActivity(ctx context.Context, act models.Activity, dedupe bool) (*ActivityAward, error) {
	sem, err := e.activeSemester(ctx)
	if err != nil {
		return nil, err
	}
	end := act.EndTime.In(e.loc)
	month := MonthOf(end)

	out := &ActivityAward{Attendees: make(map[int64]*AwardResult)}

	// Organizing club.
	if cr, err := e.catalog.ResolveCriterion(models.TargetClub, models.SignalActivityType, act.Type); err == nil {
		res, err := e.awardAutoClub(ctx, act.ClubID, sem.ID, month, cr, act.NominalMovementPoint, &act, dedupe)
		if err != nil {
			return nil, fmt.Errorf("award club %d for activity %d: %w", act.ClubID, act.ID, err)
		}
		out.Organizer = res
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Collaborating club, same criterion family, its own nominal points.
	if act.CollaboratingClubID != nil && act.NominalCollabPoint != nil && *act.NominalCollabPoint > 0 {
		if cr, err := e.catalog.ResolveCriterion(models.TargetClub, models.SignalActivityType, act.Type); err == nil {
			res, err := e.awardAutoClub(ctx, *act.CollaboratingClubID, sem.ID, month, cr, *act.NominalCollabPoint, &act, dedupe)
			if err != nil {
				return nil, fmt.Errorf("award collaborator %d for activity %d: %w", *act.CollaboratingClubID, act.ID, err)
			}
			out.Collaborator = res
		}
	}

	// Present attendees. An unmapped activity type awards zero and moves on.
	cr, err := e.catalog.ResolveCriterion(models.TargetStudent, models.SignalActivityType, act.Type)
	if errors.Is(err, ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, studentID := range act.AttendeeSubjectIDs {
		record, err := db.GetOrCreateRecord(ctx, e.db, studentID, models.TargetStudent, sem.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("record for student %d: %w", studentID, err)
		}
		res, err := e.awardAuto(ctx, *record, cr, act.NominalMovementPoint, &act, dedupe)
		if err != nil {
			return nil, fmt.Errorf("award student %d for activity %d: %w", studentID, act.ID, err)
		}
		if res != nil {
			out.Attendees[studentID] = res
		}
	}
	return out, nil
}

func (e *Engine) awardAutoClub(ctx context.Context, clubID, semesterID int64, month int, cr models.Criterion, nominal int, act *models.Activity, dedupe bool) (*AwardResult, error) {
	record, err := db.GetOrCreateRecord(ctx, e.db, clubID, models.TargetClub, semesterID, &month)
	if err != nil {
		return nil, err
	}
	return e.awardAuto(ctx, *record, cr, nominal, act, dedupe)
}

// awardAuto appends one auto ledger line and recalculates, all under the
// record's advisory lock. Returns nil when the dedupe guard suppressed it.
func (e *Engine) awardAuto(ctx context.Context, record models.ScoreRecord, cr models.Criterion, nominal int, act *models.Activity, dedupe bool) (*AwardResult, error) {
	group, err := e.catalog.Group(cr.GroupID)
	if err != nil {
		return nil, err
	}

	var result *AwardResult
	err = e.inRecordTx(ctx, record.ID, func(tx *sql.Tx) error {
		if dedupe && act != nil {
			seen, err := db.HasActivityAward(ctx, tx, record.ID, cr.ID, act.EndTime)
			if err != nil {
				return err
			}
			if seen {
				return nil
			}
		}

		in := CapInput{Nominal: nominal, Criterion: cr, Group: group}
		in.CategoryTotal, err = db.GroupTotal(ctx, tx, record.ID, group.ID, nil)
		if err != nil {
			return err
		}
		if cr.WeeklyCapped && record.TargetType == models.TargetClub && act != nil {
			weekStart, weekEnd := WeekBounds(act.EndTime.In(e.loc))
			in.WeekTotal, err = db.ClubWeekTotal(ctx, tx, record.SubjectID, group.ID, weekStart, weekEnd)
			if err != nil {
				return err
			}
			in.WeeklyApplies = true
		}
		allowed, note := ComputeAllowedScore(in)

		detail := models.ScoreDetail{
			RecordID:    record.ID,
			CriterionID: cr.ID,
			Score:       allowed,
			ScoreType:   models.ScoreAuto,
			AwardedAt:   time.Now().In(e.loc),
		}
		if act != nil {
			detail.SourceActivityID = &act.ID
		}
		if note != "" {
			detail.Note = &note
		}
		detailID, err := db.InsertDetail(ctx, tx, detail)
		if err != nil {
			return err
		}
		total, err := e.recalcLocked(ctx, tx, record)
		if err != nil {
			return err
		}

		metrics.AwardsTotal.WithLabelValues(string(models.ScoreAuto)).Inc()
		if allowed < nominal {
			metrics.AwardsClamped.Inc()
		}
		result = &AwardResult{DetailID: detailID, Requested: nominal, Credited: allowed, Note: note, NewTotal: total}
		return nil
	})
	return result, err
}

// AwardForClubRole credits a member's role-based score at most once per
// (member, criterion, calendar month). Returns nil when this month is already
// credited.
func (e *Engine) AwardForClubRole(ctx context.Context, m models.ClubMembership, at time.Time) (*AwardResult, error) {
	cr, err := e.catalog.ResolveCriterion(models.TargetStudent, models.SignalClubRole, m.RoleInClub)
	if err != nil {
		return nil, err
	}
	group, err := e.catalog.Group(cr.GroupID)
	if err != nil {
		return nil, err
	}
	sem, err := e.activeSemester(ctx)
	if err != nil {
		return nil, err
	}
	record, err := db.GetOrCreateRecord(ctx, e.db, m.SubjectID, models.TargetStudent, sem.ID, nil)
	if err != nil {
		return nil, err
	}

	var result *AwardResult
	err = e.inRecordTx(ctx, record.ID, func(tx *sql.Tx) error {
		seen, err := db.HasRoleAwardInMonth(ctx, tx, record.ID, cr.ID, at)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}

		in := CapInput{Nominal: cr.MaxScore, Criterion: cr, Group: group}
		in.CategoryTotal, err = db.GroupTotal(ctx, tx, record.ID, group.ID, nil)
		if err != nil {
			return err
		}
		allowed, note := ComputeAllowedScore(in)

		detail := models.ScoreDetail{
			RecordID:    record.ID,
			CriterionID: cr.ID,
			Score:       allowed,
			ScoreType:   models.ScoreAuto,
			AwardedAt:   at.In(e.loc),
		}
		if note != "" {
			detail.Note = &note
		}
		detailID, err := db.InsertDetail(ctx, tx, detail)
		if err != nil {
			return err
		}
		total, err := e.recalcLocked(ctx, tx, *record)
		if err != nil {
			return err
		}

		metrics.AwardsTotal.WithLabelValues(string(models.ScoreAuto)).Inc()
		result = &AwardResult{DetailID: detailID, Requested: cr.MaxScore, Credited: allowed, Note: note, NewTotal: total}
		return nil
	})
	return result, err
}

// AwardManualScore always appends a new line: repeat awards for repeatable
// criteria are intended. The amount is range-validated up front, then category
// clamping truncates; the adjustment is surfaced in the result, not hidden.
func (e *Engine) AwardManualScore(ctx context.Context, in ManualAwardInput) (*AwardResult, error) {
	cr, err := e.catalog.Criterion(in.CriterionID)
	if err != nil {
		return nil, err
	}
	if cr.TargetType != in.TargetType {
		return nil, &ValidationError{Field: "criterion_id", Reason: fmt.Sprintf("criterion %d targets %s, not %s", cr.ID, cr.TargetType, in.TargetType)}
	}
	if err := ValidateManualRange(cr, in.Amount); err != nil {
		return nil, err
	}
	group, err := e.catalog.Group(cr.GroupID)
	if err != nil {
		return nil, err
	}

	semesterID := in.SemesterID
	if semesterID == 0 {
		sem, err := e.activeSemester(ctx)
		if err != nil {
			return nil, err
		}
		semesterID = sem.ID
	}
	month := in.Month
	if in.TargetType == models.TargetStudent {
		month = nil
	}
	record, err := db.GetOrCreateRecord(ctx, e.db, in.SubjectID, in.TargetType, semesterID, month)
	if err != nil {
		return nil, err
	}

	var result *AwardResult
	err = e.inRecordTx(ctx, record.ID, func(tx *sql.Tx) error {
		capIn := CapInput{Nominal: in.Amount, Criterion: cr, Group: group}
		capIn.CategoryTotal, err = db.GroupTotal(ctx, tx, record.ID, group.ID, nil)
		if err != nil {
			return err
		}
		allowed, clampNote := ComputeAllowedScore(capIn)

		note := in.Note
		if clampNote != "" {
			if note != "" {
				note += "; "
			}
			note += clampNote
		}
		detail := models.ScoreDetail{
			RecordID:    record.ID,
			CriterionID: cr.ID,
			Score:       allowed,
			ScoreType:   models.ScoreManual,
			CreatedBy:   in.ActorID,
			AwardedAt:   time.Now().In(e.loc),
		}
		if note != "" {
			detail.Note = &note
		}
		detailID, err := db.InsertDetail(ctx, tx, detail)
		if err != nil {
			return err
		}
		total, err := e.recalcLocked(ctx, tx, *record)
		if err != nil {
			return err
		}

		metrics.AwardsTotal.WithLabelValues(string(models.ScoreManual)).Inc()
		if allowed < in.Amount {
			metrics.AwardsClamped.Inc()
		}
		result = &AwardResult{DetailID: detailID, Requested: in.Amount, Credited: allowed, Note: clampNote, NewTotal: total}
		return nil
	})
	return result, err
}

// AwardForEvidence is the evidence-approval intake: the approving workflow has
// already resolved the criterion, so the points feed the manual path directly
// with a system (nil) actor.
func (e *Engine) AwardForEvidence(ctx context.Context, studentID, criterionID int64, points int) (*AwardResult, error) {
	return e.AwardManualScore(ctx, ManualAwardInput{
		SubjectID:   studentID,
		TargetType:  models.TargetStudent,
		CriterionID: criterionID,
		Amount:      points,
		Note:        "evidence approval",
	})
}

// UpdateManualScore edits a manual line and recalculates. Auto lines are
// immutable; touching one is ErrInvalidOperation.
func (e *Engine) UpdateManualScore(ctx context.Context, detailID int64, newAmount int, newNote string) (int, error) {
	detail, err := db.GetDetailByID(ctx, e.db, detailID)
	if err != nil {
		return 0, notFound(err, "score detail")
	}
	if detail.ScoreType != models.ScoreManual {
		return 0, fmt.Errorf("detail %d is an automatic award: %w", detailID, ErrInvalidOperation)
	}
	cr, err := e.catalog.Criterion(detail.CriterionID)
	if err != nil {
		return 0, err
	}
	if err := ValidateManualRange(cr, newAmount); err != nil {
		return 0, err
	}
	group, err := e.catalog.Group(cr.GroupID)
	if err != nil {
		return 0, err
	}
	record, err := db.GetRecordByID(ctx, e.db, detail.RecordID)
	if err != nil {
		return 0, notFound(err, "score record")
	}

	var total int
	err = e.inRecordTx(ctx, record.ID, func(tx *sql.Tx) error {
		capIn := CapInput{Nominal: newAmount, Criterion: cr, Group: group}
		capIn.CategoryTotal, err = db.GroupTotal(ctx, tx, record.ID, group.ID, &detailID)
		if err != nil {
			return err
		}
		allowed, clampNote := ComputeAllowedScore(capIn)

		note := newNote
		if clampNote != "" {
			if note != "" {
				note += "; "
			}
			note += clampNote
		}
		var notePtr *string
		if note != "" {
			notePtr = &note
		}
		if err := db.UpdateDetail(ctx, tx, detailID, allowed, notePtr); err != nil {
			return err
		}
		total, err = e.recalcLocked(ctx, tx, *record)
		return err
	})
	return total, err
}

// DeleteManualScore removes a manual line and recalculates, as if the line
// never existed. Auto lines are immutable.
func (e *Engine) DeleteManualScore(ctx context.Context, detailID int64) (int, error) {
	detail, err := db.GetDetailByID(ctx, e.db, detailID)
	if err != nil {
		return 0, notFound(err, "score detail")
	}
	if detail.ScoreType != models.ScoreManual {
		return 0, fmt.Errorf("detail %d is an automatic award: %w", detailID, ErrInvalidOperation)
	}
	record, err := db.GetRecordByID(ctx, e.db, detail.RecordID)
	if err != nil {
		return 0, notFound(err, "score record")
	}

	var total int
	err = e.inRecordTx(ctx, record.ID, func(tx *sql.Tx) error {
		if err := db.DeleteDetail(ctx, tx, detailID); err != nil {
			return err
		}
		total, err = e.recalcLocked(ctx, tx, *record)
		return err
	})
	return total, err
}

// inRecordTx runs fn inside a transaction holding the record's advisory lock.
func (e *Engine) inRecordTx(ctx context.Context, recordID int64, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := db.LockRecord(ctx, tx, recordID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) recalcLocked(ctx context.Context, tx *sql.Tx, record models.ScoreRecord) (int, error) {
	sum, err := db.SumDetails(ctx, tx, record.ID)
	if err != nil {
		return 0, err
	}
	total := ApplyGlobalCap(record, sum)
	if err := db.SetRecordTotal(ctx, tx, record.ID, total); err != nil {
		return 0, err
	}
	metrics.Recalculations.Inc()
	return total, nil
}
