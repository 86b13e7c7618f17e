package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Tanth170203/EduXtend-sub002/internal/ctxutil"
	"github.com/Tanth170203/EduXtend-sub002/internal/db"
	"github.com/Tanth170203/EduXtend-sub002/internal/models"
	"github.com/Tanth170203/EduXtend-sub002/internal/observability"
	"github.com/Tanth170203/EduXtend-sub002/internal/scoring"
)

// Rollover drives the periodic semester bookkeeping: at most one semester
// transition per tick, record seeding, then catch-up scans of completed
// activities and club memberships. Item failures are logged and skipped so a
// single bad row never aborts the rest of the scan.
type Rollover struct {
	db     *sql.DB
	engine *scoring.Engine
	log    *zap.SugaredLogger
	loc    *time.Location

	now func() time.Time // overridable in tests
}

func NewRollover(database *sql.DB, engine *scoring.Engine, log *zap.SugaredLogger, loc *time.Location) *Rollover {
	if loc == nil {
		loc = time.Local
	}
	r := &Rollover{db: database, engine: engine, log: log, loc: loc}
	r.now = func() time.Time { return time.Now().In(loc) }
	return r
}

func (r *Rollover) Run(ctx context.Context) error {
	active, err := r.transition(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}

	r.seedRecords(ctx, active)
	r.scanActivities(ctx, active)
	r.scanMemberships(ctx)
	return nil
}

// transition applies at most one pending semester switch and returns the
// semester that is active afterwards. With no active semester it warns and
// returns nil; the tick then scores nothing.
func (r *Rollover) transition(ctx context.Context) (*models.Semester, error) {
	active, err := db.GetActiveSemester(ctx, r.db)
	if errors.Is(err, sql.ErrNoRows) {
		r.log.Warnw("no active semester, skipping rollover tick")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	next, err := db.FindDueSuccessor(ctx, r.db, active.StartDate, r.now())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return active, nil
	}
	if err := db.SwitchActiveSemester(ctx, r.db, active.ID, next.ID); err != nil {
		return nil, err
	}
	r.log.Infow("semester transition applied", "from", active.Name, "to", next.Name)
	next.IsActive = true
	return next, nil
}

// seedRecords lazily creates a zero-value record for every active student in
// the current semester. Idempotent; existing records are left alone.
func (r *Rollover) seedRecords(ctx context.Context, sem *models.Semester) {
	students, err := db.ListActiveStudentIDs(ctx, r.db)
	if err != nil {
		r.skipItem("seed", err, "semester", sem.ID)
		return
	}
	for _, id := range students {
		if ctx.Err() != nil {
			return
		}
		itemCtx, cancel := ctxutil.WithDBTimeout(ctx)
		_, err := r.engine.GetOrCreateRecord(itemCtx, id, models.TargetStudent, sem.ID, nil)
		cancel()
		if err != nil {
			r.skipItem("seed", err, "student", id, "semester", sem.ID)
		}
	}
}

func (r *Rollover) scanActivities(ctx context.Context, sem *models.Semester) {
	activities, err := db.ListCompletedActivities(ctx, r.db, sem.StartDate, r.now())
	if err != nil {
		r.skipItem("activity_scan", err, "semester", sem.ID)
		return
	}
	for _, act := range activities {
		if ctx.Err() != nil {
			return
		}
		attendees, err := db.ListPresentAttendees(ctx, r.db, act.ID)
		if err != nil {
			r.skipItem("activity_scan", err, "activity", act.ID)
			continue
		}
		act.AttendeeSubjectIDs = attendees
		if _, err := r.engine.RescanActivity(ctx, act); err != nil {
			r.skipItem("activity_scan", err, "activity", act.ID, "club", act.ClubID)
		}
	}
}

func (r *Rollover) scanMemberships(ctx context.Context) {
	memberships, err := db.ListActiveMemberships(ctx, r.db)
	if err != nil {
		r.skipItem("membership_scan", err)
		return
	}
	now := r.now()
	for _, m := range memberships {
		if ctx.Err() != nil {
			return
		}
		_, err := r.engine.AwardForClubRole(ctx, m, now)
		if errors.Is(err, scoring.ErrNotFound) {
			// unmapped role: award zero, continue
			continue
		}
		if err != nil {
			r.skipItem("membership_scan", err, "subject", m.SubjectID, "club", m.ClubID, "role", m.RoleInClub)
		}
	}
}

func (r *Rollover) skipItem(stage string, err error, kv ...any) {
	jobItemErrors.WithLabelValues("rollover").Inc()
	observability.CaptureErr(err)
	args := append([]any{"stage", stage, "err", err}, kv...)
	r.log.Errorw("rollover item skipped", args...)
}
