package jobs_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Tanth170203/EduXtend-sub002/internal/db"
	"github.com/Tanth170203/EduXtend-sub002/internal/jobs"
	"github.com/Tanth170203/EduXtend-sub002/internal/models"
	"github.com/Tanth170203/EduXtend-sub002/internal/scoring"
	"github.com/Tanth170203/EduXtend-sub002/internal/testutil/testdb"
)

func startRollover(t *testing.T) (*testdb.DBHandle, *scoring.Engine, *jobs.Rollover) {
	t.Helper()
	ctx := context.Background()

	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)

	catalog, err := scoring.LoadCatalog(ctx, h.DB)
	if err != nil {
		t.Fatal(err)
	}
	log := zap.NewNop().Sugar()
	engine := scoring.NewEngine(h.DB, catalog, log, time.UTC)
	return h, engine, jobs.NewRollover(h.DB, engine, log, time.UTC)
}

func seedStudent(t *testing.T, database *sql.DB, code string) int64 {
	t.Helper()
	var id int64
	err := database.QueryRow(
		`INSERT INTO students (code, full_name) VALUES ($1, $2) RETURNING id`,
		code, "Student "+code,
	).Scan(&id)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestRollover_NoActiveSemester(t *testing.T) {
	h, _, rollover := startRollover(t)
	ctx := context.Background()

	seedStudent(t, h.DB, "SE001")

	if err := rollover.Run(ctx); err != nil {
		t.Fatalf("tick with no active semester must not fail: %v", err)
	}

	var records int
	if err := h.DB.QueryRow(`SELECT COUNT(*) FROM score_records`).Scan(&records); err != nil {
		t.Fatal(err)
	}
	if records != 0 {
		t.Fatalf("nothing may be scored without an active semester, got %d records", records)
	}
}

func TestRollover_TransitionAppliedOnce(t *testing.T) {
	h, _, rollover := startRollover(t)
	ctx := context.Background()
	now := time.Now().UTC()

	oldID, err := db.CreateSemester(ctx, h.DB, models.Semester{
		Name: "Fall 2025", StartDate: now.AddDate(0, -8, 0), EndDate: now.AddDate(0, -3, 0), IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	newID, err := db.CreateSemester(ctx, h.DB, models.Semester{
		Name: "Spring 2026", StartDate: now.AddDate(0, -2, 0), EndDate: now.AddDate(0, 3, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := rollover.Run(ctx); err != nil {
		t.Fatal(err)
	}

	active, err := db.GetActiveSemester(ctx, h.DB)
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != newID {
		t.Fatalf("want semester %d active, got %d", newID, active.ID)
	}
	old, err := db.GetSemesterByID(ctx, h.DB, oldID)
	if err != nil {
		t.Fatal(err)
	}
	if old.IsActive {
		t.Fatal("former semester must be deactivated")
	}

	// a second tick finds no pending successor and changes nothing
	if err := rollover.Run(ctx); err != nil {
		t.Fatal(err)
	}
	active, err = db.GetActiveSemester(ctx, h.DB)
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != newID {
		t.Fatalf("transition must apply exactly once, active is now %d", active.ID)
	}
}

func TestRollover_SeedsAndScansIdempotently(t *testing.T) {
	h, engine, rollover := startRollover(t)
	ctx := context.Background()
	now := time.Now().UTC()

	semID, err := db.CreateSemester(ctx, h.DB, models.Semester{
		Name: "Spring 2026", StartDate: now.AddDate(0, -2, 0), EndDate: now.AddDate(0, 3, 0), IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	st1 := seedStudent(t, h.DB, "SE101")
	st2 := seedStudent(t, h.DB, "SE102")

	var actID int64
	endTime := now.AddDate(0, 0, -7)
	err = h.DB.QueryRow(`
INSERT INTO activities (type, club_id, end_time, nominal_movement_point, status)
VALUES ('volunteer', 5, $1, 4, $2)
RETURNING id`, endTime, models.ActivityCompleted).Scan(&actID)
	if err != nil {
		t.Fatal(err)
	}
	for _, sid := range []int64{st1, st2} {
		if _, err := h.DB.Exec(
			`INSERT INTO activity_attendees (activity_id, subject_id, is_present) VALUES ($1, $2, TRUE)`,
			actID, sid); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := h.DB.Exec(
		`INSERT INTO club_memberships (subject_id, club_id, role_in_club, is_active) VALUES ($1, 5, 'president', TRUE)`,
		st1); err != nil {
		t.Fatal(err)
	}

	if err := rollover.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// volunteer attendance 4 + president role 3 for st1, 4 for st2
	view1, err := engine.GetScore(ctx, st1, models.TargetStudent, semID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if view1.Record.TotalScore != 7 {
		t.Fatalf("st1: want 7, got %d", view1.Record.TotalScore)
	}
	view2, err := engine.GetScore(ctx, st2, models.TargetStudent, semID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if view2.Record.TotalScore != 4 {
		t.Fatalf("st2: want 4, got %d", view2.Record.TotalScore)
	}

	month := int(endTime.Month())
	club, err := engine.GetScore(ctx, 5, models.TargetClub, semID, &month)
	if err != nil {
		t.Fatal(err)
	}
	if club.Record.TotalScore != 4 {
		t.Fatalf("club: want 4, got %d", club.Record.TotalScore)
	}

	// rerunning the tick must not double-count anything
	if err := rollover.Run(ctx); err != nil {
		t.Fatal(err)
	}
	view1, err = engine.GetScore(ctx, st1, models.TargetStudent, semID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if view1.Record.TotalScore != 7 {
		t.Fatalf("rescan double-counted st1: %d", view1.Record.TotalScore)
	}
	club, err = engine.GetScore(ctx, 5, models.TargetClub, semID, &month)
	if err != nil {
		t.Fatal(err)
	}
	if club.Record.TotalScore != 4 {
		t.Fatalf("rescan double-counted the club: %d", club.Record.TotalScore)
	}
}
