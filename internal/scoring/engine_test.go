package scoring_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Tanth170203/EduXtend-sub002/internal/db"
	"github.com/Tanth170203/EduXtend-sub002/internal/models"
	"github.com/Tanth170203/EduXtend-sub002/internal/scoring"
	"github.com/Tanth170203/EduXtend-sub002/internal/testutil/testdb"
)

func startEngine(t *testing.T) (*testdb.DBHandle, *scoring.Engine, int64) {
	t.Helper()
	ctx := context.Background()

	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)

	semID, err := db.CreateSemester(ctx, h.DB, models.Semester{
		Name:      "Spring 2026",
		StartDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	})
	if err != nil {
		t.Fatal(err)
	}

	catalog, err := scoring.LoadCatalog(ctx, h.DB)
	if err != nil {
		t.Fatal(err)
	}
	engine := scoring.NewEngine(h.DB, catalog, zap.NewNop().Sugar(), time.UTC)
	return h, engine, semID
}

func criterionID(t *testing.T, database *sql.DB, title string) int64 {
	t.Helper()
	var id int64
	if err := database.QueryRow(`SELECT id FROM criteria WHERE title = $1`, title).Scan(&id); err != nil {
		t.Fatalf("criterion %q: %v", title, err)
	}
	return id
}

func seedActivity(t *testing.T, database *sql.DB, a models.Activity) int64 {
	t.Helper()
	var id int64
	err := database.QueryRow(`
INSERT INTO activities (type, club_id, collaborating_club_id, end_time, nominal_movement_point, nominal_collab_point, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		a.Type, a.ClubID, a.CollaboratingClubID, a.EndTime, a.NominalMovementPoint, a.NominalCollabPoint, a.Status,
	).Scan(&id)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestGetOrCreateRecord_NoDuplicates(t *testing.T) {
	_, engine, semID := startEngine(t)
	ctx := context.Background()

	first, err := engine.GetOrCreateRecord(ctx, 42, models.TargetStudent, semID, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.GetOrCreateRecord(ctx, 42, models.TargetStudent, semID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("duplicate record created: %d vs %d", first.ID, second.ID)
	}
	if first.TotalScore != 0 {
		t.Fatalf("fresh record must start at zero, got %d", first.TotalScore)
	}

	month := 3
	club, err := engine.GetOrCreateRecord(ctx, 42, models.TargetClub, semID, &month)
	if err != nil {
		t.Fatal(err)
	}
	if club.ID == first.ID {
		t.Fatal("club record must be distinct from the student record")
	}
}

func TestManualScoreLifecycle(t *testing.T) {
	h, engine, semID := startEngine(t)
	ctx := context.Background()

	compID := criterionID(t, h.DB, "Academic competition entry")
	actor := int64(7)

	// group Academic max 20: 15 then 10 credit 15 then 5
	res, err := engine.AwardManualScore(ctx, scoring.ManualAwardInput{
		SubjectID: 1, TargetType: models.TargetStudent, SemesterID: semID,
		CriterionID: compID, Amount: 15, Note: "regional olympiad", ActorID: &actor,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Credited != 15 || res.NewTotal != 15 {
		t.Fatalf("first award: credited %d total %d", res.Credited, res.NewTotal)
	}

	res, err = engine.AwardManualScore(ctx, scoring.ManualAwardInput{
		SubjectID: 1, TargetType: models.TargetStudent, SemesterID: semID,
		CriterionID: compID, Amount: 10, Note: "national olympiad", ActorID: &actor,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Credited != 5 || res.NewTotal != 20 {
		t.Fatalf("clamped award: credited %d total %d", res.Credited, res.NewTotal)
	}
	if res.Note == "" {
		t.Fatal("clamp must be surfaced in the result note")
	}

	// out-of-range input is rejected before any write
	_, err = engine.AwardManualScore(ctx, scoring.ManualAwardInput{
		SubjectID: 1, TargetType: models.TargetStudent, SemesterID: semID,
		CriterionID: compID, Amount: 99, ActorID: &actor,
	})
	if !scoring.IsValidation(err) {
		t.Fatalf("want ValidationError, got %v", err)
	}

	view, err := engine.GetScore(ctx, 1, models.TargetStudent, semID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Details) != 2 || view.Record.TotalScore != 20 {
		t.Fatalf("want 2 details and total 20, got %d details total %d", len(view.Details), view.Record.TotalScore)
	}
}

func TestUpdateAndDeleteManualScore(t *testing.T) {
	h, engine, semID := startEngine(t)
	ctx := context.Background()

	resID := criterionID(t, h.DB, "Research publication")
	res, err := engine.AwardManualScore(ctx, scoring.ManualAwardInput{
		SubjectID: 2, TargetType: models.TargetStudent, SemesterID: semID,
		CriterionID: resID, Amount: 10, Note: "journal paper",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.NewTotal != 10 {
		t.Fatalf("want total 10, got %d", res.NewTotal)
	}

	// 10 → 4 moves the total by -6
	total, err := engine.UpdateManualScore(ctx, res.DetailID, 4, "score corrected")
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Fatalf("want total 4 after edit, got %d", total)
	}

	// the same edit on an auto line fails and leaves the total unchanged
	detail, err := db.GetDetailByID(ctx, h.DB, res.DetailID)
	if err != nil {
		t.Fatal(err)
	}
	autoID, err := db.InsertDetail(ctx, h.DB, models.ScoreDetail{
		RecordID: detail.RecordID, CriterionID: resID, Score: 3,
		ScoreType: models.ScoreAuto, AwardedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.RecalculateTotal(ctx, detail.RecordID); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.UpdateManualScore(ctx, autoID, 1, ""); !errors.Is(err, scoring.ErrInvalidOperation) {
		t.Fatalf("editing auto line: want ErrInvalidOperation, got %v", err)
	}
	if _, err := engine.DeleteManualScore(ctx, autoID); !errors.Is(err, scoring.ErrInvalidOperation) {
		t.Fatalf("deleting auto line: want ErrInvalidOperation, got %v", err)
	}
	after, err := engine.RecalculateTotal(ctx, detail.RecordID)
	if err != nil {
		t.Fatal(err)
	}
	if after != 7 {
		t.Fatalf("total must be unchanged at 7, got %d", after)
	}

	// deleting the manual line leaves the ledger as if it never existed
	total, err = engine.DeleteManualScore(ctx, res.DetailID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("want total 3 after delete, got %d", total)
	}

	if _, err := engine.DeleteManualScore(ctx, res.DetailID); !errors.Is(err, scoring.ErrNotFound) {
		t.Fatalf("deleting a missing detail: want ErrNotFound, got %v", err)
	}
}

func TestActivityAwards_WeeklyCap(t *testing.T) {
	h, engine, _ := startEngine(t)
	ctx := context.Background()

	clubID := int64(10)
	// Mon / Wed / Fri of the same ISO week, nominal 3 each
	days := []time.Time{
		time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC),
	}
	want := []int{3, 2, 0}

	for i, end := range days {
		act := models.Activity{
			Type: "club_meeting", ClubID: clubID, EndTime: end,
			NominalMovementPoint: 3, Status: models.ActivityCompleted,
		}
		act.ID = seedActivity(t, h.DB, act)

		award, err := engine.AwardForActivityCompletion(ctx, act)
		if err != nil {
			t.Fatal(err)
		}
		if award.Organizer == nil || award.Organizer.Credited != want[i] {
			t.Fatalf("activity %d: want credited %d, got %+v", i+1, want[i], award.Organizer)
		}
	}
}

func TestActivityAwards_AttendeesAndCollaborator(t *testing.T) {
	h, engine, semID := startEngine(t)
	ctx := context.Background()

	collab := int64(21)
	collabPts := 4
	act := models.Activity{
		Type: "seminar", ClubID: 20, CollaboratingClubID: &collab,
		EndTime:              time.Date(2026, 4, 14, 9, 0, 0, 0, time.UTC),
		NominalMovementPoint: 6, NominalCollabPoint: &collabPts,
		Status: models.ActivityCompleted,
	}
	act.ID = seedActivity(t, h.DB, act)
	act.AttendeeSubjectIDs = []int64{101, 102}

	award, err := engine.AwardForActivityCompletion(ctx, act)
	if err != nil {
		t.Fatal(err)
	}
	if award.Organizer == nil || award.Organizer.Credited != 5 {
		// weekly ceiling 5 cuts the nominal 6
		t.Fatalf("organizer: %+v", award.Organizer)
	}
	if award.Collaborator == nil || award.Collaborator.Credited != 4 {
		// the collaborating club accumulates against its own weekly window
		t.Fatalf("collaborator: %+v", award.Collaborator)
	}
	for _, id := range act.AttendeeSubjectIDs {
		res := award.Attendees[id]
		if res == nil || res.Credited != 5 {
			// attendance criterion max 5 cuts the nominal 6
			t.Fatalf("attendee %d: %+v", id, res)
		}
		view, err := engine.GetScore(ctx, id, models.TargetStudent, semID, nil)
		if err != nil {
			t.Fatal(err)
		}
		if view.Record.TotalScore != 5 {
			t.Fatalf("attendee %d total: %d", id, view.Record.TotalScore)
		}
	}
}

func TestRescanActivity_Deduplicates(t *testing.T) {
	h, engine, semID := startEngine(t)
	ctx := context.Background()

	act := models.Activity{
		Type: "workshop", ClubID: 30,
		EndTime:              time.Date(2026, 2, 10, 16, 0, 0, 0, time.UTC),
		NominalMovementPoint: 3, Status: models.ActivityCompleted,
	}
	act.ID = seedActivity(t, h.DB, act)
	act.AttendeeSubjectIDs = []int64{201}

	first, err := engine.RescanActivity(ctx, act)
	if err != nil {
		t.Fatal(err)
	}
	if first.Organizer == nil || first.Attendees[201] == nil {
		t.Fatalf("first rescan must award: %+v", first)
	}

	second, err := engine.RescanActivity(ctx, act)
	if err != nil {
		t.Fatal(err)
	}
	if second.Organizer != nil || second.Attendees[201] != nil {
		t.Fatalf("second rescan must be suppressed: %+v", second)
	}

	month := 2
	view, err := engine.GetScore(ctx, 30, models.TargetClub, semID, &month)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Details) != 1 || view.Record.TotalScore != 3 {
		t.Fatalf("want a single credited line of 3, got %d lines total %d", len(view.Details), view.Record.TotalScore)
	}
}

func TestConcurrentManualAwards(t *testing.T) {
	h, engine, semID := startEngine(t)
	ctx := context.Background()

	attID := criterionID(t, h.DB, "Activity attendance")
	actor := int64(7)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		for _, student := range []int64{301, 302} {
			go func(studentID int64) {
				defer wg.Done()
				_, err := engine.AwardManualScore(ctx, scoring.ManualAwardInput{
					SubjectID: studentID, TargetType: models.TargetStudent, SemesterID: semID,
					CriterionID: attID, Amount: 1, ActorID: &actor,
				})
				if err != nil {
					t.Error(err)
				}
			}(student)
		}
	}
	wg.Wait()

	for _, student := range []int64{301, 302} {
		view, err := engine.GetScore(ctx, student, models.TargetStudent, semID, nil)
		if err != nil {
			t.Fatal(err)
		}
		if view.Record.TotalScore != 50 {
			t.Fatalf("student %d: want 50, got %d", student, view.Record.TotalScore)
		}
		sum := 0
		for _, d := range view.Details {
			sum += d.Score
		}
		if sum != view.Record.TotalScore {
			t.Fatalf("cached total %d diverges from ledger sum %d", view.Record.TotalScore, sum)
		}
	}
}
