package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Tanth170203/EduXtend-sub002/internal/ctxutil"
	"github.com/Tanth170203/EduXtend-sub002/internal/db"
	"github.com/Tanth170203/EduXtend-sub002/internal/metrics"
	"github.com/Tanth170203/EduXtend-sub002/internal/models"
	"github.com/Tanth170203/EduXtend-sub002/internal/scoring"
)

type HTTPServer struct {
	srv *http.Server
}

// StartHTTP exposes health, metrics and the admin score surface. The engine
// stays transport-agnostic; this is a thin JSON adapter over it.
func StartHTTP(ctx context.Context, addr string, database *sql.DB, engine *scoring.Engine, log *zap.SugaredLogger) *HTTPServer {
	h := &handlers{engine: engine, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 800*time.Millisecond)
		defer cancel()
		t0 := time.Now()
		if err := database.PingContext(ctx); err != nil {
			http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		metrics.ObserveDBPing(time.Since(t0))
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/semesters", func(w http.ResponseWriter, req *http.Request) {
			semesters, err := db.ListSemesters(req.Context(), database)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, semesters)
		})
		r.Get("/scores/{target}/{subjectID}", h.getScore)
		r.Post("/scores/manual", h.awardManual)
		r.Post("/scores/evidence", h.awardEvidence)
		r.Post("/activities/{activityID}/completed", h.activityCompleted(database))
		r.Patch("/scores/manual/{detailID}", h.updateManual)
		r.Delete("/scores/manual/{detailID}", h.deleteManual)
	})

	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("http server", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	return &HTTPServer{srv: srv}
}

type handlers struct {
	engine *scoring.Engine
	log    *zap.SugaredLogger
}

func (h *handlers) getScore(w http.ResponseWriter, r *http.Request) {
	target := models.TargetType(chi.URLParam(r, "target"))
	if target != models.TargetStudent && target != models.TargetClub {
		writeErr(w, &scoring.ValidationError{Field: "target", Reason: "must be student or club"})
		return
	}
	subjectID, err := strconv.ParseInt(chi.URLParam(r, "subjectID"), 10, 64)
	if err != nil {
		writeErr(w, &scoring.ValidationError{Field: "subjectID", Reason: "not a number"})
		return
	}
	semesterID, err := strconv.ParseInt(r.URL.Query().Get("semester_id"), 10, 64)
	if err != nil {
		writeErr(w, &scoring.ValidationError{Field: "semester_id", Reason: "required"})
		return
	}
	var month *int
	if s := r.URL.Query().Get("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			writeErr(w, &scoring.ValidationError{Field: "month", Reason: "must be 1-12"})
			return
		}
		month = &m
	}

	view, err := h.engine.GetScore(ctxutil.WithOp(r.Context(), "get_score"), subjectID, target, semesterID, month)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type manualAwardReq struct {
	SubjectID   int64             `json:"subject_id"`
	TargetType  models.TargetType `json:"target_type"`
	SemesterID  int64             `json:"semester_id"`
	Month       *int              `json:"month,omitempty"`
	CriterionID int64             `json:"criterion_id"`
	Amount      int               `json:"amount"`
	Note        string            `json:"note"`
	ActorID     *int64            `json:"actor_id"`
}

func (h *handlers) awardManual(w http.ResponseWriter, r *http.Request) {
	var req manualAwardReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &scoring.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	ctx := ctxutil.WithOp(r.Context(), "award_manual")
	if req.ActorID != nil {
		ctx = ctxutil.WithActorID(ctx, *req.ActorID)
	}
	res, err := h.engine.AwardManualScore(ctx, scoring.ManualAwardInput{
		SubjectID:   req.SubjectID,
		TargetType:  req.TargetType,
		SemesterID:  req.SemesterID,
		Month:       req.Month,
		CriterionID: req.CriterionID,
		Amount:      req.Amount,
		Note:        req.Note,
		ActorID:     req.ActorID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type evidenceAwardReq struct {
	StudentID   int64 `json:"student_id"`
	CriterionID int64 `json:"criterion_id"`
	Points      int   `json:"points"`
}

// awardEvidence receives the evidence-approval signal: the criterion is
// already resolved by the approving workflow.
func (h *handlers) awardEvidence(w http.ResponseWriter, r *http.Request) {
	var req evidenceAwardReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &scoring.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	res, err := h.engine.AwardForEvidence(ctxutil.WithOp(r.Context(), "award_evidence"), req.StudentID, req.CriterionID, req.Points)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type manualUpdateReq struct {
	Amount int    `json:"amount"`
	Note   string `json:"note"`
}

func (h *handlers) updateManual(w http.ResponseWriter, r *http.Request) {
	detailID, err := strconv.ParseInt(chi.URLParam(r, "detailID"), 10, 64)
	if err != nil {
		writeErr(w, &scoring.ValidationError{Field: "detailID", Reason: "not a number"})
		return
	}
	var req manualUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, &scoring.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	total, err := h.engine.UpdateManualScore(ctxutil.WithOp(r.Context(), "update_manual"), detailID, req.Amount, req.Note)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total_score": total})
}

func (h *handlers) deleteManual(w http.ResponseWriter, r *http.Request) {
	detailID, err := strconv.ParseInt(chi.URLParam(r, "detailID"), 10, 64)
	if err != nil {
		writeErr(w, &scoring.ValidationError{Field: "detailID", Reason: "not a number"})
		return
	}
	total, err := h.engine.DeleteManualScore(ctxutil.WithOp(r.Context(), "delete_manual"), detailID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total_score": total})
}

// activityCompleted receives the transition-to-completed signal. The activity
// and its present attendees are read back from storage so the caller only
// names the id.
func (h *handlers) activityCompleted(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := strconv.ParseInt(chi.URLParam(r, "activityID"), 10, 64)
		if err != nil {
			writeErr(w, &scoring.ValidationError{Field: "activityID", Reason: "not a number"})
			return
		}
		ctx := ctxutil.WithOp(r.Context(), "activity_completed")

		act, err := db.GetActivityByID(ctx, database, activityID)
		if errors.Is(err, sql.ErrNoRows) {
			writeErr(w, scoring.ErrNotFound)
			return
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		act.AttendeeSubjectIDs, err = db.ListPresentAttendees(ctx, database, act.ID)
		if err != nil {
			writeErr(w, err)
			return
		}

		award, err := h.engine.AwardForActivityCompletion(ctx, *act)
		if err != nil {
			writeErr(w, err)
			return
		}
		h.log.Infow("activity completion scored", "activity", act.ID, "club", act.ClubID, "attendees", len(act.AttendeeSubjectIDs))
		writeJSON(w, http.StatusOK, award)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case scoring.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, scoring.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scoring.ErrInvalidOperation):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
