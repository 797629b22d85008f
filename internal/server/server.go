package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/pulse/internal/metrics"
	"github.com/ogulcanaydogan/pulse/internal/ratelimit"
	"github.com/ogulcanaydogan/pulse/internal/session"
	"github.com/ogulcanaydogan/pulse/pkg/engine"
	"github.com/ogulcanaydogan/pulse/pkg/model"
	"github.com/ogulcanaydogan/pulse/pkg/storage"
)

// DefaultCronInterval is the advisory gap between scheduled runs.
const DefaultCronInterval = 2 * time.Hour

// Options configures the trigger gateway and the admin API.
type Options struct {
	CronSecret   string
	CronInterval time.Duration
	Sessions     *session.Manager
	Limiter      ratelimit.Limiter
	Metrics      *metrics.Metrics
}

// Server exposes the alert run triggers, run status and in-app notifications.
type Server struct {
	store        storage.Storage
	orchestrator *engine.Orchestrator
	opts         Options
	mux          *http.ServeMux
	logger       *slog.Logger
}

// NewServer creates an API server.
func NewServer(store storage.Storage, orch *engine.Orchestrator, opts Options, logger *slog.Logger) *Server {
	if opts.CronInterval <= 0 {
		opts.CronInterval = DefaultCronInterval
	}
	s := &Server{
		store:        store,
		orchestrator: orch,
		opts:         opts,
		mux:          http.NewServeMux(),
		logger:       logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.opts.Metrics.Handler())

	s.mux.HandleFunc("POST /api/cron/alerts", s.handleCronTrigger)
	s.mux.HandleFunc("POST /api/admin/alerts/run", s.requireSession(s.requireRole(s.handleManualTrigger, model.RoleAdmin)))
	s.mux.HandleFunc("GET /api/cron/status", s.requireSession(s.requireRole(s.handleRunStatus, model.RoleAdmin)))
	s.mux.HandleFunc("GET /api/notifications", s.requireSession(s.handleNotifications))
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// triggerError carries the HTTP status of a run that could not start.
type triggerError struct {
	status int
	msg    string
}

func (e *triggerError) Error() string { return e.msg }

func (s *Server) authorizeCron(authHeader string) error {
	if s.opts.CronSecret == "" {
		return &triggerError{http.StatusInternalServerError, "cron secret is not configured"}
	}
	token, ok := session.BearerToken(authHeader)
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.CronSecret)) != 1 {
		return &triggerError{http.StatusUnauthorized, "unauthorized"}
	}
	return nil
}

// triggerRun is the single code path that authenticates a run and executes it.
// Both the scheduled and the manual trigger go through it.
func (s *Server) triggerRun(ctx context.Context, authHeader string, target engine.RunTarget) (*engine.RunSummary, error) {
	if err := s.authorizeCron(authHeader); err != nil {
		return nil, err
	}

	// A caller that hangs up must not abort a run whose rules have already latched.
	summary, err := s.orchestrator.Run(context.WithoutCancel(ctx), target)
	if err != nil {
		if errors.Is(err, engine.ErrOrgNotFound) {
			return nil, &triggerError{http.StatusNotFound, err.Error()}
		}
		s.logger.Error("alert run", "error", err)
		return nil, &triggerError{http.StatusInternalServerError, "alert run failed"}
	}
	return summary, nil
}

func (s *Server) handleCronTrigger(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if err := s.authorizeCron(auth); err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	target, err := parseRunTarget(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := s.triggerRun(r.Context(), auth, target)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type manualRunResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Result  *engine.RunSummary `json:"result,omitempty"`
}

func (s *Server) handleManualTrigger(w http.ResponseWriter, r *http.Request) {
	id, _ := session.FromContext(r.Context())

	target, err := parseRunTarget(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !target.All() && target.OrgID != id.OrgID {
		writeError(w, http.StatusForbidden, "cannot run alerts for another organization")
		return
	}

	// Fail before spending a rate limit token.
	if s.opts.CronSecret == "" {
		writeJSON(w, http.StatusInternalServerError, manualRunResponse{Success: false, Message: "cron secret is not configured"})
		return
	}

	if s.opts.Limiter != nil {
		d, err := s.opts.Limiter.Allow(r.Context(), "user:"+id.UserID)
		if err != nil {
			s.logger.Error("manual run rate limit", "error", err)
			writeError(w, http.StatusInternalServerError, "rate limiter unavailable")
			return
		}
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
			writeError(w, http.StatusTooManyRequests, "manual runs are rate limited, retry later")
			return
		}
	}

	s.logger.Info("manual alert run requested", "user_id", id.UserID, "org_id", id.OrgID, "target", target.OrgID)
	summary, err := s.triggerRun(r.Context(), "Bearer "+s.opts.CronSecret, target)
	if err != nil {
		writeJSON(w, statusOf(err), manualRunResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, manualRunResponse{
		Success: true,
		Message: fmt.Sprintf("Processed %d organizations, triggered %d alerts, %d errors",
			summary.ProcessedOrgs, summary.Triggered, summary.ErrorsCount),
		Result: summary,
	})
}

type runStatusResponse struct {
	Job             string            `json:"job"`
	LastRunAt       *time.Time        `json:"lastRunAt"`
	LastStatus      model.RunStatus   `json:"lastStatus,omitempty"`
	LastSummary     *model.CronRunLog `json:"lastSummary"`
	LastError       string            `json:"lastError,omitempty"`
	NextExpectedRun *time.Time        `json:"nextExpectedRun"`
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	job := r.URL.Query().Get("job")
	if job == "" {
		job = s.orchestrator.JobName()
	}

	resp := runStatusResponse{Job: job}
	runLog, err := s.store.LatestRunLog(ctx, job)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusOK, resp)
		return
	case err != nil:
		s.logger.Error("latest run log", "job", job, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	next := runLog.StartedAt.Add(s.opts.CronInterval)
	resp.LastRunAt = &runLog.StartedAt
	resp.LastStatus = runLog.Status
	resp.LastSummary = runLog
	resp.NextExpectedRun = &next
	if len(runLog.ErrorSample) > 0 {
		resp.LastError = runLog.ErrorSample[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, _ := session.FromContext(ctx)
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	list, err := s.store.ListInAppNotifications(ctx, id.OrgID, limit)
	if err != nil {
		s.logger.Error("list notifications", "org_id", id.OrgID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []model.InAppNotification{}
	}
	writeJSON(w, http.StatusOK, list)
}

type runTargetBody struct {
	OrgID string `json:"orgId"`
}

// parseRunTarget resolves the run target from ?org= or a {"orgId": ...} body.
// An empty body means every organization.
func parseRunTarget(r *http.Request) (engine.RunTarget, error) {
	if org := r.URL.Query().Get("org"); org != "" {
		return engine.SingleOrg(org), nil
	}
	if r.Body == nil {
		return engine.AllOrgs(), nil
	}
	var body runTargetBody
	err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&body)
	switch {
	case errors.Is(err, io.EOF):
		return engine.AllOrgs(), nil
	case err != nil:
		return engine.RunTarget{}, fmt.Errorf("invalid request body: %w", err)
	}
	if body.OrgID == "" {
		return engine.AllOrgs(), nil
	}
	return engine.SingleOrg(body.OrgID), nil
}

func statusOf(err error) int {
	var te *triggerError
	if errors.As(err, &te) {
		return te.status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
