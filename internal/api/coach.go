package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/identity"
	"github.com/ashureev/codecoach/internal/profile"
	"github.com/ashureev/codecoach/internal/session"
	"github.com/ashureev/codecoach/internal/store"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// Coaching is the session surface the API drives.
type Coaching interface {
	Status() session.StatusView
	OpenAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error)
	Chat(ctx context.Context, text, editorContext string) (string, error)
	ClearChat()
	Submit(ctx context.Context) error
	ExportSummary(ctx context.Context) (string, error)
	ResumeStarter(ctx context.Context) error
}

// ProfileLoader reads learning profiles.
type ProfileLoader interface {
	Load(ctx context.Context, learnerID, courseID string) (domain.LearningProfile, error)
}

// PendingInstallations exposes the pending starter installation slot.
type PendingInstallations interface {
	Pending(ctx context.Context) (*domain.PendingStarterInstallation, error)
	ClearPending(ctx context.Context) error
}

// CoachHandler serves the coaching routes.
type CoachHandler struct {
	coaching Coaching
	profiles ProfileLoader
	pending  PendingInstallations
	repo     store.Repository
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewCoachHandler creates a handler. pending and repo may be nil.
func NewCoachHandler(coaching Coaching, profiles ProfileLoader, pending PendingInstallations, repo store.Repository, logger *slog.Logger) *CoachHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoachHandler{
		coaching: coaching,
		profiles: profiles,
		pending:  pending,
		repo:     repo,
		// One generation request per second with a small burst.
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		logger:  logger,
	}
}

// RegisterRoutes mounts the API under /api.
func (h *CoachHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/status", h.GetStatus)
		r.Post("/connect", h.Connect)
		r.Post("/chat", h.Chat)
		r.Delete("/chat", h.ClearChat)
		r.Post("/submit", h.Submit)
		r.Post("/summary", h.ExportSummary)
		r.Get("/profile", h.GetProfile)
		r.Route("/starter", func(r chi.Router) {
			r.Get("/pending", h.GetPending)
			r.Delete("/pending", h.ClearPending)
			r.Post("/resume", h.ResumeStarter)
		})
	})
}

// Health reports database reachability.
func (h *CoachHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{"status": "healthy", "checks": checks}
	code := http.StatusOK

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			h.logger.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	JSON(w, code, status)
}

// GetStatus returns the session status.
func (h *CoachHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.coaching.Status())
}

type connectRequest struct {
	AssignmentID string `json:"assignmentId"`
}

// Connect opens an assignment and installs its starter files.
func (h *CoachHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decode(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.AssignmentID)
	if id == "" {
		Error(w, http.StatusBadRequest, "assignmentId is required")
		return
	}

	a, err := h.coaching.OpenAssignment(r.Context(), id)
	if err != nil {
		h.logger.Warn("Connect failed", "assignment_id", id, "error", err)
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"assignment": a,
		"status":     h.coaching.Status(),
	})
}

type chatRequest struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

// Chat sends one learner message to the coach.
func (h *CoachHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}
	if !h.limiter.Allow() {
		Error(w, http.StatusTooManyRequests, "slow down")
		return
	}

	reply, err := h.coaching.Chat(r.Context(), req.Text, req.Context)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// ClearChat empties the coach's prompt history.
func (h *CoachHandler) ClearChat(w http.ResponseWriter, r *http.Request) {
	h.coaching.ClearChat()
	w.WriteHeader(http.StatusNoContent)
}

// Submit finishes the active session.
func (h *CoachHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := h.coaching.Submit(r.Context()); err != nil {
		h.logger.Warn("Submit failed", "kind", domain.KindOf(err), "error", err)
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, h.coaching.Status())
}

// ExportSummary returns the learning summary document.
func (h *CoachHandler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	md, err := h.coaching.ExportSummary(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	writeMarkdown(w, md)
}

// GetProfile returns the learner's profile as Markdown, or JSON with
// format=json. course selects the per-course profile.
func (h *CoachHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	learnerID := identity.LearnerIDFromContext(r.Context())
	if learnerID == "" {
		Error(w, http.StatusUnauthorized, "unknown learner")
		return
	}
	courseID := strings.TrimSpace(r.URL.Query().Get("course"))

	p, err := h.profiles.Load(r.Context(), learnerID, courseID)
	if err != nil {
		Fail(w, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		JSON(w, http.StatusOK, p)
		return
	}
	writeMarkdown(w, profile.RenderMarkdown(nil, p))
}

// GetPending returns the pending starter installation or 204.
func (h *CoachHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	if h.pending == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	p, err := h.pending.Pending(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	JSON(w, http.StatusOK, p)
}

// ClearPending abandons the pending starter installation.
func (h *CoachHandler) ClearPending(w http.ResponseWriter, r *http.Request) {
	if h.pending != nil {
		if err := h.pending.ClearPending(r.Context()); err != nil {
			Fail(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumeStarter retries the pending starter installation.
func (h *CoachHandler) ResumeStarter(w http.ResponseWriter, r *http.Request) {
	if err := h.coaching.ResumeStarter(r.Context()); err != nil {
		Fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeMarkdown(w http.ResponseWriter, md string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}
