package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"envmonitor/internal/core"
	"envmonitor/internal/types"
)

const maxListLimit = 100

// RecommendationStore mirrors the db.RecommendationRepository methods used by
// the handler.
type RecommendationStore interface {
	GetByID(ctx context.Context, userID, id string) (*types.Recommendation, error)
	List(ctx context.Context, f types.RecommendationFilter) ([]types.Recommendation, error)
	Transition(ctx context.Context, userID, id string, to types.RecommendationStatus, at time.Time) (*types.Recommendation, error)
}

// RecommendationHandler serves /recommendations. Every query is scoped to the
// caller; another user's recommendation is reported as not found.
type RecommendationHandler struct {
	store  RecommendationStore
	logger *slog.Logger
	clock  types.Clock
}

func NewRecommendationHandler(store RecommendationStore, l *slog.Logger) *RecommendationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RecommendationHandler{store: store, logger: l, clock: types.RealClock{}}
}

func (h *RecommendationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/recommendations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/pending", h.Pending)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/acknowledge", h.Acknowledge)
			r.Post("/dismiss", h.Dismiss)
		})
	})
}

// List handles GET /recommendations?status=&device_id=&limit=.
func (h *RecommendationHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	filter, err := parseFilter(r, caller.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.list(w, r, filter)
}

// Pending handles GET /recommendations/pending?device_id=&limit=.
func (h *RecommendationHandler) Pending(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	filter, err := parseFilter(r, caller.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	filter.Status = types.StatusPending
	h.list(w, r, filter)
}

func (h *RecommendationHandler) list(w http.ResponseWriter, r *http.Request, filter types.RecommendationFilter) {
	recs, err := h.store.List(r.Context(), filter)
	if err != nil {
		logFailure(h.logger, r, "list recommendations failed", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.List(recs))
}

// Get handles GET /recommendations/{id}.
func (h *RecommendationHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	rec, err := h.store.GetByID(r.Context(), caller.UserID, chi.URLParam(r, "id"))
	if err != nil {
		logFailure(h.logger, r, "get recommendation failed", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.Data(rec))
}

// Acknowledge handles POST /recommendations/{id}/acknowledge.
func (h *RecommendationHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, types.StatusAcknowledged)
}

// Dismiss handles POST /recommendations/{id}/dismiss.
func (h *RecommendationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, types.StatusDismissed)
}

func (h *RecommendationHandler) transition(w http.ResponseWriter, r *http.Request, to types.RecommendationStatus) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := h.store.Transition(r.Context(), caller.UserID, id, to, h.clock.Now())
	if err != nil {
		logFailure(h.logger, r, "recommendation transition failed", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "recommendation status changed",
		"recommendation_id", id,
		"device_id", rec.DeviceID,
		"status", string(rec.Status),
	)
	core.JSON(w, r, http.StatusOK, core.Data(rec))
}

func parseFilter(r *http.Request, userID string) (types.RecommendationFilter, error) {
	q := r.URL.Query()
	f := types.RecommendationFilter{
		UserID:   userID,
		DeviceID: q.Get("device_id"),
	}

	if s := q.Get("status"); s != "" {
		status := types.RecommendationStatus(s)
		if !status.Valid() {
			return f, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidStatus,
				"The selected status is invalid.", nil, map[string]any{"status": s})
		}
		f.Status = status
	}

	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxListLimit {
			return f, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
				"The limit field must be between 1 and "+strconv.Itoa(maxListLimit)+".", nil,
				map[string]any{"limit": l})
		}
		f.Limit = n
	}
	return f, nil
}
