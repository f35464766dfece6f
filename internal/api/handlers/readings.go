// Package handlers contains the HTTP handlers for the envmonitor API. Each
// handler depends on a locally declared interface and mounts itself through
// RegisterRoutes.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"envmonitor/internal/core"
	"envmonitor/internal/readings"
	"envmonitor/internal/types"
)

// ReadingService is the subset of *readings.Service used by the handler.
type ReadingService interface {
	Ingest(ctx context.Context, userID string, in readings.IngestInput) (*types.SensorReading, error)
	Latest(ctx context.Context, userID, deviceID string) (*types.SensorReading, error)
	History(ctx context.Context, userID, deviceID string, start, end time.Time) ([]types.SensorReading, error)
}

// ReadingHandler serves /sensor-readings.
type ReadingHandler struct {
	service ReadingService
	logger  *slog.Logger
}

func NewReadingHandler(service ReadingService, l *slog.Logger) *ReadingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ReadingHandler{service: service, logger: l}
}

func (h *ReadingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/sensor-readings", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/current", h.Current)
		r.Get("/history", h.History)
	})
}

// Create handles POST /sensor-readings.
func (h *ReadingHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var in readings.IngestInput
	if err := core.DecodeJSON(w, r, &in); err != nil {
		core.Error(w, r, err)
		return
	}

	sr, err := h.service.Ingest(r.Context(), caller.UserID, in)
	if err != nil {
		h.logFailure(r, "create reading failed", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.Data(sr))
}

// Current handles GET /sensor-readings/current?device_id=.
func (h *ReadingHandler) Current(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	sr, err := h.service.Latest(r.Context(), caller.UserID, r.URL.Query().Get("device_id"))
	if err != nil {
		h.logFailure(r, "get current reading failed", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.Data(sr))
}

// History handles GET /sensor-readings/history?device_id=&start_date=&end_date=.
func (h *ReadingHandler) History(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	start, err := parseDateParam(q.Get("start_date"), "start_date")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	end, err := parseDateParam(q.Get("end_date"), "end_date")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	list, err := h.service.History(r.Context(), caller.UserID, q.Get("device_id"), start, end)
	if err != nil {
		h.logFailure(r, "get reading history failed", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.List(list))
}

func (h *ReadingHandler) logFailure(r *http.Request, msg string, err error) {
	logFailure(h.logger, r, msg, err)
}

// dateLayouts are tried in order; a bare date is midnight UTC.
var dateLayouts = []string{time.DateOnly, time.RFC3339}

func parseDateParam(v, field string) (time.Time, error) {
	if v == "" {
		return time.Time{}, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"The "+field+" field is required.", nil, map[string]any{"field": field})
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidDate,
		"The "+field+" field must be a valid date.", nil, map[string]any{"field": field, "value": v})
}

// requireCaller writes 401 when the request carries no caller. The /v1 group
// already enforces this; handlers mounted elsewhere still fail closed.
func requireCaller(w http.ResponseWriter, r *http.Request) (types.Caller, bool) {
	caller, ok := types.GetCaller(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthCallerMissing, "caller identity is required", nil))
	}
	return caller, ok
}

// logFailure logs server-side failures at error level and client errors at
// debug, so 4xx traffic does not flood the logs.
func logFailure(l *slog.Logger, r *http.Request, msg string, err error) {
	level := slog.LevelError
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus() < 500 {
		level = slog.LevelDebug
	}
	l.Log(r.Context(), level, msg,
		"path", r.URL.Path,
		"request_id", types.GetRequestID(r.Context()),
		"error", err,
	)
}
