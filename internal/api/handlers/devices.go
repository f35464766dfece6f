package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"envmonitor/internal/core"
	"envmonitor/internal/types"
)

const devicePageSize = 10

// DeviceStore mirrors the db.DeviceRepository methods used by the handler.
type DeviceStore interface {
	Create(ctx context.Context, d *types.Device) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]types.Device, error)
	GetByID(ctx context.Context, id string) (*types.Device, error)
	Update(ctx context.Context, d *types.Device) (*types.Device, error)
	Delete(ctx context.Context, id string) error
}

// StructValidator is satisfied by *core.Validator.
type StructValidator interface {
	ValidateStruct(s any) error
}

type createDeviceRequest struct {
	DeviceID    string   `json:"device_id" validate:"required,max=100"`
	Name        string   `json:"name" validate:"required,max=255"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
	Description *string  `json:"description"`
}

// updateDeviceRequest leaves omitted optional fields unchanged.
type updateDeviceRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
	Description *string  `json:"description"`
	IsActive    *bool    `json:"is_active"`
}

// DeviceHandler serves /devices. A device owned by another user is reported
// as 403 rather than hidden.
type DeviceHandler struct {
	store     DeviceStore
	validator StructValidator
	logger    *slog.Logger
}

func NewDeviceHandler(store DeviceStore, v StructValidator, l *slog.Logger) *DeviceHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DeviceHandler{store: store, validator: v, logger: l}
}

func (h *DeviceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

// List handles GET /devices?page=.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
				"The page field must be at least 1.", nil, map[string]any{"page": p}))
			return
		}
		page = n
	}

	devices, err := h.store.ListByUser(r.Context(), caller.UserID, devicePageSize, (page-1)*devicePageSize)
	if err != nil {
		logFailure(h.logger, r, "list devices failed", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.List(devices))
}

// Create handles POST /devices.
func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req createDeviceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		core.Error(w, r, err)
		return
	}

	d := &types.Device{
		ID:          req.DeviceID,
		UserID:      caller.UserID,
		Name:        req.Name,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Description: req.Description,
	}
	if err := h.store.Create(r.Context(), d); err != nil {
		logFailure(h.logger, r, "create device failed", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "device registered",
		"device_id", d.ID,
		"user_id", d.UserID,
		"has_location", d.HasLocation(),
	)
	core.JSON(w, r, http.StatusCreated, core.Data(d))
}

// Get handles GET /devices/{id}.
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, core.Data(d))
}

// Update handles PUT /devices/{id}.
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}

	var req updateDeviceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		core.Error(w, r, err)
		return
	}

	d, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}

	d.Name = req.Name
	if req.Latitude != nil {
		d.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		d.Longitude = req.Longitude
	}
	if req.Description != nil {
		d.Description = req.Description
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}

	updated, err := h.store.Update(r.Context(), d)
	if err != nil {
		logFailure(h.logger, r, "update device failed", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.Data(updated))
}

// Delete handles DELETE /devices/{id}.
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDevice(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), d.ID); err != nil {
		logFailure(h.logger, r, "delete device failed", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "device deleted", "device_id", d.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ownedDevice loads {id} and writes the error response when it is missing or
// belongs to someone else.
func (h *DeviceHandler) ownedDevice(w http.ResponseWriter, r *http.Request) (*types.Device, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return nil, false
	}

	d, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		logFailure(h.logger, r, "get device failed", err)
		core.Error(w, r, err)
		return nil, false
	}
	if d.UserID != caller.UserID {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionDeviceOwner, "Unauthorized", nil))
		return nil, false
	}
	return d, true
}

func (h *DeviceHandler) validate(s any) error {
	if h.validator == nil {
		return nil
	}
	return h.validator.ValidateStruct(s)
}
