package numbering

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/platform/httpx"
	"github.com/optimapos/optimapos/internal/rbac"
	"github.com/optimapos/optimapos/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: guard}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("numbering.view"))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Post("/{id}/preview", h.preview)
		r.Get("/assignments", h.listAssignments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("numbering.edit"))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/assignments", h.assignLocation)
		r.Post("/preferences", h.setPreference)
		r.Delete("/preferences", h.clearPreference)
	})
}

type configRequest struct {
	Code         string `json:"code" validate:"required,max=32"`
	Name         string `json:"name" validate:"required,max=128"`
	DocumentType string `json:"document_type" validate:"required,max=64"`
	Prefix       string `json:"prefix" validate:"max=16"`
	Suffix       string `json:"suffix" validate:"max=16"`
	Separator    string `json:"separator" validate:"max=4"`
	Digits       int    `json:"digits" validate:"required,min=1,max=10"`
	ResetRule    string `json:"reset_rule" validate:"required,oneof=NEVER YEARLY MONTHLY"`
	Fiscal       bool   `json:"fiscal"`
	IsDefault    bool   `json:"is_default"`
	IsActive     bool   `json:"is_active"`
}

type assignmentRequest struct {
	DocumentType string `json:"document_type" validate:"required"`
	LocationID   int64  `json:"location_id" validate:"required,min=1"`
	ConfigID     int64  `json:"config_id" validate:"required,min=1"`
}

type preferenceRequest struct {
	DocumentType string `json:"document_type" validate:"required"`
	UserID       int64  `json:"user_id" validate:"required,min=1"`
	ConfigID     int64  `json:"config_id" validate:"required,min=1"`
}

func (r configRequest) toModel() Config {
	return Config{
		Code:         r.Code,
		Name:         r.Name,
		DocumentType: r.DocumentType,
		Prefix:       r.Prefix,
		Suffix:       r.Suffix,
		Separator:    r.Separator,
		Digits:       r.Digits,
		ResetRule:    ResetRule(r.ResetRule),
		Fiscal:       r.Fiscal,
		IsDefault:    r.IsDefault,
		IsActive:     r.IsActive,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = nomshared.DefaultPage
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = nomshared.DefaultLimit
	}
	filters := nomshared.ListFilters{Page: page, Limit: limit, Search: r.URL.Query().Get("search")}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active := raw == "true" || raw == "1"
		filters.IsActive = &active
	}

	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list numbering configs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      list,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	cfg, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), req.toModel())
	if err != nil {
		h.logger.Error("create numbering config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req configRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), id, req.toModel()); err != nil {
		h.logger.Error("update numbering config", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete numbering config", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	number, err := h.service.Preview(r.Context(), id, time.Now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"number": number})
}

func (h *Handler) assignLocation(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.AssignLocation(r.Context(), LocationAssignment{
		DocumentType: req.DocumentType,
		LocationID:   req.LocationID,
		ConfigID:     req.ConfigID,
	})
	if err != nil {
		h.logger.Error("assign numbering config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	docType := r.URL.Query().Get("document_type")
	if docType == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "document_type is required")
		return
	}
	list, err := h.service.ListAssignments(r.Context(), docType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": list})
}

func (h *Handler) setPreference(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.SetUserPreference(r.Context(), UserPreference{
		DocumentType: req.DocumentType,
		UserID:       req.UserID,
		ConfigID:     req.ConfigID,
	})
	if err != nil {
		h.logger.Error("set numbering preference", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) clearPreference(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	docType := r.URL.Query().Get("document_type")
	if userID < 1 || docType == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "user_id and document_type are required")
		return
	}
	if err := h.service.ClearUserPreference(r.Context(), userID, docType); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid config id")
		return 0, false
	}
	return id, true
}
