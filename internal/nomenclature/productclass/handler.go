package productclass

import (
	"log/slog"
	"net/http"
	"strconv"

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
		r.Use(h.rbac.RequireAny("nomenclature.view"))
		r.Get("/groups", h.listGroups)
		r.Get("/brands", h.listBrands)
		r.Get("/types", h.listTypes)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("nomenclature.edit"))
		r.Post("/groups", h.createGroup)
		r.Put("/groups/{id}", h.updateGroup)
		r.Delete("/groups/{id}", h.deleteGroup)
		r.Post("/brands", h.createBrand)
		r.Put("/brands/{id}", h.updateBrand)
		r.Delete("/brands/{id}", h.deleteBrand)
		r.Post("/types", h.createType)
		r.Put("/types/{id}", h.updateType)
		r.Delete("/types/{id}", h.deleteType)
	})
}

type classificationRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=128"`
	ParentID *int64 `json:"parent_id"`
	IsActive bool   `json:"is_active"`
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	if raw := r.URL.Query().Get("parent"); raw != "" {
		if parent, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.GroupID = &parent
		}
	}
	groups, total, err := h.service.ListGroups(r.Context(), filters)
	if err != nil {
		h.logger.Error("list product groups", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      groups,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.CreateGroup(r.Context(), ProductGroup{Code: req.Code, Name: req.Name, ParentID: req.ParentID, IsActive: req.IsActive})
	if err != nil {
		h.logger.Error("create product group", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateGroup(r.Context(), id, ProductGroup{Code: req.Code, Name: req.Name, ParentID: req.ParentID, IsActive: req.IsActive}); err != nil {
		h.logger.Error("update product group", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		h.logger.Error("delete product group", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	brands, total, err := h.service.ListBrands(r.Context(), filters)
	if err != nil {
		h.logger.Error("list brands", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      brands,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) createBrand(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.CreateBrand(r.Context(), Brand{Code: req.Code, Name: req.Name, IsActive: req.IsActive})
	if err != nil {
		h.logger.Error("create brand", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateBrand(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateBrand(r.Context(), id, Brand{Code: req.Code, Name: req.Name, IsActive: req.IsActive}); err != nil {
		h.logger.Error("update brand", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteBrand(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteBrand(r.Context(), id); err != nil {
		h.logger.Error("delete brand", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	types, total, err := h.service.ListTypes(r.Context(), filters)
	if err != nil {
		h.logger.Error("list product types", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      types,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.CreateType(r.Context(), ProductType{Code: req.Code, Name: req.Name, IsActive: req.IsActive})
	if err != nil {
		h.logger.Error("create product type", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateType(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateType(r.Context(), id, ProductType{Code: req.Code, Name: req.Name, IsActive: req.IsActive}); err != nil {
		h.logger.Error("update product type", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteType(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteType(r.Context(), id); err != nil {
		h.logger.Error("delete product type", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (classificationRequest, bool) {
	var req classificationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}

func listFilters(r *http.Request) nomshared.ListFilters {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = nomshared.DefaultPage
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = nomshared.DefaultLimit
	}
	return nomshared.ListFilters{
		Page:   page,
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
	}
}
