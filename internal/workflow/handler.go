package workflow

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

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
		r.Use(h.rbac.RequireAny("workflow.view"))
		r.Get("/document-types", h.listTypes)
		r.Get("/document-types/{id}", h.showType)
		r.Get("/document-types/{id}/statuses", h.listStatuses)
		r.Get("/rules", h.listRules)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("workflow.edit"))
		r.Post("/document-types", h.createType)
		r.Put("/document-types/{id}", h.updateType)
		r.Delete("/document-types/{id}", h.deleteType)
		r.Put("/document-types/{id}/statuses", h.replaceStatuses)
		r.Post("/rules", h.createRule)
		r.Put("/rules/{id}", h.updateRule)
		r.Delete("/rules/{id}", h.deleteRule)
	})
}

type statusRequest struct {
	Code           string `json:"code" validate:"required,max=32"`
	Name           string `json:"name" validate:"required,max=128"`
	SortOrder      int    `json:"sort_order"`
	IsInitial      bool   `json:"is_initial"`
	IsFinal        bool   `json:"is_final"`
	IsCancellation bool   `json:"is_cancellation"`
	AllowEdit      bool   `json:"allow_edit"`
	AllowDelete    bool   `json:"allow_delete"`
}

type typeRequest struct {
	Code                 string          `json:"code" validate:"required,max=32"`
	Name                 string          `json:"name" validate:"required,max=128"`
	AppliesTo            string          `json:"applies_to" validate:"required,oneof=REQUEST ORDER DELIVERY"`
	AffectsStock         bool            `json:"affects_stock"`
	StockDirection       string          `json:"stock_direction" validate:"required,oneof=IN OUT NONE"`
	AutoConfirm          bool            `json:"auto_confirm"`
	AutoReceive          bool            `json:"auto_receive"`
	RequiresBatch        bool            `json:"requires_batch"`
	RequiresExpiry       bool            `json:"requires_expiry"`
	RequiresQualityCheck bool            `json:"requires_quality_check"`
	IsActive             bool            `json:"is_active"`
	Statuses             []statusRequest `json:"statuses" validate:"omitempty,dive"`
}

type ruleRequest struct {
	DocumentType  string           `json:"document_type" validate:"required,max=32"`
	FromStatus    string           `json:"from_status" validate:"required,max=32"`
	ToStatus      string           `json:"to_status" validate:"required,max=32"`
	MinAmount     *decimal.Decimal `json:"min_amount"`
	MaxAmount     *decimal.Decimal `json:"max_amount"`
	Currency      string           `json:"currency" validate:"max=8"`
	ApproverKind  string           `json:"approver_kind" validate:"required,oneof=USER ROLE PERMISSION DYNAMIC"`
	ApproverRef   string           `json:"approver_ref" validate:"max=128"`
	ApprovalLevel int              `json:"approval_level" validate:"required,min=1"`
	SortOrder     int              `json:"sort_order"`
	IsActive      bool             `json:"is_active"`
}

func (r typeRequest) toModel() DocumentType {
	return DocumentType{
		Code:                 r.Code,
		Name:                 r.Name,
		AppliesTo:            AppliesTo(r.AppliesTo),
		AffectsStock:         r.AffectsStock,
		StockDirection:       StockDirection(r.StockDirection),
		AutoConfirm:          r.AutoConfirm,
		AutoReceive:          r.AutoReceive,
		RequiresBatch:        r.RequiresBatch,
		RequiresExpiry:       r.RequiresExpiry,
		RequiresQualityCheck: r.RequiresQualityCheck,
		IsActive:             r.IsActive,
	}
}

func toStatuses(reqs []statusRequest) []Status {
	statuses := make([]Status, 0, len(reqs))
	for _, s := range reqs {
		statuses = append(statuses, Status{
			Code:           s.Code,
			Name:           s.Name,
			SortOrder:      s.SortOrder,
			IsInitial:      s.IsInitial,
			IsFinal:        s.IsFinal,
			IsCancellation: s.IsCancellation,
			AllowEdit:      s.AllowEdit,
			AllowDelete:    s.AllowDelete,
		})
	}
	return statuses
}

func (r ruleRequest) toModel() ApprovalRule {
	return ApprovalRule{
		DocumentType:  r.DocumentType,
		FromStatus:    r.FromStatus,
		ToStatus:      r.ToStatus,
		MinAmount:     r.MinAmount,
		MaxAmount:     r.MaxAmount,
		Currency:      r.Currency,
		ApproverKind:  ApproverKind(r.ApproverKind),
		ApproverRef:   r.ApproverRef,
		ApprovalLevel: r.ApprovalLevel,
		SortOrder:     r.SortOrder,
		IsActive:      r.IsActive,
	}
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
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

	list, total, err := h.service.ListTypes(r.Context(), filters)
	if err != nil {
		h.logger.Error("list document types", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      list,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) showType(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	dt, err := h.service.GetType(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dt)
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request) {
	var req typeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateType(r.Context(), req.toModel(), toStatuses(req.Statuses))
	if err != nil {
		h.logger.Error("create document type", slog.Any("error", err))
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
	var req typeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateType(r.Context(), id, req.toModel()); err != nil {
		h.logger.Error("update document type", slog.Any("error", err), slog.Int64("id", id))
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
		h.logger.Error("delete document type", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listStatuses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	statuses, err := h.service.ListStatuses(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": statuses})
}

func (h *Handler) replaceStatuses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req struct {
		Statuses []statusRequest `json:"statuses" validate:"required,min=2,dive"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ReplaceStatuses(r.Context(), id, toStatuses(req.Statuses)); err != nil {
		h.logger.Error("replace statuses", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	docType := r.URL.Query().Get("document_type")
	if docType == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "document_type is required")
		return
	}
	rules, err := h.service.ListRules(r.Context(), docType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rules})
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateRule(r.Context(), req.toModel())
	if err != nil {
		h.logger.Error("create approval rule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateRule(r.Context(), id, req.toModel()); err != nil {
		h.logger.Error("update approval rule", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRule(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}
