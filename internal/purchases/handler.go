package purchases

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

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
	r.Route("/requests", func(r chi.Router) {
		h.mountDocument(r, KindRequest)
	})
	r.Route("/orders", func(r chi.Router) {
		h.mountDocument(r, KindOrder)
	})
	r.Route("/deliveries", func(r chi.Router) {
		h.mountDocument(r, KindDelivery)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll("purchases.receive"))
			r.Post("/{id}/receive", h.receive)
		})
	})
}

func (h *Handler) mountDocument(r chi.Router, kind Kind) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("purchases.view"))
		r.Get("/", h.list(kind))
		r.Get("/{id}", h.show(kind))
		r.Get("/{id}/timeline", h.timeline(kind))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("purchases.edit"))
		r.Post("/", h.create(kind))
		r.Put("/{id}", h.update(kind))
		r.Delete("/{id}", h.delete(kind))
		r.Post("/{id}/submit", h.transition(kind, h.advance))
		r.Post("/{id}/confirm", h.transition(kind, h.advance))
		r.Post("/{id}/cancel", h.transition(kind, h.service.Cancel))
		r.Post("/{id}/reactivate", h.transition(kind, h.service.Reactivate))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("purchases.approve"))
		r.Post("/{id}/approve", h.transition(kind, h.advance))
		r.Post("/{id}/reject", h.transition(kind, h.service.Reject))
	})
}

type requestLinePayload struct {
	ProductID    int64           `json:"product_id" validate:"required,min=1"`
	GroupID      *int64          `json:"group_id"`
	BrandID      *int64          `json:"brand_id"`
	Qty          decimal.Decimal `json:"qty"`
	EstUnitPrice decimal.Decimal `json:"est_unit_price"`
	Note         string          `json:"note" validate:"max=512"`
}

type requestPayload struct {
	Number         string               `json:"number" validate:"max=64"`
	TypeCode       string               `json:"type_code" validate:"required,max=64"`
	LocationID     int64                `json:"location_id" validate:"required,min=1"`
	SupplierID     *int64               `json:"supplier_id"`
	Note           string               `json:"note" validate:"max=1024"`
	IdempotencyKey string               `json:"idempotency_key" validate:"max=128"`
	Lines          []requestLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type orderLinePayload struct {
	ProductID   int64           `json:"product_id" validate:"required,min=1"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxGroupID  int64           `json:"tax_group_id" validate:"required,min=1"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
}

type orderPayload struct {
	Number         string             `json:"number" validate:"max=64"`
	TypeCode       string             `json:"type_code" validate:"required,max=64"`
	LocationID     int64              `json:"location_id" validate:"required,min=1"`
	SupplierID     int64              `json:"supplier_id" validate:"required,min=1"`
	Currency       string             `json:"currency" validate:"required,len=3"`
	ExpectedDate   *time.Time         `json:"expected_date"`
	PaymentTerms   string             `json:"payment_terms" validate:"max=256"`
	DeliveryTerms  string             `json:"delivery_terms" validate:"max=256"`
	Note           string             `json:"note" validate:"max=1024"`
	IdempotencyKey string             `json:"idempotency_key" validate:"max=128"`
	Lines          []orderLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type deliveryLinePayload struct {
	ProductID   int64           `json:"product_id" validate:"required,min=1"`
	OrderedQty  decimal.Decimal `json:"ordered_qty"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	BatchNo     string          `json:"batch_no" validate:"max=64"`
	ExpiryDate  *time.Time      `json:"expiry_date"`
	Quality     string          `json:"quality" validate:"omitempty,oneof=PENDING PASSED FAILED"`
}

type deliveryPayload struct {
	Number         string                `json:"number" validate:"max=64"`
	TypeCode       string                `json:"type_code" validate:"required,max=64"`
	LocationID     int64                 `json:"location_id" validate:"required,min=1"`
	SupplierID     int64                 `json:"supplier_id" validate:"required,min=1"`
	OrderID        *int64                `json:"order_id"`
	ReceivedAt     *time.Time            `json:"received_at"`
	Note           string                `json:"note" validate:"max=1024"`
	IdempotencyKey string                `json:"idempotency_key" validate:"max=128"`
	Lines          []deliveryLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type transitionPayload struct {
	Comment string `json:"comment" validate:"max=1024"`
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := parseFilters(r)
		var (
			items any
			total int
			err   error
		)
		switch kind {
		case KindRequest:
			items, total, err = h.service.ListRequests(r.Context(), filters)
		case KindOrder:
			items, total, err = h.service.ListOrders(r.Context(), filters)
		default:
			items, total, err = h.service.ListDeliveries(r.Context(), filters)
		}
		if err != nil {
			h.logger.Error("list purchase documents", slog.Any("error", err), slog.String("kind", string(kind)))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"items":      items,
			"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
		})
	}
}

func (h *Handler) show(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.id(w, r)
		if !ok {
			return
		}
		var (
			doc any
			err error
		)
		switch kind {
		case KindRequest:
			doc, err = h.service.GetRequest(r.Context(), id)
		case KindOrder:
			doc, err = h.service.GetOrder(r.Context(), id)
		default:
			doc, err = h.service.GetDelivery(r.Context(), id)
		}
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			doc any
			err error
		)
		switch kind {
		case KindRequest:
			var req requestPayload
			if !h.decode(w, r, &req) {
				return
			}
			doc, err = h.service.CreateRequest(r.Context(), req.toInput())
		case KindOrder:
			var req orderPayload
			if !h.decode(w, r, &req) {
				return
			}
			doc, err = h.service.CreateOrder(r.Context(), req.toInput())
		default:
			var req deliveryPayload
			if !h.decode(w, r, &req) {
				return
			}
			doc, err = h.service.CreateDelivery(r.Context(), req.toInput())
		}
		if err != nil {
			h.logger.Error("create purchase document", slog.Any("error", err), slog.String("kind", string(kind)))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) update(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.id(w, r)
		if !ok {
			return
		}
		var (
			doc any
			err error
		)
		switch kind {
		case KindRequest:
			var req requestPayload
			if !h.decode(w, r, &req) {
				return
			}
			doc, err = h.service.UpdateRequest(r.Context(), id, req.toInput())
		case KindOrder:
			var req orderPayload
			if !h.decode(w, r, &req) {
				return
			}
			doc, err = h.service.UpdateOrder(r.Context(), id, req.toInput())
		default:
			httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "delivery receipts are corrected through reversal, not editing")
			return
		}
		if err != nil {
			h.logger.Error("update purchase document", slog.Any("error", err), slog.Int64("id", id))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) delete(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.id(w, r)
		if !ok {
			return
		}
		var err error
		switch kind {
		case KindRequest:
			err = h.service.DeleteRequest(r.Context(), id)
		case KindOrder:
			err = h.service.DeleteOrder(r.Context(), id)
		default:
			err = h.service.DeleteDelivery(r.Context(), id)
		}
		if err != nil {
			h.logger.Error("delete purchase document", slog.Any("error", err), slog.Int64("id", id))
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) advance(ctx context.Context, kind Kind, id int64, comment string) (TransitionResult, error) {
	return h.service.Advance(ctx, kind, id, comment)
}

type transitionFunc func(ctx context.Context, kind Kind, id int64, comment string) (TransitionResult, error)

func (h *Handler) transition(kind Kind, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.id(w, r)
		if !ok {
			return
		}
		var req transitionPayload
		if r.ContentLength > 0 {
			if err := httpx.DecodeJSON(r, &req); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
				return
			}
		}
		result, err := fn(r.Context(), kind, id, req.Comment)
		if err != nil {
			h.logger.Error("transition purchase document", slog.Any("error", err),
				slog.String("kind", string(kind)), slog.Int64("id", id))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req transitionPayload
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	if err := h.service.ReceiveDelivery(r.Context(), id, req.Comment); err != nil {
		h.logger.Error("receive delivery", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	dr, err := h.service.GetDelivery(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dr)
}

func (h *Handler) timeline(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.id(w, r)
		if !ok {
			return
		}
		entries, err := h.service.Timeline(r.Context(), kind, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return 0, false
	}
	return id, true
}

func parseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := ListFilters{
		Page:     page,
		Limit:    limit,
		Search:   q.Get("search"),
		Status:   q.Get("status"),
		TypeCode: q.Get("type_code"),
	}
	filters.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	filters.SupplierID, _ = strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 200 {
		filters.Limit = 50
	}
	return filters
}

func (p requestPayload) toInput() CreateRequestInput {
	lines := make([]RequestLineInput, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, RequestLineInput{
			ProductID: l.ProductID, GroupID: l.GroupID, BrandID: l.BrandID,
			Qty: l.Qty, EstUnitPrice: l.EstUnitPrice, Note: l.Note,
		})
	}
	return CreateRequestInput{
		Number: p.Number, TypeCode: p.TypeCode, LocationID: p.LocationID,
		SupplierID: p.SupplierID, Note: p.Note, IdempotencyKey: p.IdempotencyKey, Lines: lines,
	}
}

func (p orderPayload) toInput() CreateOrderInput {
	lines := make([]OrderLineInput, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, OrderLineInput{
			ProductID: l.ProductID, Qty: l.Qty, UnitPrice: l.UnitPrice,
			TaxGroupID: l.TaxGroupID, DiscountPct: l.DiscountPct,
		})
	}
	return CreateOrderInput{
		Number: p.Number, TypeCode: p.TypeCode, LocationID: p.LocationID,
		SupplierID: p.SupplierID, Currency: p.Currency, ExpectedDate: p.ExpectedDate,
		PaymentTerms: p.PaymentTerms, DeliveryTerms: p.DeliveryTerms,
		Note: p.Note, IdempotencyKey: p.IdempotencyKey, Lines: lines,
	}
}

func (p deliveryPayload) toInput() CreateDeliveryInput {
	lines := make([]DeliveryLineInput, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, DeliveryLineInput{
			ProductID: l.ProductID, OrderedQty: l.OrderedQty, ReceivedQty: l.ReceivedQty,
			UnitCost: l.UnitCost, BatchNo: l.BatchNo, ExpiryDate: l.ExpiryDate,
			Quality: QualityStatus(l.Quality),
		})
	}
	input := CreateDeliveryInput{
		Number: p.Number, TypeCode: p.TypeCode, LocationID: p.LocationID,
		SupplierID: p.SupplierID, OrderID: p.OrderID, Note: p.Note,
		IdempotencyKey: p.IdempotencyKey, Lines: lines,
	}
	if p.ReceivedAt != nil {
		input.ReceivedAt = *p.ReceivedAt
	}
	return input
}
