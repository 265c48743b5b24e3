package purchases

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/optimapos/optimapos/internal/nomenclature/currencies"
	"github.com/optimapos/optimapos/internal/nomenclature/taxgroups"
	"github.com/optimapos/optimapos/internal/observability"
	"github.com/optimapos/optimapos/internal/shared"
	"github.com/optimapos/optimapos/internal/workflow"
)

// NumberingPort issues document numbers.
type NumberingPort interface {
	Next(ctx context.Context, docType string, locationID, userID int64, at time.Time) (string, error)
}

// WorkflowPort exposes the transition machine and approval engine.
type WorkflowPort interface {
	MachineFor(ctx context.Context, typeCode string) (*workflow.Machine, workflow.DocumentType, error)
	Authorize(ctx context.Context, req workflow.AuthorizationRequest) (workflow.Grant, error)
	Record(ctx context.Context, entry workflow.LogEntry) (workflow.LogEntry, error)
	History(ctx context.Context, ref uuid.UUID) ([]workflow.LogEntry, error)
}

// TaxPort looks up tax groups for order lines.
type TaxPort interface {
	Get(ctx context.Context, id int64) (taxgroups.TaxGroup, error)
}

// CurrencyPort provides the base currency for documents that carry
// none of their own.
type CurrencyPort interface {
	Base(ctx context.Context) (currencies.Currency, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards externally retried operations.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Enqueuer hands work to the background queue.
type Enqueuer interface {
	EnqueueReindex(ctx context.Context, kind Kind, id int64) error
}

// Service orchestrates purchase document flows.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	numbering   NumberingPort
	workflow    WorkflowPort
	taxes       TaxPort
	currencies  CurrencyPort
	audit       AuditPort
	idempotency IdempotencyPort
	jobs        Enqueuer
	metrics     *observability.Metrics
}

type ServiceDeps struct {
	Logger      *slog.Logger
	Repo        RepositoryPort
	Numbering   NumberingPort
	Workflow    WorkflowPort
	Taxes       TaxPort
	Currencies  CurrencyPort
	Audit       AuditPort
	Idempotency IdempotencyPort
	Jobs        Enqueuer
	Metrics     *observability.Metrics
}

func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:      logger,
		repo:        deps.Repo,
		numbering:   deps.Numbering,
		workflow:    deps.Workflow,
		taxes:       deps.Taxes,
		currencies:  deps.Currencies,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		jobs:        deps.Jobs,
		metrics:     deps.Metrics,
	}
}

type RequestLineInput struct {
	ProductID    int64
	GroupID      *int64
	BrandID      *int64
	Qty          decimal.Decimal
	EstUnitPrice decimal.Decimal
	Note         string
}

type CreateRequestInput struct {
	Number         string
	TypeCode       string
	LocationID     int64
	SupplierID     *int64
	Note           string
	IdempotencyKey string
	Lines          []RequestLineInput
}

type OrderLineInput struct {
	ProductID   int64
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxGroupID  int64
	DiscountPct decimal.Decimal
}

type CreateOrderInput struct {
	Number         string
	TypeCode       string
	LocationID     int64
	SupplierID     int64
	Currency       string
	ExpectedDate   *time.Time
	PaymentTerms   string
	DeliveryTerms  string
	Note           string
	IdempotencyKey string
	Lines          []OrderLineInput
}

type DeliveryLineInput struct {
	ProductID   int64
	OrderedQty  decimal.Decimal
	ReceivedQty decimal.Decimal
	UnitCost    decimal.Decimal
	BatchNo     string
	ExpiryDate  *time.Time
	Quality     QualityStatus
}

type CreateDeliveryInput struct {
	Number         string
	TypeCode       string
	LocationID     int64
	SupplierID     int64
	OrderID        *int64
	ReceivedAt     time.Time
	Note           string
	IdempotencyKey string
	Lines          []DeliveryLineInput
}

// CreateRequest persists a purchase request in its type's initial
// status. An explicit number wins over the numbering engine.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (PurchaseRequest, error) {
	if err := validateRequestLines(input.Lines); err != nil {
		return PurchaseRequest{}, err
	}
	machine, dt, err := s.workflow.MachineFor(ctx, input.TypeCode)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if dt.AppliesTo != workflow.AppliesRequest {
		return PurchaseRequest{}, fmt.Errorf("%w: type %s does not apply to requests", shared.ErrValidation, dt.Code)
	}

	actor := shared.ActorFromContext(ctx)
	number, err := s.resolveNumber(ctx, input.Number, dt.Code, input.LocationID, actor.ID)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if err := s.claimKey(ctx, input.IdempotencyKey, "purchases.request"); err != nil {
		return PurchaseRequest{}, err
	}

	lines := make([]RequestLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		lines = append(lines, RequestLine{
			ProductID: in.ProductID, GroupID: in.GroupID, BrandID: in.BrandID,
			Qty: in.Qty, EstUnitPrice: in.EstUnitPrice, Note: in.Note,
		})
	}

	pr := PurchaseRequest{
		Number:      number,
		TypeCode:    dt.Code,
		LocationID:  input.LocationID,
		SupplierID:  input.SupplierID,
		RequesterID: actor.ID,
		Status:      machine.Initial(),
		Note:        input.Note,
		Total:       requestTotal(lines),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateRequest(ctx, pr)
		if err != nil {
			return err
		}
		pr.ID = id
		for i := range lines {
			lines[i].RequestID = id
			if err := tx.InsertRequestLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, input.IdempotencyKey)
		return PurchaseRequest{}, err
	}
	pr.Lines = lines

	s.metrics.DocumentCreated(dt.Code)
	s.recordAudit(ctx, actor.ID, "PR_CREATE", "purchase_request", pr.ID, map[string]any{"number": pr.Number})
	return pr, nil
}

// UpdateRequest replaces the editable header fields and lines. Only
// statuses flagged allow_edit accept changes.
func (s *Service) UpdateRequest(ctx context.Context, id int64, input CreateRequestInput) (PurchaseRequest, error) {
	if err := validateRequestLines(input.Lines); err != nil {
		return PurchaseRequest{}, err
	}
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	machine, _, err := s.workflow.MachineFor(ctx, pr.TypeCode)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if !machine.CanEdit(pr.Status) {
		return PurchaseRequest{}, fmt.Errorf("%w: status %s does not allow editing", shared.ErrInvalidState, pr.Status)
	}

	lines := make([]RequestLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		lines = append(lines, RequestLine{
			RequestID: id, ProductID: in.ProductID, GroupID: in.GroupID, BrandID: in.BrandID,
			Qty: in.Qty, EstUnitPrice: in.EstUnitPrice, Note: in.Note,
		})
	}
	pr.SupplierID = input.SupplierID
	pr.Note = input.Note
	pr.Total = requestTotal(lines)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateRequestHeader(ctx, pr); err != nil {
			return err
		}
		if err := tx.DeleteRequestLines(ctx, id); err != nil {
			return err
		}
		for i := range lines {
			if err := tx.InsertRequestLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	pr.Lines = lines

	actor := shared.ActorFromContext(ctx)
	s.recordAudit(ctx, actor.ID, "PR_UPDATE", "purchase_request", id, map[string]any{"number": pr.Number})
	return pr, nil
}

func (s *Service) GetRequest(ctx context.Context, id int64) (PurchaseRequest, error) {
	return s.repo.GetRequest(ctx, id)
}

func (s *Service) ListRequests(ctx context.Context, filters ListFilters) ([]PurchaseRequest, int, error) {
	return s.repo.ListRequests(ctx, filters)
}

// DeleteRequest removes a request while its status allows deletion.
func (s *Service) DeleteRequest(ctx context.Context, id int64) error {
	pr, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	machine, _, err := s.workflow.MachineFor(ctx, pr.TypeCode)
	if err != nil {
		return err
	}
	if !machine.CanDelete(pr.Status) {
		return fmt.Errorf("%w: status %s does not allow deletion", shared.ErrInvalidState, pr.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteRequest(ctx, id)
	})
	if err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)
	s.recordAudit(ctx, actor.ID, "PR_DELETE", "purchase_request", id, map[string]any{"number": pr.Number})
	return nil
}

// CreateOrder persists a purchase order with priced lines. Types
// flagged auto_confirm skip the initial status.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, lineError("at least one line is required")
	}
	if input.SupplierID <= 0 {
		return PurchaseOrder{}, fieldError("supplier_id", "is required")
	}
	machine, dt, err := s.workflow.MachineFor(ctx, input.TypeCode)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if dt.AppliesTo != workflow.AppliesOrder {
		return PurchaseOrder{}, fmt.Errorf("%w: type %s does not apply to orders", shared.ErrValidation, dt.Code)
	}

	lines, err := s.priceOrderLines(ctx, input.Lines)
	if err != nil {
		return PurchaseOrder{}, err
	}

	actor := shared.ActorFromContext(ctx)
	number, err := s.resolveNumber(ctx, input.Number, dt.Code, input.LocationID, actor.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.claimKey(ctx, input.IdempotencyKey, "purchases.order"); err != nil {
		return PurchaseOrder{}, err
	}

	status := machine.Initial()
	if dt.AutoConfirm {
		if next, ok := machine.Next(status); ok {
			status = next
		}
	}

	po := PurchaseOrder{
		Number:        number,
		TypeCode:      dt.Code,
		LocationID:    input.LocationID,
		SupplierID:    input.SupplierID,
		Currency:      input.Currency,
		ExpectedDate:  input.ExpectedDate,
		PaymentTerms:  input.PaymentTerms,
		DeliveryTerms: input.DeliveryTerms,
		Status:        status,
		Note:          input.Note,
		CreatedBy:     actor.ID,
	}
	po.NetTotal, po.TaxTotal, po.GrossTotal = orderTotals(lines)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for i := range lines {
			lines[i].OrderID = id
			if err := tx.InsertOrderLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, input.IdempotencyKey)
		return PurchaseOrder{}, err
	}
	po.Lines = lines

	if dt.AutoConfirm && status != machine.Initial() {
		s.record(ctx, workflow.LogEntry{
			DocumentRef: OrderRef(po.ID), DocumentType: dt.Code,
			FromStatus: machine.Initial(), ToStatus: status,
			Action: workflow.ActionSubmit, ActorID: actor.ID, ActorName: actor.Name,
			Comment: "auto-confirmed on creation",
		})
		s.metrics.TransitionApplied(dt.Code, string(workflow.ActionSubmit))
	}
	s.metrics.DocumentCreated(dt.Code)
	s.recordAudit(ctx, actor.ID, "PO_CREATE", "purchase_order", po.ID, map[string]any{"number": po.Number, "gross": po.GrossTotal.String()})
	return po, nil
}

// UpdateOrder replaces editable fields and reprices the lines.
func (s *Service) UpdateOrder(ctx context.Context, id int64, input CreateOrderInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, lineError("at least one line is required")
	}
	po, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	machine, _, err := s.workflow.MachineFor(ctx, po.TypeCode)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !machine.CanEdit(po.Status) {
		return PurchaseOrder{}, fmt.Errorf("%w: status %s does not allow editing", shared.ErrInvalidState, po.Status)
	}

	lines, err := s.priceOrderLines(ctx, input.Lines)
	if err != nil {
		return PurchaseOrder{}, err
	}
	for i := range lines {
		lines[i].OrderID = id
	}

	po.SupplierID = input.SupplierID
	po.Currency = input.Currency
	po.ExpectedDate = input.ExpectedDate
	po.PaymentTerms = input.PaymentTerms
	po.DeliveryTerms = input.DeliveryTerms
	po.Note = input.Note
	po.NetTotal, po.TaxTotal, po.GrossTotal = orderTotals(lines)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderHeader(ctx, po); err != nil {
			return err
		}
		if err := tx.DeleteOrderLines(ctx, id); err != nil {
			return err
		}
		for i := range lines {
			if err := tx.InsertOrderLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines = lines

	actor := shared.ActorFromContext(ctx)
	s.recordAudit(ctx, actor.ID, "PO_UPDATE", "purchase_order", id, map[string]any{"number": po.Number})
	return po, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	return s.repo.ListOrders(ctx, filters)
}

func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	po, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	machine, _, err := s.workflow.MachineFor(ctx, po.TypeCode)
	if err != nil {
		return err
	}
	if !machine.CanDelete(po.Status) {
		return fmt.Errorf("%w: status %s does not allow deletion", shared.ErrInvalidState, po.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)
	s.recordAudit(ctx, actor.ID, "PO_DELETE", "purchase_order", id, map[string]any{"number": po.Number})
	return nil
}

// CreateDelivery persists a delivery receipt. Types flagged
// auto_receive post immediately after creation.
func (s *Service) CreateDelivery(ctx context.Context, input CreateDeliveryInput) (DeliveryReceipt, error) {
	if len(input.Lines) == 0 {
		return DeliveryReceipt{}, lineError("at least one line is required")
	}
	if input.SupplierID <= 0 {
		return DeliveryReceipt{}, fieldError("supplier_id", "is required")
	}
	machine, dt, err := s.workflow.MachineFor(ctx, input.TypeCode)
	if err != nil {
		return DeliveryReceipt{}, err
	}
	if dt.AppliesTo != workflow.AppliesDelivery {
		return DeliveryReceipt{}, fmt.Errorf("%w: type %s does not apply to deliveries", shared.ErrValidation, dt.Code)
	}

	lines := make([]DeliveryLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		if in.ProductID <= 0 || !in.ReceivedQty.IsPositive() {
			return DeliveryReceipt{}, lineError("every line needs a product and a positive received quantity")
		}
		quality := in.Quality
		if quality == "" {
			quality = QualityPending
		}
		if !quality.Valid() {
			return DeliveryReceipt{}, lineError("quality must be PENDING, PASSED or FAILED")
		}
		line := DeliveryLine{
			ProductID: in.ProductID, OrderedQty: in.OrderedQty, ReceivedQty: in.ReceivedQty,
			UnitCost: in.UnitCost, BatchNo: in.BatchNo, ExpiryDate: in.ExpiryDate, Quality: quality,
		}
		line.Variance = variance(line)
		lines = append(lines, line)
	}

	actor := shared.ActorFromContext(ctx)
	number, err := s.resolveNumber(ctx, input.Number, dt.Code, input.LocationID, actor.ID)
	if err != nil {
		return DeliveryReceipt{}, err
	}
	if err := s.claimKey(ctx, input.IdempotencyKey, "purchases.delivery"); err != nil {
		return DeliveryReceipt{}, err
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	dr := DeliveryReceipt{
		Number:     number,
		TypeCode:   dt.Code,
		LocationID: input.LocationID,
		SupplierID: input.SupplierID,
		OrderID:    input.OrderID,
		ReceivedAt: receivedAt,
		Status:     machine.Initial(),
		Note:       input.Note,
		CreatedBy:  actor.ID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateDelivery(ctx, dr)
		if err != nil {
			return err
		}
		dr.ID = id
		for i := range lines {
			lines[i].ReceiptID = id
			if err := tx.InsertDeliveryLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.releaseKey(ctx, input.IdempotencyKey)
		return DeliveryReceipt{}, err
	}
	dr.Lines = lines

	s.metrics.DocumentCreated(dt.Code)
	s.recordAudit(ctx, actor.ID, "DR_CREATE", "delivery_receipt", dr.ID, map[string]any{"number": dr.Number})

	if dt.AutoReceive {
		if err := s.ReceiveDelivery(ctx, dr.ID, "auto-received on creation"); err != nil {
			return DeliveryReceipt{}, err
		}
		return s.repo.GetDelivery(ctx, dr.ID)
	}
	return dr, nil
}

func (s *Service) GetDelivery(ctx context.Context, id int64) (DeliveryReceipt, error) {
	return s.repo.GetDelivery(ctx, id)
}

func (s *Service) ListDeliveries(ctx context.Context, filters ListFilters) ([]DeliveryReceipt, int, error) {
	return s.repo.ListDeliveries(ctx, filters)
}

func (s *Service) DeleteDelivery(ctx context.Context, id int64) error {
	dr, err := s.repo.GetDelivery(ctx, id)
	if err != nil {
		return err
	}
	machine, _, err := s.workflow.MachineFor(ctx, dr.TypeCode)
	if err != nil {
		return err
	}
	if !machine.CanDelete(dr.Status) {
		return fmt.Errorf("%w: status %s does not allow deletion", shared.ErrInvalidState, dr.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteDelivery(ctx, id)
	})
	if err != nil {
		return err
	}
	actor := shared.ActorFromContext(ctx)
	s.recordAudit(ctx, actor.ID, "DR_DELETE", "delivery_receipt", id, map[string]any{"number": dr.Number})
	return nil
}

func (s *Service) priceOrderLines(ctx context.Context, inputs []OrderLineInput) ([]OrderLine, error) {
	lines := make([]OrderLine, 0, len(inputs))
	for _, in := range inputs {
		if in.ProductID <= 0 || !in.Qty.IsPositive() {
			return nil, lineError("every line needs a product and a positive quantity")
		}
		if in.UnitPrice.IsNegative() {
			return nil, lineError("unit price cannot be negative")
		}
		if in.DiscountPct.IsNegative() || in.DiscountPct.GreaterThan(hundred) {
			return nil, lineError("discount percent must be between 0 and 100")
		}
		group, err := s.taxes.Get(ctx, in.TaxGroupID)
		if err != nil {
			return nil, fmt.Errorf("purchases: tax group %d: %w", in.TaxGroupID, err)
		}
		line := OrderLine{
			ProductID: in.ProductID, Qty: in.Qty, UnitPrice: in.UnitPrice,
			TaxGroupID: group.ID, DiscountPct: in.DiscountPct,
		}
		lines = append(lines, priceLine(line, group.Rate))
	}
	return lines, nil
}

func (s *Service) resolveNumber(ctx context.Context, explicit, typeCode string, locationID, userID int64) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	return s.numbering.Next(ctx, typeCode, locationID, userID, time.Now())
}

func (s *Service) claimKey(ctx context.Context, key, module string) error {
	if key == "" || s.idempotency == nil {
		return nil
	}
	return s.idempotency.CheckAndInsert(ctx, key, module)
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key", slog.Any("error", err), slog.String("key", key))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record audit", slog.Any("error", err), slog.String("action", action))
	}
}

func (s *Service) record(ctx context.Context, entry workflow.LogEntry) {
	if _, err := s.workflow.Record(ctx, entry); err != nil {
		s.logger.Warn("record workflow entry", slog.Any("error", err),
			slog.String("action", string(entry.Action)), slog.String("ref", entry.DocumentRef.String()))
	}
}

func validateRequestLines(lines []RequestLineInput) error {
	if len(lines) == 0 {
		return lineError("at least one line is required")
	}
	for _, line := range lines {
		if line.ProductID <= 0 || !line.Qty.IsPositive() {
			return lineError("every line needs a product and a positive quantity")
		}
		if line.EstUnitPrice.IsNegative() {
			return lineError("estimated price cannot be negative")
		}
	}
	return nil
}

func lineError(msg string) error {
	return fieldError("lines", msg)
}

func fieldError(field, msg string) error {
	fields := shared.NewFieldErrors()
	fields.Add(field, msg)
	return fields.Err()
}
