package purchases

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the three purchase document families.
type Kind string

const (
	KindRequest  Kind = "REQUEST"
	KindOrder    Kind = "ORDER"
	KindDelivery Kind = "DELIVERY"
)

// QualityStatus tracks the quality check outcome on a delivery line.
type QualityStatus string

const (
	QualityPending QualityStatus = "PENDING"
	QualityPassed  QualityStatus = "PASSED"
	QualityFailed  QualityStatus = "FAILED"
)

func (q QualityStatus) Valid() bool {
	switch q {
	case QualityPending, QualityPassed, QualityFailed:
		return true
	}
	return false
}

// PurchaseRequest is an internal demand document.
type PurchaseRequest struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	TypeCode    string          `json:"type_code"`
	LocationID  int64           `json:"location_id"`
	SupplierID  *int64          `json:"supplier_id,omitempty"`
	RequesterID int64           `json:"requester_id"`
	Status      string          `json:"status"`
	Note        string          `json:"note"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Lines       []RequestLine   `json:"lines,omitempty"`
}

type RequestLine struct {
	ID            int64           `json:"id"`
	RequestID     int64           `json:"request_id"`
	ProductID     int64           `json:"product_id"`
	GroupID       *int64          `json:"group_id,omitempty"`
	BrandID       *int64          `json:"brand_id,omitempty"`
	Qty           decimal.Decimal `json:"qty"`
	EstUnitPrice  decimal.Decimal `json:"est_unit_price"`
	Note          string          `json:"note"`
}

// PurchaseOrder is a confirmed commitment to a supplier.
type PurchaseOrder struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	TypeCode      string          `json:"type_code"`
	LocationID    int64           `json:"location_id"`
	SupplierID    int64           `json:"supplier_id"`
	Currency      string          `json:"currency"`
	ExpectedDate  *time.Time      `json:"expected_date,omitempty"`
	PaymentTerms  string          `json:"payment_terms"`
	DeliveryTerms string          `json:"delivery_terms"`
	Status        string          `json:"status"`
	Note          string          `json:"note"`
	NetTotal      decimal.Decimal `json:"net_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	GrossTotal    decimal.Decimal `json:"gross_total"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Lines         []OrderLine     `json:"lines,omitempty"`
}

type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxGroupID  int64           `json:"tax_group_id"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	Net         decimal.Decimal `json:"net"`
	Tax         decimal.Decimal `json:"tax"`
	Gross       decimal.Decimal `json:"gross"`
}

// DeliveryReceipt records goods arriving against an order.
type DeliveryReceipt struct {
	ID         int64          `json:"id"`
	Number     string         `json:"number"`
	TypeCode   string         `json:"type_code"`
	LocationID int64          `json:"location_id"`
	SupplierID int64          `json:"supplier_id"`
	OrderID    *int64         `json:"order_id,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
	Status     string         `json:"status"`
	Note       string         `json:"note"`
	CreatedBy  int64          `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Lines      []DeliveryLine `json:"lines,omitempty"`
}

type DeliveryLine struct {
	ID          int64           `json:"id"`
	ReceiptID   int64           `json:"receipt_id"`
	ProductID   int64           `json:"product_id"`
	OrderedQty  decimal.Decimal `json:"ordered_qty"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Variance    decimal.Decimal `json:"variance"`
	BatchNo     string          `json:"batch_no"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	Quality     QualityStatus   `json:"quality"`
}

// RequestRef derives the stable correlation uuid for a request.
func RequestRef(id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PR:%d", id)))
}

func OrderRef(id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PO:%d", id)))
}

func DeliveryRef(id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("DR:%d", id)))
}
