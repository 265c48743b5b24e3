package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AppliesTo names the document family a type configures.
type AppliesTo string

const (
	AppliesRequest  AppliesTo = "REQUEST"
	AppliesOrder    AppliesTo = "ORDER"
	AppliesDelivery AppliesTo = "DELIVERY"
)

func (a AppliesTo) Valid() bool {
	switch a {
	case AppliesRequest, AppliesOrder, AppliesDelivery:
		return true
	}
	return false
}

// StockDirection is how a stock-affecting type moves inventory.
type StockDirection string

const (
	StockIn   StockDirection = "IN"
	StockOut  StockDirection = "OUT"
	StockNone StockDirection = "NONE"
)

func (d StockDirection) Valid() bool {
	switch d {
	case StockIn, StockOut, StockNone:
		return true
	}
	return false
}

// DocumentType is a configured document kind with its behaviour flags.
type DocumentType struct {
	ID                   int64          `json:"id"`
	Code                 string         `json:"code"`
	Name                 string         `json:"name"`
	AppliesTo            AppliesTo      `json:"applies_to"`
	AffectsStock         bool           `json:"affects_stock"`
	StockDirection       StockDirection `json:"stock_direction"`
	AutoConfirm          bool           `json:"auto_confirm"`
	AutoReceive          bool           `json:"auto_receive"`
	RequiresBatch        bool           `json:"requires_batch"`
	RequiresExpiry       bool           `json:"requires_expiry"`
	RequiresQualityCheck bool           `json:"requires_quality_check"`
	IsActive             bool           `json:"is_active"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Status is one entry in a document type's ordered status set.
type Status struct {
	ID             int64  `json:"id"`
	DocumentTypeID int64  `json:"document_type_id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	SortOrder      int    `json:"sort_order"`
	IsInitial      bool   `json:"is_initial"`
	IsFinal        bool   `json:"is_final"`
	IsCancellation bool   `json:"is_cancellation"`
	AllowEdit      bool   `json:"allow_edit"`
	AllowDelete    bool   `json:"allow_delete"`
}

// ApproverKind selects how a rule's approver reference is resolved.
type ApproverKind string

const (
	ApproverUser       ApproverKind = "USER"
	ApproverRole       ApproverKind = "ROLE"
	ApproverPermission ApproverKind = "PERMISSION"
	// ApproverDynamic resolves against the document itself: anyone
	// holding the edit permission except the document's author.
	ApproverDynamic ApproverKind = "DYNAMIC"
)

func (k ApproverKind) Valid() bool {
	switch k {
	case ApproverUser, ApproverRole, ApproverPermission, ApproverDynamic:
		return true
	}
	return false
}

// ApprovalRule guards a transition for documents whose amount falls in
// the rule's range. Min/Max are open-ended when nil.
type ApprovalRule struct {
	ID            int64            `json:"id"`
	DocumentType  string           `json:"document_type"`
	FromStatus    string           `json:"from_status"`
	ToStatus      string           `json:"to_status"`
	MinAmount     *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount     *decimal.Decimal `json:"max_amount,omitempty"`
	Currency      string           `json:"currency"`
	ApproverKind  ApproverKind     `json:"approver_kind"`
	ApproverRef   string           `json:"approver_ref"`
	ApprovalLevel int              `json:"approval_level"`
	SortOrder     int              `json:"sort_order"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Action is what an approval log entry records.
type Action string

const (
	ActionSubmit     Action = "SUBMIT"
	ActionApprove    Action = "APPROVE"
	ActionReject     Action = "REJECT"
	ActionCancel     Action = "CANCEL"
	ActionReactivate Action = "REACTIVATE"
)

// LogEntry is an immutable record of a workflow action on a document.
type LogEntry struct {
	ID           int64     `json:"id"`
	DocumentRef  uuid.UUID `json:"document_ref"`
	DocumentType string    `json:"document_type"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	Action       Action    `json:"action"`
	RuleID       *int64    `json:"rule_id,omitempty"`
	Level        int       `json:"level"`
	ActorID      int64     `json:"actor_id"`
	ActorName    string    `json:"actor_name"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
}
