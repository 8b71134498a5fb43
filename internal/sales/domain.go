// Package sales owns quotations, their line items and installment schedules,
// and orchestrates the quotation -> purchase order -> invoice chain.
package sales

import (
	"errors"
	"strconv"
	"time"
)

// Quotation lifecycle statuses, in chain order.
type QuotationStatus string

const (
	StatusOpen            QuotationStatus = "OPEN"
	StatusPendingApproval QuotationStatus = "PENDING_APPROVAL"
	StatusOffer           QuotationStatus = "OFFER"
	StatusApproved        QuotationStatus = "APPROVED"
	StatusPOPreparing     QuotationStatus = "PO_PREPARING"
	StatusPOSent          QuotationStatus = "PO_SENT"
	StatusProductReceived QuotationStatus = "PRODUCT_RECEIVED"
	StatusOrderPreparing  QuotationStatus = "ORDER_PREPARING"
	StatusDelivered       QuotationStatus = "DELIVERED"
	StatusPaid            QuotationStatus = "PAID"
	// StatusArchived is absorbing and reachable from any state.
	StatusArchived QuotationStatus = "ARCHIVED"
)

var statusChain = []QuotationStatus{
	StatusOpen,
	StatusPendingApproval,
	StatusOffer,
	StatusApproved,
	StatusPOPreparing,
	StatusPOSent,
	StatusProductReceived,
	StatusOrderPreparing,
	StatusDelivered,
	StatusPaid,
}

func statusIndex(s QuotationStatus) int {
	for i, c := range statusChain {
		if c == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether the status field may move from current to
// target: one step forward along the chain, or into ARCHIVED from anywhere.
func CanTransition(current, target QuotationStatus) bool {
	if target == StatusArchived {
		return current != StatusArchived
	}
	ci, ti := statusIndex(current), statusIndex(target)
	if ci < 0 || ti < 0 {
		return false
	}
	return ti == ci+1
}

// Installment statuses.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
	InstallmentDraft   InstallmentStatus = "DRAFT"
)

// Quotation is the root sales document. The monetary summary fields are
// caches over the line items; they are nil until the first recomputation and
// return to nil on rollback.
type Quotation struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	CustomerID     int64           `json:"customer_id"`
	QuoteDate      time.Time       `json:"quote_date"`
	Status         QuotationStatus `json:"status"`
	VATIncluded    bool            `json:"vat_included"`
	IsLocked       bool            `json:"is_locked"`
	TotalCost      *float64        `json:"total_cost,omitempty"`
	TotalPrice     *float64        `json:"total_price,omitempty"`
	Discount       *float64        `json:"discount,omitempty"`
	VAT            *float64        `json:"vat,omitempty"`
	WithholdingTax *float64        `json:"withholding_tax,omitempty"`
	GrandTotal     *float64        `json:"grand_total,omitempty"`

	OutstandingBalance    *float64 `json:"outstanding_balance,omitempty"`
	OutstandingGrandTotal *float64 `json:"outstanding_grand_total,omitempty"`

	ApprovedBy *string    `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Lines []Line `json:"lines,omitempty"`
}

// Line is one quotation line item. LineOrder is a dense 1-based sequence per
// quotation; ConsumedByPOID is set once the line has been copied into a
// generated purchase order.
type Line struct {
	ID             int64    `json:"id"`
	QuotationID    int64    `json:"quotation_id"`
	VendorID       int64    `json:"vendor_id"`
	ProductID      int64    `json:"product_id"`
	Description    *string  `json:"description,omitempty"`
	Quantity       float64  `json:"quantity"`
	UnitPrice      float64  `json:"unit_price"`
	UnitCost       float64  `json:"unit_cost"`
	Discount       float64  `json:"discount"`
	ExtraCost      float64  `json:"extra_cost"`
	Withholding    bool     `json:"withholding"`
	LineOrder      int      `json:"line_order"`
	ConsumedByPOID *int64   `json:"consumed_by_po_id,omitempty"`
}

// Installment is one slice of a quotation's payment schedule. The count is
// fixed at planning time; only status, amounts and dates change afterwards.
type Installment struct {
	ID            int64             `json:"id"`
	QuotationID   int64             `json:"quotation_id"`
	Period        string            `json:"period"`
	Amount        float64           `json:"amount"`
	AmountWithVAT float64           `json:"amount_with_vat"`
	DueDate       time.Time         `json:"due_date"`
	Status        InstallmentStatus `json:"status"`
	PaidDate      *time.Time        `json:"paid_date,omitempty"`
}

// GeneratedPO is the purchase order shape minted by GenerateAllPOs. The
// procurement package owns the richer model used for later item edits.
type GeneratedPO struct {
	ID             int64
	Code           string
	QuotationID    int64
	VendorID       int64
	OrderDate      time.Time
	TotalPrice     float64
	Discount       float64
	Tax            float64
	GrandTotal     float64
	CreatedBy      string
}

// GeneratedPOItem mirrors a quotation line inside a generated PO. Unit price
// on the purchase side is the quotation line's unit cost.
type GeneratedPOItem struct {
	PurchaseOrderID int64
	QuotationLineID int64
	ProductID       int64
	Description     *string
	Quantity        float64
	UnitPrice       float64
	Discount        float64
	ExtraCost       float64
	Withholding     bool
	LineOrder       int
}

// Sentinel errors. Validation and conflict conditions carry distinct
// identities so callers can show the precise blocking reason.
var (
	ErrNotFound           = errors.New("sales: not found")
	ErrValidation         = errors.New("sales: invalid input")
	ErrInvalidStatus      = errors.New("sales: invalid status transition")
	ErrLocked             = errors.New("sales: quotation is locked")
	ErrNotLocked          = errors.New("sales: quotation is not locked")
	ErrAlreadyGenerated   = errors.New("sales: purchase orders already generated")
	ErrInstallmentsExist  = errors.New("sales: installments already planned")
	ErrNoTotal            = errors.New("sales: quotation has no total price")
	ErrInvoiceExists      = errors.New("sales: rollback blocked by existing invoice")
	ErrBillGroupExists    = errors.New("sales: rollback blocked by existing bill group")
)

// AuditEntity implements shared.Diffable.
func (q *Quotation) AuditEntity() string { return "quotation" }

// AuditRecordID implements shared.Diffable.
func (q *Quotation) AuditRecordID() string { return strconv.FormatInt(q.ID, 10) }

// AuditSnapshot implements shared.Diffable.
func (q *Quotation) AuditSnapshot() map[string]any {
	snap := map[string]any{
		"code":         q.Code,
		"customer_id":  q.CustomerID,
		"status":       string(q.Status),
		"vat_included": q.VATIncluded,
		"is_locked":    q.IsLocked,
	}
	addAmount := func(key string, v *float64) {
		if v != nil {
			snap[key] = *v
		}
	}
	addAmount("total_price", q.TotalPrice)
	addAmount("discount", q.Discount)
	addAmount("vat", q.VAT)
	addAmount("withholding_tax", q.WithholdingTax)
	addAmount("grand_total", q.GrandTotal)
	return snap
}
