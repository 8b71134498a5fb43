// Package billing issues invoices and receipts and batches invoices into
// bill groups sharing one issue date.
package billing

import (
	"errors"
	"strconv"
	"time"
)

// Code series prefixes. Invoice codes carry no prefix, only the dashed
// period and run number.
const (
	InvoicePrefix   = ""
	BillGroupPrefix = "BG"
	ReceiptPrefix   = "RC"
)

// Invoice bills either a whole quotation or a single installment, never
// both. One invoice exists per quotation; regenerating on a new date moves
// the date instead of minting a second row.
type Invoice struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	QuotationID   *int64    `json:"quotation_id,omitempty"`
	InstallmentID *int64    `json:"installment_id,omitempty"`
	InvoiceDate   time.Time `json:"invoice_date"`
	Amount        float64   `json:"amount"`
	AmountWithVAT float64   `json:"amount_with_vat"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BillGroup batches the invoices issued on one date. It is created lazily by
// the first invoice of that date and removed when the last member detaches.
type BillGroup struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	GroupDate time.Time `json:"group_date"`
	CreatedAt time.Time `json:"created_at"`

	InvoiceIDs []int64 `json:"invoice_ids,omitempty"`
}

// Receipt acknowledges a payment against an invoice.
type Receipt struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	InvoiceID  int64     `json:"invoice_id"`
	Amount     float64   `json:"amount"`
	ReceivedAt time.Time `json:"received_at"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sentinel errors.
var (
	ErrNotFound   = errors.New("billing: not found")
	ErrValidation = errors.New("billing: invalid input")
	ErrNoTotal    = errors.New("billing: quotation has no grand total")
)

// AuditEntity implements shared.Diffable.
func (inv *Invoice) AuditEntity() string { return "invoice" }

// AuditRecordID implements shared.Diffable.
func (inv *Invoice) AuditRecordID() string { return strconv.FormatInt(inv.ID, 10) }

// AuditSnapshot implements shared.Diffable.
func (inv *Invoice) AuditSnapshot() map[string]any {
	snap := map[string]any{
		"code":            inv.Code,
		"invoice_date":    inv.InvoiceDate.Format("2006-01-02"),
		"amount":          inv.Amount,
		"amount_with_vat": inv.AmountWithVAT,
	}
	if inv.QuotationID != nil {
		snap["quotation_id"] = *inv.QuotationID
	}
	if inv.InstallmentID != nil {
		snap["installment_id"] = *inv.InstallmentID
	}
	return snap
}
