// Package procurement owns purchase orders after their creation, whether
// generated from a quotation or entered manually.
package procurement

import (
	"errors"
	"strconv"
	"time"
)

// Purchase order statuses.
type POStatus string

const (
	POStatusOpen     POStatus = "OPEN"
	POStatusSent     POStatus = "SENT"
	POStatusReceived POStatus = "RECEIVED"
	POStatusClosed   POStatus = "CLOSED"
)

// PurchaseOrder aggregates its items into cached summary fields. Tax holds
// the withholding total; GrandTotal already nets it off. ManualPrice is an
// operator-entered figure allowed only on orders not derived from a
// quotation.
type PurchaseOrder struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	QuotationID *int64    `json:"quotation_id,omitempty"`
	VendorID    int64     `json:"vendor_id"`
	OrderDate   time.Time `json:"order_date"`
	Status      POStatus  `json:"status"`
	TotalPrice  float64   `json:"total_price"`
	Discount    float64   `json:"discount"`
	Tax         float64   `json:"tax"`
	GrandTotal  float64   `json:"grand_total"`
	ManualPrice *float64  `json:"manual_price,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Items []Item `json:"items,omitempty"`
}

// Item is one purchase order line. QuotationLineID links back to the source
// quotation line when the order was generated.
type Item struct {
	ID              int64    `json:"id"`
	PurchaseOrderID int64    `json:"purchase_order_id"`
	QuotationLineID *int64   `json:"quotation_line_id,omitempty"`
	ProductID       int64    `json:"product_id"`
	Description     *string  `json:"description,omitempty"`
	Quantity        float64  `json:"quantity"`
	UnitPrice       float64  `json:"unit_price"`
	Discount        float64  `json:"discount"`
	ExtraCost       float64  `json:"extra_cost"`
	Withholding     bool     `json:"withholding"`
	LineOrder       int      `json:"line_order"`
}

// Sentinel errors.
var (
	ErrNotFound         = errors.New("procurement: not found")
	ErrValidation       = errors.New("procurement: invalid input")
	ErrQuotationDerived = errors.New("procurement: manual price not allowed on quotation-derived order")
)

// AuditEntity implements shared.Diffable.
func (po *PurchaseOrder) AuditEntity() string { return "purchase_order" }

// AuditRecordID implements shared.Diffable.
func (po *PurchaseOrder) AuditRecordID() string { return strconv.FormatInt(po.ID, 10) }

// AuditSnapshot implements shared.Diffable.
func (po *PurchaseOrder) AuditSnapshot() map[string]any {
	snap := map[string]any{
		"code":        po.Code,
		"vendor_id":   po.VendorID,
		"status":      string(po.Status),
		"total_price": po.TotalPrice,
		"discount":    po.Discount,
		"tax":         po.Tax,
		"grand_total": po.GrandTotal,
	}
	if po.QuotationID != nil {
		snap["quotation_id"] = *po.QuotationID
	}
	if po.ManualPrice != nil {
		snap["manual_price"] = *po.ManualPrice
	}
	return snap
}
