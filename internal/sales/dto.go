package sales

import "time"

type CreateQuotationRequest struct {
	CustomerID  int64            `json:"customer_id" validate:"required,gt=0"`
	QuoteDate   time.Time        `json:"quote_date" validate:"required"`
	VATIncluded bool             `json:"vat_included"`
	Lines       []CreateLineReq  `json:"lines" validate:"omitempty,dive"`
}

type CreateLineReq struct {
	VendorID    int64   `json:"vendor_id" validate:"required,gt=0"`
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Description *string `json:"description,omitempty"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
	Discount    float64 `json:"discount" validate:"gte=0"`
	ExtraCost   float64 `json:"extra_cost" validate:"gte=0"`
	Withholding bool    `json:"withholding"`
}

type UpdateLineRequest struct {
	Description *string  `json:"description,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice   *float64 `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	UnitCost    *float64 `json:"unit_cost,omitempty" validate:"omitempty,gte=0"`
	Discount    *float64 `json:"discount,omitempty" validate:"omitempty,gte=0"`
	ExtraCost   *float64 `json:"extra_cost,omitempty" validate:"omitempty,gte=0"`
	Withholding *bool    `json:"withholding,omitempty"`
}

type ListQuotationsRequest struct {
	CustomerID *int64           `json:"customer_id,omitempty"`
	Status     *QuotationStatus `json:"status,omitempty"`
	DateFrom   *time.Time       `json:"date_from,omitempty"`
	DateTo     *time.Time       `json:"date_to,omitempty"`
	Limit      int              `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int              `json:"offset" validate:"gte=0"`
}

// InstallmentUpdate is one entry of a batch status update. When
// AmountWithVAT is supplied the pre-VAT amount is rederived from it.
type InstallmentUpdate struct {
	ID            int64              `json:"id" validate:"required,gt=0"`
	Status        *InstallmentStatus `json:"status,omitempty"`
	AmountWithVAT *float64           `json:"amount_with_vat,omitempty" validate:"omitempty,gt=0"`
	DueDate       *time.Time         `json:"due_date,omitempty"`
	PaidDate      *time.Time         `json:"paid_date,omitempty"`
}

// SummaryOverride carries the manual override for locked quotations. Only
// the whitelisted fields exist; anything else is rejected at decode time.
type SummaryOverride struct {
	TotalPrice     *float64 `json:"total_price,omitempty" validate:"omitempty,gte=0"`
	Discount       *float64 `json:"discount,omitempty" validate:"omitempty,gte=0"`
	VAT            *float64 `json:"vat,omitempty" validate:"omitempty,gte=0"`
	WithholdingTax *float64 `json:"withholding_tax,omitempty" validate:"omitempty,gte=0"`
	GrandTotal     *float64 `json:"grand_total,omitempty" validate:"omitempty,gte=0"`
}
