package billing

import "time"

type GenerateInvoiceRequest struct {
	QuotationID int64     `json:"quotation_id" validate:"required,gt=0"`
	InvoiceDate time.Time `json:"invoice_date" validate:"required"`
}

type GenerateInstallmentInvoiceRequest struct {
	InstallmentID int64     `json:"installment_id" validate:"required,gt=0"`
	InvoiceDate   time.Time `json:"invoice_date" validate:"required"`
}

type CreateReceiptRequest struct {
	InvoiceID  int64     `json:"invoice_id" validate:"required,gt=0"`
	Amount     float64   `json:"amount" validate:"required,gt=0"`
	ReceivedAt time.Time `json:"received_at" validate:"required"`
}

type ListInvoicesRequest struct {
	QuotationID *int64     `json:"quotation_id,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	Limit       int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int        `json:"offset" validate:"gte=0"`
}
