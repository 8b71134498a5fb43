package billing

import (
	"context"
	"time"
)

// RepositoryPort describes the read side used by Service outside of a
// transaction.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	GetBillGroup(ctx context.Context, id int64) (*BillGroup, error)
	ReceiptsForInvoice(ctx context.Context, invoiceID int64) ([]Receipt, error)
}

// TxRepository exposes the transactional operations. Invoice generation
// reads quotation and installment figures, so those lookups live here.
type TxRepository interface {
	LockSeries(ctx context.Context, key string) error
	InvoiceCodes(ctx context.Context, prefix string) ([]string, error)
	BillGroupCodes(ctx context.Context, prefix string) ([]string, error)
	ReceiptCodes(ctx context.Context, prefix string) ([]string, error)

	InvoiceForQuotation(ctx context.Context, quotationID int64) (*Invoice, error)
	InvoiceForInstallment(ctx context.Context, installmentID int64) (*Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	SetInvoiceDate(ctx context.Context, id int64, date time.Time) error
	DeleteInvoice(ctx context.Context, id int64) error

	BillGroupForDate(ctx context.Context, date time.Time) (*BillGroup, error)
	CreateBillGroup(ctx context.Context, bg BillGroup) (int64, error)
	AddMember(ctx context.Context, billGroupID, invoiceID int64) error
	RemoveMemberByInvoice(ctx context.Context, invoiceID int64) (billGroupID int64, err error)
	CountMembers(ctx context.Context, billGroupID int64) (int, error)
	DeleteBillGroup(ctx context.Context, id int64) error

	CreateReceipt(ctx context.Context, rc Receipt) (int64, error)
	DeleteReceiptsForInvoice(ctx context.Context, invoiceID int64) error

	// QuotationGrandTotal returns the locked quotation's cached totals.
	QuotationGrandTotal(ctx context.Context, quotationID int64) (totalPrice, grandTotal *float64, err error)
	// InstallmentAmounts returns an installment's pre-VAT and VAT-inclusive
	// figures.
	InstallmentAmounts(ctx context.Context, installmentID int64) (amount, amountWithVAT float64, err error)
}
