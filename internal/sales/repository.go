package sales

import (
	"context"
	"time"

	"github.com/tradewind-erp/tradewind-erp/internal/finance"
)

// RepositoryPort describes the read side used by Service outside of a
// transaction.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error)
	Installments(ctx context.Context, quotationID int64) ([]Installment, error)
	QuotationCodesLike(ctx context.Context, prefix string) ([]string, error)
	MarkOverdueInstallments(ctx context.Context, now time.Time) (int64, error)
}

// TxRepository exposes the transactional operations the lifecycle
// orchestration runs. Everything inside one callback shares one transaction;
// a failure anywhere rolls the whole unit back.
type TxRepository interface {
	// LockSeries serializes sequence allocation for one code series period.
	LockSeries(ctx context.Context, key string) error
	QuotationCodes(ctx context.Context, prefix string) ([]string, error)
	PurchaseOrderCodes(ctx context.Context, prefix string) ([]string, error)

	GetForUpdate(ctx context.Context, id int64) (*Quotation, error)
	CreateQuotation(ctx context.Context, q Quotation) (int64, error)
	SetStatus(ctx context.Context, id int64, status QuotationStatus, approvedBy *string, approvedAt *time.Time) error
	SetSummary(ctx context.Context, id int64, s *finance.Summary, locked bool) error
	SetOutstanding(ctx context.Context, id int64, balance, grandTotal *float64) error
	OverrideSummary(ctx context.Context, id int64, fields map[string]float64) error
	DeleteQuotation(ctx context.Context, id int64) error

	Lines(ctx context.Context, quotationID int64) ([]Line, error)
	InsertLine(ctx context.Context, l Line) (int64, error)
	UpdateLine(ctx context.Context, l Line) error
	DeleteLine(ctx context.Context, id int64) error
	RenumberLines(ctx context.Context, quotationID int64, orderedIDs []int64) error
	DeleteLines(ctx context.Context, quotationID int64) error

	CreatePurchaseOrder(ctx context.Context, po GeneratedPO) (int64, error)
	InsertPurchaseOrderItem(ctx context.Context, item GeneratedPOItem) (int64, error)
	MarkLineConsumed(ctx context.Context, lineID, poID int64) error
	DeleteGeneratedPOs(ctx context.Context, quotationID int64) error

	InsertInstallment(ctx context.Context, ins Installment) (int64, error)
	Installments(ctx context.Context, quotationID int64) ([]Installment, error)
	GetInstallment(ctx context.Context, id int64) (*Installment, error)
	UpdateInstallment(ctx context.Context, ins Installment) error
	DeleteInstallments(ctx context.Context, quotationID int64) error

	HasInvoice(ctx context.Context, quotationID int64) (bool, error)
	HasBillGroupRef(ctx context.Context, quotationID int64) (bool, error)
	DeleteBillingForQuotation(ctx context.Context, quotationID int64) error
}
