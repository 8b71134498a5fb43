package procurement

import (
	"context"

	"github.com/tradewind-erp/tradewind-erp/internal/finance"
)

// RepositoryPort describes the read side used by Service outside of a
// transaction.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*PurchaseOrder, error)
	List(ctx context.Context, req ListPOsRequest) ([]PurchaseOrder, int, error)
}

// TxRepository exposes the transactional operations. Purchase order deletion
// reaches back into the owning quotation, so the quotation-facing methods
// live here alongside the order's own persistence.
type TxRepository interface {
	LockSeries(ctx context.Context, key string) error
	Codes(ctx context.Context, prefix string) ([]string, error)

	GetForUpdate(ctx context.Context, id int64) (*PurchaseOrder, error)
	Create(ctx context.Context, po PurchaseOrder) (int64, error)
	SetStatus(ctx context.Context, id int64, status POStatus) error
	SetSummary(ctx context.Context, id int64, totalPrice, discount, tax, grandTotal float64) error
	// ApplyWithholdingDelta adjusts tax and grand_total by the same amount
	// in one statement: tax += delta, grand_total -= delta.
	ApplyWithholdingDelta(ctx context.Context, id int64, delta float64) error
	SetManualPrice(ctx context.Context, id int64, price *float64) error
	Delete(ctx context.Context, id int64) error

	Items(ctx context.Context, poID int64) ([]Item, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateItem(ctx context.Context, item Item) error
	SetItemWithholding(ctx context.Context, itemID int64, enabled bool) error
	DeleteItem(ctx context.Context, id int64) error
	RenumberItems(ctx context.Context, poID int64, orderedIDs []int64) error
	DeleteItems(ctx context.Context, poID int64) error

	CountForQuotation(ctx context.Context, quotationID int64) (int, error)
	// DeleteConsumedQuotationLines removes the quotation lines this order's
	// items were generated from.
	DeleteConsumedQuotationLines(ctx context.Context, poID int64) error
	// ClearConsumedMarks detaches this order's items from their source
	// lines without deleting the lines.
	ClearConsumedMarks(ctx context.Context, poID int64) error
	QuotationFinance(ctx context.Context, quotationID int64) (vatIncluded bool, lines []finance.Line, err error)
	SetQuotationSummary(ctx context.Context, quotationID int64, s *finance.Summary, locked bool) error
}
