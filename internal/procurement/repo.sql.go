package procurement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-erp/tradewind-erp/internal/docnum"
	"github.com/tradewind-erp/tradewind-erp/internal/finance"
	"github.com/tradewind-erp/tradewind-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const poColumns = `id, code, quotation_id, vendor_id, order_date, status, total_price, discount, tax, grand_total, manual_price, created_by, created_at, updated_at`

func scanPO(row pgx.Row) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Code, &po.QuotationID, &po.VendorID, &po.OrderDate, &po.Status,
		&po.TotalPrice, &po.Discount, &po.Tax, &po.GrandTotal, &po.ManualPrice,
		&po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// Get returns a purchase order with its items, ordered by line_order.
func (r *Repository) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	po.Items, err = queryItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return po, nil
}

// List returns purchase orders matching the filter plus the unpaged total.
func (r *Repository) List(ctx context.Context, req ListPOsRequest) ([]PurchaseOrder, int, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if req.VendorID != nil {
		add("vendor_id = $%d", *req.VendorID)
	}
	if req.QuotationID != nil {
		add("quotation_id = $%d", *req.QuotationID)
	}
	if req.Status != nil {
		add("status = $%d", *req.Status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM purchase_orders%s ORDER BY order_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		poColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, req.Limit, req.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) LockSeries(ctx context.Context, key string) error {
	return db.AdvisoryLock(ctx, r.tx, key)
}

func (r *txRepo) Codes(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT code FROM purchase_orders WHERE code LIKE $1`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return scanPO(r.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) Create(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (code, quotation_id, vendor_id, order_date, status, total_price, discount, tax, grand_total, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now()) RETURNING id`,
		po.Code, po.QuotationID, po.VendorID, po.OrderDate, po.Status, po.TotalPrice, po.Discount, po.Tax, po.GrandTotal, po.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: code %s taken", docnum.ErrNoSequence, po.Code)
	}
	return id, err
}

func (r *txRepo) SetStatus(ctx context.Context, id int64, status POStatus) error {
	return r.exec(ctx, `UPDATE purchase_orders SET status = $1, updated_at = now() WHERE id = $2`, status, id)
}

func (r *txRepo) SetSummary(ctx context.Context, id int64, totalPrice, discount, tax, grandTotal float64) error {
	return r.exec(ctx, `UPDATE purchase_orders SET total_price = $1, discount = $2, tax = $3, grand_total = $4, updated_at = now() WHERE id = $5`,
		totalPrice, discount, tax, grandTotal, id)
}

func (r *txRepo) ApplyWithholdingDelta(ctx context.Context, id int64, delta float64) error {
	return r.exec(ctx, `UPDATE purchase_orders SET tax = tax + $1, grand_total = grand_total - $1, updated_at = now() WHERE id = $2`, delta, id)
}

func (r *txRepo) SetManualPrice(ctx context.Context, id int64, price *float64) error {
	return r.exec(ctx, `UPDATE purchase_orders SET manual_price = $1, updated_at = now() WHERE id = $2`, price, id)
}

func (r *txRepo) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
}

func (r *txRepo) Items(ctx context.Context, poID int64) ([]Item, error) {
	return queryItems(ctx, r.tx, poID)
}

func (r *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, quotation_line_id, product_id, description, quantity, unit_price, discount, extra_cost, withholding, line_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		item.PurchaseOrderID, item.QuotationLineID, item.ProductID, item.Description, item.Quantity, item.UnitPrice, item.Discount, item.ExtraCost, item.Withholding, item.LineOrder).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateItem(ctx context.Context, item Item) error {
	return r.exec(ctx, `UPDATE purchase_order_items SET description = $1, quantity = $2, unit_price = $3, discount = $4, extra_cost = $5 WHERE id = $6`,
		item.Description, item.Quantity, item.UnitPrice, item.Discount, item.ExtraCost, item.ID)
}

func (r *txRepo) SetItemWithholding(ctx context.Context, itemID int64, enabled bool) error {
	return r.exec(ctx, `UPDATE purchase_order_items SET withholding = $1 WHERE id = $2`, enabled, itemID)
}

func (r *txRepo) DeleteItem(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM purchase_order_items WHERE id = $1`, id)
}

func (r *txRepo) RenumberItems(ctx context.Context, poID int64, orderedIDs []int64) error {
	for i, id := range orderedIDs {
		if err := r.exec(ctx, `UPDATE purchase_order_items SET line_order = $1 WHERE id = $2 AND po_id = $3`, i+1, id, poID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) DeleteItems(ctx context.Context, poID int64) error {
	return r.exec(ctx, `DELETE FROM purchase_order_items WHERE po_id = $1`, poID)
}

func (r *txRepo) CountForQuotation(ctx context.Context, quotationID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE quotation_id = $1`, quotationID).Scan(&n)
	return n, err
}

func (r *txRepo) DeleteConsumedQuotationLines(ctx context.Context, poID int64) error {
	return r.exec(ctx, `DELETE FROM quotation_lines WHERE consumed_by_po_id = $1`, poID)
}

func (r *txRepo) ClearConsumedMarks(ctx context.Context, poID int64) error {
	return r.exec(ctx, `UPDATE quotation_lines SET consumed_by_po_id = NULL WHERE consumed_by_po_id = $1`, poID)
}

func (r *txRepo) QuotationFinance(ctx context.Context, quotationID int64) (bool, []finance.Line, error) {
	var vatIncluded bool
	if err := r.tx.QueryRow(ctx, `SELECT vat_included FROM quotations WHERE id = $1`, quotationID).Scan(&vatIncluded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, ErrNotFound
		}
		return false, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT quantity, unit_price, unit_cost, discount, extra_cost, withholding
FROM quotation_lines WHERE quotation_id = $1 ORDER BY line_order`, quotationID)
	if err != nil {
		return false, nil, err
	}
	defer rows.Close()
	var lines []finance.Line
	for rows.Next() {
		var l finance.Line
		if err := rows.Scan(&l.Quantity, &l.UnitPrice, &l.UnitCost, &l.Discount, &l.ExtraCost, &l.Withholding); err != nil {
			return false, nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return false, nil, err
	}
	return vatIncluded, lines, nil
}

func (r *txRepo) SetQuotationSummary(ctx context.Context, quotationID int64, s *finance.Summary, locked bool) error {
	if s == nil {
		return r.exec(ctx, `UPDATE quotations SET total_cost = NULL, total_price = NULL, discount = NULL, vat = NULL,
withholding_tax = NULL, grand_total = NULL, is_locked = $1, updated_at = now() WHERE id = $2`, locked, quotationID)
	}
	return r.exec(ctx, `UPDATE quotations SET total_cost = $1, total_price = $2, discount = $3, vat = $4,
withholding_tax = $5, grand_total = $6, is_locked = $7, updated_at = now() WHERE id = $8`,
		s.TotalCost, s.TotalPrice, s.Discount, s.VAT, s.WithholdingTax, s.GrandTotal, locked, quotationID)
}

func (r *txRepo) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.tx.Exec(ctx, query, args...)
	return err
}

func queryItems(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, poID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, quotation_line_id, product_id, description, quantity, unit_price, discount, extra_cost, withholding, line_order
FROM purchase_order_items WHERE po_id = $1 ORDER BY line_order`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.QuotationLineID, &it.ProductID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Discount, &it.ExtraCost, &it.Withholding, &it.LineOrder); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
