package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

const quotationColumns = `id, code, customer_id, quote_date, status, vat_included, is_locked,
total_cost, total_price, discount, vat, withholding_tax, grand_total,
outstanding_balance, outstanding_grand_total,
approved_by, approved_at, created_by, created_at, updated_at`

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.Code, &q.CustomerID, &q.QuoteDate, &q.Status, &q.VATIncluded, &q.IsLocked,
		&q.TotalCost, &q.TotalPrice, &q.Discount, &q.VAT, &q.WithholdingTax, &q.GrandTotal,
		&q.OutstandingBalance, &q.OutstandingGrandTotal,
		&q.ApprovedBy, &q.ApprovedAt, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

// Get returns a quotation with its lines, ordered by line_order.
func (r *Repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.pool.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	q.Lines, err = queryLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// List returns quotations matching the filter plus the unpaged total.
func (r *Repository) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if req.CustomerID != nil {
		add("customer_id = $%d", *req.CustomerID)
	}
	if req.Status != nil {
		add("status = $%d", *req.Status)
	}
	if req.DateFrom != nil {
		add("quote_date >= $%d", *req.DateFrom)
	}
	if req.DateTo != nil {
		add("quote_date <= $%d", *req.DateTo)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM quotations%s ORDER BY quote_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		quotationColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, req.Limit, req.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Installments returns the quotation's schedule ordered by due date.
func (r *Repository) Installments(ctx context.Context, quotationID int64) ([]Installment, error) {
	return queryInstallments(ctx, r.pool, quotationID)
}

// QuotationCodesLike returns quotation codes for one series period.
func (r *Repository) QuotationCodesLike(ctx context.Context, prefix string) ([]string, error) {
	return queryCodes(ctx, r.pool, `SELECT code FROM quotations WHERE code LIKE $1`, prefix)
}

// MarkOverdueInstallments flips pending installments past due to OVERDUE and
// returns how many changed.
func (r *Repository) MarkOverdueInstallments(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE installments SET status = $1 WHERE status = $2 AND due_date < $3`,
		InstallmentOverdue, InstallmentPending, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
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

func (r *txRepo) QuotationCodes(ctx context.Context, prefix string) ([]string, error) {
	return queryCodes(ctx, r.tx, `SELECT code FROM quotations WHERE code LIKE $1`, prefix)
}

func (r *txRepo) PurchaseOrderCodes(ctx context.Context, prefix string) ([]string, error) {
	return queryCodes(ctx, r.tx, `SELECT code FROM purchase_orders WHERE code LIKE $1`, prefix)
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	return scanQuotation(r.tx.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) CreateQuotation(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO quotations (code, customer_id, quote_date, status, vat_included, is_locked, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, false, $6, now(), now()) RETURNING id`,
		q.Code, q.CustomerID, q.QuoteDate, q.Status, q.VATIncluded, q.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: code %s taken", docnum.ErrNoSequence, q.Code)
	}
	return id, err
}

func (r *txRepo) SetStatus(ctx context.Context, id int64, status QuotationStatus, approvedBy *string, approvedAt *time.Time) error {
	if approvedBy != nil || approvedAt != nil {
		return exec(ctx, r.tx, `UPDATE quotations SET status = $1, approved_by = $2, approved_at = $3, updated_at = now() WHERE id = $4`,
			status, approvedBy, approvedAt, id)
	}
	return exec(ctx, r.tx, `UPDATE quotations SET status = $1, updated_at = now() WHERE id = $2`, status, id)
}

// SetSummary stores the cached rollup. A nil summary clears every cached
// amount back to NULL.
func (r *txRepo) SetSummary(ctx context.Context, id int64, s *finance.Summary, locked bool) error {
	if s == nil {
		return exec(ctx, r.tx, `UPDATE quotations SET total_cost = NULL, total_price = NULL, discount = NULL, vat = NULL,
withholding_tax = NULL, grand_total = NULL, is_locked = $1, updated_at = now() WHERE id = $2`, locked, id)
	}
	return exec(ctx, r.tx, `UPDATE quotations SET total_cost = $1, total_price = $2, discount = $3, vat = $4,
withholding_tax = $5, grand_total = $6, is_locked = $7, updated_at = now() WHERE id = $8`,
		s.TotalCost, s.TotalPrice, s.Discount, s.VAT, s.WithholdingTax, s.GrandTotal, locked, id)
}

func (r *txRepo) SetOutstanding(ctx context.Context, id int64, balance, grandTotal *float64) error {
	return exec(ctx, r.tx, `UPDATE quotations SET outstanding_balance = $1, outstanding_grand_total = $2, updated_at = now() WHERE id = $3`,
		balance, grandTotal, id)
}

// OverrideSummary patches only the supplied summary columns. The field names
// are the fixed whitelist from the service, never caller input.
func (r *txRepo) OverrideSummary(ctx context.Context, id int64, fields map[string]float64) error {
	var sets []string
	var args []any
	for _, col := range []string{"total_price", "discount", "vat", "withholding_tax", "grand_total"} {
		if v, ok := fields[col]; ok {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE quotations SET %s, updated_at = now() WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	return exec(ctx, r.tx, query, args...)
}

func (r *txRepo) DeleteQuotation(ctx context.Context, id int64) error {
	return exec(ctx, r.tx, `DELETE FROM quotations WHERE id = $1`, id)
}

func (r *txRepo) Lines(ctx context.Context, quotationID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, quotationID)
}

func (r *txRepo) InsertLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO quotation_lines (quotation_id, vendor_id, product_id, description, quantity, unit_price, unit_cost, discount, extra_cost, withholding, line_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		l.QuotationID, l.VendorID, l.ProductID, l.Description, l.Quantity, l.UnitPrice, l.UnitCost, l.Discount, l.ExtraCost, l.Withholding, l.LineOrder).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateLine(ctx context.Context, l Line) error {
	return exec(ctx, r.tx, `UPDATE quotation_lines SET description = $1, quantity = $2, unit_price = $3, unit_cost = $4, discount = $5, extra_cost = $6, withholding = $7 WHERE id = $8`,
		l.Description, l.Quantity, l.UnitPrice, l.UnitCost, l.Discount, l.ExtraCost, l.Withholding, l.ID)
}

func (r *txRepo) DeleteLine(ctx context.Context, id int64) error {
	return exec(ctx, r.tx, `DELETE FROM quotation_lines WHERE id = $1`, id)
}

// RenumberLines rewrites line_order densely from 1 following orderedIDs.
func (r *txRepo) RenumberLines(ctx context.Context, quotationID int64, orderedIDs []int64) error {
	for i, id := range orderedIDs {
		if err := exec(ctx, r.tx, `UPDATE quotation_lines SET line_order = $1 WHERE id = $2 AND quotation_id = $3`, i+1, id, quotationID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) DeleteLines(ctx context.Context, quotationID int64) error {
	return exec(ctx, r.tx, `DELETE FROM quotation_lines WHERE quotation_id = $1`, quotationID)
}

func (r *txRepo) CreatePurchaseOrder(ctx context.Context, po GeneratedPO) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (code, quotation_id, vendor_id, order_date, total_price, discount, tax, grand_total, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'OPEN', $9, now(), now()) RETURNING id`,
		po.Code, po.QuotationID, po.VendorID, po.OrderDate, po.TotalPrice, po.Discount, po.Tax, po.GrandTotal, po.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: code %s taken", docnum.ErrNoSequence, po.Code)
	}
	return id, err
}

func (r *txRepo) InsertPurchaseOrderItem(ctx context.Context, item GeneratedPOItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, quotation_line_id, product_id, description, quantity, unit_price, discount, extra_cost, withholding, line_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		item.PurchaseOrderID, item.QuotationLineID, item.ProductID, item.Description, item.Quantity, item.UnitPrice, item.Discount, item.ExtraCost, item.Withholding, item.LineOrder).Scan(&id)
	return id, err
}

func (r *txRepo) MarkLineConsumed(ctx context.Context, lineID, poID int64) error {
	return exec(ctx, r.tx, `UPDATE quotation_lines SET consumed_by_po_id = $1 WHERE id = $2`, poID, lineID)
}

// DeleteGeneratedPOs removes every purchase order generated from the
// quotation, their items, and the consumption marks on the source lines.
func (r *txRepo) DeleteGeneratedPOs(ctx context.Context, quotationID int64) error {
	if err := exec(ctx, r.tx, `DELETE FROM purchase_order_items WHERE po_id IN (SELECT id FROM purchase_orders WHERE quotation_id = $1)`, quotationID); err != nil {
		return err
	}
	if err := exec(ctx, r.tx, `DELETE FROM purchase_orders WHERE quotation_id = $1`, quotationID); err != nil {
		return err
	}
	return exec(ctx, r.tx, `UPDATE quotation_lines SET consumed_by_po_id = NULL WHERE quotation_id = $1`, quotationID)
}

func (r *txRepo) InsertInstallment(ctx context.Context, ins Installment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO installments (quotation_id, period, amount, amount_with_vat, due_date, status)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		ins.QuotationID, ins.Period, ins.Amount, ins.AmountWithVAT, ins.DueDate, ins.Status).Scan(&id)
	return id, err
}

func (r *txRepo) Installments(ctx context.Context, quotationID int64) ([]Installment, error) {
	return queryInstallments(ctx, r.tx, quotationID)
}

func (r *txRepo) GetInstallment(ctx context.Context, id int64) (*Installment, error) {
	var ins Installment
	err := r.tx.QueryRow(ctx, `SELECT id, quotation_id, period, amount, amount_with_vat, due_date, status, paid_date FROM installments WHERE id = $1`, id).
		Scan(&ins.ID, &ins.QuotationID, &ins.Period, &ins.Amount, &ins.AmountWithVAT, &ins.DueDate, &ins.Status, &ins.PaidDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ins, nil
}

func (r *txRepo) UpdateInstallment(ctx context.Context, ins Installment) error {
	return exec(ctx, r.tx, `UPDATE installments SET amount = $1, amount_with_vat = $2, due_date = $3, status = $4, paid_date = $5 WHERE id = $6`,
		ins.Amount, ins.AmountWithVAT, ins.DueDate, ins.Status, ins.PaidDate, ins.ID)
}

func (r *txRepo) DeleteInstallments(ctx context.Context, quotationID int64) error {
	return exec(ctx, r.tx, `DELETE FROM installments WHERE quotation_id = $1`, quotationID)
}

// Installment invoices carry a NULL quotation_id, so every query over a
// quotation's invoice chain has to reach them through the installments table.
const invoiceChain = `SELECT id FROM invoices WHERE quotation_id = $1
OR installment_id IN (SELECT id FROM installments WHERE quotation_id = $1)`

func (r *txRepo) HasInvoice(ctx context.Context, quotationID int64) (bool, error) {
	var has bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (`+invoiceChain+`)`, quotationID).Scan(&has)
	return has, err
}

func (r *txRepo) HasBillGroupRef(ctx context.Context, quotationID int64) (bool, error) {
	var has bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM bill_group_members m WHERE m.invoice_id IN (`+invoiceChain+`))`, quotationID).Scan(&has)
	return has, err
}

// DeleteBillingForQuotation clears receipts, bill group memberships and
// invoices under the quotation, installment-linked ones included, then
// sweeps any bill group left empty.
func (r *txRepo) DeleteBillingForQuotation(ctx context.Context, quotationID int64) error {
	if err := exec(ctx, r.tx, `DELETE FROM receipts WHERE invoice_id IN (`+invoiceChain+`)`, quotationID); err != nil {
		return err
	}
	if err := exec(ctx, r.tx, `DELETE FROM bill_group_members WHERE invoice_id IN (`+invoiceChain+`)`, quotationID); err != nil {
		return err
	}
	if err := exec(ctx, r.tx, `DELETE FROM invoices WHERE quotation_id = $1
OR installment_id IN (SELECT id FROM installments WHERE quotation_id = $1)`, quotationID); err != nil {
		return err
	}
	return exec(ctx, r.tx, `DELETE FROM bill_groups g WHERE NOT EXISTS (SELECT 1 FROM bill_group_members m WHERE m.bill_group_id = g.id)`)
}

func queryLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, quotationID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, quotation_id, vendor_id, product_id, description, quantity, unit_price, unit_cost, discount, extra_cost, withholding, line_order, consumed_by_po_id
FROM quotation_lines WHERE quotation_id = $1 ORDER BY line_order`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.VendorID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.UnitCost, &l.Discount, &l.ExtraCost, &l.Withholding, &l.LineOrder, &l.ConsumedByPOID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func queryInstallments(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, quotationID int64) ([]Installment, error) {
	rows, err := q.Query(ctx, `SELECT id, quotation_id, period, amount, amount_with_vat, due_date, status, paid_date
FROM installments WHERE quotation_id = $1 ORDER BY due_date, id`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Installment
	for rows.Next() {
		var ins Installment
		if err := rows.Scan(&ins.ID, &ins.QuotationID, &ins.Period, &ins.Amount, &ins.AmountWithVAT, &ins.DueDate, &ins.Status, &ins.PaidDate); err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func queryCodes(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, query, prefix string) ([]string, error) {
	rows, err := q.Query(ctx, query, prefix+"%")
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

func exec(ctx context.Context, tx pgx.Tx, query string, args ...any) error {
	_, err := tx.Exec(ctx, query, args...)
	return err
}
