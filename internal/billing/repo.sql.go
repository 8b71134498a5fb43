package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-erp/tradewind-erp/internal/docnum"
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

const invoiceColumns = `id, code, quotation_id, installment_id, invoice_date, amount, amount_with_vat, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Code, &inv.QuotationID, &inv.InstallmentID, &inv.InvoiceDate,
		&inv.Amount, &inv.AmountWithVAT, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// GetInvoice returns one invoice.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

// ListInvoices returns invoices matching the filter plus the unpaged total.
func (r *Repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if req.QuotationID != nil {
		add("quotation_id = $%d", *req.QuotationID)
	}
	if req.DateFrom != nil {
		add("invoice_date >= $%d", *req.DateFrom)
	}
	if req.DateTo != nil {
		add("invoice_date <= $%d", *req.DateTo)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices%s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, req.Limit, req.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetBillGroup returns a bill group with its member invoice ids.
func (r *Repository) GetBillGroup(ctx context.Context, id int64) (*BillGroup, error) {
	var bg BillGroup
	err := r.pool.QueryRow(ctx, `SELECT id, code, group_date, created_at FROM bill_groups WHERE id = $1`, id).
		Scan(&bg.ID, &bg.Code, &bg.GroupDate, &bg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT invoice_id FROM bill_group_members WHERE bill_group_id = $1 ORDER BY invoice_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var invID int64
		if err := rows.Scan(&invID); err != nil {
			return nil, err
		}
		bg.InvoiceIDs = append(bg.InvoiceIDs, invID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &bg, nil
}

// ReceiptsForInvoice returns the receipts recorded against an invoice.
func (r *Repository) ReceiptsForInvoice(ctx context.Context, invoiceID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, invoice_id, amount, received_at, created_by, created_at
FROM receipts WHERE invoice_id = $1 ORDER BY received_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.Code, &rc.InvoiceID, &rc.Amount, &rc.ReceivedAt, &rc.CreatedBy, &rc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
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

func (r *txRepo) InvoiceCodes(ctx context.Context, prefix string) ([]string, error) {
	return r.codes(ctx, `SELECT code FROM invoices WHERE code LIKE $1`, prefix)
}

func (r *txRepo) BillGroupCodes(ctx context.Context, prefix string) ([]string, error) {
	return r.codes(ctx, `SELECT code FROM bill_groups WHERE code LIKE $1`, prefix)
}

func (r *txRepo) ReceiptCodes(ctx context.Context, prefix string) ([]string, error) {
	return r.codes(ctx, `SELECT code FROM receipts WHERE code LIKE $1`, prefix)
}

func (r *txRepo) InvoiceForQuotation(ctx context.Context, quotationID int64) (*Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE quotation_id = $1 FOR UPDATE`, quotationID))
}

func (r *txRepo) InvoiceForInstallment(ctx context.Context, installmentID int64) (*Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE installment_id = $1 FOR UPDATE`, installmentID))
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (code, quotation_id, installment_id, invoice_date, amount, amount_with_vat, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now()) RETURNING id`,
		inv.Code, inv.QuotationID, inv.InstallmentID, inv.InvoiceDate, inv.Amount, inv.AmountWithVAT, inv.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: code %s taken", docnum.ErrNoSequence, inv.Code)
	}
	return id, err
}

func (r *txRepo) SetInvoiceDate(ctx context.Context, id int64, date time.Time) error {
	return r.exec(ctx, `UPDATE invoices SET invoice_date = $1, updated_at = now() WHERE id = $2`, date, id)
}

func (r *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
}

func (r *txRepo) BillGroupForDate(ctx context.Context, date time.Time) (*BillGroup, error) {
	var bg BillGroup
	err := r.tx.QueryRow(ctx, `SELECT id, code, group_date, created_at FROM bill_groups WHERE group_date = $1 FOR UPDATE`, date).
		Scan(&bg.ID, &bg.Code, &bg.GroupDate, &bg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bg, nil
}

func (r *txRepo) CreateBillGroup(ctx context.Context, bg BillGroup) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO bill_groups (code, group_date, created_at) VALUES ($1, $2, now()) RETURNING id`,
		bg.Code, bg.GroupDate).Scan(&id)
	return id, err
}

func (r *txRepo) AddMember(ctx context.Context, billGroupID, invoiceID int64) error {
	return r.exec(ctx, `INSERT INTO bill_group_members (bill_group_id, invoice_id) VALUES ($1, $2)`, billGroupID, invoiceID)
}

func (r *txRepo) RemoveMemberByInvoice(ctx context.Context, invoiceID int64) (int64, error) {
	var bgID int64
	err := r.tx.QueryRow(ctx, `DELETE FROM bill_group_members WHERE invoice_id = $1 RETURNING bill_group_id`, invoiceID).Scan(&bgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return bgID, err
}

func (r *txRepo) CountMembers(ctx context.Context, billGroupID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM bill_group_members WHERE bill_group_id = $1`, billGroupID).Scan(&n)
	return n, err
}

func (r *txRepo) DeleteBillGroup(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM bill_groups WHERE id = $1`, id)
}

func (r *txRepo) CreateReceipt(ctx context.Context, rc Receipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receipts (code, invoice_id, amount, received_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, now()) RETURNING id`,
		rc.Code, rc.InvoiceID, rc.Amount, rc.ReceivedAt, rc.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepo) DeleteReceiptsForInvoice(ctx context.Context, invoiceID int64) error {
	return r.exec(ctx, `DELETE FROM receipts WHERE invoice_id = $1`, invoiceID)
}

func (r *txRepo) QuotationGrandTotal(ctx context.Context, quotationID int64) (*float64, *float64, error) {
	var totalPrice, grandTotal *float64
	err := r.tx.QueryRow(ctx, `SELECT total_price, grand_total FROM quotations WHERE id = $1`, quotationID).
		Scan(&totalPrice, &grandTotal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return totalPrice, grandTotal, nil
}

func (r *txRepo) InstallmentAmounts(ctx context.Context, installmentID int64) (float64, float64, error) {
	var amount, withVAT float64
	err := r.tx.QueryRow(ctx, `SELECT amount, amount_with_vat FROM installments WHERE id = $1`, installmentID).
		Scan(&amount, &withVAT)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrNotFound
		}
		return 0, 0, err
	}
	return amount, withVAT, nil
}

func (r *txRepo) codes(ctx context.Context, query, prefix string) ([]string, error) {
	rows, err := r.tx.Query(ctx, query, prefix+"%")
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

func (r *txRepo) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.tx.Exec(ctx, query, args...)
	return err
}
