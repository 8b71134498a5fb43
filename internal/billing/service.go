package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradewind-erp/tradewind-erp/internal/docnum"
	"github.com/tradewind-erp/tradewind-erp/internal/shared"
)

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	RecordChange(ctx context.Context, actorID, action string, before, after shared.Diffable) error
}

// Service issues invoices, receipts and bill groups.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the billing service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// GenerateInvoice issues the invoice for a quotation. The operation is
// idempotent per quotation: if an invoice already exists only its date moves,
// no second invoice is minted. A fresh invoice joins the bill group of its
// date, creating the group when it is the first invoice of that date.
func (s *Service) GenerateInvoice(ctx context.Context, actor shared.Identity, req GenerateInvoiceRequest) (*Invoice, error) {
	var invoiceID int64
	var before *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.InvoiceForQuotation(ctx, req.QuotationID)
		switch {
		case err == nil:
			before = existing
			invoiceID = existing.ID
			if !sameDay(existing.InvoiceDate, req.InvoiceDate) {
				return tx.SetInvoiceDate(ctx, existing.ID, req.InvoiceDate)
			}
			return nil
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

		totalPrice, grandTotal, err := tx.QuotationGrandTotal(ctx, req.QuotationID)
		if err != nil {
			return err
		}
		if totalPrice == nil || grandTotal == nil {
			return ErrNoTotal
		}

		code, err := allocateCode(ctx, tx, InvoicePrefix, req.InvoiceDate, tx.InvoiceCodes)
		if err != nil {
			return err
		}
		qid := req.QuotationID
		invoiceID, err = tx.CreateInvoice(ctx, Invoice{
			Code:          code,
			QuotationID:   &qid,
			InvoiceDate:   req.InvoiceDate,
			Amount:        *totalPrice,
			AmountWithVAT: *grandTotal,
			CreatedBy:     actor.UserID,
		})
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		return s.joinBillGroup(ctx, tx, invoiceID, req.InvoiceDate)
	})
	if err != nil {
		return nil, err
	}

	after, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "invoice.generate", before, after)
	return after, nil
}

// GenerateInstallmentInvoice issues the invoice for one installment, with
// the same idempotence and bill group behavior keyed by installment.
func (s *Service) GenerateInstallmentInvoice(ctx context.Context, actor shared.Identity, req GenerateInstallmentInvoiceRequest) (*Invoice, error) {
	var invoiceID int64
	var before *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.InvoiceForInstallment(ctx, req.InstallmentID)
		switch {
		case err == nil:
			before = existing
			invoiceID = existing.ID
			if !sameDay(existing.InvoiceDate, req.InvoiceDate) {
				return tx.SetInvoiceDate(ctx, existing.ID, req.InvoiceDate)
			}
			return nil
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

		amount, withVAT, err := tx.InstallmentAmounts(ctx, req.InstallmentID)
		if err != nil {
			return err
		}

		code, err := allocateCode(ctx, tx, InvoicePrefix, req.InvoiceDate, tx.InvoiceCodes)
		if err != nil {
			return err
		}
		insID := req.InstallmentID
		invoiceID, err = tx.CreateInvoice(ctx, Invoice{
			Code:          code,
			InstallmentID: &insID,
			InvoiceDate:   req.InvoiceDate,
			Amount:        amount,
			AmountWithVAT: withVAT,
			CreatedBy:     actor.UserID,
		})
		if err != nil {
			return fmt.Errorf("create installment invoice: %w", err)
		}
		return s.joinBillGroup(ctx, tx, invoiceID, req.InvoiceDate)
	})
	if err != nil {
		return nil, err
	}

	after, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "invoice.generate_installment", before, after)
	return after, nil
}

// DeleteInvoice removes an invoice with its receipts and detaches it from
// its bill group. A group left with no members is deleted with it.
func (s *Service) DeleteInvoice(ctx context.Context, actor shared.Identity, id int64) error {
	var before *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = inv
		if err := tx.DeleteReceiptsForInvoice(ctx, id); err != nil {
			return err
		}
		bgID, err := tx.RemoveMemberByInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteInvoice(ctx, id); err != nil {
			return err
		}
		if bgID != 0 {
			n, err := tx.CountMembers(ctx, bgID)
			if err != nil {
				return err
			}
			if n == 0 {
				return tx.DeleteBillGroup(ctx, bgID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordChange(ctx, actor, "invoice.delete", before, nil)
	return nil
}

// CreateReceipt records a payment against an invoice.
func (s *Service) CreateReceipt(ctx context.Context, actor shared.Identity, req CreateReceiptRequest) (*Receipt, error) {
	var receipt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetInvoiceForUpdate(ctx, req.InvoiceID); err != nil {
			return err
		}
		code, err := allocateCode(ctx, tx, ReceiptPrefix, req.ReceivedAt, tx.ReceiptCodes)
		if err != nil {
			return err
		}
		receipt = Receipt{
			Code:       code,
			InvoiceID:  req.InvoiceID,
			Amount:     req.Amount,
			ReceivedAt: req.ReceivedAt,
			CreatedBy:  actor.UserID,
		}
		receipt.ID, err = tx.CreateReceipt(ctx, receipt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns invoices matching the filter.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.ListInvoices(ctx, req)
}

// GetBillGroup returns a bill group with its member invoice ids.
func (s *Service) GetBillGroup(ctx context.Context, id int64) (*BillGroup, error) {
	return s.repo.GetBillGroup(ctx, id)
}

// Receipts returns the receipts recorded against an invoice.
func (s *Service) Receipts(ctx context.Context, invoiceID int64) ([]Receipt, error) {
	return s.repo.ReceiptsForInvoice(ctx, invoiceID)
}

// joinBillGroup attaches the invoice to the bill group of its issue date,
// creating the group lazily.
func (s *Service) joinBillGroup(ctx context.Context, tx TxRepository, invoiceID int64, date time.Time) error {
	bg, err := tx.BillGroupForDate(ctx, date)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		code, cerr := allocateCode(ctx, tx, BillGroupPrefix, date, tx.BillGroupCodes)
		if cerr != nil {
			return cerr
		}
		id, cerr := tx.CreateBillGroup(ctx, BillGroup{Code: code, GroupDate: date})
		if cerr != nil {
			return fmt.Errorf("create bill group: %w", cerr)
		}
		bg = &BillGroup{ID: id}
	default:
		return err
	}
	return tx.AddMember(ctx, bg.ID, invoiceID)
}

// allocateCode mints the next dashed-format code for a series, serialized on
// the period's advisory lock.
func allocateCode(ctx context.Context, tx TxRepository, prefix string, date time.Time, codesFn func(context.Context, string) ([]string, error)) (string, error) {
	period := docnum.FormatDashed.PeriodPrefix(prefix, date)
	if err := tx.LockSeries(ctx, period); err != nil {
		return "", err
	}
	codes, err := codesFn(ctx, period)
	if err != nil {
		return "", err
	}
	seqs, err := docnum.NextSequences(docnum.FormatDashed, codes, 1)
	if err != nil {
		return "", err
	}
	return docnum.FormatDashed.Render(prefix, date, seqs[0]), nil
}

func sameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

func (s *Service) recordChange(ctx context.Context, actor shared.Identity, action string, before, after shared.Diffable) {
	if s.audit == nil {
		return
	}
	_ = s.audit.RecordChange(ctx, actor.UserID, action, before, after)
}
