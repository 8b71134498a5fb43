package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradewind-erp/tradewind-erp/internal/docnum"
	"github.com/tradewind-erp/tradewind-erp/internal/finance"
	"github.com/tradewind-erp/tradewind-erp/internal/shared"
)

// Code series prefixes owned by this package.
const (
	QuotationPrefix     = "QT"
	PurchaseOrderPrefix = "PO"
)

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
	RecordChange(ctx context.Context, actorID, action string, before, after shared.Diffable) error
}

// Service orchestrates the quotation lifecycle.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create mints a quotation code and persists the quotation with its lines.
func (s *Service) Create(ctx context.Context, actor shared.Identity, req CreateQuotationRequest) (*Quotation, error) {
	var quotationID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period := docnum.FormatCompact.PeriodPrefix(QuotationPrefix, req.QuoteDate)
		if err := tx.LockSeries(ctx, period); err != nil {
			return err
		}
		codes, err := tx.QuotationCodes(ctx, period)
		if err != nil {
			return err
		}
		seqs, err := docnum.NextSequences(docnum.FormatCompact, codes, 1)
		if err != nil {
			return err
		}

		q := Quotation{
			Code:        docnum.FormatCompact.Render(QuotationPrefix, req.QuoteDate, seqs[0]),
			CustomerID:  req.CustomerID,
			QuoteDate:   req.QuoteDate,
			Status:      StatusOpen,
			VATIncluded: req.VATIncluded,
			CreatedBy:   actor.UserID,
		}
		quotationID, err = tx.CreateQuotation(ctx, q)
		if err != nil {
			return fmt.Errorf("create quotation: %w", err)
		}

		lines := make([]Line, 0, len(req.Lines))
		for i, lr := range req.Lines {
			line := Line{
				QuotationID: quotationID,
				VendorID:    lr.VendorID,
				ProductID:   lr.ProductID,
				Description: lr.Description,
				Quantity:    lr.Quantity,
				UnitPrice:   lr.UnitPrice,
				UnitCost:    lr.UnitCost,
				Discount:    lr.Discount,
				ExtraCost:   lr.ExtraCost,
				Withholding: lr.Withholding,
				LineOrder:   i + 1,
			}
			if _, err := tx.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			summary := finance.Summarize(financeLines(lines), req.VATIncluded)
			if err := tx.SetSummary(ctx, quotationID, &summary, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created, err := s.repo.Get(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "quotation.create", nil, created)
	return created, nil
}

// Get returns a quotation with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

// List returns quotations matching the filter.
func (s *Service) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

// Installments returns the quotation's schedule.
func (s *Service) Installments(ctx context.Context, quotationID int64) ([]Installment, error) {
	return s.repo.Installments(ctx, quotationID)
}

// UpdateStatus moves the quotation one step along the status chain, or into
// ARCHIVED from anywhere. Entering OFFER stamps the approval fields.
func (s *Service) UpdateStatus(ctx context.Context, actor shared.Identity, id int64, target QuotationStatus) (*Quotation, error) {
	var before *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = q
		if !CanTransition(q.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, q.Status, target)
		}
		var approvedBy *string
		var approvedAt *time.Time
		if target == StatusOffer {
			now := time.Now()
			approvedBy = &actor.UserID
			approvedAt = &now
		}
		return tx.SetStatus(ctx, id, target, approvedBy, approvedAt)
	})
	if err != nil {
		return nil, err
	}

	after, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "quotation.status", before, after)
	return after, nil
}

// AddLine appends a line item and recomputes the cached summary.
func (s *Service) AddLine(ctx context.Context, actor shared.Identity, quotationID int64, req CreateLineReq) (*Quotation, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.IsLocked {
			return ErrLocked
		}
		lines, err := tx.Lines(ctx, quotationID)
		if err != nil {
			return err
		}
		line := Line{
			QuotationID: quotationID,
			VendorID:    req.VendorID,
			ProductID:   req.ProductID,
			Description: req.Description,
			Quantity:    req.Quantity,
			UnitPrice:   req.UnitPrice,
			UnitCost:    req.UnitCost,
			Discount:    req.Discount,
			ExtraCost:   req.ExtraCost,
			Withholding: req.Withholding,
			LineOrder:   len(lines) + 1,
		}
		if _, err := tx.InsertLine(ctx, line); err != nil {
			return err
		}
		return s.refreshSummary(ctx, tx, q)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, quotationID)
}

// UpdateLine patches a line item and recomputes the cached summary.
func (s *Service) UpdateLine(ctx context.Context, actor shared.Identity, quotationID, lineID int64, req UpdateLineRequest) (*Quotation, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.IsLocked {
			return ErrLocked
		}
		lines, err := tx.Lines(ctx, quotationID)
		if err != nil {
			return err
		}
		line, err := findLine(lines, lineID)
		if err != nil {
			return err
		}
		if req.Description != nil {
			line.Description = req.Description
		}
		if req.Quantity != nil {
			line.Quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			line.UnitPrice = *req.UnitPrice
		}
		if req.UnitCost != nil {
			line.UnitCost = *req.UnitCost
		}
		if req.Discount != nil {
			line.Discount = *req.Discount
		}
		if req.ExtraCost != nil {
			line.ExtraCost = *req.ExtraCost
		}
		if req.Withholding != nil {
			line.Withholding = *req.Withholding
		}
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		return s.refreshSummary(ctx, tx, q)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, quotationID)
}

// RemoveLine deletes a line item, renumbers the survivors densely from 1 and
// recomputes the cached summary.
func (s *Service) RemoveLine(ctx context.Context, actor shared.Identity, quotationID, lineID int64) (*Quotation, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.IsLocked {
			return ErrLocked
		}
		lines, err := tx.Lines(ctx, quotationID)
		if err != nil {
			return err
		}
		if _, err := findLine(lines, lineID); err != nil {
			return err
		}
		if err := tx.DeleteLine(ctx, lineID); err != nil {
			return err
		}
		survivors := make([]int64, 0, len(lines)-1)
		for _, l := range lines {
			if l.ID != lineID {
				survivors = append(survivors, l.ID)
			}
		}
		if err := tx.RenumberLines(ctx, quotationID, survivors); err != nil {
			return err
		}
		return s.refreshSummary(ctx, tx, q)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, quotationID)
}

// ReorderLines renumbers all line items to the given order in one atomic
// step. The ids must be exactly the quotation's current line set.
func (s *Service) ReorderLines(ctx context.Context, actor shared.Identity, quotationID int64, orderedIDs []int64) (*Quotation, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if q.IsLocked {
			return ErrLocked
		}
		lines, err := tx.Lines(ctx, quotationID)
		if err != nil {
			return err
		}
		if len(orderedIDs) != len(lines) {
			return fmt.Errorf("%w: reorder must list all %d lines", ErrValidation, len(lines))
		}
		present := make(map[int64]bool, len(lines))
		for _, l := range lines {
			present[l.ID] = true
		}
		for _, id := range orderedIDs {
			if !present[id] {
				return fmt.Errorf("%w: line %d does not belong to quotation", ErrValidation, id)
			}
			delete(present, id)
		}
		return tx.RenumberLines(ctx, quotationID, orderedIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, quotationID)
}

// GenerateAllPOs groups the quotation's lines by vendor and creates one
// purchase order per vendor, each with a freshly allocated code. The whole
// batch is one atomic unit: if the period cannot supply a slot for every
// vendor no purchase order is created at all. On success the quotation is
// locked and its summary stamped from the full line set.
func (s *Service) GenerateAllPOs(ctx context.Context, actor shared.Identity, quotationID int64) ([]GeneratedPO, error) {
	var created []GeneratedPO
	var before, after *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		before = q
		if q.IsLocked {
			return ErrAlreadyGenerated
		}
		if q.Status != StatusApproved {
			return fmt.Errorf("%w: quotation must be approved to generate purchase orders", ErrInvalidStatus)
		}
		lines, err := tx.Lines(ctx, quotationID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("%w: quotation has no line items", ErrValidation)
		}

		vendors, grouped := groupByVendor(lines)
		orderDate := time.Now()
		period := docnum.FormatCompact.PeriodPrefix(PurchaseOrderPrefix, orderDate)
		if err := tx.LockSeries(ctx, period); err != nil {
			return err
		}
		codes, err := tx.PurchaseOrderCodes(ctx, period)
		if err != nil {
			return err
		}
		seqs, err := docnum.NextSequences(docnum.FormatCompact, codes, len(vendors))
		if err != nil {
			// Insufficient slots for the full vendor set aborts the
			// batch before any purchase order exists.
			return err
		}

		for i, vendorID := range vendors {
			vendorLines := grouped[vendorID]
			sum := finance.Summarize(purchaseLines(vendorLines), false)
			po := GeneratedPO{
				Code:        docnum.FormatCompact.Render(PurchaseOrderPrefix, orderDate, seqs[i]),
				QuotationID: quotationID,
				VendorID:    vendorID,
				OrderDate:   orderDate,
				TotalPrice:  sum.TotalPrice,
				Discount:    sum.Discount,
				Tax:         sum.WithholdingTax,
				GrandTotal:  sum.GrandTotal,
				CreatedBy:   actor.UserID,
			}
			poID, err := tx.CreatePurchaseOrder(ctx, po)
			if err != nil {
				return fmt.Errorf("create purchase order: %w", err)
			}
			po.ID = poID
			for j, l := range vendorLines {
				item := GeneratedPOItem{
					PurchaseOrderID: poID,
					QuotationLineID: l.ID,
					ProductID:       l.ProductID,
					Description:     l.Description,
					Quantity:        l.Quantity,
					UnitPrice:       l.UnitCost,
					Discount:        l.Discount,
					ExtraCost:       l.ExtraCost,
					Withholding:     l.Withholding,
					LineOrder:       j + 1,
				}
				if _, err := tx.InsertPurchaseOrderItem(ctx, item); err != nil {
					return fmt.Errorf("insert purchase order item: %w", err)
				}
				if err := tx.MarkLineConsumed(ctx, l.ID, poID); err != nil {
					return err
				}
			}
			created = append(created, po)
		}

		summary := finance.Summarize(financeLines(lines), q.VATIncluded)
		return tx.SetSummary(ctx, quotationID, &summary, true)
	})
	if err != nil {
		return nil, err
	}

	after, err = s.repo.Get(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "quotation.generate_pos", before, after)
	if s.audit != nil {
		codes := make([]string, len(created))
		for i, po := range created {
			codes[i] = po.Code
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.UserID,
			Action:   "purchase_order.generate",
			Entity:   "quotation",
			EntityID: fmt.Sprintf("%d", quotationID),
			Meta:     map[string]any{"codes": codes},
		})
	}
	return created, nil
}

// Rollback is the exact inverse of GenerateAllPOs: it deletes every
// generated purchase order and installment under the quotation and resets
// the summary fields and lock flag to their unset state. It is refused while
// any invoice or bill group references the quotation or its installments.
func (s *Service) Rollback(ctx context.Context, actor shared.Identity, quotationID int64) (*Quotation, error) {
	var before *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		before = q
		if !q.IsLocked {
			return fmt.Errorf("%w: nothing to roll back", ErrNotLocked)
		}
		if has, err := tx.HasInvoice(ctx, quotationID); err != nil {
			return err
		} else if has {
			return ErrInvoiceExists
		}
		if has, err := tx.HasBillGroupRef(ctx, quotationID); err != nil {
			return err
		} else if has {
			return ErrBillGroupExists
		}
		if err := tx.DeleteGeneratedPOs(ctx, quotationID); err != nil {
			return err
		}
		if err := tx.DeleteInstallments(ctx, quotationID); err != nil {
			return err
		}
		if err := tx.SetSummary(ctx, quotationID, nil, false); err != nil {
			return err
		}
		return tx.SetOutstanding(ctx, quotationID, nil, nil)
	})
	if err != nil {
		return nil, err
	}

	after, err := s.repo.Get(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "quotation.rollback", before, after)
	return after, nil
}

// Delete cascades through everything hanging off the quotation: purchase
// orders and their items, installments, invoices and orphaned bill groups,
// then the lines and the quotation itself, all in one transaction.
func (s *Service) Delete(ctx context.Context, actor shared.Identity, quotationID int64) error {
	var before *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		before = q
		if err := tx.DeleteBillingForQuotation(ctx, quotationID); err != nil {
			return err
		}
		if err := tx.DeleteGeneratedPOs(ctx, quotationID); err != nil {
			return err
		}
		if err := tx.DeleteInstallments(ctx, quotationID); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, quotationID); err != nil {
			return err
		}
		return tx.DeleteQuotation(ctx, quotationID)
	})
	if err != nil {
		return err
	}
	s.recordChange(ctx, actor, "quotation.delete", before, nil)
	return nil
}

// PlanInstallments splits the quotation's total price into a fixed schedule.
// Re-planning in place is refused; the schedule count is immutable once
// created.
func (s *Service) PlanInstallments(ctx context.Context, actor shared.Identity, quotationID int64, periods int) ([]Installment, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		existing, err := tx.Installments(ctx, quotationID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrInstallmentsExist
		}
		if q.TotalPrice == nil {
			return ErrNoTotal
		}
		plan, err := finance.PlanInstallments(*q.TotalPrice, periods, time.Now())
		if err != nil {
			if errors.Is(err, finance.ErrBadPeriodCount) {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			return err
		}
		var balance, grand float64
		for _, p := range plan {
			ins := Installment{
				QuotationID:   quotationID,
				Period:        p.Period,
				Amount:        p.Amount,
				AmountWithVAT: p.AmountWithVAT,
				DueDate:       p.DueDate,
				Status:        InstallmentPending,
			}
			if _, err := tx.InsertInstallment(ctx, ins); err != nil {
				return err
			}
			balance += p.Amount
			grand += p.AmountWithVAT
		}
		balance = finance.Round2(balance)
		grand = finance.Round2(grand)
		return tx.SetOutstanding(ctx, quotationID, &balance, &grand)
	})
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, actor, "installments.plan", quotationID, map[string]any{"periods": periods})
	return s.repo.Installments(ctx, quotationID)
}

// UpdateInstallments applies a batch of status updates. When an update
// supplies a VAT-inclusive amount the pre-VAT amount is rederived from it.
// After the batch the quotation's outstanding figures are recomputed as the
// sum of non-paid installment amounts, floored at zero.
func (s *Service) UpdateInstallments(ctx context.Context, actor shared.Identity, quotationID int64, updates []InstallmentUpdate) ([]Installment, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, quotationID); err != nil {
			return err
		}
		for _, u := range updates {
			ins, err := tx.GetInstallment(ctx, u.ID)
			if err != nil {
				return err
			}
			if ins.QuotationID != quotationID {
				return fmt.Errorf("%w: installment %d", ErrNotFound, u.ID)
			}
			if u.Status != nil {
				ins.Status = *u.Status
				if *u.Status == InstallmentPaid && ins.PaidDate == nil && u.PaidDate == nil {
					now := time.Now()
					ins.PaidDate = &now
				}
			}
			if u.AmountWithVAT != nil {
				ins.AmountWithVAT = *u.AmountWithVAT
				ins.Amount = finance.AmountFromVATInclusive(*u.AmountWithVAT)
			}
			if u.DueDate != nil {
				ins.DueDate = *u.DueDate
			}
			if u.PaidDate != nil {
				ins.PaidDate = u.PaidDate
			}
			if err := tx.UpdateInstallment(ctx, *ins); err != nil {
				return err
			}
		}

		all, err := tx.Installments(ctx, quotationID)
		if err != nil {
			return err
		}
		balance, grand := outstanding(all)
		return tx.SetOutstanding(ctx, quotationID, &balance, &grand)
	})
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, actor, "installments.update", quotationID, map[string]any{"count": len(updates)})
	return s.repo.Installments(ctx, quotationID)
}

// OverrideSummary is the manual escape hatch for locked quotations. Only the
// whitelisted summary fields can be touched and only while the document is
// locked; unlocked documents derive their summary from lines alone.
func (s *Service) OverrideSummary(ctx context.Context, actor shared.Identity, quotationID int64, ov SummaryOverride) (*Quotation, error) {
	fields := map[string]float64{}
	if ov.TotalPrice != nil {
		fields["total_price"] = *ov.TotalPrice
	}
	if ov.Discount != nil {
		fields["discount"] = *ov.Discount
	}
	if ov.VAT != nil {
		fields["vat"] = *ov.VAT
	}
	if ov.WithholdingTax != nil {
		fields["withholding_tax"] = *ov.WithholdingTax
	}
	if ov.GrandTotal != nil {
		fields["grand_total"] = *ov.GrandTotal
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no override fields supplied", ErrValidation)
	}
	var before *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		before = q
		if !q.IsLocked {
			return fmt.Errorf("%w: manual override applies to locked quotations only", ErrNotLocked)
		}
		return tx.OverrideSummary(ctx, quotationID, fields)
	})
	if err != nil {
		return nil, err
	}
	after, err := s.repo.Get(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "quotation.override_summary", before, after)
	return after, nil
}

// MarkOverdueInstallments flips pending installments past their due date to
// OVERDUE. Driven by the background worker.
func (s *Service) MarkOverdueInstallments(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.MarkOverdueInstallments(ctx, now)
}

// OccupiedSequences lists the run numbers in use for the quotation series in
// the given period. Administrator tooling only.
func (s *Service) OccupiedSequences(ctx context.Context, date time.Time) ([]int, error) {
	alloc := docnum.NewAllocator(quotationCodeSource{repo: s.repo}, docnum.FormatCompact)
	return alloc.Occupied(ctx, QuotationPrefix, date)
}

type quotationCodeSource struct {
	repo RepositoryPort
}

func (s quotationCodeSource) CodesLike(ctx context.Context, prefix string) ([]string, error) {
	return s.repo.QuotationCodesLike(ctx, prefix)
}

// refreshSummary recomputes and stores the quotation's cached summary from
// its current line set.
func (s *Service) refreshSummary(ctx context.Context, tx TxRepository, q *Quotation) error {
	lines, err := tx.Lines(ctx, q.ID)
	if err != nil {
		return err
	}
	summary := finance.Summarize(financeLines(lines), q.VATIncluded)
	return tx.SetSummary(ctx, q.ID, &summary, q.IsLocked)
}

func (s *Service) recordChange(ctx context.Context, actor shared.Identity, action string, before, after shared.Diffable) {
	if s.audit == nil {
		return
	}
	_ = s.audit.RecordChange(ctx, actor.UserID, action, before, after)
}

func (s *Service) recordEvent(ctx context.Context, actor shared.Identity, action string, quotationID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "quotation",
		EntityID: fmt.Sprintf("%d", quotationID),
		Meta:     meta,
	})
}

func findLine(lines []Line, id int64) (Line, error) {
	for _, l := range lines {
		if l.ID == id {
			return l, nil
		}
	}
	return Line{}, fmt.Errorf("%w: line %d", ErrNotFound, id)
}

func groupByVendor(lines []Line) ([]int64, map[int64][]Line) {
	var vendors []int64
	grouped := make(map[int64][]Line)
	for _, l := range lines {
		if _, seen := grouped[l.VendorID]; !seen {
			vendors = append(vendors, l.VendorID)
		}
		grouped[l.VendorID] = append(grouped[l.VendorID], l)
	}
	return vendors, grouped
}

func financeLines(lines []Line) []finance.Line {
	out := make([]finance.Line, len(lines))
	for i, l := range lines {
		out[i] = finance.Line{
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			UnitCost:    l.UnitCost,
			Discount:    l.Discount,
			ExtraCost:   l.ExtraCost,
			Withholding: l.Withholding,
		}
	}
	return out
}

// purchaseLines maps quotation lines to the purchase side, where the
// vendor's unit cost is the price being paid.
func purchaseLines(lines []Line) []finance.Line {
	out := make([]finance.Line, len(lines))
	for i, l := range lines {
		out[i] = finance.Line{
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitCost,
			UnitCost:    l.UnitCost,
			Discount:    l.Discount,
			ExtraCost:   l.ExtraCost,
			Withholding: l.Withholding,
		}
	}
	return out
}

func outstanding(all []Installment) (balance, grand float64) {
	for _, ins := range all {
		if ins.Status == InstallmentPaid {
			continue
		}
		balance += ins.Amount
		grand += ins.AmountWithVAT
	}
	if balance < 0 {
		balance = 0
	}
	if grand < 0 {
		grand = 0
	}
	return finance.Round2(balance), finance.Round2(grand)
}
