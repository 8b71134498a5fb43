package procurement

import (
	"context"
	"fmt"

	"github.com/tradewind-erp/tradewind-erp/internal/docnum"
	"github.com/tradewind-erp/tradewind-erp/internal/finance"
	"github.com/tradewind-erp/tradewind-erp/internal/shared"
)

// CodePrefix is the purchase order series prefix, shared with the orders
// minted during quotation generation.
const CodePrefix = "PO"

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	RecordChange(ctx context.Context, actorID, action string, before, after shared.Diffable) error
}

// Service manages purchase orders.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create enters a manual purchase order with a freshly allocated code. The
// order shares its code series with quotation-generated orders.
func (s *Service) Create(ctx context.Context, actor shared.Identity, req CreatePORequest) (*PurchaseOrder, error) {
	var poID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period := docnum.FormatCompact.PeriodPrefix(CodePrefix, req.OrderDate)
		if err := tx.LockSeries(ctx, period); err != nil {
			return err
		}
		codes, err := tx.Codes(ctx, period)
		if err != nil {
			return err
		}
		seqs, err := docnum.NextSequences(docnum.FormatCompact, codes, 1)
		if err != nil {
			return err
		}

		items := make([]Item, 0, len(req.Items))
		for i, ir := range req.Items {
			items = append(items, Item{
				ProductID:   ir.ProductID,
				Description: ir.Description,
				Quantity:    ir.Quantity,
				UnitPrice:   ir.UnitPrice,
				Discount:    ir.Discount,
				ExtraCost:   ir.ExtraCost,
				Withholding: ir.Withholding,
				LineOrder:   i + 1,
			})
		}
		sum := finance.Summarize(itemLines(items), false)
		po := PurchaseOrder{
			Code:       docnum.FormatCompact.Render(CodePrefix, req.OrderDate, seqs[0]),
			VendorID:   req.VendorID,
			OrderDate:  req.OrderDate,
			Status:     POStatusOpen,
			TotalPrice: sum.TotalPrice,
			Discount:   sum.Discount,
			Tax:        sum.WithholdingTax,
			GrandTotal: sum.GrandTotal,
			CreatedBy:  actor.UserID,
		}
		poID, err = tx.Create(ctx, po)
		if err != nil {
			return fmt.Errorf("create purchase order: %w", err)
		}
		for i := range items {
			items[i].PurchaseOrderID = poID
			if _, err := tx.InsertItem(ctx, items[i]); err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created, err := s.repo.Get(ctx, poID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "purchase_order.create", nil, created)
	return created, nil
}

// Get returns a purchase order with its items.
func (s *Service) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns purchase orders matching the filter.
func (s *Service) List(ctx context.Context, req ListPOsRequest) ([]PurchaseOrder, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

// SetStatus moves the order to the given status.
func (s *Service) SetStatus(ctx context.Context, actor shared.Identity, id int64, status POStatus) (*PurchaseOrder, error) {
	switch status {
	case POStatusOpen, POStatusSent, POStatusReceived, POStatusClosed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetStatus(ctx, id, status)
	})
	if err != nil {
		return nil, err
	}
	after, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "purchase_order.status", before, after)
	return after, nil
}

// AddItem appends an item and recomputes the order summary.
func (s *Service) AddItem(ctx context.Context, actor shared.Identity, poID int64, req CreateItemReq) (*PurchaseOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, poID); err != nil {
			return err
		}
		items, err := tx.Items(ctx, poID)
		if err != nil {
			return err
		}
		item := Item{
			PurchaseOrderID: poID,
			ProductID:       req.ProductID,
			Description:     req.Description,
			Quantity:        req.Quantity,
			UnitPrice:       req.UnitPrice,
			Discount:        req.Discount,
			ExtraCost:       req.ExtraCost,
			Withholding:     req.Withholding,
			LineOrder:       len(items) + 1,
		}
		if _, err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		return s.refreshSummary(ctx, tx, poID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, poID)
}

// UpdateItem patches an item and recomputes the order summary.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Identity, poID, itemID int64, req UpdateItemRequest) (*PurchaseOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, poID); err != nil {
			return err
		}
		items, err := tx.Items(ctx, poID)
		if err != nil {
			return err
		}
		item, err := findItem(items, itemID)
		if err != nil {
			return err
		}
		if req.Description != nil {
			item.Description = req.Description
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			item.UnitPrice = *req.UnitPrice
		}
		if req.Discount != nil {
			item.Discount = *req.Discount
		}
		if req.ExtraCost != nil {
			item.ExtraCost = *req.ExtraCost
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		return s.refreshSummary(ctx, tx, poID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, poID)
}

// RemoveItem deletes an item, renumbers the rest and recomputes the summary.
func (s *Service) RemoveItem(ctx context.Context, actor shared.Identity, poID, itemID int64) (*PurchaseOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, poID); err != nil {
			return err
		}
		items, err := tx.Items(ctx, poID)
		if err != nil {
			return err
		}
		if _, err := findItem(items, itemID); err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		survivors := make([]int64, 0, len(items)-1)
		for _, it := range items {
			if it.ID != itemID {
				survivors = append(survivors, it.ID)
			}
		}
		if err := tx.RenumberItems(ctx, poID, survivors); err != nil {
			return err
		}
		return s.refreshSummary(ctx, tx, poID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, poID)
}

// ReorderItems renumbers all items to the given order.
func (s *Service) ReorderItems(ctx context.Context, actor shared.Identity, poID int64, orderedIDs []int64) (*PurchaseOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, poID); err != nil {
			return err
		}
		items, err := tx.Items(ctx, poID)
		if err != nil {
			return err
		}
		if len(orderedIDs) != len(items) {
			return fmt.Errorf("%w: reorder must list all %d items", ErrValidation, len(items))
		}
		present := make(map[int64]bool, len(items))
		for _, it := range items {
			present[it.ID] = true
		}
		for _, id := range orderedIDs {
			if !present[id] {
				return fmt.Errorf("%w: item %d does not belong to order", ErrValidation, id)
			}
			delete(present, id)
		}
		return tx.RenumberItems(ctx, poID, orderedIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, poID)
}

// ToggleWithholding flips an item's withholding flag and moves the 3% of
// the item's net amount between the order's tax and grand total. The two
// column changes ride one statement so neither can land without the other.
func (s *Service) ToggleWithholding(ctx context.Context, actor shared.Identity, poID, itemID int64, enabled bool) (*PurchaseOrder, error) {
	var before *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		before = po
		items, err := tx.Items(ctx, poID)
		if err != nil {
			return err
		}
		item, err := findItem(items, itemID)
		if err != nil {
			return err
		}
		if item.Withholding == enabled {
			return nil
		}
		if err := tx.SetItemWithholding(ctx, itemID, enabled); err != nil {
			return err
		}
		net := finance.Line{
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			ExtraCost: item.ExtraCost,
		}.Net()
		delta := finance.WithholdingDelta(net)
		if !enabled {
			delta = -delta
		}
		return tx.ApplyWithholdingDelta(ctx, poID, delta)
	})
	if err != nil {
		return nil, err
	}
	after, err := s.repo.Get(ctx, poID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "purchase_order.withholding", before, after)
	return after, nil
}

// SetManualPrice sets the operator-entered price. Orders generated from a
// quotation keep their derived totals and refuse it.
func (s *Service) SetManualPrice(ctx context.Context, actor shared.Identity, poID int64, price *float64) (*PurchaseOrder, error) {
	if price != nil && *price < 0 {
		return nil, fmt.Errorf("%w: manual price must not be negative", ErrValidation)
	}
	var before *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		before = po
		if po.QuotationID != nil {
			return ErrQuotationDerived
		}
		return tx.SetManualPrice(ctx, poID, price)
	})
	if err != nil {
		return nil, err
	}
	after, err := s.repo.Get(ctx, poID)
	if err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, "purchase_order.manual_price", before, after)
	return after, nil
}

// Delete removes a purchase order. For a quotation-derived order the owning
// quotation is patched up in the same transaction: deleting the last order
// unlocks the quotation and clears its summary; deleting one of several
// removes the quotation lines this order consumed and recomputes the
// summary from what remains.
func (s *Service) Delete(ctx context.Context, actor shared.Identity, poID int64) error {
	var before *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		before = po

		if po.QuotationID != nil {
			qid := *po.QuotationID
			count, err := tx.CountForQuotation(ctx, qid)
			if err != nil {
				return err
			}
			if count <= 1 {
				if err := tx.ClearConsumedMarks(ctx, poID); err != nil {
					return err
				}
				if err := tx.SetQuotationSummary(ctx, qid, nil, false); err != nil {
					return err
				}
			} else {
				if err := tx.DeleteConsumedQuotationLines(ctx, poID); err != nil {
					return err
				}
				vatIncluded, lines, err := tx.QuotationFinance(ctx, qid)
				if err != nil {
					return err
				}
				sum := finance.Summarize(lines, vatIncluded)
				if err := tx.SetQuotationSummary(ctx, qid, &sum, true); err != nil {
					return err
				}
			}
		}

		if err := tx.DeleteItems(ctx, poID); err != nil {
			return err
		}
		return tx.Delete(ctx, poID)
	})
	if err != nil {
		return err
	}
	s.recordChange(ctx, actor, "purchase_order.delete", before, nil)
	return nil
}

func (s *Service) refreshSummary(ctx context.Context, tx TxRepository, poID int64) error {
	items, err := tx.Items(ctx, poID)
	if err != nil {
		return err
	}
	sum := finance.Summarize(itemLines(items), false)
	return tx.SetSummary(ctx, poID, sum.TotalPrice, sum.Discount, sum.WithholdingTax, sum.GrandTotal)
}

func (s *Service) recordChange(ctx context.Context, actor shared.Identity, action string, before, after shared.Diffable) {
	if s.audit == nil {
		return
	}
	_ = s.audit.RecordChange(ctx, actor.UserID, action, before, after)
}

func findItem(items []Item, id int64) (Item, error) {
	for _, it := range items {
		if it.ID == id {
			return it, nil
		}
	}
	return Item{}, fmt.Errorf("%w: item %d", ErrNotFound, id)
}

func itemLines(items []Item) []finance.Line {
	out := make([]finance.Line, len(items))
	for i, it := range items {
		out[i] = finance.Line{
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			UnitCost:    it.UnitPrice,
			Discount:    it.Discount,
			ExtraCost:   it.ExtraCost,
			Withholding: it.Withholding,
		}
	}
	return out
}
