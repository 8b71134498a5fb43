package procurement

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradewind-erp/tradewind-erp/internal/finance"
	"github.com/tradewind-erp/tradewind-erp/internal/shared"
)

type quotationState struct {
	vatIncluded bool
	summary     *finance.Summary
	locked      bool
	lines       map[int64]finance.Line
}

type memoryProcRepo struct {
	pos        map[int64]PurchaseOrder
	items      map[int64][]Item
	quotations map[int64]*quotationState
	nextID     int64
	// runs at the start of each transaction, standing in for a
	// concurrent writer that commits first
	beforeTx func(*memoryProcRepo)
}

type memoryProcTx struct {
	repo *memoryProcRepo
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{
		pos:        make(map[int64]PurchaseOrder),
		items:      make(map[int64][]Item),
		quotations: make(map[int64]*quotationState),
	}
}

func (r *memoryProcRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.beforeTx != nil {
		r.beforeTx(r)
	}
	return fn(ctx, &memoryProcTx{repo: r})
}

func (r *memoryProcRepo) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return nil, ErrNotFound
	}
	po.Items = append([]Item(nil), r.items[id]...)
	sort.Slice(po.Items, func(i, j int) bool { return po.Items[i].LineOrder < po.Items[j].LineOrder })
	return &po, nil
}

func (r *memoryProcRepo) List(ctx context.Context, req ListPOsRequest) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range r.pos {
		if req.VendorID != nil && po.VendorID != *req.VendorID {
			continue
		}
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (tx *memoryProcTx) LockSeries(ctx context.Context, key string) error { return nil }

func (tx *memoryProcTx) Codes(ctx context.Context, prefix string) ([]string, error) {
	var codes []string
	for _, po := range tx.repo.pos {
		if strings.HasPrefix(po.Code, prefix) {
			codes = append(codes, po.Code)
		}
	}
	return codes, nil
}

func (tx *memoryProcTx) GetForUpdate(ctx context.Context, id int64) (*PurchaseOrder, error) {
	po, ok := tx.repo.pos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &po, nil
}

func (tx *memoryProcTx) Create(ctx context.Context, po PurchaseOrder) (int64, error) {
	po.ID = tx.repo.id()
	po.CreatedAt = time.Now()
	po.UpdatedAt = po.CreatedAt
	tx.repo.pos[po.ID] = po
	return po.ID, nil
}

func (tx *memoryProcTx) SetStatus(ctx context.Context, id int64, status POStatus) error {
	po := tx.repo.pos[id]
	po.Status = status
	tx.repo.pos[id] = po
	return nil
}

func (tx *memoryProcTx) SetSummary(ctx context.Context, id int64, totalPrice, discount, tax, grandTotal float64) error {
	po := tx.repo.pos[id]
	po.TotalPrice = totalPrice
	po.Discount = discount
	po.Tax = tax
	po.GrandTotal = grandTotal
	tx.repo.pos[id] = po
	return nil
}

func (tx *memoryProcTx) ApplyWithholdingDelta(ctx context.Context, id int64, delta float64) error {
	po := tx.repo.pos[id]
	po.Tax += delta
	po.GrandTotal -= delta
	tx.repo.pos[id] = po
	return nil
}

func (tx *memoryProcTx) SetManualPrice(ctx context.Context, id int64, price *float64) error {
	po := tx.repo.pos[id]
	po.ManualPrice = price
	tx.repo.pos[id] = po
	return nil
}

func (tx *memoryProcTx) Delete(ctx context.Context, id int64) error {
	delete(tx.repo.pos, id)
	return nil
}

func (tx *memoryProcTx) Items(ctx context.Context, poID int64) ([]Item, error) {
	out := append([]Item(nil), tx.repo.items[poID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].LineOrder < out[j].LineOrder })
	return out, nil
}

func (tx *memoryProcTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	item.ID = tx.repo.id()
	tx.repo.items[item.PurchaseOrderID] = append(tx.repo.items[item.PurchaseOrderID], item)
	return item.ID, nil
}

func (tx *memoryProcTx) UpdateItem(ctx context.Context, item Item) error {
	list := tx.repo.items[item.PurchaseOrderID]
	for i := range list {
		if list[i].ID == item.ID {
			list[i] = item
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memoryProcTx) SetItemWithholding(ctx context.Context, itemID int64, enabled bool) error {
	for poID, list := range tx.repo.items {
		for i := range list {
			if list[i].ID == itemID {
				list[i].Withholding = enabled
				tx.repo.items[poID] = list
				return nil
			}
		}
	}
	return ErrNotFound
}

func (tx *memoryProcTx) DeleteItem(ctx context.Context, id int64) error {
	for poID, list := range tx.repo.items {
		for i := range list {
			if list[i].ID == id {
				tx.repo.items[poID] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

func (tx *memoryProcTx) RenumberItems(ctx context.Context, poID int64, orderedIDs []int64) error {
	byID := make(map[int64]Item)
	for _, it := range tx.repo.items[poID] {
		byID[it.ID] = it
	}
	out := make([]Item, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		it := byID[id]
		it.LineOrder = i + 1
		out = append(out, it)
	}
	tx.repo.items[poID] = out
	return nil
}

func (tx *memoryProcTx) DeleteItems(ctx context.Context, poID int64) error {
	delete(tx.repo.items, poID)
	return nil
}

func (tx *memoryProcTx) CountForQuotation(ctx context.Context, quotationID int64) (int, error) {
	n := 0
	for _, po := range tx.repo.pos {
		if po.QuotationID != nil && *po.QuotationID == quotationID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryProcTx) DeleteConsumedQuotationLines(ctx context.Context, poID int64) error {
	for _, q := range tx.repo.quotations {
		for _, it := range tx.repo.items[poID] {
			if it.QuotationLineID != nil {
				delete(q.lines, *it.QuotationLineID)
			}
		}
	}
	return nil
}

func (tx *memoryProcTx) ClearConsumedMarks(ctx context.Context, poID int64) error {
	return nil
}

func (tx *memoryProcTx) QuotationFinance(ctx context.Context, quotationID int64) (bool, []finance.Line, error) {
	q, ok := tx.repo.quotations[quotationID]
	if !ok {
		return false, nil, ErrNotFound
	}
	var ids []int64
	for id := range q.lines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	lines := make([]finance.Line, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, q.lines[id])
	}
	return q.vatIncluded, lines, nil
}

func (tx *memoryProcTx) SetQuotationSummary(ctx context.Context, quotationID int64, s *finance.Summary, locked bool) error {
	q, ok := tx.repo.quotations[quotationID]
	if !ok {
		return ErrNotFound
	}
	q.summary = s
	q.locked = locked
	return nil
}

var testActor = shared.Identity{UserID: "u-9", Role: "staff"}

func createPO(t *testing.T, svc *Service, items []CreateItemReq) *PurchaseOrder {
	t.Helper()
	po, err := svc.Create(context.Background(), testActor, CreatePORequest{
		VendorID:  5,
		OrderDate: time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC),
		Items:     items,
	})
	require.NoError(t, err)
	return po
}

func TestCreateAllocatesCodeAndSummary(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)

	po := createPO(t, svc, []CreateItemReq{
		{ProductID: 1, Quantity: 2, UnitPrice: 100},
		{ProductID: 2, Quantity: 1, UnitPrice: 50},
	})
	require.Equal(t, "PO2026090001", po.Code)
	require.Equal(t, POStatusOpen, po.Status)
	require.InDelta(t, 250, po.TotalPrice, 1e-9)
	require.InDelta(t, 267.5, po.GrandTotal, 1e-9)
	require.Len(t, po.Items, 2)

	po2 := createPO(t, svc, nil)
	require.Equal(t, "PO2026090002", po2.Code)
}

func TestItemEditsRecomputeSummary(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	po := createPO(t, svc, []CreateItemReq{{ProductID: 1, Quantity: 1, UnitPrice: 100}})

	po, err := svc.AddItem(ctx, testActor, po.ID, CreateItemReq{ProductID: 2, Quantity: 2, UnitPrice: 25})
	require.NoError(t, err)
	require.InDelta(t, 150, po.TotalPrice, 1e-9)
	require.Equal(t, 2, po.Items[1].LineOrder)

	price := 200.0
	po, err = svc.UpdateItem(ctx, testActor, po.ID, po.Items[0].ID, UpdateItemRequest{UnitPrice: &price})
	require.NoError(t, err)
	require.InDelta(t, 250, po.TotalPrice, 1e-9)

	po, err = svc.RemoveItem(ctx, testActor, po.ID, po.Items[1].ID)
	require.NoError(t, err)
	require.Len(t, po.Items, 1)
	require.Equal(t, 1, po.Items[0].LineOrder)
	require.InDelta(t, 200, po.TotalPrice, 1e-9)
}

func TestToggleWithholdingPairsTaxAndGrandTotal(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	po := createPO(t, svc, []CreateItemReq{{ProductID: 1, Quantity: 1, UnitPrice: 1000}})
	require.InDelta(t, 0, po.Tax, 1e-9)
	grandBefore := po.GrandTotal

	po, err := svc.ToggleWithholding(ctx, testActor, po.ID, po.Items[0].ID, true)
	require.NoError(t, err)
	require.InDelta(t, 30, po.Tax, 1e-9)
	require.InDelta(t, grandBefore-30, po.GrandTotal, 1e-9)

	// A second enable is a no-op.
	po, err = svc.ToggleWithholding(ctx, testActor, po.ID, po.Items[0].ID, true)
	require.NoError(t, err)
	require.InDelta(t, 30, po.Tax, 1e-9)

	po, err = svc.ToggleWithholding(ctx, testActor, po.ID, po.Items[0].ID, false)
	require.NoError(t, err)
	require.InDelta(t, 0, po.Tax, 1e-9)
	require.InDelta(t, grandBefore, po.GrandTotal, 1e-9)
}

func TestManualPriceOnlyOnManualOrders(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	po := createPO(t, svc, nil)

	price := 123.45
	got, err := svc.SetManualPrice(ctx, testActor, po.ID, &price)
	require.NoError(t, err)
	require.NotNil(t, got.ManualPrice)
	require.InDelta(t, 123.45, *got.ManualPrice, 1e-9)

	qid := int64(77)
	derivedID := repo.id()
	repo.pos[derivedID] = PurchaseOrder{ID: derivedID, Code: "PO2026090099", QuotationID: &qid, VendorID: 5}

	_, err = svc.SetManualPrice(ctx, testActor, derivedID, &price)
	require.ErrorIs(t, err, ErrQuotationDerived)
}

func TestManualPriceRevalidatesInsideTx(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	po := createPO(t, svc, nil)

	// A quotation generation claims the order between the caller's read
	// and the write.
	qid := int64(77)
	repo.beforeTx = func(r *memoryProcRepo) {
		claimed := r.pos[po.ID]
		claimed.QuotationID = &qid
		r.pos[po.ID] = claimed
	}
	price := 123.45
	_, err := svc.SetManualPrice(ctx, testActor, po.ID, &price)
	require.ErrorIs(t, err, ErrQuotationDerived)
}

func TestDeleteLastPOUnlocksQuotation(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	qid := int64(40)
	repo.quotations[qid] = &quotationState{
		locked:  true,
		summary: &finance.Summary{TotalPrice: 250, GrandTotal: 267.5},
		lines: map[int64]finance.Line{
			1: {Quantity: 2, UnitPrice: 150, UnitCost: 100},
		},
	}
	poID := repo.id()
	repo.pos[poID] = PurchaseOrder{ID: poID, Code: "PO2026090001", QuotationID: &qid, VendorID: 5}
	lineID := int64(1)
	repo.items[poID] = []Item{{ID: repo.id(), PurchaseOrderID: poID, QuotationLineID: &lineID, ProductID: 1, Quantity: 2, UnitPrice: 100, LineOrder: 1}}

	require.NoError(t, svc.Delete(ctx, testActor, poID))
	_, err := svc.Get(ctx, poID)
	require.ErrorIs(t, err, ErrNotFound)

	q := repo.quotations[qid]
	require.False(t, q.locked)
	require.Nil(t, q.summary)
	// The source lines survive when the last order is removed.
	require.Len(t, q.lines, 1)
}

func TestDeleteOneOfSeveralRecomputesQuotation(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	qid := int64(41)
	repo.quotations[qid] = &quotationState{
		locked:  true,
		summary: &finance.Summary{TotalPrice: 250},
		lines: map[int64]finance.Line{
			1: {Quantity: 2, UnitPrice: 100, UnitCost: 60},
			2: {Quantity: 1, UnitPrice: 50, UnitCost: 30},
		},
	}
	poA := repo.id()
	repo.pos[poA] = PurchaseOrder{ID: poA, Code: "PO2026090001", QuotationID: &qid, VendorID: 5}
	lineA := int64(1)
	repo.items[poA] = []Item{{ID: repo.id(), PurchaseOrderID: poA, QuotationLineID: &lineA, ProductID: 1, Quantity: 2, UnitPrice: 60, LineOrder: 1}}

	poB := repo.id()
	repo.pos[poB] = PurchaseOrder{ID: poB, Code: "PO2026090002", QuotationID: &qid, VendorID: 6}
	lineB := int64(2)
	repo.items[poB] = []Item{{ID: repo.id(), PurchaseOrderID: poB, QuotationLineID: &lineB, ProductID: 2, Quantity: 1, UnitPrice: 30, LineOrder: 1}}

	require.NoError(t, svc.Delete(ctx, testActor, poA))

	q := repo.quotations[qid]
	require.True(t, q.locked)
	require.NotNil(t, q.summary)
	// Only line 2 remains: 1 * 50.
	require.InDelta(t, 50, q.summary.TotalPrice, 1e-9)
	require.NotContains(t, q.lines, int64(1))
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)
	po := createPO(t, svc, nil)

	_, err := svc.SetStatus(context.Background(), testActor, po.ID, POStatus("BOGUS"))
	require.ErrorIs(t, err, ErrValidation)

	got, err := svc.SetStatus(context.Background(), testActor, po.ID, POStatusSent)
	require.NoError(t, err)
	require.Equal(t, POStatusSent, got.Status)
}

func TestReorderItems(t *testing.T) {
	repo := newMemoryProcRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	po := createPO(t, svc, []CreateItemReq{
		{ProductID: 1, Quantity: 1, UnitPrice: 10},
		{ProductID: 2, Quantity: 1, UnitPrice: 20},
	})

	_, err := svc.ReorderItems(ctx, testActor, po.ID, []int64{po.Items[0].ID})
	require.ErrorIs(t, err, ErrValidation)

	got, err := svc.ReorderItems(ctx, testActor, po.ID, []int64{po.Items[1].ID, po.Items[0].ID})
	require.NoError(t, err)
	require.Equal(t, po.Items[1].ID, got.Items[0].ID)
	require.Equal(t, 1, got.Items[0].LineOrder)
}
