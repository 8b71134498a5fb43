package sales

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradewind-erp/tradewind-erp/internal/docnum"
	"github.com/tradewind-erp/tradewind-erp/internal/finance"
	"github.com/tradewind-erp/tradewind-erp/internal/shared"
)

type memorySalesRepo struct {
	quotations map[int64]Quotation
	lines      map[int64][]Line
	installs   map[int64][]Installment
	pos        map[int64]GeneratedPO
	poItems    map[int64][]GeneratedPOItem
	poCodes    []string
	invoiced   map[int64]bool
	billRefs   map[int64]bool
	// keyed by installment id, for invoices raised against an installment
	insInvoiced map[int64]bool
	insBillRefs map[int64]bool
	nextID      int64
	// runs at the start of each transaction, standing in for a
	// concurrent writer that commits first
	beforeTx func(*memorySalesRepo)
}

type memorySalesTx struct {
	repo *memorySalesRepo
}

func newMemorySalesRepo() *memorySalesRepo {
	return &memorySalesRepo{
		quotations: make(map[int64]Quotation),
		lines:      make(map[int64][]Line),
		installs:   make(map[int64][]Installment),
		pos:        make(map[int64]GeneratedPO),
		poItems:    make(map[int64][]GeneratedPOItem),
		invoiced:   make(map[int64]bool),
		billRefs:   make(map[int64]bool),

		insInvoiced: make(map[int64]bool),
		insBillRefs: make(map[int64]bool),
	}
}

func (r *memorySalesRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memorySalesRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.beforeTx != nil {
		r.beforeTx(r)
	}
	return fn(ctx, &memorySalesTx{repo: r})
}

func (r *memorySalesRepo) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, ok := r.quotations[id]
	if !ok {
		return nil, ErrNotFound
	}
	q.Lines = append([]Line(nil), r.lines[id]...)
	return &q, nil
}

func (r *memorySalesRepo) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	var out []Quotation
	for _, q := range r.quotations {
		if req.CustomerID != nil && q.CustomerID != *req.CustomerID {
			continue
		}
		if req.Status != nil && q.Status != *req.Status {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memorySalesRepo) Installments(ctx context.Context, quotationID int64) ([]Installment, error) {
	out := append([]Installment(nil), r.installs[quotationID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (r *memorySalesRepo) QuotationCodesLike(ctx context.Context, prefix string) ([]string, error) {
	var codes []string
	for _, q := range r.quotations {
		if strings.HasPrefix(q.Code, prefix) {
			codes = append(codes, q.Code)
		}
	}
	return codes, nil
}

func (r *memorySalesRepo) MarkOverdueInstallments(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for qid, list := range r.installs {
		for i, ins := range list {
			if ins.Status == InstallmentPending && ins.DueDate.Before(now) {
				list[i].Status = InstallmentOverdue
				n++
			}
		}
		r.installs[qid] = list
	}
	return n, nil
}

func (tx *memorySalesTx) LockSeries(ctx context.Context, key string) error { return nil }

func (tx *memorySalesTx) QuotationCodes(ctx context.Context, prefix string) ([]string, error) {
	return tx.repo.QuotationCodesLike(ctx, prefix)
}

func (tx *memorySalesTx) PurchaseOrderCodes(ctx context.Context, prefix string) ([]string, error) {
	var codes []string
	for _, c := range tx.repo.poCodes {
		if strings.HasPrefix(c, prefix) {
			codes = append(codes, c)
		}
	}
	return codes, nil
}

func (tx *memorySalesTx) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	q, ok := tx.repo.quotations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (tx *memorySalesTx) CreateQuotation(ctx context.Context, q Quotation) (int64, error) {
	q.ID = tx.repo.id()
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	tx.repo.quotations[q.ID] = q
	return q.ID, nil
}

func (tx *memorySalesTx) SetStatus(ctx context.Context, id int64, status QuotationStatus, approvedBy *string, approvedAt *time.Time) error {
	q := tx.repo.quotations[id]
	q.Status = status
	if approvedBy != nil {
		q.ApprovedBy = approvedBy
	}
	if approvedAt != nil {
		q.ApprovedAt = approvedAt
	}
	tx.repo.quotations[id] = q
	return nil
}

func (tx *memorySalesTx) SetSummary(ctx context.Context, id int64, s *finance.Summary, locked bool) error {
	q := tx.repo.quotations[id]
	if s == nil {
		q.TotalCost, q.TotalPrice, q.Discount = nil, nil, nil
		q.VAT, q.WithholdingTax, q.GrandTotal = nil, nil, nil
	} else {
		v := *s
		q.TotalCost = &v.TotalCost
		q.TotalPrice = &v.TotalPrice
		q.Discount = &v.Discount
		q.VAT = &v.VAT
		q.WithholdingTax = &v.WithholdingTax
		q.GrandTotal = &v.GrandTotal
	}
	q.IsLocked = locked
	tx.repo.quotations[id] = q
	return nil
}

func (tx *memorySalesTx) SetOutstanding(ctx context.Context, id int64, balance, grandTotal *float64) error {
	q := tx.repo.quotations[id]
	q.OutstandingBalance = balance
	q.OutstandingGrandTotal = grandTotal
	tx.repo.quotations[id] = q
	return nil
}

func (tx *memorySalesTx) OverrideSummary(ctx context.Context, id int64, fields map[string]float64) error {
	q := tx.repo.quotations[id]
	set := func(dst **float64, key string) {
		if v, ok := fields[key]; ok {
			*dst = &v
		}
	}
	set(&q.TotalPrice, "total_price")
	set(&q.Discount, "discount")
	set(&q.VAT, "vat")
	set(&q.WithholdingTax, "withholding_tax")
	set(&q.GrandTotal, "grand_total")
	tx.repo.quotations[id] = q
	return nil
}

func (tx *memorySalesTx) DeleteQuotation(ctx context.Context, id int64) error {
	delete(tx.repo.quotations, id)
	return nil
}

func (tx *memorySalesTx) Lines(ctx context.Context, quotationID int64) ([]Line, error) {
	out := append([]Line(nil), tx.repo.lines[quotationID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].LineOrder < out[j].LineOrder })
	return out, nil
}

func (tx *memorySalesTx) InsertLine(ctx context.Context, l Line) (int64, error) {
	l.ID = tx.repo.id()
	tx.repo.lines[l.QuotationID] = append(tx.repo.lines[l.QuotationID], l)
	return l.ID, nil
}

func (tx *memorySalesTx) UpdateLine(ctx context.Context, l Line) error {
	list := tx.repo.lines[l.QuotationID]
	for i := range list {
		if list[i].ID == l.ID {
			list[i] = l
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memorySalesTx) DeleteLine(ctx context.Context, id int64) error {
	for qid, list := range tx.repo.lines {
		for i := range list {
			if list[i].ID == id {
				tx.repo.lines[qid] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

func (tx *memorySalesTx) RenumberLines(ctx context.Context, quotationID int64, orderedIDs []int64) error {
	byID := make(map[int64]Line)
	for _, l := range tx.repo.lines[quotationID] {
		byID[l.ID] = l
	}
	out := make([]Line, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		l := byID[id]
		l.LineOrder = i + 1
		out = append(out, l)
	}
	tx.repo.lines[quotationID] = out
	return nil
}

func (tx *memorySalesTx) DeleteLines(ctx context.Context, quotationID int64) error {
	delete(tx.repo.lines, quotationID)
	return nil
}

func (tx *memorySalesTx) CreatePurchaseOrder(ctx context.Context, po GeneratedPO) (int64, error) {
	po.ID = tx.repo.id()
	tx.repo.pos[po.ID] = po
	tx.repo.poCodes = append(tx.repo.poCodes, po.Code)
	return po.ID, nil
}

func (tx *memorySalesTx) InsertPurchaseOrderItem(ctx context.Context, item GeneratedPOItem) (int64, error) {
	id := tx.repo.id()
	tx.repo.poItems[item.PurchaseOrderID] = append(tx.repo.poItems[item.PurchaseOrderID], item)
	return id, nil
}

func (tx *memorySalesTx) MarkLineConsumed(ctx context.Context, lineID, poID int64) error {
	for qid, list := range tx.repo.lines {
		for i := range list {
			if list[i].ID == lineID {
				list[i].ConsumedByPOID = &poID
				tx.repo.lines[qid] = list
				return nil
			}
		}
	}
	return ErrNotFound
}

func (tx *memorySalesTx) DeleteGeneratedPOs(ctx context.Context, quotationID int64) error {
	for id, po := range tx.repo.pos {
		if po.QuotationID != quotationID {
			continue
		}
		delete(tx.repo.pos, id)
		delete(tx.repo.poItems, id)
		for i, c := range tx.repo.poCodes {
			if c == po.Code {
				tx.repo.poCodes = append(tx.repo.poCodes[:i], tx.repo.poCodes[i+1:]...)
				break
			}
		}
	}
	list := tx.repo.lines[quotationID]
	for i := range list {
		list[i].ConsumedByPOID = nil
	}
	tx.repo.lines[quotationID] = list
	return nil
}

func (tx *memorySalesTx) InsertInstallment(ctx context.Context, ins Installment) (int64, error) {
	ins.ID = tx.repo.id()
	tx.repo.installs[ins.QuotationID] = append(tx.repo.installs[ins.QuotationID], ins)
	return ins.ID, nil
}

func (tx *memorySalesTx) Installments(ctx context.Context, quotationID int64) ([]Installment, error) {
	return tx.repo.Installments(ctx, quotationID)
}

func (tx *memorySalesTx) GetInstallment(ctx context.Context, id int64) (*Installment, error) {
	for _, list := range tx.repo.installs {
		for _, ins := range list {
			if ins.ID == id {
				out := ins
				return &out, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (tx *memorySalesTx) UpdateInstallment(ctx context.Context, ins Installment) error {
	list := tx.repo.installs[ins.QuotationID]
	for i := range list {
		if list[i].ID == ins.ID {
			list[i] = ins
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memorySalesTx) DeleteInstallments(ctx context.Context, quotationID int64) error {
	delete(tx.repo.installs, quotationID)
	return nil
}

func (tx *memorySalesTx) HasInvoice(ctx context.Context, quotationID int64) (bool, error) {
	if tx.repo.invoiced[quotationID] {
		return true, nil
	}
	for _, ins := range tx.repo.installs[quotationID] {
		if tx.repo.insInvoiced[ins.ID] {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memorySalesTx) HasBillGroupRef(ctx context.Context, quotationID int64) (bool, error) {
	if tx.repo.billRefs[quotationID] {
		return true, nil
	}
	for _, ins := range tx.repo.installs[quotationID] {
		if tx.repo.insBillRefs[ins.ID] {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memorySalesTx) DeleteBillingForQuotation(ctx context.Context, quotationID int64) error {
	delete(tx.repo.invoiced, quotationID)
	delete(tx.repo.billRefs, quotationID)
	for _, ins := range tx.repo.installs[quotationID] {
		delete(tx.repo.insInvoiced, ins.ID)
		delete(tx.repo.insBillRefs, ins.ID)
	}
	return nil
}

var testActor = shared.Identity{UserID: "u-1", Role: "staff"}

func seedQuotation(t *testing.T, repo *memorySalesRepo, svc *Service, lines []CreateLineReq) *Quotation {
	t.Helper()
	q, err := svc.Create(context.Background(), testActor, CreateQuotationRequest{
		CustomerID: 7,
		QuoteDate:  time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC),
		Lines:      lines,
	})
	require.NoError(t, err)
	return q
}

func twoVendorLines() []CreateLineReq {
	return []CreateLineReq{
		{VendorID: 10, ProductID: 100, Quantity: 2, UnitPrice: 150, UnitCost: 100},
		{VendorID: 20, ProductID: 200, Quantity: 1, UnitPrice: 500, UnitCost: 400},
		{VendorID: 10, ProductID: 101, Quantity: 1, UnitPrice: 80, UnitCost: 50},
	}
}

func TestCreateFillsSmallestFreeSequence(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)

	for _, seq := range []int{1, 2, 4} {
		repo.nextID++
		repo.quotations[repo.nextID] = Quotation{
			ID:   repo.nextID,
			Code: fmt.Sprintf("QT202609%04d", seq),
		}
	}

	q := seedQuotation(t, repo, svc, nil)
	require.Equal(t, "QT2026090003", q.Code)

	q2 := seedQuotation(t, repo, svc, nil)
	require.Equal(t, "QT2026090005", q2.Code)
}

func TestCreateComputesSummary(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)

	q := seedQuotation(t, repo, svc, twoVendorLines())
	require.Equal(t, StatusOpen, q.Status)
	require.Len(t, q.Lines, 3)
	require.Equal(t, 1, q.Lines[0].LineOrder)
	require.Equal(t, 3, q.Lines[2].LineOrder)

	// 2*150 + 1*500 + 1*80 = 880 net of VAT
	require.NotNil(t, q.TotalPrice)
	require.InDelta(t, 880, *q.TotalPrice, 1e-9)
	require.InDelta(t, 61.6, *q.VAT, 1e-9)
	require.InDelta(t, 941.6, *q.GrandTotal, 1e-9)
	require.False(t, q.IsLocked)
}

func TestStatusMovesOneStepAtATime(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, nil)

	_, err := svc.UpdateStatus(ctx, testActor, q.ID, StatusApproved)
	require.ErrorIs(t, err, ErrInvalidStatus)

	q2, err := svc.UpdateStatus(ctx, testActor, q.ID, StatusPendingApproval)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, q2.Status)
	require.Nil(t, q2.ApprovedBy)

	q3, err := svc.UpdateStatus(ctx, testActor, q.ID, StatusOffer)
	require.NoError(t, err)
	require.NotNil(t, q3.ApprovedBy)
	require.Equal(t, testActor.UserID, *q3.ApprovedBy)
	require.NotNil(t, q3.ApprovedAt)

	q4, err := svc.UpdateStatus(ctx, testActor, q.ID, StatusArchived)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, q4.Status)

	_, err = svc.UpdateStatus(ctx, testActor, q.ID, StatusArchived)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestLineEditsRecomputeSummary(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, []CreateLineReq{
		{VendorID: 10, ProductID: 100, Quantity: 1, UnitPrice: 100, UnitCost: 60},
	})

	q, err := svc.AddLine(ctx, testActor, q.ID, CreateLineReq{
		VendorID: 10, ProductID: 101, Quantity: 2, UnitPrice: 50, UnitCost: 30,
	})
	require.NoError(t, err)
	require.Len(t, q.Lines, 2)
	require.InDelta(t, 200, *q.TotalPrice, 1e-9)

	newQty := 3.0
	q, err = svc.UpdateLine(ctx, testActor, q.ID, q.Lines[1].ID, UpdateLineRequest{Quantity: &newQty})
	require.NoError(t, err)
	require.InDelta(t, 250, *q.TotalPrice, 1e-9)

	q, err = svc.RemoveLine(ctx, testActor, q.ID, q.Lines[0].ID)
	require.NoError(t, err)
	require.Len(t, q.Lines, 1)
	require.Equal(t, 1, q.Lines[0].LineOrder)
	require.InDelta(t, 150, *q.TotalPrice, 1e-9)
}

func TestReorderLinesRejectsPartialSet(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, twoVendorLines())

	_, err := svc.ReorderLines(ctx, testActor, q.ID, []int64{q.Lines[0].ID})
	require.ErrorIs(t, err, ErrValidation)

	reordered, err := svc.ReorderLines(ctx, testActor, q.ID, []int64{q.Lines[2].ID, q.Lines[0].ID, q.Lines[1].ID})
	require.NoError(t, err)
	require.Equal(t, q.Lines[2].ID, reordered.Lines[0].ID)
	require.Equal(t, 1, reordered.Lines[0].LineOrder)
	require.Equal(t, 3, reordered.Lines[2].LineOrder)
}

func approveForPOs(t *testing.T, svc *Service, id int64) {
	t.Helper()
	ctx := context.Background()
	for _, st := range []QuotationStatus{StatusPendingApproval, StatusOffer, StatusApproved} {
		_, err := svc.UpdateStatus(ctx, testActor, id, st)
		require.NoError(t, err)
	}
}

func TestGenerateAllPOsGroupsByVendor(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, twoVendorLines())
	approveForPOs(t, svc, q.ID)

	pos, err := svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.NoError(t, err)
	require.Len(t, pos, 2)

	// Vendor order follows first appearance in the line list.
	require.Equal(t, int64(10), pos[0].VendorID)
	require.Equal(t, int64(20), pos[1].VendorID)
	require.Regexp(t, `^PO\d{6}0001$`, pos[0].Code)
	require.Regexp(t, `^PO\d{6}0002$`, pos[1].Code)

	// Purchase totals use the quotation's unit costs: 2*100 + 1*50 = 250.
	require.InDelta(t, 250, pos[0].TotalPrice, 1e-9)
	require.InDelta(t, 400, pos[1].TotalPrice, 1e-9)

	items := repo.poItems[pos[0].ID]
	require.Len(t, items, 2)
	require.InDelta(t, 100, items[0].UnitPrice, 1e-9)

	locked, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.True(t, locked.IsLocked)
	require.Equal(t, StatusApproved, locked.Status)
	require.NotNil(t, locked.Lines[0].ConsumedByPOID)

	_, err = svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.ErrorIs(t, err, ErrAlreadyGenerated)
}

func TestGenerateAllPOsRequiresApproval(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	q := seedQuotation(t, repo, svc, twoVendorLines())

	_, err := svc.GenerateAllPOs(context.Background(), testActor, q.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.Empty(t, repo.pos)
}

func TestGenerateAllPOsIsAllOrNothing(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	q := seedQuotation(t, repo, svc, twoVendorLines())
	approveForPOs(t, svc, q.ID)

	// Leave exactly one free slot in this month's PO series; the two
	// vendors need two.
	prefix := docnum.FormatCompact.PeriodPrefix(PurchaseOrderPrefix, time.Now())
	for seq := 1; seq <= 9998; seq++ {
		repo.poCodes = append(repo.poCodes, fmt.Sprintf("%s%04d", prefix, seq))
	}

	_, err := svc.GenerateAllPOs(context.Background(), testActor, q.ID)
	require.ErrorIs(t, err, docnum.ErrNoSequence)
	require.Empty(t, repo.pos)

	got, err := svc.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.False(t, got.IsLocked)
}

func TestRollbackRestoresPreGenerationState(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, twoVendorLines())
	approveForPOs(t, svc, q.ID)

	_, err := svc.Rollback(ctx, testActor, q.ID)
	require.ErrorIs(t, err, ErrNotLocked)

	_, err = svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.NoError(t, err)
	_, err = svc.PlanInstallments(ctx, testActor, q.ID, 3)
	require.NoError(t, err)

	repo.invoiced[q.ID] = true
	_, err = svc.Rollback(ctx, testActor, q.ID)
	require.ErrorIs(t, err, ErrInvoiceExists)
	delete(repo.invoiced, q.ID)

	repo.billRefs[q.ID] = true
	_, err = svc.Rollback(ctx, testActor, q.ID)
	require.ErrorIs(t, err, ErrBillGroupExists)
	delete(repo.billRefs, q.ID)

	got, err := svc.Rollback(ctx, testActor, q.ID)
	require.NoError(t, err)
	require.False(t, got.IsLocked)
	require.Nil(t, got.TotalPrice)
	require.Nil(t, got.GrandTotal)
	require.Nil(t, got.OutstandingBalance)
	require.Equal(t, StatusApproved, got.Status)
	require.Empty(t, repo.pos)
	require.Empty(t, repo.installs[q.ID])
	require.Nil(t, got.Lines[0].ConsumedByPOID)

	// Freed PO slots are reusable on the next generation.
	pos, err := svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.NoError(t, err)
	require.Regexp(t, `0001$`, pos[0].Code)
}

func TestRollbackBlockedByInstallmentInvoice(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, twoVendorLines())
	approveForPOs(t, svc, q.ID)

	_, err := svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.NoError(t, err)
	plan, err := svc.PlanInstallments(ctx, testActor, q.ID, 3)
	require.NoError(t, err)

	// An invoice raised against an installment links to the quotation only
	// through the installment row, yet it must still block rollback.
	repo.insInvoiced[plan[1].ID] = true
	_, err = svc.Rollback(ctx, testActor, q.ID)
	require.ErrorIs(t, err, ErrInvoiceExists)
	delete(repo.insInvoiced, plan[1].ID)

	repo.insBillRefs[plan[1].ID] = true
	_, err = svc.Rollback(ctx, testActor, q.ID)
	require.ErrorIs(t, err, ErrBillGroupExists)
	delete(repo.insBillRefs, plan[1].ID)

	got, err := svc.Rollback(ctx, testActor, q.ID)
	require.NoError(t, err)
	require.False(t, got.IsLocked)
}

func TestDeleteCascadesThroughInstallmentInvoices(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, twoVendorLines())
	approveForPOs(t, svc, q.ID)
	_, err := svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.NoError(t, err)
	plan, err := svc.PlanInstallments(ctx, testActor, q.ID, 2)
	require.NoError(t, err)
	repo.insInvoiced[plan[0].ID] = true
	repo.insBillRefs[plan[1].ID] = true

	require.NoError(t, svc.Delete(ctx, testActor, q.ID))
	_, err = svc.Get(ctx, q.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, repo.installs[q.ID])
	require.False(t, repo.insInvoiced[plan[0].ID])
	require.False(t, repo.insBillRefs[plan[1].ID])
}

func TestPlanInstallmentsLastAbsorbsRemainder(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, []CreateLineReq{
		{VendorID: 10, ProductID: 100, Quantity: 1, UnitPrice: 100, UnitCost: 60},
	})

	plan, err := svc.PlanInstallments(ctx, testActor, q.ID, 3)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	require.InDelta(t, 33.33, plan[0].Amount, 1e-9)
	require.InDelta(t, 33.33, plan[1].Amount, 1e-9)
	require.InDelta(t, 33.34, plan[2].Amount, 1e-9)
	require.InDelta(t, 35.66, plan[0].AmountWithVAT, 1e-9)
	require.Equal(t, "1/3", plan[0].Period)
	require.Equal(t, InstallmentPending, plan[0].Status)
	require.WithinDuration(t, time.Now().AddDate(0, 0, 30), plan[0].DueDate, time.Minute)
	require.WithinDuration(t, time.Now().AddDate(0, 0, 90), plan[2].DueDate, time.Minute)

	got, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.InDelta(t, 100, *got.OutstandingBalance, 1e-9)

	_, err = svc.PlanInstallments(ctx, testActor, q.ID, 4)
	require.ErrorIs(t, err, ErrInstallmentsExist)
}

func TestPlanInstallmentsNeedsTotal(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)

	q := seedQuotation(t, repo, svc, nil)
	_, err := svc.PlanInstallments(context.Background(), testActor, q.ID, 2)
	require.ErrorIs(t, err, ErrNoTotal)
}

func TestUpdateInstallmentsRecomputesOutstanding(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, []CreateLineReq{
		{VendorID: 10, ProductID: 100, Quantity: 1, UnitPrice: 100, UnitCost: 60},
	})
	plan, err := svc.PlanInstallments(ctx, testActor, q.ID, 3)
	require.NoError(t, err)

	paid := InstallmentPaid
	items, err := svc.UpdateInstallments(ctx, testActor, q.ID, []InstallmentUpdate{
		{ID: plan[0].ID, Status: &paid},
	})
	require.NoError(t, err)
	require.Equal(t, InstallmentPaid, items[0].Status)
	require.NotNil(t, items[0].PaidDate)

	got, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.InDelta(t, 66.67, *got.OutstandingBalance, 1e-9)

	// A VAT-inclusive amount edit rederives the pre-VAT amount.
	withVAT := 107.0
	items, err = svc.UpdateInstallments(ctx, testActor, q.ID, []InstallmentUpdate{
		{ID: plan[1].ID, AmountWithVAT: &withVAT},
	})
	require.NoError(t, err)
	require.InDelta(t, 100, items[1].Amount, 1e-9)

	_, err = svc.UpdateInstallments(ctx, testActor, q.ID, nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestOverrideSummaryRequiresLock(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, twoVendorLines())

	grand := 999.99
	_, err := svc.OverrideSummary(ctx, testActor, q.ID, SummaryOverride{GrandTotal: &grand})
	require.ErrorIs(t, err, ErrNotLocked)

	approveForPOs(t, svc, q.ID)
	_, err = svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.NoError(t, err)

	got, err := svc.OverrideSummary(ctx, testActor, q.ID, SummaryOverride{GrandTotal: &grand})
	require.NoError(t, err)
	require.InDelta(t, 999.99, *got.GrandTotal, 1e-9)
	require.InDelta(t, 880, *got.TotalPrice, 1e-9)

	_, err = svc.OverrideSummary(ctx, testActor, q.ID, SummaryOverride{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatusRevalidatesInsideTx(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	q := seedQuotation(t, repo, svc, twoVendorLines())

	// A concurrent archive lands between the caller's read and the write.
	repo.beforeTx = func(r *memorySalesRepo) {
		doc := r.quotations[q.ID]
		doc.Status = StatusArchived
		r.quotations[q.ID] = doc
	}
	_, err := svc.UpdateStatus(context.Background(), testActor, q.ID, StatusPendingApproval)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOverrideSummaryRevalidatesInsideTx(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, twoVendorLines())
	approveForPOs(t, svc, q.ID)
	_, err := svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.NoError(t, err)

	// A concurrent rollback unlocks the quotation first.
	repo.beforeTx = func(r *memorySalesRepo) {
		doc := r.quotations[q.ID]
		doc.IsLocked = false
		r.quotations[q.ID] = doc
	}
	grand := 999.99
	_, err = svc.OverrideSummary(ctx, testActor, q.ID, SummaryOverride{GrandTotal: &grand})
	require.ErrorIs(t, err, ErrNotLocked)
}

func TestDeleteCascades(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, twoVendorLines())
	approveForPOs(t, svc, q.ID)
	_, err := svc.GenerateAllPOs(ctx, testActor, q.ID)
	require.NoError(t, err)
	_, err = svc.PlanInstallments(ctx, testActor, q.ID, 2)
	require.NoError(t, err)
	repo.invoiced[q.ID] = true

	require.NoError(t, svc.Delete(ctx, testActor, q.ID))
	_, err = svc.Get(ctx, q.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, repo.pos)
	require.Empty(t, repo.installs[q.ID])
	require.Empty(t, repo.lines[q.ID])
	require.False(t, repo.invoiced[q.ID])
}

func TestMarkOverdueInstallments(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	q := seedQuotation(t, repo, svc, []CreateLineReq{
		{VendorID: 10, ProductID: 100, Quantity: 1, UnitPrice: 100, UnitCost: 60},
	})
	_, err := svc.PlanInstallments(ctx, testActor, q.ID, 2)
	require.NoError(t, err)

	n, err := svc.MarkOverdueInstallments(ctx, time.Now().AddDate(0, 0, 45))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	items, err := svc.Installments(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, InstallmentOverdue, items[0].Status)
	require.Equal(t, InstallmentPending, items[1].Status)
}

func TestOccupiedSequences(t *testing.T) {
	repo := newMemorySalesRepo()
	svc := NewService(repo, nil)
	q := seedQuotation(t, repo, svc, nil)
	require.Equal(t, "QT2026090001", q.Code)

	occupied, err := svc.OccupiedSequences(context.Background(), time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, []int{1}, occupied)
}
