package report

import (
	"bytes"
	"html/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tradewind-erp/tradewind-erp/internal/billing"
	"github.com/tradewind-erp/tradewind-erp/internal/sales"
)

var printer = message.NewPrinter(language.English)

// money renders an amount with locale grouping and two decimals.
func money(v float64) string {
	return printer.Sprintf("%.2f", v)
}

func moneyPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return money(*v)
}

var quotationTmpl = template.Must(template.New("quotation").Parse(`<html>
<head><title>Quotation {{.Code}}</title></head>
<body>
<h1>Quotation {{.Code}}</h1>
<p>Customer #{{.CustomerID}} &middot; {{.QuoteDate}} &middot; Status {{.Status}}</p>
<table border="1" cellspacing="0" cellpadding="4" width="100%">
<tr><th>#</th><th>Product</th><th>Description</th><th>Qty</th><th>Unit Price</th><th>Discount</th><th>Extra</th><th>Net</th></tr>
{{range .Lines}}<tr><td>{{.Order}}</td><td>{{.ProductID}}</td><td>{{.Description}}</td><td>{{.Quantity}}</td><td align="right">{{.UnitPrice}}</td><td align="right">{{.Discount}}</td><td align="right">{{.ExtraCost}}</td><td align="right">{{.Net}}</td></tr>
{{end}}</table>
<table cellpadding="4" align="right">
<tr><td>Total</td><td align="right">{{.TotalPrice}}</td></tr>
<tr><td>Discount</td><td align="right">{{.Discount}}</td></tr>
<tr><td>VAT</td><td align="right">{{.VAT}}</td></tr>
<tr><td>Withholding</td><td align="right">{{.WithholdingTax}}</td></tr>
<tr><td><b>Grand Total</b></td><td align="right"><b>{{.GrandTotal}}</b></td></tr>
</table>
{{if .Installments}}<h2>Installments</h2>
<table border="1" cellspacing="0" cellpadding="4" width="100%">
<tr><th>Period</th><th>Amount</th><th>Amount incl. VAT</th><th>Due</th><th>Status</th></tr>
{{range .Installments}}<tr><td>{{.Period}}</td><td align="right">{{.Amount}}</td><td align="right">{{.AmountWithVAT}}</td><td>{{.DueDate}}</td><td>{{.Status}}</td></tr>
{{end}}</table>{{end}}
</body></html>`))

type quotationView struct {
	Code           string
	CustomerID     int64
	QuoteDate      string
	Status         string
	Lines          []quotationLineView
	TotalPrice     string
	Discount       string
	VAT            string
	WithholdingTax string
	GrandTotal     string
	Installments   []installmentView
}

type quotationLineView struct {
	Order       int
	ProductID   int64
	Description string
	Quantity    float64
	UnitPrice   string
	Discount    string
	ExtraCost   string
	Net         string
}

type installmentView struct {
	Period        string
	Amount        string
	AmountWithVAT string
	DueDate       string
	Status        string
}

// BuildQuotationHTML renders the quotation document from stored figures. All
// totals come from the record itself so the document always matches what was
// committed, overrides included.
func BuildQuotationHTML(q *sales.Quotation, installments []sales.Installment) (string, error) {
	view := quotationView{
		Code:           q.Code,
		CustomerID:     q.CustomerID,
		QuoteDate:      q.QuoteDate.Format("2006-01-02"),
		Status:         string(q.Status),
		TotalPrice:     moneyPtr(q.TotalPrice),
		Discount:       moneyPtr(q.Discount),
		VAT:            moneyPtr(q.VAT),
		WithholdingTax: moneyPtr(q.WithholdingTax),
		GrandTotal:     moneyPtr(q.GrandTotal),
	}
	for _, l := range q.Lines {
		desc := ""
		if l.Description != nil {
			desc = *l.Description
		}
		net := l.UnitPrice*l.Quantity - l.Discount + l.ExtraCost
		view.Lines = append(view.Lines, quotationLineView{
			Order:       l.LineOrder,
			ProductID:   l.ProductID,
			Description: desc,
			Quantity:    l.Quantity,
			UnitPrice:   money(l.UnitPrice),
			Discount:    money(l.Discount),
			ExtraCost:   money(l.ExtraCost),
			Net:         money(net),
		})
	}
	for _, inst := range installments {
		view.Installments = append(view.Installments, installmentView{
			Period:        inst.Period,
			Amount:        money(inst.Amount),
			AmountWithVAT: money(inst.AmountWithVAT),
			DueDate:       inst.DueDate.Format("2006-01-02"),
			Status:        string(inst.Status),
		})
	}
	var buf bytes.Buffer
	if err := quotationTmpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var invoiceTmpl = template.Must(template.New("invoice").Parse(`<html>
<head><title>Invoice {{.Code}}</title></head>
<body>
<h1>Invoice {{.Code}}</h1>
<p>Date {{.InvoiceDate}}{{if .QuotationID}} &middot; Quotation #{{.QuotationID}}{{end}}{{if .InstallmentID}} &middot; Installment #{{.InstallmentID}}{{end}}</p>
<table cellpadding="4">
<tr><td>Amount</td><td align="right">{{.Amount}}</td></tr>
<tr><td><b>Amount incl. VAT</b></td><td align="right"><b>{{.AmountWithVAT}}</b></td></tr>
</table>
{{if .Receipts}}<h2>Receipts</h2>
<table border="1" cellspacing="0" cellpadding="4" width="100%">
<tr><th>Code</th><th>Amount</th><th>Received</th></tr>
{{range .Receipts}}<tr><td>{{.Code}}</td><td align="right">{{.Amount}}</td><td>{{.ReceivedAt}}</td></tr>
{{end}}</table>{{end}}
</body></html>`))

type invoiceView struct {
	Code          string
	InvoiceDate   string
	QuotationID   *int64
	InstallmentID *int64
	Amount        string
	AmountWithVAT string
	Receipts      []receiptView
}

type receiptView struct {
	Code       string
	Amount     string
	ReceivedAt string
}

// BuildInvoiceHTML renders the invoice document.
func BuildInvoiceHTML(inv *billing.Invoice, receipts []billing.Receipt) (string, error) {
	view := invoiceView{
		Code:          inv.Code,
		InvoiceDate:   inv.InvoiceDate.Format("2006-01-02"),
		QuotationID:   inv.QuotationID,
		InstallmentID: inv.InstallmentID,
		Amount:        money(inv.Amount),
		AmountWithVAT: money(inv.AmountWithVAT),
	}
	for _, rc := range receipts {
		view.Receipts = append(view.Receipts, receiptView{
			Code:       rc.Code,
			Amount:     money(rc.Amount),
			ReceivedAt: rc.ReceivedAt.Format("2006-01-02"),
		})
	}
	var buf bytes.Buffer
	if err := invoiceTmpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
