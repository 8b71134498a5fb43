package report

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tradewind-erp/tradewind-erp/internal/billing"
	"github.com/tradewind-erp/tradewind-erp/internal/sales"
)

// QuotationSource provides the data behind quotation documents.
type QuotationSource interface {
	Get(ctx context.Context, id int64) (*sales.Quotation, error)
	Installments(ctx context.Context, quotationID int64) ([]sales.Installment, error)
}

// InvoiceSource provides the data behind invoice documents.
type InvoiceSource interface {
	GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error)
	Receipts(ctx context.Context, invoiceID int64) ([]billing.Receipt, error)
}

// Handler manages report endpoints.
type Handler struct {
	client     *Client
	logger     *slog.Logger
	quotations QuotationSource
	invoices   InvoiceSource
}

// NewHandler creates a report handler.
func NewHandler(client *Client, logger *slog.Logger, quotations QuotationSource, invoices InvoiceSource) *Handler {
	return &Handler{client: client, logger: logger, quotations: quotations, invoices: invoices}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/quotations/{id}/pdf", h.quotationPDF)
	r.Get("/invoices/{id}/pdf", h.invoicePDF)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) quotationPDF(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	q, err := h.quotations.Get(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, err, sales.ErrNotFound)
		return
	}
	installments, err := h.quotations.Installments(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, err, sales.ErrNotFound)
		return
	}
	html, err := BuildQuotationHTML(q, installments)
	if err != nil {
		h.logger.Error("build quotation document", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.renderPDF(w, r, html, q.Code+".pdf")
}

func (h *Handler) invoicePDF(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	inv, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, err, billing.ErrNotFound)
		return
	}
	receipts, err := h.invoices.Receipts(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, err, billing.ErrNotFound)
		return
	}
	html, err := BuildInvoiceHTML(inv, receipts)
	if err != nil {
		h.logger.Error("build invoice document", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.renderPDF(w, r, html, "invoice-"+inv.Code+".pdf")
}

func (h *Handler) renderPDF(w http.ResponseWriter, r *http.Request, html, filename string) {
	pdf, err := h.client.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render pdf", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err, notFound error) {
	if errors.Is(err, notFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	h.logger.Error("load report data", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
