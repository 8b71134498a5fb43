package app

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewind-erp/tradewind-erp/internal/billing"
	"github.com/tradewind-erp/tradewind-erp/internal/observability"
	"github.com/tradewind-erp/tradewind-erp/internal/platform/httpx"
	"github.com/tradewind-erp/tradewind-erp/internal/procurement"
	"github.com/tradewind-erp/tradewind-erp/internal/sales"
	"github.com/tradewind-erp/tradewind-erp/internal/shared"
	"github.com/tradewind-erp/tradewind-erp/jobs"
	"github.com/tradewind-erp/tradewind-erp/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	SalesHandler       *sales.Handler
	ProcurementHandler *procurement.Handler
	BillingHandler     *billing.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
	AuditLog           *shared.AuditLogger
	Pool               *pgxpool.Pool
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Tradewind defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				params.Logger.Warn("health ping", slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireIdentity)
		if params.SalesHandler != nil {
			params.SalesHandler.MountRoutes(r)
		}
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			r.Route("/reports", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.AuditLog != nil {
			r.Get("/audit", auditTimeline(params.Logger, params.AuditLog))
		}
	})

	return r
}

// auditTimeline lists audit entries for administrators.
func auditTimeline(logger *slog.Logger, auditLog *shared.AuditLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !shared.IdentityFromContext(r.Context()).IsAdmin() {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "administrator role required")
			return
		}
		filter := shared.AuditFilter{
			Entity:   r.URL.Query().Get("entity"),
			EntityID: r.URL.Query().Get("entity_id"),
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a positive integer")
				return
			}
			filter.Limit = limit
		}
		logs, err := auditLog.List(r.Context(), filter)
		if err != nil {
			logger.Error("list audit timeline", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": logs})
	}
}
