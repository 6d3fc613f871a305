package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	agreementhttp "github.com/veridoc/veridoc/internal/agreement/http"
	audithttp "github.com/veridoc/veridoc/internal/audit/http"
	capitalhttp "github.com/veridoc/veridoc/internal/capital/http"
	ledgerhttp "github.com/veridoc/veridoc/internal/ledger/http"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuditHandler     *audithttp.Handler
	AgreementHandler *agreementhttp.Handler
	LedgerHandler    *ledgerhttp.Handler
	CapitalHandler   *capitalhttp.Handler
}

// NewRouter constructs the chi.Router with Veridoc defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.AgreementHandler != nil {
		r.Route("/documents", params.AgreementHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/periods", params.LedgerHandler.MountRoutes)
	}
	if params.CapitalHandler != nil {
		r.Route("/capital-events", params.CapitalHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}

	return r
}
