package ledgerhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veridoc/veridoc/internal/ledger"
	"github.com/veridoc/veridoc/internal/platform/httpx"
)

type ledgerService interface {
	GetTotals(ctx context.Context, companyID int64, year, month int) (ledger.Totals, error)
	ClosePeriod(ctx context.Context, in ledger.PeriodInput) (ledger.CloseResult, error)
	ReopenPeriod(ctx context.Context, in ledger.ReopenInput) (ledger.Period, error)
	Period(ctx context.Context, companyID int64, year, month int) (ledger.Period, bool, error)
}

// Handler exposes period totals and the close/reopen lifecycle.
type Handler struct {
	logger   *slog.Logger
	service  ledgerService
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service ledgerService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{companyID}/{year}-{month}", func(r chi.Router) {
		r.Get("/totals", h.totals)
		r.Get("/", h.period)
		r.Post("/close", h.closePeriod)
		r.Post("/reopen", h.reopenPeriod)
	})
}

func respondLedgerError(w http.ResponseWriter, err error) {
	var missing *ledger.MissingSnapshotError
	switch {
	case errors.Is(err, ledger.ErrPeriodAlreadyClosed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", err.Error())
	case errors.Is(err, ledger.ErrClosePeriodInProgress):
		httpx.Problem(w, http.StatusConflict, "Close In Progress", err.Error())
	case errors.Is(err, ledger.ErrPeriodNotClosed):
		httpx.Problem(w, http.StatusConflict, "Period Not Closed", err.Error())
	case errors.Is(err, ledger.ErrElevationRequired):
		httpx.Problem(w, http.StatusForbidden, "Elevation Required", err.Error())
	case errors.As(err, &missing):
		httpx.Problem(w, http.StatusInternalServerError, "Snapshot Missing", missing.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func periodParams(r *http.Request) (companyID int64, year, month int, err error) {
	companyID, err = strconv.ParseInt(chi.URLParam(r, "companyID"), 10, 64)
	if err != nil {
		return 0, 0, 0, errors.New("company id must be an integer")
	}
	year, err = strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, 0, errors.New("year must be an integer")
	}
	month, err = strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, 0, errors.New("month must be an integer")
	}
	return companyID, year, month, nil
}

type totalsView struct {
	Revenue       string `json:"revenue"`
	Tax           string `json:"tax"`
	DocumentCount int    `json:"document_count"`
	Source        string `json:"source"`
}

func viewTotals(t ledger.Totals) totalsView {
	return totalsView{
		Revenue:       t.Revenue.String(),
		Tax:           t.Tax.String(),
		DocumentCount: t.DocumentCount,
		Source:        string(t.Source),
	}
}

type periodView struct {
	CompanyID       int64      `json:"company_id"`
	Year            int        `json:"year"`
	Month           int        `json:"month"`
	Status          string     `json:"status"`
	Generation      int        `json:"generation"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ClosedBy        string     `json:"closed_by,omitempty"`
	SnapshotEventID string     `json:"snapshot_event_id,omitempty"`
}

func viewPeriod(p ledger.Period) periodView {
	v := periodView{
		CompanyID:  p.CompanyID,
		Year:       p.Year,
		Month:      p.Month,
		Status:     string(p.Status),
		Generation: p.Generation,
		ClosedAt:   p.ClosedAt,
		ClosedBy:   p.ClosedBy,
	}
	if p.SnapshotEventID != nil {
		v.SnapshotEventID = p.SnapshotEventID.String()
	}
	return v
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	companyID, year, month, err := periodParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	totals, err := h.service.GetTotals(r.Context(), companyID, year, month)
	if err != nil {
		h.logger.Error("period totals", slog.Any("error", err))
		respondLedgerError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewTotals(totals))
}

func (h *Handler) period(w http.ResponseWriter, r *http.Request) {
	companyID, year, month, err := periodParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, found, err := h.service.Period(r.Context(), companyID, year, month)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	if !found {
		period = ledger.Period{
			CompanyID: companyID,
			Year:      year,
			Month:     month,
			Status:    ledger.PeriodStatusOpen,
		}
	}
	httpx.JSON(w, http.StatusOK, viewPeriod(period))
}

type closeRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

type closeResponse struct {
	Period  periodView `json:"period"`
	Totals  totalsView `json:"totals"`
	EventID string     `json:"event_id"`
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	companyID, year, month, err := periodParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.service.ClosePeriod(r.Context(), ledger.PeriodInput{
		CompanyID: companyID,
		Year:      year,
		Month:     month,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.logger.Error("close period", slog.Any("error", err))
		respondLedgerError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, closeResponse{
		Period:  viewPeriod(res.Period),
		Totals:  viewTotals(res.Totals),
		EventID: res.EventID.String(),
	})
}

type reopenRequest struct {
	ActorID  string `json:"actor_id" validate:"required"`
	Elevated bool   `json:"elevated"`
	Reason   string `json:"reason" validate:"required"`
}

func (h *Handler) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	companyID, year, month, err := periodParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, err := h.service.ReopenPeriod(r.Context(), ledger.ReopenInput{
		PeriodInput: ledger.PeriodInput{
			CompanyID: companyID,
			Year:      year,
			Month:     month,
			ActorID:   req.ActorID,
		},
		Elevated: req.Elevated,
		Reason:   req.Reason,
	})
	if err != nil {
		h.logger.Error("reopen period", slog.Any("error", err))
		respondLedgerError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewPeriod(period))
}
