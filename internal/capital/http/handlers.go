package capitalhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veridoc/veridoc/internal/capital"
	"github.com/veridoc/veridoc/internal/platform/httpx"
)

type capitalService interface {
	Create(ctx context.Context, in capital.CreateInput) (capital.CapitalEvent, error)
	Get(ctx context.Context, id uuid.UUID) (capital.CapitalEvent, error)
	AttachLink(ctx context.Context, in capital.AttachLinkInput) (capital.Completeness, error)
}

// Handler exposes capital events and their decision/payment/ledger links.
type Handler struct {
	logger   *slog.Logger
	service  capitalService
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service capitalService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/completeness", h.completeness)
		r.Post("/links", h.attachLink)
	})
}

func respondCapitalError(w http.ResponseWriter, err error) {
	var conflict *capital.LinkConflictError
	switch {
	case errors.As(err, &conflict):
		httpx.Problem(w, http.StatusConflict, "Link Conflict", conflict.Error())
	case errors.Is(err, capital.ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, capital.ErrCapitalEventNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

type linkView struct {
	Ref        string    `json:"ref"`
	Note       string    `json:"note,omitempty"`
	AttachedBy string    `json:"attached_by"`
	AttachedAt time.Time `json:"attached_at"`
}

type capitalEventView struct {
	ID            string    `json:"id"`
	CompanyID     int64     `json:"company_id"`
	Kind          string    `json:"kind"`
	Amount        string    `json:"amount"`
	ShareholderID string    `json:"shareholder_id"`
	Decision      *linkView `json:"decision_link,omitempty"`
	Payment       *linkView `json:"payment_link,omitempty"`
	LedgerEntry   *linkView `json:"ledger_link,omitempty"`
	Complete      bool      `json:"complete"`
	CreatedAt     time.Time `json:"created_at"`
}

func viewLink(l *capital.Link) *linkView {
	if l == nil {
		return nil
	}
	return &linkView{Ref: l.Ref, Note: l.Note, AttachedBy: l.AttachedBy, AttachedAt: l.AttachedAt}
}

func viewCapitalEvent(ev capital.CapitalEvent) capitalEventView {
	return capitalEventView{
		ID:            ev.ID.String(),
		CompanyID:     ev.CompanyID,
		Kind:          string(ev.Kind),
		Amount:        ev.Amount.String(),
		ShareholderID: ev.ShareholderID,
		Decision:      viewLink(ev.Decision),
		Payment:       viewLink(ev.Payment),
		LedgerEntry:   viewLink(ev.LedgerEntry),
		Complete:      ev.Completeness().Complete(),
		CreatedAt:     ev.CreatedAt,
	}
}

type createCapitalEventRequest struct {
	CompanyID     int64  `json:"company_id" validate:"required"`
	Kind          string `json:"kind" validate:"required,oneof=contribution withdrawal dividend"`
	Amount        string `json:"amount" validate:"required"`
	ShareholderID string `json:"shareholder_id" validate:"required"`
	ActorID       string `json:"actor_id" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createCapitalEventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal")
		return
	}

	ev, err := h.service.Create(r.Context(), capital.CreateInput{
		CompanyID:     req.CompanyID,
		Kind:          capital.EventKind(req.Kind),
		Amount:        amount,
		ShareholderID: req.ShareholderID,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.logger.Error("create capital event", slog.Any("error", err))
		respondCapitalError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewCapitalEvent(ev))
}

func capitalEventID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := capitalEventID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "capital event id must be a uuid")
		return
	}
	ev, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondCapitalError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewCapitalEvent(ev))
}

type attachLinkRequest struct {
	Kind           string `json:"kind" validate:"required,oneof=decision payment ledger"`
	Ref            string `json:"ref" validate:"required"`
	CorrectionNote string `json:"correction_note"`
	ActorID        string `json:"actor_id" validate:"required"`
}

type completenessView struct {
	HasDecision    bool `json:"has_decision"`
	HasPayment     bool `json:"has_payment"`
	HasLedgerEntry bool `json:"has_ledger_entry"`
	Complete       bool `json:"complete"`
}

func viewCompleteness(c capital.Completeness) completenessView {
	return completenessView{
		HasDecision:    c.HasDecision,
		HasPayment:     c.HasPayment,
		HasLedgerEntry: c.HasLedgerEntry,
		Complete:       c.Complete(),
	}
}

func (h *Handler) attachLink(w http.ResponseWriter, r *http.Request) {
	id, ok := capitalEventID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "capital event id must be a uuid")
		return
	}
	var req attachLinkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	completeness, err := h.service.AttachLink(r.Context(), capital.AttachLinkInput{
		CapitalEventID: id,
		Kind:           capital.LinkKind(req.Kind),
		Ref:            req.Ref,
		CorrectionNote: req.CorrectionNote,
		ActorID:        req.ActorID,
	})
	if err != nil {
		h.logger.Error("attach capital link", slog.Any("error", err))
		respondCapitalError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewCompleteness(completeness))
}

func (h *Handler) completeness(w http.ResponseWriter, r *http.Request) {
	id, ok := capitalEventID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "capital event id must be a uuid")
		return
	}
	ev, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondCapitalError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewCompleteness(ev.Completeness()))
}
