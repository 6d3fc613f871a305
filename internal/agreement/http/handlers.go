package agreementhttp

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

	"github.com/veridoc/veridoc/internal/agreement"
	"github.com/veridoc/veridoc/internal/compliance"
	"github.com/veridoc/veridoc/internal/platform/httpx"
)

type agreementService interface {
	CreateDocument(ctx context.Context, in agreement.CreateDocumentInput) (agreement.Document, error)
	Get(ctx context.Context, id uuid.UUID) (agreement.Document, error)
	Transition(ctx context.Context, in agreement.TransitionInput) (agreement.TransitionResult, error)
	History(ctx context.Context, documentID uuid.UUID) ([]agreement.TransitionRecord, error)
	RecordSubmissionStatus(ctx context.Context, in agreement.RecordSubmissionInput) (agreement.Document, error)
	RecordPostingStatus(ctx context.Context, in agreement.RecordPostingInput) (agreement.Document, error)
}

// Handler wires HTTP endpoints for documents and their agreement lifecycle.
type Handler struct {
	logger   *slog.Logger
	service  agreementService
	validate *validator.Validate
}

// NewHandler constructs an agreement HTTP handler.
func NewHandler(logger *slog.Logger, service agreementService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createDocument)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getDocument)
		r.Get("/history", h.history)
		r.Post("/transition", h.transition)
		r.Post("/submission", h.recordSubmission)
		r.Post("/posting", h.recordPosting)
	})
}

func respondAgreementError(w http.ResponseWriter, err error) {
	var invalid *agreement.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", invalid.Error())
	case errors.Is(err, agreement.ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, agreement.ErrDocumentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

type createDocumentRequest struct {
	CompanyID        int64  `json:"company_id" validate:"required"`
	Kind             string `json:"kind" validate:"required,oneof=invoice contract"`
	Number           string `json:"number" validate:"required"`
	CounterpartyName string `json:"counterparty_name"`
	NetAmount        string `json:"net_amount" validate:"required"`
	TaxAmount        string `json:"tax_amount" validate:"required"`
	IssueDate        string `json:"issue_date" validate:"required"`
	ActorID          string `json:"actor_id" validate:"required"`
}

type documentView struct {
	ID               string           `json:"id"`
	CompanyID        int64            `json:"company_id"`
	Kind             string           `json:"kind"`
	Number           string           `json:"number"`
	CounterpartyName string           `json:"counterparty_name,omitempty"`
	AgreementStatus  string           `json:"agreement_status"`
	SubmissionStatus string           `json:"submission_status"`
	SubmissionRef    string           `json:"submission_ref,omitempty"`
	PostingStatus    string           `json:"posting_status"`
	PostingRef       string           `json:"posting_ref,omitempty"`
	PostedAt         *time.Time       `json:"posted_at,omitempty"`
	NetAmount        string           `json:"net_amount"`
	TaxAmount        string           `json:"tax_amount"`
	IssueDate        string           `json:"issue_date"`
	Compliance       compliance.Label `json:"compliance"`
}

func viewDocument(doc agreement.Document) documentView {
	return documentView{
		ID:               doc.ID.String(),
		CompanyID:        doc.CompanyID,
		Kind:             string(doc.Kind),
		Number:           doc.Number,
		CounterpartyName: doc.CounterpartyName,
		AgreementStatus:  string(doc.Status),
		SubmissionStatus: string(doc.Submission),
		SubmissionRef:    doc.SubmissionRef,
		PostingStatus:    string(doc.Posting),
		PostingRef:       doc.PostingRef,
		PostedAt:         doc.PostedAt,
		NetAmount:        doc.NetAmount.String(),
		TaxAmount:        doc.TaxAmount.String(),
		IssueDate:        doc.IssueDate.Format("2006-01-02"),
		Compliance:       compliance.Evaluate(doc.Status, doc.Submission, doc.Posting),
	}
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	net, err := decimal.NewFromString(req.NetAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "net_amount must be a decimal")
		return
	}
	tax, err := decimal.NewFromString(req.TaxAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tax_amount must be a decimal")
		return
	}
	issueDate, err := time.Parse("2006-01-02", req.IssueDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "issue_date must be YYYY-MM-DD")
		return
	}

	doc, err := h.service.CreateDocument(r.Context(), agreement.CreateDocumentInput{
		CompanyID:        req.CompanyID,
		Kind:             agreement.Kind(req.Kind),
		Number:           req.Number,
		CounterpartyName: req.CounterpartyName,
		NetAmount:        net,
		TaxAmount:        tax,
		IssueDate:        issueDate,
		ActorID:          req.ActorID,
	})
	if err != nil {
		h.logger.Error("create document", slog.Any("error", err))
		respondAgreementError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewDocument(doc))
}

func documentID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "document id must be a uuid")
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondAgreementError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewDocument(doc))
}

type transitionRequest struct {
	To      string `json:"to" validate:"required"`
	ActorID string `json:"actor_id" validate:"required"`
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

type transitionResponse struct {
	NewStatus string `json:"new_status"`
	EventID   string `json:"event_id"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "document id must be a uuid")
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	to, err := agreement.ParseStatus(req.To)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	res, err := h.service.Transition(r.Context(), agreement.TransitionInput{
		DocumentID: id,
		To:         to,
		ActorID:    req.ActorID,
		Action:     req.Action,
		Comment:    req.Comment,
	})
	if err != nil {
		respondAgreementError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transitionResponse{
		NewStatus: string(res.NewStatus),
		EventID:   res.EventID.String(),
	})
}

type historyEntryView struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "document id must be a uuid")
		return
	}
	records, err := h.service.History(r.Context(), id)
	if err != nil {
		respondAgreementError(w, err)
		return
	}
	views := make([]historyEntryView, 0, len(records))
	for _, rec := range records {
		views = append(views, historyEntryView{
			From:       string(rec.From),
			To:         string(rec.To),
			ActorID:    rec.ActorID,
			Action:     rec.Action,
			Comment:    rec.Comment,
			EventID:    rec.EventID.String(),
			OccurredAt: rec.OccurredAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": views})
}

type submissionRequest struct {
	Status    string `json:"status" validate:"required,oneof=none pending submitted error"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
	ActorID   string `json:"actor_id" validate:"required"`
}

func (h *Handler) recordSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "document id must be a uuid")
		return
	}
	var req submissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := h.service.RecordSubmissionStatus(r.Context(), agreement.RecordSubmissionInput{
		DocumentID: id,
		Status:     agreement.SubmissionStatus(req.Status),
		Reference:  req.Reference,
		Message:    req.Message,
		ActorID:    req.ActorID,
	})
	if err != nil {
		respondAgreementError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewDocument(doc))
}

type postingRequest struct {
	Status    string     `json:"status" validate:"required,oneof=posted unposted needs_review"`
	Reference string     `json:"reference"`
	PostedAt  *time.Time `json:"posted_at"`
	ActorID   string     `json:"actor_id" validate:"required"`
}

func (h *Handler) recordPosting(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "document id must be a uuid")
		return
	}
	var req postingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := h.service.RecordPostingStatus(r.Context(), agreement.RecordPostingInput{
		DocumentID: id,
		Status:     agreement.PostingStatus(req.Status),
		Reference:  req.Reference,
		PostedAt:   req.PostedAt,
		ActorID:    req.ActorID,
	})
	if err != nil {
		respondAgreementError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewDocument(doc))
}
