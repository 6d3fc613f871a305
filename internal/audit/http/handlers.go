package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/platform/httpx"
)

type auditService interface {
	Timeline(ctx context.Context, f audit.Filters, page, pageSize int) (audit.Result, error)
}

// Handler exposes the audit timeline over HTTP.
type Handler struct {
	logger  *slog.Logger
	service auditService
}

// NewHandler constructs an audit HTTP handler.
func NewHandler(logger *slog.Logger, service auditService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.timeline)
}

type eventView struct {
	ID            string         `json:"id"`
	CompanyID     int64          `json:"company_id"`
	Type          string         `json:"type"`
	ActorID       string         `json:"actor_id"`
	Entity        string         `json:"entity"`
	EntityID      string         `json:"entity_id"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

type timelineResponse struct {
	Events []eventView      `json:"events"`
	Paging audit.PagingInfo `json:"paging"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	companyID, err := strconv.ParseInt(q.Get("company_id"), 10, 64)
	if err != nil || companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return
	}

	filters := audit.Filters{
		CompanyID: companyID,
		Entity:    audit.EntityKind(q.Get("entity")),
		EntityID:  q.Get("entity_id"),
		ActorID:   q.Get("actor_id"),
	}
	if raw := q.Get("type"); raw != "" {
		filters.Types = []audit.EventType{audit.EventType(raw)}
	}
	if raw := q.Get("correlation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "correlation_id must be a uuid")
			return
		}
		filters.CorrelationID = id
	}
	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC3339")
			return
		}
		filters.From = ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC3339")
			return
		}
		filters.To = ts
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.service.Timeline(r.Context(), filters, page, pageSize)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := timelineResponse{Events: make([]eventView, 0, len(result.Events)), Paging: result.Paging}
	for _, ev := range result.Events {
		view := eventView{
			ID:         ev.ID.String(),
			CompanyID:  ev.CompanyID,
			Type:       string(ev.Type),
			ActorID:    ev.ActorID,
			Entity:     string(ev.Entity),
			EntityID:   ev.EntityID,
			Payload:    ev.Payload,
			OccurredAt: ev.OccurredAt,
		}
		if ev.CorrelationID != uuid.Nil {
			view.CorrelationID = ev.CorrelationID.String()
		}
		resp.Events = append(resp.Events, view)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
