package capitalhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/internal/capital"
)

type stubCapitalService struct {
	createFn func(ctx context.Context, in capital.CreateInput) (capital.CapitalEvent, error)
	getFn    func(ctx context.Context, id uuid.UUID) (capital.CapitalEvent, error)
	attachFn func(ctx context.Context, in capital.AttachLinkInput) (capital.Completeness, error)
}

func (s *stubCapitalService) Create(ctx context.Context, in capital.CreateInput) (capital.CapitalEvent, error) {
	return s.createFn(ctx, in)
}

func (s *stubCapitalService) Get(ctx context.Context, id uuid.UUID) (capital.CapitalEvent, error) {
	return s.getFn(ctx, id)
}

func (s *stubCapitalService) AttachLink(ctx context.Context, in capital.AttachLinkInput) (capital.Completeness, error) {
	return s.attachFn(ctx, in)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestRouter(svc capitalService) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(discardWriter{}, nil)), svc)
	r := chi.NewRouter()
	r.Route("/capital-events", h.MountRoutes)
	return r
}

func TestAttachLinkMapsConflictTo409(t *testing.T) {
	svc := &stubCapitalService{
		attachFn: func(ctx context.Context, in capital.AttachLinkInput) (capital.Completeness, error) {
			return capital.Completeness{}, &capital.LinkConflictError{Kind: capital.LinkPayment}
		},
	}

	body := `{"kind":"payment","ref":"PAY-2","actor_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/capital-events/"+uuid.NewString()+"/links", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestAttachLinkReturnsCompleteness(t *testing.T) {
	svc := &stubCapitalService{
		attachFn: func(ctx context.Context, in capital.AttachLinkInput) (capital.Completeness, error) {
			require.Equal(t, capital.LinkLedgerEntry, in.Kind)
			require.Equal(t, "JE-9", in.Ref)
			return capital.Completeness{HasDecision: true, HasPayment: true, HasLedgerEntry: true}, nil
		},
	}

	body := `{"kind":"ledger","ref":"JE-9","actor_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/capital-events/"+uuid.NewString()+"/links", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body2 completenessView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body2))
	require.True(t, body2.Complete)
}

func TestGetMapsUnknownEventTo404(t *testing.T) {
	svc := &stubCapitalService{
		getFn: func(ctx context.Context, id uuid.UUID) (capital.CapitalEvent, error) {
			return capital.CapitalEvent{}, capital.ErrCapitalEventNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/capital-events/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	svc := &stubCapitalService{}

	body := `{"company_id":7,"kind":"loan","amount":"500","shareholder_id":"sh-1","actor_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/capital-events/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateReturnsEventView(t *testing.T) {
	id := uuid.New()
	svc := &stubCapitalService{
		createFn: func(ctx context.Context, in capital.CreateInput) (capital.CapitalEvent, error) {
			require.Equal(t, capital.KindContribution, in.Kind)
			require.True(t, in.Amount.Equal(decimal.RequireFromString("2500")))
			return capital.CapitalEvent{
				ID:            id,
				CompanyID:     in.CompanyID,
				Kind:          in.Kind,
				Amount:        in.Amount,
				ShareholderID: in.ShareholderID,
			}, nil
		},
	}

	body := `{"company_id":7,"kind":"contribution","amount":"2500","shareholder_id":"sh-1","actor_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/capital-events/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var view capitalEventView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Equal(t, id.String(), view.ID)
	require.False(t, view.Complete)
}
