package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tucanprint/tucan-backend/internal/procurement/repository"
	"github.com/tucanprint/tucan-backend/internal/procurement/service"
	"github.com/tucanprint/tucan-backend/pkg/testutil"
)

type stubRecommender struct {
	rec *service.Recommendation
}

func (s stubRecommender) Recommend(ctx context.Context, stockItemID int64) (*service.Recommendation, error) {
	return s.rec, nil
}

func newHandler(t *testing.T, rec service.Recommender) *ProcurementHandler {
	t.Helper()
	mock := testutil.NewMockDB(t)
	log := testutil.TestLogger()
	ledger := service.NewStockLedger(mock.DB, repository.NewStockRepository(mock.DB), log)
	proposals := service.NewProposalService(mock.DB, ledger, repository.NewProposalRepository(mock.DB), nil, log)
	return NewProcurementHandler(rec, nil, proposals, nil, "secret-token", log)
}

func TestRecommendReturnsBestSupplier(t *testing.T) {
	h := newHandler(t, stubRecommender{rec: &service.Recommendation{
		Supplier: repository.Supplier{ID: 4, Name: "Papeles SA"},
		Score:    92.0,
	}})

	req := httptest.NewRequest(http.MethodPost, "/recommendations", strings.NewReader(`{"stock_item_id": 3}`))
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"score":92`)
}

func TestRecommendNoSuppliersIs404(t *testing.T) {
	h := newHandler(t, stubRecommender{})

	req := httptest.NewRequest(http.MethodPost, "/recommendations", strings.NewReader(`{"stock_item_id": 3}`))
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecommendMissingItemIDIsValidationError(t *testing.T) {
	h := newHandler(t, stubRecommender{})

	req := httptest.NewRequest(http.MethodPost, "/recommendations", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSupplierCallbackRejectsBadToken(t *testing.T) {
	h := newHandler(t, stubRecommender{})

	body := `{"proposal_id": 1, "estado": "disponible"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/supplier-callback", strings.NewReader(body))
	req.Header.Set("X-Webhook-Token", "wrong")
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSupplierCallbackAcceptsTokenQueryParam(t *testing.T) {
	h := newHandler(t, stubRecommender{})

	// Unknown estado fails validation after the token check passes
	body := `{"proposal_id": 1, "estado": "quizas"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/supplier-callback?token=secret-token", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown estado")
}
