package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/aymanhalloween/smartcard/internal/routing"
	"github.com/aymanhalloween/smartcard/internal/signature"
)

const testSecret = "whsec_test_secret"

type apiFixture struct {
	router   chi.Router
	repo     *Repository
	settler  *fakeSettler
	resolver *fakeResolver
	selector *routing.Selector
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	selector, err := routing.NewSelector(routing.DefaultInstruments())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.WebhookSecret = testSecret
	cfg.SettlementTimeout = 100 * time.Millisecond
	cfg.ResolutionTimeout = 100 * time.Millisecond

	logger := slog.New(slog.NewTextHandler(io.Discard))
	repo := NewRepository()
	settler := &fakeSettler{settlementID: "stl_1"}
	resolver := &fakeResolver{}

	coordinator := NewCoordinator(selector, settler, resolver, repo, logger, cfg)
	api := NewAPI(coordinator, selector, repo, cfg, logger)

	r := chi.NewRouter()
	api.AppendRoutes(r)

	return &apiFixture{router: r, repo: repo, settler: settler, resolver: resolver, selector: selector}
}

func eventPayload(t *testing.T, eventType, authorizationID, mcc string, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      "evt_" + uuid.NewString(),
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":       authorizationID,
				"amount":   amount,
				"currency": "usd",
				"merchant_data": map[string]any{
					"mcc":  mcc,
					"name": "Starbucks #1234",
				},
				"status": "pending",
			},
		},
	})
	require.NoError(t, err)
	return body
}

func postWebhook(t *testing.T, r chi.Router, body []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signed(body []byte) string {
	return signature.Sign([]byte(testSecret), body, time.Now())
}

func TestWebhook_RoutesAuthorization(t *testing.T) {
	f := newAPIFixture(t)

	authorizationID := "iauth_" + uuid.NewString()
	body := eventPayload(t, "issuing_authorization.created", authorizationID, "5812", 525)

	w := postWebhook(t, f.router, body, signed(body))
	require.Equal(t, http.StatusOK, w.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "chase_sapphire", resp.RoutedTo)
	require.Equal(t, "approved", resp.Status)
	require.Equal(t, "stl_1", resp.SettlementID)

	stored, err := f.repo.Get(context.Background(), authorizationID)
	require.NoError(t, err)
	require.Equal(t, "dining", stored.Category)
}

func TestWebhook_DeclinedStillReturns200(t *testing.T) {
	f := newAPIFixture(t)
	f.settler.err = &SettlementError{Reason: "insufficient_funds"}
	f.settler.settlementID = ""

	body := eventPayload(t, "issuing_authorization.created", "iauth_"+uuid.NewString(), "5411", 8750)
	w := postWebhook(t, f.router, body, signed(body))

	// The caller must not infer approval from the HTTP status alone.
	require.Equal(t, http.StatusOK, w.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "declined", resp.Status)
	require.Empty(t, resp.SettlementID)
}

func TestWebhook_TamperedSignatureRejectedWithoutDecision(t *testing.T) {
	f := newAPIFixture(t)

	body := eventPayload(t, "issuing_authorization.created", "iauth_"+uuid.NewString(), "5812", 525)
	header := signed(body)

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)/2] ^= 0x01

	w := postWebhook(t, f.router, tampered, header)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	require.Zero(t, f.settler.calls)
	decisions, err := f.repo.List(context.Background(), 50)
	require.NoError(t, err)
	require.Empty(t, decisions)
}

func TestWebhook_TransactionFinalizedIsLoggedNotRouted(t *testing.T) {
	f := newAPIFixture(t)

	body := eventPayload(t, "issuing_transaction.created", "itxn_"+uuid.NewString(), "5812", 525)
	w := postWebhook(t, f.router, body, signed(body))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"received": true}`, w.Body.String())

	require.Zero(t, f.settler.calls)
	decisions, err := f.repo.List(context.Background(), 50)
	require.NoError(t, err)
	require.Empty(t, decisions)
}

func TestWebhook_UnsupportedTypeRejected(t *testing.T) {
	f := newAPIFixture(t)

	body := eventPayload(t, "issuing_card.created", "ic_"+uuid.NewString(), "", 100)
	w := postWebhook(t, f.router, body, signed(body))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_MalformedBodyRejected(t *testing.T) {
	f := newAPIFixture(t)

	body := []byte(`{"type": "issuing_authorization.created"`)
	w := postWebhook(t, f.router, body, signed(body))
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Missing amount on an authorization event.
	body = eventPayload(t, "issuing_authorization.created", "iauth_"+uuid.NewString(), "5812", 0)
	w = postWebhook(t, f.router, body, signed(body))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_MissingMCCRoutesToDefault(t *testing.T) {
	f := newAPIFixture(t)

	body := eventPayload(t, "issuing_authorization.created", "iauth_"+uuid.NewString(), "", 1000)
	w := postWebhook(t, f.router, body, signed(body))
	require.Equal(t, http.StatusOK, w.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "default_card", resp.RoutedTo)
}

func TestListAndGetDecisions(t *testing.T) {
	f := newAPIFixture(t)

	authorizationID := "iauth_" + uuid.NewString()
	body := eventPayload(t, "issuing_authorization.created", authorizationID, "3000", 45000)
	w := postWebhook(t, f.router, body, signed(body))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/decisions", nil)
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Decisions []struct {
			AuthorizationID string `json:"authorization_id"`
			Category        string `json:"category"`
		} `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Decisions, 1)
	require.Equal(t, authorizationID, list.Decisions[0].AuthorizationID)
	require.Equal(t, "travel", list.Decisions[0].Category)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/decisions/"+authorizationID, nil)
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/decisions/iauth_missing", nil)
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReloadInstruments(t *testing.T) {
	f := newAPIFixture(t)

	// Missing default entry must be rejected and leave routing untouched.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/dev/instruments/reload",
		bytes.NewBufferString(`{"dining": {"instrument_id": "citi_custom", "opaque_token": "tok_citi"}}`))
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "chase_sapphire", f.selector.Select(routing.CategoryDining).ID)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/dev/instruments/reload",
		bytes.NewBufferString(`{
            "dining":  {"instrument_id": "citi_custom", "opaque_token": "tok_citi"},
            "default": {"instrument_id": "default_card", "opaque_token": "tok_default_card"}
        }`))
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "citi_custom", f.selector.Select(routing.CategoryDining).ID)
}
