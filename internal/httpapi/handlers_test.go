package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cart-dialer/internal/auth"
	"cart-dialer/internal/batch"
	"cart-dialer/internal/calllog"
	"cart-dialer/internal/calls"
	"cart-dialer/internal/config"
	"cart-dialer/internal/contacts"
	"cart-dialer/internal/dispatch"
	"cart-dialer/internal/metrics"
	"cart-dialer/internal/reconcile"
	"cart-dialer/internal/reporting"
	"cart-dialer/internal/telephony"
	"cart-dialer/pkg/logger"
)

type fixture struct {
	router *gin.Engine
	token  string
	log    *calllog.MemoryLog
	caller *telephony.DryRunCaller
}

func newFixture(t *testing.T, trigger CallTrigger) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m := metrics.NewDialerMetrics(reg)

	caller := telephony.NewDryRunCaller(logger.Discard())
	memLog := calllog.NewMemoryLog()
	if trigger == nil {
		d := dispatch.New(caller, dispatch.Options{Metrics: m, Logger: logger.Discard()})
		trigger = batch.New(calls.NewBuilder("assistant-1"), d, memLog, batch.Options{Logger: logger.Discard(), Metrics: m})
	}

	mgr, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "cart-dialer", AccessTokenTTL: time.Hour})
	require.NoError(t, err)
	tok, err := mgr.Issue(time.Now(), "ops")
	require.NoError(t, err)

	events := reconcile.NewService(reconcile.NewMemoryStore(), m, logger.Discard())

	r := gin.New()
	r.Use(logger.Middleware(logger.Discard()))
	RegisterRoutes(r, RouterDeps{
		Handlers: Handlers{
			Calls:   trigger,
			Events:  events,
			Reports: reporting.NewService(reporting.FileRepo{}),
			LogPath: filepath.Join(t.TempDir(), "missing.csv"),
		},
		Webhooks: telephony.StatusWebhookHandler{Sink: events, VapiSecret: "hook-secret"},
		Auth:     auth.RequireOperator(mgr),
		Gatherer: reg,
	})
	return &fixture{router: r, token: tok, log: memLog, caller: caller}
}

func (f *fixture) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/readyz", "", false)
	assert.Equal(t, http.StatusOK, w.Code)

	f.do(http.MethodPost, "/v1/calls", `{"name":"Asha","phone":"+14155550100","items":"Lamp","total":25}`, true)
	w = f.do(http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cart_dialer_dispatch_outcomes_total")
}

func TestPlaceCall_RequiresToken(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/v1/calls", `{"name":"Asha","phone":"+14155550100"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.caller.Calls())
}

func TestPlaceCall_DispatchesAndLogs(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/v1/calls",
		`{"customer_name":"Rahul Sharma","phone_number":"+917499902809","cart_items":["Headphones","Speaker"],"cart_total":4098}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Outcome calls.CallOutcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, calls.OutcomeInitiated, body.Outcome.Status)
	assert.True(t, strings.HasPrefix(body.Outcome.CallID, "dry-"))

	placed := f.caller.Calls()
	require.Len(t, placed, 1)
	assert.Equal(t, "Headphones, Speaker", placed[0].Variables[calls.VarItems])
	assert.Equal(t, "4098.00", placed[0].Variables[calls.VarTotal])

	entries := f.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, body.Outcome.CallID, entries[0].Outcome.CallID)
}

func TestPlaceCall_InvalidPhoneIsSkippedAndLogged(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/v1/calls", `{"name":"Asha","phone":"14155550100","items":"Lamp","total":"25"}`, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, f.caller.Calls())
	require.Len(t, f.log.Entries(), 1)
	assert.Equal(t, calls.OutcomeSkipped, f.log.Entries()[0].Outcome.Status)
}

func TestPlaceCall_BadBody(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/v1/calls", `{not json`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/calls", `{"name":"A","phone":"+1","items":{"a":1}}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubTrigger struct {
	out calls.CallOutcome
	err error
}

func (s stubTrigger) ProcessOne(context.Context, contacts.ContactRecord) (calls.CallOutcome, error) {
	return s.out, s.err
}

func TestPlaceCall_ErrorMapping(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		trigger stubTrigger
		want    int
	}{
		{"failed", stubTrigger{out: calls.Failed("quota exceeded", false, now, now)}, http.StatusBadGateway},
		{"log write", stubTrigger{out: calls.Initiated("c1", now, now), err: errors.New("disk full")}, http.StatusInternalServerError},
		{"interrupted", stubTrigger{err: context.Canceled}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.trigger)
			w := f.do(http.MethodPost, "/v1/calls", `{"name":"Asha","phone":"+14155550100"}`, true)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestWebhookThenCallStatus(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/v1/calls/call_123/status", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	payload := `{"message":{"type":"end-of-call-report","endedReason":"customer-ended-call","durationSeconds":31.6,
		"call":{"id":"call_123","customer":{"number":"+917499902809"}}}}`
	w = f.do(http.MethodPost, "/webhooks/vapi", payload, false)
	require.Equal(t, http.StatusUnauthorized, w.Code, "unsigned webhooks are rejected")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/vapi", strings.NewReader(payload))
	req.Header.Set(telephony.VapiSecretHeader, "hook-secret")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/v1/calls/call_123/status", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var st reconcile.CallState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "ended", st.Status)
	assert.Equal(t, "customer-ended-call", st.EndedReason)
	assert.Equal(t, 1, st.Events)
}

func TestReport_EmptyLog(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/v1/report", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var sum reporting.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 0, sum.TotalRows)
}

func TestReadiness_Unavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := Handlers{Ready: func(context.Context) error { return errors.New("db down") }}
	r.GET("/readyz", h.Readiness)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
