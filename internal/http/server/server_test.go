package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/controltower/internal/authz"
	"github.com/dropDatabas3/controltower/internal/config"
	"github.com/dropDatabas3/controltower/internal/directory"
	"github.com/dropDatabas3/controltower/internal/http/handlers"
	"github.com/dropDatabas3/controltower/internal/http/server"
	"github.com/dropDatabas3/controltower/internal/idempotency"
	"github.com/dropDatabas3/controltower/internal/notify"
	"github.com/dropDatabas3/controltower/internal/payments"
	"github.com/dropDatabas3/controltower/internal/rate"
	"github.com/dropDatabas3/controltower/internal/store/memory"
	"github.com/dropDatabas3/controltower/internal/token"
	"github.com/dropDatabas3/controltower/internal/worker"
)

const adminKey = "test-admin-key"

func newTestServer(t *testing.T, apiQuota int) *httptest.Server {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Token.SigningSecret = "test-secret"
	cfg.Token.Issuer = "controltower.test"
	cfg.Admin.APIKeyHash = string(hash)
	cfg.AgentDefaults.DailyLimit = 20000
	cfg.AgentDefaults.TransactionLimit = 10000
	cfg.AgentDefaults.VelocityLimit = 10
	cfg.AgentDefaults.AutoApproveUnder = 1000
	cfg.AgentDefaults.RequireApprovalOver = 20000
	cfg.Plans = map[string]config.Plan{
		"sandbox": {
			TransactionCap: 100000, DailyCap: 500000,
			APIQuota: apiQuota, VelocityCap: 100, OverageFeeCents: 5,
		},
		"trial": {
			TransactionCap: 100000, DailyCap: 500000,
			APIQuota: apiQuota, VelocityCap: 1,
		},
	}

	st := memory.New()
	dir, err := directory.New(context.Background(), st, nil)
	require.NoError(t, err)

	keys := token.StaticKeyring{KID: "k1", Secret: []byte(cfg.Token.SigningSecret)}
	issuer := token.NewIssuer(cfg.Token.Issuer, keys, cfg.TokenTTL(), cfg.TokenClockSkew())
	validator := token.NewValidator(cfg.Token.Issuer, keys, cfg.TokenClockSkew(), st)

	pool := worker.New(1, 64, 1)
	t.Cleanup(pool.Close)

	svc := authz.New(cfg, st, dir, issuer, validator, payments.NewDemoExecutor(), pool, notify.New(nil, ""))
	guard := idempotency.NewGuard(st, cfg.IdempotencyWindow(), cfg.IdempotencyBucket())
	registry := prometheus.NewRegistry()

	srv := server.New(server.Deps{
		Config:   cfg,
		Handlers: handlers.New(cfg, svc, st, idempotency.NewWebhookGuard(st, cfg.WebhookWindow())),
		Dir:      dir,
		Limiter:  rate.NewMemoryLimiter(cfg.RateWindow()),
		Guard:    guard,
		Registry: registry,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func adminHeaders() map[string]string { return map[string]string{"X-Admin-Key": adminKey} }

// provisiona tenant + agente y devuelve (agentID, credencial).
func provision(t *testing.T, ts *httptest.Server) (string, string) {
	t.Helper()
	resp, _ := doJSON(t, ts, "POST", "/v1/admin/tenants",
		map[string]any{"id": "tenant-1", "name": "Acme", "plan": "sandbox", "verified": true},
		adminHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, agent := doJSON(t, ts, "POST", "/v1/admin/agents",
		map[string]any{"tenantId": "tenant-1", "name": "Lunch Bot", "paymentMethod": "pm_1"},
		adminHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, agent["credential"], "creation response must carry the plaintext credential")
	return agent["id"].(string), agent["credential"].(string)
}

func bearer(cred string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + cred}
}

func TestAuthorizeConfirmFlow(t *testing.T) {
	ts := newTestServer(t, 100)
	_, cred := provision(t, ts)

	// autorizar
	resp, body := doJSON(t, ts, "POST", "/v1/authorize",
		map[string]any{"amount": 1599, "category": "food", "merchant": "doordash", "intent": "lunch"},
		bearer(cred))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["approved"])
	authID := body["authorizationId"].(string)
	require.NotEmpty(t, body["token"])

	// el comercio valida la autorización (la persistencia es async)
	var verdict map[string]any
	requireEventually(t, func() bool {
		_, v := doJSON(t, ts, "POST", "/v1/validate",
			map[string]any{"authorizationId": authID, "merchantId": "doordash", "finalAmount": 1599}, nil)
		verdict = v
		return v["valid"] == true
	}, "merchant validation must eventually succeed")
	require.Equal(t, authID, verdict["authorizationId"])
	require.NotEmpty(t, verdict["chargeToken"], "valid verdicts carry a charge token")

	// el token emitido valida directo para su audiencia
	resp, tokVerdict := doJSON(t, ts, "POST", "/v1/validate/token",
		map[string]any{"token": body["token"], "merchant": "doordash"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, tokVerdict["valid"])
	require.Equal(t, authID, tokVerdict["authorizationId"])

	// confirmar con el monto final (la persistencia del authorize es async)
	var conf map[string]any
	requireEventually(t, func() bool {
		resp, c := doJSON(t, ts, "POST", "/v1/authorizations/"+authID+"/confirm",
			map[string]any{"finalAmount": 1480}, nil)
		conf = c
		return resp.StatusCode == http.StatusOK
	}, "confirm must eventually settle")
	require.Equal(t, true, conf["confirmed"])
	require.NotEmpty(t, conf["chargeId"])
	require.Equal(t, float64(5), conf["platformFee"])
	require.Equal(t, float64(1485), conf["totalCharged"])

	// el estado quedó confirmed
	resp, status := doJSON(t, ts, "GET", "/v1/authorizations/"+authID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "confirmed", status["status"])
	require.Equal(t, float64(1480), status["finalAmount"])

	// una autorización liquidada ya no valida para el comercio
	_, verdict = doJSON(t, ts, "POST", "/v1/validate",
		map[string]any{"authorizationId": authID, "merchantId": "doordash"}, nil)
	require.Equal(t, false, verdict["valid"])
	require.Equal(t, "invalid_status", verdict["reason"])

	// y el token gastado tampoco (revocación async)
	requireEventually(t, func() bool {
		_, v := doJSON(t, ts, "POST", "/v1/validate/token",
			map[string]any{"token": body["token"], "merchant": "doordash"}, nil)
		return v["valid"] == false
	}, "spent token must stop validating")
}

func TestAuthorize_DenialIsPaymentRequired(t *testing.T) {
	ts := newTestServer(t, 100)
	_, cred := provision(t, ts)

	payload := map[string]any{"amount": 15000, "category": "misc"}
	resp, body := doJSON(t, ts, "POST", "/v1/authorize", payload, bearer(cred))
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	require.Equal(t, false, body["approved"])
	require.Equal(t, "transaction_limit", body["reason"])

	// un deny no queda cacheado: el retry idéntico se reevalúa
	resp, _ = doJSON(t, ts, "POST", "/v1/authorize", payload, bearer(cred))
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	require.Empty(t, resp.Header.Get("X-Idempotent-Replay"))
}

func TestAuthorize_TenantVelocityCapSharedAcrossAgents(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, _ := doJSON(t, ts, "POST", "/v1/admin/tenants",
		map[string]any{"id": "tenant-v", "name": "Fresh Co", "plan": "trial"},
		adminHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	creds := make([]string, 2)
	for i := range creds {
		resp, agent := doJSON(t, ts, "POST", "/v1/admin/agents",
			map[string]any{"tenantId": "tenant-v", "name": "Bot", "paymentMethod": "pm_1"},
			adminHeaders())
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		creds[i] = agent["credential"].(string)
	}

	resp, body := doJSON(t, ts, "POST", "/v1/authorize",
		map[string]any{"amount": 500, "category": "misc"}, bearer(creds[0]))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["approved"])

	// el cap es del tenant: el segundo agente lo encuentra consumido
	// (la autorización del primero persiste async)
	requireEventually(t, func() bool {
		resp, body = doJSON(t, ts, "POST", "/v1/authorize",
			map[string]any{"amount": 600, "category": "misc"}, bearer(creds[1]))
		return resp.StatusCode == http.StatusTooManyRequests
	}, "second agent must hit the tenant velocity cap")
	require.Equal(t, "velocity_limit", body["reason"])
}

func TestAuthorize_NeedsApprovalIsAcceptedAndReplayable(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, _ := doJSON(t, ts, "POST", "/v1/admin/tenants",
		map[string]any{"id": "tenant-a", "name": "Acme", "plan": "sandbox", "verified": true},
		adminHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, agent := doJSON(t, ts, "POST", "/v1/admin/agents",
		map[string]any{
			"tenantId": "tenant-a", "name": "Big Spender", "paymentMethod": "pm_1",
			"approval": map[string]any{"requireApprovalOver": 2000},
		},
		adminHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cred := agent["credential"].(string)

	payload := map[string]any{"amount": 3000, "category": "misc"}
	resp, body := doJSON(t, ts, "POST", "/v1/authorize", payload, bearer(cred))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, false, body["approved"])
	require.Equal(t, true, body["needsApproval"])
	require.Empty(t, body["token"], "flagged authorizations carry no token")
	authID := body["authorizationId"].(string)

	// el replay devuelve la misma autorización flagged, no crea otra
	resp, replay := doJSON(t, ts, "POST", "/v1/authorize", payload, bearer(cred))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, true, replay["idempotent"])
	require.Equal(t, authID, replay["authorizationId"])
}

func TestAuthorize_RequiresCredential(t *testing.T) {
	ts := newTestServer(t, 100)
	provision(t, ts)

	resp, _ := doJSON(t, ts, "POST", "/v1/authorize", map[string]any{"amount": 100}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, ts, "POST", "/v1/authorize", map[string]any{"amount": 100}, bearer("ak_test_bogus"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthorize_IdempotentReplay(t *testing.T) {
	ts := newTestServer(t, 100)
	_, cred := provision(t, ts)

	payload := map[string]any{"amount": 2500, "category": "saas", "merchant": "vendor"}
	resp, first := doJSON(t, ts, "POST", "/v1/authorize", payload, bearer(cred))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, first["approved"])

	resp, second := doJSON(t, ts, "POST", "/v1/authorize", payload, bearer(cred))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get("X-Idempotent-Replay"))
	require.Equal(t, true, second["idempotent"])
	require.Equal(t, first["authorizationId"], second["authorizationId"])
	require.Equal(t, first["token"], second["token"])
}

func TestConfirm_IdempotentReplay(t *testing.T) {
	ts := newTestServer(t, 100)
	_, cred := provision(t, ts)

	_, body := doJSON(t, ts, "POST", "/v1/authorize",
		map[string]any{"amount": 1000, "category": "misc"}, bearer(cred))
	authID := body["authorizationId"].(string)

	// la persistencia es async: reintentar hasta que confirme
	var conf map[string]any
	requireEventually(t, func() bool {
		resp, c := doJSON(t, ts, "POST", "/v1/authorizations/"+authID+"/confirm",
			map[string]any{"finalAmount": 990}, nil)
		conf = c
		return resp.StatusCode == http.StatusOK
	}, "confirm must eventually settle")

	resp, replay := doJSON(t, ts, "POST", "/v1/authorizations/"+authID+"/confirm",
		map[string]any{"finalAmount": 990}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, replay["idempotent"])
	require.Equal(t, conf["chargeId"], replay["chargeId"])
}

func TestConfirm_ErrorCodes(t *testing.T) {
	ts := newTestServer(t, 100)
	_, cred := provision(t, ts)

	// inexistente
	resp, body := doJSON(t, ts, "POST", "/v1/authorizations/nope/confirm",
		map[string]any{"finalAmount": 100}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body["code"])

	// monto sobre la tolerancia del 5%
	_, auth := doJSON(t, ts, "POST", "/v1/authorize",
		map[string]any{"amount": 1000, "category": "misc"}, bearer(cred))
	authID := auth["authorizationId"].(string)

	requireEventually(t, func() bool {
		resp, _ := doJSON(t, ts, "GET", "/v1/authorizations/"+authID, nil, nil)
		return resp.StatusCode == http.StatusOK
	}, "authorization must persist")

	resp, body = doJSON(t, ts, "POST", "/v1/authorizations/"+authID+"/confirm",
		map[string]any{"finalAmount": 1051}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "amount_exceeds_authorization", body["code"])
}

func TestAdmin_RequiresKey(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, _ := doJSON(t, ts, "POST", "/v1/admin/tenants", map[string]any{"name": "X"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, ts, "POST", "/v1/admin/tenants", map[string]any{"name": "X"},
		map[string]string{"X-Admin-Key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTenantQuota_RateLimits(t *testing.T) {
	ts := newTestServer(t, 3)
	_, cred := provision(t, ts)

	var last *http.Response
	for i := 0; i < 4; i++ {
		// cuerpos distintos para no caer en el replay idempotente
		last, _ = doJSON(t, ts, "POST", "/v1/authorize",
			map[string]any{"amount": 100 + i, "category": "misc"}, bearer(cred))
	}
	require.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	require.NotEmpty(t, last.Header.Get("Retry-After"))
}

func TestWebhook_Dedupe(t *testing.T) {
	ts := newTestServer(t, 100)

	h := map[string]string{"X-Webhook-Id": "evt-1"}
	resp, body := doJSON(t, ts, "POST", "/v1/webhooks/payments",
		map[string]any{"type": "payment.settled"}, h)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEqual(t, true, body["duplicate"])

	resp, body = doJSON(t, ts, "POST", "/v1/webhooks/payments",
		map[string]any{"type": "payment.settled"}, h)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["duplicate"])
}

func TestStrictJSON_RejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t, 100)
	_, cred := provision(t, ts)

	resp, _ := doJSON(t, ts, "POST", "/v1/authorize",
		map[string]any{"amount": 100, "bogus": "field"}, bearer(cred))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReadyz(t *testing.T) {
	ts := newTestServer(t, 100)
	resp, body := doJSON(t, ts, "GET", "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestSpending_OnlyOwnAgent(t *testing.T) {
	ts := newTestServer(t, 100)
	ownID, ownCred := provision(t, ts)

	resp, _ := doJSON(t, ts, "POST", "/v1/admin/tenants",
		map[string]any{"id": "tenant-2", "name": "Rival", "plan": "sandbox", "verified": true},
		adminHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, other := doJSON(t, ts, "POST", "/v1/admin/agents",
		map[string]any{"tenantId": "tenant-2", "name": "Snoop", "paymentMethod": "pm_2"},
		adminHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// la propia credencial lee su resumen
	resp, body := doJSON(t, ts, "GET", "/v1/agents/"+ownID+"/spending", nil, bearer(ownCred))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, ownID, body["agentId"])

	// la credencial de otro agente no
	resp, _ = doJSON(t, ts, "GET", "/v1/agents/"+ownID+"/spending", nil,
		bearer(other["credential"].(string)))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhook_RequiresEventID(t *testing.T) {
	ts := newTestServer(t, 100)

	resp, body := doJSON(t, ts, "POST", "/v1/webhooks/payments",
		map[string]any{"type": "payment.settled"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "bad_request", body["code"])
}

func TestValidate_RejectsBadPurchases(t *testing.T) {
	ts := newTestServer(t, 100)
	_, cred := provision(t, ts)

	// inexistente
	resp, verdict := doJSON(t, ts, "POST", "/v1/validate",
		map[string]any{"authorizationId": "nope", "merchantId": "shop"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, verdict["valid"])
	require.Equal(t, "not_found", verdict["reason"])

	_, auth := doJSON(t, ts, "POST", "/v1/authorize",
		map[string]any{"amount": 1000, "category": "misc", "merchant": "shop-a"}, bearer(cred))
	authID := auth["authorizationId"].(string)

	requireEventually(t, func() bool {
		_, v := doJSON(t, ts, "POST", "/v1/validate",
			map[string]any{"authorizationId": authID, "merchantId": "shop-a"}, nil)
		verdict = v
		return v["valid"] == true
	}, "authorization must persist and validate")

	// otro comercio no valida una autorización ajena
	_, verdict = doJSON(t, ts, "POST", "/v1/validate",
		map[string]any{"authorizationId": authID, "merchantId": "shop-b"}, nil)
	require.Equal(t, false, verdict["valid"])
	require.Equal(t, "merchant_mismatch", verdict["reason"])

	// monto final sobre la tolerancia del 5%
	_, verdict = doJSON(t, ts, "POST", "/v1/validate",
		map[string]any{"authorizationId": authID, "merchantId": "shop-a", "finalAmount": 1051}, nil)
	require.Equal(t, false, verdict["valid"])
	require.Equal(t, "amount_exceeds_authorization", verdict["reason"])
}

func requireEventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}
