package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/controltower/internal/config"
	"github.com/dropDatabas3/controltower/internal/directory"
	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/notify"
	"github.com/dropDatabas3/controltower/internal/payments"
	"github.com/dropDatabas3/controltower/internal/store/memory"
	"github.com/dropDatabas3/controltower/internal/token"
	"github.com/dropDatabas3/controltower/internal/worker"
)

const testCredential = "ak_test_0123456789abcdef"

type fixture struct {
	svc    *Service
	store  *memory.Store
	agent  *repository.Agent
	tenant *repository.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	tenant := &repository.Tenant{
		ID: "tenant-1", Name: "Acme", Plan: "sandbox",
		RiskLevel:       repository.RiskVerified,
		TransactionCap:  100000,
		DailyCap:        500000,
		APIQuota:        60,
		VelocityCap:     25,
		OverageFeeCents: 5,
	}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	agent := &repository.Agent{
		ID: "agent-1", TenantID: tenant.ID, Name: "Lunch Bot",
		CredentialHash:   directory.HashCredential(testCredential),
		DailyLimit:       20000,
		TransactionLimit: 10000,
		CategoryLimits:   map[string]int64{"food": 5000},
		VelocityLimit:    10,
		PaymentMethod:    "pm_test_1",
		Approval: repository.ApprovalSettings{
			AutoApproveUnder:    1000,
			RequireApprovalOver: 5000,
		},
	}
	if err := st.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}

	dir, err := directory.New(ctx, st, nil)
	if err != nil {
		t.Fatalf("directory: %v", err)
	}

	cfg := &config.Config{}
	cfg.Token.SigningSecret = "test-secret"
	cfg.Token.Issuer = "controltower.test"

	keys := token.StaticKeyring{KID: "k1", Secret: []byte(cfg.Token.SigningSecret)}
	issuer := token.NewIssuer(cfg.Token.Issuer, keys, cfg.TokenTTL(), cfg.TokenClockSkew())
	validator := token.NewValidator(cfg.Token.Issuer, keys, cfg.TokenClockSkew(), st)

	pool := worker.New(1, 64, 1)
	t.Cleanup(pool.Close)

	svc := New(cfg, st, dir, issuer, validator, payments.NewDemoExecutor(), pool, notify.New(nil, ""))
	return &fixture{svc: svc, store: st, agent: agent, tenant: tenant}
}

// waitAuth espera a que la persistencia asíncrona asiente la autorización.
func waitAuth(t *testing.T, st *memory.Store, id string) *repository.Authorization {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if auth, err := st.GetAuthorization(context.Background(), id); err == nil {
			return auth
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("authorization %s was never persisted", id)
	return nil
}

func TestAuthorize_Approved(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{
		AmountCents: 1599, Category: "food", Merchant: "doordash", Intent: "lunch",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !res.Approved || res.NeedsApproval {
		t.Fatalf("expected approved, got %+v", res)
	}
	if res.Token == "" || res.AuthorizationID == "" {
		t.Fatal("approved result must carry token and id")
	}
	if res.RemainingDaily != 20000-1599 {
		t.Fatalf("remaining daily: %d", res.RemainingDaily)
	}

	// el token emitido valida para el comercio del scope
	claims, err := f.svc.validator.Validate(context.Background(), res.Token, "doordash")
	if err != nil {
		t.Fatalf("issued token must validate: %v", err)
	}
	if claims.Scope.MaxAmountCents != 1599 || claims.Scope.AuthorizationID != res.AuthorizationID {
		t.Fatalf("bad scope: %+v", claims.Scope)
	}

	auth := waitAuth(t, f.store, res.AuthorizationID)
	if auth.Status != repository.StatusAuthorized {
		t.Fatalf("persisted status: %s", auth.Status)
	}
}

func TestAuthorize_InvalidCredential(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Authorize(context.Background(), "ak_test_unknown", AuthorizeRequest{AmountCents: 100})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestAuthorize_DeniedByPolicy(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{
		AmountCents: 15000, Category: "misc",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if res.Approved {
		t.Fatal("expected denial")
	}
	if res.Reason != "transaction_limit" {
		t.Fatalf("reason: %s", res.Reason)
	}
	if res.Token != "" || res.AuthorizationID != "" {
		t.Fatal("denials carry no token and no id")
	}
}

func TestAuthorize_TenantCapsClampAgentLimits(t *testing.T) {
	f := newFixture(t)
	// el plan del tenant es más chico que el límite del agente
	f.tenant.TransactionCap = 5000
	if err := f.store.UpdateTenant(context.Background(), f.tenant); err != nil {
		t.Fatalf("update tenant: %v", err)
	}
	if err := f.svc.Directory().Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	res, err := f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{
		AmountCents: 6000, Category: "misc",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if res.Approved || res.Reason != "transaction_limit" {
		t.Fatalf("tenant cap should deny: %+v", res)
	}
}

func TestAuthorize_NewTenantVelocityCap(t *testing.T) {
	f := newFixture(t)
	f.tenant.RiskLevel = repository.RiskNew
	f.tenant.VelocityCap = 1
	if err := f.store.UpdateTenant(context.Background(), f.tenant); err != nil {
		t.Fatalf("update tenant: %v", err)
	}
	if err := f.svc.Directory().Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	res, err := f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{AmountCents: 500, Category: "misc"})
	if err != nil || !res.Approved {
		t.Fatalf("first authorization should pass: %+v err=%v", res, err)
	}
	waitAuth(t, f.store, res.AuthorizationID)

	res, err = f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{AmountCents: 500, Category: "misc"})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if res.Approved || res.Reason != "velocity_limit" {
		t.Fatalf("tenant cap should deny the second authorization: %+v", res)
	}
}

func TestAuthorize_FlaggedForApproval(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{
		AmountCents: 6000, Category: "misc", Merchant: "vendor",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if res.Approved || !res.NeedsApproval {
		t.Fatalf("expected flagged, got %+v", res)
	}
	if res.Token != "" {
		t.Fatal("flagged authorizations must not carry a token")
	}

	auth := waitAuth(t, f.store, res.AuthorizationID)
	if auth.Status != repository.StatusFlagged {
		t.Fatalf("persisted status: %s", auth.Status)
	}

	// la aprobación manual emite el token recién ahora
	approved, err := f.svc.Approve(context.Background(), res.AuthorizationID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.Approved || approved.Token == "" {
		t.Fatalf("approve result: %+v", approved)
	}
	auth, err = f.store.GetAuthorization(context.Background(), res.AuthorizationID)
	if err != nil || auth.Status != repository.StatusAuthorized {
		t.Fatalf("approved status: %v %v", auth, err)
	}

	// aprobar dos veces no vale
	if _, err := f.svc.Approve(context.Background(), res.AuthorizationID); !repository.IsInvalidStatus(err) {
		t.Fatalf("second approve should fail with invalid status, got %v", err)
	}
}

func authorizeAndWait(t *testing.T, f *fixture, amount int64) *AuthorizeResult {
	t.Helper()
	res, err := f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{
		AmountCents: amount, Category: "misc", Merchant: "vendor",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !res.Approved {
		t.Fatalf("not approved: %+v", res)
	}
	waitAuth(t, f.store, res.AuthorizationID)
	return res
}

func TestConfirm_HappyPath(t *testing.T) {
	f := newFixture(t)
	res := authorizeAndWait(t, f, 1000)

	conf, err := f.svc.Confirm(context.Background(), res.AuthorizationID, 950)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if conf.Replayed || conf.ChargeID == "" {
		t.Fatalf("confirmation: %+v", conf)
	}
	if conf.FeeCents != f.tenant.OverageFeeCents {
		t.Fatalf("fee: %d", conf.FeeCents)
	}

	auth, _ := f.store.GetAuthorization(context.Background(), res.AuthorizationID)
	if auth.Status != repository.StatusConfirmed || auth.FinalAmountCents != 950 {
		t.Fatalf("settled auth: %+v", auth)
	}

	// asiento en el ledger y contador diario
	entries, err := f.store.LedgerByAgent(context.Background(), f.agent.ID, time.Now().Add(-time.Hour))
	if err != nil || len(entries) != 1 {
		t.Fatalf("ledger: %v entries=%d", err, len(entries))
	}
	if entries[0].AuthorizationID != res.AuthorizationID || entries[0].AmountCents != 950 {
		t.Fatalf("ledger entry: %+v", entries[0])
	}
	agent, _ := f.store.GetAgent(context.Background(), f.agent.ID)
	if agent.SpentToday != 950 {
		t.Fatalf("spent today: %d", agent.SpentToday)
	}
}

func TestConfirm_ToleranceBoundary(t *testing.T) {
	f := newFixture(t)

	// exactamente 5% por encima pasa
	res := authorizeAndWait(t, f, 1000)
	if _, err := f.svc.Confirm(context.Background(), res.AuthorizationID, 1050); err != nil {
		t.Fatalf("final at exactly 105%% should settle: %v", err)
	}

	// un centavo más, no
	res = authorizeAndWait(t, f, 1000)
	_, err := f.svc.Confirm(context.Background(), res.AuthorizationID, 1051)
	var ce *ConfirmError
	if !errors.As(err, &ce) || ce.Code != CodeAmountExceeds {
		t.Fatalf("expected %s, got %v", CodeAmountExceeds, err)
	}
}

func TestConfirm_Replay(t *testing.T) {
	f := newFixture(t)
	res := authorizeAndWait(t, f, 1000)

	first, err := f.svc.Confirm(context.Background(), res.AuthorizationID, 900)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	second, err := f.svc.Confirm(context.Background(), res.AuthorizationID, 900)
	if err != nil {
		t.Fatalf("replay confirm: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second confirm must be a replay")
	}
	if second.ChargeID != first.ChargeID || second.FinalAmountCents != 900 {
		t.Fatalf("replay must echo the settled charge: %+v", second)
	}
}

func TestConfirm_Expired(t *testing.T) {
	f := newFixture(t)
	res := authorizeAndWait(t, f, 1000)

	f.svc.now = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	_, err := f.svc.Confirm(context.Background(), res.AuthorizationID, 900)
	var ce *ConfirmError
	if !errors.As(err, &ce) || ce.Code != CodeExpired {
		t.Fatalf("expected %s, got %v", CodeExpired, err)
	}

	// la expiración perezosa quedó materializada
	auth, _ := f.store.GetAuthorization(context.Background(), res.AuthorizationID)
	if auth.Status != repository.StatusExpired {
		t.Fatalf("status after lazy expire: %s", auth.Status)
	}
}

func TestConfirm_NoPaymentMethod(t *testing.T) {
	f := newFixture(t)
	res := authorizeAndWait(t, f, 1000)

	f.agent.PaymentMethod = ""
	if err := f.store.UpdateAgent(context.Background(), f.agent); err != nil {
		t.Fatalf("update agent: %v", err)
	}

	_, err := f.svc.Confirm(context.Background(), res.AuthorizationID, 900)
	var ce *ConfirmError
	if !errors.As(err, &ce) || ce.Code != CodeNoPaymentMethod {
		t.Fatalf("expected %s, got %v", CodeNoPaymentMethod, err)
	}
}

func TestConfirm_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Confirm(context.Background(), "nope", 100)
	var ce *ConfirmError
	if !errors.As(err, &ce) || ce.Code != CodeNotFound {
		t.Fatalf("expected %s, got %v", CodeNotFound, err)
	}
}

func TestRevoke_Lifecycle(t *testing.T) {
	f := newFixture(t)
	res := authorizeAndWait(t, f, 1000)

	if err := f.svc.Revoke(context.Background(), res.AuthorizationID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	auth, _ := f.store.GetAuthorization(context.Background(), res.AuthorizationID)
	if auth.Status != repository.StatusRevoked {
		t.Fatalf("status: %s", auth.Status)
	}

	// el token de la autorización revocada deja de validar
	if _, err := f.svc.validator.Validate(context.Background(), res.Token, "vendor"); !errors.Is(err, token.ErrRevoked) {
		t.Fatalf("token of revoked authorization must be revoked, got %v", err)
	}

	// confirmar una revocada falla por estado
	_, err := f.svc.Confirm(context.Background(), res.AuthorizationID, 900)
	var ce *ConfirmError
	if !errors.As(err, &ce) || ce.Code != CodeInvalidStatus {
		t.Fatalf("expected %s, got %v", CodeInvalidStatus, err)
	}
}

func TestStatus_LazyExpiration(t *testing.T) {
	f := newFixture(t)
	res := authorizeAndWait(t, f, 1000)

	f.svc.now = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	auth, err := f.svc.Status(context.Background(), res.AuthorizationID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if auth.Status != repository.StatusExpired {
		t.Fatalf("expected expired, got %s", auth.Status)
	}
}

func TestEmergencyStop_RefreshesDirectory(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.SetEmergencyStop(context.Background(), f.agent.ID, true); err != nil {
		t.Fatalf("set emergency stop: %v", err)
	}

	res, err := f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{AmountCents: 100, Category: "misc"})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if res.Approved || res.Reason != "emergency_stop" {
		t.Fatalf("stopped agent must be denied: %+v", res)
	}

	if err := f.svc.SetEmergencyStop(context.Background(), f.agent.ID, false); err != nil {
		t.Fatalf("clear emergency stop: %v", err)
	}
	res, err = f.svc.Authorize(context.Background(), testCredential, AuthorizeRequest{AmountCents: 100, Category: "misc"})
	if err != nil || !res.Approved {
		t.Fatalf("cleared agent must authorize again: %+v err=%v", res, err)
	}
}
