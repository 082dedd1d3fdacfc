package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

func newAuth(id string) *repository.Authorization {
	now := time.Now().UTC()
	return &repository.Authorization{
		ID: id, AgentID: "agent-1", TenantID: "tenant-1",
		AmountCents: 1000, Category: "food", Merchant: "vendor",
		Status:    repository.StatusAuthorized,
		CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute), UpdatedAt: now,
	}
}

func TestTransitionStatus_CAS(t *testing.T) {
	st := New()
	ctx := context.Background()
	if err := st.PutAuthorization(ctx, newAuth("a1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// from incorrecto falla sin tocar nada
	err := st.TransitionStatus(ctx, "a1", repository.StatusFlagged, repository.StatusAuthorized, 0, "")
	if !repository.IsInvalidStatus(err) {
		t.Fatalf("expected invalid status, got %v", err)
	}

	if err := st.TransitionStatus(ctx, "a1", repository.StatusAuthorized, repository.StatusConfirmed, 950, "ch_1"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	auth, _ := st.GetAuthorization(ctx, "a1")
	if auth.Status != repository.StatusConfirmed || auth.FinalAmountCents != 950 || auth.ChargeID != "ch_1" {
		t.Fatalf("settled: %+v", auth)
	}

	// segunda transición desde authorized pierde
	err = st.TransitionStatus(ctx, "a1", repository.StatusAuthorized, repository.StatusExpired, 0, "")
	if !repository.IsInvalidStatus(err) {
		t.Fatalf("expected invalid status, got %v", err)
	}

	if err := st.TransitionStatus(ctx, "missing", repository.StatusAuthorized, repository.StatusExpired, 0, ""); !repository.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// Dos confirmaciones concurrentes: exactamente una gana el CAS.
func TestTransitionStatus_ExactlyOneWinner(t *testing.T) {
	st := New()
	ctx := context.Background()
	if err := st.PutAuthorization(ctx, newAuth("a1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st.TransitionStatus(ctx, "a1", repository.StatusAuthorized, repository.StatusConfirmed, 900, "ch_x") == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
}

func TestPutAuthorization_RefusesOverwritingTerminal(t *testing.T) {
	st := New()
	ctx := context.Background()
	a := newAuth("a1")
	a.Status = repository.StatusConfirmed
	if err := st.PutAuthorization(ctx, a); err != nil {
		t.Fatalf("put: %v", err)
	}

	stale := newAuth("a1") // un reintento viejo con estado no terminal
	if err := st.PutAuthorization(ctx, stale); err != nil {
		t.Fatalf("stale put must be ignored, not fail: %v", err)
	}
	auth, _ := st.GetAuthorization(ctx, "a1")
	if auth.Status != repository.StatusConfirmed {
		t.Fatalf("terminal status was overwritten: %s", auth.Status)
	}
}

func TestAppendLedger_ExactlyOncePerAuthorization(t *testing.T) {
	st := New()
	ctx := context.Background()
	e := &repository.LedgerEntry{
		AgentID: "agent-1", TenantID: "tenant-1", AuthorizationID: "a1",
		AmountCents: 900, Category: "food", ChargeID: "ch_1",
		CreatedAt: time.Now().UTC(),
	}
	if err := st.AppendLedger(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ID == "" {
		t.Fatal("append must assign an id")
	}

	dup := *e
	dup.ID = ""
	if err := st.AppendLedger(ctx, &dup); !repository.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate authorization, got %v", err)
	}
}

func TestSpendSnapshotFor(t *testing.T) {
	st := New()
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []repository.LedgerEntry{
		{AuthorizationID: "a1", AgentID: "agent-1", AmountCents: 500, Category: "food", CreatedAt: now.Add(-10 * time.Minute)},
		{AuthorizationID: "a2", AgentID: "agent-1", AmountCents: 300, Category: "food", CreatedAt: now.Add(-2 * time.Hour)},
		{AuthorizationID: "a3", AgentID: "agent-1", AmountCents: 200, Category: "saas", CreatedAt: now.Add(-30 * time.Minute)},
		{AuthorizationID: "a4", AgentID: "other", AmountCents: 9999, Category: "food", CreatedAt: now},
	}
	for i := range entries {
		if err := st.AppendLedger(ctx, &entries[i]); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	snap, err := st.SpendSnapshotFor(ctx, "agent-1", now)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// a2 puede caer fuera del día UTC según la hora; lo seguro es el mínimo
	if snap.SpentToday < 700 {
		t.Fatalf("spent today: %d", snap.SpentToday)
	}
	if snap.SpentMonthByCategory["saas"] != 200 {
		t.Fatalf("month by category: %+v", snap.SpentMonthByCategory)
	}
	if snap.TxnsLastHour != 2 {
		t.Fatalf("txns last hour: %d", snap.TxnsLastHour)
	}
}

func TestAddSpentToday_DayRollover(t *testing.T) {
	st := New()
	ctx := context.Background()
	if err := st.CreateAgent(ctx, &repository.Agent{ID: "agent-1", TenantID: "t1", CredentialHash: "h1"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := st.AddSpentToday(ctx, "agent-1", "2026-03-01", 500); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := st.AddSpentToday(ctx, "agent-1", "2026-03-01", 300); err != nil {
		t.Fatalf("add: %v", err)
	}
	a, _ := st.GetAgent(ctx, "agent-1")
	if a.SpentToday != 800 || a.SpentDay != "2026-03-01" {
		t.Fatalf("counter: %d day=%s", a.SpentToday, a.SpentDay)
	}

	// día nuevo: el contador arranca de cero
	if err := st.AddSpentToday(ctx, "agent-1", "2026-03-02", 100); err != nil {
		t.Fatalf("add: %v", err)
	}
	a, _ = st.GetAgent(ctx, "agent-1")
	if a.SpentToday != 100 || a.SpentDay != "2026-03-02" {
		t.Fatalf("rollover: %d day=%s", a.SpentToday, a.SpentDay)
	}
}

func TestAgentByCredentialHash(t *testing.T) {
	st := New()
	ctx := context.Background()
	if err := st.CreateTenant(ctx, &repository.Tenant{ID: "t1", Name: "Acme"}); err != nil {
		t.Fatalf("tenant: %v", err)
	}
	if err := st.CreateAgent(ctx, &repository.Agent{ID: "agent-1", TenantID: "t1", CredentialHash: "h1"}); err != nil {
		t.Fatalf("agent: %v", err)
	}

	// hash duplicado choca
	if err := st.CreateAgent(ctx, &repository.Agent{ID: "agent-2", TenantID: "t1", CredentialHash: "h1"}); !repository.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	a, ten, err := st.AgentByCredentialHash(ctx, "h1")
	if err != nil || a.ID != "agent-1" || ten.ID != "t1" {
		t.Fatalf("lookup: %v %v %v", a, ten, err)
	}

	if err := st.RevokeAgent(ctx, "agent-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, _, err := st.AgentByCredentialHash(ctx, "h1"); !repository.IsNotFound(err) {
		t.Fatalf("revoked agent must not resolve, got %v", err)
	}
}

func TestRevokeToken_TombstoneBeforeInsert(t *testing.T) {
	st := New()
	ctx := context.Background()

	// revocación antes de que el insert en background llegue
	if _, err := st.RevokeToken(ctx, "jti-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := st.IsTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("tombstone must read as revoked: %v %v", revoked, err)
	}

	// el insert tardío choca con el tombstone
	err = st.InsertToken(ctx, &repository.TokenRecord{JTI: "jti-1"})
	if !repository.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPutIdempotency_FirstWriterWins(t *testing.T) {
	st := New()
	ctx := context.Background()
	now := time.Now().UTC()

	first := &repository.IdempotencyRecord{Fingerprint: "fp", StatusCode: 200, Response: []byte(`{"a":1}`), CreatedAt: now}
	second := &repository.IdempotencyRecord{Fingerprint: "fp", StatusCode: 200, Response: []byte(`{"a":2}`), CreatedAt: now}
	if err := st.PutIdempotency(ctx, first); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.PutIdempotency(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	rec, err := st.GetIdempotency(ctx, "fp")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(rec.Response) != `{"a":1}` {
		t.Fatalf("first writer must win: %s", rec.Response)
	}
}
