package directory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/store/memory"
)

func seedAgent(t *testing.T, st *memory.Store, id, cred string) (*repository.Agent, *repository.Tenant) {
	t.Helper()
	ctx := context.Background()
	tenant := &repository.Tenant{
		ID: "tenant-" + id, Name: "Tenant " + id, Plan: "sandbox",
		RiskLevel: repository.RiskNew, TransactionCap: 10000, DailyCap: 50000,
		APIQuota: 60, VelocityCap: 25,
	}
	if err := st.CreateTenant(ctx, tenant); err != nil && !repository.IsConflict(err) {
		t.Fatalf("create tenant: %v", err)
	}
	agent := &repository.Agent{
		ID: id, TenantID: tenant.ID, Name: "Agent " + id,
		CredentialHash:   HashCredential(cred),
		DailyLimit:       20000,
		TransactionLimit: 10000,
		CategoryLimits:   map[string]int64{"food": 5000},
	}
	if err := st.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return agent, tenant
}

func TestLookup_HitAndTouch(t *testing.T) {
	st := memory.New()
	seedAgent(t, st, "agent-1", "ak_test_abc")

	var touched string
	d, err := New(context.Background(), st, func(agentID string, at time.Time) { touched = agentID })
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if d.Size() != 1 {
		t.Fatalf("expected 1 entry, got %d", d.Size())
	}

	agent, tenant, err := d.Lookup(context.Background(), "ak_test_abc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if agent.ID != "agent-1" || tenant.ID != "tenant-agent-1" {
		t.Fatalf("wrong entry: %s / %s", agent.ID, tenant.ID)
	}
	if touched != "agent-1" {
		t.Fatalf("onUse not invoked, got %q", touched)
	}
}

func TestLookup_MissTriggersRebuild(t *testing.T) {
	st := memory.New()
	d, err := New(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// credencial creada después del boot: primer lookup hace rebuild y la encuentra
	seedAgent(t, st, "agent-2", "ak_test_late")
	agent, _, err := d.Lookup(context.Background(), "ak_test_late")
	if err != nil {
		t.Fatalf("lookup after rebuild: %v", err)
	}
	if agent.ID != "agent-2" {
		t.Fatalf("wrong agent: %s", agent.ID)
	}

	// credencial inexistente: NotFound duro tras el rebuild
	if _, _, err := d.Lookup(context.Background(), "ak_test_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvict_RemovesCredential(t *testing.T) {
	st := memory.New()
	agent, _ := seedAgent(t, st, "agent-3", "ak_test_gone")
	d, err := New(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// revocar en el store también, para que el rebuild del miss no lo reviva
	if err := st.RevokeAgent(context.Background(), agent.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	d.Evict(agent.CredentialHash)

	if _, _, err := d.Lookup(context.Background(), "ak_test_gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after evict, got %v", err)
	}
}

func TestLookup_ReturnsCopies(t *testing.T) {
	st := memory.New()
	seedAgent(t, st, "agent-4", "ak_test_copy")
	d, err := New(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	a1, _, err := d.Lookup(context.Background(), "ak_test_copy")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	a1.CategoryLimits["food"] = 1 // mutación del caller no debe tocar el cache

	a2, _, err := d.Lookup(context.Background(), "ak_test_copy")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if a2.CategoryLimits["food"] != 5000 {
		t.Fatalf("cache entry was mutated through a lookup result: %d", a2.CategoryLimits["food"])
	}
}

func TestNewCredential_Format(t *testing.T) {
	test := NewCredential(false)
	live := NewCredential(true)

	if !strings.HasPrefix(test, "ak_test_") || len(test) != len("ak_test_")+48 {
		t.Fatalf("bad test credential: %q", test)
	}
	if !strings.HasPrefix(live, "ak_live_") || len(live) != len("ak_live_")+48 {
		t.Fatalf("bad live credential: %q", live)
	}
	if NewCredential(false) == NewCredential(false) {
		t.Fatal("credentials must be unique")
	}
}
