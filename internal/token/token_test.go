package token

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

func testKeys() StaticKeyring {
	return StaticKeyring{KID: "k1", Secret: []byte("test-secret-0123456789")}
}

func newTestPair(rev RevocationChecker) (*Issuer, *Validator) {
	keys := testKeys()
	iss := NewIssuer("controltower.test", keys, 10*time.Minute, 30*time.Second)
	val := NewValidator("controltower.test", keys, 30*time.Second, rev)
	return iss, val
}

func TestIssueAndValidate_Roundtrip(t *testing.T) {
	iss, val := newTestPair(&fakeRevocations{})

	issued, err := iss.Issue("agent-1", "cafe0123", Scope{
		MaxAmountCents:  1599,
		Category:        "food",
		Merchant:        "doordash",
		Intent:          "lunch",
		AuthorizationID: "auth-1",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Record.JTI == "" || issued.Record.Merchant != "doordash" {
		t.Fatalf("bad record: %+v", issued.Record)
	}

	claims, err := val.Validate(context.Background(), issued.Token, "doordash")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "agent-1" {
		t.Fatalf("subject: %s", claims.Subject)
	}
	if claims.Purpose != PurposeCharge {
		t.Fatalf("purpose: %s", claims.Purpose)
	}
	if claims.Scope.MaxAmountCents != 1599 || claims.Scope.AuthorizationID != "auth-1" {
		t.Fatalf("scope: %+v", claims.Scope)
	}
	// el hash de credencial viaja firmado; la credencial misma jamás
	if claims.CredentialHash != "cafe0123" {
		t.Fatalf("credential hash: %q", claims.CredentialHash)
	}
}

func TestValidate_AudienceScoping(t *testing.T) {
	iss, val := newTestPair(&fakeRevocations{})
	ctx := context.Background()

	scoped, err := iss.Issue("agent-1", "cafe0123", Scope{MaxAmountCents: 100, Merchant: "merchant-x", AuthorizationID: "a1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := val.Validate(ctx, scoped.Token, "merchant-x"); err != nil {
		t.Fatalf("same merchant should validate: %v", err)
	}
	if _, err := val.Validate(ctx, scoped.Token, "merchant-y"); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("other merchant should mismatch, got %v", err)
	}
	// audiencia vacía del caller solo acepta comodín
	if _, err := val.Validate(ctx, scoped.Token, ""); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("empty caller audience on scoped token should mismatch, got %v", err)
	}

	wildcard, err := iss.Issue("agent-1", "cafe0123", Scope{MaxAmountCents: 100, AuthorizationID: "a2"})
	if err != nil {
		t.Fatalf("issue wildcard: %v", err)
	}
	if wildcard.Record.Merchant != AudienceAny {
		t.Fatalf("empty merchant should normalize to %q, got %q", AudienceAny, wildcard.Record.Merchant)
	}
	if _, err := val.Validate(ctx, wildcard.Token, "anyone"); err != nil {
		t.Fatalf("wildcard should accept any audience: %v", err)
	}
	if _, err := val.Validate(ctx, wildcard.Token, ""); err != nil {
		t.Fatalf("wildcard should accept empty audience: %v", err)
	}
}

func TestValidate_Expiry(t *testing.T) {
	iss, val := newTestPair(&fakeRevocations{})
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return base }

	issued, err := iss.Issue("agent-1", "cafe0123", Scope{MaxAmountCents: 100, AuthorizationID: "a1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// dentro del skew todavía vale
	val.now = func() time.Time { return base.Add(10*time.Minute + 20*time.Second) }
	if _, err := val.Validate(context.Background(), issued.Token, ""); err != nil {
		t.Fatalf("within skew should validate: %v", err)
	}

	val.now = func() time.Time { return base.Add(11 * time.Minute) }
	if _, err := val.Validate(context.Background(), issued.Token, ""); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestValidate_Revoked(t *testing.T) {
	rev := &fakeRevocations{revoked: map[string]bool{}}
	iss, val := newTestPair(rev)

	issued, err := iss.Issue("agent-1", "cafe0123", Scope{MaxAmountCents: 100, AuthorizationID: "a1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rev.revoked[issued.Record.JTI] = true

	if _, err := val.Validate(context.Background(), issued.Token, ""); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}
}

func TestValidate_WrongKeyAndIssuer(t *testing.T) {
	iss, _ := newTestPair(nil)
	issued, err := iss.Issue("agent-1", "cafe0123", Scope{MaxAmountCents: 100, AuthorizationID: "a1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	otherKeys := StaticKeyring{KID: "k1", Secret: []byte("a-different-secret")}
	val := NewValidator("controltower.test", otherKeys, 30*time.Second, nil)
	if _, err := val.Validate(context.Background(), issued.Token, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	val = NewValidator("someone-else", testKeys(), 30*time.Second, nil)
	if _, err := val.Validate(context.Background(), issued.Token, ""); !errors.Is(err, ErrIssuerMismatch) {
		t.Fatalf("expected issuer mismatch, got %v", err)
	}

	val = NewValidator("controltower.test", testKeys(), 30*time.Second, nil)
	if _, err := val.Validate(context.Background(), "not-a-jwt", ""); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestIssueValidation_RequiresConcreteMerchant(t *testing.T) {
	iss, _ := newTestPair(nil)

	if _, err := iss.IssueValidation("agent-1", "cafe0123", Scope{AuthorizationID: "a1"}, time.Minute); err == nil {
		t.Fatal("empty merchant should fail")
	}
	if _, err := iss.IssueValidation("agent-1", "cafe0123", Scope{Merchant: AudienceAny, AuthorizationID: "a1"}, time.Minute); err == nil {
		t.Fatal("wildcard merchant should fail")
	}

	issued, err := iss.IssueValidation("agent-1", "cafe0123", Scope{Merchant: "shop", AuthorizationID: "a1"}, time.Minute)
	if err != nil {
		t.Fatalf("issue validation: %v", err)
	}
	val := NewValidator("controltower.test", testKeys(), 30*time.Second, nil)
	claims, err := val.Validate(context.Background(), issued.Token, "shop")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Purpose != PurposeValidation {
		t.Fatalf("purpose: %s", claims.Purpose)
	}
}
