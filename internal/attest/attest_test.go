package attest_test

import (
	"testing"
	"time"

	"github.com/blackroad/shainfinity/internal/attest"
	"github.com/blackroad/shainfinity/internal/digest"
)

func TestAttest_roundTrip(t *testing.T) {
	signer, err := attest.NewSigner([]byte("test-secret"), "http://localhost:8080", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	d, _ := digest.Primary().Sum([]byte("verified content"))
	token, err := signer.Attest("TASK-001", "verified", d)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "TASK-001" {
		t.Errorf("subject: got %q, want TASK-001", claims.Subject)
	}
	if claims.Verdict != "verified" {
		t.Errorf("verdict: got %q, want verified", claims.Verdict)
	}
	if claims.Digest != d.String() {
		t.Errorf("digest: got %q, want %q", claims.Digest, d.String())
	}
}

func TestVerify_rejectsWrongSecret(t *testing.T) {
	a, _ := attest.NewSigner([]byte("secret-a"), "iss", time.Minute)
	b, _ := attest.NewSigner([]byte("secret-b"), "iss", time.Minute)

	d, _ := digest.Primary().Sum([]byte("x"))
	token, err := a.Attest("subject", "verified", d)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("receipt signed with another secret must not verify")
	}
}

func TestVerify_rejectsWrongIssuer(t *testing.T) {
	a, _ := attest.NewSigner([]byte("secret"), "issuer-a", time.Minute)
	b, _ := attest.NewSigner([]byte("secret"), "issuer-b", time.Minute)

	d, _ := digest.Primary().Sum([]byte("x"))
	token, err := a.Attest("subject", "verified", d)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("receipt from another issuer must not verify")
	}
}

func TestNewSigner_requiresSecret(t *testing.T) {
	if _, err := attest.NewSigner(nil, "iss", time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestNewSigner_defaultTTL(t *testing.T) {
	s, err := attest.NewSigner([]byte("secret"), "iss", 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.TTL() != 15*time.Minute {
		t.Errorf("default ttl: got %s, want 15m", s.TTL())
	}
}
