package grant

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return pub, priv
}

func testGrant() *Grant {
	now := time.Now().UTC()
	return &Grant{
		GrantID:   "11111111-2222-3333-4444-555555555555",
		IssuedAt:  now.Format(time.RFC3339),
		ExpiresAt: now.Add(24 * time.Hour).Format(time.RFC3339),
		Issuer:    "operator",
		Scope: Scope{
			ProjectIDs: ProjectScope{IDs: []string{"svc-billing"}},
			Domains:    []string{"payments"},
			Platforms:  []string{"docker"},
		},
		Capabilities: map[string]bool{
			"auto_deploy_staging": true,
			"auto_push":           true,
		},
		Budgets: map[string]int{"max_deploys_per_day": 5},
	}
}

func TestProjectScopeWildcard(t *testing.T) {
	wild := ProjectScope{Wildcard: true}
	if !wild.Contains("anything") {
		t.Fatal("wildcard scope must contain every project")
	}
	scoped := ProjectScope{IDs: []string{"a", "b"}}
	if !scoped.Contains("b") || scoped.Contains("c") {
		t.Fatal("explicit scope must match only listed ids")
	}
}

func TestProjectScopeJSONRoundTrip(t *testing.T) {
	tests := []struct {
		in   ProjectScope
		want string
	}{
		{ProjectScope{Wildcard: true}, `"*"`},
		{ProjectScope{IDs: []string{"x"}}, `["x"]`},
		{ProjectScope{}, `[]`},
	}
	for _, tt := range tests {
		data, err := tt.in.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(data) != tt.want {
			t.Errorf("marshal = %s, want %s", data, tt.want)
		}
		var back ProjectScope
		if err := back.UnmarshalJSON(data); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back.Wildcard != tt.in.Wildcard {
			t.Errorf("wildcard flag lost for %s", data)
		}
	}

	var p ProjectScope
	if err := p.UnmarshalJSON([]byte(`"all"`)); err == nil {
		t.Fatal("non-wildcard string must be rejected")
	}
}

func TestCanonicalPayloadExcludesSignature(t *testing.T) {
	g := testGrant()
	before, err := CanonicalPayload(g)
	if err != nil {
		t.Fatal(err)
	}
	g.Signature = &Signature{Algorithm: SignatureAlgorithm, Value: "abc"}
	after, err := CanonicalPayload(g)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("signature field must not affect the canonical payload")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv := testKeypair(t)
	g := testGrant()
	sig, err := Sign(g, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	g.Signature = sig
	if !VerifySignature(g, []ed25519.PublicKey{pub}) {
		t.Fatal("signature must verify with the signing key's public half")
	}

	otherPub, _ := testKeypair(t)
	if VerifySignature(g, []ed25519.PublicKey{otherPub}) {
		t.Fatal("signature must not verify under an unrelated key")
	}
	// Archived-key case: verification succeeds if any key matches.
	if !VerifySignature(g, []ed25519.PublicKey{otherPub, pub}) {
		t.Fatal("any matching key in the set must suffice")
	}
}

func TestVerifySignatureRejectsTamper(t *testing.T) {
	pub, priv := testKeypair(t)
	g := testGrant()
	sig, err := Sign(g, priv)
	if err != nil {
		t.Fatal(err)
	}
	g.Signature = sig
	g.Capabilities["auto_deploy_prod"] = true
	if VerifySignature(g, []ed25519.PublicKey{pub}) {
		t.Fatal("modified payload must invalidate the signature")
	}
}

func TestVerifySignatureRejectsBadEnvelope(t *testing.T) {
	pub, priv := testKeypair(t)
	g := testGrant()
	sig, _ := Sign(g, priv)

	g.Signature = nil
	if VerifySignature(g, []ed25519.PublicKey{pub}) {
		t.Fatal("unsigned grant must not verify")
	}
	g.Signature = &Signature{Algorithm: "rsa", Value: sig.Value}
	if VerifySignature(g, []ed25519.PublicKey{pub}) {
		t.Fatal("unknown algorithm must not verify")
	}
	g.Signature = &Signature{Algorithm: SignatureAlgorithm, Value: "not base64!!"}
	if VerifySignature(g, []ed25519.PublicKey{pub}) {
		t.Fatal("undecodable signature must not verify")
	}
}

func TestIsExpired(t *testing.T) {
	g := testGrant()
	now := time.Now().UTC()
	if g.IsExpired(now) {
		t.Fatal("fresh grant must not be expired")
	}
	if !g.IsExpired(now.Add(25 * time.Hour)) {
		t.Fatal("grant past expiry must be expired")
	}
	g.ExpiresAt = "yesterday"
	if !g.IsExpired(now) {
		t.Fatal("unparseable expiry counts as expired")
	}
	g.ExpiresAt = ""
	if !g.IsExpired(now) {
		t.Fatal("missing expiry counts as expired")
	}
}

func TestIsBreakGlass(t *testing.T) {
	if IsBreakGlass(nil) {
		t.Fatal("nil grant is not break-glass")
	}
	g := testGrant()
	if IsBreakGlass(g) {
		t.Fatal("default grant is not break-glass")
	}
	g.BreakGlass = true
	if !IsBreakGlass(g) {
		t.Fatal("break-glass flag not reported")
	}
}
