// Package grant implements signed, time-bounded capability grants: the
// model and canonical signing form, a per-grant file store with an
// append-only revocation ledger, and the ordered verifier.
package grant

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// SignatureAlgorithm is the only signature algorithm grants carry.
const SignatureAlgorithm = "ed25519"

// Signature is the detached signature over the canonical grant payload.
type Signature struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// ProjectScope is either a wildcard ("*") or an explicit project id list.
type ProjectScope struct {
	Wildcard bool
	IDs      []string
}

// Contains reports whether a project id falls inside the scope.
func (p ProjectScope) Contains(projectID string) bool {
	if p.Wildcard {
		return true
	}
	for _, id := range p.IDs {
		if id == projectID {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the wildcard scope as the string "*", otherwise a
// JSON array of ids.
func (p ProjectScope) MarshalJSON() ([]byte, error) {
	if p.Wildcard {
		return json.Marshal("*")
	}
	if p.IDs == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(p.IDs)
}

// UnmarshalJSON accepts "*" or an array of project ids.
func (p *ProjectScope) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("grant: project_ids string must be \"*\", got %q", s)
		}
		*p = ProjectScope{Wildcard: true}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("grant: project_ids must be \"*\" or a string array: %w", err)
	}
	*p = ProjectScope{IDs: ids}
	return nil
}

// Scope bounds a grant to projects, domains, and platforms.
type Scope struct {
	ProjectIDs ProjectScope `json:"project_ids"`
	Domains    []string     `json:"domains"`
	Platforms  []string     `json:"platforms"`
}

// Grant is an immutable signed capability document. Revocation is
// recorded out of band in the revocation ledger, never by editing the
// grant file.
type Grant struct {
	GrantID       string          `json:"grant_id"`
	IssuedAt      string          `json:"issued_at"`
	ExpiresAt     string          `json:"expires_at"`
	Issuer        string          `json:"issuer"`
	Scope         Scope           `json:"scope"`
	Capabilities  map[string]bool `json:"capabilities"`
	RequiredGates map[string]any  `json:"required_gates"`
	Budgets       map[string]int  `json:"budgets"`
	Telemetry     map[string]any  `json:"telemetry"`
	BreakGlass    bool            `json:"break_glass"`
	Signature     *Signature      `json:"signature,omitempty"`
}

// Capability reports whether the named capability flag is explicitly true.
func (g *Grant) Capability(name string) bool {
	if g == nil || g.Capabilities == nil {
		return false
	}
	return g.Capabilities[name]
}

// Expiry returns the parsed expiry timestamp, or an error for a missing
// or malformed value.
func (g *Grant) Expiry() (time.Time, error) {
	if g.ExpiresAt == "" {
		return time.Time{}, fmt.Errorf("grant: expires_at is empty")
	}
	t, err := time.Parse(time.RFC3339, g.ExpiresAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("grant: parse expires_at: %w", err)
	}
	return t, nil
}

// IsExpired reports whether the grant is expired as of now. A grant with
// an unparseable expiry counts as expired.
func (g *Grant) IsExpired(now time.Time) bool {
	expiry, err := g.Expiry()
	if err != nil {
		return true
	}
	return !now.Before(expiry)
}

// IsBreakGlass reports whether the (possibly nil) grant is break-glass.
func IsBreakGlass(g *Grant) bool {
	return g != nil && g.BreakGlass
}

// CanonicalPayload returns the byte form the signature covers: every
// field except signature, keys sorted, no incidental whitespace. The
// payload round-trips through json.Number so numeric literals re-encode
// byte-identically.
func CanonicalPayload(g *Grant) ([]byte, error) {
	unsigned := *g
	unsigned.Signature = nil
	raw, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("grant: marshal payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("grant: decode payload: %w", err)
	}
	delete(payload, "signature")

	// json.Marshal sorts map keys, giving the stable canonical order.
	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("grant: canonicalize payload: %w", err)
	}
	return canonical, nil
}

// Sign computes the grant's signature object with the given private key.
func Sign(g *Grant, key ed25519.PrivateKey) (*Signature, error) {
	canonical, err := CanonicalPayload(g)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(key, canonical)
	return &Signature{
		Algorithm: SignatureAlgorithm,
		Value:     base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// VerifySignature checks the grant signature against the available
// public keys. Any single matching key (active or archived) suffices.
func VerifySignature(g *Grant, publicKeys []ed25519.PublicKey) bool {
	if g.Signature == nil || g.Signature.Algorithm != SignatureAlgorithm {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(g.Signature.Value)
	if err != nil {
		return false
	}
	canonical, err := CanonicalPayload(g)
	if err != nil {
		return false
	}
	for _, key := range publicKeys {
		if ed25519.Verify(key, canonical, sig) {
			return true
		}
	}
	return false
}
