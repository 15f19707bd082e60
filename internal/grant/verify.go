package grant

import (
	"strings"
	"time"

	"github.com/ppiankov/autosd/internal/keys"
)

// Verification reason codes, in check order. Verification short-circuits
// on the first failure.
const (
	ReasonOK                    = "ok"
	ReasonGrantNotFound         = "grant_not_found"
	ReasonRevocationUnreadable  = "revocation_ledger_unreadable"
	ReasonGrantRevoked          = "grant_revoked"
	ReasonInvalidExpiry         = "invalid_expiry"
	ReasonGrantExpired          = "grant_expired"
	ReasonPublicKeyMissing      = "public_key_missing"
	ReasonInvalidSignature      = "invalid_signature"
	ReasonProjectOutOfScope     = "project_out_of_scope"
	ReasonEnvironmentNotAllowed = "environment_not_allowed"
	ReasonCapabilityNotAllowed  = "capability_not_allowed"
)

// deployCapabilityByEnv maps deployment environments to the capability
// flag a grant must carry for them.
var deployCapabilityByEnv = map[string]string{
	"dev":     "auto_deploy_dev",
	"staging": "auto_deploy_staging",
	"prod":    "auto_deploy_prod",
}

// DeployCapability returns the capability flag required to deploy into
// an environment, or false for an unknown environment.
func DeployCapability(environment string) (string, bool) {
	cap, ok := deployCapabilityByEnv[strings.ToLower(strings.TrimSpace(environment))]
	return cap, ok
}

// VerifyOptions narrow a verification to a capability, project, and
// environment. Zero values skip the corresponding check. Now defaults to
// the current time.
type VerifyOptions struct {
	RequiredCapability string
	ProjectID          string
	Environment        string
	Now                time.Time
}

// VerificationResult reports validity, the exact reason code, and the
// grant itself when it was found (even on failure, for diagnostics).
type VerificationResult struct {
	Valid  bool
	Reason string
	Grant  *Grant
}

// Verifier validates grants against the key store and revocation ledger.
// It holds no signing key; it can only check.
type Verifier struct {
	keys      *keys.Store
	authority *Authority
}

// NewVerifier creates a verifier over the same preauth home the
// authority writes to.
func NewVerifier(keyStore *keys.Store, authority *Authority) *Verifier {
	return &Verifier{keys: keyStore, authority: authority}
}

// Verify checks, in order: existence, revocation, expiry, signature
// (against active and archived public keys), project scope, environment
// capability, and the explicitly required capability.
func (v *Verifier) Verify(grantID string, opts VerifyOptions) VerificationResult {
	g, err := v.authority.Get(grantID)
	if err != nil || g == nil {
		return VerificationResult{Valid: false, Reason: ReasonGrantNotFound}
	}

	// An unreadable ledger fails the check closed: a revoked grant must
	// never verify just because the revocation list could not be read.
	revoked, err := v.authority.RevokedIDs()
	if err != nil {
		return VerificationResult{Valid: false, Reason: ReasonRevocationUnreadable, Grant: g}
	}
	if revoked[g.GrantID] {
		return VerificationResult{Valid: false, Reason: ReasonGrantRevoked, Grant: g}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	expiry, err := g.Expiry()
	if err != nil {
		return VerificationResult{Valid: false, Reason: ReasonInvalidExpiry, Grant: g}
	}
	if !now.Before(expiry) {
		return VerificationResult{Valid: false, Reason: ReasonGrantExpired, Grant: g}
	}

	publicKeys, err := v.keys.LoadPublicKeys()
	if err != nil || len(publicKeys) == 0 {
		return VerificationResult{Valid: false, Reason: ReasonPublicKeyMissing, Grant: g}
	}
	if !VerifySignature(g, publicKeys) {
		return VerificationResult{Valid: false, Reason: ReasonInvalidSignature, Grant: g}
	}

	if opts.ProjectID != "" && !g.Scope.ProjectIDs.Contains(opts.ProjectID) {
		return VerificationResult{Valid: false, Reason: ReasonProjectOutOfScope, Grant: g}
	}

	if opts.Environment != "" {
		cap, ok := DeployCapability(opts.Environment)
		if !ok || !g.Capability(cap) {
			return VerificationResult{Valid: false, Reason: ReasonEnvironmentNotAllowed, Grant: g}
		}
	}

	if opts.RequiredCapability != "" && !g.Capability(opts.RequiredCapability) {
		return VerificationResult{Valid: false, Reason: ReasonCapabilityNotAllowed, Grant: g}
	}

	return VerificationResult{Valid: true, Reason: ReasonOK, Grant: g}
}
