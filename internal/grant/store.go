package grant

import (
	"bufio"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxBreakGlassHours caps break-glass grant expiry at creation time.
const MaxBreakGlassHours = 2

// validGrantID matches uuid-shaped identifiers and rejects anything that
// could traverse out of the grants directory.
var validGrantID = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

func validateGrantID(id string) error {
	if id == "" {
		return fmt.Errorf("grant id must not be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("grant id must not contain '..'")
	}
	if !validGrantID.MatchString(id) {
		return fmt.Errorf("grant id contains invalid characters")
	}
	return nil
}

// RevocationRecord is one line in the revocation ledger. A grant is
// revoked if any record references its id.
type RevocationRecord struct {
	GrantID   string `json:"grant_id"`
	RevokedAt string `json:"revoked_at"`
	Reason    string `json:"reason"`
}

// CreateParams carries the caller-chosen fields of a new grant.
type CreateParams struct {
	Issuer         string
	Scope          Scope
	Capabilities   map[string]bool
	RequiredGates  map[string]any
	Budgets        map[string]int
	Telemetry      map[string]any
	ExpiresInHours int
	BreakGlass     bool
}

// Authority constructs, signs, and persists grants under a preauth home,
// and keeps the append-only revocation ledger beside them.
type Authority struct {
	grantsDir   string
	revokedPath string
}

// NewAuthority creates an Authority rooted at the given preauth home.
func NewAuthority(home string) *Authority {
	return &Authority{
		grantsDir:   filepath.Join(home, "grants"),
		revokedPath: filepath.Join(home, "revoked.jsonl"),
	}
}

// GrantsDir returns the per-grant file directory.
func (a *Authority) GrantsDir() string { return a.grantsDir }

// Create builds and signs a grant. Break-glass grants are constrained to
// a maximum expiry of MaxBreakGlassHours at creation time.
func (a *Authority) Create(params CreateParams, key ed25519.PrivateKey) (*Grant, error) {
	if params.ExpiresInHours <= 0 {
		return nil, fmt.Errorf("grant: expires_in_hours must be greater than zero")
	}
	if params.BreakGlass && params.ExpiresInHours > MaxBreakGlassHours {
		return nil, fmt.Errorf("grant: break-glass grant expiry must be <= %d hours", MaxBreakGlassHours)
	}

	issuer := strings.TrimSpace(params.Issuer)
	if issuer == "" {
		issuer = "operator"
	}
	issuedAt := time.Now().UTC()
	g := &Grant{
		GrantID:       uuid.NewString(),
		IssuedAt:      issuedAt.Format(time.RFC3339),
		ExpiresAt:     issuedAt.Add(time.Duration(params.ExpiresInHours) * time.Hour).Format(time.RFC3339),
		Issuer:        issuer,
		Scope:         params.Scope,
		Capabilities:  params.Capabilities,
		RequiredGates: params.RequiredGates,
		Budgets:       params.Budgets,
		Telemetry:     params.Telemetry,
		BreakGlass:    params.BreakGlass,
	}
	sig, err := Sign(g, key)
	if err != nil {
		return nil, err
	}
	g.Signature = sig
	return g, nil
}

// Save writes one file per grant id under the grants directory.
func (a *Authority) Save(g *Grant) (string, error) {
	if err := validateGrantID(g.GrantID); err != nil {
		return "", fmt.Errorf("grant: %w", err)
	}
	if err := os.MkdirAll(a.grantsDir, 0700); err != nil {
		return "", fmt.Errorf("grant: create grants directory: %w", err)
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", fmt.Errorf("grant: marshal grant: %w", err)
	}
	path := a.path(g.GrantID)
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return "", fmt.Errorf("grant: write grant: %w", err)
	}
	return path, nil
}

// Get loads one grant by id. A missing grant returns (nil, nil) so the
// verifier can map absence to its own reason code.
func (a *Authority) Get(id string) (*Grant, error) {
	if err := validateGrantID(id); err != nil {
		return nil, fmt.Errorf("grant: %w", err)
	}
	data, err := os.ReadFile(a.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("grant: read grant: %w", err)
	}
	var g Grant
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("grant: parse grant %s: %w", id, err)
	}
	return &g, nil
}

// List returns all readable grants sorted by id. Unparseable files are
// skipped.
func (a *Authority) List() ([]*Grant, error) {
	entries, err := os.ReadDir(a.grantsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("grant: read grants directory: %w", err)
	}
	var grants []*Grant
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.grantsDir, e.Name()))
		if err != nil {
			continue
		}
		var g Grant
		if err := json.Unmarshal(data, &g); err != nil {
			continue
		}
		grants = append(grants, &g)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].GrantID < grants[j].GrantID })
	return grants, nil
}

// Revoke appends a revocation record. The grant file itself is never
// edited or deleted.
func (a *Authority) Revoke(id, reason string) error {
	if err := validateGrantID(id); err != nil {
		return fmt.Errorf("grant: %w", err)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "revoked"
	}
	record := RevocationRecord{
		GrantID:   id,
		RevokedAt: time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("grant: marshal revocation: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.revokedPath), 0700); err != nil {
		return fmt.Errorf("grant: create preauth home: %w", err)
	}
	f, err := os.OpenFile(a.revokedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("grant: open revocation ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("grant: write revocation: %w", err)
	}
	return nil
}

// RevokedIDs returns the set of revoked grant ids. Malformed ledger
// lines are skipped; order is irrelevant.
func (a *Authority) RevokedIDs() (map[string]bool, error) {
	f, err := os.Open(a.revokedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("grant: open revocation ledger: %w", err)
	}
	defer f.Close()

	revoked := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record RevocationRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		if record.GrantID != "" {
			revoked[record.GrantID] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("grant: scan revocation ledger: %w", err)
	}
	return revoked, nil
}

func (a *Authority) path(id string) string {
	return filepath.Join(a.grantsDir, id+".json")
}
