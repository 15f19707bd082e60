// Package keys manages the local Ed25519 keypair used to sign
// preauthorization grants. Rotation archives the retired public key so
// grants signed before rotation remain verifiable.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrKeyNotFound is returned when the private key has not been initialized.
var ErrKeyNotFound = errors.New("preauth private key not found; run 'autosd preauth init-keys'")

const (
	privateKeyFile = "private_key.pem"
	publicKeyFile  = "public_key.pem"
	archiveDirName = "archive"

	privatePEMType = "PRIVATE KEY"
	publicPEMType  = "PUBLIC KEY"
)

// Store owns key material under <home>/keys/.
type Store struct {
	dir string
}

// NewStore creates a key store rooted at the given preauth home.
func NewStore(home string) *Store {
	return &Store{dir: filepath.Join(home, "keys")}
}

// PrivateKeyPath returns the active private key location.
func (s *Store) PrivateKeyPath() string { return filepath.Join(s.dir, privateKeyFile) }

// PublicKeyPath returns the active public key location.
func (s *Store) PublicKeyPath() string { return filepath.Join(s.dir, publicKeyFile) }

// Init generates a keypair if absent, or unconditionally when force is
// set. The private key file is written with restrictive permissions.
func (s *Store) Init(force bool) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("keys: create directory: %w", err)
	}
	if !force {
		_, privErr := os.Stat(s.PrivateKeyPath())
		_, pubErr := os.Stat(s.PublicKeyPath())
		if privErr == nil && pubErr == nil {
			return nil
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("keys: generate keypair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("keys: encode private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("keys: encode public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: privatePEMType, Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: publicPEMType, Bytes: pubDER})

	if err := os.WriteFile(s.PrivateKeyPath(), privPEM, 0600); err != nil {
		return fmt.Errorf("keys: write private key: %w", err)
	}
	if err := os.WriteFile(s.PublicKeyPath(), pubPEM, 0644); err != nil {
		return fmt.Errorf("keys: write public key: %w", err)
	}
	return nil
}

// Rotate archives the current public key under a timestamped name, then
// generates a fresh keypair. Archived keys are never deleted.
func (s *Store) Rotate() error {
	current, err := os.ReadFile(s.PublicKeyPath())
	if err == nil {
		archiveDir := filepath.Join(s.dir, archiveDirName)
		if err := os.MkdirAll(archiveDir, 0700); err != nil {
			return fmt.Errorf("keys: create archive directory: %w", err)
		}
		stamp := time.Now().UTC().Format("20060102150405")
		archived := filepath.Join(archiveDir, fmt.Sprintf("public_key_%s.pem", stamp))
		if err := os.WriteFile(archived, current, 0644); err != nil {
			return fmt.Errorf("keys: archive public key: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("keys: read public key: %w", err)
	}
	return s.Init(true)
}

// LoadPrivate reads the active signing key. Returns ErrKeyNotFound when
// the store has not been initialized.
func (s *Store) LoadPrivate() (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(s.PrivateKeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("keys: read private key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != privatePEMType {
		return nil, fmt.Errorf("keys: private key file is not a %s PEM block", privatePEMType)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keys: unsupported private key type %T, expected Ed25519", parsed)
	}
	return key, nil
}

// LoadPublicKeys returns the active public key followed by all archived
// keys in filename order. Unparseable files are skipped so one corrupt
// archive entry cannot break verification of every grant.
func (s *Store) LoadPublicKeys() ([]ed25519.PublicKey, error) {
	var candidates []string
	if _, err := os.Stat(s.PublicKeyPath()); err == nil {
		candidates = append(candidates, s.PublicKeyPath())
	}
	archiveDir := filepath.Join(s.dir, archiveDirName)
	if entries, err := os.ReadDir(archiveDir); err == nil {
		var archived []string
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".pem" {
				continue
			}
			archived = append(archived, filepath.Join(archiveDir, e.Name()))
		}
		sort.Strings(archived)
		candidates = append(candidates, archived...)
	}

	var out []ed25519.PublicKey
	for _, path := range candidates {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		block, _ := pem.Decode(raw)
		if block == nil || block.Type != publicPEMType {
			continue
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			continue
		}
		if key, ok := parsed.(ed25519.PublicKey); ok {
			out = append(out, key)
		}
	}
	return out, nil
}
