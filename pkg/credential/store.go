package credential

import (
	"context"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/log"
)

// FieldKind selects how a configured value resolves to plaintext (§4.B).
type FieldKind string

const (
	FieldPlaintext FieldKind = "plaintext"
	FieldVaultRef  FieldKind = "vault_ref"
	FieldWrapped   FieldKind = "wrapped"
)

// Field is one secret-bearing entry of a pool or job configuration.
type Field struct {
	LogicalName string
	Kind        FieldKind

	// FieldPlaintext
	Value string

	// FieldVaultRef
	VaultURI string

	// FieldWrapped: base64 ciphertext, decrypted with the private key
	// registered under CertThumbprint.
	WrappedBase64  string
	CertThumbprint string
}

// KeyRing holds the private keys this engine instance may decrypt with,
// keyed by the SHA-1 hex thumbprint of the certificate they were issued
// under (the convention used to reference decryption certs in §3's image
// descriptor and §4.B).
type KeyRing struct {
	keys map[string]*rsa.PrivateKey
}

// NewKeyRing builds an empty ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]*rsa.PrivateKey)}
}

// Register associates a private key with the thumbprint of its certificate.
func (k *KeyRing) Register(cert *x509.Certificate, key *rsa.PrivateKey) {
	k.keys[Thumbprint(cert)] = key
}

// Thumbprint returns the hex-encoded SHA-1 digest of cert, the identifier
// used to reference decryption certificates throughout §3 and §4.B.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return hex.EncodeToString(sum[:])
}

func (k *KeyRing) lookup(thumbprint string) (*rsa.PrivateKey, bool) {
	key, ok := k.keys[thumbprint]
	return key, ok
}

// Store resolves Fields into plaintext secrets, using a SecretVault for
// vault references and a KeyRing for RSA-wrapped blobs.
type Store struct {
	vault   capability.SecretVault
	idp     capability.IdentityProvider
	keyRing *KeyRing
}

// NewStore builds a credential Store. idp is held but never consulted:
// vault references are resolved with whatever authentication the vault
// client itself carries, and no identity-provider token is fetched.
func NewStore(vault capability.SecretVault, idp capability.IdentityProvider, keyRing *KeyRing) *Store {
	return &Store{vault: vault, idp: idp, keyRing: keyRing}
}

// Resolve produces {logical_name -> plaintext} for fields. A decryption or
// vault-resolution failure is fatal: the caller cannot proceed without its
// secrets, so Resolve logs and aborts the process rather than returning a
// partial map (§4.B "Decryption failures are fatal and must abort the
// action").
func (s *Store) Resolve(ctx context.Context, deadline time.Time, fields []Field) map[string][]byte {
	out := make(map[string][]byte, len(fields))
	logger := log.WithComponent("credential")

	for _, f := range fields {
		plaintext, err := s.resolveOne(ctx, deadline, f)
		if err != nil {
			logger.Fatal().Str("logical_name", f.LogicalName).Err(err).Msg("credential resolution failed, aborting")
			return nil // unreachable: Fatal exits the process
		}
		log.RegisterSecret(string(plaintext))
		out[f.LogicalName] = plaintext
	}
	return out
}

func (s *Store) resolveOne(ctx context.Context, deadline time.Time, f Field) ([]byte, error) {
	switch f.Kind {
	case FieldPlaintext:
		return []byte(f.Value), nil
	case FieldVaultRef:
		if s.vault == nil {
			return nil, errors.New("no secret vault configured")
		}
		return s.vault.GetSecret(ctx, deadline, f.VaultURI)
	case FieldWrapped:
		return s.unwrap(f)
	default:
		return nil, fmt.Errorf("unknown field kind %q", f.Kind)
	}
}

func (s *Store) unwrap(f Field) ([]byte, error) {
	key, ok := s.keyRing.lookup(f.CertThumbprint)
	if !ok {
		return nil, fmt.Errorf("no private key registered for thumbprint %s", f.CertThumbprint)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(f.WrappedBase64)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, key, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa-oaep unwrap: %w", err)
	}
	return plaintext, nil
}
