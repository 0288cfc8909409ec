package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// SealedStore encrypts payloads with age before handing them to the inner store.
type SealedStore struct {
	inner    Store
	identity *age.X25519Identity
}

// NewSealedStore wraps inner so that every payload is encrypted at rest.
func NewSealedStore(inner Store, identity *age.X25519Identity) *SealedStore {
	return &SealedStore{inner: inner, identity: identity}
}

func (s *SealedStore) Save(ctx context.Context, userID, namespace string, payload []byte) error {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return fmt.Errorf("age encrypt init: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("age encrypt write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("age encrypt close: %w", err)
	}
	return s.inner.Save(ctx, userID, namespace, buf.Bytes())
}

func (s *SealedStore) Load(ctx context.Context, userID, namespace string) ([]byte, error) {
	sealed, err := s.inner.Load(ctx, userID, namespace)
	if err != nil || sealed == nil {
		return nil, err
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), s.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: age decrypt %s/%s: %v", ErrUnavailable, userID, namespace, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read decrypted: %v", ErrUnavailable, err)
	}
	return plain, nil
}

func (s *SealedStore) Namespaces(ctx context.Context, userID string) ([]string, error) {
	return s.inner.Namespaces(ctx, userID)
}

func (s *SealedStore) Close() error { return s.inner.Close() }

// ParseIdentity parses an AGE-SECRET-KEY-1... string.
func ParseIdentity(key string) (*age.X25519Identity, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(key))
	if err != nil {
		return nil, fmt.Errorf("parse age identity: %w", err)
	}
	return id, nil
}

// LoadIdentity reads the first X25519 identity from an age key file.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", path)
	}
	id, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("unexpected identity type in %s", path)
	}
	return id, nil
}

// GenerateIdentity creates an X25519 key file at path with 0o600 and returns
// the public recipient. An existing file is left untouched.
func GenerateIdentity(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		id, err := LoadIdentity(path)
		if err != nil {
			return "", err
		}
		return id.Recipient().String(), nil
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate age identity: %w", err)
	}

	content := fmt.Sprintf("# created by pokus\n# public key: %s\n%s\n",
		identity.Recipient().String(), identity.String())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write age key: %w", err)
	}
	return identity.Recipient().String(), nil
}
