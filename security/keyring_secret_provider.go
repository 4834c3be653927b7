package security

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-source-connections/core"
)

// KeyRotationWindow gates when a key is allowed to encrypt or decrypt. Zero
// bounds are open.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

type KeyringOption func(*KeyringSecretProvider)

// WithRetiredKey keeps an older key available for decrypting rows written
// before a rotation. The window bounds how long the key may still decrypt.
func WithRetiredKey(provider core.KeyedSecretProvider, window KeyRotationWindow) KeyringOption {
	return func(k *KeyringSecretProvider) {
		if provider == nil {
			return
		}
		k.retired = append(k.retired, keyringEntry{provider: provider, window: window})
	}
}

// WithActiveWindow bounds when the active key may encrypt.
func WithActiveWindow(window KeyRotationWindow) KeyringOption {
	return func(k *KeyringSecretProvider) {
		k.activeWindow = window
	}
}

func WithKeyringClock(now func() time.Time) KeyringOption {
	return func(k *KeyringSecretProvider) {
		if now != nil {
			k.now = now
		}
	}
}

type keyringEntry struct {
	provider core.KeyedSecretProvider
	window   KeyRotationWindow
}

// KeyringSecretProvider encrypts with one active key and decrypts with
// whichever registered key matches the envelope's key id and version.
type KeyringSecretProvider struct {
	active       core.KeyedSecretProvider
	activeWindow KeyRotationWindow
	retired      []keyringEntry
	now          func() time.Time
}

func NewKeyringSecretProvider(active core.KeyedSecretProvider, opts ...KeyringOption) (*KeyringSecretProvider, error) {
	if active == nil {
		return nil, fmt.Errorf("security: active secret provider is required")
	}
	provider := &KeyringSecretProvider{
		active: active,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	seen := map[string]struct{}{keyRef(active.KeyID(), active.Version()): {}}
	for _, entry := range provider.retired {
		ref := keyRef(entry.provider.KeyID(), entry.provider.Version())
		if _, ok := seen[ref]; ok {
			return nil, fmt.Errorf("security: duplicate key %s in keyring", ref)
		}
		seen[ref] = struct{}{}
	}
	return provider, nil
}

func (k *KeyringSecretProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if !k.activeWindow.Allows(k.now()) {
		return nil, fmt.Errorf("security: active key %s is outside its rotation window", keyRef(k.active.KeyID(), k.active.Version()))
	}
	return k.active.Encrypt(ctx, plaintext)
}

func (k *KeyringSecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return nil, err
	}
	if matchesKey(k.active, meta) {
		return k.active.Decrypt(ctx, ciphertext)
	}
	for _, entry := range k.retired {
		if !matchesKey(entry.provider, meta) {
			continue
		}
		if !entry.window.Allows(k.now()) {
			return nil, fmt.Errorf("security: key %s is retired", keyRef(meta.KeyID, meta.Version))
		}
		return entry.provider.Decrypt(ctx, ciphertext)
	}
	return nil, fmt.Errorf("security: no key registered for %s", keyRef(meta.KeyID, meta.Version))
}

func (k *KeyringSecretProvider) KeyID() string {
	if k == nil {
		return ""
	}
	return k.active.KeyID()
}

func (k *KeyringSecretProvider) Version() int {
	if k == nil {
		return 0
	}
	return k.active.Version()
}

// NeedsRewrap reports whether a blob was sealed by a key other than the
// active one.
func (k *KeyringSecretProvider) NeedsRewrap(ciphertext []byte) (bool, error) {
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false, err
	}
	return !matchesKey(k.active, meta), nil
}

// Rewrap decrypts with the matching key and re-encrypts with the active one.
func (k *KeyringSecretProvider) Rewrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	plaintext, err := k.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, err
	}
	return k.Encrypt(ctx, plaintext)
}

func matchesKey(provider core.KeyedSecretProvider, meta EnvelopeMetadata) bool {
	return provider.KeyID() == meta.KeyID && provider.Version() == meta.Version
}

func keyRef(keyID string, version int) string {
	return fmt.Sprintf("%s:%d", keyID, version)
}

var _ core.KeyedSecretProvider = (*KeyringSecretProvider)(nil)
