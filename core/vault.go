package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MaskedValue replaces every credential value in non-reveal responses.
const MaskedValue = "********"

// CredentialVault turns credential maps into opaque ciphertext and back.
// It holds no state beyond the process-wide secret provider.
type CredentialVault struct {
	provider SecretProvider
}

func NewCredentialVault(provider SecretProvider) (*CredentialVault, error) {
	if provider == nil {
		return nil, fmt.Errorf("core: secret provider is required")
	}
	return &CredentialVault{provider: provider}, nil
}

func (v *CredentialVault) Encrypt(ctx context.Context, fields map[string]any) ([]byte, error) {
	if v == nil || v.provider == nil {
		return nil, fmt.Errorf("core: credential vault is not configured")
	}
	if fields == nil {
		fields = map[string]any{}
	}
	plaintext, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	ciphertext, err := v.provider.Encrypt(ctx, plaintext)
	clear(plaintext)
	if err != nil {
		return nil, fmt.Errorf("core: encrypt credential payload: %w", err)
	}
	return ciphertext, nil
}

func (v *CredentialVault) Decrypt(ctx context.Context, ciphertext []byte) (map[string]any, error) {
	if v == nil || v.provider == nil {
		return nil, fmt.Errorf("core: credential vault is not configured")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("core: credential ciphertext is required")
	}
	plaintext, err := v.provider.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("core: decrypt credential payload: %w", err)
	}
	defer clear(plaintext)
	fields := map[string]any{}
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, fmt.Errorf("core: decode credential payload: %w", err)
	}
	return fields, nil
}

// KeyIdentity reports the key id and version stamped on new credential rows.
func (v *CredentialVault) KeyIdentity() (string, int) {
	if v == nil {
		return "", 0
	}
	if keyed, ok := v.provider.(KeyedSecretProvider); ok {
		return strings.TrimSpace(keyed.KeyID()), keyed.Version()
	}
	return "", 0
}

// MaskCredentials keeps field names and hides every value.
func MaskCredentials(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for key := range fields {
		out[key] = MaskedValue
	}
	return out
}
