package security

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"github.com/goliatone/go-source-connections/core"
)

type AgeOption func(*AgeSecretProvider)

// WithAgeRecipients adds public keys (age1...) every blob is also encrypted
// to, such as an operator escrow key.
func WithAgeRecipients(publicKeys ...string) AgeOption {
	return func(p *AgeSecretProvider) {
		for _, key := range publicKeys {
			if trimmed := strings.TrimSpace(key); trimmed != "" {
				p.extraRecipients = append(p.extraRecipients, trimmed)
			}
		}
	}
}

func WithAgeKeyID(id string) AgeOption {
	return func(p *AgeSecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			p.keyID = trimmed
		}
	}
}

func WithAgeVersion(version int) AgeOption {
	return func(p *AgeSecretProvider) {
		if version > 0 {
			p.version = version
		}
	}
}

// AgeSecretProvider seals credential blobs with age X25519. The identity's
// own recipient is always included so the provider can open what it wrote.
type AgeSecretProvider struct {
	identity        *age.X25519Identity
	recipients      []age.Recipient
	extraRecipients []string
	keyID           string
	version         int
}

func NewAgeSecretProvider(privateKey string, opts ...AgeOption) (*AgeSecretProvider, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(privateKey))
	if err != nil {
		return nil, fmt.Errorf("security: parse age identity: %w", err)
	}
	provider := &AgeSecretProvider{
		identity: identity,
		keyID:    "age",
		version:  1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}

	provider.recipients = []age.Recipient{identity.Recipient()}
	for _, key := range provider.extraRecipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("security: parse age recipient %q: %w", key, err)
		}
		provider.recipients = append(provider.recipients, recipient)
	}
	return provider, nil
}

// GenerateAgeKey returns a new private key and its public recipient.
func GenerateAgeKey() (privateKey string, publicKey string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("security: generate age identity: %w", err)
	}
	return identity.String(), identity.Recipient().String(), nil
}

func (p *AgeSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}

	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, p.recipients...)
	if err != nil {
		return nil, fmt.Errorf("security: create age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("security: write age plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("security: finalize age encryption: %w", err)
	}

	return encodeEnvelope(envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  envelopeAlgorithmAge,
		Ciphertext: encodeCiphertextPayload(buf.Bytes()),
	})
}

func (p *AgeSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	if err := checkEnvelopeKey(parsed, envelopeAlgorithmAge, p.keyID, p.version); err != nil {
		return nil, err
	}
	raw, err := decodeCiphertextPayload(parsed.Ciphertext)
	if err != nil {
		return nil, err
	}

	reader, err := age.Decrypt(bytes.NewReader(raw), p.identity)
	if err != nil {
		return nil, fmt.Errorf("security: age decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("security: read age plaintext: %w", err)
	}
	return plaintext, nil
}

func (p *AgeSecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AgeSecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

// PublicKey is the recipient string of the provider's own identity.
func (p *AgeSecretProvider) PublicKey() string {
	if p == nil || p.identity == nil {
		return ""
	}
	return p.identity.Recipient().String()
}

var _ core.KeyedSecretProvider = (*AgeSecretProvider)(nil)
