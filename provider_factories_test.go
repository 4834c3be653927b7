package sourceconnections

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/goliatone/go-source-connections/core"
	"github.com/goliatone/go-source-connections/security"
)

func TestAppKeySecretProvider_AcceptsBase64AndPassphrase(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	fromBase64, err := AppKeySecretProvider(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("base64 key: %v", err)
	}
	fromPassphrase, err := AppKeySecretProvider("not base64 at all!")
	if err != nil {
		t.Fatalf("passphrase key: %v", err)
	}
	if _, err := AppKeySecretProvider("  "); err == nil {
		t.Fatalf("expected empty key error")
	}

	ctx := context.Background()
	for _, provider := range []core.SecretProvider{fromBase64, fromPassphrase} {
		sealed, err := provider.Encrypt(ctx, []byte("secret"))
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		opened, err := provider.Decrypt(ctx, sealed)
		if err != nil || string(opened) != "secret" {
			t.Fatalf("decrypt: %q %v", opened, err)
		}
	}
}

func TestRotatingSecretProvider_DecryptsRetiredKey(t *testing.T) {
	ctx := context.Background()
	oldKey, err := security.NewAppKeySecretProviderFromString("old", security.WithKeyID("k1"), security.WithVersion(1))
	if err != nil {
		t.Fatalf("old key: %v", err)
	}
	newKey, err := security.NewAppKeySecretProviderFromString("new", security.WithKeyID("k2"), security.WithVersion(1))
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	sealed, err := oldKey.Encrypt(ctx, []byte("legacy"))
	if err != nil {
		t.Fatalf("seal with old key: %v", err)
	}

	ring, err := RotatingSecretProvider(newKey, oldKey)
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	opened, err := ring.Decrypt(ctx, sealed)
	if err != nil || string(opened) != "legacy" {
		t.Fatalf("decrypt retired blob: %q %v", opened, err)
	}
	if ring.KeyID() != "k2" {
		t.Fatalf("expected active key k2, got %q", ring.KeyID())
	}
}

func TestAgeSecretProvider_WithEscrowRecipient(t *testing.T) {
	priv, _, err := security.GenerateAgeKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	escrowPriv, escrowPub, err := security.GenerateAgeKey()
	if err != nil {
		t.Fatalf("generate escrow key: %v", err)
	}
	provider, err := AgeSecretProvider(priv, escrowPub)
	if err != nil {
		t.Fatalf("age provider: %v", err)
	}
	sealed, err := provider.Encrypt(context.Background(), []byte("token"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	escrow, err := security.NewAgeSecretProvider(escrowPriv, security.WithAgeKeyID(provider.KeyID()), security.WithAgeVersion(provider.Version()))
	if err != nil {
		t.Fatalf("escrow provider: %v", err)
	}
	opened, err := escrow.Decrypt(context.Background(), sealed)
	if err != nil || string(opened) != "token" {
		t.Fatalf("escrow decrypt: %q %v", opened, err)
	}
}

func TestSQLRepositoryFactory_RequiresClient(t *testing.T) {
	if _, err := SQLRepositoryFactory(DefaultConfig(), nil); err == nil {
		t.Fatalf("expected nil client error")
	}
}
