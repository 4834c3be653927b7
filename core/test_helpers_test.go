package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const testOrg = "org_1"

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := string(ciphertext)
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
}

func (testSecretProvider) KeyID() string { return "test-key" }

func (testSecretProvider) Version() int { return 1 }

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

type fakeOAuthClient struct {
	mu          sync.Mutex
	exchangeErr error
	token       TokenResponse
	redirects   []string
	overrides   []ClientOverrides
	onExchange  func()
}

func (c *fakeOAuthClient) AuthorizationURL(_ context.Context, settings OAuthSettings, redirectURI string, state string, overrides ClientOverrides) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redirects = append(c.redirects, redirectURI)
	clientID := settings.ClientID
	if overrides.ClientID != "" {
		clientID = overrides.ClientID
	}
	return fmt.Sprintf("%s?client_id=%s&state=%s", settings.AuthURL, clientID, state), nil
}

func (c *fakeOAuthClient) ExchangeCode(_ context.Context, _ OAuthSettings, code string, redirectURI string, overrides ClientOverrides) (TokenResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redirects = append(c.redirects, redirectURI)
	c.overrides = append(c.overrides, overrides)
	if c.onExchange != nil {
		c.onExchange()
	}
	if c.exchangeErr != nil {
		return TokenResponse{}, c.exchangeErr
	}
	token := c.token
	if token.AccessToken == "" {
		token.AccessToken = "access-" + code
		token.RefreshToken = "refresh-" + code
	}
	return token, nil
}

type captureEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

func (e *captureEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

// failingSyncExecution writes the sync row and then fails, so callers can
// assert the surrounding transaction rolled back.
type failingSyncExecution struct{}

func (failingSyncExecution) CreateAndRun(ctx context.Context, tx TxStores, spec SyncSpec) (Sync, *SyncJob, error) {
	if _, err := tx.Syncs().Create(ctx, Sync{
		OrganizationID:     spec.OrganizationID,
		Name:               spec.Name,
		SourceConnectionID: spec.SourceConnectionID,
		Status:             SyncStatusActive,
	}); err != nil {
		return Sync{}, nil, err
	}
	return Sync{}, nil, fmt.Errorf("sync execution unavailable")
}

func (failingSyncExecution) Trigger(context.Context, string, string) (SyncJob, error) {
	return SyncJob{}, fmt.Errorf("sync execution unavailable")
}

func (failingSyncExecution) ListJobs(context.Context, string, string, int) ([]SyncJob, error) {
	return nil, fmt.Errorf("sync execution unavailable")
}

type recordingCleanup struct {
	syncIDs []string
	err     error
}

func (c *recordingCleanup) DeleteBySyncID(_ context.Context, syncID string) error {
	c.syncIDs = append(c.syncIDs, syncID)
	return c.err
}

type stubValidator struct {
	err error
}

func (v stubValidator) ValidateCredentials(context.Context, Source, map[string]any) error {
	return v.err
}

func testSchemas(t *testing.T) *SchemaRegistry {
	t.Helper()
	registry := NewSchemaRegistry()
	schemas := []Schema{
		{
			Name: "stripe_auth",
			Fields: []FieldSpec{
				{Name: "api_key", Type: FieldTypeString, Required: true, Secret: true, Pattern: `^sk_`},
			},
		},
		{
			Name: "stripe_config",
			Fields: []FieldSpec{
				{Name: "include_test_data", Type: FieldTypeBoolean, Default: false},
			},
		},
		{
			Name: "oauth_token",
			Fields: []FieldSpec{
				{Name: "access_token", Type: FieldTypeString, Required: true, Secret: true},
				{Name: "refresh_token", Type: FieldTypeString, Secret: true},
				{Name: "client_id", Type: FieldTypeString},
				{Name: "client_secret", Type: FieldTypeString, Secret: true},
			},
		},
		{
			Name: "github_config",
			Fields: []FieldSpec{
				{Name: "repo_name", Type: FieldTypeString, Required: true},
				{Name: "branch", Type: FieldTypeString, Default: "main"},
			},
		},
		{Name: "empty_config"},
		{
			Name: "composio_config",
			Fields: []FieldSpec{
				{Name: "auth_config_id", Type: FieldTypeString, Required: true},
				{Name: "account_id", Type: FieldTypeString, Required: true},
			},
		},
		{
			Name: "composio_auth",
			Fields: []FieldSpec{
				{Name: "api_key", Type: FieldTypeString, Required: true, Secret: true},
			},
		},
	}
	for _, schema := range schemas {
		if err := registry.Register(schema); err != nil {
			t.Fatalf("register schema %s: %v", schema.Name, err)
		}
	}
	return registry
}

func seedSources(t *testing.T, persistence *MemoryPersistence) {
	t.Helper()
	sources := []Source{
		{ShortName: "stripe", Name: "Stripe", AuthMethod: AuthMethodDirect, AuthSchema: "stripe_auth", ConfigSchema: "stripe_config"},
		{
			ShortName:            "github",
			Name:                 "GitHub",
			AuthMethod:           AuthMethodOAuthBrowser,
			OAuthType:            OAuthTypeWithRefresh,
			AuthSchema:           "oauth_token",
			ConfigSchema:         "github_config",
			SupportsAuthProvider: true,
		},
		{
			ShortName:    "slack",
			Name:         "Slack",
			AuthMethod:   AuthMethodOAuthBYOC,
			OAuthType:    OAuthTypeAccessOnly,
			AuthSchema:   "oauth_token",
			ConfigSchema: "empty_config",
			RequiresBYOC: true,
		},
		{ShortName: "public_feed", Name: "Public Feed", AuthMethod: AuthMethodNone, ConfigSchema: "empty_config"},
		{ShortName: "broken", Name: "Broken", AuthMethod: AuthMethodDirect, AuthSchema: "stripe_auth"},
		{
			ShortName:    "composio",
			Name:         "Composio",
			Kind:         IntegrationTypeAuthProvider,
			AuthMethod:   AuthMethodDirect,
			AuthSchema:   "composio_auth",
			ConfigSchema: "composio_config",
		},
	}
	for _, source := range sources {
		if _, err := persistence.UpsertSource(context.Background(), source); err != nil {
			t.Fatalf("seed source %s: %v", source.ShortName, err)
		}
	}
}

type testHarness struct {
	svc         *Service
	persistence *MemoryPersistence
	oauth       *fakeOAuthClient
	enqueuer    *captureEnqueuer
	cleanup     *recordingCleanup
	now         time.Time
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	persistence := NewMemoryPersistence()
	seedSources(t, persistence)
	h := &testHarness{
		persistence: persistence,
		oauth:       &fakeOAuthClient{},
		enqueuer:    &captureEnqueuer{},
		cleanup:     &recordingCleanup{},
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := DefaultConfig()
	cfg.Handshake.CallbackBaseURL = "https://api.example.com"
	cfg.OAuth.Providers = map[string]OAuthProviderConfig{
		"github": {AuthURL: "https://github.com/login/oauth/authorize", TokenURL: "https://github.com/login/oauth/access_token", ClientID: "gh-client", ClientSecret: "gh-secret"},
		"slack":  {AuthURL: "https://slack.com/oauth/v2/authorize", TokenURL: "https://slack.com/api/oauth.v2.access"},
	}
	base := []Option{
		WithPersistence(persistence),
		WithSourceCatalog(persistence),
		WithSecretProvider(testSecretProvider{}),
		WithSchemaRegistry(testSchemas(t)),
		WithOAuthProviderClient(h.oauth),
		WithJobEnqueuer(h.enqueuer),
		WithDestinationCleanup(h.cleanup),
		WithClock(func() time.Time { return h.now }),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func createStripeConnection(t *testing.T, h *testHarness) SourceConnectionDetails {
	t.Helper()
	details, err := h.svc.CreateSourceConnection(context.Background(), CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		AuthFields:     map[string]any{"api_key": "sk_test_x"},
	})
	if err != nil {
		t.Fatalf("create stripe connection: %v", err)
	}
	return details
}

func requireTextCode(t *testing.T, err error, textCode string) *goerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", textCode)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T: %v", err, err)
	}
	if richErr.TextCode != textCode {
		t.Fatalf("expected text code %q, got %q (%v)", textCode, richErr.TextCode, err)
	}
	return richErr
}

func boolPtr(value bool) *bool { return &value }

func intPtr(value int) *int { return &value }
