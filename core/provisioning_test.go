package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestCreateSourceConnection_DirectAuthProvisionsEverything(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	details, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		Name:           "Stripe Prod",
		AuthFields:     map[string]any{"api_key": "sk_live_123"},
		ConfigFields:   map[string]any{"include_test_data": "true"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sc := details.SourceConnection
	if !sc.IsAuthenticated || sc.ConnectionID == "" || sc.SyncID == "" {
		t.Fatalf("expected authenticated connection with sync, got %#v", sc)
	}
	if !readableIDPattern.MatchString(sc.ReadableCollectionID) {
		t.Fatalf("unexpected readable collection id %q", sc.ReadableCollectionID)
	}
	if got := sc.ConfigFields["include_test_data"]; got != true {
		t.Fatalf("expected coerced config field, got %#v", got)
	}
	if details.AuthMethod != AuthMethodDirect {
		t.Fatalf("expected direct auth method, got %q", details.AuthMethod)
	}
	if details.AuthFields["api_key"] != MaskedValue {
		t.Fatalf("expected masked api key, got %#v", details.AuthFields)
	}
	if details.Status != SourceConnectionStatusInProgress {
		t.Fatalf("expected in_progress status for immediate run, got %q", details.Status)
	}
	if details.SyncJob == nil || details.SyncJob.Status != SyncJobStatusPending {
		t.Fatalf("expected pending sync job, got %#v", details.SyncJob)
	}
	if h.enqueuer.count() != 1 {
		t.Fatalf("expected one dispatched job, got %d", h.enqueuer.count())
	}

	counts := h.persistence.Counts()
	for _, table := range []string{"integration_credentials", "connections", "collections", "syncs", "sync_jobs", "source_connections"} {
		if counts[table] != 1 {
			t.Fatalf("expected one %s row, got %d", table, counts[table])
		}
	}

	connection, err := h.persistence.Stores().Connections().Get(ctx, testOrg, sc.ConnectionID)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if connection.Name != "Stripe Prod" || connection.IntegrationType != IntegrationTypeSource {
		t.Fatalf("unexpected connection %#v", connection)
	}
	credential, err := h.persistence.Stores().Credentials().Get(ctx, testOrg, connection.IntegrationCredentialID)
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if credential.EncryptionKeyID != "test-key" || credential.EncryptionVersion != 1 {
		t.Fatalf("expected key identity on credential, got %q/%d", credential.EncryptionKeyID, credential.EncryptionVersion)
	}
	if len(credential.EncryptedCredentials) == 0 || strings.Contains(string(credential.EncryptedCredentials), "sk_live_123") {
		t.Fatalf("expected encrypted credential blob")
	}
}

func TestCreateSourceConnection_RunImmediatelyFalseLeavesSyncIdle(t *testing.T) {
	h := newTestHarness(t)
	details, err := h.svc.CreateSourceConnection(context.Background(), CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		AuthFields:     map[string]any{"api_key": "sk_test_x"},
		RunImmediately: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if details.Status != SourceConnectionStatusActive {
		t.Fatalf("expected active status, got %q", details.Status)
	}
	if details.SyncJob != nil {
		t.Fatalf("expected no sync job, got %#v", details.SyncJob)
	}
	if h.enqueuer.count() != 0 {
		t.Fatalf("expected nothing dispatched")
	}
	if details.SourceConnection.Name != "Stripe connection" {
		t.Fatalf("expected default name, got %q", details.SourceConnection.Name)
	}
}

func TestCreateSourceConnection_RollsBackWhenSyncCreationFails(t *testing.T) {
	h := newTestHarness(t, WithSyncExecutionService(failingSyncExecution{}))

	_, err := h.svc.CreateSourceConnection(context.Background(), CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		AuthFields:     map[string]any{"api_key": "sk_test_x"},
	})
	if err == nil {
		t.Fatalf("expected provisioning failure")
	}
	for table, count := range h.persistence.Counts() {
		if count != 0 {
			t.Fatalf("expected no %s rows after rollback, got %d", table, count)
		}
	}
}

func TestCreateSourceConnection_ManagedOAuthRejectsRawFields(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.svc.CreateSourceConnection(context.Background(), CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "github",
		AuthFields:     map[string]any{"access_token": "gho_x"},
		ConfigFields:   map[string]any{"repo_name": "acme/api"},
	})
	richErr := requireTextCode(t, err, ErrorForbidden)
	if richErr.Metadata["handshake_required"] != true {
		t.Fatalf("expected handshake_required metadata, got %#v", richErr.Metadata)
	}
	if counts := h.persistence.Counts(); counts["connections"] != 0 || counts["integration_credentials"] != 0 {
		t.Fatalf("expected nothing persisted, got %#v", counts)
	}
}

func TestCreateSourceConnection_ExistingCredential(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	first := createStripeConnection(t, h)
	connection, err := h.persistence.Stores().Connections().Get(ctx, testOrg, first.SourceConnection.ConnectionID)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	credentialID := connection.IntegrationCredentialID

	second, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID:       testOrg,
		ShortName:            "stripe",
		CredentialID:         credentialID,
		ReadableCollectionID: first.SourceConnection.ReadableCollectionID,
	})
	if err != nil {
		t.Fatalf("create with existing credential: %v", err)
	}
	if second.SourceConnection.ReadableCollectionID != first.SourceConnection.ReadableCollectionID {
		t.Fatalf("expected shared collection")
	}
	counts := h.persistence.Counts()
	if counts["integration_credentials"] != 1 || counts["connections"] != 2 || counts["collections"] != 1 {
		t.Fatalf("unexpected row counts %#v", counts)
	}

	fetched, err := h.svc.GetSourceConnection(ctx, GetSourceConnectionRequest{
		OrganizationID:     testOrg,
		SourceConnectionID: second.SourceConnection.ID,
	})
	if err != nil {
		t.Fatalf("get second connection: %v", err)
	}
	if second.AuthFields["api_key"] != MaskedValue || !reflect.DeepEqual(second.AuthFields, fetched.AuthFields) {
		t.Fatalf("expected create and get to agree on masked fields, got %#v vs %#v", second.AuthFields, fetched.AuthFields)
	}
	if second.AuthMethod != fetched.AuthMethod {
		t.Fatalf("expected create and get to agree on auth method, got %q vs %q", second.AuthMethod, fetched.AuthMethod)
	}

	revealed, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		CredentialID:   credentialID,
		Reveal:         true,
	})
	if err != nil {
		t.Fatalf("create revealing existing credential: %v", err)
	}
	if revealed.AuthFields["api_key"] != "sk_test_x" {
		t.Fatalf("expected stored credential to be revealed, got %#v", revealed.AuthFields)
	}

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "github",
		CredentialID:   credentialID,
		ConfigFields:   map[string]any{"repo_name": "acme/api"},
	})
	requireTextCode(t, err, ErrorConflict)

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: "org_2",
		ShortName:      "stripe",
		CredentialID:   credentialID,
	})
	requireTextCode(t, err, ErrorNotFound)
}

func TestCreateSourceConnection_InjectedToken(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	details, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "github",
		AccessToken:    "gho_injected",
		RefreshToken:   "ghr_injected",
		ConfigFields:   map[string]any{"repo_name": "acme/api"},
	})
	if err != nil {
		t.Fatalf("create with token: %v", err)
	}
	if details.AuthMethod != AuthMethodOAuthToken {
		t.Fatalf("expected oauth_token auth method, got %q", details.AuthMethod)
	}
	if details.SourceConnection.ConfigFields["branch"] != "main" {
		t.Fatalf("expected config default, got %#v", details.SourceConnection.ConfigFields)
	}

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		AccessToken:    "token",
	})
	requireTextCode(t, err, ErrorBadInput)
}

func TestCreateSourceConnection_DelegatedAuthProvider(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	provider, err := h.persistence.Stores().Connections().Create(ctx, Connection{
		OrganizationID:  testOrg,
		Name:            "Composio",
		IntegrationType: IntegrationTypeAuthProvider,
		ShortName:       "composio",
		Status:          ConnectionStatusActive,
	})
	if err != nil {
		t.Fatalf("seed provider connection: %v", err)
	}

	details, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID:           testOrg,
		ShortName:                "github",
		AuthProviderConnectionID: provider.ID,
		AuthProviderConfig:       map[string]any{"auth_config_id": "ac_1", "account_id": "acct_1"},
		ConfigFields:             map[string]any{"repo_name": "acme/api"},
	})
	if err != nil {
		t.Fatalf("create delegated: %v", err)
	}
	if details.AuthMethod != AuthMethodAuthProvider {
		t.Fatalf("expected auth_provider method, got %q", details.AuthMethod)
	}
	if details.SourceConnection.AuthProviderConnectionID != provider.ID {
		t.Fatalf("expected provider link on source connection")
	}
	if len(details.AuthFields) != 0 {
		t.Fatalf("expected no auth fields for delegated auth, got %#v", details.AuthFields)
	}
	if h.persistence.Counts()["integration_credentials"] != 0 {
		t.Fatalf("expected no credential for delegated auth")
	}

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID:           testOrg,
		ShortName:                "github",
		AuthProviderConnectionID: provider.ID,
		AuthProviderConfig:       map[string]any{"auth_config_id": "ac_1"},
		ConfigFields:             map[string]any{"repo_name": "acme/api"},
	})
	richErr := requireTextCode(t, err, ErrorValidationFailed)
	if richErr.Metadata["schema"] != "composio_config" {
		t.Fatalf("expected provider config schema in metadata, got %#v", richErr.Metadata)
	}

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID:           testOrg,
		ShortName:                "stripe",
		AuthProviderConnectionID: provider.ID,
	})
	requireTextCode(t, err, ErrorBadInput)

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID:           testOrg,
		ShortName:                "github",
		AuthProviderConnectionID: "missing",
		ConfigFields:             map[string]any{"repo_name": "acme/api"},
	})
	requireTextCode(t, err, ErrorNotFound)
}

func TestCreateSourceConnection_AuthResolutionFallbacks(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	_, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
	})
	requireTextCode(t, err, ErrorMissingAuthentication)

	details, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "public_feed",
	})
	if err != nil {
		t.Fatalf("create public feed: %v", err)
	}
	if details.AuthMethod != AuthMethodNone || details.AuthFields != nil {
		t.Fatalf("expected no auth, got %q %#v", details.AuthMethod, details.AuthFields)
	}
	connection, err := h.persistence.Stores().Connections().Get(ctx, testOrg, details.SourceConnection.ConnectionID)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if connection.IntegrationCredentialID != "" {
		t.Fatalf("expected connection without credential")
	}
}

func TestCreateSourceConnection_SchemaAndValidatorFailures(t *testing.T) {
	ctx := context.Background()

	h := newTestHarness(t)
	_, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		AuthFields:     map[string]any{"api_key": "pk_wrong"},
	})
	requireTextCode(t, err, ErrorValidationFailed)

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "broken",
		AuthFields:     map[string]any{"api_key": "sk_test_x"},
	})
	requireTextCode(t, err, ErrorConfiguration)

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID:       testOrg,
		ShortName:            "stripe",
		AuthFields:           map[string]any{"api_key": "sk_test_x"},
		ReadableCollectionID: "unknown-abc123",
	})
	requireTextCode(t, err, ErrorNotFound)

	rejecting := newTestHarness(t, WithCredentialValidator("stripe", stubValidator{err: errors.New("401 from upstream")}))
	_, err = rejecting.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		AuthFields:     map[string]any{"api_key": "sk_test_x"},
	})
	requireTextCode(t, err, ErrorUpstreamAuthFailed)

	for _, h := range []*testHarness{h, rejecting} {
		if counts := h.persistence.Counts(); counts["connections"] != 0 || counts["integration_credentials"] != 0 {
			t.Fatalf("expected nothing persisted, got %#v", counts)
		}
	}
}

func TestCreateSourceConnection_RevealReturnsPlaintext(t *testing.T) {
	h := newTestHarness(t)
	details, err := h.svc.CreateSourceConnection(context.Background(), CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "stripe",
		AuthFields:     map[string]any{"api_key": "sk_test_reveal"},
		Reveal:         true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if details.AuthFields["api_key"] != "sk_test_reveal" {
		t.Fatalf("expected plaintext api key, got %#v", details.AuthFields)
	}
}
