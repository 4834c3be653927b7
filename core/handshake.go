package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const handshakeStateBytes = 24

type BeginHandshakeRequest struct {
	OrganizationID       string
	ShortName            string
	Name                 string
	Description          string
	ConfigFields         map[string]any
	ReadableCollectionID string
	CronSchedule         *string
	RunImmediately       *bool
	Overrides            ClientOverrides
	// RedirectURL is where the caller wants the browser sent once the
	// callback resolves.
	RedirectURL string
}

type BeginHandshakeResult struct {
	SessionID        string
	SourceConnection SourceConnection
	AuthorizationURL string
	ExpiresAt        time.Time
}

type CompleteHandshakeRequest struct {
	State string
	Code  string
}

type CompleteHandshakeResult struct {
	SourceConnectionDetails
	RedirectURL string
}

// BeginHandshake stores a pending session and a shell source connection and
// returns the provider authorization URL. No connection or sync exists until
// the callback completes.
func (s *Service) BeginHandshake(ctx context.Context, req BeginHandshakeRequest) (result BeginHandshakeResult, err error) {
	if s == nil {
		return BeginHandshakeResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"organization_id": strings.TrimSpace(req.OrganizationID),
		"short_name":      strings.TrimSpace(req.ShortName),
	}
	defer func() {
		if result.SessionID != "" {
			fields["session_id"] = result.SessionID
			fields["source_connection_id"] = result.SourceConnection.ID
		}
		s.observeOperation(ctx, startedAt, "begin_handshake", err, fields)
	}()

	organizationID := strings.TrimSpace(req.OrganizationID)
	if organizationID == "" {
		return BeginHandshakeResult{}, s.mapError(BadInputError("organization_id", "organization_id is required"))
	}
	if s.oauthClient == nil {
		return BeginHandshakeResult{}, s.mapError(ConfigurationError("oauth provider client is not configured", nil))
	}
	source, err := s.getSource(ctx, req.ShortName)
	if err != nil {
		return BeginHandshakeResult{}, s.mapError(err)
	}
	if !source.IsManagedOAuth() {
		return BeginHandshakeResult{}, s.mapError(BadInputError(
			"short_name",
			fmt.Sprintf("source %q does not use the oauth handshake", source.ShortName),
		))
	}
	configFields, err := s.validateConfigFields(source, req.ConfigFields)
	if err != nil {
		return BeginHandshakeResult{}, s.mapError(err)
	}
	overrides := normalizeOverrides(req.Overrides)
	if source.RequiresBYOC || source.AuthMethod == AuthMethodOAuthBYOC {
		if overrides.ClientID == "" || overrides.ClientSecret == "" {
			return BeginHandshakeResult{}, s.mapError(BadInputError(
				"overrides.client_id",
				fmt.Sprintf("source %q requires client_id and client_secret", source.ShortName),
			))
		}
	}

	settings, err := s.oauthSettings.OAuthSettings(ctx, source.ShortName)
	if err != nil {
		return BeginHandshakeResult{}, s.mapError(err)
	}
	state, err := generateHandshakeState()
	if err != nil {
		return BeginHandshakeResult{}, s.mapError(err)
	}
	callback, err := s.callbackURL(ctx, organizationID, source.ShortName)
	if err != nil {
		return BeginHandshakeResult{}, s.mapError(err)
	}
	authorizationURL, err := s.oauthClient.AuthorizationURL(ctx, settings, callback, state, overrides)
	if err != nil {
		return BeginHandshakeResult{}, s.mapError(UpstreamAuthError(source.ShortName, err))
	}
	sealedOverrides, err := s.sealOverrides(ctx, overrides)
	if err != nil {
		return BeginHandshakeResult{}, s.mapError(err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultConnectionName(source)
	}
	expiresAt := s.now().Add(s.config.Handshake.TTL())
	payload := map[string]any{
		"name":            name,
		"description":     strings.TrimSpace(req.Description),
		"config_fields":   configFields,
		"cron_schedule":   s.cronSchedule(req.CronSchedule),
		"run_immediately": s.runImmediately(req.RunImmediately),
	}

	err = s.persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		collection, err := s.resolveCollection(ctx, tx, organizationID, strings.TrimSpace(req.ReadableCollectionID), name)
		if err != nil {
			return err
		}
		sessionID := uuid.NewString()
		shell, err := tx.SourceConnections().Create(ctx, SourceConnection{
			ID:                      uuid.NewString(),
			OrganizationID:          organizationID,
			Name:                    name,
			Description:             strings.TrimSpace(req.Description),
			ShortName:               source.ShortName,
			ConfigFields:            copyAnyMap(configFields),
			ReadableCollectionID:    collection.ReadableID,
			ConnectionInitSessionID: sessionID,
			IsAuthenticated:         false,
		})
		if err != nil {
			return err
		}
		session, err := tx.InitSessions().Create(ctx, ConnectionInitSession{
			ID:                 sessionID,
			OrganizationID:     organizationID,
			ShortName:          source.ShortName,
			State:              state,
			Payload:            payload,
			Overrides:          sealedOverrides,
			Status:             InitSessionStatusPending,
			ExpiresAt:          expiresAt,
			SourceConnectionID: shell.ID,
			RedirectURL:        strings.TrimSpace(req.RedirectURL),
		})
		if err != nil {
			return err
		}
		result = BeginHandshakeResult{
			SessionID:        session.ID,
			SourceConnection: shell,
			AuthorizationURL: authorizationURL,
			ExpiresAt:        session.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return BeginHandshakeResult{}, s.mapError(err)
	}
	return result, nil
}

// CompleteHandshake consumes the session identified by state, exchanges the
// authorization code and provisions the connection into the shell created
// by BeginHandshake.
func (s *Service) CompleteHandshake(ctx context.Context, req CompleteHandshakeRequest) (result CompleteHandshakeResult, err error) {
	if s == nil {
		return CompleteHandshakeResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		if result.SourceConnection.ID != "" {
			fields["source_connection_id"] = result.SourceConnection.ID
		}
		s.observeOperation(ctx, startedAt, "complete_handshake", err, fields)
	}()

	state := strings.TrimSpace(req.State)
	code := strings.TrimSpace(req.Code)
	if state == "" {
		return CompleteHandshakeResult{}, s.mapError(BadInputError("state", "state is required"))
	}
	if code == "" {
		return CompleteHandshakeResult{}, s.mapError(BadInputError("code", "code is required"))
	}
	if s.oauthClient == nil {
		return CompleteHandshakeResult{}, s.mapError(ConfigurationError("oauth provider client is not configured", nil))
	}

	session, err := s.persistence.Stores().InitSessions().GetByState(ctx, state)
	if err != nil {
		if isNotFound(err, ErrInitSessionNotFound) {
			return CompleteHandshakeResult{}, s.mapError(NotFoundError("connection_init_session", ""))
		}
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	fields["organization_id"] = session.OrganizationID
	fields["short_name"] = session.ShortName
	fields["session_id"] = session.ID

	if session.Status != InitSessionStatusPending {
		return CompleteHandshakeResult{}, s.mapError(InvalidStateError(
			"connection init session was already completed",
			map[string]any{"session_id": session.ID, "status": string(session.Status)},
		))
	}
	if session.IsExpired(s.now()) {
		return CompleteHandshakeResult{}, s.mapError(NotFoundError("connection_init_session", session.ID))
	}

	source, err := s.getSource(ctx, session.ShortName)
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	shell, err := s.persistence.Stores().SourceConnections().Get(ctx, session.OrganizationID, session.SourceConnectionID)
	if err != nil {
		if isNotFound(err, ErrSourceConnectionNotFound) {
			return CompleteHandshakeResult{}, s.mapError(NotFoundError("source_connection", session.SourceConnectionID))
		}
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	overrides, err := s.openOverrides(ctx, session.Overrides)
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	settings, err := s.oauthSettings.OAuthSettings(ctx, source.ShortName)
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	callback, err := s.callbackURL(ctx, session.OrganizationID, source.ShortName)
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	token, err := s.oauthClient.ExchangeCode(ctx, settings, code, callback, overrides)
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(UpstreamAuthError(source.ShortName, err))
	}

	tokenFields, err := s.validateTokenFields(source, token, overrides)
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	configFields, err := s.validateConfigFields(source, payloadMap(session.Payload, "config_fields"))
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	method := source.AuthMethod
	if !method.IsOAuth() {
		method = AuthMethodOAuthBrowser
	}
	credential, err := s.sealCredential(ctx, session.OrganizationID, source, method, tokenFields, shell.Name)
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	auth := resolvedAuth{
		mode:    authModeHandshake,
		method:  method,
		pending: &credential,
		fields:  tokenFields,
	}

	cron := payloadString(session.Payload, "cron_schedule")
	provisioned, err := s.provision(ctx, provisionPlan{
		OrganizationID: session.OrganizationID,
		Source:         source,
		Name:           shell.Name,
		Description:    shell.Description,
		ConfigFields:   configFields,
		Auth:           auth,
		CronSchedule:   s.cronSchedule(&cron),
		RunImmediately: payloadBool(session.Payload, "run_immediately", s.config.Sync.RunImmediatelyDefault),
		Shell:          &shell,
		InitSessionID:  session.ID,
	})
	if err != nil {
		return CompleteHandshakeResult{}, s.mapError(err)
	}
	return CompleteHandshakeResult{
		SourceConnectionDetails: s.presentProvisioned(ctx, provisioned, auth, false),
		RedirectURL:             session.RedirectURL,
	}, nil
}

func (s *Service) validateTokenFields(source Source, token TokenResponse, overrides ClientOverrides) (map[string]any, error) {
	accessToken := strings.TrimSpace(token.AccessToken)
	if accessToken == "" {
		return nil, UpstreamAuthError(source.ShortName, fmt.Errorf("token response has no access_token"))
	}
	raw := map[string]any{"access_token": accessToken}
	if refresh := strings.TrimSpace(token.RefreshToken); refresh != "" {
		raw["refresh_token"] = refresh
	}
	if overrides.ClientID != "" {
		raw["client_id"] = overrides.ClientID
	}
	if overrides.ClientSecret != "" {
		raw["client_secret"] = overrides.ClientSecret
	}
	if strings.TrimSpace(source.AuthSchema) == "" {
		return raw, nil
	}
	schema, err := s.schemas.ResolveAuthSchema(source)
	if err != nil {
		return nil, err
	}
	return s.schemas.Validate(schema, raw)
}

func (s *Service) sealOverrides(ctx context.Context, overrides ClientOverrides) (map[string]any, error) {
	if overrides.IsZero() {
		return map[string]any{}, nil
	}
	scopes := make([]any, 0, len(overrides.Scopes))
	for _, scope := range overrides.Scopes {
		scopes = append(scopes, scope)
	}
	ciphertext, err := s.vault.Encrypt(ctx, map[string]any{
		"client_id":     overrides.ClientID,
		"client_secret": overrides.ClientSecret,
		"scopes":        scopes,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"sealed": base64.StdEncoding.EncodeToString(ciphertext)}, nil
}

func (s *Service) openOverrides(ctx context.Context, stored map[string]any) (ClientOverrides, error) {
	sealed, _ := stored["sealed"].(string)
	if strings.TrimSpace(sealed) == "" {
		return ClientOverrides{}, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return ClientOverrides{}, fmt.Errorf("core: decode session overrides: %w", err)
	}
	opened, err := s.vault.Decrypt(ctx, ciphertext)
	if err != nil {
		return ClientOverrides{}, err
	}
	overrides := ClientOverrides{
		ClientID:     payloadString(opened, "client_id"),
		ClientSecret: payloadString(opened, "client_secret"),
	}
	if scopes, ok := opened["scopes"].([]any); ok {
		for _, scope := range scopes {
			if value, ok := scope.(string); ok {
				overrides.Scopes = append(overrides.Scopes, value)
			}
		}
	}
	return overrides, nil
}

func normalizeOverrides(in ClientOverrides) ClientOverrides {
	return ClientOverrides{
		ClientID:     strings.TrimSpace(in.ClientID),
		ClientSecret: strings.TrimSpace(in.ClientSecret),
		Scopes:       trimStrings(in.Scopes),
	}
}

func generateHandshakeState() (string, error) {
	buf := make([]byte, handshakeStateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: generate handshake state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func defaultConnectionName(source Source) string {
	name := strings.TrimSpace(source.Name)
	if name == "" {
		name = source.ShortName
	}
	return name + " connection"
}

func payloadMap(payload map[string]any, key string) map[string]any {
	value, ok := payload[key].(map[string]any)
	if !ok {
		return nil
	}
	return value
}

func payloadString(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return strings.TrimSpace(value)
}

func payloadBool(payload map[string]any, key string, fallback bool) bool {
	value, ok := payload[key].(bool)
	if !ok {
		return fallback
	}
	return value
}
