package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CreateSourceConnectionRequest struct {
	OrganizationID           string
	ShortName                string
	Name                     string
	Description              string
	ConfigFields             map[string]any
	ReadableCollectionID     string
	AuthProviderConnectionID string
	AuthProviderConfig       map[string]any
	CredentialID             string
	AuthFields               map[string]any
	AccessToken              string
	RefreshToken             string
	CronSchedule             *string
	RunImmediately           *bool
	Reveal                   bool
}

// SourceConnectionDetails is the caller-facing view of a source connection.
// AuthFields are masked unless the caller asked to reveal them.
type SourceConnectionDetails struct {
	SourceConnection SourceConnection
	Status           SourceConnectionStatus
	AuthMethod       AuthMethod
	AuthFields       map[string]any
	Sync             *Sync
	SyncJob          *SyncJob
}

type sourceConnectionCore struct {
	Name                     string
	Description              string
	ConfigFields             map[string]any
	ReadableCollectionID     string
	AuthProviderConnectionID string
	AuthProviderConfig       map[string]any
}

type sourceConnectionAux struct {
	CredentialID   string
	AuthFields     map[string]any
	AccessToken    string
	RefreshToken   string
	CronSchedule   *string
	RunImmediately *bool
	Reveal         bool
}

func splitCreateRequest(req CreateSourceConnectionRequest) (sourceConnectionCore, sourceConnectionAux) {
	return sourceConnectionCore{
			Name:                     strings.TrimSpace(req.Name),
			Description:              strings.TrimSpace(req.Description),
			ConfigFields:             req.ConfigFields,
			ReadableCollectionID:     strings.TrimSpace(req.ReadableCollectionID),
			AuthProviderConnectionID: strings.TrimSpace(req.AuthProviderConnectionID),
			AuthProviderConfig:       req.AuthProviderConfig,
		}, sourceConnectionAux{
			CredentialID:   strings.TrimSpace(req.CredentialID),
			AuthFields:     req.AuthFields,
			AccessToken:    strings.TrimSpace(req.AccessToken),
			RefreshToken:   strings.TrimSpace(req.RefreshToken),
			CronSchedule:   req.CronSchedule,
			RunImmediately: req.RunImmediately,
			Reveal:         req.Reveal,
		}
}

type authMode string

const (
	authModeDelegated  authMode = "auth_provider"
	authModeCredential authMode = "credential"
	authModeToken      authMode = "oauth_token"
	authModeFields     authMode = "auth_fields"
	authModeHandshake  authMode = "oauth_browser"
	authModeNone       authMode = "none"
)

// resolvedAuth is the outcome of auth resolution, ready to be persisted.
type resolvedAuth struct {
	mode                     authMode
	method                   AuthMethod
	existing                 *IntegrationCredential
	pending                  *IntegrationCredential
	fields                   map[string]any
	authProviderConnectionID string
	authProviderConfig       map[string]any
}

func (s *Service) CreateSourceConnection(ctx context.Context, req CreateSourceConnectionRequest) (details SourceConnectionDetails, err error) {
	if s == nil {
		return SourceConnectionDetails{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"organization_id": strings.TrimSpace(req.OrganizationID),
		"short_name":      strings.TrimSpace(req.ShortName),
	}
	defer func() {
		if details.SourceConnection.ID != "" {
			fields["source_connection_id"] = details.SourceConnection.ID
		}
		s.observeOperation(ctx, startedAt, "create_source_connection", err, fields)
	}()

	organizationID := strings.TrimSpace(req.OrganizationID)
	if organizationID == "" {
		return SourceConnectionDetails{}, s.mapError(BadInputError("organization_id", "organization_id is required"))
	}
	source, err := s.getSource(ctx, req.ShortName)
	if err != nil {
		return SourceConnectionDetails{}, s.mapError(err)
	}
	coreAttrs, auxAttrs := splitCreateRequest(req)

	auth, err := s.resolveAuth(ctx, organizationID, source, coreAttrs, auxAttrs)
	if err != nil {
		return SourceConnectionDetails{}, s.mapError(err)
	}
	configFields, err := s.validateConfigFields(source, coreAttrs.ConfigFields)
	if err != nil {
		return SourceConnectionDetails{}, s.mapError(err)
	}
	fields["auth_mode"] = string(auth.mode)

	result, err := s.provision(ctx, provisionPlan{
		OrganizationID:       organizationID,
		Source:               source,
		Name:                 coreAttrs.Name,
		Description:          coreAttrs.Description,
		ConfigFields:         configFields,
		ReadableCollectionID: coreAttrs.ReadableCollectionID,
		Auth:                 auth,
		CronSchedule:         s.cronSchedule(auxAttrs.CronSchedule),
		RunImmediately:       s.runImmediately(auxAttrs.RunImmediately),
	})
	if err != nil {
		return SourceConnectionDetails{}, s.mapError(err)
	}
	return s.presentProvisioned(ctx, result, auth, auxAttrs.Reveal), nil
}

func (s *Service) resolveAuth(
	ctx context.Context,
	organizationID string,
	source Source,
	coreAttrs sourceConnectionCore,
	aux sourceConnectionAux,
) (resolvedAuth, error) {
	switch {
	case coreAttrs.AuthProviderConnectionID != "":
		return s.resolveDelegatedAuth(ctx, organizationID, source, coreAttrs)
	case aux.CredentialID != "":
		return s.resolveExistingCredential(ctx, organizationID, source, aux.CredentialID)
	case aux.AccessToken != "":
		if !source.IsManagedOAuth() {
			return resolvedAuth{}, BadInputError("access_token", fmt.Sprintf("source %q does not use oauth tokens", source.ShortName))
		}
		tokenFields := map[string]any{"access_token": aux.AccessToken}
		if aux.RefreshToken != "" {
			tokenFields["refresh_token"] = aux.RefreshToken
		}
		return s.newCredentialAuth(ctx, organizationID, source, authModeToken, AuthMethodOAuthToken, tokenFields, coreAttrs.Name)
	case aux.AuthFields != nil:
		if source.IsManagedOAuth() {
			return resolvedAuth{}, ForbiddenError(
				fmt.Sprintf("source %q requires the oauth handshake; raw credentials are not accepted", source.ShortName),
				map[string]any{"short_name": source.ShortName, "handshake_required": true},
			)
		}
		schema, err := s.schemas.ResolveAuthSchema(source)
		if err != nil {
			return resolvedAuth{}, err
		}
		normalized, err := s.schemas.Validate(schema, aux.AuthFields)
		if err != nil {
			return resolvedAuth{}, err
		}
		return s.newCredentialAuth(ctx, organizationID, source, authModeFields, AuthMethodDirect, normalized, coreAttrs.Name)
	case source.AuthMethod == AuthMethodNone:
		return resolvedAuth{mode: authModeNone, method: AuthMethodNone}, nil
	default:
		return resolvedAuth{}, MissingAuthenticationError(source.ShortName)
	}
}

func (s *Service) resolveDelegatedAuth(ctx context.Context, organizationID string, source Source, coreAttrs sourceConnectionCore) (resolvedAuth, error) {
	if !source.SupportsAuthProvider {
		return resolvedAuth{}, BadInputError(
			"auth_provider_connection_id",
			fmt.Sprintf("source %q does not support auth providers", source.ShortName),
		)
	}
	providerConnection, err := s.persistence.Stores().Connections().Get(ctx, organizationID, coreAttrs.AuthProviderConnectionID)
	if err != nil {
		if isNotFound(err, ErrConnectionNotFound) {
			return resolvedAuth{}, NotFoundError("auth_provider_connection", coreAttrs.AuthProviderConnectionID)
		}
		return resolvedAuth{}, err
	}
	if providerConnection.IntegrationType != IntegrationTypeAuthProvider {
		return resolvedAuth{}, ConflictError(
			fmt.Sprintf("connection %q is not an auth provider", providerConnection.ID),
			map[string]any{"auth_provider_connection_id": providerConnection.ID},
		)
	}
	providerSource, err := s.getSource(ctx, providerConnection.ShortName)
	if err != nil {
		return resolvedAuth{}, err
	}
	schema, err := s.schemas.ResolveConfigSchema(providerSource)
	if err != nil {
		return resolvedAuth{}, err
	}
	config, err := s.schemas.Validate(schema, coreAttrs.AuthProviderConfig)
	if err != nil {
		return resolvedAuth{}, err
	}
	return resolvedAuth{
		mode:                     authModeDelegated,
		method:                   AuthMethodAuthProvider,
		authProviderConnectionID: providerConnection.ID,
		authProviderConfig:       config,
	}, nil
}

func (s *Service) resolveExistingCredential(ctx context.Context, organizationID string, source Source, credentialID string) (resolvedAuth, error) {
	credential, err := s.persistence.Stores().Credentials().Get(ctx, organizationID, credentialID)
	if err != nil {
		if isNotFound(err, ErrCredentialNotFound) {
			return resolvedAuth{}, NotFoundError("integration_credential", credentialID)
		}
		return resolvedAuth{}, err
	}
	if credential.IntegrationShortName != source.ShortName {
		return resolvedAuth{}, ConflictError(
			fmt.Sprintf("credential %q belongs to source %q", credential.ID, credential.IntegrationShortName),
			map[string]any{"credential_id": credential.ID, "short_name": source.ShortName},
		)
	}
	if credentialKind(credential.AuthMethod) != credentialKind(source.AuthMethod) {
		return resolvedAuth{}, ConflictError(
			fmt.Sprintf("credential %q has auth method %q, source %q expects %q", credential.ID, credential.AuthMethod, source.ShortName, source.AuthMethod),
			map[string]any{"credential_id": credential.ID, "short_name": source.ShortName},
		)
	}
	return resolvedAuth{
		mode:     authModeCredential,
		method:   credential.AuthMethod,
		existing: &credential,
	}, nil
}

func (s *Service) newCredentialAuth(
	ctx context.Context,
	organizationID string,
	source Source,
	mode authMode,
	method AuthMethod,
	fields map[string]any,
	name string,
) (resolvedAuth, error) {
	if err := s.validateLive(ctx, source, fields); err != nil {
		return resolvedAuth{}, err
	}
	credential, err := s.sealCredential(ctx, organizationID, source, method, fields, name)
	if err != nil {
		return resolvedAuth{}, err
	}
	return resolvedAuth{
		mode:    mode,
		method:  method,
		pending: &credential,
		fields:  fields,
	}, nil
}

// validateLive runs the optional per-source validator. A missing validator is
// not an error; a definite failure is.
func (s *Service) validateLive(ctx context.Context, source Source, fields map[string]any) error {
	validator, ok := s.credentialValidators[source.ShortName]
	if !ok || validator == nil {
		return nil
	}
	if err := validator.ValidateCredentials(ctx, source, copyAnyMap(fields)); err != nil {
		return UpstreamAuthError(source.ShortName, err)
	}
	return nil
}

func (s *Service) sealCredential(
	ctx context.Context,
	organizationID string,
	source Source,
	method AuthMethod,
	fields map[string]any,
	name string,
) (IntegrationCredential, error) {
	ciphertext, err := s.vault.Encrypt(ctx, fields)
	if err != nil {
		return IntegrationCredential{}, err
	}
	keyID, version := s.vault.KeyIdentity()
	if strings.TrimSpace(name) == "" {
		name = source.Name
	}
	return IntegrationCredential{
		ID:                   uuid.NewString(),
		OrganizationID:       organizationID,
		Name:                 strings.TrimSpace(name + " credential"),
		IntegrationShortName: source.ShortName,
		AuthMethod:           method,
		OAuthType:            source.OAuthType,
		EncryptedCredentials: ciphertext,
		EncryptionKeyID:      keyID,
		EncryptionVersion:    version,
	}, nil
}

func (s *Service) validateConfigFields(source Source, raw map[string]any) (map[string]any, error) {
	schema, err := s.schemas.ResolveConfigSchema(source)
	if err != nil {
		return nil, err
	}
	return s.schemas.Validate(schema, raw)
}

// credentialKind folds the oauth variants together so credentials can be
// matched against sources.
func credentialKind(method AuthMethod) string {
	if method.IsOAuth() {
		return "oauth"
	}
	return string(method)
}

func (s *Service) cronSchedule(requested *string) string {
	if requested != nil {
		return strings.TrimSpace(*requested)
	}
	return strings.TrimSpace(s.config.Sync.DefaultCronSchedule)
}

func (s *Service) runImmediately(requested *bool) bool {
	if requested != nil {
		return *requested
	}
	return s.config.Sync.RunImmediatelyDefault
}

type provisionPlan struct {
	OrganizationID       string
	Source               Source
	Name                 string
	Description          string
	ConfigFields         map[string]any
	ReadableCollectionID string
	Auth                 resolvedAuth
	CronSchedule         string
	RunImmediately       bool
	// Shell and InitSessionID are set when a handshake callback completes.
	Shell         *SourceConnection
	InitSessionID string
}

type provisionResult struct {
	SourceConnection SourceConnection
	Connection       Connection
	Collection       Collection
	Sync             Sync
	SyncJob          *SyncJob
}

// provision writes credential, connection, collection, sync and source
// connection in that order inside one transaction.
func (s *Service) provision(ctx context.Context, plan provisionPlan) (provisionResult, error) {
	name := plan.Name
	if name == "" {
		name = defaultConnectionName(plan.Source)
	}
	now := s.now()
	connectionID := uuid.NewString()

	var result provisionResult
	err := s.persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		if plan.InitSessionID != "" {
			if err := tx.InitSessions().MarkCompleted(ctx, plan.InitSessionID, connectionID, now); err != nil {
				return err
			}
		}

		credentialID := ""
		switch {
		case plan.Auth.existing != nil:
			credentialID = plan.Auth.existing.ID
		case plan.Auth.pending != nil:
			created, err := tx.Credentials().Create(ctx, *plan.Auth.pending)
			if err != nil {
				return err
			}
			credentialID = created.ID
		}

		connection, err := tx.Connections().Create(ctx, Connection{
			ID:                      connectionID,
			OrganizationID:          plan.OrganizationID,
			Name:                    name,
			IntegrationType:         IntegrationTypeSource,
			ShortName:               plan.Source.ShortName,
			IntegrationCredentialID: credentialID,
			Status:                  ConnectionStatusActive,
		})
		if err != nil {
			return err
		}

		readableID := plan.ReadableCollectionID
		if plan.Shell != nil {
			readableID = plan.Shell.ReadableCollectionID
		}
		collection, err := s.resolveCollection(ctx, tx, plan.OrganizationID, readableID, name)
		if err != nil {
			return err
		}

		sync, job, err := s.syncExecution.CreateAndRun(ctx, tx, SyncSpec{
			OrganizationID:     plan.OrganizationID,
			Name:               "Sync for " + name,
			SourceConnectionID: connection.ID,
			CronSchedule:       plan.CronSchedule,
			RunImmediately:     plan.RunImmediately,
		})
		if err != nil {
			return err
		}

		sc := SourceConnection{
			OrganizationID:           plan.OrganizationID,
			Name:                     name,
			Description:              plan.Description,
			ShortName:                plan.Source.ShortName,
			ConfigFields:             copyAnyMap(plan.ConfigFields),
			ConnectionID:             connection.ID,
			SyncID:                   sync.ID,
			ReadableCollectionID:     collection.ReadableID,
			AuthProviderConnectionID: plan.Auth.authProviderConnectionID,
			AuthProviderConfig:       copyAnyMap(plan.Auth.authProviderConfig),
			ConnectionInitSessionID:  plan.InitSessionID,
			IsAuthenticated:          true,
		}
		if plan.Shell != nil {
			sc.ID = plan.Shell.ID
			if plan.Shell.Description != "" && sc.Description == "" {
				sc.Description = plan.Shell.Description
			}
			sc, err = tx.SourceConnections().Update(ctx, sc)
		} else {
			sc.ID = uuid.NewString()
			sc, err = tx.SourceConnections().Create(ctx, sc)
		}
		if err != nil {
			return err
		}

		result = provisionResult{
			SourceConnection: sc,
			Connection:       connection,
			Collection:       collection,
			Sync:             sync,
			SyncJob:          job,
		}
		return nil
	})
	if err != nil {
		return provisionResult{}, err
	}
	return result, nil
}

func (s *Service) resolveCollection(ctx context.Context, tx TxStores, organizationID string, readableID string, name string) (Collection, error) {
	if readableID != "" {
		collection, err := tx.Collections().GetByReadableID(ctx, organizationID, readableID)
		if err != nil {
			if isNotFound(err, ErrCollectionNotFound) {
				return Collection{}, NotFoundError("collection", readableID)
			}
			return Collection{}, err
		}
		return collection, nil
	}
	generated, err := generateUniqueReadableID(ctx, tx.Collections(), name)
	if err != nil {
		return Collection{}, err
	}
	return tx.Collections().Create(ctx, Collection{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Name:           name,
		ReadableID:     generated,
	})
}

// presentProvisioned builds the create response. Auth fields go through the
// same view GetSourceConnection uses, so both responses agree for every auth
// mode.
func (s *Service) presentProvisioned(ctx context.Context, result provisionResult, auth resolvedAuth, reveal bool) SourceConnectionDetails {
	sync := result.Sync
	details := SourceConnectionDetails{
		SourceConnection: result.SourceConnection,
		Status:           DeriveSourceConnectionStatus(result.SourceConnection, &sync, result.SyncJob),
		AuthMethod:       auth.method,
		Sync:             &sync,
		SyncJob:          result.SyncJob,
	}
	if reveal && auth.fields != nil {
		details.AuthFields = copyAnyMap(auth.fields)
		return details
	}
	fields, method, err := s.credentialView(ctx, s.persistence.Stores(), result.SourceConnection, reveal)
	if err != nil {
		// the rows are committed, so fall back to the schema view
		s.logWarn(ctx, "auth field view unavailable after provisioning", map[string]any{
			"organization_id":      result.SourceConnection.OrganizationID,
			"source_connection_id": result.SourceConnection.ID,
			"error":                err.Error(),
		})
		if auth.existing != nil || auth.pending != nil {
			details.AuthFields = s.maskedAuthFields(ctx, result.SourceConnection.ShortName)
		}
		return details
	}
	details.AuthFields = fields
	if method != "" {
		details.AuthMethod = method
	}
	return details
}
