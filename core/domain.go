package core

import (
	"fmt"
	"strings"
	"time"
)

type AuthMethod string

const (
	AuthMethodNone         AuthMethod = "none"
	AuthMethodDirect       AuthMethod = "direct"
	AuthMethodOAuthBrowser AuthMethod = "oauth_browser"
	AuthMethodOAuthToken   AuthMethod = "oauth_token"
	AuthMethodOAuthBYOC    AuthMethod = "oauth_byoc"
	AuthMethodAuthProvider AuthMethod = "auth_provider"
)

func (m AuthMethod) IsOAuth() bool {
	switch m {
	case AuthMethodOAuthBrowser, AuthMethodOAuthToken, AuthMethodOAuthBYOC:
		return true
	default:
		return false
	}
}

type OAuthType string

const (
	OAuthTypeAccessOnly          OAuthType = "access_only"
	OAuthTypeWithRefresh         OAuthType = "with_refresh"
	OAuthTypeWithRotatingRefresh OAuthType = "with_rotating_refresh"
)

type IntegrationType string

const (
	IntegrationTypeSource       IntegrationType = "source"
	IntegrationTypeDestination  IntegrationType = "destination"
	IntegrationTypeAuthProvider IntegrationType = "auth_provider"
)

// Source is a catalog entry for a connector type. Rows are seeded at deploy time.
type Source struct {
	ShortName            string
	Name                 string
	Description          string
	Kind                 IntegrationType
	AuthMethod           AuthMethod
	OAuthType            OAuthType
	AuthSchema           string
	ConfigSchema         string
	RequiresBYOC         bool
	SupportsAuthProvider bool
	Labels               []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsManagedOAuth reports whether the source only accepts credentials through
// the OAuth handshake.
func (s Source) IsManagedOAuth() bool {
	return strings.TrimSpace(string(s.OAuthType)) != "" || s.AuthMethod.IsOAuth()
}

type IntegrationCredential struct {
	ID                   string
	OrganizationID       string
	Name                 string
	Description          string
	IntegrationShortName string
	AuthMethod           AuthMethod
	OAuthType            OAuthType
	EncryptedCredentials []byte
	EncryptionKeyID      string
	EncryptionVersion    int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "active"
	ConnectionStatusInactive ConnectionStatus = "inactive"
	ConnectionStatusError    ConnectionStatus = "error"
)

type Connection struct {
	ID                      string
	OrganizationID          string
	Name                    string
	IntegrationType         IntegrationType
	ShortName               string
	IntegrationCredentialID string
	Status                  ConnectionStatus
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// IsNative reports whether the connection is system-owned. Native connections
// have no organization and are never mutated through user paths.
func (c Connection) IsNative() bool {
	return strings.TrimSpace(c.OrganizationID) == ""
}

type Collection struct {
	ID             string
	OrganizationID string
	Name           string
	ReadableID     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SyncStatus string

const (
	SyncStatusActive   SyncStatus = "active"
	SyncStatusInactive SyncStatus = "inactive"
	SyncStatusPaused   SyncStatus = "paused"
)

type Sync struct {
	ID                       string
	OrganizationID           string
	Name                     string
	SourceConnectionID       string
	DestinationConnectionIDs []string
	CronSchedule             string
	NextScheduledRun         *time.Time
	Status                   SyncStatus
	RunImmediately           bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

type SyncJobStatus string

const (
	SyncJobStatusPending   SyncJobStatus = "pending"
	SyncJobStatusRunning   SyncJobStatus = "running"
	SyncJobStatusCompleted SyncJobStatus = "completed"
	SyncJobStatusFailed    SyncJobStatus = "failed"
	SyncJobStatusCancelled SyncJobStatus = "cancelled"
)

var syncJobTransitions = map[SyncJobStatus]map[SyncJobStatus]struct{}{
	SyncJobStatusPending: {
		SyncJobStatusRunning:   {},
		SyncJobStatusFailed:    {},
		SyncJobStatusCancelled: {},
	},
	SyncJobStatusRunning: {
		SyncJobStatusCompleted: {},
		SyncJobStatusFailed:    {},
		SyncJobStatusCancelled: {},
	},
}

// IsTerminal reports whether no further transitions are allowed.
func (s SyncJobStatus) IsTerminal() bool {
	switch s {
	case SyncJobStatusCompleted, SyncJobStatusFailed, SyncJobStatusCancelled:
		return true
	default:
		return false
	}
}

type SyncJob struct {
	ID               string
	SyncID           string
	OrganizationID   string
	Status           SyncJobStatus
	EntitiesInserted int
	EntitiesUpdated  int
	EntitiesDeleted  int
	EntitiesKept     int
	EntitiesSkipped  int
	StartedAt        *time.Time
	CompletedAt      *time.Time
	FailedAt         *time.Time
	Error            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (j *SyncJob) TransitionTo(next SyncJobStatus, at time.Time) error {
	if j == nil {
		return fmt.Errorf("core: sync job is nil")
	}
	if j.Status == next {
		return nil
	}
	allowed, ok := syncJobTransitions[j.Status]
	if !ok {
		return fmt.Errorf("core: invalid sync job transition %q -> %q", j.Status, next)
	}
	if _, ok := allowed[next]; !ok {
		return fmt.Errorf("core: invalid sync job transition %q -> %q", j.Status, next)
	}
	at = at.UTC()
	switch next {
	case SyncJobStatusRunning:
		j.StartedAt = &at
	case SyncJobStatusCompleted:
		j.CompletedAt = &at
	case SyncJobStatusFailed:
		j.FailedAt = &at
	}
	j.Status = next
	j.UpdatedAt = at
	return nil
}

type SourceConnectionStatus string

const (
	SourceConnectionStatusPendingAuth SourceConnectionStatus = "pending_auth"
	SourceConnectionStatusActive      SourceConnectionStatus = "active"
	SourceConnectionStatusInProgress  SourceConnectionStatus = "in_progress"
	SourceConnectionStatusError       SourceConnectionStatus = "error"
	SourceConnectionStatusInactive    SourceConnectionStatus = "inactive"
)

type SourceConnection struct {
	ID                       string
	OrganizationID           string
	Name                     string
	Description              string
	ShortName                string
	ConfigFields             map[string]any
	ConnectionID             string
	SyncID                   string
	ReadableCollectionID     string
	AuthProviderConnectionID string
	AuthProviderConfig       map[string]any
	ConnectionInitSessionID  string
	IsAuthenticated          bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// IsShell reports whether the source connection is waiting on an OAuth callback.
func (s SourceConnection) IsShell() bool {
	return !s.IsAuthenticated && strings.TrimSpace(s.ConnectionID) == ""
}

// DeriveSourceConnectionStatus computes the user-facing status from the
// aggregate, its sync and the most recent job of that sync.
func DeriveSourceConnectionStatus(sc SourceConnection, sync *Sync, latest *SyncJob) SourceConnectionStatus {
	if !sc.IsAuthenticated {
		return SourceConnectionStatusPendingAuth
	}
	if sync == nil || sync.Status != SyncStatusActive {
		return SourceConnectionStatusInactive
	}
	if latest == nil {
		return SourceConnectionStatusActive
	}
	switch latest.Status {
	case SyncJobStatusPending, SyncJobStatusRunning:
		return SourceConnectionStatusInProgress
	case SyncJobStatusFailed:
		return SourceConnectionStatusError
	default:
		return SourceConnectionStatusActive
	}
}

type InitSessionStatus string

const (
	InitSessionStatusPending   InitSessionStatus = "pending"
	InitSessionStatusCompleted InitSessionStatus = "completed"
)

type ConnectionInitSession struct {
	ID                 string
	OrganizationID     string
	ShortName          string
	State              string
	Payload            map[string]any
	Overrides          map[string]any
	Status             InitSessionStatus
	ExpiresAt          time.Time
	FinalConnectionID  string
	SourceConnectionID string
	RedirectURL        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsExpired reports whether the session lapsed at the given instant.
func (s ConnectionInitSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Entity struct {
	ID             string
	OrganizationID string
	SyncID         string
	EntityID       string
	Hash           string
	SyncJobID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CollectionStatus string

const (
	CollectionStatusNeedsSource  CollectionStatus = "NEEDS_SOURCE"
	CollectionStatusActive       CollectionStatus = "ACTIVE"
	CollectionStatusError        CollectionStatus = "ERROR"
	CollectionStatusPartialError CollectionStatus = "PARTIAL_ERROR"
)
