package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type sourceRecord struct {
	bun.BaseModel `bun:"table:sources,alias:src"`

	ShortName            string    `bun:"short_name,pk"`
	Name                 string    `bun:"name,notnull"`
	Description          string    `bun:"description,notnull"`
	Kind                 string    `bun:"kind,notnull"`
	AuthMethod           string    `bun:"auth_method,notnull"`
	OAuthType            string    `bun:"oauth_type,notnull"`
	AuthSchema           string    `bun:"auth_schema,notnull"`
	ConfigSchema         string    `bun:"config_schema,notnull"`
	RequiresBYOC         bool      `bun:"requires_byoc,notnull"`
	SupportsAuthProvider bool      `bun:"supports_auth_provider,notnull"`
	Labels               []string  `bun:"labels,type:jsonb,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:integration_credentials,alias:ic"`

	ID                   string    `bun:"id,pk"`
	OrganizationID       string    `bun:"organization_id,notnull"`
	Name                 string    `bun:"name,notnull"`
	Description          string    `bun:"description,notnull"`
	IntegrationShortName string    `bun:"integration_short_name,notnull"`
	AuthMethod           string    `bun:"auth_method,notnull"`
	OAuthType            string    `bun:"oauth_type,notnull"`
	EncryptedCredentials []byte    `bun:"encrypted_credentials,notnull"`
	EncryptionKeyID      string    `bun:"encryption_key_id,notnull"`
	EncryptionVersion    int       `bun:"encryption_version,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type connectionRecord struct {
	bun.BaseModel `bun:"table:connections,alias:cn"`

	ID                      string    `bun:"id,pk"`
	OrganizationID          string    `bun:"organization_id,nullzero"`
	Name                    string    `bun:"name,notnull"`
	IntegrationType         string    `bun:"integration_type,notnull"`
	ShortName               string    `bun:"short_name,notnull"`
	IntegrationCredentialID string    `bun:"integration_credential_id,nullzero"`
	Status                  string    `bun:"status,notnull"`
	CreatedAt               time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt               time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type collectionRecord struct {
	bun.BaseModel `bun:"table:collections,alias:col"`

	ID             string    `bun:"id,pk"`
	OrganizationID string    `bun:"organization_id,notnull"`
	Name           string    `bun:"name,notnull"`
	ReadableID     string    `bun:"readable_id,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncRecord struct {
	bun.BaseModel `bun:"table:syncs,alias:sy"`

	ID                       string     `bun:"id,pk"`
	OrganizationID           string     `bun:"organization_id,notnull"`
	Name                     string     `bun:"name,notnull"`
	SourceConnectionID       string     `bun:"source_connection_id,notnull"`
	DestinationConnectionIDs []string   `bun:"destination_connection_ids,type:jsonb,notnull"`
	CronSchedule             string     `bun:"cron_schedule,notnull"`
	NextScheduledRun         *time.Time `bun:"next_scheduled_run,nullzero"`
	Status                   string     `bun:"status,notnull"`
	RunImmediately           bool       `bun:"run_immediately,notnull"`
	CreatedAt                time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt                time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncJobRecord struct {
	bun.BaseModel `bun:"table:sync_jobs,alias:sj"`

	ID               string     `bun:"id,pk"`
	SyncID           string     `bun:"sync_id,notnull"`
	OrganizationID   string     `bun:"organization_id,notnull"`
	Status           string     `bun:"status,notnull"`
	EntitiesInserted int        `bun:"entities_inserted,notnull"`
	EntitiesUpdated  int        `bun:"entities_updated,notnull"`
	EntitiesDeleted  int        `bun:"entities_deleted,notnull"`
	EntitiesKept     int        `bun:"entities_kept,notnull"`
	EntitiesSkipped  int        `bun:"entities_skipped,notnull"`
	StartedAt        *time.Time `bun:"started_at,nullzero"`
	CompletedAt      *time.Time `bun:"completed_at,nullzero"`
	FailedAt         *time.Time `bun:"failed_at,nullzero"`
	Error            string     `bun:"error,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type sourceConnectionRecord struct {
	bun.BaseModel `bun:"table:source_connections,alias:scn"`

	ID                       string         `bun:"id,pk"`
	OrganizationID           string         `bun:"organization_id,notnull"`
	Name                     string         `bun:"name,notnull"`
	Description              string         `bun:"description,notnull"`
	ShortName                string         `bun:"short_name,notnull"`
	ConfigFields             map[string]any `bun:"config_fields,type:jsonb,notnull"`
	ConnectionID             string         `bun:"connection_id,nullzero"`
	SyncID                   string         `bun:"sync_id,nullzero"`
	ReadableCollectionID     string         `bun:"readable_collection_id,notnull"`
	AuthProviderConnectionID string         `bun:"auth_provider_connection_id,nullzero"`
	AuthProviderConfig       map[string]any `bun:"auth_provider_config,type:jsonb,notnull"`
	ConnectionInitSessionID  string         `bun:"connection_init_session_id,nullzero"`
	IsAuthenticated          bool           `bun:"is_authenticated,notnull"`
	CreatedAt                time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt                time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type initSessionRecord struct {
	bun.BaseModel `bun:"table:connection_init_sessions,alias:cis"`

	ID                 string         `bun:"id,pk"`
	OrganizationID     string         `bun:"organization_id,notnull"`
	ShortName          string         `bun:"short_name,notnull"`
	State              string         `bun:"state,notnull"`
	Payload            map[string]any `bun:"payload,type:jsonb,notnull"`
	Overrides          map[string]any `bun:"overrides,type:jsonb,notnull"`
	Status             string         `bun:"status,notnull"`
	ExpiresAt          time.Time      `bun:"expires_at,notnull"`
	FinalConnectionID  string         `bun:"final_connection_id,nullzero"`
	SourceConnectionID string         `bun:"source_connection_id,nullzero"`
	RedirectURL        string         `bun:"redirect_url,notnull"`
	CreatedAt          time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type entityRecord struct {
	bun.BaseModel `bun:"table:entities,alias:ent"`

	ID             string    `bun:"id,pk"`
	OrganizationID string    `bun:"organization_id,notnull"`
	SyncID         string    `bun:"sync_id,notnull"`
	EntityID       string    `bun:"entity_id,notnull"`
	Hash           string    `bun:"hash,notnull"`
	SyncJobID      string    `bun:"sync_job_id,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
