package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type SourceCatalog interface {
	GetSource(ctx context.Context, shortName string) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)
}

type SourceWriter interface {
	UpsertSource(ctx context.Context, source Source) (Source, error)
}

type CredentialStore interface {
	Create(ctx context.Context, credential IntegrationCredential) (IntegrationCredential, error)
	Get(ctx context.Context, organizationID string, id string) (IntegrationCredential, error)
	Delete(ctx context.Context, organizationID string, id string) error
}

type ConnectionStore interface {
	Create(ctx context.Context, connection Connection) (Connection, error)
	Get(ctx context.Context, organizationID string, id string) (Connection, error)
	// Delete never removes native connections.
	Delete(ctx context.Context, organizationID string, id string) error
	CountByCredential(ctx context.Context, credentialID string) (int, error)
}

type CollectionStore interface {
	Create(ctx context.Context, collection Collection) (Collection, error)
	GetByReadableID(ctx context.Context, organizationID string, readableID string) (Collection, error)
	ReadableIDExists(ctx context.Context, readableID string) (bool, error)
}

type SyncStore interface {
	Create(ctx context.Context, sync Sync) (Sync, error)
	Get(ctx context.Context, organizationID string, id string) (Sync, error)
	Delete(ctx context.Context, organizationID string, id string) error
}

type SyncJobStore interface {
	Create(ctx context.Context, job SyncJob) (SyncJob, error)
	Get(ctx context.Context, id string) (SyncJob, error)
	Update(ctx context.Context, job SyncJob) (SyncJob, error)
	ListBySync(ctx context.Context, syncID string, limit int) ([]SyncJob, error)
	LatestBySync(ctx context.Context, syncID string) (SyncJob, error)
	DeleteBySync(ctx context.Context, syncID string) error
}

type SourceConnectionFilter struct {
	ReadableCollectionID string
	Limit                int
	Offset               int
}

type SourceConnectionStore interface {
	Create(ctx context.Context, sc SourceConnection) (SourceConnection, error)
	Update(ctx context.Context, sc SourceConnection) (SourceConnection, error)
	Get(ctx context.Context, organizationID string, id string) (SourceConnection, error)
	List(ctx context.Context, organizationID string, filter SourceConnectionFilter) ([]SourceConnection, error)
	Delete(ctx context.Context, organizationID string, id string) error
}

type InitSessionStore interface {
	Create(ctx context.Context, session ConnectionInitSession) (ConnectionInitSession, error)
	GetByState(ctx context.Context, state string) (ConnectionInitSession, error)
	// MarkCompleted flips a pending, unexpired session to completed. It
	// returns ErrInitSessionNotPending when another writer already completed
	// it and ErrInitSessionNotFound when the session lapsed at the given time.
	MarkCompleted(ctx context.Context, id string, finalConnectionID string, at time.Time) error
}

// UpsertEntity is one observed upstream record. When Hash is empty the diff
// engine derives it from Payload.
type UpsertEntity struct {
	EntityID string
	Hash     string
	Payload  any
}

type EntityStore interface {
	GetMany(ctx context.Context, syncID string, entityIDs []string) (map[string]Entity, error)
	// Upsert writes the rows and stamps them with jobID unless a later job
	// already owns the row.
	Upsert(ctx context.Context, organizationID string, syncID string, jobID string, records []UpsertEntity) ([]Entity, error)
	Stamp(ctx context.Context, syncID string, jobID string, entityIDs []string) (int, error)
	ListNotStamped(ctx context.Context, syncID string, jobID string) ([]Entity, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteBySync(ctx context.Context, syncID string) error
}

// TxStores groups stores bound to a single transaction.
type TxStores interface {
	Credentials() CredentialStore
	Connections() ConnectionStore
	Collections() CollectionStore
	Syncs() SyncStore
	SyncJobs() SyncJobStore
	SourceConnections() SourceConnectionStore
	InitSessions() InitSessionStore
	Entities() EntityStore
	// AfterCommit registers fn to run once the transaction commits.
	AfterCommit(fn func(ctx context.Context))
}

type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error
}

// Persistence is the full storage surface the service needs: a transaction
// boundary plus non-transactional reads.
type Persistence interface {
	UnitOfWork
	Stores() TxStores
}

type SyncSpec struct {
	OrganizationID           string
	Name                     string
	SourceConnectionID       string
	DestinationConnectionIDs []string
	CronSchedule             string
	RunImmediately           bool
}

type SyncExecutionService interface {
	CreateAndRun(ctx context.Context, tx TxStores, spec SyncSpec) (Sync, *SyncJob, error)
	Trigger(ctx context.Context, organizationID string, syncID string) (SyncJob, error)
	ListJobs(ctx context.Context, organizationID string, syncID string, limit int) ([]SyncJob, error)
}

type OAuthSettings struct {
	ShortName          string
	AuthURL            string
	TokenURL           string
	ClientID           string
	ClientSecret       string
	ClientSecretInBody bool
	Scopes             []string
	ExtraAuthParams    map[string]string
}

// ClientOverrides carries bring-your-own-client credentials for a single
// handshake.
type ClientOverrides struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func (o ClientOverrides) IsZero() bool {
	return o.ClientID == "" && o.ClientSecret == "" && len(o.Scopes) == 0
}

type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

type OAuthProviderClient interface {
	AuthorizationURL(ctx context.Context, settings OAuthSettings, redirectURI string, state string, overrides ClientOverrides) (string, error)
	ExchangeCode(ctx context.Context, settings OAuthSettings, code string, redirectURI string, overrides ClientOverrides) (TokenResponse, error)
}

type OAuthSettingsProvider interface {
	OAuthSettings(ctx context.Context, shortName string) (OAuthSettings, error)
}

type DestinationCleanup interface {
	DeleteBySyncID(ctx context.Context, syncID string) error
}

// CredentialValidator performs optional live validation against a source.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context, source Source, fields map[string]any) error
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeyedSecretProvider exposes the key identity stamped on encrypted rows.
type KeyedSecretProvider interface {
	SecretProvider
	KeyID() string
	Version() int
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

// JobNackDisposition says what the queue does with a delivery that was not
// acked.
type JobNackDisposition string

const (
	JobNackRetry      JobNackDisposition = "retry"
	JobNackDeadLetter JobNackDisposition = "dead_letter"
	JobNackFailed     JobNackDisposition = "failed"
)

// JobNackOptions hands a delivery back to the queue. An empty Disposition
// means retry.
type JobNackOptions struct {
	Disposition JobNackDisposition
	Delay       time.Duration
	Reason      string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

// JobWorkerHook observes sync worker deliveries. Attempt is 1-based.
type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type StoreProvider interface {
	Persistence() Persistence
	SourceCatalog() SourceCatalog
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}
