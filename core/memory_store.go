package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryPersistence keeps every entity in process memory. Transactions are
// serialized and roll back by restoring a snapshot taken when they start.
type MemoryPersistence struct {
	mu   sync.Mutex
	data *memoryData
	now  func() time.Time
}

type memoryData struct {
	sources           map[string]Source
	credentials       map[string]IntegrationCredential
	connections       map[string]Connection
	collections       map[string]Collection
	syncs             map[string]Sync
	jobs              map[string]SyncJob
	sourceConnections map[string]SourceConnection
	sessions          map[string]ConnectionInitSession
	entities          map[string]Entity
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		data: newMemoryData(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func newMemoryData() *memoryData {
	return &memoryData{
		sources:           map[string]Source{},
		credentials:       map[string]IntegrationCredential{},
		connections:       map[string]Connection{},
		collections:       map[string]Collection{},
		syncs:             map[string]Sync{},
		jobs:              map[string]SyncJob{},
		sourceConnections: map[string]SourceConnection{},
		sessions:          map[string]ConnectionInitSession{},
		entities:          map[string]Entity{},
	}
}

func (d *memoryData) clone() *memoryData {
	out := newMemoryData()
	for key, value := range d.sources {
		out.sources[key] = value
	}
	for key, value := range d.credentials {
		value.EncryptedCredentials = append([]byte(nil), value.EncryptedCredentials...)
		out.credentials[key] = value
	}
	for key, value := range d.connections {
		out.connections[key] = value
	}
	for key, value := range d.collections {
		out.collections[key] = value
	}
	for key, value := range d.syncs {
		value.DestinationConnectionIDs = append([]string(nil), value.DestinationConnectionIDs...)
		out.syncs[key] = value
	}
	for key, value := range d.jobs {
		out.jobs[key] = value
	}
	for key, value := range d.sourceConnections {
		out.sourceConnections[key] = cloneSourceConnection(value)
	}
	for key, value := range d.sessions {
		value.Payload = copyAnyMap(value.Payload)
		value.Overrides = copyAnyMap(value.Overrides)
		out.sessions[key] = value
	}
	for key, value := range d.entities {
		out.entities[key] = value
	}
	return out
}

// Counts reports row totals per table. Useful for atomicity assertions.
func (p *MemoryPersistence) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]int{
		"integration_credentials":  len(p.data.credentials),
		"connections":              len(p.data.connections),
		"collections":              len(p.data.collections),
		"syncs":                    len(p.data.syncs),
		"sync_jobs":                len(p.data.jobs),
		"source_connections":       len(p.data.sourceConnections),
		"connection_init_sessions": len(p.data.sessions),
		"entities":                 len(p.data.entities),
	}
}

func (p *MemoryPersistence) RunInTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error {
	if p == nil {
		return fmt.Errorf("core: memory persistence is nil")
	}
	if fn == nil {
		return fmt.Errorf("core: transaction callback is required")
	}
	p.mu.Lock()
	snapshot := p.data.clone()
	tx := &memoryTx{p: p, inTx: true}
	err := fn(ctx, tx)
	if err != nil {
		p.data = snapshot
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()
	for _, hook := range tx.afterCommit {
		hook(ctx)
	}
	return nil
}

func (p *MemoryPersistence) Stores() TxStores {
	return &memoryTx{p: p}
}

func (p *MemoryPersistence) GetSource(_ context.Context, shortName string) (Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	source, ok := p.data.sources[strings.TrimSpace(shortName)]
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrSourceNotFound, shortName)
	}
	return source, nil
}

func (p *MemoryPersistence) ListSources(context.Context) ([]Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Source, 0, len(p.data.sources))
	for _, source := range p.data.sources {
		out = append(out, source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShortName < out[j].ShortName })
	return out, nil
}

func (p *MemoryPersistence) UpsertSource(_ context.Context, source Source) (Source, error) {
	source.ShortName = strings.TrimSpace(source.ShortName)
	if source.ShortName == "" {
		return Source{}, fmt.Errorf("core: source short_name is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if existing, ok := p.data.sources[source.ShortName]; ok {
		source.CreatedAt = existing.CreatedAt
	} else {
		source.CreatedAt = now
	}
	source.UpdatedAt = now
	p.data.sources[source.ShortName] = source
	return source, nil
}

type memoryTx struct {
	p           *MemoryPersistence
	inTx        bool
	afterCommit []func(ctx context.Context)
}

func (t *memoryTx) with(fn func(d *memoryData) error) error {
	if !t.inTx {
		t.p.mu.Lock()
		defer t.p.mu.Unlock()
	}
	return fn(t.p.data)
}

func (t *memoryTx) now() time.Time {
	return t.p.now()
}

func (t *memoryTx) AfterCommit(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	if !t.inTx {
		fn(context.Background())
		return
	}
	t.afterCommit = append(t.afterCommit, fn)
}

func (t *memoryTx) Credentials() CredentialStore             { return memoryCredentials{t} }
func (t *memoryTx) Connections() ConnectionStore             { return memoryConnections{t} }
func (t *memoryTx) Collections() CollectionStore             { return memoryCollections{t} }
func (t *memoryTx) Syncs() SyncStore                         { return memorySyncs{t} }
func (t *memoryTx) SyncJobs() SyncJobStore                   { return memorySyncJobs{t} }
func (t *memoryTx) SourceConnections() SourceConnectionStore { return memorySourceConnections{t} }
func (t *memoryTx) InitSessions() InitSessionStore           { return memoryInitSessions{t} }
func (t *memoryTx) Entities() EntityStore                    { return memoryEntities{t} }

func ensureID(id string) string {
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		return trimmed
	}
	return uuid.NewString()
}

type memoryCredentials struct{ tx *memoryTx }

func (s memoryCredentials) Create(_ context.Context, credential IntegrationCredential) (IntegrationCredential, error) {
	err := s.tx.with(func(d *memoryData) error {
		credential.ID = ensureID(credential.ID)
		now := s.tx.now()
		credential.CreatedAt, credential.UpdatedAt = now, now
		credential.EncryptedCredentials = append([]byte(nil), credential.EncryptedCredentials...)
		d.credentials[credential.ID] = credential
		return nil
	})
	return credential, err
}

func (s memoryCredentials) Get(_ context.Context, organizationID string, id string) (IntegrationCredential, error) {
	var out IntegrationCredential
	err := s.tx.with(func(d *memoryData) error {
		credential, ok := d.credentials[strings.TrimSpace(id)]
		if !ok || credential.OrganizationID != strings.TrimSpace(organizationID) {
			return fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
		}
		out = credential
		return nil
	})
	return out, err
}

func (s memoryCredentials) Delete(_ context.Context, organizationID string, id string) error {
	return s.tx.with(func(d *memoryData) error {
		credential, ok := d.credentials[strings.TrimSpace(id)]
		if !ok || credential.OrganizationID != strings.TrimSpace(organizationID) {
			return fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
		}
		delete(d.credentials, credential.ID)
		return nil
	})
}

type memoryConnections struct{ tx *memoryTx }

func (s memoryConnections) Create(_ context.Context, connection Connection) (Connection, error) {
	err := s.tx.with(func(d *memoryData) error {
		connection.ID = ensureID(connection.ID)
		now := s.tx.now()
		connection.CreatedAt, connection.UpdatedAt = now, now
		d.connections[connection.ID] = connection
		return nil
	})
	return connection, err
}

func (s memoryConnections) Get(_ context.Context, organizationID string, id string) (Connection, error) {
	var out Connection
	err := s.tx.with(func(d *memoryData) error {
		connection, ok := d.connections[strings.TrimSpace(id)]
		if !ok || (!connection.IsNative() && connection.OrganizationID != strings.TrimSpace(organizationID)) {
			return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
		}
		out = connection
		return nil
	})
	return out, err
}

func (s memoryConnections) Delete(_ context.Context, organizationID string, id string) error {
	return s.tx.with(func(d *memoryData) error {
		connection, ok := d.connections[strings.TrimSpace(id)]
		if !ok || connection.IsNative() || connection.OrganizationID != strings.TrimSpace(organizationID) {
			return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
		}
		delete(d.connections, connection.ID)
		return nil
	})
}

func (s memoryConnections) CountByCredential(_ context.Context, credentialID string) (int, error) {
	count := 0
	err := s.tx.with(func(d *memoryData) error {
		for _, connection := range d.connections {
			if connection.IntegrationCredentialID == strings.TrimSpace(credentialID) {
				count++
			}
		}
		return nil
	})
	return count, err
}

type memoryCollections struct{ tx *memoryTx }

func (s memoryCollections) Create(_ context.Context, collection Collection) (Collection, error) {
	err := s.tx.with(func(d *memoryData) error {
		for _, existing := range d.collections {
			if existing.ReadableID == collection.ReadableID {
				return fmt.Errorf("%w: %s", ErrReadableIDTaken, collection.ReadableID)
			}
		}
		collection.ID = ensureID(collection.ID)
		now := s.tx.now()
		collection.CreatedAt, collection.UpdatedAt = now, now
		d.collections[collection.ID] = collection
		return nil
	})
	return collection, err
}

func (s memoryCollections) GetByReadableID(_ context.Context, organizationID string, readableID string) (Collection, error) {
	var out Collection
	err := s.tx.with(func(d *memoryData) error {
		for _, collection := range d.collections {
			if collection.ReadableID == strings.TrimSpace(readableID) && collection.OrganizationID == strings.TrimSpace(organizationID) {
				out = collection
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, readableID)
	})
	return out, err
}

func (s memoryCollections) ReadableIDExists(_ context.Context, readableID string) (bool, error) {
	exists := false
	err := s.tx.with(func(d *memoryData) error {
		for _, collection := range d.collections {
			if collection.ReadableID == strings.TrimSpace(readableID) {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

type memorySyncs struct{ tx *memoryTx }

func (s memorySyncs) Create(_ context.Context, sync Sync) (Sync, error) {
	err := s.tx.with(func(d *memoryData) error {
		sync.ID = ensureID(sync.ID)
		now := s.tx.now()
		sync.CreatedAt, sync.UpdatedAt = now, now
		sync.DestinationConnectionIDs = append([]string(nil), sync.DestinationConnectionIDs...)
		d.syncs[sync.ID] = sync
		return nil
	})
	return sync, err
}

func (s memorySyncs) Get(_ context.Context, organizationID string, id string) (Sync, error) {
	var out Sync
	err := s.tx.with(func(d *memoryData) error {
		sync, ok := d.syncs[strings.TrimSpace(id)]
		if !ok || sync.OrganizationID != strings.TrimSpace(organizationID) {
			return fmt.Errorf("%w: %s", ErrSyncNotFound, id)
		}
		out = sync
		return nil
	})
	return out, err
}

func (s memorySyncs) Delete(_ context.Context, organizationID string, id string) error {
	return s.tx.with(func(d *memoryData) error {
		sync, ok := d.syncs[strings.TrimSpace(id)]
		if !ok || sync.OrganizationID != strings.TrimSpace(organizationID) {
			return fmt.Errorf("%w: %s", ErrSyncNotFound, id)
		}
		delete(d.syncs, sync.ID)
		return nil
	})
}

type memorySyncJobs struct{ tx *memoryTx }

func (s memorySyncJobs) Create(_ context.Context, job SyncJob) (SyncJob, error) {
	err := s.tx.with(func(d *memoryData) error {
		if strings.TrimSpace(job.ID) == "" {
			job.ID = NewSyncJobID()
		}
		now := s.tx.now()
		job.CreatedAt, job.UpdatedAt = now, now
		d.jobs[job.ID] = job
		return nil
	})
	return job, err
}

func (s memorySyncJobs) Get(_ context.Context, id string) (SyncJob, error) {
	var out SyncJob
	err := s.tx.with(func(d *memoryData) error {
		job, ok := d.jobs[strings.TrimSpace(id)]
		if !ok {
			return fmt.Errorf("%w: %s", ErrSyncJobNotFound, id)
		}
		out = job
		return nil
	})
	return out, err
}

func (s memorySyncJobs) Update(_ context.Context, job SyncJob) (SyncJob, error) {
	err := s.tx.with(func(d *memoryData) error {
		existing, ok := d.jobs[strings.TrimSpace(job.ID)]
		if !ok {
			return fmt.Errorf("%w: %s", ErrSyncJobNotFound, job.ID)
		}
		job.CreatedAt = existing.CreatedAt
		job.UpdatedAt = s.tx.now()
		d.jobs[job.ID] = job
		return nil
	})
	return job, err
}

func (s memorySyncJobs) ListBySync(_ context.Context, syncID string, limit int) ([]SyncJob, error) {
	out := []SyncJob{}
	err := s.tx.with(func(d *memoryData) error {
		for _, job := range d.jobs {
			if job.SyncID == strings.TrimSpace(syncID) {
				out = append(out, job)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s memorySyncJobs) LatestBySync(ctx context.Context, syncID string) (SyncJob, error) {
	jobs, err := s.ListBySync(ctx, syncID, 1)
	if err != nil {
		return SyncJob{}, err
	}
	if len(jobs) == 0 {
		return SyncJob{}, fmt.Errorf("%w: sync %s", ErrSyncJobNotFound, syncID)
	}
	return jobs[0], nil
}

func (s memorySyncJobs) DeleteBySync(_ context.Context, syncID string) error {
	return s.tx.with(func(d *memoryData) error {
		for id, job := range d.jobs {
			if job.SyncID == strings.TrimSpace(syncID) {
				delete(d.jobs, id)
			}
		}
		return nil
	})
}

type memorySourceConnections struct{ tx *memoryTx }

func (s memorySourceConnections) Create(_ context.Context, sc SourceConnection) (SourceConnection, error) {
	err := s.tx.with(func(d *memoryData) error {
		sc.ID = ensureID(sc.ID)
		now := s.tx.now()
		sc.CreatedAt, sc.UpdatedAt = now, now
		d.sourceConnections[sc.ID] = cloneSourceConnection(sc)
		return nil
	})
	return sc, err
}

func (s memorySourceConnections) Update(_ context.Context, sc SourceConnection) (SourceConnection, error) {
	err := s.tx.with(func(d *memoryData) error {
		existing, ok := d.sourceConnections[strings.TrimSpace(sc.ID)]
		if !ok || existing.OrganizationID != sc.OrganizationID {
			return fmt.Errorf("%w: %s", ErrSourceConnectionNotFound, sc.ID)
		}
		sc.CreatedAt = existing.CreatedAt
		sc.UpdatedAt = s.tx.now()
		d.sourceConnections[sc.ID] = cloneSourceConnection(sc)
		return nil
	})
	return sc, err
}

func (s memorySourceConnections) Get(_ context.Context, organizationID string, id string) (SourceConnection, error) {
	var out SourceConnection
	err := s.tx.with(func(d *memoryData) error {
		sc, ok := d.sourceConnections[strings.TrimSpace(id)]
		if !ok || sc.OrganizationID != strings.TrimSpace(organizationID) {
			return fmt.Errorf("%w: %s", ErrSourceConnectionNotFound, id)
		}
		out = cloneSourceConnection(sc)
		return nil
	})
	return out, err
}

func (s memorySourceConnections) List(_ context.Context, organizationID string, filter SourceConnectionFilter) ([]SourceConnection, error) {
	out := []SourceConnection{}
	err := s.tx.with(func(d *memoryData) error {
		for _, sc := range d.sourceConnections {
			if sc.OrganizationID != strings.TrimSpace(organizationID) {
				continue
			}
			if filter.ReadableCollectionID != "" && sc.ReadableCollectionID != filter.ReadableCollectionID {
				continue
			}
			out = append(out, cloneSourceConnection(sc))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []SourceConnection{}, err
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

func (s memorySourceConnections) Delete(_ context.Context, organizationID string, id string) error {
	return s.tx.with(func(d *memoryData) error {
		sc, ok := d.sourceConnections[strings.TrimSpace(id)]
		if !ok || sc.OrganizationID != strings.TrimSpace(organizationID) {
			return fmt.Errorf("%w: %s", ErrSourceConnectionNotFound, id)
		}
		delete(d.sourceConnections, sc.ID)
		return nil
	})
}

type memoryInitSessions struct{ tx *memoryTx }

func (s memoryInitSessions) Create(_ context.Context, session ConnectionInitSession) (ConnectionInitSession, error) {
	err := s.tx.with(func(d *memoryData) error {
		for _, existing := range d.sessions {
			if existing.State == session.State {
				return ErrDuplicateState
			}
		}
		session.ID = ensureID(session.ID)
		now := s.tx.now()
		session.CreatedAt, session.UpdatedAt = now, now
		session.Payload = copyAnyMap(session.Payload)
		session.Overrides = copyAnyMap(session.Overrides)
		d.sessions[session.ID] = session
		return nil
	})
	return session, err
}

func (s memoryInitSessions) GetByState(_ context.Context, state string) (ConnectionInitSession, error) {
	var out ConnectionInitSession
	err := s.tx.with(func(d *memoryData) error {
		for _, session := range d.sessions {
			if session.State == strings.TrimSpace(state) {
				out = session
				out.Payload = copyAnyMap(session.Payload)
				out.Overrides = copyAnyMap(session.Overrides)
				return nil
			}
		}
		return ErrInitSessionNotFound
	})
	return out, err
}

func (s memoryInitSessions) MarkCompleted(_ context.Context, id string, finalConnectionID string, at time.Time) error {
	return s.tx.with(func(d *memoryData) error {
		session, ok := d.sessions[strings.TrimSpace(id)]
		if !ok {
			return ErrInitSessionNotFound
		}
		if session.Status != InitSessionStatusPending {
			return ErrInitSessionNotPending
		}
		if session.IsExpired(at) {
			return ErrInitSessionNotFound
		}
		session.Status = InitSessionStatusCompleted
		session.FinalConnectionID = finalConnectionID
		session.UpdatedAt = at
		d.sessions[session.ID] = session
		return nil
	})
}

type memoryEntities struct{ tx *memoryTx }

func entityKey(syncID string, entityID string) string {
	return syncID + "\x00" + entityID
}

func (s memoryEntities) GetMany(_ context.Context, syncID string, entityIDs []string) (map[string]Entity, error) {
	out := make(map[string]Entity, len(entityIDs))
	err := s.tx.with(func(d *memoryData) error {
		for _, entityID := range entityIDs {
			if entity, ok := d.entities[entityKey(syncID, entityID)]; ok {
				out[entityID] = entity
			}
		}
		return nil
	})
	return out, err
}

func (s memoryEntities) Upsert(_ context.Context, organizationID string, syncID string, jobID string, records []UpsertEntity) ([]Entity, error) {
	out := make([]Entity, 0, len(records))
	err := s.tx.with(func(d *memoryData) error {
		now := s.tx.now()
		for _, record := range records {
			key := entityKey(syncID, record.EntityID)
			existing, ok := d.entities[key]
			if ok && existing.SyncJobID > jobID {
				continue
			}
			if !ok {
				existing = Entity{
					ID:             uuid.NewString(),
					OrganizationID: organizationID,
					SyncID:         syncID,
					EntityID:       record.EntityID,
					CreatedAt:      now,
				}
			}
			existing.Hash = record.Hash
			existing.SyncJobID = jobID
			existing.UpdatedAt = now
			d.entities[key] = existing
			out = append(out, existing)
		}
		return nil
	})
	return out, err
}

func (s memoryEntities) Stamp(_ context.Context, syncID string, jobID string, entityIDs []string) (int, error) {
	count := 0
	err := s.tx.with(func(d *memoryData) error {
		now := s.tx.now()
		for _, entityID := range entityIDs {
			key := entityKey(syncID, entityID)
			existing, ok := d.entities[key]
			if !ok || existing.SyncJobID > jobID {
				continue
			}
			existing.SyncJobID = jobID
			existing.UpdatedAt = now
			d.entities[key] = existing
			count++
		}
		return nil
	})
	return count, err
}

func (s memoryEntities) ListNotStamped(_ context.Context, syncID string, jobID string) ([]Entity, error) {
	out := []Entity{}
	err := s.tx.with(func(d *memoryData) error {
		for _, entity := range d.entities {
			if entity.SyncID == syncID && entity.SyncJobID != jobID {
				out = append(out, entity)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, err
}

func (s memoryEntities) DeleteByIDs(_ context.Context, ids []string) error {
	return s.tx.with(func(d *memoryData) error {
		remove := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			remove[id] = struct{}{}
		}
		for key, entity := range d.entities {
			if _, ok := remove[entity.ID]; ok {
				delete(d.entities, key)
			}
		}
		return nil
	})
}

func (s memoryEntities) DeleteBySync(_ context.Context, syncID string) error {
	return s.tx.with(func(d *memoryData) error {
		for key, entity := range d.entities {
			if entity.SyncID == syncID {
				delete(d.entities, key)
			}
		}
		return nil
	})
}

func cloneSourceConnection(sc SourceConnection) SourceConnection {
	out := sc
	out.ConfigFields = copyAnyMap(sc.ConfigFields)
	out.AuthProviderConfig = copyAnyMap(sc.AuthProviderConfig)
	return out
}

var (
	_ Persistence   = (*MemoryPersistence)(nil)
	_ SourceCatalog = (*MemoryPersistence)(nil)
	_ SourceWriter  = (*MemoryPersistence)(nil)
)
