package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-source-connections/contenthash"
)

type UpsertEntitiesRequest struct {
	OrganizationID string
	SyncID         string
	SyncJobID      string
	Records        []UpsertEntity
}

// DiffResult classifies the records a job observed against stored hashes.
type DiffResult struct {
	Inserted []string
	Updated  []string
	Kept     []string
}

// EntityDiffEngine tracks per-record content hashes for a sync. Rows are
// stamped with the job that last observed them so that deletions upstream
// surface as rows whose stamp lags behind the current job.
type EntityDiffEngine struct {
	store EntityStore
}

func NewEntityDiffEngine(store EntityStore) *EntityDiffEngine {
	return &EntityDiffEngine{store: store}
}

// BulkUpsert writes records whose hash is new or changed. Unchanged records
// are left untouched; use MarkJob to stamp them.
func (e *EntityDiffEngine) BulkUpsert(ctx context.Context, req UpsertEntitiesRequest) ([]Entity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	syncID, jobID, err := requireSyncAndJob(req.SyncID, req.SyncJobID)
	if err != nil {
		return nil, err
	}
	records, err := dedupeRecords(req.Records)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []Entity{}, nil
	}
	stored, err := e.store.GetMany(ctx, syncID, recordIDs(records))
	if err != nil {
		return nil, err
	}
	changed := make([]UpsertEntity, 0, len(records))
	for _, record := range records {
		if existing, ok := stored[record.EntityID]; ok && existing.Hash == record.Hash {
			continue
		}
		changed = append(changed, record)
	}
	if len(changed) == 0 {
		return []Entity{}, nil
	}
	return e.store.Upsert(ctx, strings.TrimSpace(req.OrganizationID), syncID, jobID, changed)
}

// MarkJob stamps the given entities with jobID unless a later job already
// owns them. It returns the number of rows stamped.
func (e *EntityDiffEngine) MarkJob(ctx context.Context, syncID string, jobID string, entityIDs []string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	syncID, jobID, err := requireSyncAndJob(syncID, jobID)
	if err != nil {
		return 0, err
	}
	ids := uniqueTrimmed(entityIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	return e.store.Stamp(ctx, syncID, jobID, ids)
}

// Outdated lists rows under the sync that the job did not observe.
func (e *EntityDiffEngine) Outdated(ctx context.Context, syncID string, jobID string) ([]Entity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	syncID, jobID, err := requireSyncAndJob(syncID, jobID)
	if err != nil {
		return nil, err
	}
	return e.store.ListNotStamped(ctx, syncID, jobID)
}

// Apply classifies the records observed by a job, writes new and changed
// hashes and stamps the unchanged ones.
func (e *EntityDiffEngine) Apply(ctx context.Context, req UpsertEntitiesRequest) (DiffResult, error) {
	if err := e.ready(); err != nil {
		return DiffResult{}, err
	}
	syncID, jobID, err := requireSyncAndJob(req.SyncID, req.SyncJobID)
	if err != nil {
		return DiffResult{}, err
	}
	records, err := dedupeRecords(req.Records)
	if err != nil {
		return DiffResult{}, err
	}
	result := DiffResult{Inserted: []string{}, Updated: []string{}, Kept: []string{}}
	if len(records) == 0 {
		return result, nil
	}
	stored, err := e.store.GetMany(ctx, syncID, recordIDs(records))
	if err != nil {
		return DiffResult{}, err
	}
	changed := make([]UpsertEntity, 0, len(records))
	for _, record := range records {
		existing, ok := stored[record.EntityID]
		switch {
		case !ok:
			result.Inserted = append(result.Inserted, record.EntityID)
			changed = append(changed, record)
		case existing.Hash != record.Hash:
			result.Updated = append(result.Updated, record.EntityID)
			changed = append(changed, record)
		default:
			result.Kept = append(result.Kept, record.EntityID)
		}
	}
	if len(changed) > 0 {
		if _, err := e.store.Upsert(ctx, strings.TrimSpace(req.OrganizationID), syncID, jobID, changed); err != nil {
			return DiffResult{}, err
		}
	}
	if len(result.Kept) > 0 {
		if _, err := e.store.Stamp(ctx, syncID, jobID, result.Kept); err != nil {
			return DiffResult{}, err
		}
	}
	return result, nil
}

// Prune deletes the rows Outdated reports and returns them.
func (e *EntityDiffEngine) Prune(ctx context.Context, syncID string, jobID string) ([]Entity, error) {
	outdated, err := e.Outdated(ctx, syncID, jobID)
	if err != nil {
		return nil, err
	}
	if len(outdated) == 0 {
		return outdated, nil
	}
	ids := make([]string, 0, len(outdated))
	for _, entity := range outdated {
		ids = append(ids, entity.ID)
	}
	if err := e.store.DeleteByIDs(ctx, ids); err != nil {
		return nil, err
	}
	return outdated, nil
}

func (e *EntityDiffEngine) ready() error {
	if e == nil || e.store == nil {
		return fmt.Errorf("core: entity diff engine is not configured")
	}
	return nil
}

func requireSyncAndJob(syncID string, jobID string) (string, string, error) {
	syncID = strings.TrimSpace(syncID)
	jobID = strings.TrimSpace(jobID)
	if syncID == "" {
		return "", "", BadInputError("sync_id", "sync_id is required")
	}
	if jobID == "" {
		return "", "", BadInputError("sync_job_id", "sync_job_id is required")
	}
	return syncID, jobID, nil
}

// dedupeRecords keeps the last occurrence of each entity id.
func dedupeRecords(records []UpsertEntity) ([]UpsertEntity, error) {
	index := make(map[string]int, len(records))
	out := make([]UpsertEntity, 0, len(records))
	for i, record := range records {
		entityID := strings.TrimSpace(record.EntityID)
		if entityID == "" {
			return nil, BadInputError(fmt.Sprintf("records[%d].entity_id", i), "entity_id is required")
		}
		record.EntityID = entityID
		if strings.TrimSpace(record.Hash) == "" {
			if record.Payload == nil {
				return nil, BadInputError(fmt.Sprintf("records[%d].hash", i), "hash or payload is required")
			}
			sum, err := contenthash.Sum(record.Payload)
			if err != nil {
				return nil, BadInputError(fmt.Sprintf("records[%d].payload", i), err.Error())
			}
			record.Hash = sum
		}
		record.Payload = nil
		if pos, ok := index[entityID]; ok {
			out[pos] = record
			continue
		}
		index[entityID] = len(out)
		out = append(out, record)
	}
	return out, nil
}

func recordIDs(records []UpsertEntity) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.EntityID)
	}
	return ids
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
