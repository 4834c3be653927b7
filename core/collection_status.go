package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AggregateCollectionStatus derives a collection's health from the statuses
// of its source connections. Connections still waiting on authentication do
// not count.
func AggregateCollectionStatus(statuses []SourceConnectionStatus) CollectionStatus {
	authenticated := 0
	failing := 0
	for _, status := range statuses {
		if status == SourceConnectionStatusPendingAuth {
			continue
		}
		authenticated++
		if status == SourceConnectionStatusError {
			failing++
		}
	}
	switch {
	case authenticated == 0:
		return CollectionStatusNeedsSource
	case failing == authenticated:
		return CollectionStatusError
	case failing > 0:
		return CollectionStatusPartialError
	default:
		return CollectionStatusActive
	}
}

type CollectionStatusResult struct {
	Collection Collection
	Status     CollectionStatus
	Children   map[string]SourceConnectionStatus
}

func (s *Service) CollectionStatus(ctx context.Context, organizationID string, readableID string) (result CollectionStatusResult, err error) {
	if s == nil {
		return CollectionStatusResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	organizationID = strings.TrimSpace(organizationID)
	readableID = strings.TrimSpace(readableID)
	fields := map[string]any{
		"organization_id":        organizationID,
		"readable_collection_id": readableID,
	}
	defer func() {
		fields["collection_status"] = string(result.Status)
		s.observeOperation(ctx, startedAt, "collection_status", err, fields)
	}()

	if readableID == "" {
		return CollectionStatusResult{}, s.mapError(BadInputError("readable_collection_id", "readable_collection_id is required"))
	}
	stores := s.persistence.Stores()
	collection, err := stores.Collections().GetByReadableID(ctx, organizationID, readableID)
	if err != nil {
		return CollectionStatusResult{}, s.mapError(err)
	}
	children, err := stores.SourceConnections().List(ctx, organizationID, SourceConnectionFilter{ReadableCollectionID: readableID})
	if err != nil {
		return CollectionStatusResult{}, s.mapError(err)
	}

	statuses := make([]SourceConnectionStatus, 0, len(children))
	byID := make(map[string]SourceConnectionStatus, len(children))
	for _, child := range children {
		status, err := s.deriveStatus(ctx, stores, child)
		if err != nil {
			return CollectionStatusResult{}, s.mapError(err)
		}
		statuses = append(statuses, status)
		byID[child.ID] = status
	}
	return CollectionStatusResult{
		Collection: collection,
		Status:     AggregateCollectionStatus(statuses),
		Children:   byID,
	}, nil
}
