package query

import "strings"

const (
	TypeGetSourceConnection      = "source_connections.query.get"
	TypeListSourceConnections    = "source_connections.query.list"
	TypeListSourceConnectionJobs = "source_connections.query.jobs.list"
	TypeCollectionStatus         = "source_connections.query.collection.status"
	TypeGetSource                = "source_connections.query.source.get"
	TypeListSources              = "source_connections.query.source.list"
	TypeListOutdatedEntities     = "source_connections.query.entities.outdated"
)

type GetSourceConnectionMessage struct {
	OrganizationID     string
	SourceConnectionID string
	Reveal             bool
}

func (GetSourceConnectionMessage) Type() string { return TypeGetSourceConnection }

func (m GetSourceConnectionMessage) Validate() error {
	if err := requireField("organization_id", m.OrganizationID); err != nil {
		return err
	}
	return requireField("source_connection_id", m.SourceConnectionID)
}

type ListSourceConnectionsMessage struct {
	OrganizationID       string
	ReadableCollectionID string
	Limit                int
	Offset               int
}

func (ListSourceConnectionsMessage) Type() string { return TypeListSourceConnections }

func (m ListSourceConnectionsMessage) Validate() error {
	if err := requireField("organization_id", m.OrganizationID); err != nil {
		return err
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}

type ListSourceConnectionJobsMessage struct {
	OrganizationID     string
	SourceConnectionID string
	Limit              int
}

func (ListSourceConnectionJobsMessage) Type() string { return TypeListSourceConnectionJobs }

func (m ListSourceConnectionJobsMessage) Validate() error {
	if err := requireField("organization_id", m.OrganizationID); err != nil {
		return err
	}
	if err := requireField("source_connection_id", m.SourceConnectionID); err != nil {
		return err
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type CollectionStatusMessage struct {
	OrganizationID       string
	ReadableCollectionID string
}

func (CollectionStatusMessage) Type() string { return TypeCollectionStatus }

func (m CollectionStatusMessage) Validate() error {
	if err := requireField("organization_id", m.OrganizationID); err != nil {
		return err
	}
	return requireField("readable_collection_id", m.ReadableCollectionID)
}

type GetSourceMessage struct {
	ShortName string
}

func (GetSourceMessage) Type() string { return TypeGetSource }

func (m GetSourceMessage) Validate() error {
	return requireField("short_name", m.ShortName)
}

type ListSourcesMessage struct{}

func (ListSourcesMessage) Type() string { return TypeListSources }

type ListOutdatedEntitiesMessage struct {
	SyncID    string
	SyncJobID string
}

func (ListOutdatedEntitiesMessage) Type() string { return TypeListOutdatedEntities }

func (m ListOutdatedEntitiesMessage) Validate() error {
	if err := requireField("sync_id", m.SyncID); err != nil {
		return err
	}
	return requireField("sync_job_id", m.SyncJobID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, field+" is required")
	}
	return nil
}
