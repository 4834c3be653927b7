package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-source-connections/core"
	"github.com/uptrace/bun"
)

// SourceCatalog reads and seeds the sources table.
type SourceCatalog struct {
	db   *bun.DB
	repo repository.Repository[*sourceRecord]
	now  func() time.Time
}

func NewSourceCatalog(db *bun.DB) (*SourceCatalog, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sourceRecord](db, sourceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid source repository wiring: %w", err)
		}
	}
	return &SourceCatalog{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *SourceCatalog) GetSource(ctx context.Context, shortName string) (core.Source, error) {
	if c == nil || c.repo == nil {
		return core.Source{}, fmt.Errorf("sqlstore: source catalog is not configured")
	}
	trimmed := strings.TrimSpace(shortName)
	records, _, err := c.repo.List(ctx,
		repository.SelectBy("short_name", "=", trimmed),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Source{}, err
	}
	if len(records) == 0 {
		return core.Source{}, fmt.Errorf("%w: %s", core.ErrSourceNotFound, trimmed)
	}
	return records[0].toDomain(), nil
}

func (c *SourceCatalog) ListSources(ctx context.Context) ([]core.Source, error) {
	if c == nil || c.repo == nil {
		return nil, fmt.Errorf("sqlstore: source catalog is not configured")
	}
	records, _, err := c.repo.List(ctx, repository.OrderBy("short_name ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]core.Source, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// UpsertSource inserts or refreshes a catalog row keyed by short name. The
// original created_at survives refreshes.
func (c *SourceCatalog) UpsertSource(ctx context.Context, source core.Source) (core.Source, error) {
	if c == nil || c.db == nil {
		return core.Source{}, fmt.Errorf("sqlstore: source catalog is not configured")
	}
	source.ShortName = strings.TrimSpace(source.ShortName)
	if source.ShortName == "" {
		return core.Source{}, fmt.Errorf("sqlstore: source short_name is required")
	}
	now := c.now()
	source.CreatedAt, source.UpdatedAt = now, now

	_, err := c.db.NewInsert().
		Model(newSourceRecord(source)).
		On("CONFLICT (short_name) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("kind = EXCLUDED.kind").
		Set("auth_method = EXCLUDED.auth_method").
		Set("oauth_type = EXCLUDED.oauth_type").
		Set("auth_schema = EXCLUDED.auth_schema").
		Set("config_schema = EXCLUDED.config_schema").
		Set("requires_byoc = EXCLUDED.requires_byoc").
		Set("supports_auth_provider = EXCLUDED.supports_auth_provider").
		Set("labels = EXCLUDED.labels").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Source{}, err
	}
	return c.GetSource(ctx, source.ShortName)
}
