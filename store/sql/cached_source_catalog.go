package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-source-connections/core"
)

const sourceCacheKeyPrefix = "go-source-connections::source::v1"

const sourceListCacheKey = sourceCacheKeyPrefix + "::*"

// CachedSourceCatalog serves catalog reads from a go-repository-cache
// service. Catalog rows change only at deploy time, so writes through
// UpsertSource evict and nothing else does.
type CachedSourceCatalog struct {
	base  core.SourceCatalog
	cache repositorycache.CacheService
}

func NewCachedSourceCatalog(base core.SourceCatalog, cacheService repositorycache.CacheService) (*CachedSourceCatalog, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base source catalog is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: source cache service is required")
	}
	return &CachedSourceCatalog{base: base, cache: cacheService}, nil
}

// SourceCacheKey returns go-source-connections::source::v1::<short_name> with
// the short name URL-path escaped.
func SourceCacheKey(shortName string) (string, error) {
	trimmed := strings.TrimSpace(shortName)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: source short_name is required")
	}
	return sourceCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (c *CachedSourceCatalog) GetSource(ctx context.Context, shortName string) (core.Source, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return core.Source{}, fmt.Errorf("sqlstore: cached source catalog is not configured")
	}
	key, err := SourceCacheKey(shortName)
	if err != nil {
		return core.Source{}, err
	}
	source, err := repositorycache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (core.Source, error) {
		return c.base.GetSource(ctx, strings.TrimSpace(shortName))
	})
	if err != nil {
		return core.Source{}, err
	}
	return cloneSource(source), nil
}

func (c *CachedSourceCatalog) ListSources(ctx context.Context) ([]core.Source, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached source catalog is not configured")
	}
	sources, err := repositorycache.GetOrFetch(ctx, c.cache, sourceListCacheKey, func(ctx context.Context) ([]core.Source, error) {
		return c.base.ListSources(ctx)
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.Source, 0, len(sources))
	for _, source := range sources {
		out = append(out, cloneSource(source))
	}
	return out, nil
}

func (c *CachedSourceCatalog) UpsertSource(ctx context.Context, source core.Source) (core.Source, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return core.Source{}, fmt.Errorf("sqlstore: cached source catalog is not configured")
	}
	writer, ok := c.base.(core.SourceWriter)
	if !ok {
		return core.Source{}, fmt.Errorf("sqlstore: base source catalog %T is read only", c.base)
	}
	saved, err := writer.UpsertSource(ctx, source)
	if err != nil {
		return core.Source{}, err
	}
	key, err := SourceCacheKey(saved.ShortName)
	if err != nil {
		return core.Source{}, err
	}
	if err := c.cache.Delete(ctx, key); err != nil {
		return core.Source{}, err
	}
	if err := c.cache.Delete(ctx, sourceListCacheKey); err != nil {
		return core.Source{}, err
	}
	return saved, nil
}

func cloneSource(source core.Source) core.Source {
	cloned := source
	cloned.Labels = append([]string(nil), source.Labels...)
	return cloned
}

var (
	_ core.SourceCatalog = (*CachedSourceCatalog)(nil)
	_ core.SourceWriter  = (*CachedSourceCatalog)(nil)
)
