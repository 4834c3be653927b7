package sourceconnections

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-source-connections/core"
)

// SourcePack groups catalog rows with the schemas they reference so that
// downstream modules can ship new sources without touching this package.
type SourcePack struct {
	Name    string
	Sources []core.Source
	Schemas []core.Schema
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	sourcePacks map[string]SourcePack
	bundles     map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		sourcePacks: map[string]SourcePack{},
		bundles:     map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterSourcePack(pack SourcePack) error {
	if h == nil {
		return fmt.Errorf("sourceconnections: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("sourceconnections: source pack name is required")
	}
	if len(pack.Sources) == 0 {
		return fmt.Errorf("sourceconnections: source pack %q has no sources", name)
	}
	seen := map[string]struct{}{}
	for _, source := range pack.Sources {
		shortName := strings.TrimSpace(source.ShortName)
		if shortName == "" {
			return fmt.Errorf("sourceconnections: source pack %q contains a source without short_name", name)
		}
		if _, ok := seen[shortName]; ok {
			return fmt.Errorf("sourceconnections: source pack %q declares %q twice", name, shortName)
		}
		seen[shortName] = struct{}{}
	}

	normalized := SourcePack{
		Name:    name,
		Sources: append([]core.Source(nil), pack.Sources...),
		Schemas: append([]core.Schema(nil), pack.Schemas...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sourcePacks[name]; exists {
		return fmt.Errorf("sourceconnections: source pack %q already registered", name)
	}
	for _, other := range h.sourcePacks {
		for _, source := range other.Sources {
			if _, clash := seen[strings.TrimSpace(source.ShortName)]; clash {
				return fmt.Errorf("sourceconnections: source %q already provided by pack %q", source.ShortName, other.Name)
			}
		}
	}
	h.sourcePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("sourceconnections: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("sourceconnections: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("sourceconnections: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("sourceconnections: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// Apply registers pack schemas before handing each source to upsert, so a
// source never lands in the catalog ahead of the schemas it names.
func (h *ExtensionHooks) Apply(ctx context.Context, registry *core.SchemaRegistry, upsert func(context.Context, core.Source) error) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("sourceconnections: schema registry is required")
	}
	if upsert == nil {
		return fmt.Errorf("sourceconnections: source upsert is required")
	}

	packs := h.SourcePacks()
	for _, pack := range packs {
		for _, schema := range pack.Schemas {
			if err := registry.Register(schema); err != nil {
				return fmt.Errorf("sourceconnections: pack %q: %w", pack.Name, err)
			}
		}
	}
	for _, pack := range packs {
		for _, source := range pack.Sources {
			if err := upsert(ctx, source); err != nil {
				return fmt.Errorf("sourceconnections: pack %q source %q: %w", pack.Name, source.ShortName, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(service CommandQueryService) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("sourceconnections: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) SourcePacks() []SourcePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.sourcePacks))
	for name := range h.sourcePacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]SourcePack, 0, len(names))
	for _, name := range names {
		pack := h.sourcePacks[name]
		out = append(out, SourcePack{
			Name:    pack.Name,
			Sources: append([]core.Source(nil), pack.Sources...),
			Schemas: append([]core.Schema(nil), pack.Schemas...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
