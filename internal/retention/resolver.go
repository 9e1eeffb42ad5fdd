// Package retention resolves the effective purpose, category and retention
// period of a scope from the data registry.
package retention

import (
	"context"
	"time"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/settings"
)

// Source identifies the tier an effective value came from.
type Source int

// Resolution tiers, highest precedence first.
const (
	SourceScope Source = iota + 1
	SourceAncestor
	SourceLevel
	SourceSystem
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceScope:
		return "scope"
	case SourceAncestor:
		return "ancestor"
	case SourceLevel:
		return "level"
	case SourceSystem:
		return "system"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// FallbackPurpose is used when no tier, not even the system defaults, names a
// purpose. Its retention is zero.
var FallbackPurpose = registry.Purpose{
	ID:   "",
	Name: "Not set",
}

// Effective is the resolved policy of one scope.
type Effective struct {
	Scope          *directory.Scope
	Purpose        *registry.Purpose
	Category       *registry.Category
	PurposeSource  Source
	CategorySource Source
	// SourceScopeID is the scope whose binding supplied the purpose, when it came
	// from the scope or ancestor tier.
	SourceScopeID string
}

// Retention returns the effective retention period.
func (e *Effective) Retention() registry.Retention {
	if e.Purpose == nil {
		return registry.Retention{}
	}
	return e.Purpose.Retention
}

// ExpiresAt returns when a retention period that started at since runs out.
func (e *Effective) ExpiresAt(since time.Time) time.Time {
	return e.Retention().AddTo(since)
}

// ResolveOptions tunes a single resolution.
type ResolveOptions struct {
	// OverridePurposeID replaces the purpose of the scope's own binding.
	// An empty string means "inherit", i.e. behave as if no purpose were bound.
	OverridePurposeID *string
}

// Config holds the dependencies of a Resolver.
type Config struct {
	Directory  directory.Directory
	Repository registry.Repository
	Settings   *settings.Service
}

// Resolver computes effective policies.
type Resolver struct {
	dir      directory.Directory
	repo     registry.Repository
	settings *settings.Service
	cache    *Cache
}

// NewResolver creates a resolver without a shared cache; every Resolve call
// works on a fresh cache.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{
		dir:      cfg.Directory,
		repo:     cfg.Repository,
		settings: cfg.Settings,
	}
}

// ForScan returns a resolver bound to a fresh cache. Use one per scan so
// descendants reuse their ancestors' lookups and nothing outlives the pass.
func (r *Resolver) ForScan() *Resolver {
	rc := *r
	rc.cache = NewCache()
	return &rc
}

// Cache returns the cache bound by ForScan, or nil.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

func (r *Resolver) cacheFor() *Cache {
	if r.cache != nil {
		return r.cache
	}
	return NewCache()
}

// Resolve computes the effective policy of a scope.
func (r *Resolver) Resolve(ctx context.Context, scopeID string, opts ResolveOptions) (*Effective, error) {
	cache := r.cacheFor()
	scope, err := cache.scope(ctx, r.dir, scopeID)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, cache, scope, opts)
}

// ResolveScope computes the effective policy of a scope the caller already holds.
func (r *Resolver) ResolveScope(ctx context.Context, scope *directory.Scope, opts ResolveOptions) (*Effective, error) {
	cache := r.cacheFor()
	cache.PrimeScope(scope)
	return r.resolve(ctx, cache, scope, opts)
}

// LevelPurpose returns the purpose a level resolves to when no scope binding
// applies: the level default, else the system default, else FallbackPurpose.
func (r *Resolver) LevelPurpose(ctx context.Context, level directory.Level) (*registry.Purpose, error) {
	cache := r.cacheFor()

	lb, err := cache.levelBinding(ctx, r.repo, level)
	if err != nil {
		return nil, err
	}
	candidates := make([]string, 0, 2)
	if lb != nil && lb.PurposeID != nil {
		candidates = append(candidates, *lb.PurposeID)
	}
	if d := cache.systemDefaults(ctx, r.settings); d.PurposeID != "" {
		candidates = append(candidates, d.PurposeID)
	}

	for _, id := range candidates {
		p, err := cache.purpose(ctx, r.repo, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	fallback := FallbackPurpose
	return &fallback, nil
}

// tierValue is the purpose or category id a single tier contributes.
type tierValue struct {
	id      string
	source  Source
	scopeID string
}

func (r *Resolver) resolve(ctx context.Context, cache *Cache, scope *directory.Scope, opts ResolveOptions) (*Effective, error) {
	purposeTier, categoryTier, err := r.bindingTiers(ctx, cache, scope, opts)
	if err != nil {
		return nil, err
	}

	defaults := cache.systemDefaults(ctx, r.settings)
	if purposeTier == nil && defaults.PurposeID != "" {
		purposeTier = &tierValue{id: defaults.PurposeID, source: SourceSystem}
	}
	if categoryTier == nil && defaults.CategoryID != "" {
		categoryTier = &tierValue{id: defaults.CategoryID, source: SourceSystem}
	}

	eff := &Effective{Scope: scope}

	if purposeTier != nil {
		p, err := cache.purpose(ctx, r.repo, purposeTier.id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			eff.Purpose = p
			eff.PurposeSource = purposeTier.source
			eff.SourceScopeID = purposeTier.scopeID
		}
	}
	if eff.Purpose == nil {
		fallback := FallbackPurpose
		eff.Purpose = &fallback
		eff.PurposeSource = SourceFallback
	}

	if categoryTier != nil {
		c, err := cache.category(ctx, r.repo, categoryTier.id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			eff.Category = c
			eff.CategorySource = categoryTier.source
		}
	}
	if eff.Category == nil {
		eff.CategorySource = SourceFallback
	}

	return eff, nil
}

// bindingTiers walks the scope, its ancestors and its level. Purpose and
// category are resolved independently; nil means no tier above the system
// defaults names a value.
func (r *Resolver) bindingTiers(ctx context.Context, cache *Cache, scope *directory.Scope, opts ResolveOptions) (*tierValue, *tierValue, error) {
	var purposeTier, categoryTier *tierValue

	level, err := cache.levelBinding(ctx, r.repo, scope.Level)
	if err != nil {
		return nil, nil, err
	}

	// A forced level default wins over every per-scope binding of that level.
	if level != nil && level.ApplyToAllInstances {
		if level.PurposeID != nil {
			purposeTier = &tierValue{id: *level.PurposeID, source: SourceLevel}
		}
		if level.CategoryID != nil {
			categoryTier = &tierValue{id: *level.CategoryID, source: SourceLevel}
		}
	}

	chain := append([]string{scope.ID}, scope.NearestAncestors()...)
	bindings, err := cache.scopeBindings(ctx, r.repo, chain)
	if err != nil {
		return nil, nil, err
	}

	forced := level != nil && level.ApplyToAllInstances
	for i, id := range chain {
		if purposeTier != nil && categoryTier != nil {
			break
		}

		var purposeID, categoryID *string
		if i == 0 {
			if forced {
				continue
			}
			if b := bindings[id]; b != nil {
				purposeID, categoryID = b.PurposeID, b.CategoryID
			}
			if opts.OverridePurposeID != nil {
				purposeID = opts.OverridePurposeID
				if *purposeID == "" {
					purposeID = nil
				}
			}
			purposeTier, categoryTier = firstTier(purposeTier, purposeID, SourceScope, id), firstTier(categoryTier, categoryID, SourceScope, id)
			continue
		}

		node, err := cache.scope(ctx, r.dir, id)
		if err != nil {
			return nil, nil, err
		}
		if node.Level == directory.LevelSystem {
			continue
		}

		// An ancestor whose level is forced contributes its level default instead
		// of its own binding.
		nodeLevel, err := cache.levelBinding(ctx, r.repo, node.Level)
		if err != nil {
			return nil, nil, err
		}
		if nodeLevel != nil && nodeLevel.ApplyToAllInstances {
			purposeID, categoryID = nodeLevel.PurposeID, nodeLevel.CategoryID
		} else if b := bindings[id]; b != nil {
			purposeID, categoryID = b.PurposeID, b.CategoryID
		}
		purposeTier, categoryTier = firstTier(purposeTier, purposeID, SourceAncestor, id), firstTier(categoryTier, categoryID, SourceAncestor, id)
	}

	if level != nil && !forced {
		if purposeTier == nil && level.PurposeID != nil {
			purposeTier = &tierValue{id: *level.PurposeID, source: SourceLevel}
		}
		if categoryTier == nil && level.CategoryID != nil {
			categoryTier = &tierValue{id: *level.CategoryID, source: SourceLevel}
		}
	}

	return purposeTier, categoryTier, nil
}

// firstTier keeps an already found tier, otherwise takes id when set.
func firstTier(current *tierValue, id *string, source Source, scopeID string) *tierValue {
	if current != nil || id == nil {
		return current
	}
	return &tierValue{id: *id, source: source, scopeID: scopeID}
}

// Preview is the effective retention a scope would get if its own purpose
// were set to OptionPurposeID ("" meaning inherit).
type Preview struct {
	OptionPurposeID string
	Effective       *Effective
}

// PreviewRetentions computes the what-if result for inheriting and for every
// purpose in the registry.
func (r *Resolver) PreviewRetentions(ctx context.Context, scopeID string) ([]Preview, error) {
	purposes, err := r.repo.ListPurposes(ctx)
	if err != nil {
		return nil, err
	}

	resolver := r
	if r.cache == nil {
		resolver = r.ForScan()
	}

	options := make([]string, 0, len(purposes)+1)
	options = append(options, "")
	for _, p := range purposes {
		options = append(options, p.ID)
	}

	previews := make([]Preview, 0, len(options))
	for _, option := range options {
		opt := option
		eff, err := resolver.Resolve(ctx, scopeID, ResolveOptions{OverridePurposeID: &opt})
		if err != nil {
			return nil, err
		}
		previews = append(previews, Preview{OptionPurposeID: option, Effective: eff})
	}
	return previews, nil
}
