package retention

import (
	"context"
	"errors"
	"sync"

	"github.com/privacyops/dsar/internal/directory"
	"github.com/privacyops/dsar/internal/registry"
	"github.com/privacyops/dsar/internal/settings"
)

// Cache memoises hierarchy nodes, bindings and registry records for the
// lifetime of one scan. A nil map entry records a known absence.
type Cache struct {
	mu           sync.Mutex
	scopes       map[string]*directory.Scope
	bindings     map[string]*registry.ScopeBinding
	levels       map[directory.Level]*registry.LevelBinding
	levelsLoaded bool
	purposes     map[string]*registry.Purpose
	categories   map[string]*registry.Category
	defaults     *settings.SystemDefaults
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		scopes:     make(map[string]*directory.Scope),
		bindings:   make(map[string]*registry.ScopeBinding),
		purposes:   make(map[string]*registry.Purpose),
		categories: make(map[string]*registry.Category),
	}
}

// PrimeScope stores a scope that was fetched elsewhere, e.g. with a candidate.
func (c *Cache) PrimeScope(s *directory.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes[s.ID] = s
}

// Len returns the number of cached scopes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scopes)
}

func (c *Cache) scope(ctx context.Context, dir directory.Directory, id string) (*directory.Scope, error) {
	c.mu.Lock()
	s, ok := c.scopes[id]
	c.mu.Unlock()
	if ok {
		return s, nil
	}

	s, err := dir.ResolveScope(ctx, id)
	if err != nil {
		return nil, err
	}
	c.PrimeScope(s)
	return s, nil
}

// scopeBindings returns the bindings of ids, fetching the unknown ones in one call.
func (c *Cache) scopeBindings(ctx context.Context, repo registry.Repository, ids []string) (map[string]*registry.ScopeBinding, error) {
	c.mu.Lock()
	var missing []string
	for _, id := range ids {
		if _, ok := c.bindings[id]; !ok {
			missing = append(missing, id)
		}
	}
	c.mu.Unlock()

	if len(missing) > 0 {
		fetched, err := repo.GetScopeBindings(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for _, id := range missing {
			c.bindings[id] = fetched[id]
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*registry.ScopeBinding, len(ids))
	for _, id := range ids {
		if b := c.bindings[id]; b != nil {
			out[id] = b
		}
	}
	return out, nil
}

func (c *Cache) levelBinding(ctx context.Context, repo registry.Repository, level directory.Level) (*registry.LevelBinding, error) {
	c.mu.Lock()
	loaded := c.levelsLoaded
	c.mu.Unlock()

	if !loaded {
		bindings, err := repo.ListLevelBindings(ctx)
		if err != nil {
			return nil, err
		}
		levels := make(map[directory.Level]*registry.LevelBinding, len(bindings))
		for _, b := range bindings {
			levels[b.Level] = b
		}
		c.mu.Lock()
		c.levels = levels
		c.levelsLoaded = true
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[level], nil
}

func (c *Cache) purpose(ctx context.Context, repo registry.Repository, id string) (*registry.Purpose, error) {
	c.mu.Lock()
	p, ok := c.purposes[id]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := repo.GetPurpose(ctx, id)
	if err != nil && !errors.Is(err, registry.ErrPurposeNotFound) {
		return nil, err
	}
	c.mu.Lock()
	c.purposes[id] = p
	c.mu.Unlock()
	return p, nil
}

func (c *Cache) category(ctx context.Context, repo registry.Repository, id string) (*registry.Category, error) {
	c.mu.Lock()
	cat, ok := c.categories[id]
	c.mu.Unlock()
	if ok {
		return cat, nil
	}

	cat, err := repo.GetCategory(ctx, id)
	if err != nil && !errors.Is(err, registry.ErrCategoryNotFound) {
		return nil, err
	}
	c.mu.Lock()
	c.categories[id] = cat
	c.mu.Unlock()
	return cat, nil
}

func (c *Cache) systemDefaults(ctx context.Context, st *settings.Service) settings.SystemDefaults {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.defaults == nil {
		d := st.SystemDefaults(ctx)
		c.defaults = &d
	}
	return *c.defaults
}
