package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/mod/semver"
)

// Source is the read-only template feed consumed by the item generator.
type Source interface {
	FetchTemplates(ctx context.Context, moduleID string) ([]Template, error)
}

// Catalog is an in-memory template store keyed by template id.
// It is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{templates: make(map[string]*Template)}
}

// Add registers a template. When a template with the same id exists, the
// higher semantic version wins. Returns true if the template was stored.
func (c *Catalog) Add(t Template) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.templates[t.ID]; ok {
		if semver.Compare(t.Metadata.Version, cur.Metadata.Version) <= 0 {
			slog.Warn("ignoring template version",
				"template", t.ID,
				"version", t.Metadata.Version,
				"current", cur.Metadata.Version,
			)
			return false
		}
	}
	c.templates[t.ID] = &t
	return true
}

// Get returns the template with the given id.
func (c *Catalog) Get(id string) (Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[id]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// ByModule returns the templates of one module ordered by id.
func (c *Catalog) ByModule(moduleID string) []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Template
	for _, t := range c.templates {
		if t.ModuleID == moduleID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every template ordered by module then id.
func (c *Catalog) All() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModuleID != out[j].ModuleID {
			return out[i].ModuleID < out[j].ModuleID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Modules returns the distinct module ids in sorted order.
func (c *Catalog) Modules() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, t := range c.templates {
		if !seen[t.ModuleID] {
			seen[t.ModuleID] = true
			out = append(out, t.ModuleID)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}

// FetchTemplates implements Source.
func (c *Catalog) FetchTemplates(_ context.Context, moduleID string) ([]Template, error) {
	return c.ByModule(moduleID), nil
}
