// Package source fetches salary observations from compensation data sources.
package source

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comp-pricer/internal/model"
)

// ErrNoData is returned by a provider that has nothing for the query.
var ErrNoData = eris.New("source: no data for query")

// ErrUnknownSource is returned when a query names an unregistered source.
var ErrUnknownSource = eris.New("source: unknown source")

// Query identifies the job being priced.
type Query struct {
	JobTitle    string
	Location    string
	Description string
	// Sources restricts the fetch to these provider names. Empty means all.
	Sources []string
}

// Provider returns one observation set per query.
type Provider interface {
	// Name returns the source identifier used for priors, TTLs and contributions.
	Name() string
	// Fetch returns the source's observations for q.
	Fetch(ctx context.Context, q Query) (*model.SourceObservationSet, error)
}

// SourceFailure records a provider that could not contribute to a request.
type SourceFailure struct {
	Source string
	Err    error
}

func (f SourceFailure) Error() string {
	return f.Source + ": " + f.Err.Error()
}

func (f SourceFailure) Unwrap() error {
	return f.Err
}

// Registry manages the available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding ps.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds a provider, replacing any provider with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the named providers sorted by name, or every provider when
// names is empty.
func (r *Registry) Select(names []string) ([]Provider, error) {
	if len(names) == 0 {
		names = r.Names()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(names))
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		p, ok := r.providers[name]
		if !ok {
			return nil, eris.Wrapf(ErrUnknownSource, "source %q", name)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}
