// Package registry is C4: the Workflow Definition Registry. It validates DAG
// well-formedness and persists immutable, versioned WorkflowDefinitions
// (spec.md §4.4).
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// Store is the persistence boundary C4 depends on. A Postgres-backed
// implementation lives in pkg/storage/postgres; tests and the in-process CLI
// use the in-memory implementation below.
type Store interface {
	// NextVersion returns the version a new publish of id should use: 1 if
	// id has never been published, otherwise the current max + 1.
	NextVersion(ctx context.Context, id string) (int, error)
	Save(ctx context.Context, def *types.WorkflowDefinition) error
	Get(ctx context.Context, id string, version int) (*types.WorkflowDefinition, bool, error)
	GetLatest(ctx context.Context, id string) (*types.WorkflowDefinition, bool, error)
	List(ctx context.Context, category string) ([]types.WorkflowSummary, error)
}

// Registry is C4. It owns DAG validation and delegates persistence to Store.
type Registry struct {
	store Store
	lib   *steplibrary.Library
}

func New(store Store, lib *steplibrary.Library) *Registry {
	return &Registry{store: store, lib: lib}
}

// Register validates def against every invariant spec.md §3/§4.4 names and,
// on success, persists it under (id, version=next). Errors from Register
// never mutate state (spec.md §7).
func (r *Registry) Register(ctx context.Context, def types.WorkflowDefinition) (string, int, error) {
	if _, err := Validate(&def, r.lib); err != nil {
		return "", 0, err
	}

	version, err := r.store.NextVersion(ctx, def.ID)
	if err != nil {
		return "", 0, apperror.Wrap(err, apperror.KindInternal, "failed to allocate next version")
	}
	def.Version = version
	def.PublishedAt = time.Now().UTC()

	if err := r.store.Save(ctx, &def); err != nil {
		return "", 0, apperror.Wrap(err, apperror.KindInternal, "failed to persist workflow definition")
	}
	return def.ID, def.Version, nil
}

// Validate runs the same checks as Register without persisting, for
// "register-workflow --dry-run" and pre-flight UI validation
// (SPEC_FULL.md §3).
func (r *Registry) Validate(def types.WorkflowDefinition) (*ValidationReport, error) {
	return Validate(&def, r.lib)
}

// Get returns the requested version, or the latest published version if
// version is 0.
func (r *Registry) Get(ctx context.Context, id string, version int) (*types.WorkflowDefinition, error) {
	if version == 0 {
		def, ok, err := r.store.GetLatest(ctx, id)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.KindInternal, "failed to load latest workflow definition")
		}
		if !ok {
			return nil, apperror.NewNotFound("workflow " + id)
		}
		return def, nil
	}
	def, ok, err := r.store.Get(ctx, id, version)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindInternal, "failed to load workflow definition")
	}
	if !ok {
		return nil, apperror.NewNotFound("workflow " + id)
	}
	return def, nil
}

// List returns summaries, optionally filtered by category.
func (r *Registry) List(ctx context.Context, category string) ([]types.WorkflowSummary, error) {
	summaries, err := r.store.List(ctx, category)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindInternal, "failed to list workflow definitions")
	}
	return summaries, nil
}

// MemoryStore is an in-process Store, safe for concurrent use. It is the
// default for tests and for the CLI's standalone mode.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]map[int]*types.WorkflowDefinition // id -> version -> def
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]map[int]*types.WorkflowDefinition)}
}

func (m *MemoryStore) NextVersion(_ context.Context, id string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.defs[id]
	max := 0
	for v := range versions {
		if v > max {
			max = v
		}
	}
	return max + 1, nil
}

func (m *MemoryStore) Save(_ context.Context, def *types.WorkflowDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defs[def.ID] == nil {
		m.defs[def.ID] = make(map[int]*types.WorkflowDefinition)
	}
	cp := *def
	m.defs[def.ID][def.Version] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string, version int) (*types.WorkflowDefinition, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions, ok := m.defs[id]
	if !ok {
		return nil, false, nil
	}
	def, ok := versions[version]
	if !ok {
		return nil, false, nil
	}
	cp := *def
	return &cp, true, nil
}

func (m *MemoryStore) GetLatest(_ context.Context, id string) (*types.WorkflowDefinition, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions, ok := m.defs[id]
	if !ok || len(versions) == 0 {
		return nil, false, nil
	}
	max := 0
	for v := range versions {
		if v > max {
			max = v
		}
	}
	cp := *versions[max]
	return &cp, true, nil
}

func (m *MemoryStore) List(_ context.Context, category string) ([]types.WorkflowSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.WorkflowSummary
	for id, versions := range m.defs {
		max := 0
		for v := range versions {
			if v > max {
				max = v
			}
		}
		def := versions[max]
		if category != "" && def.Category != category {
			continue
		}
		out = append(out, types.WorkflowSummary{
			ID:          id,
			Version:     def.Version,
			Name:        def.Name,
			Category:    def.Category,
			PublishedAt: def.PublishedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
