package directors

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"relgraph/src/engine"
	"relgraph/src/integrity"
	"relgraph/src/pathquery"
	"relgraph/src/relation"
	"relgraph/src/settings"

	"go.uber.org/zap"
)

var (
	ErrUnknownComponent = errors.New("unknown component")
	ErrUnknownQuery     = errors.New("unknown query")
	// ErrPredicatesRequired is returned for queries with '?' filters, which
	// need host code to supply predicates.
	ErrPredicatesRequired = errors.New("query takes predicates and cannot be run from the shell")
)

// GraphService ties the store, its registry and the compiled query sets
// together for the command shell.
type GraphService struct {
	store  *engine.Store
	mu     sync.RWMutex
	sets   map[string]*pathquery.QuerySet
	logger *zap.SugaredLogger
}

func NewGraphService(store *engine.Store, logger *zap.SugaredLogger) *GraphService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &GraphService{
		store:  store,
		sets:   make(map[string]*pathquery.QuerySet),
		logger: logger,
	}
}

// NewGraphServiceFromSchema builds a store from a schema: components and
// relationships are registered and every query set is compiled.
func NewGraphServiceFromSchema(schema *settings.Schema, journalSize int, logger *zap.SugaredLogger) (*GraphService, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	registry := integrity.NewRegistry(logger)
	if err := schema.Apply(registry); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	sets, err := schema.CompileQueries(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to compile queries: %w", err)
	}

	store := engine.NewStore(registry, logger)
	if journalSize != engine.DefaultJournalSize {
		store.SetJournal(engine.NewJournal(journalSize))
	}
	service := NewGraphService(store, logger)
	for name, set := range sets {
		service.sets[name] = set
	}
	logger.Infow("Schema loaded",
		"components", len(registry.Components()),
		"relationships", len(registry.Relationships()),
		"querySets", len(sets))
	return service, nil
}

func (s *GraphService) Store() *engine.Store {
	return s.store
}

// DeclareComponent registers a data component.
func (s *GraphService) DeclareComponent(name string) error {
	return s.store.Registry().RegisterComponent(relation.ComponentID(name))
}

// DeclareRelationship registers a relationship from "Name: From tok To".
func (s *GraphService) DeclareRelationship(src string) (relation.Declaration, error) {
	d, err := relation.ParseDeclaration(src)
	if err != nil {
		return d, err
	}
	return d, s.store.Registry().Register(d)
}

// DefineQueries compiles src as query set name, replacing any set of the
// same name.
func (s *GraphService) DefineQueries(name, src string) (*pathquery.QuerySet, error) {
	set, err := pathquery.Compile(s.store.Registry(), name, src)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sets[name] = set
	s.mu.Unlock()
	s.logger.Debugw("Defined query set", "set", name, "queries", set.Names())
	return set, nil
}

// Query resolves "Set.query".
func (s *GraphService) Query(setName, queryName string) (*pathquery.Query, error) {
	s.mu.RLock()
	set, ok := s.sets[setName]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no query set %s", ErrUnknownQuery, setName)
	}
	q, ok := set.Query(queryName)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownQuery, setName, queryName)
	}
	return q, nil
}

// QuerySets returns the compiled sets sorted by name.
func (s *GraphService) QuerySets() []*pathquery.QuerySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pathquery.QuerySet, 0, len(s.sets))
	for _, set := range s.sets {
		out = append(out, set)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (s *GraphService) Spawn() (relation.Entity, error) {
	var e relation.Entity
	err := s.store.Update(func(tx *engine.Tx) error {
		var err error
		e, err = tx.Spawn()
		return err
	})
	return e, err
}

// Set merges fields into e's record component, creating it when absent.
func (s *GraphService) Set(e relation.Entity, component string, fields engine.Record) (engine.Record, error) {
	id := relation.ComponentID(component)
	registry := s.store.Registry()
	if !registry.HasComponent(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, component)
	}
	if d, bound := registry.BindingOf(id); bound {
		return nil, fmt.Errorf("%w: %s is a side of %s, use LINK", engine.ErrInvalidComponent, component, d.Name)
	}

	var out engine.Record
	err := s.store.Update(func(tx *engine.Tx) error {
		out = engine.Record{}
		if cur, ok := tx.Component(e, id); ok {
			if rec, ok := cur.(engine.Record); ok {
				for k, v := range rec {
					out[k] = v
				}
			}
		}
		for k, v := range fields {
			out[k] = v
		}
		return tx.Insert(e, id, out)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("Set component",
		"entity", e,
		"component", component,
		"fields", fields.Keys())
	return out, nil
}

// Get returns e's components, relation sides rendered as target lists.
func (s *GraphService) Get(e relation.Entity) (map[string]any, error) {
	out := make(map[string]any)
	err := s.store.View(func(tx *engine.Tx) error {
		if !tx.Alive(e) {
			return fmt.Errorf("%w: %s", engine.ErrNoSuchEntity, e)
		}
		for _, id := range tx.Components(e) {
			v, _ := tx.Component(e, id)
			if rel, ok := v.(relation.Connectable); ok {
				out[string(id)] = entityNames(relation.Targets(rel))
				continue
			}
			out[string(id)] = v
		}
		return nil
	})
	return out, err
}

func (s *GraphService) Link(rel string, from, to relation.Entity) error {
	return s.store.Update(func(tx *engine.Tx) error {
		return tx.Link(rel, from, to)
	})
}

func (s *GraphService) Unlink(rel string, from, to relation.Entity) (bool, error) {
	var removed bool
	err := s.store.Update(func(tx *engine.Tx) error {
		var err error
		removed, err = tx.Unlink(rel, from, to)
		return err
	})
	return removed, err
}

func (s *GraphService) Despawn(e relation.Entity) error {
	return s.store.Update(func(tx *engine.Tx) error {
		return tx.Despawn(e)
	})
}

// MatchRow is one match of a query as reported by the shell.
type MatchRow struct {
	Entities []string          `json:"entities"`
	Bindings map[string]string `json:"bindings,omitempty"`
}

// Match runs a query with shared access, from root when it is not
// NoEntity and from every indexed root otherwise. limit <= 0 means no
// limit.
func (s *GraphService) Match(q *pathquery.Query, root relation.Entity, limit int) ([]MatchRow, error) {
	if q.Predicates() > 0 {
		return nil, fmt.Errorf("%w: %s has %d", ErrPredicatesRequired, q.FullName(), q.Predicates())
	}

	rows := []MatchRow{}
	collect := func(m *pathquery.Match) pathquery.ControlFlow[struct{}] {
		row := MatchRow{Entities: entityNames(m.Entities())}
		for _, name := range q.Bindings() {
			if row.Bindings == nil {
				row.Bindings = make(map[string]string)
			}
			e, _ := m.Get(name)
			row.Bindings[name] = e.String()
		}
		rows = append(rows, row)
		if limit > 0 && len(rows) >= limit {
			return pathquery.Break[struct{}]()
		}
		return pathquery.Continue[struct{}]()
	}

	err := s.store.View(func(tx *engine.Tx) error {
		var err error
		if root != relation.NoEntity {
			_, err = pathquery.Run(q, tx, root, collect)
		} else {
			_, err = pathquery.RunAll(q, tx, collect)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("Ran query", "query", q.FullName(), "root", root, "matches", len(rows))
	return rows, nil
}

// Description summarises the schema and the store.
type Description struct {
	Components    []string            `json:"components"`
	Relationships []string            `json:"relationships"`
	QuerySets     map[string][]string `json:"querySets"`
	Bundles       []engine.BundleInfo `json:"bundles"`
	Entities      int                 `json:"entities"`
}

func (s *GraphService) Describe() (*Description, error) {
	registry := s.store.Registry()
	desc := &Description{
		Components:    []string{},
		Relationships: []string{},
		QuerySets:     make(map[string][]string),
	}
	for _, id := range registry.Components() {
		desc.Components = append(desc.Components, string(id))
	}
	for _, d := range registry.Relationships() {
		desc.Relationships = append(desc.Relationships, d.String())
	}
	for _, set := range s.QuerySets() {
		var queries []string
		for _, name := range set.Names() {
			queries = append(queries, set.MustQuery(name).String())
		}
		desc.QuerySets[set.Name()] = queries
	}
	err := s.store.View(func(tx *engine.Tx) error {
		desc.Bundles = tx.Bundles()
		desc.Entities = tx.Len()
		return nil
	})
	return desc, err
}

// Dump returns the store's BSON snapshot.
func (s *GraphService) Dump() ([]byte, error) {
	var data []byte
	err := s.store.View(func(tx *engine.Tx) error {
		var err error
		data, err = tx.Dump()
		return err
	})
	return data, err
}

// History returns up to n recent writes from the store journal.
func (s *GraphService) History(n int) []engine.JournalEntry {
	return s.store.Journal().Tail(n)
}

func entityNames(ents []relation.Entity) []string {
	out := make([]string, len(ents))
	for i, e := range ents {
		out[i] = e.String()
	}
	return out
}
