package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"relgraph/src/integrity"
	"relgraph/src/relation"

	"github.com/google/btree"
	"go.uber.org/zap"
)

var (
	// ErrReadOnly is returned by writes attempted inside View.
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrNoSuchEntity is returned for entities that were never spawned or
	// have been despawned.
	ErrNoSuchEntity = errors.New("no such entity")
	// ErrInvalidComponent is returned when a value cannot be stored under a
	// component id, e.g. a plain value on a relation side.
	ErrInvalidComponent = errors.New("invalid component")
)

// Store is an in-memory entity store. Each component type lives in its own
// Bundle; relation sides are ordinary components whose integrity is kept
// by the registry. Access goes through transactions: any number of View
// calls share the store, Update holds it exclusively.
type Store struct {
	mu       sync.RWMutex
	registry *integrity.Registry
	bundles  map[relation.ComponentID]*Bundle
	live     *btree.BTree
	next     relation.Entity
	journal  *Journal
	logger   *zap.SugaredLogger
}

// NewStore creates an empty store bound to registry. A nil registry gets a
// fresh one.
func NewStore(registry *integrity.Registry, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if registry == nil {
		registry = integrity.NewRegistry(logger)
	}
	return &Store{
		registry: registry,
		bundles:  make(map[relation.ComponentID]*Bundle),
		live:     btree.New(bundleIndexDegree),
		journal:  NewJournal(DefaultJournalSize),
		logger:   logger,
	}
}

func (s *Store) Registry() *integrity.Registry {
	return s.registry
}

func (s *Store) Journal() *Journal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal
}

// SetJournal replaces the write journal, e.g. to change its size.
func (s *Store) SetJournal(j *Journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = j
}

// View runs fn with shared access. Writes inside fn fail with ErrReadOnly.
func (s *Store) View(fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Tx{store: s})
}

// Update runs fn with exclusive access. Writes are applied as they happen;
// an error returned by fn does not undo them.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{store: s, writable: true})
}

// Tx is the store as seen from inside View or Update. It must not be used
// after the callback returns.
type Tx struct {
	store    *Store
	writable bool
}

// Writable reports whether the transaction holds exclusive access.
func (tx *Tx) Writable() bool {
	return tx.writable
}

func (tx *Tx) checkWrite() error {
	if !tx.writable {
		return ErrReadOnly
	}
	return nil
}

// Spawn issues a new entity. Entities are never reused.
func (tx *Tx) Spawn() (relation.Entity, error) {
	if err := tx.checkWrite(); err != nil {
		return relation.NoEntity, err
	}
	s := tx.store
	s.next++
	e := s.next
	s.live.ReplaceOrInsert(entityItem(e))
	s.journal.Append("SPAWN", "", e.String())
	s.logger.Debugw("Spawned entity", "entity", e)
	return e, nil
}

// Alive reports whether e was spawned and not yet despawned.
func (tx *Tx) Alive(e relation.Entity) bool {
	return tx.store.live.Has(entityItem(e))
}

// Len is the number of live entities.
func (tx *Tx) Len() int {
	return tx.store.live.Len()
}

// Component returns e's component id.
func (tx *Tx) Component(e relation.Entity, id relation.ComponentID) (any, bool) {
	b, ok := tx.store.bundles[id]
	if !ok {
		return nil, false
	}
	return b.get(e)
}

// Components lists the components e carries, sorted by id.
func (tx *Tx) Components(e relation.Entity) []relation.ComponentID {
	var ids []relation.ComponentID
	for id, b := range tx.store.bundles {
		if _, ok := b.get(e); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Insert stores v as e's component id, replacing any previous value.
// Relation sides must be attached empty and filled through Link; replacing
// an existing side disconnects its old targets first.
func (tx *Tx) Insert(e relation.Entity, id relation.ComponentID, v any) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	if !tx.Alive(e) {
		return fmt.Errorf("%w: %s", ErrNoSuchEntity, e)
	}
	s := tx.store

	if d, bound := s.registry.BindingOf(id); bound {
		if err := checkSide(d, id, v); err != nil {
			return err
		}
		if _, exists := tx.Component(e, id); exists {
			s.registry.Cascade(tx, e, id)
		}
	}

	b, ok := s.bundles[id]
	if !ok {
		b = newBundle(id)
		s.bundles[id] = b
	}
	b.put(e, v)
	s.journal.Append("INSERT", string(id), e.String())
	return nil
}

// checkSide makes sure v is an empty relation component of the kind d
// declares for side id.
func checkSide(d relation.Declaration, id relation.ComponentID, v any) error {
	rel, ok := v.(relation.ConnectableMut)
	if !ok {
		return fmt.Errorf("%w: %s is a side of %s, got %T", ErrInvalidComponent, id, d.Name, v)
	}
	want, _ := d.KindOf(id)
	var got relation.Kind
	switch rel.(type) {
	case *relation.Single:
		got = relation.KindSingle
	case *relation.Multi:
		got = relation.KindMulti
	default:
		return fmt.Errorf("%w: %s needs a %s relation, got %T", ErrInvalidComponent, id, want, v)
	}
	if got != want {
		return fmt.Errorf("%w: %s needs a %s relation, got %s", ErrInvalidComponent, id, want, got)
	}
	if rel.Len() != 0 {
		return fmt.Errorf("%w: %s must be attached empty, use Link", ErrInvalidComponent, id)
	}
	return nil
}

// Remove detaches e's component id and reports whether it was present.
// Removing a relation side disconnects its targets first.
func (tx *Tx) Remove(e relation.Entity, id relation.ComponentID) (bool, error) {
	if err := tx.checkWrite(); err != nil {
		return false, err
	}
	s := tx.store
	b, ok := s.bundles[id]
	if !ok {
		return false, nil
	}
	if _, exists := b.get(e); !exists {
		return false, nil
	}
	s.registry.Cascade(tx, e, id)
	b.remove(e)
	s.journal.Append("REMOVE", string(id), e.String())
	return true, nil
}

// Despawn destroys e. Every relation side it carries is cascaded before
// any storage is freed, so no survivor keeps a reference to e.
func (tx *Tx) Despawn(e relation.Entity) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	if !tx.Alive(e) {
		return fmt.Errorf("%w: %s", ErrNoSuchEntity, e)
	}
	s := tx.store

	ids := tx.Components(e)
	disconnected := s.registry.CascadeAll(tx, e, ids)
	for _, id := range ids {
		s.bundles[id].remove(e)
	}
	s.live.Delete(entityItem(e))

	s.journal.Append("DESPAWN", "", e.String())
	s.logger.Debugw("Despawned entity",
		"entity", e,
		"components", len(ids),
		"disconnected", disconnected)
	return nil
}

// Scan visits every entity carrying id in ascending order until fn returns
// false.
func (tx *Tx) Scan(id relation.ComponentID, fn func(relation.Entity) bool) {
	b, ok := tx.store.bundles[id]
	if !ok {
		return
	}
	b.ascend(fn)
}

// Entities visits every live entity in ascending order until fn returns
// false.
func (tx *Tx) Entities(fn func(relation.Entity) bool) {
	tx.store.live.Ascend(func(i btree.Item) bool {
		return fn(relation.Entity(i.(entityItem)))
	})
}

// Link connects from -> to through the named relationship.
func (tx *Tx) Link(name string, from, to relation.Entity) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	for _, e := range []relation.Entity{from, to} {
		if !tx.Alive(e) {
			return fmt.Errorf("%w: %s", ErrNoSuchEntity, e)
		}
	}
	if err := tx.store.registry.Link(tx, name, from, to); err != nil {
		return err
	}
	tx.store.journal.Append("LINK", name, fmt.Sprintf("%s -> %s", from, to))
	return nil
}

// Unlink removes one from -> to connection and reports whether it existed.
func (tx *Tx) Unlink(name string, from, to relation.Entity) (bool, error) {
	if err := tx.checkWrite(); err != nil {
		return false, err
	}
	removed, err := tx.store.registry.Unlink(tx, name, from, to)
	if err != nil {
		return false, err
	}
	if removed {
		tx.store.journal.Append("UNLINK", name, fmt.Sprintf("%s -> %s", from, to))
	}
	return removed, nil
}

// Bundles describes every non-empty component table, sorted by name.
func (tx *Tx) Bundles() []BundleInfo {
	var out []BundleInfo
	for id, b := range tx.store.bundles {
		if b.Len() == 0 {
			continue
		}
		info := BundleInfo{Name: id, Rows: b.Len()}
		if d, ok := tx.store.registry.BindingOf(id); ok {
			info.Relationship = d.Name
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
