// Package store provides the normalized entity maps that back a session and
// the repository used to persist snapshots of them.
package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

var (
	// ErrNotFound is returned when an id is not present in a map.
	ErrNotFound = errors.New("entity not found")
	// ErrEmptyID is returned when an entity without an id is written.
	ErrEmptyID = errors.New("entity id is empty")
)

// Entity is implemented by every type kept in a Map.
type Entity[T any] interface {
	EntityID() string
	Clone() T
}

// Map is a normalized id to entity map for a single entity type. Values are
// cloned on the way in and on the way out so callers never share slices with
// the map. A Map is not safe for concurrent use.
type Map[T Entity[T]] struct {
	items map[string]T
}

// NewMap returns an empty map.
func NewMap[T Entity[T]]() *Map[T] {
	return &Map[T]{items: make(map[string]T)}
}

// Get returns a copy of the entity stored under id.
func (m *Map[T]) Get(id string) (T, error) {
	v, ok := m.items[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return v.Clone(), nil
}

// Has reports whether id is present.
func (m *Map[T]) Has(id string) bool {
	_, ok := m.items[id]
	return ok
}

// Len returns the number of entities.
func (m *Map[T]) Len() int {
	return len(m.items)
}

// MergeMany upserts every entity in the batch and keeps keys that are not
// mentioned. The batch is validated first, so either all entities are
// written or none are.
func (m *Map[T]) MergeMany(entities []T) error {
	if err := validateIDs(entities); err != nil {
		return err
	}
	for _, e := range entities {
		m.items[e.EntityID()] = e.Clone()
	}
	return nil
}

// ReplaceAll makes entities the full content of the map. Keys not present in
// the batch are dropped.
func (m *Map[T]) ReplaceAll(entities []T) error {
	if err := validateIDs(entities); err != nil {
		return err
	}
	next := make(map[string]T, len(entities))
	for _, e := range entities {
		next[e.EntityID()] = e.Clone()
	}
	m.items = next
	return nil
}

// UpsertOne inserts or overwrites a single entity.
func (m *Map[T]) UpsertOne(e T) error {
	return m.MergeMany([]T{e})
}

// Update applies fn to the entity stored under id and returns the updated
// copy. fn works on a private copy; the map only changes after fn returns.
func (m *Map[T]) Update(id string, fn func(*T)) (T, error) {
	v, err := m.Get(id)
	if err != nil {
		return v, err
	}
	fn(&v)
	if v.EntityID() != id {
		var zero T
		return zero, fmt.Errorf("update changed entity id %q to %q", id, v.EntityID())
	}
	m.items[id] = v.Clone()
	return v, nil
}

// IDs returns the keys in ascending order.
func (m *Map[T]) IDs() []string {
	return slices.Sorted(maps.Keys(m.items))
}

// All returns copies of every entity ordered by id.
func (m *Map[T]) All() []T {
	out := make([]T, 0, len(m.items))
	for _, id := range m.IDs() {
		out = append(out, m.items[id].Clone())
	}
	return out
}

// Reset empties the map.
func (m *Map[T]) Reset() {
	m.items = make(map[string]T)
}

func validateIDs[T Entity[T]](entities []T) error {
	for i, e := range entities {
		if e.EntityID() == "" {
			return fmt.Errorf("batch item %d: %w", i, ErrEmptyID)
		}
	}
	return nil
}

// Store groups the entity maps of one session.
type Store struct {
	Users   *Map[domain.User]
	Chats   *Map[domain.Chat]
	Courses *Map[domain.Course]
}

// New returns a store with empty maps.
func New() *Store {
	return &Store{
		Users:   NewMap[domain.User](),
		Chats:   NewMap[domain.Chat](),
		Courses: NewMap[domain.Course](),
	}
}

// Reset empties every map.
func (s *Store) Reset() {
	s.Users.Reset()
	s.Chats.Reset()
	s.Courses.Reset()
}
