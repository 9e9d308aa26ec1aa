package persona

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 表示请求的人格未注册。
var ErrNotFound = errors.New("personality not found")

// Store exposes read-only personality lookup.
type Store interface {
	List() []Persona
	Get(id string) (Persona, error)
	Has(id string) bool
}

// MemoryStore implements Store with an in-memory slice. It is never mutated after construction.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the registered personalities in declaration order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// Get looks up a personality by identifier. The display label is accepted as an alias.
func (s *MemoryStore) Get(id string) (Persona, error) {
	key := strings.TrimSpace(id)
	for _, item := range s.items {
		if item.ID == key {
			return item, nil
		}
	}
	for _, item := range s.items {
		if key != "" && strings.EqualFold(item.Label, key) {
			return item, nil
		}
	}
	return Persona{}, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Has reports whether id resolves to a registered personality.
func (s *MemoryStore) Has(id string) bool {
	_, err := s.Get(id)
	return err == nil
}
