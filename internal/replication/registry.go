package replication

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownType is returned when no factory is registered for a type id.
var ErrUnknownType = errors.New("replication: unknown type id")

// Factory instantiates one entity of a registered type.
type Factory func() Instance

type typeEntry struct {
	name    string
	factory Factory
}

// TypeRegistry maps type ids to factories. Type ids are the indexes the
// server writes into replication frames.
type TypeRegistry struct {
	types map[uint32]typeEntry
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[uint32]typeEntry)}
}

// DefaultTypes returns the registry shared by the bundled client and
// server: 0 is the player avatar, 1 a plain prop.
func DefaultTypes() *TypeRegistry {
	r := NewTypeRegistry()
	r.Register(TypePlayer, "player", func() Instance {
		a := &Avatar{}
		return Instance{Entity: a, State: a}
	})
	r.Register(TypeProp, "prop", func() Instance {
		return Instance{Entity: &Body{}}
	})
	return r
}

// Built-in type ids.
const (
	TypePlayer uint32 = 0
	TypeProp   uint32 = 1
)

// Register binds a factory to a type id, replacing any previous binding.
func (r *TypeRegistry) Register(typeID uint32, name string, factory Factory) {
	r.types[typeID] = typeEntry{name: name, factory: factory}
}

// Spawn instantiates an entity of the given type.
func (r *TypeRegistry) Spawn(typeID uint32) (Instance, error) {
	entry, ok := r.types[typeID]
	if !ok {
		return Instance{}, fmt.Errorf("spawn type %d: %w", typeID, ErrUnknownType)
	}
	return entry.factory(), nil
}

// Name returns the registered name of a type id.
func (r *TypeRegistry) Name(typeID uint32) string {
	if entry, ok := r.types[typeID]; ok {
		return entry.name
	}
	return "unknown"
}

// TypeIDs returns the registered ids in ascending order.
func (r *TypeRegistry) TypeIDs() []uint32 {
	ids := make([]uint32, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
