package replication

import (
	"github.com/energizer-project/netsync/internal/protocol"
)

// Entity is a locally instantiated replicated object. Rendering and scene
// management live behind this interface.
type Entity interface {
	SetPosition(x, y float32)
	Position() (x, y float32)
	Destroy()
}

// Serializable is the optional state capability of an entity type. Its
// bytes travel after the fixed replication fields.
type Serializable interface {
	Serialize() []byte
	Deserialize(data []byte) error
}

// Instance is what a factory produces: the entity and, when its type
// declares one, the state capability. State is nil otherwise.
type Instance struct {
	Entity Entity
	State  Serializable
}

// ReplicatedEntity is the server's authoritative record of an entity.
// Owner zero means unowned.
type ReplicatedEntity struct {
	ID     protocol.NetworkID
	TypeID uint32
	Owner  protocol.NetworkID
	X      float32
	Y      float32

	// State, when set, is serialized after the fixed replication fields.
	State Serializable
}

// Snapshot returns the wire representation of the entity. The owner
// field is always present.
func (e *ReplicatedEntity) Snapshot() protocol.EntityState {
	return protocol.EntityState{
		ID:       e.ID,
		TypeID:   e.TypeID,
		X:        e.X,
		Y:        e.Y,
		Owner:    e.Owner,
		HasOwner: true,
	}
}

// Body is a plain positioned entity with no extra state.
type Body struct {
	X, Y      float32
	Destroyed bool
}

// SetPosition implements Entity.
func (b *Body) SetPosition(x, y float32) { b.X, b.Y = x, y }

// Position implements Entity.
func (b *Body) Position() (float32, float32) { return b.X, b.Y }

// Destroy implements Entity.
func (b *Body) Destroy() { b.Destroyed = true }

// Avatar is a player-controlled body that also replicates a facing angle
// through its state capability.
type Avatar struct {
	Body
	Facing float32
}

// Serialize implements Serializable.
// Format: [facing:f32]
func (a *Avatar) Serialize() []byte {
	return protocol.NewPacketBuilder().WriteFloat32(a.Facing).Build()
}

// Deserialize implements Serializable.
func (a *Avatar) Deserialize(data []byte) error {
	facing, err := protocol.NewPacketReader(data).ReadFloat32()
	if err != nil {
		return err
	}
	a.Facing = facing
	return nil
}
