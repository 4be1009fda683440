package replication

import (
	"errors"
	"reflect"
	"testing"

	"github.com/energizer-project/netsync/internal/protocol"
)

func TestDirectoryLifecycle(t *testing.T) {
	d := NewDirectory[*ReplicatedEntity]()
	d.Register(9, &ReplicatedEntity{ID: 9})
	d.Register(3, &ReplicatedEntity{ID: 3})

	if d.Len() != 2 {
		t.Fatalf("len: %d", d.Len())
	}
	if got := d.IDs(); !reflect.DeepEqual(got, []protocol.NetworkID{3, 9}) {
		t.Fatalf("ids not sorted: %v", got)
	}
	if e, ok := d.Lookup(9); !ok || e.ID != 9 {
		t.Fatalf("lookup 9: %v %v", e, ok)
	}
	if _, ok := d.Remove(9); !ok {
		t.Fatalf("remove 9 failed")
	}
	if _, ok := d.Remove(9); ok {
		t.Fatalf("second remove should report missing")
	}
	if d.Contains(9) {
		t.Fatalf("9 still present")
	}
}

func TestDirectoryClearVisitsEntries(t *testing.T) {
	d := NewDirectory[Instance]()
	b1, b2 := &Body{}, &Body{}
	d.Register(1, Instance{Entity: b1})
	d.Register(2, Instance{Entity: b2})

	d.Clear(func(_ protocol.NetworkID, inst Instance) { inst.Entity.Destroy() })
	if d.Len() != 0 || !b1.Destroyed || !b2.Destroyed {
		t.Fatalf("clear did not destroy: len=%d %v %v", d.Len(), b1.Destroyed, b2.Destroyed)
	}
}

func TestTypeRegistrySpawn(t *testing.T) {
	r := DefaultTypes()

	player, err := r.Spawn(TypePlayer)
	if err != nil {
		t.Fatalf("spawn player: %v", err)
	}
	if player.State == nil {
		t.Fatalf("player type should declare a state capability")
	}

	prop, err := r.Spawn(TypeProp)
	if err != nil {
		t.Fatalf("spawn prop: %v", err)
	}
	if prop.State != nil {
		t.Fatalf("prop type should not declare a state capability")
	}

	if _, err := r.Spawn(99); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if r.Name(TypePlayer) != "player" || r.Name(99) != "unknown" {
		t.Fatalf("names: %q %q", r.Name(TypePlayer), r.Name(99))
	}
	if got := r.TypeIDs(); !reflect.DeepEqual(got, []uint32{0, 1}) {
		t.Fatalf("type ids: %v", got)
	}
}

func TestAvatarStateRoundTrip(t *testing.T) {
	src := &Avatar{Facing: 1.25}
	dst := &Avatar{}
	if err := dst.Deserialize(src.Serialize()); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if dst.Facing != 1.25 {
		t.Fatalf("facing: %v", dst.Facing)
	}
	if err := dst.Deserialize([]byte{1}); !errors.Is(err, protocol.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestAllocatorsNeverReturnZero(t *testing.T) {
	seq := NewSequenceAllocator(0)
	if id := seq.Allocate(); id != 1 {
		t.Fatalf("sequence start: %d", id)
	}
	wrap := NewSequenceAllocator(^protocol.NetworkID(0))
	wrap.Allocate()
	if id := wrap.Allocate(); id != 1 {
		t.Fatalf("sequence wrap: %d", id)
	}

	rnd := NewSeededAllocator(42)
	seen := make(map[protocol.NetworkID]bool)
	for i := 0; i < 1000; i++ {
		id := rnd.Allocate()
		if id == 0 {
			t.Fatalf("random allocator returned zero")
		}
		seen[id] = true
	}
	if len(seen) < 990 {
		t.Fatalf("suspiciously few distinct ids: %d", len(seen))
	}
}

func TestSnapshotCarriesOwner(t *testing.T) {
	e := &ReplicatedEntity{ID: 5, TypeID: 1, Owner: 0, X: 3, Y: 4}
	s := e.Snapshot()
	if !s.HasOwner || s.Owner != 0 || s.X != 3 || s.Y != 4 {
		t.Fatalf("snapshot: %+v", s)
	}
}
