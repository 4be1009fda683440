package protocol

import "fmt"

// truncated converts a reader bound fault into ErrTruncated for the named
// frame, keeping both sentinels reachable through errors.Is.
func truncated(frame string, err error) error {
	return fmt.Errorf("parse %s: %w: %w", frame, ErrTruncated, err)
}

// ParseHskReply extracts the server-assigned id from a handshake reply.
// Format: [net_id:4]
func ParseHskReply(payload []byte) (NetworkID, error) {
	id, err := NewPacketReader(payload).ReadID()
	if err != nil {
		return 0, truncated("hsk reply", err)
	}
	return id, nil
}

// ParseBye extracts the sender id from a disconnect frame.
// Format: [net_id:4]
func ParseBye(payload []byte) (NetworkID, error) {
	id, err := NewPacketReader(payload).ReadID()
	if err != nil {
		return 0, truncated("bye", err)
	}
	return id, nil
}

// ParseDespawn extracts the entity id from a Data/Despawn payload.
// Format: [net_id:4]
func ParseDespawn(payload []byte) (NetworkID, error) {
	id, err := NewPacketReader(payload).ReadID()
	if err != nil {
		return 0, truncated("despawn", err)
	}
	return id, nil
}

// ParseMove decodes a Data/Rpc position command.
// Format: [net_id:4][x:f32][y:f32]
func ParseMove(payload []byte) (MoveCommand, error) {
	if len(payload) < MoveSize {
		return MoveCommand{}, truncated("move", fmt.Errorf("%d of %d bytes: %w", len(payload), MoveSize, ErrOutOfBounds))
	}
	r := NewPacketReader(payload)
	var cmd MoveCommand
	cmd.ID, _ = r.ReadID()
	cmd.X, _ = r.ReadFloat32()
	cmd.Y, _ = r.ReadFloat32()
	return cmd, nil
}

// ParseReplication decodes a Data/Replication payload. Payloads of 16 to 19
// bytes carry no owner; from 20 bytes on the owner is present and anything
// after it is returned as extra capability state.
// Format: [net_id:4][type_id:4][x:f32][y:f32][owner:4][extra...]
func ParseReplication(payload []byte) (EntityState, []byte, error) {
	if len(payload) < ReplicationSize {
		return EntityState{}, nil, truncated("replication", fmt.Errorf("%d of %d bytes: %w", len(payload), ReplicationSize, ErrOutOfBounds))
	}
	r := NewPacketReader(payload)
	var s EntityState
	s.ID, _ = r.ReadID()
	s.TypeID, _ = r.ReadUint32()
	s.X, _ = r.ReadFloat32()
	s.Y, _ = r.ReadFloat32()

	owner, err := r.ReadID()
	if err != nil {
		return s, nil, nil
	}
	s.Owner = owner
	s.HasOwner = true

	var extra []byte
	if r.Remaining() > 0 {
		extra = r.Rest()
	}
	return s, extra, nil
}
