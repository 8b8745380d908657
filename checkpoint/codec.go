package checkpoint

import (
	"fmt"

	"github.com/smallnest/checkpointgo/serde"
)

// Stored record field names. Every backend writes exactly these three
// fields per checkpoint.
const (
	FieldCheckpoint = "checkpoint"
	FieldMetadata   = "metadata"
	FieldParentTS   = "parent_ts"
)

// EncodeCheckpoint converts a checkpoint to its stored text form.
func EncodeCheckpoint(s serde.Serializer, cp *Checkpoint) (string, error) {
	return s.Dumps(map[string]any{
		"v":              cp.V,
		"ts":             cp.TS,
		"channel_values": cp.ChannelValues,
	})
}

// DecodeCheckpoint reverses EncodeCheckpoint.
func DecodeCheckpoint(s serde.Serializer, raw string) (*Checkpoint, error) {
	v, err := s.Loads(raw, false)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &SerializationError{Op: "decode", Err: fmt.Errorf("checkpoint record is not an object")}
	}
	ts, ok := m["ts"].(string)
	if !ok {
		return nil, &SerializationError{Op: "decode", Err: fmt.Errorf("checkpoint record missing ts")}
	}
	cp := &Checkpoint{TS: ts}
	if ver, ok := m["v"].(float64); ok {
		cp.V = int(ver)
	}
	if cv, ok := m["channel_values"].(map[string]any); ok {
		cp.ChannelValues = cv
	}
	return cp, nil
}

// EncodeMetadata converts checkpoint metadata to its stored text form.
func EncodeMetadata(s serde.Serializer, md *Metadata) (string, error) {
	m := map[string]any{
		"source": md.Source,
		"step":   md.Step,
	}
	if md.Writes != nil {
		m["writes"] = md.Writes
	}
	return s.Dumps(m)
}

// DecodeMetadata reverses EncodeMetadata.
func DecodeMetadata(s serde.Serializer, raw string) (*Metadata, error) {
	v, err := s.Loads(raw, false)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &SerializationError{Op: "decode", Err: fmt.Errorf("metadata record is not an object")}
	}
	md := &Metadata{}
	if src, ok := m["source"].(string); ok {
		md.Source = src
	}
	if step, ok := m["step"].(float64); ok {
		md.Step = int(step)
	}
	if w, ok := m["writes"].(map[string]any); ok {
		md.Writes = w
	}
	return md, nil
}
