package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// lenPrefixWidth is the width, in bytes, of the little-endian record
// length prefix.
const lenPrefixWidth = 4

var msgpackHandle codec.MsgpackHandle

const (
	kindSet    = "set"
	kindRemove = "remove"
)

// logRecord is the on-disk tagged union: a Set carries a key and
// value, a Remove carries only a key. The Kind field is the tag that
// makes the msgpack payload self-describing.
type logRecord struct {
	Kind  string `codec:"kind"`
	Key   string `codec:"key"`
	Value string `codec:"value,omitempty"`
}

func setRecord(key, value string) logRecord {
	return logRecord{Kind: kindSet, Key: key, Value: value}
}

func removeRecord(key string) logRecord {
	return logRecord{Kind: kindRemove, Key: key}
}

// encodeRecord serializes rec into a framed byte slice: a 4-byte
// little-endian payload length followed by the msgpack payload itself.
func encodeRecord(rec logRecord) ([]byte, error) {
	var payload []byte
	enc := codec.NewEncoderBytes(&payload, &msgpackHandle)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	if len(payload) > 1<<32-1 {
		return nil, fmt.Errorf("encode record: payload too large: %d bytes", len(payload))
	}

	framed := make([]byte, lenPrefixWidth+len(payload))
	binary.LittleEndian.PutUint32(framed[:lenPrefixWidth], uint32(len(payload)))
	copy(framed[lenPrefixWidth:], payload)

	return framed, nil
}

// decodeRecord decodes a msgpack payload (the bytes following the
// length prefix) back into a logRecord.
func decodeRecord(payload []byte) (logRecord, error) {
	var rec logRecord
	dec := codec.NewDecoderBytes(payload, &msgpackHandle)
	if err := dec.Decode(&rec); err != nil {
		return logRecord{}, fmt.Errorf("decode record: %w", err)
	}

	switch rec.Kind {
	case kindSet, kindRemove:
	default:
		return logRecord{}, fmt.Errorf("decode record: unknown kind %q", rec.Kind)
	}

	return rec, nil
}
