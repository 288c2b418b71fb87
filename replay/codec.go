package replay

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"
	"github.com/tinylib/msgp/msgp"

	"github.com/arloliu/strand/types"
)

const (
	// codecVersion is written first in every encoded payload.
	codecVersion = 1

	// uuidExtension is the MessagePack extension type of 16-byte UUID values.
	// msgp reserves negative types; 10 is free in the user range.
	uuidExtension int8 = 10
)

var (
	errCodecVersion = errors.New("strand/replay: unsupported payload version")
	errTooLarge     = errors.New("strand/replay: payload too large")

	uuidType = reflect.TypeOf(uuid.UUID{})
)

func init() {
	msgp.RegisterExtension(uuidExtension, func() msgp.Extension {
		return new(uuidExt)
	})
}

// uuidExt carries a UUID value through MessagePack.
type uuidExt uuid.UUID

func (u *uuidExt) ExtensionType() int8 {
	return uuidExtension
}

func (u *uuidExt) Len() int {
	return len(u)
}

func (u *uuidExt) MarshalBinaryTo(b []byte) error {
	copy(b, u[:])

	return nil
}

func (u *uuidExt) UnmarshalBinary(b []byte) error {
	if len(b) != len(u) {
		return fmt.Errorf("strand/replay: uuid extension of %d bytes", len(b))
	}
	copy(u[:], b)

	return nil
}

// asUUID reports whether v is a 16-byte array, which covers uuid.UUID and
// the UUID types of the gocql drivers.
func asUUID(v any) (uuid.UUID, bool) {
	if u, ok := v.(uuid.UUID); ok {
		return u, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Array || !rv.Type().ConvertibleTo(uuidType) {
		return uuid.UUID{}, false
	}

	return rv.Convert(uuidType).Interface().(uuid.UUID), true
}

// encodePayload serializes p as a MessagePack map.
//
// Values go through msgp.AppendIntf, so they are limited to the types it
// supports plus 16-byte UUID arrays.
func encodePayload(p types.ReplayPayload) ([]byte, error) {
	var err error

	b := msgp.AppendMapHeader(make([]byte, 0, 128), 10)
	b = msgp.AppendString(b, "v")
	b = msgp.AppendInt(b, codecVersion)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendBytes(b, p.ID[:])
	b = msgp.AppendString(b, "ks")
	b = msgp.AppendString(b, p.Keyspace)
	b = msgp.AppendString(b, "q")
	b = msgp.AppendString(b, p.Query)
	b = msgp.AppendString(b, "vals")
	if b, err = appendValues(b, p.Values); err != nil {
		return nil, err
	}

	b = msgp.AppendString(b, "batch")
	if uint64(len(p.Batch)) > math.MaxUint32 {
		return nil, errTooLarge
	}
	b = msgp.AppendArrayHeader(b, uint32(len(p.Batch))) //nolint:gosec // bounded above
	for _, s := range p.Batch {
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendString(b, s.Query)
		if b, err = appendValues(b, s.Values); err != nil {
			return nil, err
		}
	}

	b = msgp.AppendString(b, "bt")
	b = msgp.AppendUint8(b, uint8(p.BatchType))
	b = msgp.AppendString(b, "cl")
	b = msgp.AppendUint16(b, uint16(p.Consistency))
	b = msgp.AppendString(b, "rk")
	b = msgp.AppendBytes(b, p.RoutingKey)
	b = msgp.AppendString(b, "ts")
	b = msgp.AppendInt64(b, p.Timestamp)

	return b, nil
}

func appendValues(b []byte, values []any) ([]byte, error) {
	if uint64(len(values)) > math.MaxUint32 {
		return nil, errTooLarge
	}
	b = msgp.AppendArrayHeader(b, uint32(len(values))) //nolint:gosec // bounded above
	for i, v := range values {
		var err error
		if u, ok := asUUID(v); ok {
			ext := uuidExt(u)
			b, err = msgp.AppendExtension(b, &ext)
		} else {
			b, err = msgp.AppendIntf(b, v)
		}
		if err != nil {
			return nil, fmt.Errorf("strand/replay: encode value %d (%T): %w", i, v, err)
		}
	}

	return b, nil
}

// decodePayload is the inverse of encodePayload. Unknown keys are skipped.
//
// Integers decode as int64 or uint64, and UUID values as uuid.UUID.
func decodePayload(data []byte) (types.ReplayPayload, error) {
	var p types.ReplayPayload

	n, b, err := msgp.ReadMapHeaderBytes(data)
	if err != nil {
		return p, fmt.Errorf("strand/replay: decode payload: %w", err)
	}

	for range n {
		var key []byte
		key, b, err = msgp.ReadMapKeyZC(b)
		if err != nil {
			return p, fmt.Errorf("strand/replay: decode payload: %w", err)
		}

		switch string(key) {
		case "v":
			var v int
			v, b, err = msgp.ReadIntBytes(b)
			if err == nil && v != codecVersion {
				return p, fmt.Errorf("%w: %d", errCodecVersion, v)
			}
		case "id":
			var id []byte
			id, b, err = msgp.ReadBytesZC(b)
			if err == nil {
				p.ID, err = uuid.FromBytes(id)
			}
		case "ks":
			p.Keyspace, b, err = msgp.ReadStringBytes(b)
		case "q":
			p.Query, b, err = msgp.ReadStringBytes(b)
		case "vals":
			p.Values, b, err = readValues(b)
		case "batch":
			p.Batch, b, err = readBatch(b)
		case "bt":
			var bt uint8
			bt, b, err = msgp.ReadUint8Bytes(b)
			p.BatchType = types.BatchType(bt)
		case "cl":
			var cl uint16
			cl, b, err = msgp.ReadUint16Bytes(b)
			p.Consistency = types.Consistency(cl)
		case "rk":
			p.RoutingKey, b, err = msgp.ReadBytesBytes(b, nil)
			if len(p.RoutingKey) == 0 {
				p.RoutingKey = nil
			}
		case "ts":
			p.Timestamp, b, err = msgp.ReadInt64Bytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return p, fmt.Errorf("strand/replay: decode field %q: %w", key, err)
		}
	}

	return p, nil
}

// checkLen rejects a container header claiming more elements than the
// remaining input could hold; every element takes at least one byte.
func checkLen(n uint32, perElem int, b []byte) error {
	if uint64(n)*uint64(perElem) > uint64(len(b)) {
		return fmt.Errorf("strand/replay: %d elements in %d bytes: %w", n, len(b), msgp.ErrShortBytes)
	}

	return nil
}

// checkValueLen applies checkLen to a value about to be decoded generically.
func checkValueLen(b []byte) error {
	switch msgp.NextType(b) {
	case msgp.ArrayType:
		n, rest, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return err
		}
		return checkLen(n, 1, rest)
	case msgp.MapType:
		n, rest, err := msgp.ReadMapHeaderBytes(b)
		if err != nil {
			return err
		}
		return checkLen(n, 2, rest)
	default:
		return nil
	}
}

func readValues(b []byte) ([]any, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n == 0 {
		return nil, b, err
	}
	if err := checkLen(n, 1, b); err != nil {
		return nil, b, err
	}

	values := make([]any, n)
	for i := range values {
		if err := checkValueLen(b); err != nil {
			return nil, b, err
		}
		var v any
		v, b, err = msgp.ReadIntfBytes(b)
		if err != nil {
			return nil, b, err
		}
		if u, ok := v.(*uuidExt); ok {
			v = uuid.UUID(*u)
		}
		values[i] = v
	}

	return values, b, nil
}

func readBatch(b []byte) ([]types.ReplayStatement, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n == 0 {
		return nil, b, err
	}

	// each statement is a two element array: three bytes at least
	if err := checkLen(n, 3, b); err != nil {
		return nil, b, err
	}

	batch := make([]types.ReplayStatement, n)
	for i := range batch {
		var sz uint32
		sz, b, err = msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return nil, b, err
		}
		if sz != 2 {
			return nil, b, fmt.Errorf("strand/replay: batch statement of %d fields", sz)
		}
		if batch[i].Query, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, b, err
		}
		if batch[i].Values, b, err = readValues(b); err != nil {
			return nil, b, err
		}
	}

	return batch, b, nil
}
