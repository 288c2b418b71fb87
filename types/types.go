package types

import (
	"errors"
	"strings"
)

// Consistency represents the CQL consistency level.
type Consistency uint16

// Consistency levels using their native protocol values.
const (
	Any         Consistency = 0x00
	One         Consistency = 0x01
	Two         Consistency = 0x02
	Three       Consistency = 0x03
	Quorum      Consistency = 0x04
	All         Consistency = 0x05
	LocalQuorum Consistency = 0x06
	EachQuorum  Consistency = 0x07
	Serial      Consistency = 0x08
	LocalSerial Consistency = 0x09
	LocalOne    Consistency = 0x0A
)

var consistencyNames = map[Consistency]string{
	Any:         "ANY",
	One:         "ONE",
	Two:         "TWO",
	Three:       "THREE",
	Quorum:      "QUORUM",
	All:         "ALL",
	LocalQuorum: "LOCAL_QUORUM",
	EachQuorum:  "EACH_QUORUM",
	Serial:      "SERIAL",
	LocalSerial: "LOCAL_SERIAL",
	LocalOne:    "LOCAL_ONE",
}

// String returns the protocol name of the consistency level.
func (c Consistency) String() string {
	if name, ok := consistencyNames[c]; ok {
		return name
	}

	return "UNKNOWN"
}

// IsSerial reports whether c is one of the serial consistency levels.
func (c Consistency) IsSerial() bool {
	return c == Serial || c == LocalSerial
}

// ParseConsistency parses a consistency level name such as "local_quorum".
//
// Parameters:
//   - s: Consistency name, case-insensitive
//
// Returns:
//   - Consistency: The parsed level
//   - error: Error if the name is unknown
func ParseConsistency(s string) (Consistency, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for c, name := range consistencyNames {
		if name == want {
			return c, nil
		}
	}

	return 0, errors.New("strand: unknown consistency level " + s)
}

// BatchType represents the type of batch operation.
type BatchType byte

// Batch types using their native protocol values.
const (
	LoggedBatch   BatchType = 0
	UnloggedBatch BatchType = 1
	CounterBatch  BatchType = 2
)

// WriteType is the kind of write reported by a coordinator on a write timeout.
type WriteType string

// Write types reported by the server.
const (
	WriteTypeSimple        WriteType = "SIMPLE"
	WriteTypeBatch         WriteType = "BATCH"
	WriteTypeUnloggedBatch WriteType = "UNLOGGED_BATCH"
	WriteTypeCounter       WriteType = "COUNTER"
	WriteTypeBatchLog      WriteType = "BATCH_LOG"
	WriteTypeCAS           WriteType = "CAS"
	WriteTypeView          WriteType = "VIEW"
	WriteTypeCDC           WriteType = "CDC"
)

// Idempotence is the tri-state idempotence flag of a statement.
type Idempotence int8

const (
	// IdempotenceUnknown means the caller did not say; the session default applies.
	IdempotenceUnknown Idempotence = iota
	// Idempotent means the statement can be applied more than once safely.
	Idempotent
	// NotIdempotent means the statement must not be sent twice.
	NotIdempotent
)

// String returns a readable form of the idempotence flag.
func (i Idempotence) String() string {
	switch i {
	case Idempotent:
		return "idempotent"
	case NotIdempotent:
		return "not-idempotent"
	default:
		return "unknown"
	}
}

// Resolve returns the effective idempotence given a session default for unknown.
func (i Idempotence) Resolve(defaultIdempotent bool) bool {
	switch i {
	case Idempotent:
		return true
	case NotIdempotent:
		return false
	default:
		return defaultIdempotent
	}
}
