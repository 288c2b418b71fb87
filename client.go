package strand

import "github.com/arloliu/strand/types"

// Type aliases for convenience - re-export from types package.
type (
	Host                       = types.Host
	Distance                   = types.Distance
	HostEvent                  = types.HostEvent
	Consistency                = types.Consistency
	BatchType                  = types.BatchType
	WriteType                  = types.WriteType
	Idempotence                = types.Idempotence
	Statement                  = types.Statement
	TargetedStatement          = types.TargetedStatement
	QueryPlan                  = types.QueryPlan
	Metadata                   = types.Metadata
	LoadBalancingPolicy        = types.LoadBalancingPolicy
	RetryPolicy                = types.RetryPolicy
	ExtendedRetryPolicy        = types.ExtendedRetryPolicy
	RetryDecision              = types.RetryDecision
	SpeculativeExecutionPolicy = types.SpeculativeExecutionPolicy
	SpeculativePlan            = types.SpeculativePlan
	ReconnectionPolicy         = types.ReconnectionPolicy
	ReconnectionSchedule       = types.ReconnectionSchedule
	RequestTracker             = types.RequestTracker
	Replayer                   = types.Replayer
	ReplayPayload              = types.ReplayPayload
	RequestError               = types.RequestError
	NoHostAvailableError       = types.NoHostAvailableError
	Logger                     = types.Logger
	MetricsCollector           = types.MetricsCollector
)

// Re-export consistency level constants for convenience.
const (
	Any         = types.Any
	One         = types.One
	Two         = types.Two
	Three       = types.Three
	Quorum      = types.Quorum
	All         = types.All
	LocalQuorum = types.LocalQuorum
	EachQuorum  = types.EachQuorum
	Serial      = types.Serial
	LocalSerial = types.LocalSerial
	LocalOne    = types.LocalOne
)

// Re-export batch type constants for convenience.
const (
	LoggedBatch   = types.LoggedBatch
	UnloggedBatch = types.UnloggedBatch
	CounterBatch  = types.CounterBatch
)

// Re-export idempotence constants for convenience.
const (
	IdempotenceUnknown = types.IdempotenceUnknown
	Idempotent         = types.Idempotent
	NotIdempotent      = types.NotIdempotent
)

// Re-export sentinel errors for convenience.
var (
	ErrNoHostAvailable        = types.ErrNoHostAvailable
	ErrSessionClosed          = types.ErrSessionClosed
	ErrNilStatement           = types.ErrNilStatement
	ErrNilMetadata            = types.ErrNilMetadata
	ErrNilPoolFactory         = types.ErrNilPoolFactory
	ErrSchemaAgreementTimeout = types.ErrSchemaAgreementTimeout
	ErrReplayQueueFull        = types.ErrReplayQueueFull
	ErrReplayerClosed         = types.ErrReplayerClosed
	ErrNotReplayable          = types.ErrNotReplayable
)
