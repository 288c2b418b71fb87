package cql

import (
	"context"
	"errors"

	"github.com/arloliu/strand/types"
)

// Native protocol error codes.
const (
	CodeServer          = 0x0000
	CodeProtocol        = 0x000A
	CodeBadCredentials  = 0x0100
	CodeUnavailable     = 0x1000
	CodeOverloaded      = 0x1001
	CodeIsBootstrapping = 0x1002
	CodeTruncate        = 0x1003
	CodeWriteTimeout    = 0x1100
	CodeReadTimeout     = 0x1200
	CodeReadFailure     = 0x1300
	CodeFunctionFailure = 0x1400
	CodeWriteFailure    = 0x1500
	CodeSyntax          = 0x2000
	CodeUnauthorized    = 0x2100
	CodeInvalid         = 0x2200
	CodeConfig          = 0x2300
	CodeAlreadyExists   = 0x2400
	CodeUnprepared      = 0x2500
)

// FromCode classifies a server error that carries no replica accounting.
//
// Unavailable, read timeout, write timeout and unprepared errors carry extra
// fields and must be built with their dedicated types constructors; when
// passed here they map to the bare kind.
//
// Parameters:
//   - code: Native protocol error code
//   - message: Server message
//
// Returns:
//   - *types.RequestError: The classified error
func FromCode(code int, message string) *types.RequestError {
	kind := types.KindInvalid
	switch code {
	case CodeServer:
		kind = types.KindServer
	case CodeProtocol:
		kind = types.KindProtocol
	case CodeUnavailable:
		kind = types.KindUnavailable
	case CodeOverloaded:
		kind = types.KindOverloaded
	case CodeIsBootstrapping:
		kind = types.KindIsBootstrapping
	case CodeTruncate:
		kind = types.KindTruncate
	case CodeWriteTimeout:
		kind = types.KindWriteTimeout
	case CodeReadTimeout:
		kind = types.KindReadTimeout
	case CodeUnprepared:
		kind = types.KindUnprepared
	}

	return types.NewRequestError(kind, message)
}

// ClassifyContextError maps context errors to an operation timeout, and
// returns nil for anything else.
//
// A canceled context is reported as an operation timeout as well: the
// engine only cancels attempts whose outcome no longer matters.
func ClassifyContextError(err error) *types.RequestError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.NewOperationTimeoutError(err)
	}

	return nil
}
