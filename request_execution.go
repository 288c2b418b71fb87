package strand

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/strand/adapter/cql"
	"github.com/arloliu/strand/types"
)

// requestExecution is one sequence of attempts of a request. It moves to
// another host on retries; speculative executions are separate instances.
type requestExecution struct {
	handler *requestHandler
	ctx     context.Context
	cancel  context.CancelFunc

	request    *cql.Request
	attempt    int
	reprepared bool

	host *Host
	pool cql.Pool
	conn cql.Connection
}

func newRequestExecution(h *requestHandler) *requestExecution {
	ctx, cancel := context.WithCancel(h.ctx)

	return &requestExecution{
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		request: h.request,
	}
}

// start sends the request on the current connection when useCurrentHost is
// set and that connection is still usable, and otherwise on the next valid
// host of the plan. The exchange runs on its own goroutine.
//
// Returns:
//   - *Host: The host the request was sent to, or nil when the plan is
//     exhausted or the request already completed
func (e *requestExecution) start(useCurrentHost bool) *Host {
	h := e.handler
	if useCurrentHost && e.conn != nil && !e.conn.Closed() && e.host.IsUp() {
		go e.send()

		return e.host
	}

	for !h.isDone() {
		host, ok := h.getNextValidHost()
		if !ok {
			h.setNoMoreHosts(e)

			return nil
		}

		pool, conn, err := h.session.borrow(e.ctx, host)
		if err != nil {
			if ctxErr := h.callerCtx.Err(); ctxErr != nil {
				h.setCompleted(ctxErr, nil, nil)

				return nil
			}
			h.recordError(host, err)
			h.session.logger.Debug("cannot borrow connection",
				"host", host.Address(),
				"error", err,
			)

			continue
		}

		e.host, e.pool, e.conn = host, pool, conn
		go e.send()

		return host
	}

	return nil
}

func (e *requestExecution) send() {
	start := time.Now()
	resp, err := e.exchange(e.request)
	// executions cancelled by a winner or by the caller say nothing about the host
	if e.ctx.Err() == nil {
		e.handler.session.trackAttempt(e.host, err, time.Since(start))
	}
	e.handleResponse(resp, err)
}

// exchange sends req on the current connection, bounded by the read timeout.
func (e *requestExecution) exchange(req *cql.Request) (*cql.Response, error) {
	ctx := e.ctx
	if t := e.handler.readTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	return e.conn.Send(ctx, req)
}

func (e *requestExecution) handleResponse(resp *cql.Response, err error) {
	h := e.handler
	if h.isDone() {
		return
	}
	if err != nil {
		e.handleError(err)

		return
	}
	if resp == nil {
		resp = &cql.Response{Kind: cql.ResponseVoid}
	}

	switch resp.Kind {
	case cql.ResponseSetKeyspace:
		h.session.setKeyspace(resp.Keyspace)
		h.setCompleted(nil, h.rowSet(e, resp), nil)
	case cql.ResponseSchemaChange:
		h.setCompleted(nil, h.rowSet(e, resp), h.session.waitSchemaAgreement)
	case cql.ResponsePrepared:
		if e.request.Kind != cql.KindPrepare {
			h.setCompleted(fmt.Errorf("%w: prepared result for a %s request",
				types.ErrUnexpectedResponse, e.request.Kind), nil, nil)

			return
		}
		h.setCompleted(nil, h.rowSet(e, resp), nil)
	default:
		h.setCompleted(nil, h.rowSet(e, resp), nil)
	}
}

// handleError classifies a failed exchange and acts on the retry decision.
func (e *requestExecution) handleError(err error) {
	h := e.handler
	if ctxErr := h.callerCtx.Err(); ctxErr != nil {
		h.setCompleted(ctxErr, nil, nil)

		return
	}

	reqErr := asRequestError(err)
	if reqErr == nil {
		h.recordError(e.host, err)
		h.setCompleted(err, nil, nil)

		return
	}
	h.session.metrics.IncRequestError(reqErr.Kind)
	h.recordError(e.host, reqErr)

	switch reqErr.Kind {
	case types.KindUnprepared:
		if !e.request.IsPrepared() {
			h.setCompleted(fmt.Errorf("%w: %w", types.ErrUnpreparedNotPrepared, reqErr), nil, nil)

			return
		}
		if e.reprepared {
			h.setCompleted(reqErr, nil, nil)

			return
		}
		e.reprepare(reqErr)

		return
	case types.KindSocket:
		e.pool.Remove(e.conn)
		e.conn = nil
	}

	decision := e.retryDecision(reqErr)
	h.session.metrics.IncRetry(decision.Type())

	switch decision.Type() {
	case types.DecisionIgnore:
		h.session.metrics.IncIgnore(reqErr.Kind)
		h.setCompleted(nil, h.rowSet(e, nil), nil)
	case types.DecisionRetry:
		e.attempt++
		e.reprepared = false
		if cl, ok := decision.Consistency(); ok && cl != e.request.Consistency {
			req := e.request.Clone()
			req.Consistency = cl
			e.request = req
		}
		e.start(decision.UseCurrentHost())
	default:
		h.setCompleted(reqErr, nil, nil)
	}
}

// retryDecision consults the retry policy for reqErr.
//
// Transport failures and client-side timeouts leave the outcome of the
// attempt unknown, so they are only retried for idempotent statements.
func (e *requestExecution) retryDecision(reqErr *types.RequestError) types.RetryDecision {
	h := e.handler
	p := h.retryPolicy

	switch reqErr.Kind {
	case types.KindUnavailable:
		return p.OnUnavailable(h.stmt, reqErr.Consistency, reqErr.Required, reqErr.Alive, e.attempt)
	case types.KindReadTimeout:
		return p.OnReadTimeout(h.stmt, reqErr.Consistency, reqErr.Required, reqErr.Received,
			reqErr.DataPresent, e.attempt)
	case types.KindWriteTimeout:
		return p.OnWriteTimeout(h.stmt, reqErr.Consistency, reqErr.WriteType, reqErr.Required,
			reqErr.Received, e.attempt)
	case types.KindSocket, types.KindOperationTimeout:
		if !h.idempotent {
			return types.Rethrow()
		}

		return e.onRequestError(reqErr)
	case types.KindOverloaded, types.KindIsBootstrapping, types.KindTruncate:
		return e.onRequestError(reqErr)
	default:
		return types.Rethrow()
	}
}

func (e *requestExecution) onRequestError(reqErr *types.RequestError) types.RetryDecision {
	if ext, ok := e.handler.retryPolicy.(types.ExtendedRetryPolicy); ok {
		return ext.OnRequestError(e.handler.stmt, reqErr, e.attempt)
	}

	return types.RetryNextHost()
}

// reprepare prepares the statement the host does not know on the current
// connection, then sends the original request again.
func (e *requestExecution) reprepare(unprepared *types.RequestError) {
	h := e.handler
	query, ok := preparedQuery(e.request, unprepared.PreparedID)
	if !ok {
		h.setCompleted(fmt.Errorf("%w: unknown prepared id %x", types.ErrUnpreparedNotPrepared,
			unprepared.PreparedID), nil, nil)

		return
	}

	h.session.logger.Info("re-preparing statement on host",
		"host", e.host.Address(),
		"query", query,
	)
	e.reprepared = true

	resp, err := e.exchange(&cql.Request{
		Kind:     cql.KindPrepare,
		Query:    query,
		Keyspace: e.request.Keyspace,
	})
	if h.isDone() {
		return
	}
	if err != nil {
		e.handleError(err)

		return
	}
	if resp == nil || resp.Kind != cql.ResponsePrepared {
		h.setCompleted(fmt.Errorf("%w: expected a prepared result while re-preparing",
			types.ErrUnexpectedResponse), nil, nil)

		return
	}

	e.send()
}

// preparedQuery finds the query text of the prepared statement id in req.
// An empty id matches the first prepared statement.
func preparedQuery(req *cql.Request, id []byte) (string, bool) {
	if req.Kind == cql.KindExecute {
		if len(id) == 0 || bytes.Equal(id, req.PreparedID) {
			return req.Query, req.Query != ""
		}

		return "", false
	}
	for _, entry := range req.Entries {
		if len(entry.PreparedID) == 0 {
			continue
		}
		if len(id) == 0 || bytes.Equal(id, entry.PreparedID) {
			return entry.Query, entry.Query != ""
		}
	}

	return "", false
}

// asRequestError returns err as a *types.RequestError, mapping context
// errors to operation timeouts. It returns nil for unclassified errors.
func asRequestError(err error) *types.RequestError {
	var reqErr *types.RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	return cql.ClassifyContextError(err)
}
