package federation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ResultStatus tags the final result variant.
type ResultStatus int

const (
	// StatusOk marks a successfully assembled result, empty results included.
	StatusOk ResultStatus = iota
	// StatusError marks a terminal failure of any kind.
	StatusError
)

// FederatedResult is the terminal artifact of one federated execution,
// immutable once constructed. Ok results carry the schema and serialized
// range vectors; Error results carry Err. Both variants carry the stats the
// remote reported, when any arrived.
type FederatedResult struct {
	Status   ResultStatus
	Schema   ResultSchema
	Vectors  []*SerializedRangeVector
	Stats    QueryStats
	Warnings QueryWarnings
	Partial  bool
	Message  string
	Err      *RemoteError
}

// Ok reports whether the result is the success variant.
func (r *FederatedResult) Ok() bool {
	return r.Status == StatusOk
}

func okResult(schema ResultSchema, vectors []*SerializedRangeVector, resp *RemoteResponse, stats QueryStats, warnings QueryWarnings) *FederatedResult {
	return &FederatedResult{
		Status:   StatusOk,
		Schema:   schema,
		Vectors:  vectors,
		Stats:    stats,
		Warnings: warnings,
		Partial:  resp.Partial,
		Message:  resp.Message,
	}
}

func errorResult(err *RemoteError, stats QueryStats) *FederatedResult {
	return &FederatedResult{
		Status: StatusError,
		Stats:  stats,
		Err:    err,
	}
}

// RemoteExec executes federated sub-queries against one endpoint: dispatch,
// response classification, row reconstruction and assembly. It holds no
// mutable state across calls; concurrent Execute calls are independent.
type RemoteExec struct {
	dispatcher *Dispatcher
	endpoint   Endpoint
}

// NewRemoteExec creates an executor for the given endpoint. A nil dispatcher
// defaults to one with the default configuration.
func NewRemoteExec(dispatcher *Dispatcher, endpoint Endpoint) *RemoteExec {
	if dispatcher == nil {
		dispatcher = NewDispatcher(DefaultDispatcherConfig(), nil)
	}
	return &RemoteExec{dispatcher: dispatcher, endpoint: endpoint}
}

// Endpoint returns the executor's dispatch target.
func (e *RemoteExec) Endpoint() Endpoint {
	return e.endpoint
}

// Execute runs one sub-query within the time budget and returns its final
// result. No error escapes this boundary: transport failures, expired
// budgets, remote-reported errors, undecodable bodies and malformed
// payloads all come back as the Error variant. The result is never nil.
func (e *RemoteExec) Execute(ctx context.Context, qc *QueryContext, timeBudget time.Duration) *FederatedResult {
	raw, err := e.dispatcher.Dispatch(ctx, qc, e.endpoint, timeBudget)
	if err != nil {
		kind := ErrorKindTransport
		msg := "remote call failed"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrorKindTimeout
			msg = "remote call exceeded time budget"
		}
		slog.Warn("federated dispatch failed",
			"query_id", qc.QueryID,
			"endpoint", e.endpoint.Name,
			"err", err)
		return errorResult(newRemoteError(kind, msg, err), QueryStats{})
	}
	return classifyResponse(raw, qc.Window)
}
