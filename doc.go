// Package federation is the query-federation layer of a distributed
// time-series database: it forwards sub-queries to remote partitions over
// HTTP and turns their JSON responses into compact binary range vectors
// for the local query engine.
//
// # Basic Usage
//
// Execute a sub-query against one endpoint:
//
//	exec := federation.NewRemoteExec(nil, federation.Endpoint{
//	    Name: "shard-a",
//	    URL:  "https://shard-a.internal/api/v1/subquery",
//	})
//	qc := federation.NewQueryContext(`rate(http_requests_total[5m])`,
//	    federation.TimeWindow{StartSec: 1700000000, StepSec: 15, EndSec: 1700003600})
//	res := exec.Execute(ctx, qc, 30*time.Second)
//	if !res.Ok() {
//	    log.Printf("sub-query failed: %v", res.Err)
//	}
//
// Execute never returns a Go error: every outcome, including transport
// failures and undecodable responses, arrives as a terminal
// [FederatedResult].
//
// # Pipeline
//
// One execution passes through three stages:
//
//   - Dispatch: the query text is POSTed to the remote; the requested
//     window stays local and only shapes the output range.
//   - Classification: the response body lands on the success or the error
//     path, based on HTTP status and the decoded payload.
//   - Assembly: the response's result shape is resolved once, rows are
//     reconstructed sample by sample, and each series is serialized into
//     a columnar payload through a shared [RowBuilder].
//
// Remote-reported query statistics are forwarded verbatim; local
// serialization cost is tracked separately and never inflates them.
//
// # Federation Across Partitions
//
// [Coordinator] routes sub-queries to partitions registered in a
// [Catalog], with bounded concurrency, retries for transport-level
// failures, and a circuit breaker per partition. Terminal results can be
// recorded in a SQLite [Journal] and archived to S3-compatible object
// storage via [Archive], optionally sealed with AES-256-GCM.
//
// # Ingest
//
// The package also carries the write side of the federation boundary:
// [Ingestor] decodes Prometheus remote-write bodies, and [StreamSource]
// subscribes to an upstream WebSocket point feed. Both produce
// [WriteBatch] values for a [BatchWriter] supplied by the embedding
// engine.
package federation
