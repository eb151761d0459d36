package federation

import (
	"context"
	"time"
)

// SubQueryExecutor executes one federated sub-query within a time budget.
// The result is always terminal and never nil; failures come back as the
// Error variant, not as a Go error.
type SubQueryExecutor interface {
	Execute(ctx context.Context, qc *QueryContext, timeBudget time.Duration) *FederatedResult
}

// ResultSink receives terminal results for downstream consumption. This is
// how the surrounding query engine, an execution journal, or an archive
// observes federated executions without coupling to the executor.
type ResultSink interface {
	// Record delivers one terminal result. Implementations must not retain
	// the result's Vectors payloads past the call unless they copy them.
	Record(ctx context.Context, qc *QueryContext, res *FederatedResult) error
}

// BatchWriter is the local engine's write side: the consumer of decoded
// ingest batches. The storage engine behind it is outside this package.
type BatchWriter interface {
	WriteBatch(ctx context.Context, batch WriteBatch) error
}

// WriteBatchSource produces decoded write batches, e.g. an ingest decoder
// or an upstream stream subscription. Next blocks until a batch is
// available, the source is closed (ErrClosed), or the context ends.
type WriteBatchSource interface {
	Next(ctx context.Context) (WriteBatch, error)
}

// VectorStore persists serialized range vector payloads under string keys.
type VectorStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Compile-time interface compliance checks.
var (
	_ SubQueryExecutor = (*RemoteExec)(nil)
	_ SubQueryExecutor = partitionExecutor{}
	_ ResultSink       = (*Journal)(nil)
	_ ResultSink       = (*Archive)(nil)
	_ VectorStore      = (*Archive)(nil)
	_ WriteBatchSource = (*StreamSource)(nil)
)
