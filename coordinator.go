package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CoordinatorConfig configures the federation coordinator.
type CoordinatorConfig struct {
	// MaxConcurrent caps in-flight sub-queries across all partitions.
	// Default: 16
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// DefaultTimeBudget applies when the caller passes no budget.
	// Default: 30s
	DefaultTimeBudget time.Duration `json:"default_time_budget" yaml:"default_time_budget"`

	// Retry governs re-dispatch of retryable failures. A zero value uses
	// the default retry configuration.
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// BreakerFailures opens a partition's circuit after this many
	// consecutive transport-level failures.
	// Default: 5
	BreakerFailures int `json:"breaker_failures" yaml:"breaker_failures"`

	// BreakerResetTimeout is how long an open circuit waits before
	// allowing a half-open probe.
	// Default: 30s
	BreakerResetTimeout time.Duration `json:"breaker_reset_timeout" yaml:"breaker_reset_timeout"`
}

// DefaultCoordinatorConfig returns the default coordinator configuration.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		MaxConcurrent:       16,
		DefaultTimeBudget:   30 * time.Second,
		Retry:               DefaultRetryConfig(),
		BreakerFailures:     5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// Coordinator routes sub-queries to catalog partitions with admission
// control, retries, and per-partition circuit breaking. Like the executor
// it fronts, it never returns a Go error: every failure arrives as an
// error result. Terminal results are fanned out to the attached sinks.
type Coordinator struct {
	config     CoordinatorConfig
	catalog    *Catalog
	dispatcher *Dispatcher
	retryer    *Retryer
	metrics    *ExecMetrics
	sem        chan struct{}

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	journal *Journal
	archive *Archive
	sinks   []ResultSink
}

// NewCoordinator creates a coordinator over the given catalog. A nil
// dispatcher defaults to one with the default configuration.
func NewCoordinator(config CoordinatorConfig, catalog *Catalog, dispatcher *Dispatcher) *Coordinator {
	def := DefaultCoordinatorConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.DefaultTimeBudget <= 0 {
		config.DefaultTimeBudget = def.DefaultTimeBudget
	}
	if config.BreakerFailures <= 0 {
		config.BreakerFailures = def.BreakerFailures
	}
	if config.BreakerResetTimeout <= 0 {
		config.BreakerResetTimeout = def.BreakerResetTimeout
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(DispatcherConfig{}, nil)
	}

	retryCfg := config.Retry
	if retryCfg.RetryIf == nil {
		retryCfg.RetryIf = IsRetryable
	}

	return &Coordinator{
		config:     config,
		catalog:    catalog,
		dispatcher: dispatcher,
		retryer:    NewRetryer(retryCfg),
		metrics:    NewExecMetrics(),
		sem:        make(chan struct{}, config.MaxConcurrent),
		breakers:   make(map[string]*CircuitBreaker),
	}
}

// AttachJournal wires an execution journal. Journal rows carry the serving
// partition name.
func (c *Coordinator) AttachJournal(j *Journal) {
	c.journal = j
}

// AttachArchive wires a result archive for success results.
func (c *Coordinator) AttachArchive(a *Archive) {
	c.archive = a
}

// AttachSink adds a generic result sink.
func (c *Coordinator) AttachSink(s ResultSink) {
	c.sinks = append(c.sinks, s)
}

// Metrics exposes the coordinator's execution counters.
func (c *Coordinator) Metrics() *ExecMetrics {
	return c.metrics
}

// Execute runs one sub-query against the named partition. When the
// concurrency limit is reached the query is rejected immediately rather
// than queued.
func (c *Coordinator) Execute(ctx context.Context, partition string, qc *QueryContext, timeBudget time.Duration) *FederatedResult {
	return c.execute(ctx, partition, qc, timeBudget, false)
}

// ExecuteAll fans the sub-query out to every healthy partition and returns
// the per-partition results. Unlike Execute, saturated admission waits for
// a slot instead of rejecting.
func (c *Coordinator) ExecuteAll(ctx context.Context, qc *QueryContext, timeBudget time.Duration) map[string]*FederatedResult {
	partitions := c.catalog.HealthyPartitions()
	results := make([]*FederatedResult, len(partitions))

	var wg sync.WaitGroup
	for i, p := range partitions {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = c.execute(ctx, name, qc, timeBudget, true)
		}(i, p.Name)
	}
	wg.Wait()

	out := make(map[string]*FederatedResult, len(partitions))
	for i, p := range partitions {
		out[p.Name] = results[i]
	}
	return out
}

func (c *Coordinator) execute(ctx context.Context, partition string, qc *QueryContext, timeBudget time.Duration, wait bool) *FederatedResult {
	if timeBudget <= 0 {
		timeBudget = c.config.DefaultTimeBudget
	}

	p, err := c.catalog.Get(partition)
	if err != nil {
		return errorResult(&RemoteError{
			Kind:    ErrorKindTransport,
			Message: fmt.Sprintf("routing sub-query: unknown partition %q", partition),
			Cause:   err,
		}, QueryStats{})
	}

	if err := c.admit(ctx, wait); err != nil {
		c.metrics.RecordRejected()
		kind := ErrorKindTransport
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrorKindTimeout
		}
		return errorResult(&RemoteError{
			Kind:    kind,
			Message: fmt.Sprintf("admitting sub-query for partition %q", partition),
			Cause:   err,
		}, QueryStats{})
	}
	defer func() { <-c.sem }()

	breaker := c.breakerFor(p.Name)
	start := time.Now()
	c.metrics.RecordDispatch()

	var res *FederatedResult
	berr := breaker.Execute(func() error {
		res = c.executeWithRetry(ctx, p, qc, timeBudget)
		if res.Ok() {
			return nil
		}
		// Only transport-level failures trip the circuit. A well-formed
		// remote error means the partition is alive.
		switch res.Err.Kind {
		case ErrorKindTransport, ErrorKindTimeout, ErrorKindDecode:
			return res.Err
		}
		return nil
	})
	if res == nil && errors.Is(berr, ErrCircuitOpen) {
		c.metrics.RecordBreakerOpen()
		res = errorResult(&RemoteError{
			Kind:    ErrorKindTransport,
			Message: fmt.Sprintf("partition %q circuit open", p.Name),
			Cause:   berr,
		}, QueryStats{})
	}

	c.metrics.RecordResult(res, time.Since(start))
	c.record(ctx, p.Name, qc, res)
	return res
}

// admit takes a concurrency slot. Non-waiting admission fails immediately
// when the limiter is full.
func (c *Coordinator) admit(ctx context.Context, wait bool) error {
	if !wait {
		select {
		case c.sem <- struct{}{}:
			return nil
		default:
			return ErrTooManyInflight
		}
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) executeWithRetry(ctx context.Context, p Partition, qc *QueryContext, timeBudget time.Duration) *FederatedResult {
	exec := NewRemoteExec(c.dispatcher, p.Endpoint)

	var res *FederatedResult
	result := c.retryer.Do(ctx, func() error {
		res = exec.Execute(ctx, qc, timeBudget)
		if res.Ok() {
			return nil
		}
		return res.Err
	})
	for i := 1; i < result.Attempts; i++ {
		c.metrics.RecordRetry()
	}
	return res
}

func (c *Coordinator) breakerFor(name string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(c.config.BreakerFailures, c.config.BreakerResetTimeout)
		c.breakers[name] = cb
	}
	return cb
}

// record delivers the terminal result to every attached sink. Sink
// failures are logged and never affect the query outcome.
func (c *Coordinator) record(ctx context.Context, partition string, qc *QueryContext, res *FederatedResult) {
	if c.journal != nil {
		if err := c.journal.RecordExecution(ctx, partition, qc, res); err != nil {
			slog.Warn("journal record failed", "query_id", qc.QueryID, "err", err)
		}
	}
	if c.archive != nil {
		if err := c.archive.Record(ctx, qc, res); err != nil {
			slog.Warn("archive record failed", "query_id", qc.QueryID, "err", err)
		}
	}
	for _, sink := range c.sinks {
		if err := sink.Record(ctx, qc, res); err != nil {
			slog.Warn("result sink failed", "query_id", qc.QueryID, "err", err)
		}
	}
}

// MergeResults folds per-partition results into combined stats, warnings,
// and a partial flag. Volume counters add across partitions; the result is
// partial when any partition reported partial data or failed outright.
func MergeResults(results map[string]*FederatedResult) (QueryStats, QueryWarnings, bool) {
	var stats QueryStats
	var warnings QueryWarnings
	partial := false
	for name, res := range results {
		stats.Merge(res.Stats)
		warnings.Merge(res.Warnings)
		if res.Partial {
			partial = true
		}
		if !res.Ok() {
			partial = true
			warnings.Add(fmt.Sprintf("partition %s failed: %s", name, res.Err.Error()))
		}
	}
	return stats, warnings, partial
}

// Executor returns a single-partition view of the coordinator satisfying
// SubQueryExecutor.
func (c *Coordinator) Executor(partition string) SubQueryExecutor {
	return partitionExecutor{c: c, partition: partition}
}

type partitionExecutor struct {
	c         *Coordinator
	partition string
}

func (pe partitionExecutor) Execute(ctx context.Context, qc *QueryContext, timeBudget time.Duration) *FederatedResult {
	return pe.c.Execute(ctx, pe.partition, qc, timeBudget)
}
