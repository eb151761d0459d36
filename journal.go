package federation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// JournalConfig configures the SQLite-backed execution journal.
type JournalConfig struct {
	// Path of the database file.
	// Default: "federation.db"
	Path string `json:"path" yaml:"path"`

	// CacheSize is the SQLite page cache size.
	// Default: 2000
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// BusyTimeout is the SQLite busy timeout in milliseconds.
	// Default: 5000
	BusyTimeout int `json:"busy_timeout" yaml:"busy_timeout"`

	// MaxConnections caps the connection pool.
	// Default: 10
	MaxConnections int `json:"max_connections" yaml:"max_connections"`
}

// DefaultJournalConfig returns the default journal configuration.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Path:           "federation.db",
		CacheSize:      2000,
		BusyTimeout:    5000,
		MaxConnections: 10,
	}
}

// JournalEntry is one recorded sub-query execution.
type JournalEntry struct {
	QueryID      string
	Partition    string
	Query        string
	Status       string
	ErrorKind    string
	ErrorType    string
	ErrorMessage string
	Partial      bool
	Vectors      int
	Rows         int64
	Bytes        int64
	Stats        QueryStats
	SubmittedAt  time.Time
	RecordedAt   time.Time
}

// Journal records every terminal federated result in SQLite so operators
// can audit executions after the fact. It implements ResultSink.
type Journal struct {
	db     *sql.DB
	config JournalConfig

	mu     sync.RWMutex
	closed bool

	insertStmt  *sql.Stmt
	recentStmt  *sql.Stmt
	byQueryStmt *sql.Stmt
}

// NewJournal opens or creates the journal database.
func NewJournal(config JournalConfig) (*Journal, error) {
	def := DefaultJournalConfig()
	if config.Path == "" {
		config.Path = def.Path
	}
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = def.BusyTimeout
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = def.MaxConnections
	}

	dsn := fmt.Sprintf("%s?_cache_size=%d&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d",
		config.Path, config.CacheSize, config.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections / 2)

	j := &Journal{db: db, config: config}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	if err := j.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing journal statements: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query_id TEXT NOT NULL,
			partition_name TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			error_type TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			partial INTEGER NOT NULL DEFAULT 0,
			vector_count INTEGER NOT NULL DEFAULT 0,
			row_count INTEGER NOT NULL DEFAULT 0,
			payload_bytes INTEGER NOT NULL DEFAULT 0,
			stats TEXT NOT NULL DEFAULT '{}',
			submitted_at INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_executions_query ON executions(query_id);
		CREATE INDEX IF NOT EXISTS idx_executions_recorded ON executions(recorded_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

const journalColumns = `query_id, partition_name, query, status, error_kind, error_type,
		error_message, partial, vector_count, row_count, payload_bytes, stats,
		submitted_at, recorded_at`

func (j *Journal) prepareStatements() error {
	var err error

	j.insertStmt, err = j.db.Prepare(`
		INSERT INTO executions (` + journalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	j.recentStmt, err = j.db.Prepare(`
		SELECT ` + journalColumns + ` FROM executions
		ORDER BY recorded_at DESC, id DESC LIMIT ?
	`)
	if err != nil {
		return err
	}

	j.byQueryStmt, err = j.db.Prepare(`
		SELECT ` + journalColumns + ` FROM executions
		WHERE query_id = ? ORDER BY id
	`)
	return err
}

// Record implements ResultSink. The partition column stays empty; callers
// that know the serving partition use RecordExecution.
func (j *Journal) Record(ctx context.Context, qc *QueryContext, res *FederatedResult) error {
	return j.RecordExecution(ctx, "", qc, res)
}

// RecordExecution writes one execution row.
func (j *Journal) RecordExecution(ctx context.Context, partition string, qc *QueryContext, res *FederatedResult) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrClosed
	}
	j.mu.RUnlock()

	status := "ok"
	var kind, errType, errMsg string
	if !res.Ok() {
		status = "error"
		if res.Err != nil {
			kind = errorKindName(res.Err.Kind)
			errType = res.Err.ErrorType
			errMsg = res.Err.Message
		}
	}

	var vectors int
	var rows, bytes int64
	for _, v := range res.Vectors {
		vectors++
		rows += int64(v.Rows)
		bytes += int64(v.SizeBytes)
	}

	stats, err := json.Marshal(res.Stats)
	if err != nil {
		return fmt.Errorf("encoding journal stats: %w", err)
	}

	_, err = j.insertStmt.ExecContext(ctx,
		qc.QueryID, partition, qc.Query, status, kind, errType, errMsg,
		boolToInt(res.Partial), vectors, rows, bytes, string(stats),
		qc.SubmittedAt.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

// RecentExecutions returns the latest entries, newest first.
func (j *Journal) RecentExecutions(ctx context.Context, limit int) ([]JournalEntry, error) {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil, ErrClosed
	}
	j.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := j.recentStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	defer rows.Close()
	return scanJournalRows(rows)
}

// ExecutionsFor returns every entry recorded for one query id, oldest first.
func (j *Journal) ExecutionsFor(ctx context.Context, queryID string) ([]JournalEntry, error) {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil, ErrClosed
	}
	j.mu.RUnlock()

	rows, err := j.byQueryStmt.QueryContext(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	defer rows.Close()
	return scanJournalRows(rows)
}

// Prune deletes entries recorded before the cutoff and reports how many
// were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return 0, ErrClosed
	}
	j.mu.RUnlock()

	res, err := j.db.ExecContext(ctx, `DELETE FROM executions WHERE recorded_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the prepared statements and the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true

	for _, stmt := range []*sql.Stmt{j.insertStmt, j.recentStmt, j.byQueryStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return j.db.Close()
}

func scanJournalRows(rows *sql.Rows) ([]JournalEntry, error) {
	var out []JournalEntry
	for rows.Next() {
		var (
			e           JournalEntry
			partial     int
			stats       string
			submittedMs int64
			recordedMs  int64
		)
		if err := rows.Scan(
			&e.QueryID, &e.Partition, &e.Query, &e.Status, &e.ErrorKind, &e.ErrorType,
			&e.ErrorMessage, &partial, &e.Vectors, &e.Rows, &e.Bytes, &stats,
			&submittedMs, &recordedMs,
		); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Partial = partial != 0
		e.SubmittedAt = time.UnixMilli(submittedMs)
		e.RecordedAt = time.UnixMilli(recordedMs)
		if err := json.Unmarshal([]byte(stats), &e.Stats); err != nil {
			return nil, fmt.Errorf("decoding journal stats: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
