package federation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig configures a WebSocket write-batch source.
type StreamConfig struct {
	// URL of the upstream point feed (ws:// or wss://).
	URL string `json:"url" yaml:"url"`

	// Metric filters the subscription to one metric name; empty subscribes
	// to everything.
	Metric string `json:"metric,omitempty" yaml:"metric,omitempty"`

	// Labels narrow the subscription to points carrying these labels.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// BearerToken authenticates the subscription, if set.
	BearerToken string `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`

	// BatchSize flushes a batch when this many points are pending.
	// Default: 500
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// FlushInterval flushes pending points at least this often.
	// Default: 1s
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	// DialTimeout bounds the WebSocket handshake.
	// Default: 10s
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// ReadLimit caps one inbound frame in bytes.
	// Default: 1MB
	ReadLimit int64 `json:"read_limit" yaml:"read_limit"`
}

// DefaultStreamConfig returns the default stream source configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		DialTimeout:   10 * time.Second,
		ReadLimit:     1 << 20,
	}
}

// streamMessage is the upstream feed's frame format.
type streamMessage struct {
	Type   string            `json:"type"`
	Metric string            `json:"metric,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
	Point  *streamPoint      `json:"point,omitempty"`
	SubID  string            `json:"sub_id,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// streamPoint is one point frame. Timestamps are milliseconds.
type streamPoint struct {
	Metric    string            `json:"metric"`
	Tags      map[string]string `json:"tags,omitempty"`
	Value     float64           `json:"value"`
	Timestamp int64             `json:"timestamp"`
}

// StreamSource subscribes to an upstream WebSocket point feed and groups
// inbound points into write batches by count and interval. It implements
// WriteBatchSource; one consumer calls Next until the source closes.
type StreamSource struct {
	config  StreamConfig
	conn    *websocket.Conn
	batches chan WriteBatch

	mu      sync.Mutex
	pending WriteBatch
	err     error

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// OpenStreamSource dials the feed, subscribes, and starts the read and
// flush loops.
func OpenStreamSource(ctx context.Context, config StreamConfig) (*StreamSource, error) {
	def := DefaultStreamConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = def.FlushInterval
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = def.ReadLimit
	}

	dialer := websocket.Dialer{HandshakeTimeout: config.DialTimeout}
	var header http.Header
	if config.BearerToken != "" {
		header = http.Header{"Authorization": []string{"Bearer " + config.BearerToken}}
	}
	conn, resp, err := dialer.DialContext(ctx, config.URL, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	conn.SetReadLimit(config.ReadLimit)

	sub, _ := json.Marshal(streamMessage{
		Type:   "subscribe",
		Metric: config.Metric,
		Tags:   config.Labels,
	})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		conn.Close()
		return nil, err
	}

	s := &StreamSource{
		config:  config,
		conn:    conn,
		batches: make(chan WriteBatch, 16),
		done:    make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.flushLoop()
	go func() {
		s.wg.Wait()
		s.finalFlush()
		close(s.batches)
	}()
	return s, nil
}

// Next returns the next batch. After the source stops it returns the read
// failure that ended it, or ErrClosed after a deliberate Close.
func (s *StreamSource) Next(ctx context.Context) (WriteBatch, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch, ok := <-s.batches:
		if !ok {
			s.mu.Lock()
			err := s.err
			s.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, ErrClosed
		}
		return batch, nil
	}
}

// Close stops the source. Pending points are flushed if a consumer is
// still draining.
func (s *StreamSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
	return nil
}

func (s *StreamSource) readLoop() {
	defer s.wg.Done()
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			select {
			case <-s.done:
				// deliberate close, not a failure
			default:
				s.err = err
			}
			s.mu.Unlock()
			s.once.Do(func() {
				close(s.done)
				_ = s.conn.Close()
			})
			return
		}

		var frame streamMessage
		if err := json.Unmarshal(msg, &frame); err != nil {
			slog.Warn("undecodable stream frame", "err", err)
			continue
		}
		switch frame.Type {
		case "point":
			if frame.Point != nil {
				s.add(*frame.Point)
			}
		case "error":
			slog.Warn("stream feed error", "err", frame.Error)
		case "subscribed":
			// subscription ack, nothing to do
		}
	}
}

func (s *StreamSource) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *StreamSource) add(p streamPoint) {
	s.mu.Lock()
	s.pending = append(s.pending, WritePoint{
		Metric:      p.Metric,
		Labels:      p.Tags,
		TimestampMs: p.Timestamp,
		Value:       p.Value,
	})
	var batch WriteBatch
	if len(s.pending) >= s.config.BatchSize {
		batch = s.pending
		s.pending = nil
	}
	s.mu.Unlock()

	if batch != nil {
		s.deliver(batch)
	}
}

func (s *StreamSource) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) > 0 {
		s.deliver(batch)
	}
}

func (s *StreamSource) deliver(batch WriteBatch) {
	select {
	case s.batches <- batch:
	case <-s.done:
	}
}

// finalFlush hands leftover points to a still-draining consumer without
// blocking shutdown.
func (s *StreamSource) finalFlush() {
	s.mu.Lock()
	rest := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(rest) == 0 {
		return
	}
	select {
	case s.batches <- rest:
	default:
		slog.Warn("dropping undelivered stream points on close", "count", len(rest))
	}
}
