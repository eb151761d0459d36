package federation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// WritePoint is one decoded ingest sample.
type WritePoint struct {
	Metric      string
	Labels      map[string]string
	TimestampMs int64
	Value       float64
}

// WriteBatch is an ordered batch of decoded points, the unit handed to a
// BatchWriter.
type WriteBatch []WritePoint

// IngestConfig configures the ingest boundary.
type IngestConfig struct {
	// MaxBodyBytes caps a remote-write request body (compressed).
	// Default: 16MB
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`

	// ValidatePoints drops points with invalid metric names or labels
	// instead of writing them.
	// Default: true
	ValidatePoints bool `json:"validate_points" yaml:"validate_points"`
}

// DefaultIngestConfig returns the default ingest configuration.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		MaxBodyBytes:   16 << 20,
		ValidatePoints: true,
	}
}

// Ingestor feeds decoded write batches into a BatchWriter, from the
// Prometheus remote-write endpoint or from a WriteBatchSource pump.
type Ingestor struct {
	sink   BatchWriter
	config IngestConfig
}

// NewIngestor creates an ingestor writing to sink.
func NewIngestor(sink BatchWriter, config IngestConfig) *Ingestor {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultIngestConfig().MaxBodyBytes
	}
	return &Ingestor{sink: sink, config: config}
}

// DecodeRemoteWrite decodes a snappy-compressed Prometheus remote-write
// protobuf body into a write batch.
func DecodeRemoteWrite(body []byte) (WriteBatch, error) {
	decoded, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("federation: snappy decode: %w", err)
	}
	var req prompb.WriteRequest
	if err := req.Unmarshal(decoded); err != nil {
		return nil, fmt.Errorf("federation: protobuf decode: %w", err)
	}
	return convertRemoteWrite(&req), nil
}

func convertRemoteWrite(req *prompb.WriteRequest) WriteBatch {
	batch := make(WriteBatch, 0, len(req.Timeseries))
	for i := range req.Timeseries {
		ts := &req.Timeseries[i]
		metric := ""
		labels := make(map[string]string, len(ts.Labels))
		for _, label := range ts.Labels {
			if label.Name == "__name__" {
				metric = label.Value
			} else {
				labels[label.Name] = label.Value
			}
		}
		for _, sample := range ts.Samples {
			batch = append(batch, WritePoint{
				Metric:      metric,
				Labels:      labels,
				TimestampMs: sample.Timestamp,
				Value:       sample.Value,
			})
		}
	}
	return batch
}

// RemoteWriteHandler returns the HTTP handler for the Prometheus
// remote-write endpoint. Decode failures answer 400; sink failures 500;
// accepted batches 202.
func (i *Ingestor) RemoteWriteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, i.config.MaxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		batch, err := DecodeRemoteWrite(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := i.write(r.Context(), batch); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// RunIngest pumps batches from a source into the sink until the source
// closes or the context ends. A closed source is a clean stop.
func (i *Ingestor) RunIngest(ctx context.Context, src WriteBatchSource) error {
	for {
		batch, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if err := i.write(ctx, batch); err != nil {
			return err
		}
	}
}

func (i *Ingestor) write(ctx context.Context, batch WriteBatch) error {
	if i.config.ValidatePoints {
		batch = i.filterValid(batch)
		if len(batch) == 0 {
			return nil
		}
	}
	return i.sink.WriteBatch(ctx, batch)
}

// filterValid drops points that fail validation, keeping the rest.
func (i *Ingestor) filterValid(batch WriteBatch) WriteBatch {
	valid := batch[:0]
	dropped := 0
	for idx := range batch {
		if err := ValidateWritePoint(&batch[idx]); err != nil {
			dropped++
			continue
		}
		valid = append(valid, batch[idx])
	}
	if dropped > 0 {
		slog.Warn("dropped invalid ingest points", "dropped", dropped, "kept", len(valid))
	}
	return valid
}
