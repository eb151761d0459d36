package federation

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chronicle-db/federation/internal/encoding"
)

// ArchiveConfig configures the S3 result archive.
type ArchiveConfig struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey authenticate against S3-compatible
	// services. Leave empty to use the ambient AWS credential chain.
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// UsePathStyle switches to path-style addressing for MinIO and
	// similar services.
	UsePathStyle bool `json:"use_path_style,omitempty" yaml:"use_path_style,omitempty"`

	// MaxRetries caps attempts per S3 operation.
	// Default: 3
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// s3API is the slice of the S3 client the archive uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Archive persists terminal results and serialized vector payloads in S3
// or an S3-compatible object store, optionally sealed at rest. It
// implements ResultSink for whole results and VectorStore for raw
// payloads.
type Archive struct {
	client    s3API
	config    ArchiveConfig
	encryptor *Encryptor
	retryer   *Retryer
}

// NewArchive builds an archive backed by a real S3 client. A nil encryptor
// stores objects in plaintext.
func NewArchive(cfg ArchiveConfig, encryptor *Encryptor) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	return newArchive(s3.NewFromConfig(awsCfg, s3Opts...), cfg, encryptor), nil
}

func newArchive(client s3API, cfg ArchiveConfig, encryptor *Encryptor) *Archive {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Archive{
		client:    client,
		config:    cfg,
		encryptor: encryptor,
		retryer: NewRetryer(RetryConfig{
			MaxAttempts:       cfg.MaxRetries,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            0.1,
			RetryIf:           IsRetryable,
		}),
	}
}

// Record implements ResultSink: it encodes the whole result into one
// object keyed by submission day and query id. Error results are not
// archived; the journal keeps those.
func (a *Archive) Record(ctx context.Context, qc *QueryContext, res *FederatedResult) error {
	if !res.Ok() {
		return nil
	}
	data, err := EncodeArchivedResult(qc, res)
	if err != nil {
		return err
	}
	return a.Put(ctx, ResultObjectKey(qc), data)
}

// ResultObjectKey is the archive key layout for one result:
// results/<yyyy-mm-dd>/<query id>.
func ResultObjectKey(qc *QueryContext) string {
	return fmt.Sprintf("results/%s/%s", qc.SubmittedAt.UTC().Format("2006-01-02"), qc.QueryID)
}

// FetchResult reads back an archived result.
func (a *Archive) FetchResult(ctx context.Context, key string) (*ArchivedResult, error) {
	data, err := a.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return DecodeArchivedResult(data)
}

// Put stores data under the prefixed key, sealing it first when an
// encryptor is configured.
func (a *Archive) Put(ctx context.Context, key string, data []byte) error {
	if a.encryptor != nil {
		sealed, err := a.encryptor.Seal(data)
		if err != nil {
			return fmt.Errorf("sealing archive object: %w", err)
		}
		data = sealed
	}

	fullKey := a.config.Prefix + key
	result := a.retryer.Do(ctx, func() error {
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.config.Bucket),
			Key:    aws.String(fullKey),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("archive put %q: %w", key, err)
		}
		return nil
	})
	return result.LastErr
}

// Get reads data stored under the prefixed key, opening sealed objects
// when an encryptor is configured.
func (a *Archive) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := a.config.Prefix + key

	val, result := a.retryer.DoWithResult(ctx, func() (any, error) {
		resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(a.config.Bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			return nil, fmt.Errorf("archive get %q: %w", key, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("archive read %q: %w", key, err)
		}
		return data, nil
	})
	if result.LastErr != nil {
		return nil, result.LastErr
	}

	data := val.([]byte)
	if a.encryptor != nil && IsSealed(data) {
		opened, err := a.encryptor.Open(data)
		if err != nil {
			return nil, fmt.Errorf("opening archive object %q: %w", key, err)
		}
		data = opened
	}
	return data, nil
}

// Delete removes the object under the prefixed key.
func (a *Archive) Delete(ctx context.Context, key string) error {
	fullKey := a.config.Prefix + key
	result := a.retryer.Do(ctx, func() error {
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.config.Bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			return fmt.Errorf("archive delete %q: %w", key, err)
		}
		return nil
	})
	return result.LastErr
}

// List returns keys under the prefix, relative to the archive's own
// prefix.
func (a *Archive) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := a.config.Prefix + prefix

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.config.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("archive list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(*obj.Key, a.config.Prefix))
		}
	}
	return keys, nil
}

// ArchivedResult is a decoded archive object: the identifying query fields
// and the serialized vectors exactly as the executor produced them.
type ArchivedResult struct {
	QueryID  string
	Query    string
	Schema   ResultSchema
	Stats    QueryStats
	Warnings QueryWarnings
	Partial  bool
	Vectors  []*SerializedRangeVector
}

const archivedResultVersion = 1

// EncodeArchivedResult flattens a success result into the archive's binary
// object format.
func EncodeArchivedResult(qc *QueryContext, res *FederatedResult) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte(archivedResultVersion)
	if err := encoding.WriteString(buf, qc.QueryID); err != nil {
		return nil, err
	}
	if err := encoding.WriteString(buf, qc.Query); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(res.Schema.Shape))
	if res.Partial {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	meta, err := json.Marshal(struct {
		Stats    QueryStats    `json:"stats"`
		Warnings QueryWarnings `json:"warnings"`
	}{res.Stats, res.Warnings})
	if err != nil {
		return nil, err
	}
	if err := encoding.WriteBlob(buf, meta); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(res.Vectors))); err != nil {
		return nil, err
	}
	for _, v := range res.Vectors {
		if err := encoding.WriteLabels(buf, v.Key.Labels); err != nil {
			return nil, err
		}
		for _, ms := range []int64{v.Range.StartMs, v.Range.StepMs, v.Range.EndMs} {
			if err := binary.Write(buf, binary.LittleEndian, ms); err != nil {
				return nil, err
			}
		}
		if err := binary.Write(buf, binary.LittleEndian, uint32(v.Rows)); err != nil {
			return nil, err
		}
		if err := encoding.WriteString(buf, v.Fingerprint); err != nil {
			return nil, err
		}
		if err := encoding.WriteBlob(buf, v.Data); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeArchivedResult parses an archive object back into its vectors.
func DecodeArchivedResult(data []byte) (*ArchivedResult, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("archived result: %w", err)
	}
	if version != archivedResultVersion {
		return nil, fmt.Errorf("archived result: unknown version %d", version)
	}

	out := &ArchivedResult{}
	if out.QueryID, err = encoding.ReadString(reader); err != nil {
		return nil, fmt.Errorf("archived result query id: %w", err)
	}
	if out.Query, err = encoding.ReadString(reader); err != nil {
		return nil, fmt.Errorf("archived result query: %w", err)
	}

	shape, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("archived result shape: %w", err)
	}
	out.Schema = SchemaFor(ResultShape(shape))

	partial, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("archived result partial flag: %w", err)
	}
	out.Partial = partial != 0

	meta, err := encoding.ReadBlob(reader)
	if err != nil {
		return nil, fmt.Errorf("archived result meta: %w", err)
	}
	var decoded struct {
		Stats    QueryStats    `json:"stats"`
		Warnings QueryWarnings `json:"warnings"`
	}
	if err := json.Unmarshal(meta, &decoded); err != nil {
		return nil, fmt.Errorf("archived result meta: %w", err)
	}
	out.Stats = decoded.Stats
	out.Warnings = decoded.Warnings

	var count uint32
	if err := binary.Read(reader, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("archived result vector count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		labels, err := encoding.ReadLabels(reader)
		if err != nil {
			return nil, fmt.Errorf("archived vector %d labels: %w", i, err)
		}
		var window [3]int64
		for j := range window {
			if err := binary.Read(reader, binary.LittleEndian, &window[j]); err != nil {
				return nil, fmt.Errorf("archived vector %d range: %w", i, err)
			}
		}
		var rows uint32
		if err := binary.Read(reader, binary.LittleEndian, &rows); err != nil {
			return nil, fmt.Errorf("archived vector %d rows: %w", i, err)
		}
		fingerprint, err := encoding.ReadString(reader)
		if err != nil {
			return nil, fmt.Errorf("archived vector %d fingerprint: %w", i, err)
		}
		payload, err := encoding.ReadBlob(reader)
		if err != nil {
			return nil, fmt.Errorf("archived vector %d payload: %w", i, err)
		}

		out.Vectors = append(out.Vectors, &SerializedRangeVector{
			Key:         NewSeriesKey(labels),
			Range:       OutputRange{StartMs: window[0], StepMs: window[1], EndMs: window[2]},
			Rows:        int(rows),
			Data:        payload,
			SizeBytes:   len(payload),
			Fingerprint: fingerprint,
		})
	}
	return out, nil
}
