package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrStorageDisabled is returned by the no-op storage.
var ErrStorageDisabled = errors.New("transcript storage disabled")

// Storage persists rendered HTML transcripts and returns a reference that
// can be stored on the ticket record.
type Storage interface {
	Save(ctx context.Context, guildID, channelID string, html []byte) (string, error)
}

// Compression selects how persisted transcripts are encoded.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
)

func (c Compression) extension() string {
	if c == CompressionGzip {
		return ".html.gz"
	}
	return ".html"
}

func (c Compression) encode(data []byte) ([]byte, error) {
	if c != CompressionGzip {
		return data, nil
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// objectName builds the per-guild unique name of a transcript.
func objectName(guildID, channelID string, c Compression) (string, error) {
	guild, err := safeSegment(guildID)
	if err != nil {
		return "", err
	}
	channel, err := safeSegment(channelID)
	if err != nil {
		return "", err
	}
	return path.Join(guild, fmt.Sprintf("transcript-%s-%s%s", channel, uuid.NewString(), c.extension())), nil
}

func safeSegment(s string) (string, error) {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return "", fmt.Errorf("invalid path segment %q", s)
	}
	return s, nil
}

// LocalStorage writes transcripts below a base directory, one
// subdirectory per guild.
type LocalStorage struct {
	dir         string
	compression Compression
}

// NewLocalStorage constructs local storage rooted at dir.
func NewLocalStorage(dir string, compression Compression) *LocalStorage {
	return &LocalStorage{dir: dir, compression: compression}
}

func (s *LocalStorage) Save(_ context.Context, guildID, channelID string, html []byte) (string, error) {
	name, err := objectName(guildID, channelID, s.compression)
	if err != nil {
		return "", err
	}
	data, err := s.compression.encode(html)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return full, nil
}

// MinioStorage uploads transcripts to an object storage bucket.
type MinioStorage struct {
	client      *minio.Client
	bucket      string
	compression Compression
}

// MinioOptions configures the object storage connection.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStorage connects to the endpoint and makes sure the bucket exists.
func NewMinioStorage(ctx context.Context, opts MinioOptions, compression Compression) (*MinioStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}
	return &MinioStorage{client: client, bucket: opts.Bucket, compression: compression}, nil
}

func (s *MinioStorage) Save(ctx context.Context, guildID, channelID string, html []byte) (string, error) {
	name, err := objectName(guildID, channelID, s.compression)
	if err != nil {
		return "", err
	}
	data, err := s.compression.encode(html)
	if err != nil {
		return "", err
	}
	putOpts := minio.PutObjectOptions{ContentType: "text/html; charset=utf-8"}
	if s.compression == CompressionGzip {
		putOpts.ContentEncoding = "gzip"
	}
	info, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), putOpts)
	if err != nil {
		return "", fmt.Errorf("upload transcript: %w", err)
	}
	return path.Join(info.Bucket, info.Key), nil
}

// NopStorage discards transcripts.
type NopStorage struct{}

func (NopStorage) Save(context.Context, string, string, []byte) (string, error) {
	return "", ErrStorageDisabled
}
