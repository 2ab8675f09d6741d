// Package objectstore uploads exported feature tables to an S3 compatible bucket.
package objectstore

import (
	"context"
	"net"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func (c Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errors.New("FEATURES_S3_ENDPOINT is required")
	case c.AccessKey == "":
		return errors.New("FEATURES_S3_ACCESS_KEY is required")
	case c.SecretKey == "":
		return errors.New("FEATURES_S3_SECRET_KEY is required")
	case c.Bucket == "":
		return errors.New("FEATURES_S3_BUCKET is required")
	}

	return nil
}

// Uploader stores a local file under key and returns the object key.
type Uploader interface {
	Upload(ctx context.Context, key, localPath string) (string, error)
}

// ObjectKey builds the key of a feature file: <dataset>/<session>/<stage>/<file name>.
func ObjectKey(dataset, sessionID, stage, localPath string) string {
	return path.Join(strings.ToLower(dataset), sessionID, stage, path.Base(strings.ReplaceAll(localPath, "\\", "/")))
}

// Store is an Uploader backed by MinIO or any S3 endpoint.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// New creates the client. It does not contact the endpoint.
func New(cfg Config) (*Store, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to create object store client")
	}

	return &Store{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the bucket when it is missing.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrapf(err, "unable to check bucket %s", s.bucket)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	if err != nil {
		return errors.Wrapf(err, "unable to create bucket %s", s.bucket)
	}

	return nil
}

// Upload puts the file at localPath under key, overwriting any previous object.
func (s *Store) Upload(ctx context.Context, key, localPath string) (string, error) {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return "", errors.Wrapf(err, "unable to upload %s", localPath)
	}

	return key, nil
}

// Bucket returns the bucket objects are written to.
func (s *Store) Bucket() string {
	return s.bucket
}

func contentType(localPath string) string {
	switch strings.ToLower(path.Ext(localPath)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Memory keeps uploaded content in memory.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *Memory) Upload(_ context.Context, key, localPath string) (string, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read %s", localPath)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = content

	return key, nil
}

// Keys returns the stored keys in lexical order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Object returns the content stored under key.
func (m *Memory) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, ok := m.objects[key]

	return content, ok
}

var (
	_ Uploader = (*Store)(nil)
	_ Uploader = (*Memory)(nil)
)
