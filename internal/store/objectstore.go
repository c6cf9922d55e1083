package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectStoreAuthPrefix = "auths"

// ObjectMirrorConfig captures configuration for the S3-compatible mirror.
type ObjectMirrorConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// ObjectMirror keeps token cache copies in an S3-compatible bucket under <prefix>/auths/.
type ObjectMirror struct {
	client *minio.Client
	cfg    ObjectMirrorConfig
}

// NewObjectMirror creates the client and makes sure the bucket exists.
func NewObjectMirror(ctx context.Context, cfg ObjectMirrorConfig) (*ObjectMirror, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("object store: access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store: secret key is required")
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}

	m := &ObjectMirror{client: client, cfg: cfg}
	if err = m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ObjectMirror) Name() string { return "object" }

// Push uploads payload as <prefix>/auths/<key>.
func (m *ObjectMirror) Push(ctx context.Context, key string, payload []byte) error {
	fullKey := m.objectKey(key)
	_, err := m.client.PutObject(ctx, m.cfg.Bucket, fullKey, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("object store: put object %s: %w", fullKey, err)
	}
	return nil
}

// Pull downloads the copy for key.
func (m *ObjectMirror) Pull(ctx context.Context, key string) ([]byte, error) {
	fullKey := m.objectKey(key)
	object, err := m.client.GetObject(ctx, m.cfg.Bucket, fullKey, minio.GetObjectOptions{})
	if err != nil {
		if isObjectNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("object store: get object %s: %w", fullKey, err)
	}
	defer func() {
		_ = object.Close()
	}()
	data, err := io.ReadAll(object)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("object store: read object %s: %w", fullKey, err)
	}
	return data, nil
}

// Delete removes the copy for key.
func (m *ObjectMirror) Delete(ctx context.Context, key string) error {
	fullKey := m.objectKey(key)
	if err := m.client.RemoveObject(ctx, m.cfg.Bucket, fullKey, minio.RemoveObjectOptions{}); err != nil {
		if isObjectNotFound(err) {
			return nil
		}
		return fmt.Errorf("object store: delete object %s: %w", fullKey, err)
	}
	return nil
}

func (m *ObjectMirror) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object store: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err = m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
		return fmt.Errorf("object store: create bucket: %w", err)
	}
	return nil
}

func (m *ObjectMirror) objectKey(key string) string {
	return prefixedKey(m.cfg.Prefix, objectStoreAuthPrefix+"/"+strings.TrimLeft(key, "/"))
}

func prefixedKey(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return strings.TrimLeft(prefix+"/"+key, "/")
}

func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
