// Package storage is the object store gateway used by the worker to read uploaded
// source files and write derived artifacts.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/minio/minio-go/v7"
	"io"
)

var (
	ErrObjectStore    = errors.New("object store error")
	ErrObjectNotFound = errors.New("object not found")
)

type Gateway interface {
	// Download returns the full object body.
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	// Upload writes data at path, replacing any existing object, and returns the stored path.
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}

type minioGateway struct {
	client *minio.Client
}

func NewMinIOGateway(client *minio.Client) Gateway {
	return &minioGateway{client: client}
}

func (g *minioGateway) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	object, err := g.client.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapError("download", bucket, path, err)
	}
	defer object.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(object)
	if err != nil {
		return nil, wrapError("download", bucket, path, err)
	}

	return data, nil
}

func (g *minioGateway) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: upload: empty path", ErrObjectStore)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := g.client.PutObject(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", wrapError("upload", bucket, path, err)
	}

	return info.Key, nil
}

func wrapError(op, bucket, path string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %w: %s %s/%s", ErrObjectStore, ErrObjectNotFound, op, bucket, path)
	}
	return fmt.Errorf("%w: %s %s/%s: %w", ErrObjectStore, op, bucket, path, err)
}
