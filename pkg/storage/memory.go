package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway keeps objects in a map. It is safe for concurrent use.
type MemoryGateway struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{objects: make(map[string]memoryObject)}
}

func (g *MemoryGateway) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: download %s/%s: %w", ErrObjectStore, bucket, path, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	obj, ok := g.objects[key(bucket, path)]
	if !ok {
		return nil, fmt.Errorf("%w: %w: download %s/%s", ErrObjectStore, ErrObjectNotFound, bucket, path)
	}
	return append([]byte(nil), obj.data...), nil
}

func (g *MemoryGateway) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: upload %s/%s: %w", ErrObjectStore, bucket, path, err)
	}
	if path == "" {
		return "", fmt.Errorf("%w: upload: empty path", ErrObjectStore)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.objects[key(bucket, path)] = memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
	}
	return path, nil
}

// Object returns a stored object's body and content type.
func (g *MemoryGateway) Object(bucket, path string) ([]byte, string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	obj, ok := g.objects[key(bucket, path)]
	return obj.data, obj.contentType, ok
}

func (g *MemoryGateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.objects)
}

func key(bucket, path string) string {
	return bucket + "/" + path
}
