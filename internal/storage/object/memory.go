// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests; no real blob backend
// is touched.
type MemoryStore struct {
	objects map[string]*object
	mu      sync.RWMutex
}

type object struct {
	path      string
	data      []byte
	metadata  map[string]string
	createdAt int64
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*object),
	}
}

func (s *MemoryStore) Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffer := &bytes.Buffer{}
	if size > 0 {
		buffer.Grow(int(size))
	}

	if _, err := io.Copy(buffer, data); err != nil {
		return fmt.Errorf("failed to read object data: %w", err)
	}

	s.objects[path] = &object{
		path:      path,
		data:      buffer.Bytes(),
		metadata:  metadata,
		createdAt: time.Now().Unix(),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[path]
	if !exists {
		return nil, fmt.Errorf("object with path %s not found", path)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[path]; !exists {
		return fmt.Errorf("object with path %s not found", path)
	}
	delete(s.objects, path)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*ObjectInfo
	for path, obj := range s.objects {
		if prefix == "" || (len(path) >= len(prefix) && path[:len(prefix)] == prefix) {
			results = append(results, &ObjectInfo{
				Path:      path,
				Size:      int64(len(obj.data)),
				Metadata:  obj.metadata,
				CreatedAt: obj.createdAt,
			})
		}
	}
	return results, nil
}

func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.objects[path]
	return exists, nil
}

func (s *MemoryStore) GetMetadata(ctx context.Context, path string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[path]
	if !exists {
		return nil, fmt.Errorf("object with path %s not found", path)
	}
	return obj.metadata, nil
}

// Move copies src to dst then removes src, tolerating repetition: if src
// is already gone but dst exists, it reports success rather than erroring,
// since a crash between copy and delete must be safe to replay
// (spec.md §9 "Idempotency of side effects").
func (s *MemoryStore) Move(ctx context.Context, src, dst string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcObj, srcExists := s.objects[src]
	if !srcExists {
		if _, dstExists := s.objects[dst]; dstExists {
			return false, nil
		}
		return false, fmt.Errorf("object with path %s not found", src)
	}

	cp := *srcObj
	cp.path = dst
	s.objects[dst] = &cp
	delete(s.objects, src)
	return true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
