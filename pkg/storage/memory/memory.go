// Package memory is an in-process object store for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type object struct {
	data     []byte
	modified time.Time
}

type Storage struct {
	bucket string
	now    func() time.Time

	mu      sync.RWMutex
	objects map[string]object
}

func New(bucket string) *Storage {
	return &Storage{
		bucket:  bucket,
		now:     time.Now,
		objects: make(map[string]object),
	}
}

func (s *Storage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read object %s: %w", key, err)
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, modified: s.now()}
	s.mu.Unlock()
	return fmt.Sprintf("memory://%s/%s", s.bucket, key), nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("object %s not found", key)
	}
	delete(s.objects, key)
	return nil
}

func (s *Storage) CleanupBefore(_ context.Context, prefix string, threshold time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for k, o := range s.objects {
		if strings.HasPrefix(k, prefix) && o.modified.Before(threshold) {
			delete(s.objects, k)
			deleted++
		}
	}
	return deleted, nil
}

// Get returns a copy of a stored object.
func (s *Storage) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.data...), true
}

// Keys lists the stored keys, sorted.
func (s *Storage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetClock replaces the modification time source.
func (s *Storage) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
