// Package memory provides an in-process object store for development and tests.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/meigma/mappack/store"
)

// Object is a stored blob and its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// Store implements store.Store in memory. Objects do not survive a restart.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
	puts    int
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{objects: make(map[string]Object)}
}

// Exists reports whether an object is stored under name.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	if err := store.ValidateName(name); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[name]
	return ok, nil
}

// Get opens the object stored under name.
func (s *Store) Get(_ context.Context, name string) (io.ReadCloser, error) {
	obj, ok := s.Object(name)
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

// Put stores a copy of data under name.
func (s *Store) Put(_ context.Context, name string, data []byte, contentType string) error {
	if err := store.ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = Object{Data: bytes.Clone(data), ContentType: contentType}
	s.puts++
	return nil
}

// Object returns the object stored under name.
func (s *Store) Object(name string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	return obj, ok
}

// Puts returns the number of Put calls that succeeded.
func (s *Store) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
