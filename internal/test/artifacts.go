package test

import (
	"bytes"
	"context"
	"io"
	"sync"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

type artifactKey struct {
	orderID int64
	kind    model.ArtifactKind
}

// ArtifactStoreStub keeps artifacts in memory.
type ArtifactStoreStub struct {
	SaveErr   error
	RemoveErr error

	mu      sync.Mutex
	objects map[artifactKey][]byte
}

// NewArtifactStoreStub constructs an empty store.
func NewArtifactStoreStub() *ArtifactStoreStub {
	return &ArtifactStoreStub{objects: make(map[artifactKey][]byte)}
}

// Save reads r fully and stores it.
func (s *ArtifactStoreStub) Save(_ context.Context, orderID int64, kind model.ArtifactKind, r io.Reader) (int64, error) {
	if s.SaveErr != nil {
		return 0, s.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[artifactKey][]byte)
	}
	s.objects[artifactKey{orderID, kind}] = data
	return int64(len(data)), nil
}

// Open returns a reader over a stored artifact.
func (s *ArtifactStoreStub) Open(_ context.Context, orderID int64, kind model.ArtifactKind) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[artifactKey{orderID, kind}]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Remove deletes every artifact of orderID.
func (s *ArtifactStoreStub) Remove(_ context.Context, orderID int64) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if key.orderID == orderID {
			delete(s.objects, key)
		}
	}
	return nil
}

// Content returns a stored artifact and whether it exists.
func (s *ArtifactStoreStub) Content(orderID int64, kind model.ArtifactKind) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[artifactKey{orderID, kind}]
	return data, ok
}
