// Package artifact persists build results uploaded by workers.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
)

// FSStore keeps artifacts under <root>/<order id>/<kind>.
type FSStore struct {
	root string
}

var _ repository.ArtifactRepository = (*FSStore)(nil)

// NewFSStore creates root when missing.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) orderDir(orderID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(orderID, 10))
}

// Save writes r to a temporary file and renames it into place, so readers never see a partial artifact.
func (s *FSStore) Save(_ context.Context, orderID int64, kind model.ArtifactKind, r io.Reader) (int64, error) {
	dir := s.orderDir(orderID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("create order dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, string(kind)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp artifact: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, string(kind))); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("publish artifact: %w", err)
	}
	return written, nil
}

func (s *FSStore) Open(_ context.Context, orderID int64, kind model.ArtifactKind) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.orderDir(orderID), string(kind)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Remove deletes all artifacts of an order. Missing orders are not an error.
func (s *FSStore) Remove(_ context.Context, orderID int64) error {
	return os.RemoveAll(s.orderDir(orderID))
}
