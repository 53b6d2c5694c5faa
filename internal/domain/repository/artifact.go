package repository

import (
	"context"
	"io"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// ArtifactRepository stores build results uploaded by workers.
type ArtifactRepository interface {
	Save(ctx context.Context, orderID int64, kind model.ArtifactKind, r io.Reader) (int64, error)
	Open(ctx context.Context, orderID int64, kind model.ArtifactKind) (io.ReadCloser, error)
	Remove(ctx context.Context, orderID int64) error
}
