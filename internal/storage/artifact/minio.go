package artifact

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
)

const defaultBucket = "apk-artifacts"

// MinIOStore keeps artifacts as objects named <order id>/<kind>.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

var _ repository.ArtifactRepository = (*MinIOStore)(nil)

// NewMinIOStore creates the client. It does not contact the server; call EnsureBucket for that.
func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required when ARTIFACT_BACKEND=minio")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = defaultBucket
	}
	return &MinIOStore{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket when missing.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func orderPrefix(orderID int64) string {
	return strconv.FormatInt(orderID, 10) + "/"
}

func objectName(orderID int64, kind model.ArtifactKind) string {
	return orderPrefix(orderID) + string(kind)
}

func contentType(kind model.ArtifactKind) string {
	switch kind {
	case model.ArtifactBuild:
		return "application/vnd.android.package-archive"
	case model.ArtifactSources:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

func (s *MinIOStore) Save(ctx context.Context, orderID int64, kind model.ArtifactKind, r io.Reader) (int64, error) {
	info, err := s.client.PutObject(ctx, s.bucket, objectName(orderID, kind), r, -1,
		minio.PutObjectOptions{ContentType: contentType(kind)})
	if err != nil {
		return 0, fmt.Errorf("upload artifact: %w", err)
	}
	return info.Size, nil
}

func (s *MinIOStore) Open(ctx context.Context, orderID int64, kind model.ArtifactKind) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(orderID, kind), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (s *MinIOStore) Remove(ctx context.Context, orderID int64) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: orderPrefix(orderID), Recursive: true})
	for object := range objects {
		if object.Err != nil {
			return object.Err
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", object.Key, err)
		}
	}
	return nil
}
