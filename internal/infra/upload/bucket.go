package upload

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"

	"flagfeed/config"
	"flagfeed/internal/domain/lifecycle"
	"flagfeed/internal/domain/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"gocloud.dev/blob"

	// Bucket drivers resolvable from the configured URL scheme.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
)

type bucketUploader struct {
	bucket        *blob.Bucket
	publicBaseURL string
	logger        *slog.Logger
}

// BucketParams holds dependencies for the bucket uploader.
type BucketParams struct {
	fx.In
	fx.Lifecycle

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewBucketUploader creates a blob uploader backed by a portable bucket
// URL ("gs://...", "file://...", "mem://"). It serves self-hosted
// deployments that do not use the image CDN.
func NewBucketUploader(params BucketParams) (service.BlobUploader, error) {
	cfg := params.Config.Upload
	if cfg == nil || cfg.Bucket == nil || cfg.Bucket.URL == "" {
		return nil, errors.New("bucket upload configuration is required")
	}

	bucket, err := blob.OpenBucket(params.Ctx, cfg.Bucket.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open blob bucket")
	}

	params.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
			defer cancel()

			return errors.WithStack(bucket.Close())
		},
	})

	return &bucketUploader{
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(cfg.Bucket.PublicBaseURL, "/"),
		logger:        params.Logger,
	}, nil
}

func (u *bucketUploader) Upload(ctx context.Context, r io.Reader, size int64, fileName string, progress service.UploadProgressFunc) (string, error) {
	// Random prefix keeps concurrent uploads of like-named files apart.
	key := uuid.NewString() + "-" + path.Base(fileName)

	writer, err := u.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to open bucket writer")
	}

	if _, err := io.Copy(writer, &progressReader{r: r, total: size, progress: progress}); err != nil {
		_ = writer.Close()

		return "", errors.Wrap(err, "failed to stream blob to bucket")
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrap(err, "failed to finalize blob write")
	}

	u.logger.Debug("Stored blob in bucket", slog.String("key", key))

	return u.publicBaseURL + "/" + key, nil
}
