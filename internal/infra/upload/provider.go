package upload

import (
	"context"
	"log/slog"

	"flagfeed/config"
	"flagfeed/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// ProviderParams holds dependencies for blob uploader selection.
type ProviderParams struct {
	fx.In
	fx.Lifecycle

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewBlobUploader creates the uploader named by upload.provider:
// "cloudinary" for the hosted image CDN, "bucket" for a portable blob
// bucket.
func NewBlobUploader(params ProviderParams) (service.BlobUploader, error) {
	provider := "cloudinary"
	if params.Config.Upload != nil && params.Config.Upload.Provider != "" {
		provider = params.Config.Upload.Provider
	}

	switch provider {
	case "cloudinary":
		return NewCloudinaryUploader(params.Config, params.Logger)
	case "bucket":
		return NewBucketUploader(BucketParams{
			Lifecycle: params.Lifecycle,
			Ctx:       params.Ctx,
			Config:    params.Config,
			Logger:    params.Logger,
		})
	default:
		return nil, errors.Errorf("unsupported upload provider: %s", provider)
	}
}
