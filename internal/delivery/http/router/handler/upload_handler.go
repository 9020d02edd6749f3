package handler

import (
	"log/slog"
	"net/http"

	"flagfeed/internal/delivery/http/response"
	"flagfeed/internal/domain/service"
	"flagfeed/internal/infra/upload"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// uploadResponse carries the CDN URLs of a stored image.
type uploadResponse struct {
	URL      string `json:"url"`
	ThumbURL string `json:"thumbUrl"`
}

// UploadHandler accepts multipart image uploads and forwards them to
// the blob CDN.
type UploadHandler struct {
	uploader  service.BlobUploader
	validator *upload.Validator
	logger    *slog.Logger
}

// NewUploadHandler is the constructor for UploadHandler, injected by Fx.
func NewUploadHandler(uploader service.BlobUploader, validator *upload.Validator, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		uploader:  uploader,
		validator: validator,
		logger:    logger,
	}
}

// Upload handles a multipart image upload. The file part must be named
// "file".
func (h *UploadHandler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Multipart field 'file' is required")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if err := h.validator.Validate(fileHeader.Size, contentType); err != nil {
		return errors.WithStack(err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer src.Close()

	url, err := h.uploader.Upload(c.Request().Context(), src, fileHeader.Size, fileHeader.Filename, nil)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, uploadResponse{
		URL:      url,
		ThumbURL: upload.ThumbnailURL(url),
	}, "Image uploaded successfully")
}
