package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"flagfeed/config"
	domainerrors "flagfeed/internal/domain/errors"
	"flagfeed/internal/domain/service"

	"github.com/pkg/errors"
)

const cloudinaryUploadURL = "https://api.cloudinary.com/v1_1/%s/image/upload"

// thumbTransformation is inserted into a delivery URL to produce the
// square thumbnail variant used by feed cards.
const thumbTransformation = "c_fill,w_200,h_200"

type cloudinaryUploader struct {
	uploadURL    string
	uploadPreset string
	folder       string
	httpClient   *http.Client
	logger       *slog.Logger
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewCloudinaryUploader creates a blob uploader that posts unsigned
// multipart uploads to the Cloudinary REST endpoint.
func NewCloudinaryUploader(cfg *config.Config, logger *slog.Logger) (service.BlobUploader, error) {
	if cfg.Upload == nil || cfg.Upload.Cloudinary == nil {
		return nil, errors.New("cloudinary upload configuration is required")
	}
	cloudinary := cfg.Upload.Cloudinary
	if cloudinary.CloudName == "" || cloudinary.UploadPreset == "" {
		return nil, errors.New("cloudinary cloud name and upload preset are required")
	}

	return &cloudinaryUploader{
		uploadURL:    fmt.Sprintf(cloudinaryUploadURL, cloudinary.CloudName),
		uploadPreset: cloudinary.UploadPreset,
		folder:       cloudinary.Folder,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		logger:       logger,
	}, nil
}

// progressReader counts bytes as the HTTP transport drains the multipart
// body, reporting after each chunk.
type progressReader struct {
	r        io.Reader
	done     int64
	total    int64
	progress service.UploadProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.done += int64(n)
		if pr.progress != nil {
			pr.progress(pr.done, pr.total)
		}
	}

	return n, err
}

func (u *cloudinaryUploader) Upload(ctx context.Context, r io.Reader, size int64, fileName string, progress service.UploadProgressFunc) (string, error) {
	bodyReader, bodyWriter := io.Pipe()
	form := multipart.NewWriter(bodyWriter)

	go func() {
		err := u.writeForm(form, r, fileName)
		if closeErr := form.Close(); err == nil {
			err = closeErr
		}
		bodyWriter.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, &progressReader{
		r:        bodyReader,
		total:    size,
		progress: progress,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to build upload request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", domainerrors.ErrUploadFailed.WrapMessage(err.Error())
	}
	defer resp.Body.Close()

	var parsed cloudinaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", domainerrors.ErrUploadResponseInvalid.WrapMessage(err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		u.logger.Error("Image host rejected upload",
			slog.Int("status", resp.StatusCode),
			slog.String("message", parsed.Error.Message))

		return "", domainerrors.ErrUploadFailed.WithDetails(parsed.Error.Message)
	}

	if parsed.SecureURL == "" {
		return "", domainerrors.ErrUploadResponseInvalid.WithDetails("missing secure_url")
	}

	return parsed.SecureURL, nil
}

func (u *cloudinaryUploader) writeForm(form *multipart.Writer, r io.Reader, fileName string) error {
	if err := form.WriteField("upload_preset", u.uploadPreset); err != nil {
		return errors.Wrap(err, "failed to write upload preset field")
	}
	if u.folder != "" {
		if err := form.WriteField("folder", u.folder); err != nil {
			return errors.Wrap(err, "failed to write folder field")
		}
	}

	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return errors.Wrap(err, "failed to create file part")
	}
	if _, err := io.Copy(part, r); err != nil {
		return errors.Wrap(err, "failed to stream file body")
	}

	return nil
}

// ThumbnailURL derives the thumbnail variant of a Cloudinary delivery
// URL. URLs without the /upload/ segment are returned unchanged.
func ThumbnailURL(imageURL string) string {
	const marker = "/upload/"

	idx := strings.Index(imageURL, marker)
	if idx < 0 {
		return imageURL
	}

	return imageURL[:idx+len(marker)] + thumbTransformation + "/" + imageURL[idx+len(marker):]
}
