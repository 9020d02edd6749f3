package service

import (
	"context"
	"io"
)

// UploadProgressFunc reports upload progress. total is negative when the
// overall size is unknown.
type UploadProgressFunc func(done, total int64)

// BlobUploader wraps the hosted image CDN. A successful upload returns a
// stable public HTTPS URL for the stored blob.
type BlobUploader interface {
	// Upload streams the blob to the CDN under the given file name and
	// returns the public URL. progress may be nil.
	Upload(ctx context.Context, r io.Reader, size int64, fileName string, progress UploadProgressFunc) (string, error)
}
