// Package qrcode renders profile share codes.
package qrcode

import (
	"fmt"
	"net/url"
	"strings"

	"flagfeed/config"
	"flagfeed/internal/domain/service"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

const defaultSize = 256

type qrcodeService struct {
	size                 int
	errorCorrectionLevel qrcode.RecoveryLevel
	shareBaseURL         string
}

// NewQRCodeService creates a new QR code service instance
func NewQRCodeService(cfg *config.Config) service.QRCodeService {
	size := defaultSize
	level := qrcode.Medium
	shareBaseURL := ""

	if cfg.QRCode != nil {
		if cfg.QRCode.Size > 0 {
			size = cfg.QRCode.Size
		}
		switch cfg.QRCode.ErrorCorrectionLevel {
		case "L":
			level = qrcode.Low
		case "M":
			level = qrcode.Medium
		case "Q":
			level = qrcode.High
		case "H":
			level = qrcode.Highest
		}
		shareBaseURL = cfg.QRCode.ShareBaseURL
	}

	return &qrcodeService{
		size:                 size,
		errorCorrectionLevel: level,
		shareBaseURL:         strings.TrimSuffix(shareBaseURL, "/"),
	}
}

// GenerateProfileQR renders a PNG QR code encoding the profile share link.
func (s *qrcodeService) GenerateProfileQR(profileID string) ([]byte, error) {
	if profileID == "" {
		return nil, errors.New("profile id is required")
	}

	code, err := qrcode.New(s.shareLink(profileID), s.errorCorrectionLevel)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create QR code")
	}

	pngBytes, err := code.PNG(s.size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate PNG")
	}

	return pngBytes, nil
}

// ParseProfileQR extracts the profile id from a scanned share link.
func (s *qrcodeService) ParseProfileQR(qrData string) (string, error) {
	parsed, err := url.Parse(qrData)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse QR code data")
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 || segments[len(segments)-2] != "profiles" {
		return "", errors.Errorf("not a profile share link: %s", qrData)
	}

	profileID := segments[len(segments)-1]
	if profileID == "" {
		return "", errors.New("profile share link has no profile id")
	}

	return profileID, nil
}

func (s *qrcodeService) shareLink(profileID string) string {
	return fmt.Sprintf("%s/profiles/%s", s.shareBaseURL, url.PathEscape(profileID))
}
