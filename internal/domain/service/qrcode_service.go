package service

// QRCodeService defines the interface for profile share QR codes.
type QRCodeService interface {
	// GenerateProfileQR renders a PNG QR code encoding the public share
	// link for the given profile.
	GenerateProfileQR(profileID string) ([]byte, error)

	// ParseProfileQR extracts the profile id from scanned QR data.
	ParseProfileQR(qrData string) (string, error)
}
