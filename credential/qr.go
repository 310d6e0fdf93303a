package credential

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// qrSize is the rendered PNG edge length in pixels. 256 scans reliably
// on phone screens at arm's length from a fixed gate camera.
const qrSize = 256

// renderQR encodes the token into a PNG QR code and wraps it in a data
// URL suitable for direct embedding in an <img> tag.
func renderQR(token string) (string, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
