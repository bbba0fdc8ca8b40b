package mfa

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/pquerna/otp"
)

// DefaultQRSize is the edge length in pixels of rendered enrollment QR codes.
const DefaultQRSize = 256

// RenderQRDataURL renders an otpauth:// URI as a PNG QR code and returns it as a
// data: URL suitable for an <img src>.
func RenderQRDataURL(uri string, size int) (string, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", err
	}
	img, err := key.Image(size, size)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
