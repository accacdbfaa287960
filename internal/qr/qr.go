// Package qr mints opaque QR tokens and renders them as PNG images.
package qr

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/skip2/go-qrcode"
)

// TokenPrefix marks every token minted by NewToken.
const TokenPrefix = "QR-"

// DefaultImageSize is the rendered PNG edge length in pixels.
const DefaultImageSize = 256

// TokenFunc mints a new token. Swappable in tests to force collisions.
type TokenFunc func() string

// NewToken returns QR- followed by a 22 character base57 encoding of a
// random UUIDv4.
func NewToken() string {
	return TokenPrefix + shortuuid.New()
}

// LooksLikeToken rejects values that cannot have been minted by NewToken
// without touching the database.
func LooksLikeToken(s string) bool {
	if !strings.HasPrefix(s, TokenPrefix) {
		return false
	}
	rest := s[len(TokenPrefix):]
	if len(rest) < 1 || len(rest) > 64 {
		return false
	}
	for _, r := range rest {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// ViewURL is the public link encoded into a printed QR code.
func ViewURL(baseURL, qrID string) string {
	return fmt.Sprintf("%s/qrcodes/%s/view", strings.TrimRight(baseURL, "/"), url.PathEscape(qrID))
}

// RenderDataURL encodes content as a PNG QR image and returns it as a data URL.
func RenderDataURL(content string, size int) (string, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode qr image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
