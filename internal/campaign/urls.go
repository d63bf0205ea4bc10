package campaign

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// URLBuilder builds the per-recipient tracking URLs embedded in
// simulation messages. The message body exposes a single clickable
// link: the click endpoint, carrying the landing-page URL as a
// base64url-encoded query parameter. The browser passes through the
// click handler before reaching the landing page, which is what keeps
// Click and Fall apart as separate events of one user action.
type URLBuilder struct {
	base string
}

// NewURLBuilder creates a URLBuilder rooted at the externally
// reachable base URL of the tracking server.
func NewURLBuilder(baseURL string) (*URLBuilder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %q", baseURL)
	}
	return &URLBuilder{base: strings.TrimRight(u.String(), "/")}, nil
}

// OpenURL returns the tracking-pixel URL for a recipient token.
func (b *URLBuilder) OpenURL(token string) string {
	return b.base + "/t/open/" + token + ".png"
}

// FallURL returns the landing-page URL for a recipient token.
func (b *URLBuilder) FallURL(token string) string {
	return b.base + "/t/fall/" + token
}

// ClickURL returns the click-tracking URL for a recipient token, with
// the recipient's landing-page URL encoded as its target.
func (b *URLBuilder) ClickURL(token string) string {
	return b.base + "/t/click/" + token + "?u=" + EncodeTarget(b.FallURL(token))
}

// EncodeTarget encodes a redirect target for the click endpoint's `u`
// parameter.
func EncodeTarget(target string) string {
	return base64.URLEncoding.EncodeToString([]byte(target))
}

// DecodeTarget decodes the click endpoint's `u` parameter back into a
// redirect target.
func DecodeTarget(encoded string) (string, error) {
	if encoded == "" {
		return "", ErrMalformedTarget
	}
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedTarget, err)
	}
	return string(raw), nil
}
