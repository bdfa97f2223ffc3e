package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	ImageMediaType = "image/webp"
	MaxImageUpload = 2 << 20
)

var (
	ErrNotWebP    = errors.New("image wasn't a WebP")
	ErrEmptyImage = errors.New("no image uploaded")
	ErrBadDataURL = errors.New("malformed data url")
)

// UploadImage sets the user's avatar. The backend stores WebP only, so other
// formats are rejected before anything is sent.
func (c *Client) UploadImage(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}
	if len(data) > MaxImageUpload {
		return fmt.Errorf("image is %d bytes, limit is %d", len(data), MaxImageUpload)
	}
	if mt := mimetype.Detect(data); !mt.Is(ImageMediaType) {
		return fmt.Errorf("%w: detected %s", ErrNotWebP, mt.String())
	}
	body := map[string]string{"data": EncodeDataURL(ImageMediaType, data)}
	_, err := c.do(ctx, http.MethodPost, "/upload-image", nil, body)
	return err
}

// Image downloads name's avatar and returns the raw bytes and media type.
func (c *Client) Image(ctx context.Context, name string) ([]byte, string, error) {
	if name == "" {
		return nil, "", ErrEmptyName
	}
	body, err := c.do(ctx, http.MethodGet, "/image/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, "", err
	}
	mediaType, data, err := DecodeDataURL(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, "", fmt.Errorf("GET /image/%s: %w", name, err)
	}
	return data, mediaType, nil
}

func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL parses a base64 data URL ("data:<type>;base64,<payload>").
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrBadDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrBadDataURL
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrBadDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	return mediaType, data, nil
}
