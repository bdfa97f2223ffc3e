package api

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestDataURL(t *testing.T) {
	encoded := EncodeDataURL(ImageMediaType, []byte("hello"))
	if encoded != "data:image/webp;base64,aGVsbG8=" {
		t.Fatalf("EncodeDataURL = %q", encoded)
	}

	mediaType, data, err := DecodeDataURL(encoded)
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}
	if mediaType != ImageMediaType || string(data) != "hello" {
		t.Errorf("decoded %q %q", mediaType, data)
	}

	for _, bad := range []string{
		"image/webp;base64,aGVsbG8=",
		"data:image/webp;base64",
		"data:image/webp,hello",
		"data:image/webp;base64,!!!",
	} {
		if _, _, err := DecodeDataURL(bad); !errors.Is(err, ErrBadDataURL) {
			t.Errorf("DecodeDataURL(%q) = %v, want ErrBadDataURL", bad, err)
		}
	}
}

func TestUploadImage(t *testing.T) {
	srv, c := setupTestClient(t)
	ctx := context.Background()
	loggedIn(t, srv, c, "alice")

	if err := c.UploadImage(ctx, nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("empty upload: got %v", err)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := c.UploadImage(ctx, png); !errors.Is(err, ErrNotWebP) {
		t.Errorf("png upload: got %v", err)
	}
	if srv.Requests("POST /upload-image") != 0 {
		t.Error("rejected images must not reach the server")
	}

	if err := c.UploadImage(ctx, fakeWebP); err != nil {
		t.Fatalf("UploadImage: %v", err)
	}

	data, mediaType, err := c.Image(ctx, "alice")
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if mediaType != ImageMediaType || !bytes.Equal(data, fakeWebP) {
		t.Errorf("round trip mismatch: %s, %d bytes", mediaType, len(data))
	}
}

func TestImageMissing(t *testing.T) {
	srv, c := setupTestClient(t)
	loggedIn(t, srv, c, "alice")

	_, _, err := c.Image(context.Background(), "alice")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "Couldn't read image from the server" {
		t.Errorf("got %v", err)
	}
}
