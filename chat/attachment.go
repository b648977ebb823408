package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAttachment marks attachment payloads that fail validation.
var ErrInvalidAttachment = errors.New("chat: invalid attachment")

// NewImageAttachment validates an image data URL and wraps it. The MIME
// type is taken from the payload bytes, not the data URL label.
func NewImageAttachment(name, dataURL string) (Attachment, error) {
	_, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
	}
	mimeType := SniffImageMIME(data)
	if mimeType == "" {
		return Attachment{}, fmt.Errorf("%w: payload is not a recognized image", ErrInvalidAttachment)
	}
	return Attachment{
		ID:        uuid.NewString(),
		Kind:      AttachmentImage,
		Payload:   dataURL,
		Name:      name,
		MIME:      mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}, nil
}

// NewURLAttachment validates and wraps a link attachment.
func NewURLAttachment(rawURL string) (Attachment, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return Attachment{}, fmt.Errorf("%w: url must be absolute http(s)", ErrInvalidAttachment)
	}
	return Attachment{
		ID:        uuid.NewString(),
		Kind:      AttachmentURL,
		Payload:   rawURL,
		Name:      u.Host,
		CreatedAt: time.Now(),
	}, nil
}

// NewFileAttachment wraps an arbitrary file payload given as a data URL.
func NewFileAttachment(name, dataURL string) (Attachment, error) {
	mimeType, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
	}
	if sniffed := SniffImageMIME(data); sniffed != "" {
		mimeType = sniffed
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return Attachment{
		ID:        uuid.NewString(),
		Kind:      AttachmentFile,
		Payload:   dataURL,
		Name:      name,
		MIME:      mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}, nil
}

// EncodeDataURL builds a base64 data URL from raw bytes.
func EncodeDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DecodeDataURL splits a base64 data URL into its MIME label and bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, errors.New("missing data: prefix")
	}
	rest := s[len("data:"):]
	sep := strings.Index(rest, ",")
	if sep < 0 {
		return "", nil, errors.New("missing payload separator")
	}
	meta, payload := rest[:sep], rest[sep+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, errors.New("only base64 data URLs are supported")
	}
	mimeType := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(data) == 0 {
		return "", nil, errors.New("empty payload")
	}
	return mimeType, data, nil
}

// SniffImageMIME identifies an image format from its leading bytes,
// returning empty string for non-images.
func SniffImageMIME(data []byte) string {
	n := len(data)

	// JPEG: FF D8 FF
	if n >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if n >= 4 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if n >= 4 && data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: RIFF....WEBP
	if n >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	// BMP: 42 4D
	if n >= 2 && data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}

	return ""
}
