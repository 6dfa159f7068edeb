// Package proof stores the photo evidence attached to quest submissions.
// The ledger only keeps the opaque reference returned by Save.
package proof

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned by Open when no artifact exists for the reference.
var ErrNotFound = errors.New("proof artifact not found")

// ErrUnsupportedType is returned for uploads that are not an accepted image.
var ErrUnsupportedType = errors.New("proof must be a JPEG, PNG or WebP image")

// Store persists proof artifacts. References are opaque to callers.
type Store interface {
	Save(ctx context.Context, groupID int64, up Upload) (ref string, err error)
	Open(ctx context.Context, ref string) (*Artifact, error)
	Delete(ctx context.Context, ref string) error
}

// Upload is an incoming artifact. ContentType must already be validated
// with DetectType.
type Upload struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

// Artifact is an opened artifact. Callers must close Body.
type Artifact struct {
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// DetectType sniffs the first bytes of an upload and returns its content
// type, or ErrUnsupportedType.
func DetectType(head []byte) (string, error) {
	ct := http.DetectContentType(head)
	if _, ok := extensions[ct]; !ok {
		return "", ErrUnsupportedType
	}
	return ct, nil
}

// newKey builds a time-ordered object key under the group's prefix.
func newKey(groupID int64, contentType string, now time.Time) (string, error) {
	ext, ok := extensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate proof id: %w", err)
	}
	return fmt.Sprintf("groups/%d/%s%s", groupID, id.String(), ext), nil
}

func contentTypeOf(ref string) string {
	if ct, ok := contentTypes[path.Ext(ref)]; ok {
		return ct
	}
	return "application/octet-stream"
}
