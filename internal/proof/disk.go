package proof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DiskStore keeps artifacts under a local directory.
type DiskStore struct {
	root string
	now  func() time.Time
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return &DiskStore{root: root, now: time.Now}, nil
}

func (d *DiskStore) path(ref string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(ref)) {
		return "", fmt.Errorf("invalid proof ref %q", ref)
	}
	return filepath.Join(d.root, filepath.FromSlash(ref)), nil
}

func (d *DiskStore) Save(ctx context.Context, groupID int64, up Upload) (string, error) {
	ref, err := newKey(groupID, up.ContentType, d.now())
	if err != nil {
		return "", err
	}
	p, err := d.path(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("create proof dir: %w", err)
	}

	// Write to a temp file first so a failed copy never leaves a partial artifact.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, up.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write proof: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close proof: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", fmt.Errorf("store proof: %w", err)
	}
	return ref, nil
}

func (d *DiskStore) Open(ctx context.Context, ref string) (*Artifact, error) {
	p, err := d.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open proof: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat proof: %w", err)
	}
	return &Artifact{ContentType: contentTypeOf(ref), Size: stat.Size(), Body: f}, nil
}

// Delete removes the artifact. Deleting a missing artifact is not an error.
func (d *DiskStore) Delete(ctx context.Context, ref string) error {
	p, err := d.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete proof: %w", err)
	}
	return nil
}
