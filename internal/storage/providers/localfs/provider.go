// Package localfs implements media.StorageProvider on the local filesystem.
// A key "<namespace>/<file>" is stored at <dataRoot>/<namespace>/<file>.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marketline/marketchat/internal/media"
)

// Provider stores media objects below a single data root.
type Provider struct {
	dataRoot string
}

var _ media.StorageProvider = (*Provider)(nil)

// New creates a filesystem provider rooted at dataRoot, creating it if needed.
func New(dataRoot string) (*Provider, error) {
	abs, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create data root: %w", err)
	}
	return &Provider{dataRoot: abs}, nil
}

// Put writes the object through a temp file so readers never see a partial write.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := p.hostPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, media.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (p *Provider) Delete(_ context.Context, key string) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Ping reports whether the data root is still a writable directory.
func (p *Provider) Ping(context.Context) error {
	info, err := os.Stat(p.dataRoot)
	if err != nil {
		return fmt.Errorf("%w: %v", media.ErrProviderUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: data root is not a directory", media.ErrProviderUnavailable)
	}
	return nil
}

// hostPath converts a storage key into a path under the data root.
func (p *Provider) hostPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute key %s", media.ErrPathTraversal, key)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", media.ErrPathTraversal, key)
	}
	ns, file, ok := strings.Cut(clean, string(filepath.Separator))
	if !ok || strings.TrimSpace(ns) == "" || strings.TrimSpace(file) == "" || ns == "." {
		return "", fmt.Errorf("storage key must be <namespace>/<file>: %s", key)
	}
	joined := filepath.Join(p.dataRoot, ns, file)
	if !strings.HasPrefix(joined, p.dataRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", media.ErrPathTraversal, key)
	}
	return joined, nil
}
