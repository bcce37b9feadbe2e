package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/pagewright/internal/logging"
)

// FS writes output below a local directory.
type FS struct {
	dir    string
	root   string
	logger logging.Logger
}

// NewFS creates a writer for dir. root is the project root; an existing
// dir outside of it is never emptied.
func NewFS(dir, root string, logger logging.Logger) *FS {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FS{dir: dir, root: root, logger: logger.WithComponent("output")}
}

// Location returns the output directory.
func (w *FS) Location() string {
	return w.dir
}

// Prepare creates the output directory or empties it, keeping .git.
func (w *FS) Prepare(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(w.dir, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %s is not a directory", w.dir)
	}

	if !w.insideRoot() {
		w.logger.Warn(ctx, nil, "output directory is outside the project root and will not be emptied", "dir", w.dir)
		return nil
	}
	return emptyDir(w.dir, ".git")
}

// WriteFile writes f below the output directory.
func (w *FS) WriteFile(ctx context.Context, f File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := w.resolve(f.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, f.Data, 0o644)
}

func (w *FS) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output file %q escapes the output directory", name)
	}
	return filepath.Join(w.dir, clean), nil
}

func (w *FS) insideRoot() bool {
	if w.root == "" {
		return true
	}
	dir, err := filepath.Abs(w.dir)
	if err != nil {
		return false
	}
	root, err := filepath.Abs(w.root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, dir)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func emptyDir(dir string, keep ...string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if contains(keep, e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
