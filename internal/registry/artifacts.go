// ABOUTME: Filesystem artifact store holding model files under per-run directories
// ABOUTME: Layout is <root>/<runID>/<subdir>/<file>, exactly one level of nesting

package registry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ArtifactEntry describes one entry in a run's artifact tree.
type ArtifactEntry struct {
	Path  string // relative to the run directory
	IsDir bool
}

// ArtifactStore stores model artifacts on the filesystem. The registration
// pipeline always writes exactly one level of nesting (run/subdir/file), and
// readers rely on that bound.
type ArtifactStore struct {
	root   string
	logger *slog.Logger
}

// NewArtifactStore creates an artifact store rooted at root, creating the
// directory if needed.
func NewArtifactStore(root string) (*ArtifactStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact root: %w", err)
	}
	return &ArtifactStore{
		root:   root,
		logger: slog.Default().With("component", "artifacts"),
	}, nil
}

// Root returns the artifact root directory.
func (s *ArtifactStore) Root() string {
	return s.root
}

// RunDir returns the directory holding a run's artifacts.
func (s *ArtifactStore) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

// Save stores the contents of r as <root>/<runID>/<subdir>/<filename> and
// returns the absolute path of the stored file.
func (s *ArtifactStore) Save(runID, subdir, filename string, r io.Reader) (string, error) {
	dir := filepath.Join(s.root, runID, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating artifact file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing artifact file: %w", err)
	}

	s.logger.Debug("stored artifact", "run_id", runID, "path", path)
	return path, nil
}

// List enumerates the entries under <root>/<runID>/<subpath>. Paths in the
// result are relative to the run directory, matching the registry contract's
// nested-listing semantics.
func (s *ArtifactStore) List(runID, subpath string) ([]ArtifactEntry, error) {
	dir := filepath.Join(s.root, runID, subpath)
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	entries := make([]ArtifactEntry, 0, len(dirents))
	for _, de := range dirents {
		entries = append(entries, ArtifactEntry{
			Path:  filepath.Join(subpath, de.Name()),
			IsDir: de.IsDir(),
		})
	}
	return entries, nil
}
