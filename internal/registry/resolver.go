// ABOUTME: Resolution logic answering "the current usable model" queries
// ABOUTME: Combines registry metadata with bounded-depth artifact discovery

package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
)

// ModelFileExt is the expected extension of stored model files.
const ModelFileExt = ".keras"

// Resolver answers latest-version and artifact-path queries against a
// registry and its artifact store.
type Resolver struct {
	reg       Registry
	artifacts *ArtifactStore
	ext       string
	logger    *slog.Logger
}

// NewResolver creates a resolver. An empty ext selects ModelFileExt.
func NewResolver(reg Registry, artifacts *ArtifactStore, ext string) *Resolver {
	if ext == "" {
		ext = ModelFileExt
	}
	return &Resolver{
		reg:       reg,
		artifacts: artifacts,
		ext:       ext,
		logger:    slog.Default().With("component", "resolver"),
	}
}

// Latest resolves the latest version of a model name, including the path of
// its stored artifact.
func (r *Resolver) Latest(ctx context.Context, name string) (*ModelVersion, error) {
	v, err := r.reg.LatestVersion(ctx, name)
	if err != nil {
		return nil, err
	}

	path, err := r.ArtifactPath(ctx, v)
	if err != nil {
		return nil, err
	}
	v.ArtifactPath = path
	return v, nil
}

// ArtifactPath finds the stored model file for a version by searching its
// artifact tree, recursing exactly one directory level. The registration
// pipeline always stores run/subdir/file, so a deeper match must not count;
// the depth bound is part of the contract.
func (r *Resolver) ArtifactPath(ctx context.Context, v *ModelVersion) (string, error) {
	entries, err := r.artifacts.List(v.RunID, "")
	if err != nil {
		return "", ErrModelNotFoundInArtifacts
	}

	for _, entry := range entries {
		if !entry.IsDir {
			continue
		}
		nested, err := r.artifacts.List(v.RunID, entry.Path)
		if err != nil {
			continue
		}
		for _, n := range nested {
			if !n.IsDir && strings.HasSuffix(n.Path, r.ext) {
				path := filepath.Join(r.artifacts.RunDir(v.RunID), n.Path)
				r.logger.Debug("found model in artifacts", "run_id", v.RunID, "path", path)
				return path, nil
			}
		}
	}

	return "", ErrModelNotFoundInArtifacts
}

// ListAll resolves every registered model name to its latest version.
// Listing is best-effort: a model whose resolution fails is logged and
// skipped, never failing the whole listing.
func (r *Resolver) ListAll(ctx context.Context) ([]*ModelVersion, error) {
	names, err := r.reg.ListModelNames(ctx)
	if err != nil {
		return nil, err
	}

	versions := make([]*ModelVersion, 0, len(names))
	for _, name := range names {
		v, err := r.Latest(ctx, name)
		if err != nil {
			r.logger.Error("skipping unresolvable model", "name", name, "error", err)
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}
