// ABOUTME: Registry interface and data types for versioned model storage
// ABOUTME: Defines ModelVersion, Experiment and the Registry contract services depend on

package registry

import (
	"context"
	"errors"
	"time"
)

// Registry errors
var (
	// ErrModelNotFound is returned when no version exists for a model name.
	ErrModelNotFound = errors.New("model not found")

	// ErrModelNotFoundInArtifacts is returned when a version's artifact tree
	// holds no file with the expected extension at the expected depth.
	ErrModelNotFoundInArtifacts = errors.New("model not found in artifacts")

	// ErrExperimentNotFound is returned when an experiment name is unknown.
	ErrExperimentNotFound = errors.New("experiment not found")
)

// Version status values.
const (
	StatusReady = "READY"
)

// ModelVersion is one registered version of a named model.
//
// A version becomes visible to queries as soon as registration returns;
// Architecture and Metrics start empty and are filled in later by the
// evaluation worker, so readers must tolerate a partially populated record.
// Each of those fields is written atomically as a whole value.
type ModelVersion struct {
	Name         string
	Version      int
	Status       string
	ArtifactPath string // derived from the artifact tree, not persisted
	Architecture map[string]string
	ClassNames   []string
	Metrics      map[string]float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RunID        string
	ExperimentID string
}

// Experiment groups registration runs under a name. Experiments can be
// soft-deleted and later restored.
type Experiment struct {
	ID        string
	Name      string
	Deleted   bool
	CreatedAt time.Time
}

// Registry is the versioned model store contract. Implementations must
// serialize concurrent writes to distinct entries safely.
type Registry interface {
	// Experiments
	CreateExperiment(ctx context.Context, name string) (*Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)
	// RestoreExperiment undeletes an experiment. Restoring an already-active
	// experiment is a no-op.
	RestoreExperiment(ctx context.Context, id string) error
	DeleteExperiment(ctx context.Context, id string) error

	// Versions
	// CreateVersion registers a new version, assigning the next version
	// number for the model name and filling CreatedAt/UpdatedAt.
	CreateVersion(ctx context.Context, v *ModelVersion) error
	Versions(ctx context.Context, name string) ([]*ModelVersion, error)
	// LatestVersion returns the version with the highest version number,
	// ties broken by most recent creation time.
	LatestVersion(ctx context.Context, name string) (*ModelVersion, error)
	ListModelNames(ctx context.Context) ([]string, error)
	// SetEvaluation attaches the evaluation results to an existing version.
	// Architecture and metrics are each written as a whole value.
	SetEvaluation(ctx context.Context, name string, version int, architecture map[string]string, metrics map[string]float64) error

	Close() error
}
