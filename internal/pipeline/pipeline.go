// ABOUTME: Model registration pipeline: validate, restore, load, register, schedule
// ABOUTME: Returns the synchronous registration result without waiting for evaluation

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/chestscan/modelhub/internal/model"
	"github.com/chestscan/modelhub/internal/registry"
)

var (
	// ErrInvalidArgument is returned when a registration request is missing a
	// required field before any work starts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRegisterModel is returned for registration-time failures (restore,
	// load, or registry write). No partial entry is visible when registration
	// fails.
	ErrRegisterModel = errors.New("register model failed")
)

// RegisterRequest carries the inputs for one registration.
type RegisterRequest struct {
	ModelFilePath  string
	ModelName      string
	ClassNames     []string
	ExperimentName string
	MaxEvalCount   int
}

// Pipeline registers model versions and schedules their evaluation.
type Pipeline struct {
	reg       registry.Registry
	artifacts *registry.ArtifactStore
	sched     Submitter
	logger    *slog.Logger
}

// New returns a pipeline writing into reg and artifacts, handing evaluation
// jobs to sched.
func New(reg registry.Registry, artifacts *registry.ArtifactStore, sched Submitter) *Pipeline {
	return &Pipeline{
		reg:       reg,
		artifacts: artifacts,
		sched:     sched,
		logger:    slog.Default().With("component", "pipeline"),
	}
}

// Register validates the request, restores the experiment if it was
// soft-deleted, copies the artifact into the registry tree under a fresh run
// ID, writes the version record and schedules evaluation. It returns before
// the evaluation runs; the new version starts with empty architecture and
// metrics.
func (p *Pipeline) Register(ctx context.Context, req RegisterRequest) (*registry.ModelVersion, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	exp, err := p.ensureExperiment(ctx, req.ExperimentName)
	if err != nil {
		return nil, fmt.Errorf("%w: experiment %q: %v", ErrRegisterModel, req.ExperimentName, err)
	}

	// The bundle must load before anything is copied or written, so a bad
	// file leaves no trace in the registry.
	if _, err := model.Load(req.ModelFilePath); err != nil {
		return nil, fmt.Errorf("%w: loading %s: %v", ErrRegisterModel, req.ModelFilePath, err)
	}

	runID := uuid.NewString()

	src, err := os.Open(req.ModelFilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrRegisterModel, req.ModelFilePath, err)
	}
	defer src.Close()

	if _, err := p.artifacts.Save(runID, "model", filepath.Base(req.ModelFilePath), src); err != nil {
		return nil, fmt.Errorf("%w: storing artifact: %v", ErrRegisterModel, err)
	}

	v := &registry.ModelVersion{
		Name:         req.ModelName,
		Status:       registry.StatusReady,
		ClassNames:   req.ClassNames,
		RunID:        runID,
		ExperimentID: exp.ID,
	}
	if err := p.reg.CreateVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("%w: writing version: %v", ErrRegisterModel, err)
	}

	p.logger.Info("model registered",
		"model", v.Name,
		"version", v.Version,
		"run_id", runID,
		"experiment", req.ExperimentName)

	p.sched.Submit(Job{
		Version:      v,
		ClassNames:   req.ClassNames,
		MaxEvalCount: req.MaxEvalCount,
	})

	return v, nil
}

func (req RegisterRequest) validate() error {
	switch {
	case req.ModelName == "":
		return fmt.Errorf("%w: model name is required", ErrInvalidArgument)
	case req.ModelFilePath == "":
		return fmt.Errorf("%w: model file path is required", ErrInvalidArgument)
	case req.ExperimentName == "":
		return fmt.Errorf("%w: experiment name is required", ErrInvalidArgument)
	case len(req.ClassNames) == 0:
		return fmt.Errorf("%w: class names are required", ErrInvalidArgument)
	}
	return nil
}

// ensureExperiment fetches the experiment, creating it when unknown and
// restoring it when soft-deleted. Restoring an active experiment is a no-op.
func (p *Pipeline) ensureExperiment(ctx context.Context, name string) (*registry.Experiment, error) {
	exp, err := p.reg.GetExperimentByName(ctx, name)
	if errors.Is(err, registry.ErrExperimentNotFound) {
		return p.reg.CreateExperiment(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	if exp.Deleted {
		if err := p.reg.RestoreExperiment(ctx, exp.ID); err != nil {
			return nil, err
		}
		p.logger.Info("experiment restored", "experiment", name)
	}
	return exp, nil
}
