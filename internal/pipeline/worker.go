// ABOUTME: Evaluation worker that scores a registered model against a held-out dataset
// ABOUTME: Reloads the artifact from the registry tree so it evaluates exactly what was stored

package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/chestscan/modelhub/internal/evaluate"
	"github.com/chestscan/modelhub/internal/model"
	"github.com/chestscan/modelhub/internal/registry"
)

// EvaluationWorker computes the architecture summary and classification
// metrics for a registered version and attaches them to the registry entry.
type EvaluationWorker struct {
	resolver   *registry.Resolver
	reg        registry.Registry
	datasetDir string
	batchSize  int
	logger     *slog.Logger
}

// NewEvaluationWorker returns a worker that evaluates against the
// directory-per-class dataset under datasetDir.
func NewEvaluationWorker(resolver *registry.Resolver, reg registry.Registry, datasetDir string) *EvaluationWorker {
	return &EvaluationWorker{
		resolver:   resolver,
		reg:        reg,
		datasetDir: datasetDir,
		batchSize:  evaluate.DefaultBatchSize,
		logger:     slog.Default().With("component", "evaluation"),
	}
}

// Run evaluates one registered version. The artifact is resolved through the
// registry rather than any caller-supplied path. maxEvalCount > 0 stops the
// scan at the first batch boundary at or past that many samples; 0 scans the
// full dataset.
func (w *EvaluationWorker) Run(ctx context.Context, job Job) error {
	v := job.Version

	path, err := w.resolver.ArtifactPath(ctx, v)
	if err != nil {
		return fmt.Errorf("resolving artifact for %s v%d: %w", v.Name, v.Version, err)
	}

	bundle, err := model.Load(path)
	if err != nil {
		return fmt.Errorf("loading bundle %s: %w", path, err)
	}

	report, err := w.score(bundle, job.ClassNames, job.MaxEvalCount)
	if err != nil {
		return fmt.Errorf("scoring %s v%d: %w", v.Name, v.Version, err)
	}

	if err := w.reg.SetEvaluation(ctx, v.Name, v.Version, bundle.Architecture(), report.Flatten()); err != nil {
		return fmt.Errorf("storing evaluation for %s v%d: %w", v.Name, v.Version, err)
	}

	w.logger.Info("evaluation complete",
		"model", v.Name,
		"version", v.Version,
		"samples", report.SampleCount,
		"accuracy", report.Accuracy)
	return nil
}

func (w *EvaluationWorker) score(bundle *model.Bundle, classNames []string, maxEvalCount int) (evaluate.Report, error) {
	ds, err := evaluate.Open(w.datasetDir, classNames)
	if err != nil {
		return evaluate.Report{}, err
	}

	classIndex := make(map[string]int, len(classNames))
	for i, name := range classNames {
		classIndex[name] = i
	}

	var yTrue, yPred []int
	it := ds.Batches(w.batchSize)
	for {
		batch, err := it.Next()
		if err != nil {
			return evaluate.Report{}, err
		}
		if batch == nil {
			break
		}

		imgs := make([]image.Image, len(batch))
		for i, s := range batch {
			imgs[i] = s.Image
		}
		predicted, err := bundle.PredictBatch(imgs)
		if err != nil {
			return evaluate.Report{}, err
		}

		for i, name := range predicted {
			idx, ok := classIndex[name]
			if !ok {
				return evaluate.Report{}, fmt.Errorf("model predicted unknown class %q", name)
			}
			yTrue = append(yTrue, batch[i].Label)
			yPred = append(yPred, idx)
		}

		if maxEvalCount > 0 && len(yTrue) >= maxEvalCount {
			break
		}
	}

	return evaluate.Calculate(yTrue, yPred, classNames)
}
