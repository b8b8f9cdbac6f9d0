// ABOUTME: Unit tests for the SQLite registry
// ABOUTME: Covers version numbering, latest resolution, experiments, and evaluation updates

package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *SQLiteRegistry {
	t.Helper()
	reg, err := NewSQLiteRegistry(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func registerVersion(t *testing.T, reg *SQLiteRegistry, expID, name string) *ModelVersion {
	t.Helper()
	v := &ModelVersion{
		Name:         name,
		ClassNames:   []string{"COVID", "Normal"},
		RunID:        "run-" + name,
		ExperimentID: expID,
	}
	require.NoError(t, reg.CreateVersion(context.Background(), v))
	return v
}

func TestSQLiteRegistry_VersionNumbering(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	exp, err := reg.CreateExperiment(ctx, "Covid_Models")
	require.NoError(t, err)

	// Interleave two model names; numbering is per name.
	a1 := registerVersion(t, reg, exp.ID, "covid-cnn")
	b1 := registerVersion(t, reg, exp.ID, "pneumonia-cnn")
	a2 := registerVersion(t, reg, exp.ID, "covid-cnn")
	a3 := registerVersion(t, reg, exp.ID, "covid-cnn")

	assert.Equal(t, 1, a1.Version)
	assert.Equal(t, 1, b1.Version)
	assert.Equal(t, 2, a2.Version)
	assert.Equal(t, 3, a3.Version)
}

func TestSQLiteRegistry_LatestVersion(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	exp, err := reg.CreateExperiment(ctx, "Covid_Models")
	require.NoError(t, err)

	registerVersion(t, reg, exp.ID, "covid-cnn")
	registerVersion(t, reg, exp.ID, "covid-cnn")
	registerVersion(t, reg, exp.ID, "covid-cnn")

	latest, err := reg.LatestVersion(ctx, "covid-cnn")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
	assert.Equal(t, StatusReady, latest.Status)
	assert.Nil(t, latest.Metrics, "metrics start empty")
	assert.Nil(t, latest.Architecture, "architecture starts empty")
}

func TestSQLiteRegistry_LatestVersionUnknownModel(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.LatestVersion(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestSQLiteRegistry_SetEvaluation(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	exp, err := reg.CreateExperiment(ctx, "Covid_Models")
	require.NoError(t, err)
	v := registerVersion(t, reg, exp.ID, "covid-cnn")

	arch := map[string]string{"layer0": "Conv2D", "layer1": "MaxPooling2D"}
	metrics := map[string]float64{"accuracy": 0.91, "precision_COVID": 0.88}
	require.NoError(t, reg.SetEvaluation(ctx, v.Name, v.Version, arch, metrics))

	// Same version number, now populated.
	latest, err := reg.LatestVersion(ctx, "covid-cnn")
	require.NoError(t, err)
	assert.Equal(t, v.Version, latest.Version)
	assert.Equal(t, arch, latest.Architecture)
	assert.Equal(t, metrics, latest.Metrics)
	assert.True(t, latest.UpdatedAt.After(latest.CreatedAt) || latest.UpdatedAt.Equal(latest.CreatedAt))
}

func TestSQLiteRegistry_SetEvaluationUnknownVersion(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.SetEvaluation(context.Background(), "absent", 1, nil, nil)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestSQLiteRegistry_ExperimentLifecycle(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	exp, err := reg.CreateExperiment(ctx, "Covid_Models")
	require.NoError(t, err)

	got, err := reg.GetExperimentByName(ctx, "Covid_Models")
	require.NoError(t, err)
	assert.Equal(t, exp.ID, got.ID)
	assert.False(t, got.Deleted)

	require.NoError(t, reg.DeleteExperiment(ctx, exp.ID))
	got, err = reg.GetExperimentByName(ctx, "Covid_Models")
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	// Restore, then restore again: idempotent.
	require.NoError(t, reg.RestoreExperiment(ctx, exp.ID))
	require.NoError(t, reg.RestoreExperiment(ctx, exp.ID))
	got, err = reg.GetExperimentByName(ctx, "Covid_Models")
	require.NoError(t, err)
	assert.False(t, got.Deleted)
}

func TestSQLiteRegistry_ExperimentNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.GetExperimentByName(ctx, "absent")
	assert.ErrorIs(t, err, ErrExperimentNotFound)

	assert.ErrorIs(t, reg.RestoreExperiment(ctx, "no-such-id"), ErrExperimentNotFound)
}

func TestSQLiteRegistry_ListModelNames(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	exp, err := reg.CreateExperiment(ctx, "Covid_Models")
	require.NoError(t, err)

	registerVersion(t, reg, exp.ID, "covid-cnn")
	registerVersion(t, reg, exp.ID, "covid-cnn")
	registerVersion(t, reg, exp.ID, "pneumonia-cnn")

	names, err := reg.ListModelNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"covid-cnn", "pneumonia-cnn"}, names)
}
