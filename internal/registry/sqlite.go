// ABOUTME: SQLite implementation of the Registry interface using modernc.org/sqlite
// ABOUTME: Provides experiment/version persistence with automatic schema creation

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRegistry implements the Registry interface using SQLite.
type SQLiteRegistry struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRegistry creates a new SQLite registry at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	logger := slog.Default().With("component", "registry")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	r := &SQLiteRegistry{
		db:     db,
		logger: logger,
	}

	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite registry initialized", "path", path)
	return r, nil
}

// createSchema creates the registry tables if they don't exist.
func (r *SQLiteRegistry) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS experiments (
			id         TEXT PRIMARY KEY,
			name       TEXT UNIQUE NOT NULL,
			deleted    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS model_versions (
			name          TEXT NOT NULL,
			version       INTEGER NOT NULL,
			status        TEXT NOT NULL,
			architecture  TEXT,
			class_names   TEXT NOT NULL,
			metrics       TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			run_id        TEXT NOT NULL,
			experiment_id TEXT NOT NULL REFERENCES experiments(id),

			PRIMARY KEY (name, version)
		);

		CREATE INDEX IF NOT EXISTS idx_model_versions_name ON model_versions(name);
		CREATE INDEX IF NOT EXISTS idx_model_versions_run ON model_versions(run_id);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *SQLiteRegistry) Close() error {
	r.logger.Info("closing SQLite registry")
	return r.db.Close()
}

// CreateExperiment creates a new experiment with a fresh ID.
func (r *SQLiteRegistry) CreateExperiment(ctx context.Context, name string) (*Experiment, error) {
	exp := &Experiment{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO experiments (id, name, deleted, created_at) VALUES (?, ?, 0, ?)`
	_, err := r.db.ExecContext(ctx, query, exp.ID, exp.Name, exp.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting experiment: %w", err)
	}

	r.logger.Info("created experiment", "id", exp.ID, "name", name)
	return exp, nil
}

// GetExperimentByName looks up an experiment, including soft-deleted ones.
func (r *SQLiteRegistry) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	query := `SELECT id, name, deleted, created_at FROM experiments WHERE name = ?`

	var exp Experiment
	var deleted int
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, name).Scan(&exp.ID, &exp.Name, &deleted, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExperimentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying experiment: %w", err)
	}

	exp.Deleted = deleted != 0
	exp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &exp, nil
}

// RestoreExperiment clears the deleted flag. Restoring an active experiment
// is a no-op, so the call is idempotent.
func (r *SQLiteRegistry) RestoreExperiment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE experiments SET deleted = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("restoring experiment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("restoring experiment: %w", err)
	}
	if n == 0 {
		return ErrExperimentNotFound
	}

	r.logger.Info("restored experiment", "id", id)
	return nil
}

// DeleteExperiment soft-deletes an experiment. Its versions stay queryable.
func (r *SQLiteRegistry) DeleteExperiment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE experiments SET deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting experiment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting experiment: %w", err)
	}
	if n == 0 {
		return ErrExperimentNotFound
	}

	r.logger.Info("soft-deleted experiment", "id", id)
	return nil
}

// CreateVersion registers a new version of v.Name. The version number is
// assigned inside the insert transaction so concurrent registrations of the
// same name cannot collide.
func (r *SQLiteRegistry) CreateVersion(ctx context.Context, v *ModelVersion) error {
	classNames, err := json.Marshal(v.ClassNames)
	if err != nil {
		return fmt.Errorf("encoding class names: %w", err)
	}

	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.Status == "" {
		v.Status = StatusReady
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions WHERE name = ?`, v.Name,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("assigning version number: %w", err)
	}
	v.Version = next

	query := `
		INSERT INTO model_versions
			(name, version, status, architecture, class_names, metrics, created_at, updated_at, run_id, experiment_id)
		VALUES (?, ?, ?, NULL, ?, NULL, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		v.Name,
		v.Version,
		v.Status,
		string(classNames),
		v.CreatedAt.Format(time.RFC3339Nano),
		v.UpdatedAt.Format(time.RFC3339Nano),
		v.RunID,
		v.ExperimentID,
	)
	if err != nil {
		return fmt.Errorf("inserting model version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing model version: %w", err)
	}

	r.logger.Info("registered model version", "name", v.Name, "version", v.Version, "run_id", v.RunID)
	return nil
}

// Versions returns every version of a model, newest version number first.
func (r *SQLiteRegistry) Versions(ctx context.Context, name string) ([]*ModelVersion, error) {
	query := `
		SELECT name, version, status, architecture, class_names, metrics, created_at, updated_at, run_id, experiment_id
		FROM model_versions
		WHERE name = ?
		ORDER BY version DESC, created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var versions []*ModelVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}

	return versions, nil
}

// LatestVersion resolves the single latest version of a model name.
func (r *SQLiteRegistry) LatestVersion(ctx context.Context, name string) (*ModelVersion, error) {
	versions, err := r.Versions(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrModelNotFound
	}
	return versions[0], nil
}

// ListModelNames enumerates every registered model name.
func (r *SQLiteRegistry) ListModelNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT name FROM model_versions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying model names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning model name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model names: %w", err)
	}

	return names, nil
}

// SetEvaluation attaches architecture and metrics to an existing version.
// Both fields are written in one statement so readers never observe a
// half-populated field.
func (r *SQLiteRegistry) SetEvaluation(ctx context.Context, name string, version int, architecture map[string]string, metrics map[string]float64) error {
	archJSON, err := json.Marshal(architecture)
	if err != nil {
		return fmt.Errorf("encoding architecture: %w", err)
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}

	query := `
		UPDATE model_versions
		SET architecture = ?, metrics = ?, updated_at = ?
		WHERE name = ? AND version = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		string(archJSON),
		string(metricsJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		name,
		version,
	)
	if err != nil {
		return fmt.Errorf("updating evaluation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating evaluation: %w", err)
	}
	if n == 0 {
		return ErrModelNotFound
	}

	r.logger.Info("attached evaluation results", "name", name, "version", version, "metrics", len(metrics))
	return nil
}

// scanVersion reads one model_versions row.
func scanVersion(rows *sql.Rows) (*ModelVersion, error) {
	var v ModelVersion
	var architecture, metrics sql.NullString
	var classNames, createdAt, updatedAt string

	err := rows.Scan(
		&v.Name,
		&v.Version,
		&v.Status,
		&architecture,
		&classNames,
		&metrics,
		&createdAt,
		&updatedAt,
		&v.RunID,
		&v.ExperimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning model version: %w", err)
	}

	if err := json.Unmarshal([]byte(classNames), &v.ClassNames); err != nil {
		return nil, fmt.Errorf("decoding class names: %w", err)
	}
	if architecture.Valid {
		if err := json.Unmarshal([]byte(architecture.String), &v.Architecture); err != nil {
			return nil, fmt.Errorf("decoding architecture: %w", err)
		}
	}
	if metrics.Valid {
		if err := json.Unmarshal([]byte(metrics.String), &v.Metrics); err != nil {
			return nil, fmt.Errorf("decoding metrics: %w", err)
		}
	}

	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	v.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &v, nil
}
