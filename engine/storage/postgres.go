package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/evaldash/engine/config"
	"github.com/evaldash/engine/types"
)

const runsTableDDL = `
CREATE TABLE IF NOT EXISTS evaluation_runs (
	id           TEXT PRIMARY KEY,
	project_name TEXT NOT NULL,
	run_timestamp TIMESTAMPTZ NOT NULL,
	stats        JSONB NOT NULL,
	config       JSONB NOT NULL,
	raw_results  JSONB
);
CREATE INDEX IF NOT EXISTS idx_evaluation_runs_project
	ON evaluation_runs (project_name, run_timestamp DESC);
`

// PostgresStore is a PostgreSQL-backed HistoryStore.
type PostgresStore struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewPostgresStore connects to PostgreSQL and ensures the runs table
// exists.
func NewPostgresStore(cfg *config.PostgresConfig, log logrus.FieldLogger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		log: log.WithField("component", "postgres-store"),
	}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store.log.Info("Connected to PostgreSQL history store")
	return store, nil
}

// NewPostgresStoreFromDB wraps an existing connection; used by tests.
func NewPostgresStoreFromDB(db *sql.DB, log logrus.FieldLogger) (*PostgresStore, error) {
	store := &PostgresStore{
		db:  db,
		log: log.WithField("component", "postgres-store"),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, runsTableDDL); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

// SaveRun inserts a run, assigning an id when none is set.
func (s *PostgresStore) SaveRun(ctx context.Context, run *types.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	var rawJSON []byte
	if run.RawResults != nil {
		rawJSON, err = json.Marshal(run.RawResults)
		if err != nil {
			return fmt.Errorf("failed to marshal raw results: %w", err)
		}
	}

	query := `
		INSERT INTO evaluation_runs (id, project_name, run_timestamp, stats, config, raw_results)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query,
		run.ID, run.ProjectName, run.Timestamp, statsJSON, configJSON, rawJSON); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"project": run.ProjectName,
	}).Debug("Saved run")
	return nil
}

// GetRun returns the run with the given id.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*types.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_name, run_timestamp, stats, config, raw_results
		FROM evaluation_runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first, optionally filtered by
// project.
func (s *PostgresStore) ListRuns(ctx context.Context, project string) ([]*types.RunRecord, error) {
	query := `
		SELECT id, project_name, run_timestamp, stats, config, raw_results
		FROM evaluation_runs`
	args := []interface{}{}
	if project != "" {
		query += ` WHERE project_name = $1`
		args = append(args, project)
	}
	query += ` ORDER BY run_timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes the run with the given id.
func (s *PostgresStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM evaluation_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Close releases the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*types.RunRecord, error) {
	var run types.RunRecord
	var statsJSON, configJSON []byte
	var rawJSON sql.NullString

	if err := row.Scan(&run.ID, &run.ProjectName, &run.Timestamp,
		&statsJSON, &configJSON, &rawJSON); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	if err := json.Unmarshal(configJSON, &run.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if rawJSON.Valid && rawJSON.String != "" {
		if err := json.Unmarshal([]byte(rawJSON.String), &run.RawResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw results: %w", err)
		}
	}
	return &run, nil
}
