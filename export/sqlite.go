package export

import (
	"bytes"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/algo-era/era"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite stores runs, models and metrics in a SQLite database. Every
// (name, method) pair seen by one SQLite value becomes a run with its own
// UUID, so repeated invocations against the same file keep their history.
type SQLite struct {
	db *sql.DB

	mu   sync.Mutex
	runs map[string]string
}

// RunRecord is a row of the runs table.
type RunRecord struct {
	ID         string
	Name       string
	Method     string
	SampleRate float64
	T, P, M    int
	Norm       float64
	Removed    float64
}

// OpenSQLite opens or creates the database at path and migrates it to the
// latest schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("export: opening %s: %w", path, err)
	}
	s := &SQLite{db: db, runs: make(map[string]string)}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("export: migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("export: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("export: migrate instance: %w", err)
	}
	// m is not closed: closing it closes the database as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("export: migration up failed: %w", err)
	}
	return nil
}

// RunID returns the ID of run, inserting the run on first use.
func (s *SQLite) RunID(run era.Run) (string, error) {
	key := run.Name + "\x00" + run.Method.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.runs[key]; ok {
		return id, nil
	}
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO runs
		(run_id, name, method, sample_rate, samples, outputs, inputs, norm, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.Name, run.Method.String(), run.SampleRate, run.T, run.P, run.M, run.Norm, run.Removed)
	if err != nil {
		return "", fmt.Errorf("export: inserting run %s: %w", run.Name, err)
	}
	s.runs[key] = id
	return id, nil
}

// SaveModel stores rom as JSON, replacing an earlier model of the same order.
func (s *SQLite) SaveModel(run era.Run, rom *era.Realization, m era.Metrics) error {
	id, err := s.RunID(run)
	if err != nil {
		return err
	}
	var body bytes.Buffer
	if err := WriteModel(&body, NewModel(run, rom, m)); err != nil {
		return fmt.Errorf("export: encoding model: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO models
		(run_id, model_order, tolerance, sampling_time, body)
		VALUES (?, ?, ?, ?, ?)`,
		id, rom.Order(), m.Tolerance, rom.SamplingTime, body.String())
	if err != nil {
		return fmt.Errorf("export: inserting model %d: %w", rom.Order(), err)
	}
	return nil
}

// SaveMetrics replaces the stored history of run.
func (s *SQLite) SaveMetrics(run era.Run, history []era.Metrics) error {
	id, err := s.RunID(run)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM metrics WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("export: clearing metrics: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO metrics
		(run_id, step, tolerance, model_order, samples, block_size, true_error,
		 relative_error, estimated_error, kung_bound, dof, stagnated, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer stmt.Close()
	for k, m := range history {
		if _, err := stmt.Exec(id, k, m.Tolerance, m.Order, m.Samples, m.BlockSize, m.TrueError,
			m.RelativeError, m.EstimatedError, m.KungBound, m.DegreesOfFreedom, m.Stagnated,
			m.Elapsed.Milliseconds()); err != nil {
			return fmt.Errorf("export: inserting step %d: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// Runs lists the stored runs in insertion order.
func (s *SQLite) Runs() ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT run_id, name, method, sample_rate, samples, outputs,
		inputs, norm, removed FROM runs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Method, &r.SampleRate, &r.T, &r.P, &r.M,
			&r.Norm, &r.Removed); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Model loads the model of the given order. A missing model yields an error
// wrapping sql.ErrNoRows.
func (s *SQLite) Model(runID string, order int) (Model, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM models WHERE run_id = ? AND model_order = ?`,
		runID, order).Scan(&body)
	if err != nil {
		return Model{}, fmt.Errorf("export: model %d of run %s: %w", order, runID, err)
	}
	return ReadModel(strings.NewReader(body))
}

// Orders lists the model orders stored for a run in ascending order.
func (s *SQLite) Orders(runID string) ([]int, error) {
	rows, err := s.db.Query(`SELECT model_order FROM models WHERE run_id = ? ORDER BY model_order`, runID)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Metrics loads the stored history of a run.
func (s *SQLite) Metrics(runID string) ([]era.Metrics, error) {
	rows, err := s.db.Query(`SELECT tolerance, model_order, samples, block_size, true_error,
		relative_error, estimated_error, kung_bound, dof, stagnated, elapsed_ms
		FROM metrics WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer rows.Close()

	var out []era.Metrics
	for rows.Next() {
		var (
			m  era.Metrics
			ms int64
		)
		if err := rows.Scan(&m.Tolerance, &m.Order, &m.Samples, &m.BlockSize, &m.TrueError,
			&m.RelativeError, &m.EstimatedError, &m.KungBound, &m.DegreesOfFreedom,
			&m.Stagnated, &ms); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		m.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, m)
	}
	return out, rows.Err()
}
