package export

import (
	"database/sql"
	"time"

	"github.com/LdDl/spotmate/internal/stack"
	"github.com/LdDl/spotmate/mot"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps results of every batch run in a single database.
// BeginRun must be called before Export. Export is safe for concurrent use.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	runID uuid.UUID
}

// OpenSQLiteStore opens (creating when needed) the results database and runs migrations
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// Writers are serialized by the single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}
	s := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	migrations := []string{
		// One row per batch invocation
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			folder TEXT NOT NULL,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// One row per processed stack
		`CREATE TABLE IF NOT EXISTS stacks (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			pixel_size REAL NOT NULL,
			frame_interval REAL NOT NULL,
			spots_detected INTEGER NOT NULL,
			spots_visible INTEGER NOT NULL,
			tracks_found INTEGER NOT NULL,
			tracks_visible INTEGER NOT NULL,
			PRIMARY KEY (run_id, filename)
		)`,

		// Visible tracks, the same columns as the CSV table
		`CREATE TABLE IF NOT EXISTS tracks (
			run_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			track_id INTEGER NOT NULL,
			mean_speed REAL NOT NULL,
			max_speed REAL NOT NULL,
			median_speed REAL NOT NULL,
			mean_straight_line_speed REAL NOT NULL,
			displacement REAL NOT NULL,
			total_distance REAL NOT NULL,
			duration REAL NOT NULL,
			PRIMARY KEY (run_id, filename, track_id),
			FOREIGN KEY (run_id, filename) REFERENCES stacks(run_id, filename) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tracks_filename ON tracks(filename)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// BeginRun registers a batch run; following exports are stamped with runID
func (s *SQLiteStore) BeginRun(runID uuid.UUID, folder string) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, folder, started_at) VALUES (?, ?, ?)`,
		runID.String(), folder, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "can't register run")
	}
	s.runID = runID
	return nil
}

// Export implements Exporter. A stack is written in a single transaction.
func (s *SQLiteStore) Export(st *stack.Stack, model *mot.Model) (string, error) {
	if s.runID == uuid.Nil {
		return "", errors.New("sqlite: BeginRun was not called")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return "", errors.Wrap(err, "can't begin transaction")
	}
	defer tx.Rollback()

	run := s.runID.String()
	// Re-exporting a stack within a run replaces its rows
	for _, table := range []string{"tracks", "stacks"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ? AND filename = ?`, run, st.Name); err != nil {
			return "", errors.Wrapf(err, "can't clear %s of %q", table, st.Name)
		}
	}
	_, err = tx.Exec(
		`INSERT INTO stacks (run_id, filename, pixel_size, frame_interval, spots_detected, spots_visible, tracks_found, tracks_visible)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run, st.Name, model.Calibration.PixelSize, model.Calibration.FrameInterval,
		model.Spots.Count(false), model.Spots.Count(true), model.Graph.NumTracks(), model.NumVisibleTracks(),
	)
	if err != nil {
		return "", errors.Wrapf(err, "can't store stack %q", st.Name)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO tracks (run_id, filename, track_id, mean_speed, max_speed, median_speed, mean_straight_line_speed, displacement, total_distance, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", errors.Wrap(err, "can't prepare track insert")
	}
	defer stmt.Close()
	for _, row := range Rows(st.Name, model) {
		_, err := stmt.Exec(run, row.Filename, row.TrackID, row.MeanSpeed, row.MaxSpeed, row.MedianSpeed,
			row.MeanStraightLineSpeed, row.Displacement, row.TotalDistance, row.Duration)
		if err != nil {
			return "", errors.Wrapf(err, "can't store track %d", row.TrackID)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "can't commit")
	}
	return s.path, nil
}

// Tracks returns stored rows of a run for one stack in track order
func (s *SQLiteStore) Tracks(runID uuid.UUID, filename string) ([]Row, error) {
	rows, err := s.db.Query(
		`SELECT filename, track_id, mean_speed, max_speed, median_speed, mean_straight_line_speed, displacement, total_distance, duration
		 FROM tracks WHERE run_id = ? AND filename = ? ORDER BY track_id`,
		runID.String(), filename,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ans := make([]Row, 0)
	for rows.Next() {
		var row Row
		err := rows.Scan(&row.Filename, &row.TrackID, &row.MeanSpeed, &row.MaxSpeed, &row.MedianSpeed,
			&row.MeanStraightLineSpeed, &row.Displacement, &row.TotalDistance, &row.Duration)
		if err != nil {
			return nil, err
		}
		ans = append(ans, row)
	}
	return ans, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
