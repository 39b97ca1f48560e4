package tracking

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS experiments (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	experiment_id INTEGER NOT NULL REFERENCES experiments(id),
	name          TEXT NOT NULL,
	status        TEXT NOT NULL,
	start_time    INTEGER NOT NULL,
	end_time      INTEGER
);
CREATE TABLE IF NOT EXISTS params (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	key    TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (run_id, key)
);
CREATE TABLE IF NOT EXISTS metrics (
	run_id    TEXT NOT NULL REFERENCES runs(run_id),
	key       TEXT NOT NULL,
	value     REAL NOT NULL,
	timestamp INTEGER NOT NULL,
	step      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS artifacts (
	run_id  TEXT NOT NULL REFERENCES runs(run_id),
	path    TEXT NOT NULL,
	size    INTEGER NOT NULL,
	content BLOB NOT NULL,
	PRIMARY KEY (run_id, path)
);`

// SQLiteRecorder keeps runs in a local SQLite database.
type SQLiteRecorder struct {
	db           *sqlx.DB
	experimentID int64
}

// OpenSQLiteRecorder opens (or creates) the database at path and registers
// the experiment.
func OpenSQLiteRecorder(path, experiment string) (*SQLiteRecorder, error) {
	if experiment == "" {
		experiment = "Default"
	}
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open tracking database %s", path)
	}
	// modernc sqlite はコネクション間でトランザクションを共有しない
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create tracking schema")
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO experiments (name) VALUES (?)`, experiment); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "register experiment")
	}
	var id int64
	if err := db.Get(&id, `SELECT id FROM experiments WHERE name = ?`, experiment); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "look up experiment")
	}
	return &SQLiteRecorder{db: db, experimentID: id}, nil
}

// Close closes the database.
func (s *SQLiteRecorder) Close() error { return s.db.Close() }

// StartRun implements Recorder.
func (s *SQLiteRecorder) StartRun(ctx context.Context, name string) (Run, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, experiment_id, name, status, start_time) VALUES (?, ?, ?, ?, ?)`,
		id, s.experimentID, name, string(RunStatusRunning), time.Now().UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "create run")
	}
	return &sqliteRun{db: s.db, id: id}, nil
}

type sqliteRun struct {
	db *sqlx.DB
	id string
}

func (r *sqliteRun) ID() string { return r.id }

func (r *sqliteRun) LogParams(ctx context.Context, params map[string]string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, k := range sortedKeys(params) {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO params (run_id, key, value) VALUES (?, ?, ?)`,
				r.id, k, params[k]); err != nil {
				return errors.Wrapf(err, "log param %s", k)
			}
		}
		return nil
	})
}

func (r *sqliteRun) LogMetrics(ctx context.Context, metrics map[string]float64) error {
	now := time.Now().UnixMilli()
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, k := range sortedKeys(metrics) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO metrics (run_id, key, value, timestamp) VALUES (?, ?, ?, ?)`,
				r.id, k, metrics[k], now); err != nil {
				return errors.Wrapf(err, "log metric %s", k)
			}
		}
		return nil
	})
}

func (r *sqliteRun) LogArtifact(ctx context.Context, path string, content io.Reader) error {
	body, err := io.ReadAll(content)
	if err != nil {
		return errors.Wrapf(err, "read artifact %s", path)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (run_id, path, size, content) VALUES (?, ?, ?, ?)`,
		r.id, path, len(body), body)
	return errors.Wrapf(err, "log artifact %s", path)
}

func (r *sqliteRun) End(ctx context.Context, status RunStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, end_time = ? WHERE run_id = ?`,
		string(status), time.Now().UnixMilli(), r.id)
	return errors.Wrap(err, "end run")
}

func (r *sqliteRun) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// RunRecord is a row of the runs table.
type RunRecord struct {
	RunID     string        `db:"run_id"`
	Name      string        `db:"name"`
	Status    string        `db:"status"`
	StartTime int64         `db:"start_time"`
	EndTime   sql.NullInt64 `db:"end_time"`
}

// RunSummary is a stored run with its params, latest metrics and artifact paths.
type RunSummary struct {
	RunRecord
	Params    map[string]string
	Metrics   map[string]float64
	Artifacts []string
}

// GetRun reads back a run.
func (s *SQLiteRecorder) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	out := &RunSummary{}
	if err := s.db.GetContext(ctx, &out.RunRecord,
		`SELECT run_id, name, status, start_time, end_time FROM runs WHERE run_id = ?`, runID); err != nil {
		return nil, errors.Wrapf(err, "get run %s", runID)
	}

	var params []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &params, `SELECT key, value FROM params WHERE run_id = ?`, runID); err != nil {
		return nil, errors.Wrap(err, "select params")
	}
	var metrics []struct {
		Key   string  `db:"key"`
		Value float64 `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &metrics,
		`SELECT key, value FROM metrics WHERE run_id = ? ORDER BY rowid`, runID); err != nil {
		return nil, errors.Wrap(err, "select metrics")
	}
	if err := s.db.SelectContext(ctx, &out.Artifacts,
		`SELECT path FROM artifacts WHERE run_id = ? ORDER BY path`, runID); err != nil {
		return nil, errors.Wrap(err, "select artifacts")
	}

	out.Params = make(map[string]string, len(params))
	for _, kv := range params {
		out.Params[kv.Key] = kv.Value
	}
	out.Metrics = make(map[string]float64, len(metrics))
	for _, kv := range metrics {
		out.Metrics[kv.Key] = kv.Value
	}
	return out, nil
}
