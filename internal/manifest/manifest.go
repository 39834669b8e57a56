// Package manifest keeps an audit ledger of runs in SQLite.
//
// Each run gets a row in runs; each file outcome a row in file_outcomes,
// with the ordinals of rejected records stored as a serialized roaring
// bitmap per record spec.
package manifest

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/rowcast/internal/ingest"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrUnknownRun is returned for run ids that were never begun.
var ErrUnknownRun = errors.New("unknown run")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	config TEXT NOT NULL,
	status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS file_outcomes (
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq INTEGER NOT NULL,
	input TEXT NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL,
	accepted INTEGER NOT NULL,
	rejected INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS rejected_ordinals (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	record TEXT NOT NULL,
	bitmap BLOB NOT NULL,
	PRIMARY KEY (run_id, seq, record)
) WITHOUT ROWID;
`

// Store is an open manifest database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the manifest at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create manifest schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun records a new run and returns its id. config is stored verbatim.
func (s *Store) BeginRun(config string, started time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO runs (id, started_at, config, status) VALUES (?, ?, ?, ?)",
		id, started.UnixNano(), config, "running")
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// RecordOutcome stores the seq-th outcome of a run.
func (s *Store) RecordOutcome(runID string, seq int, o *ingest.FileOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO file_outcomes
		(run_id, seq, input, name, kind, status, reason, accepted, rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, o.Input, o.Name, o.Kind.String(), o.Status.String(), o.Reason, o.Accepted, o.Rejected)
	if err != nil {
		return fmt.Errorf("insert outcome %d: %w", seq, err)
	}

	var buf bytes.Buffer
	for record, c := range o.Records {
		if c.RejectedOrdinals == nil || c.RejectedOrdinals.IsEmpty() {
			continue
		}
		buf.Reset()
		if _, err := c.RejectedOrdinals.WriteTo(&buf); err != nil {
			return fmt.Errorf("serialize ordinals for %s: %w", record, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO rejected_ordinals (run_id, seq, record, bitmap) VALUES (?, ?, ?, ?)",
			runID, seq, record, buf.Bytes()); err != nil {
			return fmt.Errorf("insert ordinals for %s: %w", record, err)
		}
	}
	return tx.Commit()
}

// FinishRun stamps the run with its classification.
func (s *Store) FinishRun(runID string, c ingest.Classification, finished time.Time) error {
	res, err := s.db.Exec("UPDATE runs SET finished_at = ?, status = ? WHERE id = ?",
		finished.UnixNano(), c.String(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrUnknownRun)
	}
	return nil
}

// Run is a stored run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Config     string
	Status     string
}

// Run loads one run.
func (s *Store) Run(runID string) (*Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRow("SELECT id, started_at, finished_at, config, status FROM runs WHERE id = ?", runID).
		Scan(&r.ID, &started, &finished, &r.Config, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load run %s: %w", runID, ErrUnknownRun)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		r.FinishedAt = time.Unix(0, finished.Int64)
	}
	return &r, nil
}

// Outcome is a stored file outcome.
type Outcome struct {
	Seq      int
	Input    string
	Name     string
	Kind     string
	Status   string
	Reason   string
	Accepted int64
	Rejected int64
	// Ordinals maps record name to the ordinals of its rejected records.
	Ordinals map[string]*roaring.Bitmap
}

// Outcomes returns the outcomes of a run in seq order.
func (s *Store) Outcomes(runID string) ([]Outcome, error) {
	rows, err := s.db.Query(`SELECT seq, input, name, kind, status, reason, accepted, rejected
		FROM file_outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Outcome
	index := make(map[int]int)
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.Seq, &o.Input, &o.Name, &o.Kind, &o.Status, &o.Reason, &o.Accepted, &o.Rejected); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Ordinals = make(map[string]*roaring.Bitmap)
		index[o.Seq] = len(out)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bms, err := s.db.Query("SELECT seq, record, bitmap FROM rejected_ordinals WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("query ordinals: %w", err)
	}
	defer func() { _ = bms.Close() }()
	for bms.Next() {
		var (
			seq    int
			record string
			blob   []byte
		)
		if err := bms.Scan(&seq, &record, &blob); err != nil {
			return nil, fmt.Errorf("scan ordinals: %w", err)
		}
		rb := roaring.New()
		if err := rb.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("unmarshal ordinals: %w", err)
		}
		if i, ok := index[seq]; ok {
			out[i].Ordinals[record] = rb
		}
	}
	return out, bms.Err()
}
