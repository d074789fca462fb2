// Package journal persists training runs to SQLite for analysis and
// audit. One row per (symbol, date, horizon).
package journal

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Journal records completed model trainings.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens (or creates) the journal database.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trainings (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol       TEXT NOT NULL,
		date         TEXT NOT NULL,
		horizon      INTEGER NOT NULL,
		samples      INTEGER NOT NULL,
		epochs       INTEGER NOT NULL,
		train_loss   REAL NOT NULL,
		val_loss     REAL NOT NULL,
		duration_ms  INTEGER NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trainings_symbol ON trainings(symbol, date);
	CREATE INDEX IF NOT EXISTS idx_trainings_date ON trainings(date);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Entry is one training run.
type Entry struct {
	Symbol     string  `json:"symbol"`
	Date       string  `json:"date"`
	Horizon    int     `json:"horizon"`
	Samples    int     `json:"samples"`
	Epochs     int     `json:"epochs"`
	TrainLoss  float64 `json:"train_loss"`
	ValLoss    float64 `json:"val_loss"`
	DurationMs int64   `json:"duration_ms"`
}

// Record persists one training run.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trainings (symbol, date, horizon, samples, epochs, train_loss, val_loss, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Symbol,
		e.Date,
		e.Horizon,
		e.Samples,
		e.Epochs,
		e.TrainLoss,
		e.ValLoss,
		e.DurationMs,
	)
	return err
}

// Recent returns the last N training runs, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT symbol, date, horizon, samples, epochs, train_loss, val_loss, duration_ms
		 FROM trainings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Symbol, &e.Date, &e.Horizon, &e.Samples, &e.Epochs,
			&e.TrainLoss, &e.ValLoss, &e.DurationMs); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
