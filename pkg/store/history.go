// Package store keeps an optional SQLite index of verdicts next to the
// JSONL audit log. The log remains the source of truth; the index exists
// so status queries don't re-read and re-parse the whole chain.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/cord/pkg/contracts"
)

const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	log_id      TEXT NOT NULL,
	decision    TEXT NOT NULL,
	score       REAL NOT NULL,
	action_type TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verdicts_decision ON verdicts(decision);
CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at);
`

// History is a verdict index backed by a SQLite file.
type History struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &History{db: db}, nil
}

// Record mirrors one verdict into the index.
func (h *History) Record(v *contracts.Verdict, actionType contracts.ActionType) error {
	_, err := h.db.Exec(
		`INSERT INTO verdicts (log_id, decision, score, action_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		v.LogID, string(v.Decision), v.Score, string(actionType),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: record verdict: %w", err)
	}
	return nil
}

// Stats returns verdict counts per decision.
func (h *History) Stats() (map[string]int, error) {
	rows, err := h.db.Query(`SELECT decision, COUNT(*) FROM verdicts GROUP BY decision`)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var decision string
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("store: scan stats: %w", err)
		}
		stats[decision] = count
	}
	return stats, rows.Err()
}

// Recent returns the decisions and scores of the latest n verdicts,
// newest first.
func (h *History) Recent(n int) ([]contracts.Verdict, error) {
	rows, err := h.db.Query(
		`SELECT log_id, decision, score FROM verdicts ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []contracts.Verdict
	for rows.Next() {
		var v contracts.Verdict
		var decision string
		if err := rows.Scan(&v.LogID, &decision, &v.Score); err != nil {
			return nil, fmt.Errorf("store: scan recent: %w", err)
		}
		v.Decision = contracts.Decision(decision)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}
