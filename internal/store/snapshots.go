package store

import (
	"fmt"
	"time"

	"github.com/christopherklint97/meetr/internal/summary"
)

// Snapshot is one period's meeting total as recorded by a run.
type Snapshot struct {
	ID       int64
	RunAt    time.Time
	Period   string
	From     time.Time
	To       time.Time
	Hours    float64
	Count    int
	Excluded int
}

// SnapshotsFromReport turns the period totals of r into rows.
func SnapshotsFromReport(r summary.Report) []Snapshot {
	rows := make([]Snapshot, 0, len(r.Periods))
	for _, p := range r.Periods {
		rows = append(rows, Snapshot{
			RunAt:    r.Generated,
			Period:   p.Label,
			From:     p.Window.From,
			To:       p.Window.To,
			Hours:    p.Hours,
			Count:    p.Count,
			Excluded: p.ExcludedTotal(),
		})
	}
	return rows
}

// InsertSnapshots stores rows in a single transaction.
func (db *DB) InsertSnapshots(rows []Snapshot) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO snapshots (run_at, period, window_from, window_to, hours, count, excluded)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range rows {
		if _, err := stmt.Exec(
			s.RunAt.UTC().Format(time.RFC3339),
			s.Period,
			s.From.UTC().Format(time.RFC3339),
			s.To.UTC().Format(time.RFC3339),
			s.Hours, s.Count, s.Excluded,
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
	}

	return tx.Commit()
}

// RecentSnapshots returns the rows of the last runs, newest run first and
// periods in insertion order within a run.
func (db *DB) RecentSnapshots(runs int) ([]Snapshot, error) {
	rows, err := db.Query(
		`SELECT id, run_at, period, window_from, window_to, hours, count, excluded
		 FROM snapshots
		 WHERE run_at IN (SELECT DISTINCT run_at FROM snapshots ORDER BY run_at DESC LIMIT ?)
		 ORDER BY run_at DESC, id ASC`,
		runs,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var runAt, from, to string
		if err := rows.Scan(&s.ID, &runAt, &s.Period, &from, &to, &s.Hours, &s.Count, &s.Excluded); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		s.RunAt = parseTime(runAt)
		s.From = parseTime(from)
		s.To = parseTime(to)
		out = append(out, s)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
