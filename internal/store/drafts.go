package store

import (
	"fmt"
	"time"
)

// Draft records a reschedule email saved to the mailbox.
type Draft struct {
	ID        int64
	StableID  string
	Subject   string
	Start     time.Time
	Organizer string
	DraftID   string
	CreatedAt time.Time
}

func (db *DB) InsertDraft(d *Draft) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	result, err := db.Exec(
		`INSERT INTO drafts (stable_id, subject, start_time, organizer, draft_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.StableID, d.Subject,
		d.Start.UTC().Format(time.RFC3339),
		d.Organizer, d.DraftID,
		d.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting draft: %w", err)
	}
	return result.LastInsertId()
}

// HasDraft reports whether a draft was already created for the meeting
// occurrence identified by stableID starting at start.
func (db *DB) HasDraft(stableID string, start time.Time) (bool, error) {
	if stableID == "" {
		return false, nil
	}
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM drafts WHERE stable_id = ? AND start_time = ?",
		stableID, start.UTC().Format(time.RFC3339),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying drafts: %w", err)
	}
	return n > 0, nil
}

func (db *DB) RecentDrafts(limit int) ([]Draft, error) {
	rows, err := db.Query(
		`SELECT id, stable_id, subject, start_time, organizer, draft_id, created_at
		 FROM drafts
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		var d Draft
		var start, created string
		if err := rows.Scan(&d.ID, &d.StableID, &d.Subject, &start, &d.Organizer, &d.DraftID, &created); err != nil {
			return nil, fmt.Errorf("scanning draft: %w", err)
		}
		d.Start = parseTime(start)
		d.CreatedAt = parseTime(created)
		out = append(out, d)
	}
	return out, rows.Err()
}
