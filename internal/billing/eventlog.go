package billing

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// EventLogEntry records one delivery of a billing event.
type EventLogEntry struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	UserID    string    `json:"userId,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// EventLog is an audit trail of webhook deliveries. It is never consulted
// to skip a redelivered event.
type EventLog interface {
	Record(ctx context.Context, entry EventLogEntry) error
	Recent(ctx context.Context, userID string, limit int) ([]EventLogEntry, error)
}

// MemoryEventLog is an in-memory EventLog.
type MemoryEventLog struct {
	mu      sync.Mutex
	entries map[string]EventLogEntry
}

// NewMemoryEventLog constructs a MemoryEventLog.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{entries: make(map[string]EventLogEntry)}
}

// Record upserts entry by event id, counting attempts.
func (l *MemoryEventLog) Record(_ context.Context, entry EventLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.entries[entry.EventID]; ok {
		entry.Attempts = prev.Attempts + 1
		entry.FirstSeen = prev.FirstSeen
		if entry.UserID == "" {
			entry.UserID = prev.UserID
		}
	} else {
		entry.Attempts = 1
		entry.FirstSeen = entry.LastSeen
	}
	l.entries[entry.EventID] = entry
	return nil
}

// Recent returns the user's latest entries, newest first.
func (l *MemoryEventLog) Recent(_ context.Context, userID string, limit int) ([]EventLogEntry, error) {
	l.mu.Lock()
	out := make([]EventLogEntry, 0)
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PGEventLog stores entries in billing_events.
type PGEventLog struct {
	DB *sql.DB
}

// Record upserts entry by event id, counting attempts.
func (l *PGEventLog) Record(ctx context.Context, entry EventLogEntry) error {
	const query = `
INSERT INTO billing_events (event_id, event_type, user_id, outcome, error, attempts, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5, 1, $6, $6)
ON CONFLICT (event_id) DO UPDATE SET
	outcome = EXCLUDED.outcome,
	error = EXCLUDED.error,
	user_id = COALESCE(EXCLUDED.user_id, billing_events.user_id),
	attempts = billing_events.attempts + 1,
	last_seen = EXCLUDED.last_seen`
	_, err := l.DB.ExecContext(ctx, query,
		entry.EventID,
		entry.EventType,
		nullString(entry.UserID),
		entry.Outcome,
		nullString(entry.Error),
		entry.LastSeen,
	)
	return err
}

// Recent returns the user's latest entries, newest first.
func (l *PGEventLog) Recent(ctx context.Context, userID string, limit int) ([]EventLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `
SELECT event_id, event_type, COALESCE(user_id, ''), outcome, COALESCE(error, ''), attempts, first_seen, last_seen
FROM billing_events WHERE user_id = $1 ORDER BY last_seen DESC LIMIT $2`
	rows, err := l.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]EventLogEntry, 0)
	for rows.Next() {
		var e EventLogEntry
		if err := rows.Scan(&e.EventID, &e.EventType, &e.UserID, &e.Outcome, &e.Error, &e.Attempts, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var (
	_ EventLog = (*MemoryEventLog)(nil)
	_ EventLog = (*PGEventLog)(nil)
)
