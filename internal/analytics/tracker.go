package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"fidchannels/backend"
)

// Operation names recorded by the aggregation layer
const (
	OpFetchChannels = "fetch_channels"
	OpMembership    = "membership"
	OpFrames        = "frames"
)

// Tracker handles analytics event recording
type Tracker struct {
	db      *sql.DB
	enabled bool
	mu      sync.Mutex
	pending sync.WaitGroup
}

// NewTracker creates a new analytics tracker.
// If enabled is false, tracking is disabled but the database is still created.
func NewTracker(dbPath string, enabled bool) (*Tracker, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		db:      db,
		enabled: enabled,
	}, nil
}

// Enabled reports whether events are recorded
func (t *Tracker) Enabled() bool {
	return t != nil && t.enabled
}

// Close waits for pending writes and closes the database connection
func (t *Tracker) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	t.pending.Wait()
	return t.db.Close()
}

// Flush waits until every event recorded so far is written
func (t *Tracker) Flush() {
	if t != nil {
		t.pending.Wait()
	}
}

// TrackCommand wraps command execution with analytics tracking.
// The provided function is always executed, but events are only recorded
// when analytics is enabled.
func (t *Tracker) TrackCommand(cmd string, flags []string, fn func() error) error {
	if !t.Enabled() {
		return fn()
	}

	start := time.Now()
	err := fn()

	event := Event{
		Timestamp:  time.Now().Unix(),
		Operation:  "command:" + cmd,
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		ErrorType:  categorizeError(err),
	}
	if flags != nil {
		flagsJSON, _ := json.Marshal(flags)
		event.Flags = string(flagsJSON)
	}

	t.record(event)
	return err
}

// TrackOperation records one upstream operation. It never blocks on the database.
func (t *Tracker) TrackOperation(op, backendName string, fid backend.FID, requestID string, elapsed time.Duration, err error) {
	if !t.Enabled() {
		return
	}

	t.record(Event{
		Timestamp:  time.Now().Unix(),
		Operation:  op,
		Backend:    backendName,
		FID:        uint64(fid),
		RequestID:  requestID,
		Success:    err == nil,
		DurationMs: elapsed.Milliseconds(),
		ErrorType:  categorizeError(err),
	})
}

// record logs asynchronously to avoid slowing down requests
func (t *Tracker) record(event Event) {
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		t.logEvent(event)
	}()
}

// logEvent records an event to the database
func (t *Tracker) logEvent(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fid interface{}
	if event.FID != 0 {
		fid = int64(event.FID)
	}

	_, _ = t.db.Exec(`
		INSERT INTO events (timestamp, operation, backend, fid, request_id, success, duration_ms, error_type, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.Timestamp, event.Operation, nullString(event.Backend), fid, nullString(event.RequestID),
		boolToInt(event.Success), event.DurationMs, nullString(event.ErrorType), nullString(event.Flags))
}

// Cleanup removes events older than the specified retention period.
// Returns the number of deleted events.
func (t *Tracker) Cleanup(retentionDays int) (int64, error) {
	cutoff := time.Now().Unix() - int64(retentionDays*86400)

	result, err := t.db.Exec("DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	// Vacuum to reclaim space
	_, _ = t.db.Exec("VACUUM")

	return deleted, nil
}

// OperationSummary aggregates the events of one operation/backend pair
type OperationSummary struct {
	Operation     string  `json:"operation"`
	Backend       string  `json:"backend,omitempty"`
	Total         int64   `json:"total"`
	Failures      int64   `json:"failures"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	TopError      string  `json:"top_error,omitempty"`
}

// SuccessRate returns the share of successful events in percent
func (s OperationSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Total-s.Failures) * 100 / float64(s.Total)
}

// Summary returns per-operation totals for events since the given time,
// busiest operation first. Events still being written are not included.
func (t *Tracker) Summary(since time.Time) ([]OperationSummary, error) {
	rows, err := t.db.Query(`
		SELECT operation, COALESCE(backend, ''), COUNT(*), COUNT(*) - SUM(success), AVG(duration_ms)
		FROM events
		WHERE timestamp >= ?
		GROUP BY operation, backend
		ORDER BY COUNT(*) DESC, operation
	`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var summaries []OperationSummary
	for rows.Next() {
		var s OperationSummary
		var avg sql.NullFloat64
		if err := rows.Scan(&s.Operation, &s.Backend, &s.Total, &s.Failures, &avg); err != nil {
			return nil, err
		}
		s.AvgDurationMs = avg.Float64
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		if summaries[i].Failures == 0 {
			continue
		}
		err := t.db.QueryRow(`
			SELECT error_type FROM events
			WHERE timestamp >= ? AND operation = ? AND COALESCE(backend, '') = ? AND success = 0 AND error_type IS NOT NULL
			GROUP BY error_type
			ORDER BY COUNT(*) DESC, error_type
			LIMIT 1
		`, since.Unix(), summaries[i].Operation, summaries[i].Backend).Scan(&summaries[i].TopError)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	return summaries, nil
}

// categorizeError categorizes an error into a general type
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	var upErr *backend.UpstreamError
	var keyErr *backend.InvalidKeyError
	var netErr net.Error
	switch {
	case errors.Is(err, backend.ErrMissingKey), errors.As(err, &keyErr):
		return "validation"
	case errors.Is(err, backend.ErrNotFound):
		return "not_found"
	case errors.Is(err, backend.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, backend.ErrPaginationLimitExceeded):
		return "pagination_limit"
	case errors.As(err, &upErr):
		switch {
		case upErr.IsRateLimited():
			return "rate_limited"
		case upErr.Status == 401 || upErr.Status == 403:
			return "auth"
		default:
			return "upstream"
		}
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return "network"
	default:
		return "unknown"
	}
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
