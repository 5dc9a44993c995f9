package repository

import "time"

const (
	defaultBusyTimeout = 5 * time.Second
	defaultRetention   = 500
)

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithBusyTimeout sets how long a statement waits on a locked database.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithRetention keeps only the most recent n runs. Zero keeps everything.
func WithRetention(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n >= 0 {
			s.retention = n
		}
	}
}
