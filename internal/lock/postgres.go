package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"

	"labelsync/internal/logger"
)

// PostgresLocker uses session-level advisory locks so replicas sharing one
// database never run the same label concurrently. Each held lock pins one
// connection from the pool until it is released.
type PostgresLocker struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewPostgresLocker(db *sql.DB, logger *logger.Logger) *PostgresLocker {
	return &PostgresLocker{db: db, logger: logger}
}

func (l *PostgresLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get connection for advisory lock: %w", err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&acquired)
	if err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("failed to acquire advisory lock %q: %w", key, err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The run's context may be cancelled by now.
			if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
				l.logger.Error("Failed to release advisory lock", key, ":", err)
				// Ending the session releases the lock; a pooled session would keep it.
				conn.Raw(func(interface{}) error { return driver.ErrBadConn })
			}
			conn.Close()
		})
	}, true, nil
}
