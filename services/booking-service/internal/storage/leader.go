package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/md-rashed-zaman/petbook/libs/db"
)

// AdvisoryLeader elects one sweeper across instances with a session-level advisory lock.
// The lock lives on a dedicated connection held until Release.
type AdvisoryLeader struct {
	pool *db.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

func NewAdvisoryLeader(pool *db.Pool, key int64) *AdvisoryLeader {
	if key == 0 {
		key = 7301001
	}
	return &AdvisoryLeader{pool: pool, key: key}
}

// Elect reports whether this instance holds leadership, trying to acquire it if not.
func (l *AdvisoryLeader) Elect(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		l.conn.Release()
		l.conn = nil
	}
	if l.pool == nil {
		return false, errors.New("leader: db not configured")
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&locked); err != nil {
		conn.Release()
		return false, err
	}
	if !locked {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *AdvisoryLeader) Release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
}
