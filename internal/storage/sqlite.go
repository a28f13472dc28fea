package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

// SqliteBackend persists records in a single table; expired rows are hidden on read
// and purged periodically
type SqliteBackend struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSqliteBackend opens (or creates) the database at dbPath
func NewSqliteBackend(dbPath string, walMode bool, purgeInterval time.Duration) (*SqliteBackend, error) {
	connStr := dbPath
	if walMode {
		connStr += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	} else {
		connStr += "?_synchronous=FULL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageInitialization, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorageConnection, "failed to ping database")
	}

	backend := &SqliteBackend{
		db:     db,
		logger: logging.GetGlobalLogger("storage.sqlite"),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorageInitialization, "failed to initialize schema")
	}

	if purgeInterval > 0 {
		backend.wg.Add(1)
		go backend.purgeLoop(purgeInterval)
	}

	backend.logger.Info("SQLite backend ready",
		slog.String("path", dbPath),
		slog.Bool("wal", walMode),
	)
	return backend, nil
}

func (s *SqliteBackend) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER -- unix nanoseconds, NULL = never
	);
	CREATE INDEX IF NOT EXISTS idx_records_expires_at ON records(expires_at);
	`)
	return err
}

// SetClock replaces the time source used for expiry
func (s *SqliteBackend) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SqliteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.ValidationRequired("key")
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.now().UnixNano(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapQueryErr(ctx, err, "get")
	}
	return value, nil
}

func (s *SqliteBackend) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	if strings.TrimSpace(key) == "" {
		return errors.ValidationRequired("key")
	}
	if opts.TTL < 0 {
		return errors.Newf(errors.ErrCodeValidationRange, "ttl must be non-negative, got %s", opts.TTL)
	}

	var expiresAt sql.NullInt64
	if opts.TTL > 0 {
		expiresAt = sql.NullInt64{Int64: s.now().Add(opts.TTL).UnixNano(), Valid: true}
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return wrapQueryErr(ctx, err, "put")
	}
	return nil
}

func (s *SqliteBackend) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.ValidationRequired("key")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return wrapQueryErr(ctx, err, "delete")
	}
	return nil
}

func (s *SqliteBackend) ListByPrefix(ctx context.Context, prefix string, opts ListOptions) ([]string, error) {
	timer := logging.StartTimer(ctx, s.logger, "listByPrefix")
	defer timer.End()

	query := `SELECT key FROM records WHERE (expires_at IS NULL OR expires_at > ?)`
	args := []interface{}{s.now().UnixNano()}
	if prefix != "" {
		query += ` AND key >= ?`
		args = append(args, prefix)
		if end, ok := prefixEnd(prefix); ok {
			query += ` AND key < ?`
			args = append(args, end)
		}
	}
	query += ` ORDER BY key ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryErr(ctx, err, "list")
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, wrapQueryErr(ctx, err, "list")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryErr(ctx, err, "list")
	}
	return keys, nil
}

// Purge deletes expired rows and reports how many were removed
func (s *SqliteBackend) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, wrapQueryErr(ctx, err, "purge")
	}
	return res.RowsAffected()
}

func (s *SqliteBackend) purgeLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			n, err := s.Purge(context.Background())
			if err != nil {
				s.logger.Warn("Failed to purge expired records", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Debug("Purged expired records", slog.Int64("count", n))
			}
		}
	}
}

func (s *SqliteBackend) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageConnection, "database unreachable")
	}
	return nil
}

func (s *SqliteBackend) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.db.Close()
}

// prefixEnd returns the smallest string greater than every string with the prefix
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

func wrapQueryErr(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil {
		return errors.Wrapf(err, errors.ErrCodeStorageTimeout, "sqlite %s interrupted", op)
	}
	if strings.Contains(err.Error(), "database is closed") {
		return errors.Wrapf(err, errors.ErrCodeStorageClosed, "sqlite %s on closed database", op)
	}
	return errors.Wrapf(err, errors.ErrCodeStorageQuery, "sqlite %s failed", op)
}
