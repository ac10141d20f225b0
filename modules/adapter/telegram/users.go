package telegram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	sqliteBusyTimeout = 5000
	userSchemaVersion = 1
	redisUsernameKey  = "tgbridge:telegram:usernames"
)

// UserStore persists the username to user ID map. The Bot API offers no
// lookup by username, so the map is filled from every user the bot sees.
type UserStore interface {
	Put(ctx context.Context, username string, userID int64) error
	// Get returns ErrUnknownUser when username was never recorded.
	Get(ctx context.Context, username string) (int64, error)
	Close() error
}

// normalizeUsername lowercases and drops a leading "@"; Telegram
// usernames are case-insensitive.
func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// sqliteUserStore keeps the map in a local SQLite file.
type sqliteUserStore struct {
	db *sql.DB
}

// OpenSQLiteUserStore opens (and creates if needed) the database at path.
// It uses WAL mode, a 5 s busy timeout and a single connection.
func OpenSQLiteUserStore(ctx context.Context, path string) (UserStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("telegram: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telegram: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", sqliteBusyTimeout),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("telegram: %s: %w", p, err)
		}
	}

	if err := migrateUsers(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteUserStore{db: db}, nil
}

func migrateUsers(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("telegram: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("telegram: read schema version: %w", err)
	}
	if current >= userSchemaVersion {
		return nil
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS usernames (
		username   TEXT    PRIMARY KEY,
		user_id    INTEGER NOT NULL,
		updated_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`); err != nil {
		return fmt.Errorf("telegram: migrate usernames: %w", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", userSchemaVersion); err != nil {
		return fmt.Errorf("telegram: record schema version: %w", err)
	}
	return nil
}

func (s *sqliteUserStore) Put(ctx context.Context, username string, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usernames (username, user_id) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET
			user_id = excluded.user_id,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		normalizeUsername(username), userID,
	)
	if err != nil {
		return fmt.Errorf("telegram: store username: %w", err)
	}
	return nil
}

func (s *sqliteUserStore) Get(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id FROM usernames WHERE username = ?", normalizeUsername(username),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUnknownUser
		}
		return 0, fmt.Errorf("telegram: lookup username: %w", err)
	}
	return id, nil
}

func (s *sqliteUserStore) Close() error { return s.db.Close() }

// redisUserStore keeps the map in one Redis hash.
type redisUserStore struct {
	client *redis.Client
	key    string
}

// NewRedisUserStore connects to Redis and checks the connection.
func NewRedisUserStore(ctx context.Context, addr, password string, db int) (UserStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("telegram: connect redis %s: %w", addr, err)
	}
	return &redisUserStore{client: client, key: redisUsernameKey}, nil
}

func (s *redisUserStore) Put(ctx context.Context, username string, userID int64) error {
	if err := s.client.HSet(ctx, s.key, normalizeUsername(username), userID).Err(); err != nil {
		return fmt.Errorf("telegram: store username: %w", err)
	}
	return nil
}

func (s *redisUserStore) Get(ctx context.Context, username string) (int64, error) {
	v, err := s.client.HGet(ctx, s.key, normalizeUsername(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrUnknownUser
		}
		return 0, fmt.Errorf("telegram: lookup username: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: corrupt user id %q: %w", v, err)
	}
	return id, nil
}

func (s *redisUserStore) Close() error { return s.client.Close() }
