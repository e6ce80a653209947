package sqlite

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

const createBaseInstall = `
-- users table
CREATE TABLE users (
  user_id INTEGER PRIMARY KEY,
  password_hash TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  created TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
  verified INTEGER DEFAULT 0,
  random TEXT NOT NULL,
  locked INTEGER DEFAULT 0
) STRICT;

CREATE INDEX idx_users_email ON users(email);
CREATE INDEX idx_users_random ON users(random);

-- user_token is used with session management
CREATE TABLE user_token (
  user_token_id INTEGER PRIMARY KEY,
  token TEXT NOT NULL,
  user_id INTEGER NOT NULL,
  last_login TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
  expires INTEGER DEFAULT 0,
  FOREIGN KEY (user_id) REFERENCES users(user_id)
) STRICT;

CREATE INDEX idx_user_token_user_id ON user_token(user_id);
CREATE INDEX idx_user_token_token ON user_token(token);

-- token table for reset password and verify account
CREATE TABLE token (
  token_id INTEGER PRIMARY KEY,
  token TEXT NOT NULL,
  type TEXT NOT NULL,
  created TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
) STRICT;

CREATE TABLE acl (
  acl_id INTEGER PRIMARY KEY,
  role TEXT NOT NULL,
  user_id INTEGER NOT NULL,
  entity_id INTEGER DEFAULT NULL,
  FOREIGN KEY (user_id) REFERENCES users(user_id)
) STRICT;

CREATE INDEX idx_acl_user_id ON acl(user_id);
CREATE INDEX idx_acl_role ON acl(role);

CREATE TABLE cache (
  cache_id INTEGER PRIMARY KEY,
  key TEXT NOT NULL,
  value TEXT,
  unix_timestamp INTEGER DEFAULT 0
) STRICT;

CREATE INDEX idx_cache_key ON cache(key);

-- dialog table
CREATE TABLE dialog (
  dialog_id TEXT PRIMARY KEY,
  user_id INTEGER NOT NULL,
  title TEXT NOT NULL,
  created TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
  public INTEGER DEFAULT 0,
  FOREIGN KEY (user_id) REFERENCES users(user_id)
) STRICT;

-- message table with ON DELETE CASCADE
CREATE TABLE message (
  message_id INTEGER PRIMARY KEY,
  dialog_id TEXT NOT NULL,
  user_id INTEGER NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  created TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
  FOREIGN KEY (dialog_id) REFERENCES dialog(dialog_id) ON DELETE CASCADE,
  FOREIGN KEY (user_id) REFERENCES users(user_id)
) STRICT;

CREATE INDEX dialog_user_id ON dialog(user_id);
CREATE INDEX message_dialog_id ON message(dialog_id);
CREATE INDEX message_user_id ON message(user_id);
`

// migrations 按 key 记录的迁移列表，已执行的记录在 migration 表里
var migrations = []struct {
	Key string
	SQL string
}{
	{Key: "create_base_install", SQL: createBaseInstall},
}

// Migrate 执行所有未执行的迁移
func (c *Client) Migrate() error {
	if _, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS migration (
			migration_id INTEGER PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			created TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
		) STRICT`); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	for _, m := range migrations {
		var n int
		if err := c.db.QueryRow("SELECT COUNT(*) FROM migration WHERE key = ?", m.Key).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}

		log.Info().Str("migration", m.Key).Msg("applying migration")

		tx, err := c.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.Key, err)
		}
		if _, err := tx.Exec("INSERT INTO migration (key) VALUES (?)", m.Key); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Key, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}
