// Package dbtest opens throwaway sqlite databases carrying the claim schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/packclaim/pkg/db"
)

// Schema mirrors the goose migrations closely enough for repository tests.
// Postgres enums become TEXT.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS algorand_transaction_groups (
  id TEXT PRIMARY KEY,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS algorand_transactions (
  id TEXT PRIMARY KEY,
  address TEXT NOT NULL,
  status TEXT NOT NULL,
  group_id TEXT REFERENCES algorand_transaction_groups(id) ON DELETE SET NULL,
  order_index INTEGER,
  encoded_signed_transaction TEXT,
  error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS collectible_templates (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  unique_code TEXT NOT NULL,
  total_editions INTEGER NOT NULL,
  image_url TEXT NOT NULL,
  asset_url TEXT,
  metadata_hash TEXT,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS pack_templates (
  id TEXT NOT NULL,
  language TEXT NOT NULL,
  title TEXT NOT NULL,
  updated_at DATETIME,
  PRIMARY KEY (id, language)
);`,
	`CREATE TABLE IF NOT EXISTS algorand_accounts (
  id TEXT PRIMARY KEY,
  address TEXT NOT NULL,
  encrypted_key TEXT NOT NULL,
  creation_transaction_id TEXT REFERENCES algorand_transactions(id),
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS user_accounts (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  email TEXT NOT NULL,
  language TEXT NOT NULL DEFAULT 'en-US',
  algorand_account_id TEXT NOT NULL REFERENCES algorand_accounts(id),
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS packs (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL,
  owner_id TEXT REFERENCES user_accounts(id),
  active_bid_id TEXT,
  redeem_code TEXT,
  claimed_at DATETIME,
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS collectibles (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL REFERENCES collectible_templates(id),
  pack_id TEXT REFERENCES packs(id),
  owner_id TEXT REFERENCES user_accounts(id),
  edition INTEGER NOT NULL DEFAULT 1,
  address INTEGER,
  creation_transaction_id TEXT REFERENCES algorand_transactions(id),
  latest_transfer_transaction_id TEXT REFERENCES algorand_transactions(id),
  claimed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS collectible_ownerships (
  id TEXT PRIMARY KEY,
  collectible_id TEXT NOT NULL REFERENCES collectibles(id),
  owner_id TEXT NOT NULL REFERENCES user_accounts(id),
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  queue TEXT NOT NULL,
  dedupe_key TEXT NOT NULL,
  payload TEXT NOT NULL,
  status TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  run_at DATETIME NOT NULL,
  locked_by TEXT,
  locked_until DATETIME,
  last_error TEXT,
  completed_at DATETIME,
  failed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_jobs_queue_dedupe_key ON jobs (queue, dedupe_key);`,
	`CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_account_id TEXT NOT NULL REFERENCES user_accounts(id),
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  variables TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  last_attempt_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  topic TEXT,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a private in-memory database for t with the schema applied.
// Every connection of the pool sees the same database, so code that opens its
// own transactions works as it does against Postgres.
func Open(t *testing.T) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range Schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db.Wrap(conn)
}
