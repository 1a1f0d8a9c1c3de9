package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/packclaim/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	if err := migrate.Validate(migrate.Embedded()); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := fs.Glob(os.DirFS("migrations"), "*.sql")
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if strings.Join(embedded, ",") != strings.Join(onDisk, ",") {
		t.Fatalf("embedded %v differs from disk %v", embedded, onDisk)
	}
}

func TestValidateRejectsBrokenMigrations(t *testing.T) {
	valid := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name": {
			"create_packs.sql": {Data: []byte(valid)},
		},
		"duplicate version": {
			"20261001090000_a.sql": {Data: []byte(valid)},
			"20261001090000_b.sql": {Data: []byte(valid)},
		},
		"missing down": {
			"20261001090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"down before up": {
			"20261001090000_a.sql": {Data: []byte("-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n")},
		},
		"unterminated statement": {
			"20261001090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.Validate(fsys); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	ok := fstest.MapFS{"20261001090000_a.sql": {Data: []byte(valid)}, "README.md": {Data: []byte("notes")}}
	if err := migrate.Validate(ok); err != nil {
		t.Fatalf("valid migration rejected: %v", err)
	}
}

func TestClaimMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"*_create_algorand_tables.sql": {
			"CREATE TABLE IF NOT EXISTS algorand_transactions",
			"REFERENCES algorand_transaction_groups(id) ON DELETE SET NULL",
			"idx_algorand_transactions_address_created_at",
			"DROP TABLE IF EXISTS algorand_transaction_groups",
		},
		"*_create_packs_and_collectibles.sql": {
			"latest_transfer_transaction_id uuid",
			"address bigint UNIQUE",
			"CREATE TABLE IF NOT EXISTS collectible_ownerships",
			"DROP TABLE IF EXISTS collectibles",
		},
		"*_create_jobs.sql": {
			"CONSTRAINT ux_jobs_queue_dedupe_key UNIQUE (queue, dedupe_key)",
			"CHECK (attempts >= 0)",
		},
		"*_create_notifications_and_outbox.sql": {
			"CONSTRAINT ux_outbox_events_event_aggregate UNIQUE (event_type, aggregate_type, aggregate_id)",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}

	for pattern, checks := range cases {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob migrations: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read migration file: %v", err)
		}
		content := string(data)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", pattern, sub)
			}
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Pack Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_pack_index.sql") {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration is invalid: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatalf("expected error for a name without usable characters")
	}
}
