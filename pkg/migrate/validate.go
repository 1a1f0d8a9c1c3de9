package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migrations in a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	return Validate(os.DirFS(dir))
}

// Validate checks file naming, version uniqueness and goose annotations for
// every .sql file at the root of fsys.
func Validate(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		if err := checkAnnotations(fsys, name); err != nil {
			return err
		}
	}
	return nil
}

// checkAnnotations requires an Up section before a Down section and balanced
// StatementBegin/StatementEnd markers.
func checkAnnotations(fsys fs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	defer f.Close()

	var up, down, open int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "-- +goose Up":
			up++
		case "-- +goose Down":
			if up == 0 {
				return fmt.Errorf("migration %q has Down before Up", name)
			}
			down++
		case "-- +goose StatementBegin":
			open++
		case "-- +goose StatementEnd":
			open--
			if open < 0 {
				return fmt.Errorf("migration %q has StatementEnd without StatementBegin", name)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %q: %w", name, err)
	}
	switch {
	case up != 1:
		return fmt.Errorf("migration %q needs exactly one \"-- +goose Up\"", name)
	case down != 1:
		return fmt.Errorf("migration %q needs exactly one \"-- +goose Down\"", name)
	case open != 0:
		return fmt.Errorf("migration %q has an unterminated StatementBegin", name)
	}
	return nil
}
