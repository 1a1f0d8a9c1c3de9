package migrate

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// DefaultDir is where `migrate -cmd=create` writes new migrations.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary, rooted so that
// file names sit at the top level as goose expects.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return sub
}

// Source picks the migration set: the embedded one when dir is empty,
// otherwise the directory on disk.
func Source(dir string) fs.FS {
	if dir == "" {
		return Embedded()
	}
	return os.DirFS(dir)
}
