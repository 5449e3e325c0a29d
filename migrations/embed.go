// Package migrations embeds the SQL migrations of every service, one
// directory per schema.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed patients/*.sql agenda/*.sql measures/*.sql documents/*.sql identity/*.sql
var files embed.FS

// FS returns the migrations of service. When dir is set the files are read
// from dir/<service> on disk instead of the embedded copy.
func FS(dir, service string) (fs.FS, error) {
	if dir != "" {
		path := filepath.Join(dir, service)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("migrations of %s: %w", service, err)
		}
		return os.DirFS(path), nil
	}
	sub, err := fs.Sub(files, service)
	if err != nil {
		return nil, fmt.Errorf("migrations of %s: %w", service, err)
	}
	return sub, nil
}
