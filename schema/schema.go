package schema

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var tables embed.FS

// GetScripts returns the table definitions keyed by file name. They are
// applied in lexical order before functions and views.
func GetScripts() (map[string]string, error) {
	return ReadSQL(tables)
}

// ReadSQL loads every top level .sql file of fsys keyed by file name.
func ReadSQL(fsys fs.FS) (map[string]string, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	scripts := make(map[string]string, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		scripts[name] = string(content)
	}
	return scripts, nil
}
