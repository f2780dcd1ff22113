package migrate

import (
	"bufio"
	"crypto/sha1"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/flanksource/commons/collections"
	"github.com/flanksource/commons/logger"
	"github.com/flanksource/commons/properties"
	"github.com/samber/lo"
	"github.com/samber/oops"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/db"
	"github.com/flanksource/hse/functions"
	"github.com/flanksource/hse/schema"
	"github.com/flanksource/hse/views"
)

// RunMigrations applies the embedded tables, then functions, then views.
// Scripts are skipped when their hash matches migration_logs unless they are
// marked "-- runs: always", listed in config.MustRun, or depend on a script
// that was executed in this run.
func RunMigrations(pool *sql.DB, config api.Config) error {
	l := logger.GetLogger("migrate")

	if properties.On(false, "db.migrate.skip") {
		return nil
	}

	if config.ConnectionString == "" {
		return errors.New("connection string is empty")
	}

	if pool == nil {
		return errors.New("pool is nil")
	}

	var name string
	if err := pool.QueryRow("SELECT current_database();").Scan(&name); err != nil {
		return fmt.Errorf("failed to get current database: %w", err)
	}
	l.Infof("Migrating database %s", name)

	if err := createMigrationLogTable(pool); err != nil {
		return fmt.Errorf("failed to create migration log table: %w", err)
	}

	tables, err := schema.GetScripts()
	if err != nil {
		return fmt.Errorf("failed to get schema: %w", err)
	}

	funcs, err := functions.GetFunctions()
	if err != nil {
		return fmt.Errorf("failed to get functions: %w", err)
	}

	views, err := views.GetViews()
	if err != nil {
		return fmt.Errorf("failed to get views: %w", err)
	}

	graph, err := getDependencyTree(map[string]map[string]string{
		"functions": funcs,
		"views":     views,
	})
	if err != nil {
		return oops.Wrapf(err, "failed to build dependency tree")
	}

	l.V(3).Infof("Applying schema migrations")
	executed, err := runScripts(pool, "schema", tables, config.MustRun, config.SkipMigrationFiles)
	if err != nil {
		return fmt.Errorf("failed to apply schema migrations: %w", err)
	}

	l.V(3).Infof("Running functions")
	executedFuncs, err := runScripts(pool, "functions", funcs, forced(graph, config.MustRun, executed), config.SkipMigrationFiles)
	if err != nil {
		return fmt.Errorf("failed to run scripts: %w", err)
	}
	executed = append(executed, executedFuncs...)

	l.V(3).Infof("Running scripts for views")
	if _, err := runScripts(pool, "views", views, forced(graph, config.MustRun, executed), config.SkipMigrationFiles); err != nil {
		return fmt.Errorf("failed to run scripts for views: %w", err)
	}

	return nil
}

// forced returns the bare filenames that must run regardless of their hash.
func forced(graph DependencyMap, mustRun []string, executed []string) []string {
	out := append([]string{}, mustRun...)
	for _, path := range graph.Dependents(executed...) {
		_, file, _ := strings.Cut(path, "/")
		out = append(out, file)
	}
	return lo.Uniq(out)
}

// isMarkedForAlwaysRun reports whether the leading comment block of a
// script contains "-- runs: always".
func isMarkedForAlwaysRun(content string) bool {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "-- runs: always":
			return true
		case strings.HasPrefix(line, "--"):
			continue
		default:
			return false
		}
	}
	return false
}

// runScripts runs the given scripts in lexical order and returns the
// "<dir>/<file>" paths of the ones that ran.
func runScripts(pool *sql.DB, dir string, scripts map[string]string, mustRun []string, ignoreFiles []string) ([]string, error) {
	l := logger.GetLogger("migrate")

	var filenames []string
	for name := range scripts {
		if collections.Contains(ignoreFiles, name) {
			continue
		}
		filenames = append(filenames, name)
	}
	sort.Strings(filenames)

	var executed []string
	for _, file := range filenames {
		content := scripts[file]
		path := dir + "/" + file

		var currentHash []byte
		if err := pool.QueryRow("SELECT hash FROM migration_logs WHERE path = $1", path).Scan(&currentHash); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		hash := sha1.Sum([]byte(content))
		if string(hash[:]) == string(currentHash) && !isMarkedForAlwaysRun(content) && !lo.Contains(mustRun, file) {
			l.V(3).Infof("Skipping script %s", path)
			continue
		}

		l.Tracef("running script %s", path)
		executed = append(executed, path)

		if _, err := pool.Exec(content); err != nil {
			return nil, fmt.Errorf("failed to run script %s: %w", path, db.ErrorDetails(err))
		}

		if _, err := pool.Exec("INSERT INTO migration_logs(path, hash) VALUES($1, $2) ON CONFLICT (path) DO UPDATE SET hash = $2, updated_at = NOW()", path, hash[:]); err != nil {
			return nil, fmt.Errorf("failed to save migration log %s: %w", path, err)
		}
	}

	return executed, nil
}

func createMigrationLogTable(pool *sql.DB) error {
	query := `CREATE TABLE IF NOT EXISTS migration_logs (
		path VARCHAR(255) NOT NULL,
		hash bytea NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT NOW() NOT NULL,
		PRIMARY KEY (path)
	)`
	_, err := pool.Exec(query)
	return err
}
