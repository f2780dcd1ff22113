package hse

import (
	gocontext "context"
	"database/sql"
	"net/url"
	"time"

	extraClausePlugin "github.com/WinterYukky/gorm-extra-clause-plugin"
	"github.com/flanksource/commons/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/db"
	"github.com/flanksource/hse/drivers"
	hseGorm "github.com/flanksource/hse/gorm"
	"github.com/flanksource/hse/migrate"
)

func DefaultGormConfig() *gorm.Config {
	return &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		Logger: hseGorm.NewGormLogger(api.DefaultConfig.LogLevel),
	}
}

// NewGorm opens a gorm DB over a pgx backed database/sql connection and
// registers the oops error and CTE clause plugins.
func NewGorm(connection string, config *gorm.Config) (*gorm.DB, error) {
	sqlDB, err := NewDB(connection)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB}), config)
	if err != nil {
		return nil, err
	}

	if err := gormDB.Use(db.NewOopsPlugin()); err != nil {
		return nil, err
	}
	if err := gormDB.Use(extraClausePlugin.New()); err != nil {
		return nil, err
	}
	return gormDB, nil
}

func NewDB(connection string) (*sql.DB, error) {
	if drivers.IsCloudSQL(connection) {
		config, err := drivers.CloudSQLConfig(gocontext.Background(), connection)
		if err != nil {
			return nil, err
		}
		return stdlib.OpenDB(*config), nil
	}
	return sql.Open("pgx", connection)
}

func poolConfig(connection string) (*pgxpool.Config, error) {
	if !drivers.IsCloudSQL(connection) {
		pgUrl, err := url.Parse(connection)
		if err != nil {
			return nil, err
		}
		logger.Infof("Connecting to %s", pgUrl.Redacted())
		return pgxpool.ParseConfig(connection)
	}

	logger.Infof("Connecting to cloud sql instance %s", drivers.ParseParams(connection)["cloudsql-instance-connection-name"])
	connConfig, err := drivers.CloudSQLConfig(gocontext.Background(), connection)
	if err != nil {
		return nil, err
	}
	config, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, err
	}
	config.ConnConfig = connConfig
	return config, nil
}

func NewPgxPool(connection string) (*pgxpool.Pool, error) {
	config, err := poolConfig(connection)
	if err != nil {
		return nil, err
	}

	// workflows hold a row lock while publishing, leave room for the queue consumers
	if config.MaxConns < 20 {
		config.MaxConns = 20
	}

	pool, err := pgxpool.NewWithConfig(gocontext.Background(), config)
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(gocontext.TODO(), "SELECT pg_size_pretty(pg_database_size($1));", config.ConnConfig.Database)
	var size string
	if err := row.Scan(&size); err != nil {
		return nil, err
	}

	logger.Infof("Initialized DB: %s (%s)", config.ConnConfig.Host, size)
	return pool, nil
}

func Migrate(config api.Config) error {
	sqlDB, err := NewDB(config.ConnectionString)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return migrate.RunMigrations(sqlDB, config)
}

func InitDB(config api.Config) (*context.Context, error) {
	gormDB, pool, err := SetupDB(config)
	if err != nil {
		return nil, err
	}

	ctx := context.NewContext(gocontext.Background()).WithDB(gormDB, pool)
	return &ctx, nil
}

// SetupDB runs migrations for the connection and returns a gorm.DB and a pgxpool.Pool
func SetupDB(config api.Config) (gormDB *gorm.DB, pgxpool *pgxpool.Pool, err error) {
	logger.Infof("Initializing DB: %s", config.String())

	pgxpool, err = NewPgxPool(config.ConnectionString)
	if err != nil {
		return
	}

	conn, err := pgxpool.Acquire(gocontext.Background())
	if err != nil {
		return
	}
	defer conn.Release()

	cfg := DefaultGormConfig()
	cfg.Logger = hseGorm.NewGormLogger(config.LogLevel)
	gormDB, err = NewGorm(config.ConnectionString, cfg)
	if err != nil {
		return
	}

	if config.Migrate() {
		if err = Migrate(config); err != nil {
			return
		}
	}

	return
}
