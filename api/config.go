package api

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
)

var DefaultConfig = Config{
	Schema:   "public",
	LogLevel: "error",
	Evidence: EvidenceConfig{
		BucketURL:   "mem://",
		MaxFileSize: 10 * 1024 * 1024,
	},
	Email: EmailConfig{
		Port: 587,
		From: "hse@localhost",
	},
}

func NewConfig(connection string) Config {
	n := DefaultConfig
	n.ConnectionString = connection
	return n
}

type MigrationMode int

const (
	RunByDefault MigrationMode = iota
	SkipByDefault
)

type Config struct {
	Metrics                  bool
	ConnectionString, Schema string
	LogLevel                 string
	LogName                  string

	RunMigrations      bool
	SkipMigrations     bool
	SkipMigrationFiles []string
	MigrationMode      MigrationMode

	// List of scripts that must run even if their hash hasn't changed.
	// Need just the filename without the `schema/`, `functions/` or `views/` prefix.
	MustRun []string

	Evidence EvidenceConfig
	Email    EmailConfig

	// EventStream is an optional pubsub URL (mem://, nats://, kafka://)
	// that domain events are forwarded to once handled.
	EventStream string

	// BaseURL is prefixed to notification links in outgoing emails.
	BaseURL string
}

func (t *Config) Migrate() bool {
	switch t.MigrationMode {
	case RunByDefault:
		return !t.SkipMigrations

	default:
		return t.RunMigrations
	}
}

type EvidenceConfig struct {
	// BucketURL is a gocloud.dev blob URL, e.g. file:///var/lib/hse or mem://
	BucketURL string

	// MaxFileSize in bytes. Uploads larger than this are rejected.
	MaxFileSize int64
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (e EmailConfig) Enabled() bool {
	return e.Host != ""
}

func (e EmailConfig) ReadEnv() EmailConfig {
	clone := e
	clone.Host = readEnv(clone.Host)
	clone.Username = readEnv(clone.Username)
	clone.Password = readEnv(clone.Password)
	if clone.Password == "SMTP_PASSWORD" {
		clone.Password = ""
	}
	return clone
}

func (e EmailConfig) String() string {
	if !e.Enabled() {
		return "disabled"
	}
	return fmt.Sprintf("%s:%d user=%s password=%s", e.Host, e.Port, e.Username, PrintableSecret(e.Password))
}

func PrintableSecret(secret string) string {
	if len(secret) == 0 {
		return "<nil>"
	} else if len(secret) > 30 {
		sum := md5.Sum([]byte(secret))
		hash := hex.EncodeToString(sum[:])
		return fmt.Sprintf("md5(%s),length=%d", hash[0:8], len(secret))
	} else if len(secret) > 16 {
		return fmt.Sprintf("%s****%s", secret[0:1], secret[len(secret)-2:])
	} else if len(secret) > 10 {
		return fmt.Sprintf("****%s", secret[len(secret)-1:])
	}
	return "****"
}

func readEnv(val string) string {
	if v := os.Getenv(val); v != "" {
		return v
	}
	return val
}

func (c Config) ReadEnv() Config {
	clone := c
	clone.ConnectionString = readEnv(clone.ConnectionString)
	if clone.ConnectionString == "DB_URL" {
		clone.ConnectionString = ""
	}
	clone.Schema = readEnv(clone.Schema)
	clone.LogLevel = readEnv(clone.LogLevel)
	clone.Email = clone.Email.ReadEnv()
	clone.EventStream = readEnv(clone.EventStream)
	return clone
}

func (c Config) String() string {
	s := fmt.Sprintf("migrate=%v log=%v email=(%s) evidence=%s", c.Migrate(), c.LogLevel, c.Email.String(), c.Evidence.BucketURL)
	if pgUrl, err := url.Parse(c.ConnectionString); err == nil {
		s = fmt.Sprintf("url=%s ", pgUrl.Redacted()) + s
	}

	return s
}

// Link returns an absolute link for the given path when a BaseURL is configured.
func (c Config) Link(path string) string {
	if c.BaseURL == "" || strings.HasPrefix(path, "http") {
		return path
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
