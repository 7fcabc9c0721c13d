package database

import "time"

const (
	defaultMaxIdleConns    = 8
	defaultMaxOpenConns    = 8
	defaultConnMaxLifetime = time.Hour
	defaultBusyTimeoutMS   = 5000
)

// Config holds database configuration settings
type Config struct {
	DBPath string

	// Zero values fall back to the package defaults
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	CacheSizeKB     int
	BusyTimeoutMS   int
	ReadOnly        bool

	// SkipMigrations leaves the schema untouched, used by the rollback command
	SkipMigrations bool
}

// NewConfig creates a new database configuration with default values
func NewConfig(dbPath string) *Config {
	return &Config{
		DBPath:          dbPath,
		ConnMaxLifetime: defaultConnMaxLifetime,
		CacheSizeKB:     -64000, // 64MB
		BusyTimeoutMS:   defaultBusyTimeoutMS,
	}
}
