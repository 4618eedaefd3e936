package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the instrument cache database
func InitDB(cfg *Config, log zerolog.Logger) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.Environment == "production" {
		logLevel = logger.Error
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		d := cfg.Database
		log.Info().
			Str("host", maskHost(d.Host)).
			Str("port", d.Port).
			Str("user", d.User).
			Str("dbname", d.Name).
			Msg("Connecting to database")
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, cfg.MarketTZ,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	default:
		path := cfg.Database.SQLitePath
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		log.Info().Str("path", path).Msg("Opening sqlite instrument cache")
		sqlDB, openErr := sql.Open("sqlite3", path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", openErr)
		}
		db, err = gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite3", Conn: sqlDB}), gormCfg)
		if err != nil {
			_ = sqlDB.Close()
		}
	}
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pingOrClose(db); err != nil {
		return nil, err
	}

	log.Info().Str("driver", cfg.Database.Driver).Msg("Database connection verified")
	return db, nil
}

// pingOrClose verifies the connection and releases the pool when it is unusable
func pingOrClose(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}
