// Package config loads server settings from config.yaml with environment
// overrides under the CATALOG_ prefix (CATALOG_SERVER_PORT, CATALOG_DATABASE_HOST, ...).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/northdeals/catalog/internal/db"
)

// Config is the full server configuration.
type Config struct {
	Port int
	DB   db.Config

	FetchCap       int
	FanoutTimeout  time.Duration
	FacetTTL       time.Duration
	StatsTTL       time.Duration
	DefaultPerPage int
	MaxPerPage     int
	ExportRowLimit int

	CORSOrigins    []string
	MigrationsPath string
}

func defaults() Config {
	return Config{
		Port:           8080,
		DB:             db.DefaultConfig(),
		FetchCap:       500,
		FanoutTimeout:  10 * time.Second,
		FacetTTL:       5 * time.Minute,
		StatsTTL:       time.Minute,
		DefaultPerPage: 24,
		MaxPerPage:     200,
		ExportRowLimit: 5000,
		CORSOrigins:    []string{"*"},
		MigrationsPath: "migrations",
	}
}

// Load reads config.yaml from configPath, falling back to defaults and env
// vars when the file is missing.
func Load(configPath string) (Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("CATALOG")

	v.BindEnv("server.port", "CATALOG_SERVER_PORT")
	v.BindEnv("database.host", "CATALOG_DATABASE_HOST")
	v.BindEnv("database.port", "CATALOG_DATABASE_PORT")
	v.BindEnv("database.user", "CATALOG_DATABASE_USER")
	v.BindEnv("database.password", "CATALOG_DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "CATALOG_DATABASE_DBNAME")
	v.BindEnv("database.sslmode", "CATALOG_DATABASE_SSLMODE")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("server.port") {
		cfg.Port = v.GetInt("server.port")
	}
	if v.IsSet("server.cors_origins") {
		cfg.CORSOrigins = v.GetStringSlice("server.cors_origins")
	}

	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("federation.fetch_cap") {
		cfg.FetchCap = v.GetInt("federation.fetch_cap")
	}
	if v.IsSet("federation.fanout_timeout") {
		cfg.FanoutTimeout = v.GetDuration("federation.fanout_timeout")
	}
	if v.IsSet("cache.facet_ttl") {
		cfg.FacetTTL = v.GetDuration("cache.facet_ttl")
	}
	if v.IsSet("cache.stats_ttl") {
		cfg.StatsTTL = v.GetDuration("cache.stats_ttl")
	}
	if v.IsSet("listing.default_per_page") {
		cfg.DefaultPerPage = v.GetInt("listing.default_per_page")
	}
	if v.IsSet("listing.max_per_page") {
		cfg.MaxPerPage = v.GetInt("listing.max_per_page")
	}
	if v.IsSet("export.row_limit") {
		cfg.ExportRowLimit = v.GetInt("export.row_limit")
	}
	if v.IsSet("migrations.path") {
		cfg.MigrationsPath = v.GetString("migrations.path")
	}

	return cfg, nil
}
