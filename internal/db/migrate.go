package db

import (
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrateURL renders the config as a URL for the migrate pgx/v5 driver.
func (c Config) migrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RunMigrations applies all pending .up.sql migrations from migrationsPath.
func RunMigrations(config Config, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, config.migrateURL())
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("[MIGRATE] close source: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("[MIGRATE] close database: %v", dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("[MIGRATE] schema up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.Println("[MIGRATE] migrations applied")
	return nil
}
