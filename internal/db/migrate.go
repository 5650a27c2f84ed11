package db

import (
	"fmt"

	"github.com/pressly/goose/v3"

	"threadhub/migrations"
)

// Migrate runs all pending goose migrations.
func Migrate(d *DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect(d.Driver)); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(d.DB, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func gooseDialect(driver string) string {
	if driver == "sqlite" {
		return "sqlite3"
	}
	return driver
}
