// Package database opens the Document Tree Store and brings its schema up to
// date with goose.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/storagecrypt/internal/database/migrations"
	"github.com/dmitrijs2005/storagecrypt/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to dsn with driver ("sqlite" or "pgx") and runs migrations.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, dbx.Dialect, error) {
	dialect := dbx.DialectForDriver(driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, dialect, fmt.Errorf("open %s database: %w", driver, err)
	}

	if dialect == dbx.SQLite {
		// sqlite serializes writers; one connection also keeps :memory: databases intact
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dialect, fmt.Errorf("ping %s database: %w", driver, err)
	}

	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, dialect, err
	}
	return db, dialect, nil
}

// RunMigrations applies the embedded migrations of dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	dir := "sqlite"
	gooseDialect := "sqlite3"
	if dialect == dbx.Postgres {
		dir, gooseDialect = "postgres", "postgres"
	}

	sub, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("migrations %s: %w", dir, err)
	}

	goose.SetBaseFS(sub)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
