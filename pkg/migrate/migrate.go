package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Migrations ships the gallery schema inside every binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const embeddedDir = "migrations"

// Source picks the migration set goose reads: a directory on disk or the
// files compiled into the binary.
type Source struct {
	Dir      string
	Embedded bool
}

// Embedded is the migration set compiled into the binary.
var Embedded = Source{Embedded: true}

func (s Source) use(fn func(dir string) error) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if !s.Embedded {
		if s.Dir == "" {
			return errors.New("dir is required")
		}
		return fn(s.Dir)
	}
	goose.SetBaseFS(Migrations)
	defer goose.SetBaseFS(nil)
	return fn(embeddedDir)
}

// Run executes up, down or status against src. The version command moves the
// schema to target in whichever direction is needed.
func Run(ctx context.Context, db *sql.DB, src Source, command, target string) error {
	if db == nil {
		return errors.New("db is required")
	}
	return src.use(func(dir string) error {
		switch command {
		case "up", "down", "status":
			if err := goose.RunContext(ctx, command, db, dir); err != nil {
				return fmt.Errorf("goose %s: %w", command, err)
			}
			return nil
		case "version":
			return migrateTo(ctx, db, dir, target)
		default:
			return fmt.Errorf("unknown migrate command %q", command)
		}
	})
}

func migrateTo(ctx context.Context, db *sql.DB, dir, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case version > current:
		err = goose.UpToContext(ctx, db, dir, version)
	case version < current:
		err = goose.DownToContext(ctx, db, dir, version)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

// Pending counts migrations in src newer than the database version.
func Pending(ctx context.Context, db *sql.DB, src Source) (int, error) {
	if db == nil {
		return 0, errors.New("db is required")
	}
	pending := 0
	err := src.use(func(dir string) error {
		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		ahead, err := goose.CollectMigrations(dir, current, goose.MaxVersion)
		if err != nil {
			return fmt.Errorf("collect migrations: %w", err)
		}
		pending = len(ahead)
		return nil
	})
	return pending, err
}
