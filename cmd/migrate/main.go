package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func listMigrations(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, errors.Wrap(err, "glob migrations")
	}
	sort.Strings(files)
	return files, nil
}

func applied(ctx context.Context, conn *pgx.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "select applied")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan applied")
		}
		out[name] = true
	}
	return out, rows.Err()
}

func apply(ctx context.Context, conn *pgx.Conn, file string) error {
	body, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrap(err, "read migration")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, string(body)); err != nil {
		return errors.Wrap(err, fmt.Sprintf("exec %s", filepath.Base(file)))
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, filepath.Base(file)); err != nil {
		return errors.Wrap(err, "mark applied")
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

func main() {
	viper.SetConfigName(".migrate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("dir", "migrations")
	viper.SetDefault("timeout", "60s")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("dsn", "DATABASE_DSN")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}
	dsn := viper.GetString("dsn")
	if dsn == "" {
		panic("has no dsn in config or DATABASE_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		panic(fmt.Errorf("connect: %w", err))
	}
	defer func() {
		_ = conn.Close(context.Background())
	}()

	if _, err := conn.Exec(ctx, migrationsTable); err != nil {
		panic(fmt.Errorf("create schema_migrations: %w", err))
	}
	files, err := listMigrations(viper.GetString("dir"))
	if err != nil {
		panic(err)
	}
	done, err := applied(ctx, conn)
	if err != nil {
		panic(err)
	}

	started := time.Now()
	n := 0
	for _, file := range files {
		if done[filepath.Base(file)] {
			continue
		}
		if err := apply(ctx, conn, file); err != nil {
			panic(fmt.Errorf("apply: %w", err))
		}
		n++
		fmt.Printf("%s applied\n", file)
	}
	fmt.Printf("done: %d new migrations in %s\n", n, time.Since(started).Truncate(time.Millisecond))
}
