// Package database opens the single administrative PostgreSQL session used for a run and
// runs functions inside a transaction on it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Beginner starts transactions. *sql.DB satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ConnConfig holds what is needed to reach the database as the administrative user
type ConnConfig struct {
	Host     string
	Port     int
	User     string
	Database string
	SSLMode  string
}

// DSN renders a lib/pq key=value connection string. The password is quoted so any
// character survives.
func (c ConnConfig) DSN(password string) string {
	parts := []string{
		fmt.Sprintf("host=%s", quoteValue(c.Host)),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("dbname=%s", quoteValue(c.Database)),
		fmt.Sprintf("user=%s", quoteValue(c.User)),
	}
	if password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quoteValue(password)))
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslmode))
	return strings.Join(parts, " ")
}

func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Open connects to PostgreSQL and verifies the connection. The pool is capped at one
// connection so every statement of the run shares a single session. The caller must Close it.
func Open(ctx context.Context, cfg ConnConfig, password string) (*sql.DB, error) {
	connector, err := pq.NewConnector(cfg.DSN(password))
	if err != nil {
		return nil, fmt.Errorf("invalid database connection settings: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s:%d/%s as %s: %w", cfg.Host, cfg.Port, cfg.Database, cfg.User, err)
	}
	return db, nil
}

// WithTx begins a transaction, runs fn with it, and commits on success or rolls back on
// error or panic. Panics are rethrown.
func WithTx(ctx context.Context, db Beginner, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(ctx, tx)
}
