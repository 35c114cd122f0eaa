// Package postgres holds the lib/pq pool shared by the corpus source, the
// API-key store and the analytics snapshot store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
)

// connectRetry covers a database that is still starting next to us.
var connectRetry = resilience.RetryConfig{
	MaxAttempts:  4,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Retryable:    func(err error) bool { return !isFatalConnError(err) },
}

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens the pool and waits for the server to answer a ping, retrying
// briefly. Authentication and unknown-database errors fail at once.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = resilience.Retry(ctx, "postgres connect", connectRetry, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres at %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// isFatalConnError spots server answers that retrying cannot fix: class 28
// (authorization) and 3D000 (no such database).
func isFatalConnError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "28" || pqErr.Code == "3D000"
}

// DocumentsTable is the configured corpus table, unquoted.
func (c *Client) DocumentsTable() string {
	return c.cfg.DocumentsTable
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx commits when fn returns nil and rolls back on error or panic.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
