package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/packclaim/pkg/config"
	"github.com/angelmondragon/packclaim/pkg/logger"
)

const defaultConnectTimeout = 30 * time.Second

// Client wraps the shared GORM connection.
type Client struct {
	conn *gorm.DB
}

// Wrap adopts an already opened connection, e.g. an sqlite handle in tests.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

// New opens the postgres pool and waits up to cfg.ConnectTimeout for the
// first successful ping.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	switch {
	case cfg.DSN == "":
		return nil, errors.New("database DSN is required")
	case cfg.Driver != "" && cfg.Driver != "postgres":
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	configurePool(sqlDB, cfg)

	client := &Client{conn: conn}
	attempts, err := client.waitReady(ctx, cfg.ConnectTimeout)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database not reachable after %d attempts: %w", attempts, err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"ping_attempts":        attempts,
			"max_open_conns":       cfg.MaxOpenConns,
			"slow_query_threshold": cfg.SlowQueryThreshold.String(),
		}), "database connection established")
	}
	return client, nil
}

func (c *Client) waitReady(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = timeout

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return c.Ping(pingCtx)
	}, backoff.WithContext(policy, ctx))
	return attempts, err
}

func configurePool(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction that commits when fn returns nil and rolls
// back on error or panic.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

// InTx runs fn inside tx when the caller already holds a transaction and opens
// a new one otherwise.
func (c *Client) InTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx.WithContext(ctx))
	}
	return c.WithTx(ctx, fn)
}
