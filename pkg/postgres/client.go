package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client holds the GORM connection.
type Client struct {
	db *gorm.DB
}

// ClientOption configures Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	logLevel        logger.LogLevel
}

// WithPool sets connection pool limits.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) ClientOption {
	return func(c *clientConfig) {
		if maxOpen > 0 {
			c.maxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			c.maxIdleConns = maxIdle
		}
		if lifetime > 0 {
			c.connMaxLifetime = lifetime
		}
	}
}

// WithSQLLogging turns on GORM statement logging.
func WithSQLLogging(enabled bool) ClientOption {
	return func(c *clientConfig) {
		if enabled {
			c.logLevel = logger.Info
		}
	}
}

// Connect opens and pings a PostgreSQL connection.
func Connect(dsn string, opts ...ClientOption) (*Client, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	cfg := &clientConfig{
		maxOpenConns:    10,
		maxIdleConns:    5,
		connMaxLifetime: 30 * time.Minute,
		logLevel:        logger.Silent,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.maxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.maxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Client{db: db}, nil
}

// DB returns the GORM handle.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Health pings the database.
func (c *Client) Health(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates tables for the given models.
func (c *Client) Migrate(models ...any) error {
	if err := c.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
