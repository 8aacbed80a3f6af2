package postgres

import (
	"context"
	"fmt"

	"cryptobroker/config"
	"cryptobroker/internal/coin"
	"cryptobroker/internal/ledger"
	"cryptobroker/internal/perf"
	"cryptobroker/internal/portfolio"
	"cryptobroker/internal/price"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	_ coin.Store      = (*PostgresClient)(nil)
	_ price.Store     = (*PostgresClient)(nil)
	_ ledger.Store    = (*PostgresClient)(nil)
	_ perf.TickStore  = (*PostgresClient)(nil)
	_ portfolio.Store = (*PostgresClient)(nil)
)

type PostgresClient struct {
	DB *gorm.DB
}

func NewClient(dsn string) (*PostgresClient, error) {
	return NewFromDialector(postgres.Open(dsn))
}

// NewFromDialector opens a client over any gorm dialector; tests use it with sqlite.
func NewFromDialector(d gorm.Dialector) (*PostgresClient, error) {
	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresClient{DB: db}, nil
}

// InitializeAndMigrate resolves the DSN for env, optionally creates the DB,
// applies the pool settings and runs AutoMigrate when asked to.
func InitializeAndMigrate(ctx context.Context, cfg config.PostgresConfig, env string, createDB, migrate bool) (*PostgresClient, error) {
	if createDB {
		if err := CreateDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	dsn, err := cfg.DSN(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dsn: %w", err)
	}

	client, err := NewClient(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.ConfigurePool(cfg); err != nil {
		_ = client.Close()
		return nil, err
	}

	if migrate {
		if err := client.AutoMigrate(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return client, nil
}

func (p *PostgresClient) ConfigurePool(cfg config.PostgresConfig) error {
	db, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

func (p *PostgresClient) AutoMigrate() error {
	if err := p.DB.AutoMigrate(
		&CryptoDataRecord{},
		&WalletRecord{},
		&TransactionRecord{},
		&ServerPatronRecord{},
	); err != nil {
		return fmt.Errorf("auto-migrate broker tables: %w", err)
	}
	return nil
}

func (p *PostgresClient) IsHealthy(ctx context.Context) bool {
	db, err := p.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (p *PostgresClient) Close() error {
	db, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
