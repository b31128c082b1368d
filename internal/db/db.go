package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/shopfront/payment-service/pkg/logger"
)

// DBClient представляет клиент для работы с базой данных.
// Держит оба хендла к одному DSN: sqlx для простых запросов профиля
// и pgxpool для репозитория платежных методов с транзакциями.
type DBClient struct {
	db   *sqlx.DB
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewDBClient создает новый экземпляр DBClient.
// Подключение повторяется с экспоненциальным backoff: при старте
// сервис может подняться раньше базы. Внутри бизнес-операций
// повторных попыток нет.
func NewDBClient(ctx context.Context, dsn string, log *logger.Logger) (*DBClient, error) {
	var db *sqlx.DB
	var pool *pgxpool.Pool

	connect := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "pgx", dsn)
		if err != nil {
			log.Warnw("Database connection attempt failed", "error", err)
			return err
		}

		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			log.Warnw("Failed to create pgx pool", "error", err)
			return err
		}

		if err = pool.Ping(ctx); err != nil {
			log.Warnw("Failed to ping database via pgx pool", "error", err)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(connect, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Infow("Database connection established")
	return &DBClient{db: db, pool: pool, log: log}, nil
}

// DB возвращает sqlx хендл.
func (dc *DBClient) DB() *sqlx.DB {
	return dc.db
}

// Pool возвращает pgx пул.
func (dc *DBClient) Pool() *pgxpool.Pool {
	return dc.pool
}

// Close закрывает соединения с базой данных.
func (dc *DBClient) Close() error {
	dc.pool.Close()
	if err := dc.db.Close(); err != nil {
		dc.log.Errorw("Failed to close database connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
