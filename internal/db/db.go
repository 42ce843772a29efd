package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/utec/campusdesk/config"
)

// NewPostgres abre la base del journal.
func NewPostgres(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DB.DSN())
	if err != nil {
		return nil, fmt.Errorf("conectando PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	slog.Info("PostgreSQL conectado", "host", cfg.DB.Host, "db", cfg.DB.Name)
	return db, nil
}

// NewRedis devuelve nil, nil si REDIS_ADDR está vacío: el hub queda local.
func NewRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("conectando Redis: %w", err)
	}
	slog.Info("Redis conectado", "addr", cfg.Redis.Addr)
	return client, nil
}
