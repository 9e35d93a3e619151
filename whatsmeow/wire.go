package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/thomasfsr/gymlog/src/bot"
	"github.com/thomasfsr/gymlog/src/config"
	"github.com/thomasfsr/gymlog/src/database"
	"github.com/thomasfsr/gymlog/src/httpapi"
	"github.com/thomasfsr/gymlog/src/llm"
	"github.com/thomasfsr/gymlog/src/session"
)

// openGateway connects to the configured engine and makes sure the schema
// exists.
func openGateway(ctx context.Context, cfg *config.Config, log zerolog.Logger) (database.Gateway, error) {
	log = log.With().Str("component", "database").Str("driver", cfg.DB.Driver).Logger()

	var (
		db  database.Gateway
		err error
	)
	switch cfg.DB.Driver {
	case "postgres":
		db, err = database.NewPostgres(ctx, cfg.PostgresDSN(), database.PoolOptions{
			MaxConns:  int32(cfg.DB.MaxConns),
			MinConns:  int32(cfg.DB.MinConns),
			OpTimeout: cfg.DB.OpTimeout,
		}, log)
	default:
		db, err = database.NewSQLite(cfg.DB.SQLitePath, cfg.DB.OpTimeout, log)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", cfg.DB.Driver, err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type redisCheck struct {
	store *session.RedisStore
}

func (redisCheck) Ready() bool                      { return true }
func (c redisCheck) Ping(ctx context.Context) error { return c.store.Ping(ctx) }

// openSessions returns the session store, a health dependency when the
// store is remote, and a close function.
func openSessions(ctx context.Context, cfg *config.Config) (session.Store, httpapi.Dependency, func(), error) {
	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(), nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Session.RedisAddr,
		Password: cfg.Session.RedisPassword,
		DB:       cfg.Session.RedisDB,
	})
	store := session.NewRedisStore(rdb, cfg.Session.TTL)
	if err := store.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return store, redisCheck{store}, func() { _ = rdb.Close() }, nil
}

func newBot(cfg *config.Config, db database.Gateway, sessions session.Store, log zerolog.Logger) *bot.Bot {
	opts := []bot.Option{bot.WithLogger(log.With().Str("component", "bot").Logger())}
	if cfg.LLMEnabled() {
		extractor := llm.New(cfg.LLM.APIKey, cfg.LLM.BaseURL,
			llm.WithModel(cfg.LLM.Model),
			llm.WithLogger(log.With().Str("component", "llm").Logger()),
		)
		opts = append(opts, bot.WithExtractor(extractor))
	}
	return bot.New(db, sessions, opts...)
}
