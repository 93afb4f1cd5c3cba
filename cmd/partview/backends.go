package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/health"
	"goa.design/clue/log"
	"goa.design/pulse/rmap"

	clientspulse "goa.design/partview/features/stream/pulse/clients/pulse"
	"goa.design/partview/features/thread/memory"
	threadmongo "goa.design/partview/features/thread/mongo"
	clientsmongo "goa.design/partview/features/thread/mongo/clients/mongo"
	"goa.design/partview/features/thread/replicated"
	"goa.design/partview/runtime/thread"
)

const threadsMapName = "partview:threads"

// backends holds the thread store and the optional Pulse client selected
// from the environment.
type backends struct {
	store   thread.Store
	pulse   clientspulse.Client
	pingers []health.Pinger
	closers []func(context.Context)
}

// openBackends selects the Mongo store when a Mongo URI is configured, the
// replicated store when only Redis is configured and an in-memory store
// otherwise. Redis additionally enables the Pulse transport.
func openBackends(ctx context.Context, cfg config) (*backends, error) {
	b := &backends{}
	if cfg.mongoURI != "" {
		mc, err := mongodriver.Connect(options.Client().ApplyURI(cfg.mongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		b.closers = append(b.closers, func(ctx context.Context) {
			if err := mc.Disconnect(ctx); err != nil {
				log.Errorf(ctx, err, "disconnect mongo")
			}
		})
		cl, err := clientsmongo.New(clientsmongo.Options{Client: mc, Database: cfg.mongoDB})
		if err != nil {
			b.close(ctx)
			return nil, fmt.Errorf("create mongo thread client: %w", err)
		}
		store, err := threadmongo.NewStore(cl)
		if err != nil {
			b.close(ctx)
			return nil, err
		}
		b.store = store
		b.pingers = append(b.pingers, cl)
		log.Print(ctx, log.KV{K: "thread-store", V: "mongo"}, log.KV{K: "db", V: cfg.mongoDB})
	}
	if cfg.redisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.redisURL, Password: cfg.redisPassword})
		b.closers = append(b.closers, func(ctx context.Context) {
			if err := rdb.Close(); err != nil {
				log.Errorf(ctx, err, "close redis")
			}
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			b.close(ctx)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		pc, err := clientspulse.New(clientspulse.Options{Redis: rdb, OperationTimeout: 5 * time.Second})
		if err != nil {
			b.close(ctx)
			return nil, fmt.Errorf("create pulse client: %w", err)
		}
		b.pulse = pc
		b.pingers = append(b.pingers, redisPinger{pc})
		if b.store == nil {
			m, err := rmap.Join(ctx, threadsMapName, rdb)
			if err != nil {
				b.close(ctx)
				return nil, fmt.Errorf("join threads map: %w", err)
			}
			b.closers = append(b.closers, func(context.Context) { m.Close() })
			b.store = replicated.New(m)
			log.Print(ctx, log.KV{K: "thread-store", V: "replicated"}, log.KV{K: "map", V: threadsMapName})
		}
	}
	if b.store == nil {
		b.store = memory.New()
		log.Print(ctx, log.KV{K: "thread-store", V: "memory"})
	}
	return b, nil
}

// close releases resources in reverse acquisition order.
func (b *backends) close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i](ctx)
	}
	b.closers = nil
}

// serveHealth serves the health check of the configured backends until ctx
// is done.
func (b *backends) serveHealth(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	check := health.Handler(health.NewChecker(b.pingers...))
	mux.Handle("/livez", check)
	mux.Handle("/healthz", check)
	srv := &http.Server{Addr: addr, Handler: log.HTTP(ctx)(mux), ReadHeaderTimeout: 60 * time.Second}
	go func() {
		log.Printf(ctx, "health server listening on %q", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf(ctx, err, "health server")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf(ctx, err, "shutdown health server")
		}
	}()
	return nil
}

// redisPinger reports the Redis connection backing Pulse.
type redisPinger struct {
	client clientspulse.Client
}

func (redisPinger) Name() string {
	return "redis"
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
