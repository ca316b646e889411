/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the point ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (defaults, file, environment), then apply flags
  2. Open the configured store
  3. Create the ledger and API handler
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Config file path (optional)
  -port    HTTP server port, overrides server.port
  -store   Store driver: memory, sqlite or redis, overrides store.driver
  -db      SQLite database path, overrides store.sqlite_path
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  POINT_SERVER_PORT, POINT_STORE_DRIVER, POINT_STORE_SQLITE_PATH,
  POINT_STORE_REDIS_ADDR, POINT_LOG_LEVEL and the rest of config.Config.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  ./server -store=sqlite -db="./data/points.db"
  POINT_STORE_DRIVER=redis POINT_STORE_REDIS_ADDR=cache:6379 ./server
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/point-ledger/api"
	"github.com/warp/point-ledger/config"
	"github.com/warp/point-ledger/logger"
	"github.com/warp/point-ledger/point"
	"github.com/warp/point-ledger/point/store"
	"github.com/warp/point-ledger/store/redis"
	"github.com/warp/point-ledger/store/sqlite"
)

type backend interface {
	point.Backend
	io.Closer
}

func main() {
	// Flags
	configPath := flag.String("config", "", "Config file path")
	port := flag.Int("port", 0, "HTTP server port")
	driver := flag.String("store", "", "Store driver (memory, sqlite, redis)")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "store":
			cfg.Store.Driver = *driver
		case "db":
			cfg.Store.SQLitePath = *dbPath
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)

	// Initialize store
	st, err := openStore(context.Background(), cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to initialize store")
	}
	defer st.Close()

	ledger := point.New(st, point.WithLogger(log))
	handler := api.NewHandler(ledger, log)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("store", cfg.Store.Driver).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverSQLite:
		return sqlite.New(cfg.SQLitePath)
	case config.DriverRedis:
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return redis.New(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
