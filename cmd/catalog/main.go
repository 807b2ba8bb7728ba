// Package main runs the storefront catalog service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/ceramica/storefront/internal/app"
	"github.com/ceramica/storefront/internal/config"
	"github.com/ceramica/storefront/internal/migrations"
	"github.com/ceramica/storefront/internal/seed"
	"github.com/ceramica/storefront/internal/snapshot"
	"github.com/ceramica/storefront/internal/store"
	"github.com/ceramica/storefront/internal/subscriber"
	"github.com/ceramica/storefront/pkg/bootstrap"
	"github.com/ceramica/storefront/pkg/config/configloader"
	"github.com/ceramica/storefront/pkg/messaging"
	pnats "github.com/ceramica/storefront/pkg/nats"
	"github.com/ceramica/storefront/pkg/probes"
	"github.com/ceramica/storefront/pkg/telemetry"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const serviceName = "catalog"

// readinessInterval is how often the readiness file and gRPC health follow the snapshot.
const readinessInterval = time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, builds the store, the snapshot and the servers, and runs
// them until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName,
		configloader.WithConfigFile(os.Getenv("CATALOG_CONFIG_FILE")),
		configloader.WithDefaults(config.Defaults()),
	)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Telemetry.Traces.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		defer shutdownWithTimeout(tp.Shutdown, cfg.Shutdown.Timeout, "tracer provider", logger)
	}
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		mp, handler, err := telemetry.NewMeterProvider(serviceName)
		if err != nil {
			return fmt.Errorf("failed to create meter provider: %w", err)
		}
		defer shutdownWithTimeout(mp.Shutdown, cfg.Shutdown.Timeout, "meter provider", logger)
		metricsHandler = handler
	}

	productStore, closeStore, err := newProductStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	var js jetstream.JetStream
	if cfg.Nats.Enabled {
		nc, err := pnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
		if err != nil {
			return err
		}
		defer nc.Close()
		if js, err = pnats.NewJetStreamContext(nc); err != nil {
			return err
		}
		if _, err := pnats.EnsureStream(ctx, js, cfg.Subscriber.Stream, cfg.Subscriber.Subject); err != nil {
			return err
		}
		publisher = pnats.NewNatsPublisher(js)
		logger.Info("Connected to NATS", slog.String("url", cfg.Nats.Url))
	} else {
		logger.Info("NATS is disabled, catalog changes stay local to this replica")
	}

	deps, err := app.SetupDependencies(productStore, publisher, cfg, metricsHandler, logger)
	if err != nil {
		return fmt.Errorf("failed to set up dependencies: %w", err)
	}
	if err := deps.Snapshot.Warm(ctx); err != nil {
		logger.Warn("Catalog snapshot could not be loaded at startup, will retry on demand", "error", err)
	} else {
		logger.Info("Catalog snapshot loaded")
	}

	httpServer, pprofServer, grpcServer := setupServers(deps, cfg)

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Start the gRPC server
	g.Go(func() error {
		grpcAddr := ":" + cfg.GRPC.Port
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("gRPC server listening", slog.String("addr", grpcAddr))
		return grpcServer.Serve(lis)
	})
	// gracefully shutdown gRPC server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down gRPC server...")
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			logger.Info("gRPC server stopped gracefully.")
			return nil
		case <-time.After(cfg.Shutdown.Timeout):
			logger.Warn("gRPC server graceful stop timed out. Forcing stop.")
			grpcServer.Stop()
			return fmt.Errorf("grpc server graceful stop timed out")
		}
	})

	// gRPC health and the readiness file follow the snapshot
	g.Go(func() error {
		return ignoreCanceled(deps.Health.Watch(gCtx, readinessInterval))
	})
	g.Go(func() error {
		return watchReadiness(gCtx, deps.Snapshot, cfg.Probes.ReadinessFileName, logger)
	})
	g.Go(func() error {
		return probes.RunLiveness(gCtx, cfg.Probes.LivenessFileName, cfg.Probes.LivenessInterval, logger)
	})

	if cfg.Nats.Enabled {
		subscriberCfg := cfg.Subscriber
		subscriberCfg.Consumer = consumerName(subscriberCfg.Consumer)
		g.Go(func() error {
			return ignoreCanceled(subscriber.Start(gCtx, js, subscriberCfg, deps.Snapshot, logger))
		})
	}

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// newProductStore returns the configured store and a function releasing its resources.
func newProductStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.ProductStore, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if cfg.Database.MigrateOnStart {
			if err := migrations.Up(cfg.Database.URL); err != nil {
				return nil, nil, err
			}
			logger.Info("Database migrations applied")
		}
		dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		logger.Info("Successfully connected to the database!")
		return store.NewPgStore(dbPool), dbPool.Close, nil
	default:
		memory := store.NewInMemoryStore()
		if cfg.Store.SeedFile != "" {
			items, err := seed.ReadFile(cfg.Store.SeedFile)
			if err != nil {
				return nil, nil, err
			}
			n, err := seed.Apply(ctx, memory, items)
			if err != nil {
				return nil, nil, err
			}
			logger.Info("In-memory store seeded", slog.String("file", cfg.Store.SeedFile), slog.Int("products", n))
		}
		return memory, func() {}, nil
	}
}

// setupServers initializes the HTTP, pprof, and gRPC servers.
func setupServers(deps *app.Dependencies, cfg *config.Config) (*http.Server, *http.Server, *grpc.Server) {
	httpServer := app.SetupHttpServer(deps, cfg)
	grpcServer := app.SetupGrpcServer(deps, cfg.GRPC.ReflectionEnabled)
	pprofServer := &http.Server{
		Addr:              cfg.PProf.Addr,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
	}
	return httpServer, pprofServer, grpcServer
}

// watchReadiness keeps the readiness file present while the snapshot is loaded and
// removes it on shutdown.
func watchReadiness(ctx context.Context, cache *snapshot.Cache, fileName string, logger *slog.Logger) error {
	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()
	ready := false
	for {
		if cache.Ready() && !ready {
			if err := probes.MarkReady(fileName); err != nil {
				return err
			}
			ready = true
			logger.Info("Service is ready", slog.String("file", fileName))
		}
		select {
		case <-ctx.Done():
			return probes.MarkNotReady(fileName)
		case <-ticker.C:
		}
	}
}

// consumerName makes the durable consumer unique per replica so each one sees every event.
func consumerName(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid%d", os.Getpid())
	}
	return prefix + "-" + consumerNameReplacer.Replace(host)
}

// consumerNameReplacer drops the characters JetStream does not allow in consumer names.
var consumerNameReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func shutdownWithTimeout(shutdown func(context.Context) error, timeout time.Duration, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("Failed to shut down "+name, "error", err)
	}
}
