// Package app wires the catalog service's components together.
package app

import (
	"log/slog"
	"net/http"

	"github.com/ceramica/storefront/internal/config"
	"github.com/ceramica/storefront/internal/service"
	"github.com/ceramica/storefront/internal/snapshot"
	"github.com/ceramica/storefront/internal/store"
	grpcImpl "github.com/ceramica/storefront/internal/transport/grpc"
	"github.com/ceramica/storefront/internal/transport/rest"
	"github.com/ceramica/storefront/pkg/messaging"
	"github.com/ceramica/storefront/pkg/server"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
)

type Dependencies struct {
	CatalogService service.CatalogService
	Snapshot       *snapshot.Cache
	Health         *grpcImpl.Health
	MetricsHandler http.Handler
	MetricsPath    string
	Logger         *slog.Logger
}

// SetupDependencies builds the snapshot and the catalog service over productStore.
// metricsHandler may be nil, in which case no metrics route is mounted.
func SetupDependencies(productStore store.ProductStore, publisher messaging.Publisher, cfg *config.Config,
	metricsHandler http.Handler, logger *slog.Logger, opts ...snapshot.Option) (*Dependencies, error) {
	cache, err := snapshot.New(productStore, cfg.Snapshot, logger, opts...)
	if err != nil {
		return nil, err
	}
	svc := service.NewService(productStore, cache, publisher, cfg.Catalog.PageSize, logger)

	return &Dependencies{
		CatalogService: svc,
		Snapshot:       cache,
		Health:         grpcImpl.NewHealth(cache, logger),
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Telemetry.Metrics.Path,
		Logger:         logger,
	}, nil
}

// SetupHttpHandler initializes the routes for the catalog service.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	catalogHandler := rest.NewHandler(deps.CatalogService, deps.Snapshot, deps.Logger)
	catalogHandler.RegisterRoutes(mux)
	if deps.MetricsHandler != nil {
		mux.Method(http.MethodGet, deps.MetricsPath, deps.MetricsHandler)
	}
}

// SetupHttpServer creates and configures an HTTP server for the catalog service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, "catalog-http", mux)
}

// SetupGrpcServer initializes the gRPC server, which only carries the health service.
func SetupGrpcServer(deps *Dependencies, reflectionEnabled bool) *grpc.Server {
	return server.NewGRPCServer(deps.Logger, reflectionEnabled, deps.Health.Register)
}
