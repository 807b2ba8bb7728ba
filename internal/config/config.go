// Package config holds the catalog service configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ceramica/storefront/pkg/config"
	"github.com/ceramica/storefront/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	Database   config.DatabaseConfig   `koanf:"database"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	GRPC       config.GrpcServerConfig `koanf:"grpc"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	Nats       config.NATSConfig       `koanf:"nats"`
	Subscriber config.SubscriberConfig `koanf:"subscriber"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	Probes     config.ProbesConfig     `koanf:"probes"`
	Store      StoreConfig             `koanf:"store"`
	Catalog    CatalogConfig           `koanf:"catalog"`
	Snapshot   SnapshotConfig          `koanf:"snapshot"`
}

// StoreConfig selects the product store implementation.
type StoreConfig struct {
	Driver   string `koanf:"driver"`
	SeedFile string `koanf:"seedfile"`
}

// CatalogConfig configures the listing page.
type CatalogConfig struct {
	PageSize int `koanf:"pagesize"`
}

// SnapshotConfig configures the in-process catalog snapshot.
type SnapshotConfig struct {
	TTL            time.Duration               `koanf:"ttl"`
	LoadTimeout    time.Duration               `koanf:"loadtimeout"`
	CircuitBreaker config.CircuitBreakerConfig `koanf:"circuitbreaker"`
}

// Defaults is the lowest priority configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":               8080,
		"server.maxheaderbytes":     1 << 20,
		"server.timeout.read":       "5s",
		"server.timeout.write":      "10s",
		"server.timeout.idle":       "60s",
		"server.timeout.readheader": "2s",

		"database.timeout": "5s",

		"log.level": "info",

		"grpc.port": "9090",

		"pprof.addr": "localhost:6060",

		"shutdown.timeout": "10s",

		"nats.timeout": "5s",

		"subscriber.stream":     "CATALOG",
		"subscriber.subject":    "catalog.products.changed",
		"subscriber.consumer":   "catalog",
		"subscriber.batch":      10,
		"subscriber.timeout":    "5s",
		"subscriber.interval":   "1s",
		"subscriber.workers":    2,
		"subscriber.maxdeliver": 5,

		"telemetry.metrics.enabled": true,
		"telemetry.metrics.path":    "/metrics",

		"store.driver": DriverMemory,

		"catalog.pagesize": 6,

		"snapshot.ttl":         "30s",
		"snapshot.loadtimeout": "3s",

		"snapshot.circuitbreaker.consecutivefailures": 3,
		"snapshot.circuitbreaker.errorratepercent":    50,
		"snapshot.circuitbreaker.opentimeout":         "10s",
		"snapshot.circuitbreaker.maxrequests":         1,
	}
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.GRPC.String())
	b.WriteString("\n--- Store ---\n")
	b.WriteString(fmt.Sprintf("  driver: %s\n", c.Store.Driver))
	b.WriteString(fmt.Sprintf("  seedfile: %s\n", c.Store.SeedFile))
	if c.Store.Driver == DriverPostgres {
		b.WriteString(c.Database.String())
	}
	b.WriteString("\n--- Catalog ---\n")
	b.WriteString(fmt.Sprintf("  pagesize: %d\n", c.Catalog.PageSize))
	b.WriteString("\n--- Snapshot ---\n")
	b.WriteString(fmt.Sprintf("  ttl: %s\n", c.Snapshot.TTL))
	b.WriteString(fmt.Sprintf("  loadtimeout: %s\n", c.Snapshot.LoadTimeout))
	b.WriteString(c.Snapshot.CircuitBreaker.String())
	b.WriteString(c.Nats.String())
	if c.Nats.Enabled {
		b.WriteString(c.Subscriber.String())
	}
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Probes.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if err := c.HTTPServer.Validate(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.PProf.Validate(); err != nil {
		return err
	}
	if err := c.Shutdown.Validate(); err != nil {
		return err
	}
	if err := c.GRPC.Validate(); err != nil {
		return err
	}
	if err := c.Nats.Validate(); err != nil {
		return err
	}
	if c.Nats.Enabled {
		if err := c.Subscriber.Validate(); err != nil {
			return err
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Probes.Validate(); err != nil {
		return err
	}
	if c.Catalog.PageSize <= 0 {
		return fmt.Errorf("catalog page size must be greater than 0")
	}
	if c.Snapshot.TTL <= 0 {
		return fmt.Errorf("snapshot ttl must be greater than 0")
	}
	if c.Snapshot.LoadTimeout <= 0 {
		return fmt.Errorf("snapshot load timeout must be greater than 0")
	}
	return c.Snapshot.CircuitBreaker.Validate()
}
