package store

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	perrors "github.com/ceramica/storefront/internal/errors"
	"github.com/ceramica/storefront/internal/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const skipIntegrationTests = "CATALOG_SKIP_INTEGRATION_TESTS"

// PgStoreSuite is a test suite for the PostgreSQL ProductStore implementation.
type PgStoreSuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	store       ProductStore
	logger      *slog.Logger
	ctx         context.Context
}

// SetupSuite starts a PostgreSQL container, applies the embedded migrations and creates the store.
func (s *PgStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("catalog"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgxpool")

	for i := range 10 {
		s.logger.Info("Pinging PostgreSQL database", "attempt", i+1)
		err = s.dbPool.Ping(s.ctx)
		if err == nil {
			break
		}
		time.Sleep(time.Second * 2)
	}
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL after retries")

	require.NoError(s.T(), migrations.Up(connStr), "Failed to apply migrations")
	s.logger.Info("Migrations applied for integration tests")

	s.store = NewPgStore(s.dbPool)
}

// TearDownSuite closes the pool and terminates the container.
func (s *PgStoreSuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Warn("failed to terminate PostgreSQL container", "error", err)
		}
	}
}

// SetupTest empties the catalog before each test.
func (s *PgStoreSuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE products, categories RESTART IDENTITY CASCADE")
	require.NoError(s.T(), err, "Failed to truncate catalog tables")
}

// TestPgStoreIntegration runs the PgStore integration tests.
func TestPgStoreIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(PgStoreSuite))
}

func (s *PgStoreSuite) createTestProduct(name, category string, price int64) *Product {
	s.T().Helper()
	product, err := s.store.Create(s.ctx, CreateParams{
		Name:          name,
		Description:   name + " thrown on the wheel",
		Price:         price,
		StockQuantity: 5,
		ImageURL:      "https://img.example/" + name + ".jpg",
		Category:      category,
	})
	require.NoError(s.T(), err, "createTestProduct helper failed to create product")
	return product
}

func (s *PgStoreSuite) TestCreateAndFindByID() {
	created := s.createTestProduct("Bowl", "Tableware", 100000)

	require.NotEqual(s.T(), uuid.Nil, created.ID)
	require.Equal(s.T(), "Bowl", created.Name)
	require.Equal(s.T(), "Tableware", created.Category)
	require.Equal(s.T(), int64(100000), created.Price)
	require.Equal(s.T(), int32(1), created.Version)
	require.NotNil(s.T(), created.CreatedAt)

	fetched, err := s.store.FindByID(s.ctx, created.ID)

	require.NoError(s.T(), err)
	require.Equal(s.T(), created.ID, fetched.ID)
	require.Equal(s.T(), created.Description, fetched.Description)
	require.Equal(s.T(), created.ImageURL, fetched.ImageURL)
	require.Equal(s.T(), created.Category, fetched.Category)
	require.WithinDuration(s.T(), *created.CreatedAt, *fetched.CreatedAt, time.Second)
}

func (s *PgStoreSuite) TestFindByID_NotFound() {
	_, err := s.store.FindByID(s.ctx, uuid.New())
	require.ErrorIs(s.T(), err, perrors.ErrProductNotFound)
}

func (s *PgStoreSuite) TestListCatalog_CreationOrderAndSharedCategories() {
	s.createTestProduct("Bowl", "Tableware", 100000)
	s.createTestProduct("Vase", "Decor", 50000)
	s.createTestProduct("Plate", "Tableware", 75000)

	products, err := s.store.ListCatalog(s.ctx)

	require.NoError(s.T(), err)
	require.Len(s.T(), products, 3)
	assert.Equal(s.T(), "Bowl", products[0].Name)
	assert.Equal(s.T(), "Vase", products[1].Name)
	assert.Equal(s.T(), "Plate", products[2].Name)
	assert.Equal(s.T(), "Tableware", products[2].Category)

	var categories int
	require.NoError(s.T(), s.dbPool.QueryRow(s.ctx, "SELECT count(*) FROM categories").Scan(&categories))
	assert.Equal(s.T(), 2, categories, "categories are upserted by name")
}

func (s *PgStoreSuite) TestListCatalog_Empty() {
	products, err := s.store.ListCatalog(s.ctx)

	require.NoError(s.T(), err)
	assert.Empty(s.T(), products)
}

func (s *PgStoreSuite) TestUpdate() {
	created := s.createTestProduct("Jug", "Tableware", 4000)

	updated, err := s.store.Update(s.ctx, UpdateParams{
		ID:            created.ID,
		Name:          "Milk Jug",
		Description:   "Small jug",
		Price:         4500,
		StockQuantity: 2,
		Category:      "Drinkware",
		Version:       created.Version,
	})

	require.NoError(s.T(), err)
	require.Equal(s.T(), "Milk Jug", updated.Name)
	require.Equal(s.T(), "Drinkware", updated.Category)
	require.Equal(s.T(), int64(4500), updated.Price)
	require.Greater(s.T(), updated.Version, created.Version)
}

func (s *PgStoreSuite) TestUpdate_WrongVersion() {
	created := s.createTestProduct("Jug", "Tableware", 4000)

	_, err := s.store.Update(s.ctx, UpdateParams{
		ID:       created.ID,
		Name:     "Milk Jug",
		Price:    4500,
		Category: "Tableware",
		Version:  created.Version + 1,
	})

	require.ErrorIs(s.T(), err, perrors.ErrProductNotFound)
}

func (s *PgStoreSuite) TestUpdateStock() {
	created := s.createTestProduct("Teapot", "Drinkware", 9000)

	updated, err := s.store.UpdateStock(s.ctx, created.ID, 12, created.Version)

	require.NoError(s.T(), err)
	require.Equal(s.T(), int32(12), updated.StockQuantity)
	require.Equal(s.T(), "Drinkware", updated.Category)
	require.Greater(s.T(), updated.Version, created.Version)
}

func (s *PgStoreSuite) TestUpdateStock_NotFound() {
	_, err := s.store.UpdateStock(s.ctx, uuid.New(), 1, 1)
	require.ErrorIs(s.T(), err, perrors.ErrProductNotFound)
}

func (s *PgStoreSuite) TestDeleteByID() {
	created := s.createTestProduct("Planter", "Garden", 6000)

	require.NoError(s.T(), s.store.DeleteByID(s.ctx, created.ID, created.Version))

	_, err := s.store.FindByID(s.ctx, created.ID)
	require.ErrorIs(s.T(), err, perrors.ErrProductNotFound)
}

func (s *PgStoreSuite) TestDeleteByID_WrongVersion() {
	created := s.createTestProduct("Planter", "Garden", 6000)

	err := s.store.DeleteByID(s.ctx, created.ID, created.Version+1)
	require.ErrorIs(s.T(), err, perrors.ErrProductNotFound)
}
