//go:build integration
// +build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"churn-workers/internal/churn/features"
	"churn-workers/internal/churn/store"
	"churn-workers/internal/common/config"
	"churn-workers/internal/common/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRepository starts PostgreSQL in a container and applies the
// migrations.
func setupRepository(t *testing.T) *store.Repository {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "churn_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.PostgresConfig{
		Host:           host,
		Port:           port.Int(),
		Database:       "churn_test",
		User:           "test",
		Password:       "test",
		SSLMode:        "disable",
		MaxConnections: 5,
		MaxIdle:        2,
	}

	pg, err := database.NewPostgres(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })
	require.Eventually(t, func() bool { return pg.Ping(ctx) == nil }, 30*time.Second, time.Second)

	require.NoError(t, database.RunMigrations(cfg.GetURL(), "../../../migrations"))
	return store.NewRepository(pg.DB)
}

func newPrediction(customerID string, p float64, at time.Time) *store.Prediction {
	var v features.Vector
	v[features.SlotTenure] = 24
	v[features.SlotMonthlyCharges] = 90
	return &store.Prediction{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Source:      "worker",
		Probability: p,
		RiskLevel:   "high",
		Features:    v,
		Warnings: []features.Warning{
			{Kind: features.KindNumericCoercionFailure, Field: "TotalCharges", Value: "N/A"},
		},
		CreatedAt: at,
	}
}

func TestRepository_SaveAndLatest(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Save(ctx, newPrediction("C-1", 0.4, now.Add(-time.Hour))))
	latest := newPrediction("C-1", 0.8, now)
	require.NoError(t, repo.SaveBatch(ctx, []*store.Prediction{latest, newPrediction("C-2", 0.1, now)}))

	got, err := repo.Latest(ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID)
	assert.Equal(t, 0.8, got.Probability)
	assert.Equal(t, 24.0, got.Features[features.SlotTenure])
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, "TotalCharges", got.Warnings[0].Field)

	_, err = repo.Latest(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRepository_RejectsOutOfRangeProbability(t *testing.T) {
	repo := setupRepository(t)
	err := repo.Save(context.Background(), newPrediction("C-3", 1.5, time.Now()))
	assert.Error(t, err)
}
