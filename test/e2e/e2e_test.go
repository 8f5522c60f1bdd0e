// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-workers/internal/churn/predictor"
	"churn-workers/internal/churn/scoring"
	"churn-workers/internal/churn/store"
	"churn-workers/internal/common/config"
	"churn-workers/internal/common/database"
	"churn-workers/internal/common/logger"

	pc "churn-workers/internal/workers/churn/predict-churn"
	sb "churn-workers/internal/workers/churn/score-batch"
)

// These tests need the docker-compose stack (Postgres, Redis,
// Elasticsearch, Zeebe). Set CHURN_E2E=1 to run them.
func TestMain(m *testing.M) {
	if os.Getenv("CHURN_E2E") == "" {
		fmt.Println("CHURN_E2E not set, skipping e2e tests")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type stack struct {
	cfg     *config.Config
	repo    *store.Repository
	indexer *store.Indexer
	service *predictor.Service
}

func setupStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"
	cfg.Database.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	cfg.Scoring.Backend = "model"
	cfg.Scoring.ModelPath = "../../models/churn_logistic.json"
	cfg.Scoring.Cache.Enabled = true

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "PostgreSQL connection failed")
	require.NoError(t, pg.Ping(ctx), "PostgreSQL ping failed")
	t.Cleanup(func() { pg.Close() })
	require.NoError(t, database.RunMigrations(cfg.Database.Postgres.GetURL(), "../../migrations"))
	t.Log("PostgreSQL connected and migrated")

	rdb := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, rdb.Ping(ctx), "Redis ping failed")
	t.Cleanup(func() { rdb.Close() })
	t.Log("Redis connected")

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err)
	require.NoError(t, es.Ping(ctx), "Elasticsearch ping failed")
	indexer := store.NewIndexer(es.Client, cfg.Database.Elasticsearch.Index)
	require.NoError(t, indexer.EnsureIndex(ctx))
	t.Log("Elasticsearch connected")

	log := logger.NewTestLogger(t)
	scorer, err := scoring.New(cfg.Scoring, rdb.Client, log)
	require.NoError(t, err)

	repo := store.NewRepository(pg.DB)
	svc := predictor.NewService(scorer, log,
		predictor.WithStore(repo),
		predictor.WithIndexer(indexer),
	)
	return &stack{cfg: cfg, repo: repo, indexer: indexer, service: svc}
}

func TestZeebeConnectivity(t *testing.T) {
	client, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         "localhost:26500",
		UsePlaintextConnection: true,
	})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = client.NewTopologyCommand().Send(ctx)
	assert.NoError(t, err, "Zeebe topology request failed")
}

func TestPredictChurnPersists(t *testing.T) {
	s := setupStack(t)
	ctx := context.Background()
	customerID := fmt.Sprintf("e2e-%d", time.Now().UnixNano())

	handler := pc.NewHandler(pc.LoadConfig(), s.service, nil, logger.NewTestLogger(t))
	input, err := pc.ParseInput(fmt.Sprintf(`{
		"customerId": %q,
		"customer": {
			"gender": "Female", "seniorCitizen": 1, "partner": "No", "dependents": "No",
			"tenure": 2, "phoneService": "Yes", "paperlessBilling": "Yes", "multipleLines": "No",
			"internetService": "Fiber optic", "paymentMethod": "Electronic check",
			"monthlyCharges": 95.5, "totalCharges": 191
		}
	}`, customerID))
	require.NoError(t, err)

	out, err := handler.Execute(ctx, input)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.ChurnProbability, 0.0)
	assert.LessOrEqual(t, out.ChurnProbability, 1.0)

	stored, err := s.repo.Latest(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, out.PredictionID, stored.ID.String())
	assert.InDelta(t, out.ChurnProbability, stored.Probability, 1e-9)
	assert.Equal(t, predictor.SourceWorker, stored.Source)
}

func TestScoreBatchMixedRows(t *testing.T) {
	s := setupStack(t)

	handler := sb.NewHandler(sb.LoadConfig(), s.service, nil, logger.NewTestLogger(t))
	input, err := sb.ParseInput(`{
		"records": [
			{"customerId": "e2e-b1", "gender": "Male", "seniorCitizen": 0, "partner": "Yes", "dependents": "Yes",
			 "tenure": 60, "phoneService": "Yes", "paperlessBilling": "No", "multipleLines": "Yes",
			 "internetService": "DSL", "paymentMethod": "Bank transfer (automatic)",
			 "monthlyCharges": 55, "totalCharges": 3300},
			{"customerId": "e2e-b2", "gender": "N/A"}
		],
		"failurePolicy": "exclude"
	}`)
	require.NoError(t, err)

	out, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Scored)
	assert.Equal(t, 1, out.Failed)
	assert.NotNil(t, out.Results[0].ChurnProbability)
	assert.NotEmpty(t, out.Results[1].ErrorCode)
}
