package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_CHURN_MODEL_URL", "http://model:5000/predict")

	path := writeConfig(t, `
scoring:
  backend: http
  service_url: ${TEST_CHURN_MODEL_URL}
workers:
  predict-churn:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://model:5000/predict", cfg.Scoring.ServiceURL)
	assert.Equal(t, 5000, cfg.Scoring.Timeout)
	assert.Equal(t, 5*time.Second, cfg.ScoringTimeout())
	assert.Equal(t, "exclude", cfg.Batch.FailurePolicy)
	assert.Equal(t, 0.7, cfg.Alerts.Threshold)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "churn-predictions", cfg.Database.Elasticsearch.Index)

	w := GetWorkerConfig(cfg, "predict-churn")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 3, w.MaxRetries)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "http backend needs url",
			body:    "scoring:\n  backend: http\n",
			wantErr: "scoring.service_url",
		},
		{
			name:    "model backend needs path",
			body:    "scoring:\n  backend: model\n",
			wantErr: "scoring.model_path",
		},
		{
			name:    "unknown backend",
			body:    "scoring:\n  backend: onnx\n  model_path: m.onnx\n",
			wantErr: "scoring.backend",
		},
		{
			name:    "bad failure policy",
			body:    "scoring:\n  backend: model\n  model_path: m.json\nbatch:\n  failure_policy: drop\n",
			wantErr: "batch.failure_policy",
		},
		{
			name:    "alerts need topic",
			body:    "scoring:\n  backend: model\n  model_path: m.json\nalerts:\n  enabled: true\n",
			wantErr: "alerts.topic_arn",
		},
		{
			name:    "camunda needs broker",
			body:    "camunda:\n  enabled: true\nscoring:\n  backend: model\n  model_path: m.json\n",
			wantErr: "camunda.broker_address",
		},
		{
			name:    "cache needs redis",
			body:    "scoring:\n  backend: model\n  model_path: m.json\n  cache:\n    enabled: true\n",
			wantErr: "database.redis.address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresURLs(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "churn", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=churn sslmode=disable", p.GetDSN())
	assert.Equal(t, "postgres://u:p@db:5432/churn?sslmode=disable", p.GetURL())
}

func TestIsWorkerEnabled(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"score-churn-batch": {Enabled: false}}}
	assert.False(t, IsWorkerEnabled(cfg, "score-churn-batch"))
	assert.True(t, IsWorkerEnabled(cfg, "predict-churn"))
}
