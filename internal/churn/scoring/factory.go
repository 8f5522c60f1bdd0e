package scoring

import (
	"fmt"
	"time"

	"churn-workers/internal/common/config"
	commonhttp "churn-workers/internal/common/http"
	"churn-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// New builds the configured backend, wrapped in a Redis cache when enabled.
// rdb may be nil when caching is off.
func New(cfg config.ScoringConfig, rdb redis.Cmdable, log logger.Logger) (Scorer, error) {
	var s Scorer
	switch cfg.Backend {
	case "http", "":
		client := commonhttp.NewClient(
			config.GetDuration(cfg.Timeout),
			commonhttp.WithRetries(cfg.MaxRetries),
		)
		s = NewHTTPScorer(client, cfg.ServiceURL)
	case "model":
		m, err := LoadLogisticModel(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		log.Info("Loaded churn model", map[string]interface{}{
			"path":    cfg.ModelPath,
			"version": m.Version,
		})
		s = m
	default:
		return nil, fmt.Errorf("unknown scoring backend %q", cfg.Backend)
	}

	if cfg.Cache.Enabled && rdb != nil {
		s = NewCachedScorer(s, rdb, time.Duration(cfg.Cache.TTL)*time.Second, log)
	}
	return s, nil
}
