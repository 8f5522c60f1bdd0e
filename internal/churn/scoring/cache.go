package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"time"

	"churn-workers/internal/churn/features"
	"churn-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// CachedScorer memoises another Scorer in Redis. Cache failures are logged
// and fall through to the wrapped scorer.
type CachedScorer struct {
	next   Scorer
	rdb    redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedScorer(next Scorer, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedScorer {
	return &CachedScorer{next: next, rdb: rdb, ttl: ttl, logger: log}
}

func (c *CachedScorer) Name() string { return c.next.Name() + "+cache" }

func (c *CachedScorer) Score(ctx context.Context, v features.Vector) (float64, error) {
	key := CacheKey(cacheID(c.next), v)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if p, perr := strconv.ParseFloat(cached, 64); perr == nil && CheckProbability(p) == nil {
			return p, nil
		}
		c.logger.Warn("Discarding malformed cached score", map[string]interface{}{"key": key})
	case err != redis.Nil:
		c.logger.Warn("Score cache read failed", map[string]interface{}{"error": err.Error()})
	}

	p, err := c.next.Score(ctx, v)
	if err != nil {
		return 0, err
	}

	if err := c.rdb.Set(ctx, key, strconv.FormatFloat(p, 'g', -1, 64), c.ttl).Err(); err != nil {
		c.logger.Warn("Score cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return p, nil
}

// Identifier is implemented by scorers whose output depends on more than
// their Name, such as a model version or a service URL. Entries cached for
// one identity are never served to another.
type Identifier interface {
	CacheID() string
}

func cacheID(s Scorer) string {
	if id, ok := s.(Identifier); ok {
		return id.CacheID()
	}
	return s.Name()
}

// CacheKey hashes the scorer identity and the exact bit pattern of every
// slot, so vectors that differ in any slot never share an entry.
func CacheKey(id string, v features.Vector) string {
	h := sha256.New()
	h.Write([]byte(id))
	h.Write([]byte{0})
	var buf [8]byte
	for _, f := range v {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	return "churn:score:" + hex.EncodeToString(h.Sum(nil))
}
