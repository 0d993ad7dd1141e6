package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/nodewatch/storj-node-monitor/infrastructure/cache"
	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/store"
)

// baselineCacheTTL bounds how long a read-through baseline stays fresh
// before the next get_baseline call re-queries the database.
const baselineCacheTTL = 5 * time.Minute

// BaselineReader is the read surface Baselines needs from the database
// layer — satisfied by *store.Store.
type BaselineReader interface {
	Baseline(ctx context.Context, nodeName, metric string, windowHours int) (*model.Baseline, error)
}

type BaselineWriter interface {
	EnqueueBaseline(b model.Baseline)
}

// Baselines is the read-through, per-process cache for get_baseline.
// Recomputation always goes through Update, which both refreshes the cache
// and queues the new row for persistence.
type Baselines struct {
	reader BaselineReader
	writer BaselineWriter
	cache  *cache.Cache
}

// NewBaselines wires a read-through cache in front of store.Store's
// analytics_baselines table.
func NewBaselines(reader BaselineReader, writer BaselineWriter) *Baselines {
	cfg := cache.DefaultConfig()
	cfg.DefaultTTL = baselineCacheTTL
	return &Baselines{reader: reader, writer: writer, cache: cache.NewCache(cfg)}
}

func baselineKey(nodeName, metric string, windowHours int) string {
	return fmt.Sprintf("%s:%s:%d", nodeName, metric, windowHours)
}

// Get returns the cached baseline if present and fresh, else reads through
// to the store (and populates the cache on a hit). Returns (nil, nil) when
// no baseline has been computed yet for this key.
func (b *Baselines) Get(ctx context.Context, nodeName, metric string, windowHours int) (*model.Baseline, error) {
	key := baselineKey(nodeName, metric, windowHours)

	if v, ok := b.cache.Get(key); ok {
		if v == nil {
			return nil, nil
		}
		bl := v.(model.Baseline)
		return &bl, nil
	}

	bl, err := b.reader.Baseline(ctx, nodeName, metric, windowHours)
	if err != nil {
		return nil, err
	}
	if bl == nil {
		b.cache.Set(key, nil, 0)
		return nil, nil
	}
	b.cache.Set(key, *bl, 0)
	return bl, nil
}

// Update recomputes the baseline from a fresh value set, queues the
// resulting row for persistence, and refreshes the cache immediately so the
// next Get doesn't race the writer's batching delay.
func (b *Baselines) Update(nodeName, metric string, windowHours int, values []float64) model.Baseline {
	s := ComputeStat(values)
	bl := model.Baseline{
		NodeName:    nodeName,
		MetricName:  metric,
		WindowHours: windowHours,
		Mean:        s.Mean,
		StdDev:      s.StdDev,
		Min:         s.Min,
		Max:         s.Max,
		SampleCount: s.SampleCount,
		LastUpdated: time.Now(),
	}
	b.writer.EnqueueBaseline(bl)
	b.cache.Set(baselineKey(nodeName, metric, windowHours), bl, 0)
	return bl
}

var _ BaselineReader = (*store.Store)(nil)
