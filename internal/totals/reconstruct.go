package totals

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDelimiter is the conventional key-segment delimiter.
const DefaultDelimiter = ";"

// Engine reconstructs windowed totals from one store location.
type Engine struct {
	kv        KV
	delimiter string
	logger    *slog.Logger
	nowFn     func() time.Time
}

// New creates a reconstruction engine over one store location. An empty
// delimiter defaults to ";".
func New(kv KV, delimiter string, logger *slog.Logger) *Engine {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		kv:        kv,
		delimiter: delimiter,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// Total computes per-grouping-key totals over the trailing window.
//
// parts is the number of delimiter-separated segments in stored keys
// (identity segments plus the trailing timestamp). Store failures below the
// argument-validation boundary never surface as errors: the caller sees an
// empty or partial result instead.
func (e *Engine) Total(ctx context.Context, spec MatchSpec, parts int, window time.Duration) (Totals, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	now := e.nowFn().Unix()
	windowFloor := now - int64(window/time.Second)

	pattern := spec.pattern(e.delimiter, "*")
	keys, err := e.kv.Keys(ctx, pattern)
	if err != nil {
		e.logger.Error("key scan failed", "pattern", pattern, "error", err)
		return Totals{}, nil
	}

	resources := newResourceSet(e.delimiter, parts)
	for _, key := range keys {
		if err := resources.add(key); err != nil {
			e.logger.Warn("skipping malformed key", "error", err)
		}
	}

	totals := make(Totals)
	for _, r := range resources.sorted() {
		e.walkResource(ctx, spec, r, now, windowFloor, totals)
	}
	return totals, nil
}

// walkResource consumes one resource's buckets newest to oldest, adding full
// values for in-window buckets and a pro-rated value for the single bucket
// straddling the window floor. The first out-of-window bucket ends the walk.
func (e *Engine) walkResource(ctx context.Context, spec MatchSpec, r *resource, now, windowFloor int64, totals Totals) {
	groupKey := spec.groupKey(r.identity, e.delimiter)
	lastBucket := now

	for _, bucket := range r.buckets {
		value, ok := e.fetch(ctx, r, bucket)
		if !ok {
			// A missing or failed bucket read contributes nothing.
			if bucket < windowFloor {
				return
			}
			continue
		}

		if bucket >= windowFloor {
			totals.Add(groupKey, value)
			lastBucket = bucket
			continue
		}

		// Boundary bucket: pro-rate by the fraction of the span between
		// the newest in-window bucket and this one that lies inside the
		// window, then stop walking this resource.
		if lastBucket < windowFloor {
			// Believed unreachable: the newest bucket seen was already
			// below the floor. Kept as an explicit invariant check.
			e.logger.Warn("bucket walk invariant violated",
				"group", groupKey,
				"last_bucket", lastBucket,
				"window_floor", windowFloor,
			)
			return
		}

		portion := decimal.NewFromInt(lastBucket - windowFloor).
			Div(decimal.NewFromInt(lastBucket - bucket))
		totals.Add(groupKey, decimal.NewFromInt(value).Mul(portion).Floor().IntPart())
		return
	}
}

// fetch reads one bucket's counter. Any failure reads as "no value".
func (e *Engine) fetch(ctx context.Context, r *resource, bucket int64) (int64, bool) {
	key := r.storeKey(bucket, e.delimiter)
	text, ok, err := e.kv.Get(ctx, key)
	if err != nil {
		e.logger.Error("bucket read failed", "key", key, "error", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		e.logger.Warn("non-numeric bucket value", "key", key, "value", text)
		return 0, false
	}
	return value, true
}
