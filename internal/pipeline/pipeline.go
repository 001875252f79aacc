// Package pipeline orchestrates the streaming flow: extract raw reading
// rows, transform them into normalized readings, accumulate them in
// memory, and publish re-aggregated snapshots to the sink on a flush
// interval. Aggregation is cross-row, so unlike a per-row ETL the
// pipeline defers offset commits until the covering snapshot has been
// published.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sapflow-etl/internal/aggregate"
	"github.com/couchcryptid/sapflow-etl/internal/domain"
	"github.com/couchcryptid/sapflow-etl/internal/flux"
	"github.com/couchcryptid/sapflow-etl/internal/observability"
	"github.com/couchcryptid/sapflow-etl/internal/report"
)

// BatchExtractor reads up to batchSize raw events from the source. An
// empty batch (no error) means no messages arrived within the poll
// interval.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into a normalized reading. It
// returns ErrOutsideWindow for window-excluded rows, a
// *domain.InvalidDateError for unresolvable dates, and other errors for
// unparsable payloads.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.NormalizedReading, error)
}

// SnapshotLoader writes one aggregate snapshot to the destination.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, event domain.OutputEvent) error
}

// Pipeline orchestrates the extract-transform-accumulate-flush loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      SnapshotLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock

	batchSize     int
	flushInterval time.Duration
	fluxModel     *flux.Model // nil disables flow conversion

	readings  []domain.NormalizedReading
	pending   []domain.RawEvent // rows accepted but not yet covered by a snapshot
	lastFlush time.Time
	ready     atomic.Bool
}

// Options carries the knobs New needs beyond the stage implementations.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	FluxModel     *flux.Model
	Clock         clockwork.Clock
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l SnapshotLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		extractor:     e,
		transformer:   t,
		loader:        l,
		logger:        logger,
		metrics:       metrics,
		clock:         clock,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		fluxModel:     opts.FluxModel,
	}
}

// CheckReadiness returns nil once the pipeline has published at least
// one snapshot, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not published a snapshot yet")
	}
	return nil
}

// Run executes the loop until the context is cancelled. A final flush is
// attempted on shutdown so accepted readings are not silently lost.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"batch_size", p.batchSize,
		"flush_interval", p.flushInterval,
		"flux_enabled", p.fluxModel != nil,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	p.lastFlush = p.clock.Now()

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during Kafka outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			p.finalFlush()
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			p.finalFlush()
			return nil
		}

		if p.flushDue() {
			if !p.flush(ctx, &backoff, maxBackoff) {
				p.finalFlush()
				return nil
			}
		}
	}
}

// processBatch runs one extract-transform-accumulate cycle. Returns
// false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.ReadingsConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	for _, raw := range rawBatch {
		p.acceptOrSkip(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return true
}

// acceptOrSkip transforms one raw event. Skipped rows (out of window,
// invalid date, unparsable) are committed immediately: they can never
// affect a snapshot, so there is nothing to lose by acknowledging them.
func (p *Pipeline) acceptOrSkip(ctx context.Context, raw domain.RawEvent) {
	reading, err := p.transformer.Transform(ctx, raw)
	if err != nil {
		var dateErr *domain.InvalidDateError
		switch {
		case errors.Is(err, ErrOutsideWindow):
			p.metrics.OutsideWindowRows.Inc()
		case errors.As(err, &dateErr):
			p.metrics.InvalidDateRows.Inc()
			p.logger.Warn("dropping row with invalid date",
				"year", dateErr.Year, "day_of_year", dateErr.DayOfYear,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
		default:
			p.metrics.TransformErrors.Inc()
			p.logger.Warn("transform failed, skipping row",
				"error", err,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
		}
		p.commitOffset(ctx, raw)
		return
	}

	p.readings = append(p.readings, reading)
	p.pending = append(p.pending, raw)
	p.metrics.ReadingsAggregated.Inc()
}

func (p *Pipeline) flushDue() bool {
	return len(p.pending) > 0 && p.clock.Since(p.lastFlush) >= p.flushInterval
}

// flush re-aggregates the accumulated readings and publishes a snapshot.
// Offsets for the covered rows commit only after a successful publish.
// Returns false if the pipeline should stop.
func (p *Pipeline) flush(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	event, truncated, err := p.buildSnapshot(ctx)
	if err != nil {
		p.logger.Error("build snapshot failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}
	if truncated {
		// Cancellation arrived mid-aggregation; the partial snapshot is
		// not published and the offsets stay uncommitted for replay.
		return false
	}

	if err := p.loader.LoadSnapshot(ctx, event); err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("load snapshot failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	p.metrics.SnapshotsPublished.Inc()
	for _, raw := range p.pending {
		p.commitOffset(ctx, raw)
	}
	p.pending = p.pending[:0]
	p.lastFlush = p.clock.Now()
	p.ready.Store(true)
	return true
}

// finalFlush makes a best-effort snapshot publish during shutdown using
// a fresh context, so readings accepted since the last flush still reach
// the sink.
func (p *Pipeline) finalFlush() {
	if len(p.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event, truncated, err := p.buildSnapshot(ctx)
	if err != nil || truncated {
		p.logger.Warn("final flush skipped", "error", err, "truncated", truncated)
		return
	}
	if err := p.loader.LoadSnapshot(ctx, event); err != nil {
		p.logger.Warn("final snapshot publish failed", "error", err)
		return
	}
	p.metrics.SnapshotsPublished.Inc()
	for _, raw := range p.pending {
		p.commitOffset(ctx, raw)
	}
	p.pending = p.pending[:0]
}

// buildSnapshot aggregates the accumulated readings (and runs the flux
// model when configured) into a serialized sink event.
func (p *Pipeline) buildSnapshot(ctx context.Context) (domain.OutputEvent, bool, error) {
	start := time.Now()
	result := aggregate.Aggregate(ctx, p.readings)
	p.metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	if result.Truncated {
		return domain.OutputEvent{}, true, nil
	}

	snapshot := report.Snapshot{
		GeneratedAt: p.clock.Now().UTC(),
		Readings:    len(p.readings),
		Aggregates:  result,
	}
	if p.fluxModel != nil {
		snapshot.Flow = p.fluxModel.Compute(p.readings)
	}

	value, err := json.Marshal(snapshot)
	if err != nil {
		return domain.OutputEvent{}, false, fmt.Errorf("serialize snapshot: %w", err)
	}

	return domain.OutputEvent{
		Key:   []byte(snapshot.GeneratedAt.Format(time.RFC3339Nano)),
		Value: value,
		Headers: map[string]string{
			"readings":     strconv.Itoa(snapshot.Readings),
			"generated_at": snapshot.GeneratedAt.Format(time.RFC3339),
		},
	}, false, nil
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline
// should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
