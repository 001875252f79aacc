package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sapflow-etl/internal/domain"
	"github.com/couchcryptid/sapflow-etl/internal/observability"
	"github.com/couchcryptid/sapflow-etl/internal/pipeline"
	"github.com/couchcryptid/sapflow-etl/internal/report"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// Block until context cancelled to simulate a quiet topic.
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.OutputEvent
	err    error
}

func (m *mockLoader) LoadSnapshot(_ context.Context, event domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, event)
	return nil
}

func (m *mockLoader) snapshots() []domain.OutputEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...)
}

func rawRow(t *testing.T, year, doy, minute string, sensor1 string, committed *atomic.Int32) domain.RawEvent {
	t.Helper()
	row := domain.RawRow{Year: year, DayOfYear: doy, Minute: minute, Sensor1: sensor1}
	value, err := json.Marshal(row)
	require.NoError(t, err)
	return domain.RawEvent{
		Value: value,
		Commit: func(context.Context) error {
			if committed != nil {
				committed.Add(1)
			}
			return nil
		},
	}
}

func newPipeline(ext pipeline.BatchExtractor, ldr pipeline.SnapshotLoader, clock clockwork.Clock) *pipeline.Pipeline {
	tfm := pipeline.NewTransformer(domain.Normalizer{DecimalComma: true}, domain.DefaultWindow)
	return pipeline.New(ext, tfm, ldr, slog.Default(), observability.NewMetricsForTesting(), pipeline.Options{
		BatchSize:     50,
		FlushInterval: 0, // flush as soon as rows are pending
		Clock:         clock,
	})
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var committed atomic.Int32
	batch := []domain.RawEvent{
		rawRow(t, "2021", "10", "360", "2,5", &committed),
		rawRow(t, "2021", "10", "420", "1,5", &committed),
	}
	ext := &mockExtractor{batches: [][]domain.RawEvent{batch}}
	ldr := &mockLoader{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC))

	p := newPipeline(ext, ldr, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	snapshots := ldr.snapshots()
	require.NotEmpty(t, snapshots)

	var snap report.Snapshot
	require.NoError(t, json.Unmarshal(snapshots[0].Value, &snap))
	assert.Equal(t, 2, snap.Readings)
	assert.False(t, snap.Truncated)

	s1 := snap.Aggregates.Years[2021].Months[time.January].Sensors["SENSOR1"]
	require.NotNil(t, s1)
	assert.Equal(t, 4.0, s1.Monthly)

	assert.Equal(t, int32(2), committed.Load(), "offsets commit after the covering snapshot")
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, "2024-04-26T12:00:00Z", snap.GeneratedAt.Format(time.RFC3339))
}

func TestPipeline_Run_SkipsAnomalousRows(t *testing.T) {
	var committed atomic.Int32
	batch := []domain.RawEvent{
		rawRow(t, "2021", "366", "360", "1", &committed), // invalid date (non-leap)
		rawRow(t, "2021", "10", "200", "1", &committed),  // outside window
		{Value: []byte("{not json"), Commit: func(context.Context) error { committed.Add(1); return nil }},
		rawRow(t, "2021", "10", "360", "3", &committed), // good
	}
	ext := &mockExtractor{batches: [][]domain.RawEvent{batch}}
	ldr := &mockLoader{}

	p := newPipeline(ext, ldr, clockwork.NewFakeClock())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	snapshots := ldr.snapshots()
	require.NotEmpty(t, snapshots)

	var snap report.Snapshot
	require.NoError(t, json.Unmarshal(snapshots[0].Value, &snap))
	assert.Equal(t, 1, snap.Readings, "only the good row aggregates")
	assert.Equal(t, 3.0, snap.Aggregates.Years[2021].Months[time.January].Sensors["SENSOR1"].Daily[10])

	assert.Equal(t, int32(4), committed.Load(), "skipped rows commit immediately")
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches — will block
	ldr := &mockLoader{}

	p := newPipeline(ext, ldr, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.snapshots())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_FinalFlushOnShutdown(t *testing.T) {
	var committed atomic.Int32
	// flushErr blocks the in-loop flush so pending rows survive to shutdown.
	flushErr := errors.New("sink unavailable")

	batch := []domain.RawEvent{rawRow(t, "2021", "10", "360", "1", &committed)}
	ext := &mockExtractor{batches: [][]domain.RawEvent{batch}}
	ldr := &mockLoader{err: flushErr}

	p := newPipeline(ext, ldr, clockwork.NewFakeClock())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	// Let the pipeline accept the row and fail a flush, then heal the sink.
	time.Sleep(100 * time.Millisecond)
	ldr.mu.Lock()
	ldr.err = nil
	ldr.mu.Unlock()

	<-done

	require.NotEmpty(t, ldr.snapshots(), "shutdown flush publishes pending readings")
	assert.Equal(t, int32(1), committed.Load())
}

func TestPipeline_Run_CompletesShutdownFlushBeforeReturning(t *testing.T) {
	var committed atomic.Int32
	// Keep the sink failing during the loop so the only successful
	// publish can be the shutdown flush.
	batch := []domain.RawEvent{rawRow(t, "2021", "10", "360", "1", &committed)}
	ext := &mockExtractor{batches: [][]domain.RawEvent{batch}}
	ldr := &mockLoader{err: errors.New("sink unavailable")}

	p := newPipeline(ext, ldr, clockwork.NewFakeClock())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(100 * time.Millisecond)
		ldr.mu.Lock()
		ldr.err = nil
		ldr.mu.Unlock()
	}()

	require.NoError(t, p.Run(ctx))

	// Once Run returns the caller may close its Kafka adapters: every
	// accepted row must already be published and committed, with nothing
	// still in flight.
	require.NotEmpty(t, ldr.snapshots())
	assert.Equal(t, int32(1), committed.Load())

	ldr.mu.Lock()
	ldr.err = errors.New("writer closed")
	published := len(ldr.loaded)
	ldr.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, ldr.snapshots(), published, "no publish after Run returned")
}

func TestTransformer_Classification(t *testing.T) {
	tfm := pipeline.NewTransformer(domain.Normalizer{DecimalComma: true}, domain.DefaultWindow)
	ctx := context.Background()

	t.Run("valid row", func(t *testing.T) {
		raw := rawRow(t, "2020", "60", "720", "4,2", nil)
		nr, err := tfm.Transform(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, time.February, nr.Month)
		assert.Equal(t, 29, nr.Day)
		assert.Equal(t, 4.2, nr.Values["SENSOR1"])
	})

	t.Run("outside window", func(t *testing.T) {
		raw := rawRow(t, "2020", "60", "100", "1", nil)
		_, err := tfm.Transform(ctx, raw)
		require.ErrorIs(t, err, pipeline.ErrOutsideWindow)
	})

	t.Run("invalid date", func(t *testing.T) {
		raw := rawRow(t, "2021", "366", "720", "1", nil)
		_, err := tfm.Transform(ctx, raw)

		var dateErr *domain.InvalidDateError
		require.ErrorAs(t, err, &dateErr)
	})

	t.Run("bad payload", func(t *testing.T) {
		_, err := tfm.Transform(ctx, domain.RawEvent{Value: []byte("{nope")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode raw row")
	})
}
