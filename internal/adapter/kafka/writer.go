package kafka

import (
	"context"
	"log/slog"
	"sort"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sapflow-etl/internal/config"
	"github.com/couchcryptid/sapflow-etl/internal/domain"
)

// Writer publishes aggregate snapshots to the sink topic.
// It implements pipeline.SnapshotLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadSnapshot publishes one snapshot event to the sink topic.
func (w *Writer) LoadSnapshot(ctx context.Context, event domain.OutputEvent) error {
	return w.writer.WriteMessages(ctx, mapOutputEvent(event))
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// mapOutputEvent converts a domain OutputEvent into a Kafka message.
func mapOutputEvent(event domain.OutputEvent) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(event.Headers))
	for _, key := range sortedHeaderKeys(event.Headers) {
		headers = append(headers, kafkago.Header{Key: key, Value: []byte(event.Headers[key])})
	}
	return kafkago.Message{
		Key:     event.Key,
		Value:   event.Value,
		Headers: headers,
	}
}

func sortedHeaderKeys(headers map[string]string) []string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
