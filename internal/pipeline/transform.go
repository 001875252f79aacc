package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/sapflow-etl/internal/domain"
)

// ErrOutsideWindow marks a reading that fell outside the active time
// window. The pipeline drops such rows silently (they are valid data,
// just out of measurement hours) and counts them separately from
// anomalies.
var ErrOutsideWindow = errors.New("reading outside active window")

// ReadingTransformer implements Transformer: it parses the flat JSON
// row, normalizes sensor values, resolves the calendar date, and applies
// the active window.
type ReadingTransformer struct {
	normalizer domain.Normalizer
	window     domain.Window
}

// NewTransformer creates a ReadingTransformer with the given
// normalization policy and active window.
func NewTransformer(normalizer domain.Normalizer, window domain.Window) *ReadingTransformer {
	return &ReadingTransformer{normalizer: normalizer, window: window}
}

func (t *ReadingTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.NormalizedReading, error) {
	var row domain.RawRow
	if err := json.Unmarshal(raw.Value, &row); err != nil {
		return domain.NormalizedReading{}, fmt.Errorf("decode raw row: %w", err)
	}

	reading, err := domain.ParseReading(row)
	if err != nil {
		return domain.NormalizedReading{}, err
	}

	// Normalize before filtering: the window excludes rows, it never
	// zeroes them, and normalization does not depend on the window.
	normalized, err := t.normalizer.Reading(reading)
	if err != nil {
		return domain.NormalizedReading{}, err
	}

	if !t.window.Contains(normalized.MinuteOfDay) {
		return domain.NormalizedReading{}, ErrOutsideWindow
	}
	return normalized, nil
}
