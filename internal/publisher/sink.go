// Package publisher adapts a crawler.Publisher into a row sink.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// RowMessage is the payload published for every output row.
type RowMessage struct {
	RunID    string            `json:"run_id"`
	Position int               `json:"position"`
	Row      crawler.OutputRow `json:"row"`
}

// RowSink publishes one message per output row.
type RowSink struct {
	pub   crawler.Publisher
	topic string
}

// NewRowSink builds a RowSink on pub.
func NewRowSink(pub crawler.Publisher, topic string) *RowSink {
	return &RowSink{pub: pub, topic: topic}
}

// Name identifies the sink in logs and reports.
func (s *RowSink) Name() string {
	return "pubsub"
}

// WriteRows publishes every row, continuing past failures, and reports the
// topic with the number of delivered messages.
func (s *RowSink) WriteRows(ctx context.Context, runID string, rows []crawler.OutputRow) (string, error) {
	if s.pub == nil {
		return "", fmt.Errorf("publisher is not configured")
	}
	var errs []error
	sent := 0
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		msg := RowMessage{RunID: runID, Position: i, Row: row}
		if _, err := s.pub.Publish(ctx, s.topic, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish row %d: %w", i, err))
			continue
		}
		sent++
	}
	return fmt.Sprintf("%s (%d/%d messages)", s.topic, sent, len(rows)), errors.Join(errs...)
}

var _ crawler.RowSink = (*RowSink)(nil)
