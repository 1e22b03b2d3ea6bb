package hub

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/hub/model"
)

// EventSink receives lifecycle events. Publish must not block the caller
// for long; a failed publish never fails the transition that produced it.
type EventSink interface {
	Publish(ctx context.Context, event model.Event) error
}

var ErrSinkFull = errors.New("event sink is full")

// DiscardSink drops every event.
type DiscardSink struct{}

func (DiscardSink) Publish(context.Context, model.Event) error { return nil }

// ChannelSink buffers events on a bounded channel and drops them when the
// consumer falls behind.
type ChannelSink struct {
	events  chan model.Event
	dropped atomic.Int64
}

func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{events: make(chan model.Event, size)}
}

func (s *ChannelSink) Publish(_ context.Context, event model.Event) error {
	select {
	case s.events <- event:
		return nil
	default:
		s.dropped.Add(1)
		return ErrSinkFull
	}
}

func (s *ChannelSink) Events() <-chan model.Event {
	return s.events
}

func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// MultiSink fans an event out to every sink and returns the first error.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, event model.Event) error {
	var first error
	for _, sink := range m {
		if err := sink.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (h *Hub) emit(ctx context.Context, eventType string, txn *model.Transaction, data map[string]interface{}) {
	h.publish(ctx, model.NewTransactionEvent(eventType, txn, data))
}

func (h *Hub) publish(ctx context.Context, event model.Event) {
	if err := h.events.Publish(ctx, event); err != nil {
		h.logger.WithFields(logrus.Fields{
			"event":        event.Type,
			"reference_id": event.ReferenceID,
		}).WithError(err).Warn("failed to publish event")
	}
}
