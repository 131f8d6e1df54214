package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewInMemoryDispatcher(zap.New(core))

	var calls []string
	d.Subscribe(EventTransitionCommitted, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("sink down")
	})
	d.Subscribe(EventTransitionCommitted, func(context.Context, Event) error {
		calls = append(calls, "second")
		panic("boom")
	})
	d.Subscribe(EventTransitionCommitted, func(_ context.Context, e Event) error {
		calls = append(calls, "third:"+e.TicketID)
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTransitionCommitted, TicketID: "T1"})

	assert.Equal(t, []string{"first", "second", "third:T1"}, calls)
	assert.ErrorContains(t, err, "sink down")
	assert.ErrorContains(t, err, "handler panic: boom")
	assert.Equal(t, 2, logs.FilterMessage("event handler failed").Len())
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTransitionCommitted}))
}
