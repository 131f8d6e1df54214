package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/servicedesk/internal/domain"
)

func sampleNotification() domain.Notification {
	return domain.Notification{
		ID:        "n1",
		UserID:    "u1",
		TicketID:  "t1",
		Title:     "Ticket approved",
		Message:   "Ticket REP-1 has been approved",
		Type:      domain.NotificationSuccess,
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRedisSink_Deliver(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	sink := NewRedisSink(rdb, "servicedesk.notifications", 1000)
	n := sampleNotification()

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "servicedesk.notifications",
		MaxLen: 1000,
		Approx: true,
		Values: streamValues(n),
	}).SetVal("1714554000000-0")

	require.NoError(t, sink.Deliver(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_DeliverFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	sink := NewRedisSink(rdb, "servicedesk.notifications", 0)
	n := sampleNotification()

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "servicedesk.notifications",
		Values: streamValues(n),
	}).SetErr(errors.New("connection refused"))

	err := sink.Deliver(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "servicedesk.notifications")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamValuesOrder(t *testing.T) {
	values := streamValues(sampleNotification())
	require.Len(t, values, 14)
	assert.Equal(t, "id", values[0])
	assert.Equal(t, "n1", values[1])
	assert.Equal(t, "2024-05-01T09:00:00Z", values[13])
}

func TestLogSink_Deliver(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Deliver(context.Background(), sampleNotification()))
	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].ContextMap()["user_id"])
}
