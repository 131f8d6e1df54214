package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/notify"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/repository"
)

const defaultRelayBatch = 100

// NotificationService delivers committed notifications to the sink and serves inboxes.
type NotificationService struct {
	dispatcher    events.Dispatcher
	notifications repository.NotificationRepository
	sink          notify.Sink
	metrics       *observability.Metrics
	logger        *zap.Logger
	cfg           config.NotificationConfig
	now           func() time.Time
	inflight      sync.WaitGroup
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher    events.Dispatcher
	Notifications repository.NotificationRepository
	Sink          notify.Sink
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Config        config.NotificationConfig
	Clock         func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &NotificationService{
		dispatcher:    deps.Dispatcher,
		notifications: deps.Notifications,
		sink:          deps.Sink,
		metrics:       deps.Metrics,
		logger:        logger,
		cfg:           deps.Config,
		now:           now,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTransitionCommitted, n.handleTransitionCommitted)
}

// handleTransitionCommitted claims the transition's notifications and pushes
// them in the background so the request that committed them does not wait on
// the sink. Failures stay in the outbox for the relay.
func (n *NotificationService) handleTransitionCommitted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TransitionCommittedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if len(payload.Notifications) == 0 {
		return nil
	}
	ids := make([]string, len(payload.Notifications))
	for i, note := range payload.Notifications {
		ids[i] = note.ID
	}

	ctx = context.WithoutCancel(ctx)
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		now := n.now()
		claimed, err := n.notifications.Claim(ctx, ids, now, now.Add(n.cfg.ClaimLease()))
		if err != nil {
			n.logger.Warn("claim committed notifications", zap.String("ticket_id", event.TicketID), zap.Error(err))
			return
		}
		for _, note := range claimed {
			_ = n.deliver(ctx, *note)
		}
	}()
	return nil
}

// Wait blocks until background deliveries started so far have finished or ctx ends.
func (n *NotificationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RedeliverPending claims and retries up to one batch of undelivered
// notifications and returns how many reached the sink. Notifications another
// deliverer holds are skipped.
func (n *NotificationService) RedeliverPending(ctx context.Context) (int, error) {
	batch := n.cfg.RelayBatchSize
	if batch <= 0 {
		batch = defaultRelayBatch
	}
	now := n.now()
	pending, err := n.notifications.ClaimPending(ctx, batch, now, now.Add(n.cfg.ClaimLease()))
	if err != nil {
		return 0, fmt.Errorf("claim undelivered notifications: %w", err)
	}
	delivered := 0
	for i, note := range pending {
		if ctx.Err() != nil {
			n.release(context.WithoutCancel(ctx), pending[i:])
			break
		}
		if err := n.deliver(ctx, *note); err == nil {
			delivered++
		}
	}
	return delivered, nil
}

// List returns a user's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	return n.notifications.ListForUser(ctx, userID, unreadOnly, limit)
}

// MarkRead flags one of the user's notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return n.notifications.MarkRead(ctx, userID, id)
}

func (n *NotificationService) release(ctx context.Context, notes []*domain.Notification) {
	for _, note := range notes {
		if err := n.notifications.Release(ctx, note.ID); err != nil {
			n.logger.Warn("release notification claim", zap.String("notification_id", note.ID), zap.Error(err))
		}
	}
}

func (n *NotificationService) deliver(ctx context.Context, note domain.Notification) error {
	if n.sink == nil {
		return nil
	}
	deliverCtx, cancel := context.WithTimeout(ctx, n.cfg.DeliveryTimeout())
	defer cancel()

	if err := n.sink.Deliver(deliverCtx, note); err != nil {
		n.metrics.RecordNotification("failed")
		n.logger.Warn("notification delivery failed",
			zap.String("notification_id", note.ID),
			zap.String("user_id", note.UserID),
			zap.String("ticket_id", note.TicketID),
			zap.Error(err))
		n.release(context.WithoutCancel(ctx), []*domain.Notification{&note})
		return err
	}
	n.metrics.RecordNotification("delivered")
	if err := n.notifications.MarkDelivered(ctx, note.ID, n.now()); err != nil {
		n.logger.Warn("mark notification delivered",
			zap.String("notification_id", note.ID),
			zap.Error(err))
	}
	return nil
}
