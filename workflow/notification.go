package workflow

import (
	"context"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const dispatcherLockKey = "outbox-dispatcher"

var tracer trace.Tracer = otel.Tracer("workflow/notification")

// NotificationDispatcher drains the outbox and publishes each row to
// Pub/Sub. A Redis lock keeps a single dispatcher active across replicas;
// a replica that does not hold the lock skips the round. Publish failures
// are recorded on the row and retried next round.
type NotificationDispatcher struct {
	Logger    *logrus.Logger
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewNotificationDispatcher() *NotificationDispatcher {
	return &NotificationDispatcher{
		Logger:    config.GetLogger(),
		BatchSize: 100,
		Interval:  5 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

// Run dispatches until the context is cancelled.
func (d *NotificationDispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.dispatchRound(ctx); err != nil {
				config.LogError(d.Logger, "workflow", "Run", "dispatch round", nil, err)
			}
		}
	}
}

func (d *NotificationDispatcher) dispatchRound(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "outbox.dispatchRound")
	defer span.End()

	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, dispatcherLockKey, d.LockTTL, nil)
		if err == redislock.ErrNotObtained {
			return nil
		}
		if err != nil {
			return err
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	records, err := models.PendingNotifications(ctx, d.BatchSize)
	if err != nil {
		return err
	}

	for _, record := range records {
		msg := models.ConvertToNotificationMessage(*record)
		msgId, err := config.PublishNotification(ctx, msg)
		if err != nil {
			config.LogError(d.Logger, "workflow", "dispatchRound", "publish notification", record.ID, err)
			if markErr := models.MarkNotificationFailed(ctx, record.ID, err); markErr != nil {
				config.LogError(d.Logger, "workflow", "dispatchRound", "mark failed", record.ID, markErr)
			}
			continue
		}
		if err := models.MarkNotificationSent(ctx, record.ID); err != nil {
			config.LogError(d.Logger, "workflow", "dispatchRound", "mark sent", record.ID, err)
			continue
		}
		d.Logger.WithFields(logrus.Fields{
			"outbox_id":      record.ID,
			"reference_type": record.ReferenceType,
			"action":         record.Action,
			"message_id":     msgId,
		}).Info("notification published")
	}

	return nil
}
