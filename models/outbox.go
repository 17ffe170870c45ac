package models

import (
	"context"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"gorm.io/gorm"
)

// NotificationRecord is one row of the transactional outbox. It is written
// inside the same DB transaction as the financial mutation it describes and
// published to Pub/Sub afterwards by the dispatcher, so a publish failure can
// never roll back the ledger write.
type NotificationRecord struct {
	ID                  int                       `gorm:"primary_key" json:"id"`
	TransactionDateTime time.Time                 `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int                       `gorm:"index" json:"reference_id"`
	ReferenceType       NotificationReferenceType `gorm:"size:50;index" json:"reference_type"`
	Action              NotificationAction        `gorm:"size:20" json:"action"`
	NewObj              []byte                    `gorm:"type:json" json:"new_obj"`
	OldObj              []byte                    `gorm:"type:json" json:"old_obj"`
	PublishStatus       OutboxPublishStatus       `gorm:"size:20;index;default:PENDING" json:"publish_status"`
	PublishAttempts     int                       `gorm:"default:0" json:"publish_attempts"`
	PublishedAt         *time.Time                `json:"published_at"`
	LastError           string                    `gorm:"size:500" json:"last_error"`
	CorrelationId       string                    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt           time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

// PendingNotifications returns the oldest unpublished outbox rows.
func PendingNotifications(ctx context.Context, limit int) ([]*NotificationRecord, error) {
	db := config.GetDB()
	var records []*NotificationRecord
	err := db.WithContext(ctx).
		Where("publish_status IN ?", []OutboxPublishStatus{OutboxPublishStatusPending, OutboxPublishStatusFailed}).
		Order("id").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func MarkNotificationSent(ctx context.Context, id int) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&NotificationRecord{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"PublishStatus": OutboxPublishStatusSent,
			"PublishedAt":   &now,
			"LastError":     "",
		}).Error
}

func MarkNotificationFailed(ctx context.Context, id int, cause error) error {
	db := config.GetDB()
	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 500 {
			msg = msg[:500]
		}
	}
	return db.WithContext(ctx).Model(&NotificationRecord{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"PublishStatus":   OutboxPublishStatusFailed,
			"PublishAttempts": gorm.Expr("publish_attempts + 1"),
			"LastError":       msg,
		}).Error
}

func ConvertToNotificationMessage(r NotificationRecord) config.NotificationMessage {
	return config.NotificationMessage{
		ID:                  r.ID,
		TransactionDateTime: r.TransactionDateTime,
		ReferenceId:         r.ReferenceId,
		ReferenceType:       string(r.ReferenceType),
		Action:              string(r.Action),
		OldObj:              r.OldObj,
		NewObj:              r.NewObj,
		CorrelationId:       r.CorrelationId,
	}
}
