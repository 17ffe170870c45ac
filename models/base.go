package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PublishToNotifier implements the transactional outbox: it writes the
// notification record inside the caller's DB transaction but does NOT publish
// to Pub/Sub. Publishing is performed asynchronously by the dispatcher after
// commit.
func PublishToNotifier(ctx context.Context, tx *gorm.DB, transactionDateTime time.Time, refId int, refType NotificationReferenceType, obj interface{}, oldObj interface{}, action NotificationAction) error {

	var objInByte []byte
	var oldObjInByte []byte
	var err error

	if action == NotificationActionCreate || action == NotificationActionUpdate {
		objInByte, err = json.Marshal(obj)
		if err != nil {
			return err
		}
	}
	if action == NotificationActionUpdate || action == NotificationActionDelete {
		oldObjInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := NotificationRecord{
		TransactionDateTime: transactionDateTime,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              action,
		NewObj:              objInByte,
		OldObj:              oldObjInByte,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationIdFromContextOrNew(ctx),
	}
	err = tx.Create(&record).Error
	if err != nil {
		return err
	}
	return nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
