package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/models"
	"github.com/sirupsen/logrus"
)

// Finds not-yet-paid invoices coming due within the alert window and queues
// a notification for each. Intended to run daily from cron.
func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()

	withinDays := 3
	if v := os.Getenv("DUE_INVOICE_ALERT_DAYS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			withinDays = parsed
		}
	}

	ctx := context.Background()

	invoices, err := models.GetDueInvoices(ctx, withinDays)
	if err != nil {
		logger.WithError(err).Fatal("failed to list due invoices")
	}

	db := config.GetDB()
	queued := 0
	for _, invoice := range invoices {
		tx := db.Begin()
		err := models.PublishToNotifier(ctx, tx, time.Now().UTC(), invoice.ID,
			models.NotificationReferenceTypeInvoice, invoice, nil, models.NotificationActionUpdate)
		if err != nil {
			tx.Rollback()
			logger.WithError(err).WithField("invoice_id", invoice.ID).Error("failed to queue due invoice alert")
			continue
		}
		if err := tx.Commit().Error; err != nil {
			logger.WithError(err).WithField("invoice_id", invoice.ID).Error("failed to queue due invoice alert")
			continue
		}
		queued++
	}

	logger.WithFields(logrus.Fields{
		"within_days": withinDays,
		"due":         len(invoices),
		"queued":      queued,
	}).Info("due invoice check complete")
}
