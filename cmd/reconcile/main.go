package main

import (
	"context"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/models"
	"github.com/sirupsen/logrus"
)

// Replays the event history and reports any figure that drifted from its
// stored value. Exits nonzero when discrepancies exist so cron can alert.
func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()

	report, err := models.RunReconciliation(context.Background())
	if err != nil {
		logger.WithError(err).Fatal("reconciliation failed")
	}

	for _, check := range report.Discrepancies {
		logger.WithFields(logrus.Fields{
			"kind":         check.Kind,
			"reference_id": check.ReferenceId,
			"stored":       check.Stored,
			"recomputed":   check.Recomputed,
			"detail":       check.Detail,
		}).Warn("reconciliation discrepancy")
	}

	if !report.Clean() {
		logger.WithFields(logrus.Fields{
			"checked":       report.CheckedCount,
			"discrepancies": len(report.Discrepancies),
		}).Fatal("reconciliation found discrepancies")
	}

	logger.WithField("checked", report.CheckedCount).Info("reconciliation clean")
}
