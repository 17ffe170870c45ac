package main

import (
	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/models"
)

func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()

	if err := models.MigrateTable(); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	logger.Info("migration complete")
}
