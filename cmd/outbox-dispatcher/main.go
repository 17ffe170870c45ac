package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/workflow"
)

func main() {
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := workflow.NewNotificationDispatcher()
	logger.Info("outbox dispatcher started")

	if err := dispatcher.Run(ctx); err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("dispatcher stopped")
	}
	logger.Info("outbox dispatcher stopped")
}
