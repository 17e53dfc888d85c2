package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"loankeeper/src/database"
	"loankeeper/src/executors"
)

// Executor runs the unattended rebalance loop until interrupted.
type Executor struct{}

func (t *Executor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	logrus.Info("Starting rebalance loop")

	if err := executors.StartLoop(ctx); err != nil {
		logrus.WithError(err).Error("Rebalance loop exited with error")
		return err
	}

	return nil
}
