package executors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"loankeeper/src/connectors"
	"loankeeper/src/rebalance"
	"loankeeper/src/repository"
	"loankeeper/src/security"
)

type rebalanceRunner interface {
	Execute(ctx context.Context, clientID string) (*rebalance.Result, error)
}

// StartLoop drives the unattended rebalance cycle: every tick it evaluates
// the loan account and lets the executor decide whether anything needs to
// move. Skips and cooldowns are business as usual; only a dead context ends
// the loop.
func StartLoop(ctx context.Context) error {
	config := GetConfig()

	ticker := time.NewTicker(config.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	clientID := config.ClientID
	if clientID == "" {
		return errors.New("client_id not set")
	}

	if config.APIKeyHash == "" || config.APISecretHash == "" {
		logger.Error("No valid key/secret set for exchange")
		return errors.New("exchange credentials not set")
	}

	apiKey, err := security.DecryptString(config.APIKeyHash)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt API Key")
		return err
	}
	apiSecret, err := security.DecryptString(config.APISecretHash)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt API Secret")
		return err
	}

	exchange := connectors.NewBinanceClient(apiKey, apiSecret, connectors.GetConfig())
	repo := repository.NewRebalanceRepository()
	executor := rebalance.New(exchange, repo, repo)

	for {
		select {
		case <-ctx.Done():
			logger.Println("loop stopped")
			return nil

		case <-ticker.C:
			logger.Info("loop tick")
			runCycle(ctx, executor, clientID)
		}
	}
}

// runCycle executes one rebalance attempt. Every outcome short of a dead
// context is logged and swallowed so the loop keeps its cadence.
func runCycle(ctx context.Context, executor rebalanceRunner, clientID string) {
	result, err := executor.Execute(ctx, clientID)
	if err != nil {
		if errors.Is(err, rebalance.ErrAlreadyExecuting) {
			logger.Warn("rebalance already in flight, skipping tick")
			return
		}

		var cooldown *rebalance.CooldownError
		if errors.As(err, &cooldown) {
			logger.WithField("remaining", cooldown.Remaining).Info("inside cooldown window, skipping tick")
			return
		}

		logger.WithError(err).Error("rebalance cycle failed")
		return
	}

	if result.Execution == nil {
		logger.WithField("reason", result.Reason).Info("nothing to rebalance")
		return
	}

	logger.
		WithField("execution", result.Execution.ID).
		WithField("outcome", result.Execution.Outcome).
		Info("rebalance executed")
}
