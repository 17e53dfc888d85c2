package rebalance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"loankeeper/src/ltv"
	"loankeeper/src/model"
)

// State is the executor's lifecycle phase for one client.
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
)

const (
	maxActionAttempts = 3
	retryBaseDelay    = 500 * time.Millisecond
)

// ErrAlreadyExecuting is returned when a rebalance is requested while another
// one is in flight for the same client.
var ErrAlreadyExecuting = errors.New("a rebalance is already executing for this client")

// CooldownError rejects a rebalance attempted before the minimum interval
// since the previous run has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("rebalance on cooldown, %s remaining", e.Remaining.Round(time.Second))
}

// Exchange is the slice of the venue the executor needs: a loan snapshot and
// the two margin-account moves.
type Exchange interface {
	LoanSnapshot(ctx context.Context) (*ltv.Snapshot, error)
	Borrow(ctx context.Context, asset string, amount decimal.Decimal) error
	Repay(ctx context.Context, asset string, amount decimal.Decimal) error
}

// Recorder persists finished executions with their action records.
type Recorder interface {
	SaveExecution(ctx context.Context, execution *model.RebalanceExecution) error
}

// SettingsSource supplies the rebalance settings for a client. The executor
// reads them once per run, so an update mid-run never changes a plan already
// being executed.
type SettingsSource interface {
	Settings(ctx context.Context, clientID string) (model.RebalanceSettings, error)
}

// Result is the outcome of one Execute call. Execution is nil when planning
// decided nothing needs to run, with Reason saying why.
type Result struct {
	Status    ltv.Status
	Actions   []ltv.Action
	Execution *model.RebalanceExecution
	Reason    string
}

type clientState struct {
	flight      sync.Mutex
	lastAttempt time.Time
	state       State
}

// Executor drives the plan produced by the planner against the exchange.
// One rebalance per client at a time, with a cooldown between runs. Failed
// actions are never rolled back, every attempt is recorded instead.
type Executor struct {
	exchange Exchange
	recorder Recorder
	settings SettingsSource

	now        func() time.Time
	retryDelay time.Duration

	mu      sync.Mutex
	clients map[string]*clientState
}

func New(exchange Exchange, recorder Recorder, settings SettingsSource) *Executor {
	return &Executor{
		exchange:   exchange,
		recorder:   recorder,
		settings:   settings,
		now:        time.Now,
		retryDelay: retryBaseDelay,
		clients:    make(map[string]*clientState),
	}
}

// StateOf reports the current lifecycle phase for a client.
func (e *Executor) StateOf(clientID string) State {
	client := e.client(clientID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if client.state == "" {
		return StateIdle
	}
	return client.state
}

// Execute runs one full rebalance cycle for a client: snapshot, plan, then
// the planned actions in order. Concurrent calls for the same client fail
// fast with ErrAlreadyExecuting rather than queue; calls inside the cooldown
// window fail with CooldownError. The cooldown clock starts only when actions
// actually execute, a no-op evaluation does not consume it.
func (e *Executor) Execute(ctx context.Context, clientID string) (*Result, error) {
	client := e.client(clientID)

	if !client.flight.TryLock() {
		return nil, ErrAlreadyExecuting
	}
	defer client.flight.Unlock()
	defer e.setState(client, StateIdle)

	e.setState(client, StatePlanning)

	settings, err := e.settings.Settings(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load rebalance settings: %w", err)
	}

	if remaining := e.cooldownRemaining(client, settings); remaining > 0 {
		return nil, &CooldownError{Remaining: remaining}
	}

	snap, err := e.exchange.LoanSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch loan snapshot: %w", err)
	}

	status := ltv.Evaluate(snap, settings)
	actions, reason := ltv.Plan(status, snap, settings)

	result := &Result{Status: status, Actions: actions, Reason: reason}
	if len(actions) == 0 {
		logger.WithFields(logger.Fields{
			"client_id": clientID,
			"reason":    reason,
		}).Info("Rebalance not needed")
		return result, nil
	}

	e.setState(client, StateExecuting)
	started := e.now()
	e.markAttempt(client, started)

	execution := &model.RebalanceExecution{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		TriggeredAt: started,
		BeforeLTV:   status.CurrentLTV.InexactFloat64(),
	}

	succeeded, failed := e.runActions(ctx, execution, actions)

	finished := e.now()
	execution.FinishedAt = &finished
	execution.Outcome = outcomeFor(succeeded, failed)

	if after, err := e.exchange.LoanSnapshot(ctx); err == nil {
		afterStatus := ltv.Evaluate(after, settings)
		if afterStatus.Defined {
			v := afterStatus.CurrentLTV.InexactFloat64()
			execution.AfterLTV = &v
		}
	} else {
		logger.WithError(err).Warn("Failed to snapshot LTV after rebalance")
	}

	if err := e.recorder.SaveExecution(ctx, execution); err != nil {
		logger.WithError(err).WithField("execution_id", execution.ID).
			Error("Failed to persist rebalance execution")
	}

	logger.WithFields(logger.Fields{
		"client_id":    clientID,
		"execution_id": execution.ID,
		"outcome":      execution.Outcome,
		"succeeded":    succeeded,
		"failed":       failed,
	}).Info("Rebalance finished")

	result.Execution = execution
	return result, nil
}

// runActions applies the plan sequentially, stopping at the first action that
// fails for good. Later actions in an abandoned plan are not attempted, their
// amounts were computed against a balance the failure left unchanged.
func (e *Executor) runActions(ctx context.Context, execution *model.RebalanceExecution, actions []ltv.Action) (succeeded, failed int) {
	for _, action := range actions {
		record := model.RebalanceActionRecord{
			ExecutionID: execution.ID,
			Kind:        string(action.Kind),
			Asset:       action.Asset,
			Amount:      action.Amount.InexactFloat64(),
			Rationale:   action.Rationale,
			AttemptedAt: e.now(),
		}

		err := e.runAction(ctx, action)
		if err != nil {
			record.ErrorDetail = err.Error()
			execution.Actions = append(execution.Actions, record)
			failed++

			logger.WithError(err).WithFields(logger.Fields{
				"kind":   action.Kind,
				"asset":  action.Asset,
				"amount": action.Amount.String(),
			}).Error("Rebalance action failed, abandoning remaining plan")
			return succeeded, failed
		}

		record.Success = true
		execution.Actions = append(execution.Actions, record)
		succeeded++
	}
	return succeeded, failed
}

// runAction applies one action, retrying transient failures with a doubling
// delay. Permanent failures and context cancellation abort immediately.
func (e *Executor) runAction(ctx context.Context, action ltv.Action) error {
	delay := e.retryDelay
	var err error

	for attempt := 1; attempt <= maxActionAttempts; attempt++ {
		err = e.apply(ctx, action)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt == maxActionAttempts {
			break
		}

		logger.WithError(err).WithFields(logger.Fields{
			"kind":    action.Kind,
			"asset":   action.Asset,
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Transient failure, retrying rebalance action")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (e *Executor) apply(ctx context.Context, action ltv.Action) error {
	switch action.Kind {
	case ltv.ActionBorrow:
		return e.exchange.Borrow(ctx, action.Asset, action.Amount)
	case ltv.ActionRepay:
		return e.exchange.Repay(ctx, action.Asset, action.Amount)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (e *Executor) client(clientID string) *clientState {
	e.mu.Lock()
	defer e.mu.Unlock()

	client, ok := e.clients[clientID]
	if !ok {
		client = &clientState{state: StateIdle}
		e.clients[clientID] = client
	}
	return client
}

func (e *Executor) setState(client *clientState, s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	client.state = s
}

func (e *Executor) markAttempt(client *clientState, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	client.lastAttempt = at
}

func (e *Executor) cooldownRemaining(client *clientState, settings model.RebalanceSettings) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if client.lastAttempt.IsZero() || settings.MinRebalanceInterval <= 0 {
		return 0
	}
	elapsed := e.now().Sub(client.lastAttempt)
	if elapsed >= settings.MinRebalanceInterval {
		return 0
	}
	return settings.MinRebalanceInterval - elapsed
}

func outcomeFor(succeeded, failed int) string {
	switch {
	case failed == 0:
		return model.RebalanceOutcomeSuccess
	case succeeded > 0:
		return model.RebalanceOutcomePartial
	default:
		return model.RebalanceOutcomeFailed
	}
}

// transienter is implemented by exchange errors that are safe to retry.
type transienter interface {
	Transient() bool
}

func isTransient(err error) bool {
	var t transienter
	return errors.As(err, &t) && t.Transient()
}
