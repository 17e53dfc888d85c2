package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"loankeeper/src/database"
	"loankeeper/src/model"
)

// RebalanceRepository persists rebalance executions, their action records,
// and the per-client settings.
type RebalanceRepository struct {
	db *gorm.DB
}

// NewRebalanceRepository creates a new repository instance using the main read/write database.
func NewRebalanceRepository() *RebalanceRepository {
	logger.WithField("component", "RebalanceRepository").
		Info("Creating new RebalanceRepository with MainDB")

	return &RebalanceRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *RebalanceRepository) WithDB(db *gorm.DB) *RebalanceRepository {
	return &RebalanceRepository{db: db}
}

// SaveExecution inserts an execution together with its action records and the
// matching activity feed entries in one transaction.
func (r *RebalanceRepository) SaveExecution(ctx context.Context, execution *model.RebalanceExecution) error {
	logger.WithFields(map[string]interface{}{
		"repo":         "RebalanceRepository",
		"op":           "SaveExecution",
		"execution_id": execution.ID,
		"outcome":      execution.Outcome,
		"actions":      len(execution.Actions),
	}).Debug("Persisting rebalance execution")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(execution).Error; err != nil {
			return err
		}

		activities := activityRecordsFor(execution)
		if len(activities) == 0 {
			return nil
		}
		return tx.Create(&activities).Error
	})
	if err != nil {
		logger.WithError(err).WithField("execution_id", execution.ID).
			Error("Failed to persist rebalance execution")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "RebalanceRepository",
		"op":           "SaveExecution",
		"execution_id": execution.ID,
	}).Info("Rebalance execution persisted")

	return nil
}

// activityRecordsFor mirrors the executed actions into the activity feed, one
// row per attempted action.
func activityRecordsFor(execution *model.RebalanceExecution) []model.ActivityRecord {
	records := make([]model.ActivityRecord, 0, len(execution.Actions))
	for _, action := range execution.Actions {
		outcome := model.ActivityOutcomeSuccess
		if !action.Success {
			outcome = model.ActivityOutcomeFailure
		}
		records = append(records, model.ActivityRecord{
			Source:      model.ActivitySourceRebalance,
			Symbol:      action.Asset,
			Action:      action.Kind,
			Quantity:    action.Amount,
			RawInput:    action.Rationale,
			Outcome:     outcome,
			ErrorDetail: action.ErrorDetail,
		})
	}
	return records
}

// FindLatestExecutions returns the most recent executions with their actions
// preloaded, newest first.
func (r *RebalanceRepository) FindLatestExecutions(ctx context.Context, limit int) ([]model.RebalanceExecution, error) {
	if limit <= 0 {
		limit = 20
	}

	var executions []model.RebalanceExecution

	err := r.db.WithContext(ctx).
		Preload("Actions").
		Order("triggered_at DESC").
		Limit(limit).
		Find(&executions).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch rebalance executions")
		return nil, err
	}
	return executions, nil
}

// Settings loads the rebalance settings for a client, falling back to the
// defaults when the client has none stored yet. The defaults are not written
// back, they only exist once the client saves an update.
func (r *RebalanceRepository) Settings(ctx context.Context, clientID string) (model.RebalanceSettings, error) {
	var settings model.RebalanceSettings

	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":      "RebalanceRepository",
				"op":        "Settings",
				"client_id": clientID,
			}).Debug("No stored settings, using defaults")
			return model.DefaultRebalanceSettings(clientID), nil
		}

		logger.WithError(err).WithField("client_id", clientID).
			Error("Failed to fetch rebalance settings")
		return model.RebalanceSettings{}, err
	}

	return settings, nil
}

// SaveSettings validates and upserts the settings for a client.
func (r *RebalanceRepository) SaveSettings(ctx context.Context, settings *model.RebalanceSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	settings.UpdatedAt = time.Now()

	logger.WithFields(map[string]interface{}{
		"repo":       "RebalanceRepository",
		"op":         "SaveSettings",
		"client_id":  settings.ClientID,
		"target_ltv": settings.TargetLTV,
	}).Info("Saving rebalance settings")

	err := r.db.WithContext(ctx).Save(settings).Error
	if err != nil {
		logger.WithError(err).WithField("client_id", settings.ClientID).
			Error("Failed to save rebalance settings")
		return err
	}
	return nil
}
