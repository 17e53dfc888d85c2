package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"loankeeper/src/database"
	"loankeeper/src/model"
)

// StrategyRepository handles read/write operations for webhook strategies.
type StrategyRepository struct {
	db *gorm.DB
}

// NewStrategyRepository creates a new repository instance using the main read/write database.
func NewStrategyRepository() *StrategyRepository {
	logger.WithField("component", "StrategyRepository").
		Info("Creating new StrategyRepository with MainDB")

	return &StrategyRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *StrategyRepository) WithDB(db *gorm.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// Create inserts a new strategy. The given strategy is updated with the
// generated ID and timestamps.
func (r *StrategyRepository) Create(ctx context.Context, strategy *model.Strategy) error {
	logger.WithFields(map[string]interface{}{
		"repo": "StrategyRepository",
		"op":   "Create",
		"name": strategy.Name,
	}).Debug("Creating new strategy")

	err := r.db.WithContext(ctx).Create(strategy).Error
	if err != nil {
		logger.WithError(err).Error("Failed to create strategy")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "StrategyRepository",
		"op":          "Create",
		"strategy_id": strategy.ID,
	}).Info("Strategy created successfully")

	return nil
}

// FindByID fetches a single strategy by its primary ID.
// Returns (nil, nil) if the strategy is not found.
func (r *StrategyRepository) FindByID(ctx context.Context, id uint) (*model.Strategy, error) {
	var strategy model.Strategy

	err := r.db.WithContext(ctx).First(&strategy, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "StrategyRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Strategy not found")
			return nil, nil
		}

		logger.WithError(err).WithField("id", id).Error("Failed to fetch strategy by ID")
		return nil, err
	}

	return &strategy, nil
}

// FindAll returns every strategy ordered by ID.
func (r *StrategyRepository) FindAll(ctx context.Context) ([]model.Strategy, error) {
	var strategies []model.Strategy

	err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&strategies).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch strategies")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "StrategyRepository",
		"op":          "FindAll",
		"rows_return": len(strategies),
	}).Debug("Strategies fetched")

	return strategies, nil
}

// Update persists changes to an existing strategy.
func (r *StrategyRepository) Update(ctx context.Context, strategy *model.Strategy) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "StrategyRepository",
		"op":          "Update",
		"strategy_id": strategy.ID,
	}).Debug("Updating strategy")

	err := r.db.WithContext(ctx).Save(strategy).Error
	if err != nil {
		logger.WithError(err).WithField("strategy_id", strategy.ID).
			Error("Failed to update strategy")
		return err
	}
	return nil
}

// Delete removes a strategy by ID.
func (r *StrategyRepository) Delete(ctx context.Context, id uint) error {
	logger.WithFields(map[string]interface{}{
		"repo": "StrategyRepository",
		"op":   "Delete",
		"id":   id,
	}).Info("Deleting strategy")

	err := r.db.WithContext(ctx).Delete(&model.Strategy{}, id).Error
	if err != nil {
		logger.WithError(err).WithField("id", id).Error("Failed to delete strategy")
		return err
	}
	return nil
}

// IncrementSignals bumps the received-signal counter for a strategy.
func (r *StrategyRepository) IncrementSignals(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).
		Model(&model.Strategy{}).
		Where("id = ?", id).
		Update("total_signals", gorm.Expr("total_signals + 1")).Error
	if err != nil {
		logger.WithError(err).WithField("id", id).Error("Failed to increment signal counter")
		return err
	}
	return nil
}
