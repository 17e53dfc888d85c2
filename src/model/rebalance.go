package model

import "time"

const (
	RebalanceOutcomeSuccess = "success"
	RebalanceOutcomePartial = "partial"
	RebalanceOutcomeFailed  = "failed"

	RebalanceActionBorrow = "borrow"
	RebalanceActionRepay  = "repay"
)

// RebalanceExecution records one full plan/execute cycle against the loan
// account. The most recent row per client drives the cooldown check.
type RebalanceExecution struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	ClientID    string     `gorm:"size:60;not null;index" json:"client_id"`
	TriggeredAt time.Time  `gorm:"not null;index" json:"triggered_at"`
	BeforeLTV   float64    `json:"before_ltv"`
	AfterLTV    *float64   `json:"after_ltv,omitempty"`
	Outcome     string     `gorm:"size:20;not null" json:"outcome"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	Actions []RebalanceActionRecord `gorm:"foreignKey:ExecutionID" json:"actions,omitempty"`
}

func (RebalanceExecution) TableName() string {
	return "rebalance_executions"
}

// RebalanceActionRecord is the per-action outcome inside an execution.
type RebalanceActionRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ExecutionID string    `gorm:"size:36;not null;index" json:"execution_id"`
	Kind        string    `gorm:"size:10;not null" json:"kind"`
	Asset       string    `gorm:"size:20;not null" json:"asset"`
	Amount      float64   `gorm:"not null" json:"amount"`
	Rationale   string    `gorm:"size:255" json:"rationale"`
	Success     bool      `gorm:"not null" json:"success"`
	ErrorDetail string    `gorm:"type:text" json:"error_detail,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

func (RebalanceActionRecord) TableName() string {
	return "rebalance_action_records"
}

// RebalanceSettings is the per-client configuration read by the planner and
// the executor. Mutated only through the settings endpoint; the executor
// snapshots it at the start of each planning phase.
type RebalanceSettings struct {
	ClientID             string        `gorm:"primaryKey;size:60" json:"client_id"`
	TargetLTV            float64       `gorm:"not null;default:74" json:"target_ltv"`
	RebalanceThreshold   float64       `gorm:"not null;default:2" json:"rebalance_threshold"`
	MaxBorrowAmount      float64       `gorm:"not null;default:10000" json:"max_borrow_amount"`
	MinRepayAmount       float64       `gorm:"not null;default:10" json:"min_repay_amount"`
	MinRebalanceInterval time.Duration `gorm:"not null;default:300000000000" json:"min_rebalance_interval"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

func (RebalanceSettings) TableName() string {
	return "rebalance_settings"
}

// DefaultRebalanceSettings returns the baseline settings for a client that
// has never saved any.
func DefaultRebalanceSettings(clientID string) RebalanceSettings {
	return RebalanceSettings{
		ClientID:             clientID,
		TargetLTV:            74,
		RebalanceThreshold:   2,
		MaxBorrowAmount:      10000,
		MinRepayAmount:       10,
		MinRebalanceInterval: 5 * time.Minute,
	}
}

// Validate rejects settings that would make the control loop unsafe.
func (s *RebalanceSettings) Validate() error {
	if s.TargetLTV < 0 || s.TargetLTV >= 100 {
		return ErrInvalidTargetLTV
	}
	if s.RebalanceThreshold < 0 {
		return ErrInvalidThreshold
	}
	if s.MaxBorrowAmount <= 0 {
		return ErrInvalidMaxBorrow
	}
	if s.MinRepayAmount <= 0 {
		return ErrInvalidMinRepay
	}
	if s.MinRebalanceInterval < 0 {
		return ErrInvalidInterval
	}
	return nil
}
