package model

import "time"

const (
	ActivitySourceWebhook   = "webhook"
	ActivitySourceRebalance = "rebalance"

	ActivityOutcomeSuccess = "success"
	ActivityOutcomeFailure = "failure"
)

// ActivityRecord is one append-only entry in the activity feed. Webhook
// ingestion writes one row per received signal (parsed or not), the rebalance
// executor writes one row per execution. Rows are never updated or deleted.
type ActivityRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Source      string    `gorm:"size:20;not null;index" json:"source"`
	StrategyID  *uint     `gorm:"index" json:"strategy_id,omitempty"`
	Symbol      string    `gorm:"size:50" json:"symbol,omitempty"`
	Action      string    `gorm:"size:20" json:"action,omitempty"`
	Quantity    float64   `json:"quantity,omitempty"`
	Price       float64   `json:"price,omitempty"`
	RawInput    string    `gorm:"type:text" json:"raw_input,omitempty"`
	Outcome     string    `gorm:"size:20;not null" json:"outcome"`
	ErrorDetail string    `gorm:"type:text" json:"error_detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ActivityRecord) TableName() string {
	return "activity_records"
}
