package model

import "errors"

var (
	ErrInvalidTargetLTV = errors.New("target_ltv must be in [0,100)")
	ErrInvalidThreshold = errors.New("rebalance_threshold must not be negative")
	ErrInvalidMaxBorrow = errors.New("max_borrow_amount must be positive")
	ErrInvalidMinRepay  = errors.New("min_repay_amount must be positive")
	ErrInvalidInterval  = errors.New("min_rebalance_interval must not be negative")
)
