package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardData is a precomputed per-user snapshot.
type DashboardData struct {
	UserID       int64           `json:"userId"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type AccountDetails struct {
	UserID       int64           `json:"userId"`
	AccountLimit decimal.Decimal `json:"accountLimit"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type Dashboard struct {
	UserID       int64           `json:"userId"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
	AccountLimit decimal.Decimal `json:"accountLimit"`
	Balances     Balances        `json:"balances"`
}

// UpdateDashboardRequest leaves a field unchanged when it is nil.
type UpdateDashboardRequest struct {
	TotalBalance *decimal.Decimal `json:"totalBalance,omitempty"`
	AccountLimit *decimal.Decimal `json:"accountLimit,omitempty"`
}

// Valuation is a user's balances converted into one fiat currency.
type Valuation struct {
	UserID   int64                         `json:"userId"`
	Currency string                        `json:"currency"`
	Rates    map[AssetKind]decimal.Decimal `json:"rates"`
	Values   map[AssetKind]decimal.Decimal `json:"values"`
	Total    decimal.Decimal               `json:"total"`
}
