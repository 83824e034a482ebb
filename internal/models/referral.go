package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Referral struct {
	ID             int64           `json:"id"`
	ReferrerID     int64           `json:"referrerId"`
	ReferredUserID int64           `json:"referredUserId"`
	RewardAmount   decimal.Decimal `json:"rewardAmount"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type ApplyReferralRequest struct {
	Code string `json:"code"`
}

type ReferralStats struct {
	Code          string          `json:"code,omitempty"`
	InvitedCount  int64           `json:"invitedCount"`
	TotalRewarded decimal.Decimal `json:"totalRewarded"`
}
