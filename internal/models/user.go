package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           int64           `json:"id"`
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	PasswordHash string          `json:"-"`
	Role         string          `json:"role"`
	BTCBalance   decimal.Decimal `json:"btcBalance"`
	USDTBalance  decimal.Decimal `json:"usdtBalance"`
	ETHBalance   decimal.Decimal `json:"ethBalance"`
	ReferralCode *string         `json:"referralCode,omitempty"`
	ReferredBy   *int64          `json:"referredBy,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Balance returns the balance held for the given asset.
func (u *User) Balance(asset AssetKind) decimal.Decimal {
	switch asset {
	case AssetBTC:
		return u.BTCBalance
	case AssetUSDT:
		return u.USDTBalance
	case AssetETH:
		return u.ETHBalance
	}
	return decimal.Zero
}

func (u *User) SetBalance(asset AssetKind, v decimal.Decimal) {
	switch asset {
	case AssetBTC:
		u.BTCBalance = v
	case AssetUSDT:
		u.USDTBalance = v
	case AssetETH:
		u.ETHBalance = v
	}
}

func (u *User) Balances() Balances {
	return Balances{UserID: u.ID, BTC: u.BTCBalance, USDT: u.USDTBalance, ETH: u.ETHBalance}
}

type Balances struct {
	UserID int64           `json:"userId"`
	BTC    decimal.Decimal `json:"btc"`
	USDT   decimal.Decimal `json:"usdt"`
	ETH    decimal.Decimal `json:"eth"`
}

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AddCreditRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users      []User `json:"users"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"totalPages"`
}
