package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const StatusPending = "pending"

type Transaction struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Asset         AssetKind       `json:"asset"`
	BTC           bool            `json:"btc"`
	USDT          bool            `json:"usdt"`
	ETH           bool            `json:"eth"`
	WalletAddress string          `json:"walletAddress"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transactionId"`
	RecipientID   *int64          `json:"recipientId,omitempty"`
	Date          time.Time       `json:"date"`
}

// SetAsset sets Asset and the matching per-asset flag.
func (t *Transaction) SetAsset(a AssetKind) {
	t.Asset = a
	t.BTC = a == AssetBTC
	t.USDT = a == AssetUSDT
	t.ETH = a == AssetETH
}

type CreateTransactionRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"walletAddress"`
	Asset         string          `json:"asset"`
	RecipientID   *int64          `json:"recipientId,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}
