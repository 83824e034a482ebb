package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"exchange/internal/logging"
	"exchange/internal/metrics"
	"exchange/internal/models"
)

const maxWalletAddressLength = 128

// CreateTransaction debits the caller's balance for the chosen asset and
// records a pending transaction in one atomic store call. The notification
// email is sent after the write and never fails the operation.
func (s *Service) CreateTransaction(ctx context.Context, id models.Identity, req models.CreateTransactionRequest) (*models.Transaction, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}

	asset, err := models.ParseAssetKind(req.Asset)
	if err != nil {
		return nil, invalid("asset must be one of btc, usdt, eth")
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount must be positive")
	}
	if err := checkAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet == "" {
		return nil, invalid("wallet address is required")
	}
	if len(wallet) > maxWalletAddressLength {
		return nil, invalid("wallet address is too long")
	}
	if req.RecipientID != nil {
		if *req.RecipientID <= 0 {
			return nil, invalid("recipient id must be positive")
		}
		if _, err := s.store.GetUser(ctx, *req.RecipientID); err != nil {
			if errors.Is(translate(err, "recipient"), ErrNotFound) {
				return nil, invalid("recipient not found")
			}
			return nil, err
		}
	}

	txn := &models.Transaction{
		UserID:        id.UserID,
		Amount:        req.Amount,
		WalletAddress: wallet,
		Status:        models.StatusPending,
		TransactionID: uuid.NewString(),
		RecipientID:   req.RecipientID,
	}
	txn.SetAsset(asset)

	logger := logging.With(zap.Int64("user_id", id.UserID), zap.String("transaction_id", txn.TransactionID))

	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		err = translate(err, "user")
		if errors.Is(err, ErrInsufficientBalance) {
			logger.Info("Transaction rejected", zap.String("asset", string(asset)), zap.Error(err))
		}
		return nil, err
	}
	metrics.RecordTransaction(asset)
	logger.Info("Transaction created", zap.String("asset", string(asset)), zap.String("amount", txn.Amount.String()))

	s.notifyTransaction(ctx, logger, txn)
	return txn, nil
}

func (s *Service) notifyTransaction(ctx context.Context, logger *zap.Logger, txn *models.Transaction) {
	user, err := s.store.GetUser(ctx, txn.UserID)
	if err == nil {
		err = s.notifier.TransactionCreated(ctx, user, txn)
	}
	if err != nil {
		metrics.RecordNotificationFailure()
		logger.Warn("Transaction email not sent", zap.Error(err))
	}
}

// UpdateTransactionStatus sets free-form status text on a transaction. The
// text is stored as given; only a blank status is rejected.
func (s *Service) UpdateTransactionStatus(ctx context.Context, id models.Identity, transactionID int64, status string) (*models.Transaction, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	if strings.TrimSpace(status) == "" {
		return nil, invalid("status is required")
	}

	txn, err := s.store.UpdateTransactionStatus(ctx, transactionID, status)
	if err != nil {
		return nil, translate(err, "transaction")
	}
	logging.Info("Transaction status updated",
		zap.Int64("admin_id", id.UserID),
		zap.Int64("transaction", transactionID),
		zap.String("status", status))
	return txn, nil
}

func (s *Service) ListTransactions(ctx context.Context, id models.Identity, userID int64) ([]models.Transaction, error) {
	if err := requireOwnerOrAdmin(id, userID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, translate(err, "user")
	}
	txns, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, translate(err, "user")
	}
	return txns, nil
}
