// Package store persists users, transactions, referrals and the dashboard
// snapshots. Postgres is the production backend; Memory backs tests and
// local runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicate           = errors.New("duplicate record")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyReferred     = errors.New("user already referred")
	ErrCheckViolation      = errors.New("constraint violation")
)

type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	// ListUsers returns users ordered by descending id plus the total count.
	ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error)
	CreditBalance(ctx context.Context, userID int64, asset models.AssetKind, amount decimal.Decimal) (*models.User, error)

	// CreateTransaction debits the sender and records the transaction
	// atomically. It fails with ErrInsufficientBalance and writes nothing
	// when the balance does not cover the amount.
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status string) (*models.Transaction, error)

	// SetReferralCode stores code unless the user already has one, and
	// returns whichever code is stored afterwards.
	SetReferralCode(ctx context.Context, userID int64, code string) (string, error)
	// ApplyReferral links the referred user and records the referral in one
	// atomic step. A second application fails with ErrAlreadyReferred.
	ApplyReferral(ctx context.Context, r *models.Referral) error
	ReferralStats(ctx context.Context, referrerID int64) (int64, decimal.Decimal, error)

	GetDashboardData(ctx context.Context, userID int64) (*models.DashboardData, error)
	GetAccountDetails(ctx context.Context, userID int64) (*models.AccountDetails, error)
	UpsertDashboardData(ctx context.Context, d *models.DashboardData) error
	UpsertAccountDetails(ctx context.Context, d *models.AccountDetails) error

	CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error
	ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)

	CreateBankAccount(ctx context.Context, ba *models.BankAccount) error
	ListBankAccounts(ctx context.Context, userID int64) ([]models.BankAccount, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)

// PostgreSQL error codes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
	pqNumericOutOfRange   = "22003"
)

// mapError translates driver errors into the package's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Constraint)
		case pqCheckViolation:
			return fmt.Errorf("%w: %s", ErrCheckViolation, pqErr.Constraint)
		case pqNumericOutOfRange:
			return fmt.Errorf("%w: numeric field overflow", ErrCheckViolation)
		}
	}
	return err
}

// balanceColumn maps an asset to its users column. Only these three names
// are ever interpolated into SQL.
func balanceColumn(asset models.AssetKind) (string, error) {
	switch asset {
	case models.AssetBTC:
		return "btc_balance", nil
	case models.AssetUSDT:
		return "usdt_balance", nil
	case models.AssetETH:
		return "eth_balance", nil
	}
	return "", fmt.Errorf("unknown asset %q", asset)
}
