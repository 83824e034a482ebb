// Package service holds the exchange's business operations. Every operation
// receives the caller's identity explicitly; the HTTP layer only decodes
// requests and maps errors.
package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
	"exchange/internal/notify"
	"exchange/internal/rates"
	"exchange/internal/store"
	"exchange/internal/utils"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrReferralAlreadyUsed = errors.New("referral code already used")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrConflict            = errors.New("conflict")

	ErrEmailTaken         = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
)

type TokenGenerator interface {
	GenerateToken(userID int64, role string) (string, error)
}

type Service struct {
	store    store.Store
	notifier notify.Notifier
	rates    rates.Provider
	tokens   TokenGenerator
	reward   decimal.Decimal

	newReferralCode func() (string, error)
	checkPassword   func(password, hash string) bool
}

func New(st store.Store, notifier notify.Notifier, provider rates.Provider, tokens TokenGenerator, reward decimal.Decimal) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		store:           st,
		notifier:        notifier,
		rates:           provider,
		tokens:          tokens,
		reward:          reward,
		newReferralCode: utils.GenerateReferralCode,
		checkPassword:   utils.CheckPasswordHash,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Monetary columns are NUMERIC(36,18).
const amountScale = 18

var maxAmount = decimal.New(1, 36-amountScale)

// checkAmount rejects values the monetary columns would round or overflow.
func checkAmount(field string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(amountScale)) {
		return invalid("%s has more than %d decimal places", field, amountScale)
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return invalid("%s is too large", field)
	}
	return nil
}

func requireAuth(id models.Identity) error {
	if !id.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

func requireAdmin(id models.Identity) error {
	if err := requireAuth(id); err != nil {
		return err
	}
	if !id.IsAdmin() {
		return fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	return nil
}

func requireOwnerOrAdmin(id models.Identity, userID int64) error {
	if err := requireAuth(id); err != nil {
		return err
	}
	if !id.IsAdmin() && id.UserID != userID {
		return fmt.Errorf("%w: access denied", ErrForbidden)
	}
	return nil
}

// translate maps store errors onto the service's sentinel errors. what names
// the missing record in not-found messages.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s %w", what, ErrNotFound)
	case errors.Is(err, store.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, store.ErrAlreadyReferred):
		return ErrReferralAlreadyUsed
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %s already exists", ErrConflict, what)
	case errors.Is(err, store.ErrCheckViolation):
		return invalid("%s violates a constraint", what)
	}
	return err
}
