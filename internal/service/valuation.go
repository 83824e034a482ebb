package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
	"exchange/internal/rates"
)

const defaultCurrency = "usd"

// Valuation converts a user's balances into currency at current rates.
func (s *Service) Valuation(ctx context.Context, id models.Identity, userID int64, currency string) (*models.Valuation, error) {
	if err := requireOwnerOrAdmin(id, userID); err != nil {
		return nil, err
	}
	if s.rates == nil {
		return nil, errors.New("rate provider not configured")
	}

	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultCurrency
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "user")
	}

	prices, err := s.rates.Rates(ctx, currency)
	if err != nil {
		if errors.Is(err, rates.ErrUnsupportedCurrency) {
			return nil, invalid("unsupported currency %q", currency)
		}
		return nil, fmt.Errorf("load rates: %w", err)
	}

	v := &models.Valuation{
		UserID:   userID,
		Currency: currency,
		Rates:    make(map[models.AssetKind]decimal.Decimal, len(models.Assets)),
		Values:   make(map[models.AssetKind]decimal.Decimal, len(models.Assets)),
		Total:    decimal.Zero,
	}
	for _, asset := range models.Assets {
		price := prices[asset]
		value := user.Balance(asset).Mul(price)
		v.Rates[asset] = price
		v.Values[asset] = value
		v.Total = v.Total.Add(value)
	}
	return v, nil
}
