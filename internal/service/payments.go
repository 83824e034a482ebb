package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"exchange/internal/logging"
	"exchange/internal/models"
)

func (s *Service) CreatePaymentMethod(ctx context.Context, id models.Identity, req models.CreatePaymentMethodRequest) (*models.PaymentMethod, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	pm := &models.PaymentMethod{
		Name:    strings.TrimSpace(req.Name),
		Type:    strings.TrimSpace(req.Type),
		Details: strings.TrimSpace(req.Details),
		Active:  true,
	}
	if pm.Name == "" || pm.Type == "" {
		return nil, invalid("name and type are required")
	}

	if err := s.store.CreatePaymentMethod(ctx, pm); err != nil {
		return nil, translate(err, "payment method")
	}
	logging.Info("Payment method created", zap.Int64("admin_id", id.UserID), zap.Int64("payment_method_id", pm.ID))
	return pm, nil
}

// ListPaymentMethods is public and returns active methods only.
func (s *Service) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	return s.store.ListPaymentMethods(ctx)
}

func (s *Service) CreateBankAccount(ctx context.Context, id models.Identity, req models.CreateBankAccountRequest) (*models.BankAccount, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}

	ba := &models.BankAccount{
		UserID:        id.UserID,
		BankName:      strings.TrimSpace(req.BankName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		AccountName:   strings.TrimSpace(req.AccountName),
	}
	if ba.BankName == "" || ba.AccountNumber == "" || ba.AccountName == "" {
		return nil, invalid("bank name, account number and account name are required")
	}

	if err := s.store.CreateBankAccount(ctx, ba); err != nil {
		return nil, translate(err, "user")
	}
	return ba, nil
}

func (s *Service) ListBankAccounts(ctx context.Context, id models.Identity) ([]models.BankAccount, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}
	return s.store.ListBankAccounts(ctx, id.UserID)
}
