package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"exchange/internal/logging"
	"exchange/internal/models"
	"exchange/internal/store"
)

// Dashboard returns the caller's snapshot totals and live balances. Missing
// snapshot rows read as zero.
func (s *Service) Dashboard(ctx context.Context, id models.Identity) (*models.Dashboard, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}
	return s.dashboardFor(ctx, id.UserID)
}

func (s *Service) dashboardFor(ctx context.Context, userID int64) (*models.Dashboard, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "user")
	}

	dash := &models.Dashboard{
		UserID:       userID,
		TotalBalance: decimal.Zero,
		AccountLimit: decimal.Zero,
		Balances:     user.Balances(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := s.store.GetDashboardData(gctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		dash.TotalBalance = data.TotalBalance
		return nil
	})
	g.Go(func() error {
		details, err := s.store.GetAccountDetails(gctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		dash.AccountLimit = details.AccountLimit
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dash, nil
}

// UpdateDashboard lets an admin set a user's snapshot totals. Nil fields are
// left unchanged.
func (s *Service) UpdateDashboard(ctx context.Context, id models.Identity, userID int64, req models.UpdateDashboardRequest) (*models.Dashboard, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	if req.TotalBalance != nil && req.TotalBalance.IsNegative() {
		return nil, invalid("total balance must not be negative")
	}
	if req.AccountLimit != nil && req.AccountLimit.IsNegative() {
		return nil, invalid("account limit must not be negative")
	}
	if req.TotalBalance != nil {
		if err := checkAmount("total balance", *req.TotalBalance); err != nil {
			return nil, err
		}
	}
	if req.AccountLimit != nil {
		if err := checkAmount("account limit", *req.AccountLimit); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, translate(err, "user")
	}

	if req.TotalBalance != nil {
		data := &models.DashboardData{UserID: userID, TotalBalance: *req.TotalBalance}
		if err := s.store.UpsertDashboardData(ctx, data); err != nil {
			return nil, translate(err, "user")
		}
	}
	if req.AccountLimit != nil {
		details := &models.AccountDetails{UserID: userID, AccountLimit: *req.AccountLimit}
		if err := s.store.UpsertAccountDetails(ctx, details); err != nil {
			return nil, translate(err, "user")
		}
	}

	logging.Info("Dashboard updated", zap.Int64("admin_id", id.UserID), zap.Int64("user_id", userID))
	return s.dashboardFor(ctx, userID)
}
