package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"exchange/internal/logging"
	"exchange/internal/models"
	"exchange/internal/store"
	"exchange/internal/utils"
)

const minPasswordLength = 8

func (s *Service) Register(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	return s.createUser(ctx, req, models.RoleUser)
}

// CreateAdmin is used by the CLI to bootstrap administrator accounts.
func (s *Service) CreateAdmin(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	return s.createUser(ctx, req, models.RoleAdmin)
}

func (s *Service) createUser(ctx context.Context, req models.CreateUserRequest, role string) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" || req.Password == "" {
		return nil, invalid("missing required fields")
	}
	if !strings.Contains(email, "@") {
		return nil, invalid("invalid email")
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalid("password must be at least %d characters", minPasswordLength)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{Email: email, Name: name, PasswordHash: hash, Role: role}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	logging.Info("User created", zap.Int64("user_id", user.ID), zap.String("role", role))
	return user, nil
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Unknown emails pay the same bcrypt cost as a wrong password.
			s.checkPassword(req.Password, utils.DummyPasswordHash())
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.checkPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{Token: token, Role: user.Role, UserID: user.ID}, nil
}

func (s *Service) GetBalances(ctx context.Context, id models.Identity, userID int64) (*models.Balances, error) {
	if err := requireOwnerOrAdmin(id, userID); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "user")
	}
	balances := user.Balances()
	return &balances, nil
}

// ListUsers returns one page of users, newest first.
func (s *Service) ListUsers(ctx context.Context, id models.Identity, page, limit int) (*models.UserPage, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, invalid("page must be at least 1")
	}
	if limit < 1 || limit > utils.MaxLimit {
		return nil, invalid("limit must be between 1 and %d", utils.MaxLimit)
	}
	if page > utils.MaxPage(limit) {
		return nil, invalid("page is out of range")
	}

	users, total, err := s.store.ListUsers(ctx, utils.Offset(page, limit), limit)
	if err != nil {
		return nil, err
	}
	return &models.UserPage{
		Users:      users,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: utils.TotalPages(total, limit),
	}, nil
}

// CreditBalance adds a positive amount to one of a user's asset balances.
func (s *Service) CreditBalance(ctx context.Context, id models.Identity, userID int64, req models.AddCreditRequest) (*models.Balances, error) {
	if err := requireAdmin(id); err != nil {
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

	user, err := s.store.CreditBalance(ctx, userID, asset, req.Amount)
	if err != nil {
		return nil, translate(err, "user")
	}

	logging.Info("Balance credited",
		zap.Int64("admin_id", id.UserID),
		zap.Int64("user_id", userID),
		zap.String("asset", string(asset)),
		zap.String("amount", req.Amount.String()))
	balances := user.Balances()
	return &balances, nil
}
