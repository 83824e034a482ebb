package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"exchange/internal/logging"
	"exchange/internal/metrics"
	"exchange/internal/models"
	"exchange/internal/store"
)

const referralCodeAttempts = 5

// ReferralCode returns the caller's referral code, creating one on first
// use. A user never gets a second code.
func (s *Service) ReferralCode(ctx context.Context, id models.Identity) (string, error) {
	if err := requireAuth(id); err != nil {
		return "", err
	}

	user, err := s.store.GetUser(ctx, id.UserID)
	if err != nil {
		return "", translate(err, "user")
	}
	if user.ReferralCode != nil {
		return *user.ReferralCode, nil
	}

	var stored string
	err = retry.Do(
		func() error {
			code, err := s.newReferralCode()
			if err != nil {
				return err
			}
			stored, err = s.store.SetReferralCode(ctx, id.UserID, code)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(referralCodeAttempts),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, store.ErrDuplicate) }),
		retry.OnRetry(func(n uint, err error) {
			logging.Debug("Referral code collision", zap.Int64("user_id", id.UserID), zap.Uint("attempt", n))
		}),
	)
	if err != nil {
		return "", translate(err, "referral code")
	}
	return stored, nil
}

// ApplyReferralCode links the caller to the owner of code and records the
// reward. The link and the referral row are written atomically, so a user
// is referred at most once.
func (s *Service) ApplyReferralCode(ctx context.Context, id models.Identity, code string) (*models.Referral, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInvalidReferralCode
	}

	me, err := s.store.GetUser(ctx, id.UserID)
	if err != nil {
		return nil, translate(err, "user")
	}
	if me.ReferredBy != nil {
		return nil, ErrReferralAlreadyUsed
	}

	referrer, err := s.store.GetUserByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidReferralCode
		}
		return nil, err
	}
	if referrer.ID == me.ID {
		return nil, ErrInvalidReferralCode
	}

	referral := &models.Referral{
		ReferrerID:     referrer.ID,
		ReferredUserID: me.ID,
		RewardAmount:   s.reward,
	}
	if err := s.store.ApplyReferral(ctx, referral); err != nil {
		if errors.Is(err, store.ErrCheckViolation) {
			return nil, ErrInvalidReferralCode
		}
		return nil, translate(err, "user")
	}

	metrics.RecordReferral()
	logging.Info("Referral applied",
		zap.Int64("user_id", me.ID),
		zap.Int64("referrer_id", referrer.ID),
		zap.String("reward", referral.RewardAmount.String()))
	return referral, nil
}

func (s *Service) ReferralStats(ctx context.Context, id models.Identity) (*models.ReferralStats, error) {
	if err := requireAuth(id); err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, id.UserID)
	if err != nil {
		return nil, translate(err, "user")
	}
	count, total, err := s.store.ReferralStats(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	stats := &models.ReferralStats{InvitedCount: count, TotalRewarded: total}
	if user.ReferralCode != nil {
		stats.Code = *user.ReferralCode
	}
	return stats, nil
}
