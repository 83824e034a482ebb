// Package notify sends user-facing notifications for account events.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"exchange/internal/logging"
	"exchange/internal/models"
)

type Notifier interface {
	TransactionCreated(ctx context.Context, user *models.User, t *models.Transaction) error
}

// sender is the part of gomail.Dialer the mailer uses.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer delivers notifications over SMTP.
type Mailer struct {
	from     string
	dialer   sender
	attempts uint
	delay    time.Duration
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{
		from:     cfg.From,
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		attempts: 3,
		delay:    500 * time.Millisecond,
	}
}

func (m *Mailer) TransactionCreated(ctx context.Context, user *models.User, t *models.Transaction) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", user.Email)
	msg.SetHeader("Subject", "Transaction created")
	msg.SetBody("text/plain", transactionBody(user, t))

	logger := logging.With(zap.Int64("user_id", user.ID), zap.String("transaction_id", t.TransactionID))

	err := retry.Do(
		func() error { return m.dialer.DialAndSend(msg) },
		retry.Context(ctx),
		retry.Attempts(m.attempts),
		retry.Delay(m.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retry sending email", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("send transaction email: %w", err)
	}
	logger.Debug("Transaction email sent")
	return nil
}

func transactionBody(user *models.User, t *models.Transaction) string {
	return fmt.Sprintf(
		"Hello %s,\n\nYour %s transaction of %s to %s was created and is %s.\nReference: %s\n",
		user.Name, t.Asset, t.Amount.String(), t.WalletAddress, t.Status, t.TransactionID)
}

// LogNotifier only logs. It is used when no SMTP host is configured.
type LogNotifier struct{}

func (LogNotifier) TransactionCreated(ctx context.Context, user *models.User, t *models.Transaction) error {
	logging.Info("Transaction notification",
		zap.Int64("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("transaction_id", t.TransactionID))
	return nil
}
