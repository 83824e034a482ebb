package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const userColumns = `id, email, name, password_hash, role, btc_balance, usdt_balance, eth_balance, referral_code, referred_by, created_at`

const transactionColumns = `id, user_id, amount, asset, wallet_address, status, transaction_id, recipient_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u          models.User
		code       sql.NullString
		referredBy sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role,
		&u.BTCBalance, &u.USDTBalance, &u.ETHBalance, &code, &referredBy, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if code.Valid {
		u.ReferralCode = &code.String
	}
	if referredBy.Valid {
		u.ReferredBy = &referredBy.Int64
	}
	return &u, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t         models.Transaction
		asset     string
		recipient sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &asset, &t.WalletAddress,
		&t.Status, &t.TransactionID, &recipient, &t.Date)
	if err != nil {
		return nil, err
	}
	t.SetAsset(models.AssetKind(asset))
	if recipient.Valid {
		t.RecipientID = &recipient.Int64
	}
	return &t, nil
}

func (s *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (email, name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, u.Email, u.Name, u.PasswordHash, u.Role).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	u.BTCBalance, u.USDTBalance, u.ETHBalance = decimal.Zero, decimal.Zero, decimal.Zero
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, mapError(err))
	}
	return u, nil
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", mapError(err))
	}
	return u, nil
}

func (s *Postgres) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by referral code: %w", mapError(err))
	}
	return u, nil
}

func (s *Postgres) ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", mapError(err))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", mapError(err))
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

func (s *Postgres) CreditBalance(ctx context.Context, userID int64, asset models.AssetKind, amount decimal.Decimal) (*models.User, error) {
	col, err := balanceColumn(asset)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE users
		SET %[1]s = %[1]s + $1
		WHERE id = $2
		RETURNING %[2]s`, col, userColumns)

	u, err := scanUser(s.db.QueryRowContext(ctx, query, amount, userID))
	if err != nil {
		return nil, fmt.Errorf("credit balance: %w", mapError(err))
	}
	return u, nil
}

func (s *Postgres) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	col, err := balanceColumn(t.Asset)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The row lock taken by UPDATE serializes concurrent debits, and the
	// WHERE clause is re-checked against the locked row.
	debit := fmt.Sprintf(`
		UPDATE users
		SET %[1]s = %[1]s - $1
		WHERE id = $2 AND %[1]s >= $1`, col)

	res, err := tx.ExecContext(ctx, debit, t.Amount, t.UserID)
	if err != nil {
		return fmt.Errorf("debit balance: %w", mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, t.UserID).Scan(&exists); err != nil {
			return fmt.Errorf("check user: %w", mapError(err))
		}
		if !exists {
			return fmt.Errorf("user %d: %w", t.UserID, ErrNotFound)
		}
		return ErrInsufficientBalance
	}

	insert := `
		INSERT INTO transactions (user_id, amount, asset, wallet_address, status, transaction_id, recipient_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = tx.QueryRowContext(ctx, insert, t.UserID, t.Amount, string(t.Asset), t.WalletAddress,
		t.Status, t.TransactionID, t.RecipientID).Scan(&t.ID, &t.Date)
	if err != nil {
		return fmt.Errorf("record transaction: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Postgres) ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", mapError(err))
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return transactions, nil
}

func (s *Postgres) UpdateTransactionStatus(ctx context.Context, id int64, status string) (*models.Transaction, error) {
	query := `UPDATE transactions SET status = $1 WHERE id = $2 RETURNING ` + transactionColumns
	t, err := scanTransaction(s.db.QueryRowContext(ctx, query, status, id))
	if err != nil {
		return nil, fmt.Errorf("update transaction %d: %w", id, mapError(err))
	}
	return t, nil
}

func (s *Postgres) SetReferralCode(ctx context.Context, userID int64, code string) (string, error) {
	query := `
		UPDATE users
		SET referral_code = COALESCE(referral_code, $1)
		WHERE id = $2
		RETURNING referral_code`

	var stored string
	if err := s.db.QueryRowContext(ctx, query, code, userID).Scan(&stored); err != nil {
		return "", fmt.Errorf("set referral code: %w", mapError(err))
	}
	return stored, nil
}

func (s *Postgres) ApplyReferral(ctx context.Context, r *models.Referral) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET referred_by = $1
		WHERE id = $2 AND referred_by IS NULL`, r.ReferrerID, r.ReferredUserID)
	if err != nil {
		return fmt.Errorf("link referral: %w", mapError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link referral: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, r.ReferredUserID).Scan(&exists); err != nil {
			return fmt.Errorf("check user: %w", mapError(err))
		}
		if !exists {
			return fmt.Errorf("user %d: %w", r.ReferredUserID, ErrNotFound)
		}
		return ErrAlreadyReferred
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO referrals (referrer_id, referred_user_id, reward_amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, r.ReferrerID, r.ReferredUserID, r.RewardAmount).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, ErrDuplicate) {
			return ErrAlreadyReferred
		}
		return fmt.Errorf("record referral: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit referral: %w", err)
	}
	return nil
}

func (s *Postgres) ReferralStats(ctx context.Context, referrerID int64) (int64, decimal.Decimal, error) {
	var (
		count int64
		total decimal.Decimal
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(reward_amount), 0) FROM referrals WHERE referrer_id = $1`, referrerID).
		Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("referral stats: %w", mapError(err))
	}
	return count, total, nil
}

func (s *Postgres) GetDashboardData(ctx context.Context, userID int64) (*models.DashboardData, error) {
	d := models.DashboardData{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT total_balance, updated_at FROM dashboard_data WHERE user_id = $1`, userID).
		Scan(&d.TotalBalance, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get dashboard data: %w", mapError(err))
	}
	return &d, nil
}

func (s *Postgres) GetAccountDetails(ctx context.Context, userID int64) (*models.AccountDetails, error) {
	d := models.AccountDetails{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT account_limit, updated_at FROM account_details WHERE user_id = $1`, userID).
		Scan(&d.AccountLimit, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get account details: %w", mapError(err))
	}
	return &d, nil
}

func (s *Postgres) UpsertDashboardData(ctx context.Context, d *models.DashboardData) error {
	query := `
		INSERT INTO dashboard_data (user_id, total_balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET total_balance = EXCLUDED.total_balance, updated_at = EXCLUDED.updated_at
		RETURNING updated_at`

	if err := s.db.QueryRowContext(ctx, query, d.UserID, d.TotalBalance).Scan(&d.UpdatedAt); err != nil {
		return fmt.Errorf("upsert dashboard data: %w", mapError(err))
	}
	return nil
}

func (s *Postgres) UpsertAccountDetails(ctx context.Context, d *models.AccountDetails) error {
	query := `
		INSERT INTO account_details (user_id, account_limit, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET account_limit = EXCLUDED.account_limit, updated_at = EXCLUDED.updated_at
		RETURNING updated_at`

	if err := s.db.QueryRowContext(ctx, query, d.UserID, d.AccountLimit).Scan(&d.UpdatedAt); err != nil {
		return fmt.Errorf("upsert account details: %w", mapError(err))
	}
	return nil
}

func (s *Postgres) CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (name, type, details, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, pm.Name, pm.Type, pm.Details, pm.Active).Scan(&pm.ID, &pm.CreatedAt)
	if err != nil {
		return fmt.Errorf("create payment method: %w", mapError(err))
	}
	return nil
}

func (s *Postgres) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, details, active, created_at FROM payment_methods WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", mapError(err))
	}
	defer rows.Close()

	methods := []models.PaymentMethod{}
	for rows.Next() {
		var pm models.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.Name, &pm.Type, &pm.Details, &pm.Active, &pm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

func (s *Postgres) CreateBankAccount(ctx context.Context, ba *models.BankAccount) error {
	query := `
		INSERT INTO bank_accounts (user_id, bank_name, account_number, account_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, ba.UserID, ba.BankName, ba.AccountNumber, ba.AccountName).
		Scan(&ba.ID, &ba.CreatedAt)
	if err != nil {
		return fmt.Errorf("create bank account: %w", mapError(err))
	}
	return nil
}

func (s *Postgres) ListBankAccounts(ctx context.Context, userID int64) ([]models.BankAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, bank_name, account_number, account_name, created_at
		FROM bank_accounts WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bank accounts: %w", mapError(err))
	}
	defer rows.Close()

	accounts := []models.BankAccount{}
	for rows.Next() {
		var ba models.BankAccount
		if err := rows.Scan(&ba.ID, &ba.UserID, &ba.BankName, &ba.AccountNumber, &ba.AccountName, &ba.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bank account: %w", err)
		}
		accounts = append(accounts, ba)
	}
	return accounts, rows.Err()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
