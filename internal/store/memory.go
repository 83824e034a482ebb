package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// Memory is an in-process Store. A single mutex makes every method atomic,
// which gives it the same guarantees the Postgres store gets from SQL
// transactions and constraints.
type Memory struct {
	mu sync.Mutex

	users          map[int64]*models.User
	transactions   map[int64]*models.Transaction
	referrals      map[int64]*models.Referral
	dashboard      map[int64]*models.DashboardData
	accountDetails map[int64]*models.AccountDetails
	paymentMethods map[int64]*models.PaymentMethod
	bankAccounts   map[int64]*models.BankAccount

	nextUserID        int64
	nextTransactionID int64
	nextReferralID    int64
	nextPaymentID     int64
	nextBankAccountID int64

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:             make(map[int64]*models.User),
		transactions:      make(map[int64]*models.Transaction),
		referrals:         make(map[int64]*models.Referral),
		dashboard:         make(map[int64]*models.DashboardData),
		accountDetails:    make(map[int64]*models.AccountDetails),
		paymentMethods:    make(map[int64]*models.PaymentMethod),
		bankAccounts:      make(map[int64]*models.BankAccount),
		nextUserID:        1,
		nextTransactionID: 1,
		nextReferralID:    1,
		nextPaymentID:     1,
		nextBankAccountID: 1,
		now:               time.Now,
	}
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.ReferralCode != nil {
		code := *u.ReferralCode
		c.ReferralCode = &code
	}
	if u.ReferredBy != nil {
		by := *u.ReferredBy
		c.ReferredBy = &by
	}
	return &c
}

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("create user: %w: users_email_key", ErrDuplicate)
		}
	}

	u.ID = m.nextUserID
	u.CreatedAt = m.now()
	u.BTCBalance, u.USDTBalance, u.ETHBalance = decimal.Zero, decimal.Zero, decimal.Zero
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	m.nextUserID++
	m.users[u.ID] = copyUser(u)
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("get user %d: %w", id, ErrNotFound)
	}
	return copyUser(u), nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", ErrNotFound)
}

func (m *Memory) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.ReferralCode != nil && *u.ReferralCode == code {
			return copyUser(u), nil
		}
	}
	return nil, fmt.Errorf("get user by referral code: %w", ErrNotFound)
}

func (m *Memory) ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	users := []models.User{}
	if offset < 0 || offset >= len(ids) || limit <= 0 {
		return users, int64(len(ids)), nil
	}
	end := len(ids)
	if limit < end-offset {
		end = offset + limit
	}
	for _, id := range ids[offset:end] {
		users = append(users, *copyUser(m.users[id]))
	}
	return users, int64(len(ids)), nil
}

func (m *Memory) CreditBalance(ctx context.Context, userID int64, asset models.AssetKind, amount decimal.Decimal) (*models.User, error) {
	if !asset.Valid() {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("credit balance: %w", ErrNotFound)
	}
	next := u.Balance(asset).Add(amount)
	if next.IsNegative() {
		return nil, fmt.Errorf("credit balance: %w: %s_balance_non_negative", ErrCheckViolation, asset)
	}
	u.SetBalance(asset, next)
	return copyUser(u), nil
}

func (m *Memory) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	if !t.Asset.Valid() {
		return fmt.Errorf("unknown asset %q", t.Asset)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[t.UserID]
	if !ok {
		return fmt.Errorf("user %d: %w", t.UserID, ErrNotFound)
	}
	for _, existing := range m.transactions {
		if t.TransactionID != "" && existing.TransactionID == t.TransactionID {
			return fmt.Errorf("record transaction: %w: transactions_transaction_id_key", ErrDuplicate)
		}
	}

	balance := u.Balance(t.Asset)
	if balance.LessThan(t.Amount) {
		return ErrInsufficientBalance
	}
	u.SetBalance(t.Asset, balance.Sub(t.Amount))

	t.ID = m.nextTransactionID
	t.Date = m.now()
	t.SetAsset(t.Asset)
	m.nextTransactionID++

	stored := *t
	m.transactions[t.ID] = &stored
	return nil
}

func (m *Memory) ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transactions := []models.Transaction{}
	for _, t := range m.transactions {
		if t.UserID == userID {
			transactions = append(transactions, *t)
		}
	}
	sort.Slice(transactions, func(i, j int) bool {
		if !transactions[i].Date.Equal(transactions[j].Date) {
			return transactions[i].Date.After(transactions[j].Date)
		}
		return transactions[i].ID > transactions[j].ID
	})
	return transactions, nil
}

func (m *Memory) UpdateTransactionStatus(ctx context.Context, id int64, status string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[id]
	if !ok {
		return nil, fmt.Errorf("update transaction %d: %w", id, ErrNotFound)
	}
	t.Status = status
	updated := *t
	return &updated, nil
}

func (m *Memory) SetReferralCode(ctx context.Context, userID int64, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return "", fmt.Errorf("set referral code: %w", ErrNotFound)
	}
	if u.ReferralCode != nil {
		return *u.ReferralCode, nil
	}
	for _, other := range m.users {
		if other.ReferralCode != nil && *other.ReferralCode == code {
			return "", fmt.Errorf("set referral code: %w: users_referral_code_key", ErrDuplicate)
		}
	}
	stored := code
	u.ReferralCode = &stored
	return stored, nil
}

func (m *Memory) ApplyReferral(ctx context.Context, r *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[r.ReferredUserID]
	if !ok {
		return fmt.Errorf("user %d: %w", r.ReferredUserID, ErrNotFound)
	}
	if _, ok := m.users[r.ReferrerID]; !ok {
		return fmt.Errorf("link referral: %w: users_referred_by_fkey", ErrNotFound)
	}
	if u.ReferredBy != nil {
		return ErrAlreadyReferred
	}
	for _, existing := range m.referrals {
		if existing.ReferredUserID == r.ReferredUserID {
			return ErrAlreadyReferred
		}
	}
	if r.ReferrerID == r.ReferredUserID {
		return fmt.Errorf("link referral: %w: not_self_referred", ErrCheckViolation)
	}

	referrer := r.ReferrerID
	u.ReferredBy = &referrer

	r.ID = m.nextReferralID
	r.CreatedAt = m.now()
	m.nextReferralID++
	stored := *r
	m.referrals[r.ID] = &stored
	return nil
}

func (m *Memory) ReferralStats(ctx context.Context, referrerID int64) (int64, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	total := decimal.Zero
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID {
			count++
			total = total.Add(r.RewardAmount)
		}
	}
	return count, total, nil
}

func (m *Memory) GetDashboardData(ctx context.Context, userID int64) (*models.DashboardData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.dashboard[userID]
	if !ok {
		return nil, fmt.Errorf("get dashboard data: %w", ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (m *Memory) GetAccountDetails(ctx context.Context, userID int64) (*models.AccountDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.accountDetails[userID]
	if !ok {
		return nil, fmt.Errorf("get account details: %w", ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (m *Memory) UpsertDashboardData(ctx context.Context, d *models.DashboardData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[d.UserID]; !ok {
		return fmt.Errorf("upsert dashboard data: %w: dashboard_data_user_id_fkey", ErrNotFound)
	}
	d.UpdatedAt = m.now()
	c := *d
	m.dashboard[d.UserID] = &c
	return nil
}

func (m *Memory) UpsertAccountDetails(ctx context.Context, d *models.AccountDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[d.UserID]; !ok {
		return fmt.Errorf("upsert account details: %w: account_details_user_id_fkey", ErrNotFound)
	}
	d.UpdatedAt = m.now()
	c := *d
	m.accountDetails[d.UserID] = &c
	return nil
}

func (m *Memory) CreatePaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pm.ID = m.nextPaymentID
	pm.CreatedAt = m.now()
	m.nextPaymentID++
	c := *pm
	m.paymentMethods[pm.ID] = &c
	return nil
}

func (m *Memory) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	methods := []models.PaymentMethod{}
	for _, pm := range m.paymentMethods {
		if pm.Active {
			methods = append(methods, *pm)
		}
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].ID < methods[j].ID })
	return methods, nil
}

func (m *Memory) CreateBankAccount(ctx context.Context, ba *models.BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[ba.UserID]; !ok {
		return fmt.Errorf("create bank account: %w: bank_accounts_user_id_fkey", ErrNotFound)
	}
	ba.ID = m.nextBankAccountID
	ba.CreatedAt = m.now()
	m.nextBankAccountID++
	c := *ba
	m.bankAccounts[ba.ID] = &c
	return nil
}

func (m *Memory) ListBankAccounts(ctx context.Context, userID int64) ([]models.BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := []models.BankAccount{}
	for _, ba := range m.bankAccounts {
		if ba.UserID == userID {
			accounts = append(accounts, *ba)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// CountTransactions and CountReferrals let tests assert on writes.
func (m *Memory) CountTransactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *Memory) CountReferrals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.referrals)
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
