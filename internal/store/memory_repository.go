package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/finance-service/internal/domain"
)

// MemoryRepository is an in-process Repository. It keeps the same ownership,
// uniqueness and cascade rules as the PostgreSQL schema and serves local runs
// without DATABASE_URL as well as tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	seq          map[uuid.UUID]int64
	next         int64
	now          func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[uuid.UUID]domain.Account),
		transactions: make(map[uuid.UUID]domain.Transaction),
		seq:          make(map[uuid.UUID]int64),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepository) stamp(id uuid.UUID) time.Time {
	m.next++
	m.seq[id] = m.next
	return m.now()
}

func (m *MemoryRepository) nameTaken(ownerID, name string, except uuid.UUID) bool {
	normalized := domain.NormalizeAccountName(name)
	for id, a := range m.accounts {
		if id != except && a.OwnerID == ownerID && domain.NormalizeAccountName(a.Name) == normalized {
			return true
		}
	}
	return false
}

// blank mirrors the schema's btrim(...) <> '' checks.
func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// clearableLink applies an update to an external link; "" unlinks.
func clearableLink(link string) *string {
	if link == "" {
		return nil
	}
	return &link
}

func (m *MemoryRepository) ownedAccount(id uuid.UUID, ownerID string) (domain.Account, bool) {
	a, ok := m.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return domain.Account{}, false
	}
	return a, true
}

func (m *MemoryRepository) ListAccounts(_ context.Context, ownerID string) ([]domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := []domain.Account{}
	for _, a := range m.accounts {
		if a.OwnerID == ownerID {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return m.seq[accounts[i].ID] < m.seq[accounts[j].ID]
	})
	return accounts, nil
}

func (m *MemoryRepository) CreateAccount(_ context.Context, account *domain.Account) (*domain.Account, error) {
	if blank(account.Name) || blank(account.Type) {
		return nil, ErrConstraintViolation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTaken(account.OwnerID, account.Name, uuid.Nil) {
		return nil, ErrDuplicateAccountName
	}
	created := *account
	created.CreatedAt = m.stamp(created.ID)
	created.UpdatedAt = created.CreatedAt
	m.accounts[created.ID] = created
	return &created, nil
}

func (m *MemoryRepository) UpdateAccount(_ context.Context, id uuid.UUID, ownerID string, input domain.UpdateAccountInput) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.ownedAccount(id, ownerID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	if (input.Name != nil && blank(*input.Name)) || (input.Type != nil && blank(*input.Type)) {
		return nil, ErrConstraintViolation
	}
	if input.Name != nil {
		if m.nameTaken(ownerID, *input.Name, id) {
			return nil, ErrDuplicateAccountName
		}
		a.Name = *input.Name
	}
	if input.Type != nil {
		a.Type = *input.Type
	}
	if input.ExternalLinkID != nil {
		a.ExternalLinkID = clearableLink(*input.ExternalLinkID)
	}
	a.UpdatedAt = m.now()
	m.accounts[id] = a
	return &a, nil
}

func (m *MemoryRepository) DeleteAccount(_ context.Context, id uuid.UUID, ownerID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.ownedAccount(id, ownerID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	m.removeAccount(id)
	return &a, nil
}

func (m *MemoryRepository) DeleteAccountsByOwner(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, a := range m.accounts {
		if a.OwnerID == ownerID {
			m.removeAccount(id)
			removed++
		}
	}
	return removed, nil
}

// removeAccount deletes an account and cascades to its transactions. Callers hold mu.
func (m *MemoryRepository) removeAccount(id uuid.UUID) {
	delete(m.accounts, id)
	delete(m.seq, id)
	for txID, t := range m.transactions {
		if t.AccountID == id {
			delete(m.transactions, txID)
			delete(m.seq, txID)
		}
	}
}

func (m *MemoryRepository) ListTransactions(_ context.Context, ownerID string, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transactions := []domain.Transaction{}
	for _, t := range m.transactions {
		if _, ok := m.ownedAccount(t.AccountID, ownerID); !ok {
			continue
		}
		if filter.AccountID != nil && t.AccountID != *filter.AccountID {
			continue
		}
		transactions = append(transactions, t)
	}
	sort.Slice(transactions, func(i, j int) bool {
		a, b := transactions[i], transactions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return m.seq[a.ID] > m.seq[b.ID]
	})
	return transactions, nil
}

func (m *MemoryRepository) CreateTransaction(_ context.Context, ownerID string, transaction *domain.Transaction) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ownedAccount(transaction.AccountID, ownerID); !ok {
		return nil, ErrAccountNotFound
	}
	created := *transaction
	created.Amount = domain.RoundAmount(created.Amount)
	if blank(created.Name) || !domain.AmountInRange(created.Amount) {
		return nil, ErrConstraintViolation
	}
	created.CreatedAt = m.stamp(created.ID)
	created.UpdatedAt = created.CreatedAt
	m.transactions[created.ID] = created
	return &created, nil
}

func (m *MemoryRepository) ownedTransaction(id uuid.UUID, ownerID string) (domain.Transaction, bool) {
	t, ok := m.transactions[id]
	if !ok {
		return domain.Transaction{}, false
	}
	if _, owned := m.ownedAccount(t.AccountID, ownerID); !owned {
		return domain.Transaction{}, false
	}
	return t, true
}

func (m *MemoryRepository) UpdateTransaction(_ context.Context, id uuid.UUID, ownerID string, input domain.UpdateTransactionInput) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.ownedTransaction(id, ownerID)
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if input.AccountID != nil {
		if _, owned := m.ownedAccount(*input.AccountID, ownerID); !owned {
			return nil, ErrTransactionNotFound
		}
		t.AccountID = *input.AccountID
	}
	if input.Name != nil {
		if blank(*input.Name) {
			return nil, ErrConstraintViolation
		}
		t.Name = *input.Name
	}
	if input.Amount != nil {
		amount := domain.RoundAmount(*input.Amount)
		if !domain.AmountInRange(amount) {
			return nil, ErrConstraintViolation
		}
		t.Amount = amount
	}
	if input.Date != nil {
		t.Date = *input.Date
	}
	if input.Type != nil {
		t.Type = *input.Type
	}
	if input.Category != nil {
		t.Category = *input.Category
	}
	if input.ExternalLinkID != nil {
		t.ExternalLinkID = clearableLink(*input.ExternalLinkID)
	}
	t.UpdatedAt = m.now()
	m.transactions[id] = t
	return &t, nil
}

func (m *MemoryRepository) DeleteTransaction(_ context.Context, id uuid.UUID, ownerID string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.ownedTransaction(id, ownerID)
	if !ok {
		return nil, ErrTransactionNotFound
	}
	delete(m.transactions, id)
	delete(m.seq, id)
	return &t, nil
}
