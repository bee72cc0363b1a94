// Package memory provides an in-process store used for development and tests.
// A single mutex guards every map, which makes each write method an atomic
// unit: the transaction record and its balance effects commit together.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/ledger"
)

type Store struct {
	mu sync.RWMutex

	users        map[uuid.UUID]ledger.User
	accounts     map[uuid.UUID]ledger.Account
	transactions map[uuid.UUID]ledger.Transaction

	// seq records insertion order so equal-date listings stay stable.
	seq     map[uuid.UUID]uint64
	nextSeq uint64

	idem map[string]idemRecord
}

type idemRecord struct {
	body   []byte
	status int
}

func New() *Store {
	return &Store{
		users:        make(map[uuid.UUID]ledger.User),
		accounts:     make(map[uuid.UUID]ledger.Account),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		seq:          make(map[uuid.UUID]uint64),
		idem:         make(map[string]idemRecord),
	}
}

// Ping reports readiness. The memory store is always ready.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Reset drops all data. Test helper.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[uuid.UUID]ledger.User)
	s.accounts = make(map[uuid.UUID]ledger.Account)
	s.transactions = make(map[uuid.UUID]ledger.Transaction)
	s.seq = make(map[uuid.UUID]uint64)
	s.nextSeq = 0
	s.idem = make(map[string]idemRecord)
}

// Get returns a stored idempotent response, if any.
func (s *Store) Get(ctx context.Context, key string) (body []byte, status int, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idem[key]
	if !ok {
		return nil, 0, false, nil
	}
	return rec.body, rec.status, true, nil
}

// Set stores an idempotent response under key.
func (s *Store) Set(ctx context.Context, key string, body []byte, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idem[key] = idemRecord{body: body, status: status}
	return nil
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u ledger.User) (ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if _, ok := s.users[u.ID]; ok {
		return ledger.User{}, errs.ErrConflict
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return ledger.User{}, errs.ErrNotFound
	}
	return u, nil
}

func (s *Store) FamilyMembers(ctx context.Context, familyID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for id, u := range s.users {
		if u.FamilyID == familyID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// --- accounts ---

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return ledger.Account{}, errs.ErrConflict
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *Store) AccountsByUser(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[a.ID]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	// Balance is ledger-owned; keep whatever effects have accumulated.
	a.BalanceMinor = cur.BalanceMinor
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return errs.ErrNotFound
	}
	// Same guarantee as the foreign key in the postgres store: the reference
	// check and the delete share one lock acquisition, so a concurrent
	// transaction create cannot slip in between.
	for _, tx := range s.transactions {
		if tx.SourceAccountID == id || tx.DestinationAccountID == id {
			return errs.ErrConflict
		}
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) HasTransactions(ctx context.Context, accountID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.transactions {
		if tx.SourceAccountID == accountID || tx.DestinationAccountID == accountID {
			return true, nil
		}
	}
	return false, nil
}

// --- transactions ---

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return tx, nil
}

func (s *Store) TransactionsByUsers(ctx context.Context, userIDs []uuid.UUID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		want[id] = struct{}{}
	}
	var out []ledger.Transaction
	for _, tx := range s.transactions {
		if _, ok := want[tx.UserID]; ok {
			out = append(out, tx)
		}
	}
	s.sortForListing(out)
	return out, nil
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Transaction
	for _, tx := range s.transactions {
		if tx.SourceAccountID == accountID || tx.DestinationAccountID == accountID {
			out = append(out, tx)
		}
	}
	s.sortForListing(out)
	return out, nil
}

// sortForListing orders by date descending, insertion order for equal dates.
// Callers must hold at least the read lock.
func (s *Store) sortForListing(txs []ledger.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return s.seq[txs[i].ID] < s.seq[txs[j].ID]
	})
}

// applyEffects mutates balances. Callers must hold the write lock and must
// have verified every referenced account exists.
func (s *Store) applyEffects(effects []ledger.BalanceEffect) {
	for _, e := range effects {
		a := s.accounts[e.AccountID]
		a.BalanceMinor += e.DeltaMinor
		s.accounts[e.AccountID] = a
	}
}

// checkEffects verifies all effect targets exist before anything mutates.
func (s *Store) checkEffects(sets ...[]ledger.BalanceEffect) error {
	for _, set := range sets {
		for _, e := range set {
			if _, ok := s.accounts[e.AccountID]; !ok {
				return errs.ErrNotFound
			}
		}
	}
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx ledger.Transaction, effects []ledger.BalanceEffect) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; ok {
		return ledger.Transaction{}, errs.ErrConflict
	}
	if err := s.checkEffects(effects); err != nil {
		return ledger.Transaction{}, err
	}
	s.transactions[tx.ID] = tx
	s.seq[tx.ID] = s.nextSeq
	s.nextSeq++
	s.applyEffects(effects)
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx ledger.Transaction, undo, apply []ledger.BalanceEffect) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; !ok {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	if err := s.checkEffects(undo, apply); err != nil {
		return ledger.Transaction{}, err
	}
	s.transactions[tx.ID] = tx
	s.applyEffects(undo)
	s.applyEffects(apply)
	return tx, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id uuid.UUID, undo []ledger.BalanceEffect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[id]; !ok {
		return errs.ErrNotFound
	}
	if err := s.checkEffects(undo); err != nil {
		return err
	}
	delete(s.transactions, id)
	delete(s.seq, id)
	s.applyEffects(undo)
	return nil
}
