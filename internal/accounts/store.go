package accounts

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// ErrNilAccount is returned by Commit when the working set contains a nil
// record. The store is left untouched.
var ErrNilAccount = errors.New("nil account in commit set")

// Store is the in-memory, thread-safe account state. Readers never observe a
// partially applied commit.
type Store struct {
	mu       sync.RWMutex
	accounts map[txn.Identifier]*Account
	locks    *lockTable
}

// NewStore creates a Store seeded with the genesis accounts.
func NewStore(genesis map[txn.Identifier]Account) *Store {
	s := &Store{
		accounts: make(map[txn.Identifier]*Account, len(genesis)),
		locks:    newLockTable(),
	}
	for id, acct := range genesis {
		cp := acct.Clone()
		s.accounts[id] = &cp
	}
	return s
}

// Get returns a copy of the account at id.
func (s *Store) Get(id txn.Identifier) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, false
	}
	return a.Clone(), true
}

// LoadMany returns copies of the accounts at ids. Every requested id appears
// in the result; absent accounts map to nil.
func (s *Store) LoadMany(ids []txn.Identifier) map[txn.Identifier]*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[txn.Identifier]*Account, len(ids))
	for _, id := range ids {
		a, ok := s.accounts[id]
		if !ok {
			out[id] = nil
			continue
		}
		cp := a.Clone()
		out[id] = &cp
	}
	return out
}

// Commit replaces every entry in set under a single write lock. Either all
// entries are applied or, if set is invalid, none are.
func (s *Store) Commit(set map[txn.Identifier]*Account) error {
	for id, a := range set {
		if a == nil {
			return fmt.Errorf("commit %s: %w", id.Short(), ErrNilAccount)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range set {
		cp := a.Clone()
		s.accounts[id] = &cp
	}
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Snapshot returns a deep copy of the whole store.
func (s *Store) Snapshot() map[txn.Identifier]Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[txn.Identifier]Account, len(s.accounts))
	for id, a := range s.accounts {
		out[id] = a.Clone()
	}
	return out
}

// Keys returns every stored identifier in byte order.
func (s *Store) Keys() []txn.Identifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]txn.Identifier, 0, len(s.accounts))
	for id := range s.accounts {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}

// LockAccounts blocks until the caller holds exclusive access to every key in
// writable and shared access to every key in readonly, then returns the
// release function. Keys are acquired all at once, so callers cannot
// deadlock against each other.
func (s *Store) LockAccounts(writable, readonly []txn.Identifier) (unlock func()) {
	return s.locks.acquire(writable, readonly)
}
