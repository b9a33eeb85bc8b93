// Package accounts holds the canonical account state of the ledger.
//
// Every account, including programs, is a record in the same Store; there is
// no separate program catalogue. The Store is mutated only through Commit,
// which the execution engine calls once per successful transaction.
package accounts

import (
	"bytes"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// Account is one record in the Store.
type Account struct {
	Balance    uint64         `json:"balance"`
	Data       []byte         `json:"data"`
	Owner      txn.Identifier `json:"owner"`
	Executable bool           `json:"executable"`
}

// New returns a data-less, non-executable account.
func New(balance uint64, owner txn.Identifier) Account {
	return Account{Balance: balance, Owner: owner}
}

// Clone returns a deep copy of a.
func (a Account) Clone() Account {
	cp := a
	if a.Data != nil {
		cp.Data = append([]byte(nil), a.Data...)
	}
	return cp
}

// Equal reports whether a and b hold identical state. A nil and an empty
// data buffer compare equal.
func (a Account) Equal(b Account) bool {
	return a.Balance == b.Balance &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// InUse reports whether the account holds lamports or data.
func (a Account) InUse() bool {
	return a.Balance > 0 || len(a.Data) > 0
}

// KeyedAccount is one instruction account resolved from a transaction's
// working set, together with the per-transaction flags a program needs for
// its authority checks. Account points into the working set, so two
// KeyedAccounts for the same key share state.
type KeyedAccount struct {
	Key      txn.Identifier
	Account  *Account
	Exists   bool
	Signer   bool
	Writable bool
}
