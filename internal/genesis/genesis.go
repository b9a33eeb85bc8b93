// Package genesis derives the node's pre-funded accounts. Account n
// (1-based) uses the ed25519 key whose 32-byte seed is n repeated, so every
// node and client derives the same keys without sharing secrets. These keys
// are for development networks only.
package genesis

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/jmerrifield20/pohledger/internal/accounts"
	"github.com/jmerrifield20/pohledger/internal/system"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// ErrUnknownAccount is returned for an account number outside the keyring.
var ErrUnknownAccount = errors.New("unknown genesis account")

// MaxAccounts is the largest keyring, bounded by the one-byte seed.
const MaxAccounts = 255

// Keypair is one genesis account's identity.
type Keypair struct {
	Number  uint8
	ID      txn.Identifier
	Private ed25519.PrivateKey
}

// Keyring holds the genesis keypairs in account-number order.
type Keyring struct {
	pairs []Keypair
	byID  map[txn.Identifier]ed25519.PrivateKey
}

// NewKeyring derives n keypairs, numbered 1..n.
func NewKeyring(n int) (*Keyring, error) {
	if n < 1 || n > MaxAccounts {
		return nil, fmt.Errorf("genesis account count %d outside 1..%d", n, MaxAccounts)
	}
	k := &Keyring{byID: make(map[txn.Identifier]ed25519.PrivateKey, n)}
	for b := 1; b <= n; b++ {
		kp := Derive(uint8(b))
		k.pairs = append(k.pairs, kp)
		k.byID[kp.ID] = kp.Private
	}
	return k, nil
}

// Derive returns the keypair for account number b.
func Derive(b uint8) Keypair {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var id txn.Identifier
	copy(id[:], priv.Public().(ed25519.PublicKey))
	return Keypair{Number: b, ID: id, Private: priv}
}

// Lookup returns the keypair for account number b.
func (k *Keyring) Lookup(b uint8) (Keypair, error) {
	if b < 1 || int(b) > len(k.pairs) {
		return Keypair{}, fmt.Errorf("%w: %d", ErrUnknownAccount, b)
	}
	return k.pairs[b-1], nil
}

// Pairs returns every keypair in account-number order.
func (k *Keyring) Pairs() []Keypair {
	return append([]Keypair(nil), k.pairs...)
}

// Signers returns the identifier-to-private-key map used for signing.
func (k *Keyring) Signers() map[txn.Identifier]ed25519.PrivateKey {
	out := make(map[txn.Identifier]ed25519.PrivateKey, len(k.byID))
	for id, priv := range k.byID {
		out[id] = priv
	}
	return out
}

// Accounts returns the genesis state: every keypair funded with lamports and
// owned by the System Program.
func (k *Keyring) Accounts(lamports uint64) map[txn.Identifier]accounts.Account {
	out := make(map[txn.Identifier]accounts.Account, len(k.pairs))
	for _, kp := range k.pairs {
		out[kp.ID] = accounts.New(lamports, system.ProgramID)
	}
	return out
}
