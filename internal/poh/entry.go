package poh

import (
	"crypto/sha256"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// Entry is one append-only record of the chain.
type Entry struct {
	// HashCount is the number of hash iterations since the previous entry:
	// hashes_per_tick for a tick, 1 for a record.
	HashCount    uint64             `json:"hash_count"`
	Hash         txn.Hash           `json:"hash"`
	Transactions []*txn.Transaction `json:"transactions"`
}

// IsTick reports whether the entry carries no transactions.
func (e Entry) IsTick() bool { return len(e.Transactions) == 0 }

// GenesisHash derives the chain's starting hash from a seed.
func GenesisHash(seed string) txn.Hash {
	return sha256.Sum256([]byte(seed))
}

// HashTransactions returns the digest mixed into the chain for a batch:
// SHA-256 over every signature of every transaction, in order.
func HashTransactions(txs []*txn.Transaction) txn.Hash {
	h := sha256.New()
	for _, tx := range txs {
		if tx == nil {
			continue
		}
		h.Write(tx.SignatureBytes())
	}
	var out txn.Hash
	h.Sum(out[:0])
	return out
}

func next(h txn.Hash) txn.Hash {
	return sha256.Sum256(h[:])
}

func mix(h, digest txn.Hash) txn.Hash {
	var buf [2 * txn.HashSize]byte
	copy(buf[:txn.HashSize], h[:])
	copy(buf[txn.HashSize:], digest[:])
	return sha256.Sum256(buf[:])
}

// advance computes the hash an entry should carry when replayed from h.
func advance(h txn.Hash, e Entry) txn.Hash {
	if e.IsTick() {
		for i := uint64(0); i < e.HashCount; i++ {
			h = next(h)
		}
		return h
	}
	for i := uint64(1); i < e.HashCount; i++ {
		h = next(h)
	}
	return mix(h, HashTransactions(e.Transactions))
}
