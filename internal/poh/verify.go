package poh

import (
	"fmt"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// MismatchError identifies the first entry whose stored hash does not match
// the replayed chain.
type MismatchError struct {
	Index    int
	Expected txn.Hash
	Stored   txn.Hash
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("chain mismatch at entry %d: expected %s, stored %s", e.Index, e.Expected, e.Stored)
}

// Verify replays entries from start and returns a *MismatchError for the
// first entry whose hash differs from the recomputed value. It has no side
// effects and can be run by any auditor holding the log.
func Verify(start txn.Hash, entries []Entry) error {
	_, err := verifyFrom(start, entries, 0)
	return err
}

// Checkpoint marks a verified prefix of the log: Index entries replayed,
// ending at Hash.
type Checkpoint struct {
	Index int
	Hash  txn.Hash
}

// VerifyFrom verifies entries that directly follow cp and returns the
// checkpoint after the last verified entry. Mismatch indices are absolute.
func VerifyFrom(cp Checkpoint, entries []Entry) (Checkpoint, error) {
	h, err := verifyFrom(cp.Hash, entries, cp.Index)
	if err != nil {
		return cp, err
	}
	return Checkpoint{Index: cp.Index + len(entries), Hash: h}, nil
}

func verifyFrom(start txn.Hash, entries []Entry, offset int) (txn.Hash, error) {
	h := start
	for i, e := range entries {
		h = advance(h, e)
		if h != e.Hash {
			return h, &MismatchError{Index: offset + i, Expected: h, Stored: e.Hash}
		}
	}
	return h, nil
}
