package accounts

import (
	"sync"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// lockTable tracks which accounts are held by in-flight executions.
// readers[id] > 0 means shared holders; writers[id] means an exclusive holder.
type lockTable struct {
	mu      sync.Mutex
	cond    *sync.Cond
	writers map[txn.Identifier]bool
	readers map[txn.Identifier]int
}

func newLockTable() *lockTable {
	t := &lockTable{
		writers: make(map[txn.Identifier]bool),
		readers: make(map[txn.Identifier]int),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *lockTable) available(writable, readonly []txn.Identifier) bool {
	for _, id := range writable {
		if t.writers[id] || t.readers[id] > 0 {
			return false
		}
	}
	for _, id := range readonly {
		if t.writers[id] {
			return false
		}
	}
	return true
}

func (t *lockTable) acquire(writable, readonly []txn.Identifier) func() {
	t.mu.Lock()
	for !t.available(writable, readonly) {
		t.cond.Wait()
	}
	for _, id := range writable {
		t.writers[id] = true
	}
	for _, id := range readonly {
		t.readers[id]++
	}
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			for _, id := range writable {
				delete(t.writers, id)
			}
			for _, id := range readonly {
				if t.readers[id]--; t.readers[id] <= 0 {
					delete(t.readers, id)
				}
			}
			t.mu.Unlock()
			t.cond.Broadcast()
		})
	}
}
