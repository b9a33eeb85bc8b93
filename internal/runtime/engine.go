package runtime

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/internal/accounts"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// Outcome describes a committed transaction.
type Outcome struct {
	// Signatures are the transaction's signatures, in order, for hash mixing.
	Signatures []txn.Signature
	// Modified lists the identifiers whose state changed, in byte order.
	Modified []txn.Identifier
}

// CommitHook runs after a successful commit while the transaction's account
// locks are still held. Hooks therefore observe commits of conflicting
// transactions in the order they were applied.
type CommitHook func(*Outcome)

// Engine executes transactions against an account store.
type Engine struct {
	registry *Registry
	logger   *zap.Logger
}

// NewEngine creates an Engine dispatching through registry.
func NewEngine(registry *Registry, logger *zap.Logger) *Engine {
	return &Engine{registry: registry, logger: logger}
}

// workingSet is the transaction-private copy of every account it references.
type workingSet struct {
	accounts map[txn.Identifier]*accounts.Account
	exists   map[txn.Identifier]bool
	dirty    map[txn.Identifier]bool
}

func loadWorkingSet(store *accounts.Store, keys []txn.Identifier) *workingSet {
	loaded := store.LoadMany(keys)
	ws := &workingSet{
		accounts: make(map[txn.Identifier]*accounts.Account, len(keys)),
		exists:   make(map[txn.Identifier]bool, len(keys)),
		dirty:    make(map[txn.Identifier]bool),
	}
	for id, a := range loaded {
		if a == nil {
			ws.accounts[id] = &accounts.Account{}
			continue
		}
		ws.accounts[id] = a
		ws.exists[id] = true
	}
	return ws
}

// commitSet returns only the accounts an instruction actually changed.
func (ws *workingSet) commitSet() (map[txn.Identifier]*accounts.Account, []txn.Identifier) {
	set := make(map[txn.Identifier]*accounts.Account, len(ws.dirty))
	ids := make([]txn.Identifier, 0, len(ws.dirty))
	for id := range ws.dirty {
		set[id] = ws.accounts[id]
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return set, ids
}

// Execute runs every instruction of tx in order against a working set loaded
// from store. The working set is committed only if all instructions succeed;
// otherwise store is left untouched and the error identifies the failing
// instruction through *InstructionError.
//
// Signatures are not checked here. Callers verify them before Execute.
func (e *Engine) Execute(tx *txn.Transaction, store *accounts.Store, hooks ...CommitHook) (*Outcome, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	msg := &tx.Message
	if err := msg.Sanitize(); err != nil {
		return nil, err
	}

	writable, readonly := partitionKeys(msg)
	unlock := store.LockAccounts(writable, readonly)
	defer unlock()

	ws := loadWorkingSet(store, msg.AccountKeys)
	for i := range msg.Instructions {
		if err := e.executeInstruction(msg, &msg.Instructions[i], ws); err != nil {
			ierr := &InstructionError{Index: i, Err: err}
			e.logger.Debug("transaction aborted",
				zap.Int("instruction", i),
				zap.Int("signatures", len(tx.Signatures)),
				zap.Error(err),
			)
			return nil, ierr
		}
	}

	set, modified := ws.commitSet()
	if err := store.Commit(set); err != nil {
		return nil, fmt.Errorf("commit working set: %w", err)
	}

	out := &Outcome{
		Signatures: append([]txn.Signature(nil), tx.Signatures...),
		Modified:   modified,
	}
	for _, hook := range hooks {
		hook(out)
	}
	return out, nil
}

func (e *Engine) executeInstruction(msg *txn.Message, ix *txn.CompiledInstruction, ws *workingSet) error {
	if int(ix.ProgramIndex) >= len(msg.AccountKeys) {
		return fmt.Errorf("%w: program index %d", ErrInvalidAccountIndex, ix.ProgramIndex)
	}
	programID := msg.AccountKeys[ix.ProgramIndex]

	prog, ok := e.registry.Lookup(programID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	if prog.Kind != KindNative || prog.Handler == nil {
		return fmt.Errorf("%w: %s is a %s program", ErrUnknownProgram, programID, prog.Kind)
	}

	keyed := make([]*accounts.KeyedAccount, len(ix.AccountIndices))
	before := make(map[txn.Identifier]accounts.Account, len(ix.AccountIndices))
	for pos, idx := range ix.AccountIndices {
		if int(idx) >= len(msg.AccountKeys) {
			return fmt.Errorf("%w: account %d references index %d", ErrInvalidAccountIndex, pos, idx)
		}
		key := msg.AccountKeys[idx]
		keyed[pos] = &accounts.KeyedAccount{
			Key:      key,
			Account:  ws.accounts[key],
			Exists:   ws.exists[key],
			Signer:   msg.IsSigner(int(idx)),
			Writable: msg.IsWritable(int(idx)),
		}
		if _, seen := before[key]; !seen {
			before[key] = ws.accounts[key].Clone()
		}
	}

	if err := prog.Handler(ix.Data, keyed); err != nil {
		return err
	}

	for _, ka := range keyed {
		if ka.Account.Equal(before[ka.Key]) {
			continue
		}
		if !ka.Writable {
			return fmt.Errorf("%w: %s", ErrReadonlyAccountModified, ka.Key.Short())
		}
		ws.dirty[ka.Key] = true
		ws.exists[ka.Key] = true
	}
	return nil
}

// partitionKeys splits account_keys into the sets locked exclusively and
// shared for the duration of one execution.
func partitionKeys(msg *txn.Message) (writable, readonly []txn.Identifier) {
	for i, key := range msg.AccountKeys {
		if msg.IsWritable(i) {
			writable = append(writable, key)
		} else {
			readonly = append(readonly, key)
		}
	}
	return writable, readonly
}
