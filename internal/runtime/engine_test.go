package runtime_test

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/internal/accounts"
	"github.com/jmerrifield20/pohledger/internal/runtime"
	"github.com/jmerrifield20/pohledger/internal/system"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

const genesisLamports = 100_000_000_000

var (
	alice = txn.IdentifierFromByte(1)
	bob   = txn.IdentifierFromByte(2)
	carol = txn.IdentifierFromByte(3)
)

func newStore() *accounts.Store {
	return accounts.NewStore(map[txn.Identifier]accounts.Account{
		alice: accounts.New(genesisLamports, system.ProgramID),
		bob:   accounts.New(genesisLamports, system.ProgramID),
	})
}

func newEngine() *runtime.Engine {
	return runtime.NewEngine(runtime.NewRegistry(), zap.NewNop())
}

// transferTx builds [from(ws), to(w), system(r)] with one Transfer per amount.
func transferTx(from, to txn.Identifier, amounts ...uint64) *txn.Transaction {
	msg := txn.Message{
		Header:      txn.MessageHeader{RequiredSignatures: 1, ReadonlyUnsignedCount: 1},
		AccountKeys: []txn.Identifier{from, to, system.ProgramID},
	}
	for _, amt := range amounts {
		msg.Instructions = append(msg.Instructions, txn.CompiledInstruction{
			ProgramIndex:   2,
			AccountIndices: txn.IndexList{0, 1},
			Data:           system.Encode(system.Transfer{Lamports: amt}),
		})
	}
	var sig txn.Signature
	sig[0] = from[0]
	return txn.NewTransaction(msg, []txn.Signature{sig})
}

func balance(t *testing.T, s *accounts.Store, id txn.Identifier) uint64 {
	t.Helper()
	a, ok := s.Get(id)
	if !ok {
		t.Fatalf("account %s missing", id.Short())
	}
	return a.Balance
}

func assertUnchanged(t *testing.T, before map[txn.Identifier]accounts.Account, s *accounts.Store) {
	t.Helper()
	after := s.Snapshot()
	if len(after) != len(before) {
		t.Fatalf("store has %d accounts, want %d", len(after), len(before))
	}
	for id, a := range before {
		if !after[id].Equal(a) {
			t.Errorf("account %s changed: %+v -> %+v", id.Short(), a, after[id])
		}
	}
}

func TestExecute_transfer(t *testing.T) {
	s := newStore()
	out, err := newEngine().Execute(transferTx(alice, bob, 1_000_000_000), s)
	if err != nil {
		t.Fatal(err)
	}

	if got := balance(t, s, alice); got != 99_000_000_000 {
		t.Errorf("alice = %d, want 99_000_000_000", got)
	}
	if got := balance(t, s, bob); got != 101_000_000_000 {
		t.Errorf("bob = %d, want 101_000_000_000", got)
	}
	if len(out.Modified) != 2 || out.Modified[0] != alice || out.Modified[1] != bob {
		t.Errorf("Modified = %v, want [alice bob]", out.Modified)
	}
	if len(out.Signatures) != 1 || out.Signatures[0][0] != alice[0] {
		t.Errorf("Signatures = %v", out.Signatures)
	}
}

func TestExecute_insufficientFundsLeavesStoreUnchanged(t *testing.T) {
	s := accounts.NewStore(map[txn.Identifier]accounts.Account{
		carol: accounts.New(0, system.ProgramID),
		bob:   accounts.New(5, system.ProgramID),
	})
	before := s.Snapshot()

	hookCalled := false
	_, err := newEngine().Execute(transferTx(carol, bob, 1), s, func(*runtime.Outcome) { hookCalled = true })
	if !errors.Is(err, system.ErrInsufficientFunds) {
		t.Fatalf("Execute() = %v, want ErrInsufficientFunds", err)
	}
	var ierr *runtime.InstructionError
	if !errors.As(err, &ierr) || ierr.Index != 0 {
		t.Errorf("expected InstructionError at index 0, got %v", err)
	}
	if hookCalled {
		t.Error("commit hook ran for a failed transaction")
	}
	assertUnchanged(t, before, s)
}

func TestExecute_atomicAcrossInstructions(t *testing.T) {
	s := newStore()
	before := s.Snapshot()

	// The first two transfers succeed in the working set; the third overdraws.
	tx := transferTx(alice, bob, 1, 2, genesisLamports)
	_, err := newEngine().Execute(tx, s)

	var ierr *runtime.InstructionError
	if !errors.As(err, &ierr) {
		t.Fatalf("Execute() = %v, want *InstructionError", err)
	}
	if ierr.Index != 2 {
		t.Errorf("failing instruction = %d, want 2", ierr.Index)
	}
	assertUnchanged(t, before, s)
}

func TestExecute_instructionsSeeCumulativeState(t *testing.T) {
	s := accounts.NewStore(map[txn.Identifier]accounts.Account{
		alice: accounts.New(10, system.ProgramID),
	})

	// 6 + 5 exceeds the balance only once the first debit is visible.
	if _, err := newEngine().Execute(transferTx(alice, carol, 6, 5), s); !errors.Is(err, system.ErrInsufficientFunds) {
		t.Fatalf("overdrawing transaction = %v, want ErrInsufficientFunds", err)
	}
	if _, ok := s.Get(carol); ok {
		t.Fatal("carol created by a failed transaction")
	}

	if _, err := newEngine().Execute(transferTx(alice, carol, 6, 4), s); err != nil {
		t.Fatal(err)
	}
	if got := balance(t, s, carol); got != 10 {
		t.Errorf("carol = %d, want 10", got)
	}
	if got := balance(t, s, alice); got != 0 {
		t.Errorf("alice = %d, want 0", got)
	}
}

func TestExecute_createThenFundInOneTransaction(t *testing.T) {
	s := newStore()
	owner := txn.IdentifierFromByte(0x99)

	msg := txn.Message{
		Header:      txn.MessageHeader{RequiredSignatures: 2, ReadonlyUnsignedCount: 1},
		AccountKeys: []txn.Identifier{alice, carol, system.ProgramID},
		Instructions: []txn.CompiledInstruction{
			{ProgramIndex: 2, AccountIndices: txn.IndexList{0, 1}, Data: system.Encode(system.CreateAccount{Lamports: 500, Space: 8, Owner: system.ProgramID})},
			{ProgramIndex: 2, AccountIndices: txn.IndexList{1, 0}, Data: system.Encode(system.Transfer{Lamports: 100})},
			{ProgramIndex: 2, AccountIndices: txn.IndexList{1}, Data: system.Encode(system.Assign{Owner: owner})},
		},
	}
	tx := txn.NewTransaction(msg, make([]txn.Signature, 2))

	if _, err := newEngine().Execute(tx, s); err != nil {
		t.Fatal(err)
	}
	got, ok := s.Get(carol)
	if !ok {
		t.Fatal("carol was not created")
	}
	if got.Balance != 400 || got.Owner != owner || len(got.Data) != 8 {
		t.Errorf("carol = %+v", got)
	}
	if b := balance(t, s, alice); b != genesisLamports-400 {
		t.Errorf("alice = %d", b)
	}
}

func TestExecute_missingSourceIsAccountNotFound(t *testing.T) {
	s := newStore()
	before := s.Snapshot()
	_, err := newEngine().Execute(transferTx(carol, bob, 0), s)
	if !errors.Is(err, system.ErrAccountNotFound) {
		t.Fatalf("Execute() = %v, want ErrAccountNotFound", err)
	}
	assertUnchanged(t, before, s)
}

func TestExecute_unknownProgram(t *testing.T) {
	s := newStore()
	before := s.Snapshot()

	bytecode := txn.IdentifierFromByte(0xBC)
	reg := runtime.NewRegistry()
	reg.RegisterBytecode(bytecode)
	engine := runtime.NewEngine(reg, zap.NewNop())

	for _, program := range []txn.Identifier{bytecode, txn.IdentifierFromByte(0xEE)} {
		msg := txn.Message{
			Header:      txn.MessageHeader{RequiredSignatures: 1, ReadonlyUnsignedCount: 1},
			AccountKeys: []txn.Identifier{alice, program},
			Instructions: []txn.CompiledInstruction{
				{ProgramIndex: 1, AccountIndices: txn.IndexList{0}, Data: []byte{1, 2, 3}},
			},
		}
		_, err := engine.Execute(txn.NewTransaction(msg, make([]txn.Signature, 1)), s)
		if !errors.Is(err, runtime.ErrUnknownProgram) {
			t.Errorf("program %s: got %v, want ErrUnknownProgram", program.Short(), err)
		}
	}
	assertUnchanged(t, before, s)
}

func TestExecute_invalidAccountIndex(t *testing.T) {
	s := newStore()
	tests := []struct {
		name string
		ix   txn.CompiledInstruction
	}{
		{"program", txn.CompiledInstruction{ProgramIndex: 9, AccountIndices: txn.IndexList{0, 1}}},
		{"account", txn.CompiledInstruction{ProgramIndex: 2, AccountIndices: txn.IndexList{0, 7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := transferTx(alice, bob)
			tx.Message.Instructions = []txn.CompiledInstruction{tt.ix}
			if _, err := newEngine().Execute(tx, s); !errors.Is(err, runtime.ErrInvalidAccountIndex) {
				t.Errorf("got %v, want ErrInvalidAccountIndex", err)
			}
		})
	}
}

func TestExecute_readonlyAccountModified(t *testing.T) {
	s := newStore()
	before := s.Snapshot()

	rogue := txn.IdentifierFromByte(0x66)
	reg := runtime.NewRegistry()
	reg.RegisterNative(rogue, func(_ []byte, accts []*accounts.KeyedAccount) error {
		accts[0].Account.Balance++
		return nil
	})

	msg := txn.Message{
		Header:      txn.MessageHeader{RequiredSignatures: 1, ReadonlyUnsignedCount: 2},
		AccountKeys: []txn.Identifier{alice, bob, rogue},
		Instructions: []txn.CompiledInstruction{
			{ProgramIndex: 2, AccountIndices: txn.IndexList{1}},
		},
	}
	_, err := runtime.NewEngine(reg, zap.NewNop()).Execute(txn.NewTransaction(msg, make([]txn.Signature, 1)), s)
	if !errors.Is(err, runtime.ErrReadonlyAccountModified) {
		t.Fatalf("Execute() = %v, want ErrReadonlyAccountModified", err)
	}
	assertUnchanged(t, before, s)
}

func TestExecute_malformedMessage(t *testing.T) {
	tx := transferTx(alice, bob, 1)
	tx.Message.Header.RequiredSignatures = 0
	if _, err := newEngine().Execute(tx, newStore()); !errors.Is(err, txn.ErrMalformedMessage) {
		t.Errorf("got %v, want ErrMalformedMessage", err)
	}
	if _, err := newEngine().Execute(nil, newStore()); !errors.Is(err, runtime.ErrNilTransaction) {
		t.Errorf("nil tx: got %v", err)
	}
}

func TestExecute_hooksRunInCommitOrder(t *testing.T) {
	s := newStore()
	engine := newEngine()

	var (
		mu    sync.Mutex
		order []uint64
		wg    sync.WaitGroup
	)
	const workers = 16
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := alice, bob
			if i%2 == 1 {
				from, to = bob, alice
			}
			_, err := engine.Execute(transferTx(from, to, uint64(i+1)), s, func(*runtime.Outcome) {
				mu.Lock()
				order = append(order, balance(t, s, alice)+balance(t, s, bob))
				mu.Unlock()
			})
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if len(order) != workers {
		t.Fatalf("hooks ran %d times, want %d", len(order), workers)
	}
	for _, total := range order {
		if total != 2*genesisLamports {
			t.Errorf("hook observed total %d, want %d", total, 2*genesisLamports)
		}
	}
}
