// Package service composes the node's core: signature checks, execution
// against the account store, and hash-chain recording of every commit.
package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/internal/accounts"
	"github.com/jmerrifield20/pohledger/internal/bank"
	"github.com/jmerrifield20/pohledger/internal/genesis"
	"github.com/jmerrifield20/pohledger/internal/poh"
	"github.com/jmerrifield20/pohledger/internal/runtime"
	"github.com/jmerrifield20/pohledger/internal/system"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

var (
	// ErrAccountNotFound is returned by Account for an identifier with no record.
	ErrAccountNotFound = errors.New("account not found")
	// ErrRecordFailed reports a committed transaction that could not be
	// appended to the chain.
	ErrRecordFailed = errors.New("record committed transaction")
)

// Receipt describes a transaction that was committed and recorded.
type Receipt struct {
	EntryIndex int              `json:"entry_index"`
	EntryHash  txn.Hash         `json:"entry_hash"`
	Signature  txn.Signature    `json:"signature"`
	Modified   []txn.Identifier `json:"modified"`
}

// AccountView is an account together with its identifier.
type AccountView struct {
	ID txn.Identifier `json:"id"`
	accounts.Account
}

// ChainOverview summarises the hash chain.
type ChainOverview struct {
	Genesis       txn.Hash `json:"genesis"`
	LastHash      txn.Hash `json:"last_hash"`
	Entries       int      `json:"entries"`
	HashesPerTick uint64   `json:"hashes_per_tick"`
}

// TxMetricsFunc is an optional callback recording each submission's outcome.
type TxMetricsFunc func(result string)

// Transaction outcomes reported to TxMetricsFunc.
const (
	ResultCommitted = "committed"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// LedgerService is the node's transaction pipeline.
type LedgerService struct {
	store    *accounts.Store
	engine   *runtime.Engine
	recorder *poh.Recorder
	keyring  *genesis.Keyring // nil = Transfer disabled
	onTx     TxMetricsFunc
	logger   *zap.Logger
}

// NewLedgerService creates a LedgerService. keyring may be nil to disable
// server-side signing for Transfer.
func NewLedgerService(store *accounts.Store, engine *runtime.Engine, recorder *poh.Recorder, keyring *genesis.Keyring, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:    store,
		engine:   engine,
		recorder: recorder,
		keyring:  keyring,
		logger:   logger,
	}
}

// SetMetricsRecord configures the transaction metrics callback.
func (s *LedgerService) SetMetricsRecord(fn TxMetricsFunc) {
	s.onTx = fn
}

func (s *LedgerService) observe(result string) {
	if s.onTx != nil {
		s.onTx(result)
	}
}

// Submit verifies tx's signatures, executes it and, if it commits, records
// it into the hash chain. A rejected or failed transaction changes neither
// the account store nor the chain.
func (s *LedgerService) Submit(ctx context.Context, tx *txn.Transaction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, runtime.ErrNilTransaction
	}
	if err := bank.VerifySignatures(tx); err != nil {
		s.observe(ResultRejected)
		s.logger.Debug("transaction rejected", zap.Error(err))
		return nil, err
	}

	var (
		receipt   Receipt
		recordErr error
	)
	_, err := s.engine.Execute(tx, s.store, func(out *runtime.Outcome) {
		index, entry, err := s.recorder.RecordIndexed([]*txn.Transaction{tx})
		if err != nil {
			recordErr = err
			return
		}
		receipt = Receipt{
			EntryIndex: index,
			EntryHash:  entry.Hash,
			Signature:  out.Signatures[0],
			Modified:   out.Modified,
		}
	})
	if err != nil {
		s.observe(ResultFailed)
		return nil, err
	}
	if recordErr != nil {
		s.logger.Error("record committed transaction", zap.Error(recordErr))
		return nil, fmt.Errorf("%w: %w", ErrRecordFailed, recordErr)
	}

	s.observe(ResultCommitted)
	s.logger.Info("transaction committed",
		zap.Int("entry", receipt.EntryIndex),
		zap.String("entry_hash", receipt.EntryHash.Hex()),
		zap.Int("modified", len(receipt.Modified)),
	)
	return &receipt, nil
}

// Transfer moves lamports between two genesis accounts, identified by their
// account numbers, signing on behalf of from.
func (s *LedgerService) Transfer(ctx context.Context, from, to uint8, lamports uint64) (*Receipt, error) {
	if s.keyring == nil {
		return nil, fmt.Errorf("%w: no keyring configured", genesis.ErrUnknownAccount)
	}
	src, err := s.keyring.Lookup(from)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	dst, err := s.keyring.Lookup(to)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}

	tx := txn.NewTransaction(txn.Message{
		Header:          txn.MessageHeader{RequiredSignatures: 1, ReadonlyUnsignedCount: 1},
		AccountKeys:     []txn.Identifier{src.ID, dst.ID, system.ProgramID},
		RecentChainHash: s.recorder.LastHash(),
		Instructions: []txn.CompiledInstruction{{
			ProgramIndex:   2,
			AccountIndices: txn.IndexList{0, 1},
			Data:           system.Encode(system.Transfer{Lamports: lamports}),
		}},
	}, nil)
	if err := bank.Sign(tx, map[txn.Identifier]ed25519.PrivateKey{src.ID: src.Private}); err != nil {
		return nil, err
	}

	s.logger.Debug("transfer",
		zap.Uint8("from", from),
		zap.Uint8("to", to),
		zap.Uint64("lamports", lamports),
	)
	return s.Submit(ctx, tx)
}

// Account returns the account stored at id.
func (s *LedgerService) Account(_ context.Context, id txn.Identifier) (*AccountView, error) {
	a, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return &AccountView{ID: id, Account: a}, nil
}

// Accounts returns every stored account in identifier order.
func (s *LedgerService) Accounts(_ context.Context) []AccountView {
	snap := s.store.Snapshot()
	out := make([]AccountView, 0, len(snap))
	for _, id := range s.store.Keys() {
		if a, ok := snap[id]; ok {
			out = append(out, AccountView{ID: id, Account: a})
		}
	}
	return out
}

// GenesisAccounts returns the keyring's account numbers and identifiers.
func (s *LedgerService) GenesisAccounts() []genesis.Keypair {
	if s.keyring == nil {
		return nil
	}
	return s.keyring.Pairs()
}

// Chain returns the chain overview.
func (s *LedgerService) Chain(_ context.Context) ChainOverview {
	return ChainOverview{
		Genesis:       s.recorder.Genesis(),
		LastHash:      s.recorder.LastHash(),
		Entries:       s.recorder.Len(),
		HashesPerTick: s.recorder.HashesPerTick(),
	}
}

// Entry returns the chain entry at index.
func (s *LedgerService) Entry(_ context.Context, index int) (poh.Entry, error) {
	return s.recorder.Entry(index)
}

// VerifyChain replays the whole chain from genesis.
func (s *LedgerService) VerifyChain(_ context.Context) error {
	return s.recorder.Verify()
}
