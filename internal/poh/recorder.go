package poh

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// ErrEmptyBatch is returned by Record when given no transactions; an empty
// record would be indistinguishable from a tick.
var ErrEmptyBatch = errors.New("empty transaction batch")

// ErrEntryNotFound is returned for an index outside the log.
var ErrEntryNotFound = errors.New("entry not found")

// Config holds recorder configuration.
type Config struct {
	HashesPerTick uint64
	TickInterval  time.Duration
	// LogEntries logs every appended entry at Info instead of Debug.
	LogEntries bool
}

// AppendFunc is called for every appended entry, in chain order, while the
// recorder lock is held. It must not block or call back into the recorder.
type AppendFunc func(index int, e Entry)

// MetricsRecordFunc is an optional callback counting appended entries.
type MetricsRecordFunc func(tick bool, hashes uint64)

// Recorder owns the hash chain. Tick and Record are serialized by a single
// mutex, so no two advances are ever computed from the same hash.
type Recorder struct {
	mu        sync.Mutex
	genesis   txn.Hash
	current   txn.Hash
	entries   []Entry
	cfg       Config
	onAppend  []AppendFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// NewRecorder creates a Recorder starting at genesis.
func NewRecorder(genesis txn.Hash, cfg Config, logger *zap.Logger) *Recorder {
	if cfg.HashesPerTick == 0 {
		cfg.HashesPerTick = 100
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	return &Recorder{
		genesis: genesis,
		current: genesis,
		cfg:     cfg,
		logger:  logger,
	}
}

// OnAppend registers fn to observe every new entry. Register hooks before
// the recorder starts producing entries.
func (r *Recorder) OnAppend(fn AppendFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAppend = append(r.onAppend, fn)
}

// SetMetricsRecord configures the metrics recording callback.
func (r *Recorder) SetMetricsRecord(fn MetricsRecordFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMetrics = fn
}

// Tick advances the chain by HashesPerTick plain hashes and appends a tick
// entry.
func (r *Recorder) Tick() Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.current
	for i := uint64(0); i < r.cfg.HashesPerTick; i++ {
		h = next(h)
	}
	_, e := r.appendLocked(Entry{HashCount: r.cfg.HashesPerTick, Hash: h})
	return e
}

// Record mixes the batch's signatures into the chain and appends an entry
// carrying the batch.
func (r *Recorder) Record(txs []*txn.Transaction) (Entry, error) {
	_, e, err := r.RecordIndexed(txs)
	return e, err
}

// RecordIndexed is Record, also returning the new entry's position in the
// log.
func (r *Recorder) RecordIndexed(txs []*txn.Transaction) (int, Entry, error) {
	if len(txs) == 0 {
		return 0, Entry{}, ErrEmptyBatch
	}
	batch := append([]*txn.Transaction(nil), txs...)

	r.mu.Lock()
	defer r.mu.Unlock()

	h := mix(r.current, HashTransactions(batch))
	index, e := r.appendLocked(Entry{HashCount: 1, Hash: h, Transactions: batch})
	return index, e, nil
}

func (r *Recorder) appendLocked(e Entry) (int, Entry) {
	r.current = e.Hash
	r.entries = append(r.entries, e)
	index := len(r.entries) - 1

	fields := []zap.Field{
		zap.Int("index", index),
		zap.Uint64("hash_count", e.HashCount),
		zap.Int("transactions", len(e.Transactions)),
		zap.String("hash", e.Hash.Hex()),
	}
	if r.cfg.LogEntries {
		r.logger.Info("poh entry", fields...)
	} else {
		r.logger.Debug("poh entry", fields...)
	}

	if r.onMetrics != nil {
		r.onMetrics(e.IsTick(), e.HashCount)
	}
	for _, fn := range r.onAppend {
		fn(index, e)
	}
	return index, e
}

// LastHash returns the current chain hash. Callers stamp it into new
// transactions as the recent chain hash.
func (r *Recorder) LastHash() txn.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Genesis returns the hash the chain started from.
func (r *Recorder) Genesis() txn.Hash { return r.genesis }

// HashesPerTick returns the configured tick length.
func (r *Recorder) HashesPerTick() uint64 { return r.cfg.HashesPerTick }

// Len returns the number of entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entry returns the entry at index.
func (r *Recorder) Entry(index int) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.entries) {
		return Entry{}, fmt.Errorf("%w: index %d of %d", ErrEntryNotFound, index, len(r.entries))
	}
	return r.entries[index], nil
}

// Entries returns a copy of the whole log.
func (r *Recorder) Entries() []Entry {
	return r.EntriesSince(0)
}

// EntriesSince returns a copy of the log from index onwards.
func (r *Recorder) EntriesSince(index int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 {
		index = 0
	}
	if index >= len(r.entries) {
		return nil
	}
	return append([]Entry(nil), r.entries[index:]...)
}

// Verify replays the recorder's own log from genesis.
func (r *Recorder) Verify() error {
	return Verify(r.genesis, r.Entries())
}

// Start ticks every TickInterval until quit is signalled.
func (r *Recorder) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Tick()
		case <-quit:
			return
		}
	}
}
