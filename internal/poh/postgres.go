package poh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// advisoryLockKey serialises Append across every node writing to the same
// database.
const advisoryLockKey = int64(1_347_716_001)

// PostgresArchive persists chain entries to the chain_entries table.
// It implements the Archive interface.
type PostgresArchive struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresArchive creates a PostgresArchive backed by the given pool.
func NewPostgresArchive(pool *pgxpool.Pool, logger *zap.Logger) *PostgresArchive {
	return &PostgresArchive{pool: pool, logger: logger}
}

// Append implements Archive. The tail check and insert run in one
// transaction under an advisory lock.
func (a *PostgresArchive) Append(ctx context.Context, index int, e Entry) error {
	txsJSON, err := json.Marshal(e.Transactions)
	if err != nil {
		return fmt.Errorf("marshal transactions: %w", err)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var tail int
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(idx), -1) FROM chain_entries",
	).Scan(&tail); err != nil {
		return fmt.Errorf("read archive tail: %w", err)
	}
	if index <= tail {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, index, tail)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO chain_entries (idx, hash_count, hash, transactions, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		index, int64(e.HashCount), e.Hash[:], txsJSON, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert chain entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}

	a.logger.Debug("chain entry archived",
		zap.Int("idx", index),
		zap.Uint64("hash_count", e.HashCount),
		zap.Int("transactions", len(e.Transactions)),
	)
	return nil
}

// Get implements Archive.
func (a *PostgresArchive) Get(ctx context.Context, index int) (*Entry, error) {
	var (
		hashCount int64
		hash      []byte
		txsJSON   []byte
	)
	err := a.pool.QueryRow(ctx,
		`SELECT hash_count, hash, transactions FROM chain_entries WHERE idx = $1`, index,
	).Scan(&hashCount, &hash, &txsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", ErrEntryNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("get chain entry %d: %w", index, err)
	}
	if len(hash) != txn.HashSize {
		return nil, fmt.Errorf("chain entry %d: stored hash is %d bytes", index, len(hash))
	}

	e := &Entry{HashCount: uint64(hashCount)}
	copy(e.Hash[:], hash)
	if err := json.Unmarshal(txsJSON, &e.Transactions); err != nil {
		return nil, fmt.Errorf("decode chain entry %d transactions: %w", index, err)
	}
	return e, nil
}

// Len implements Archive.
func (a *PostgresArchive) Len(ctx context.Context) (int, error) {
	var n int
	if err := a.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chain_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count chain entries: %w", err)
	}
	return n, nil
}
