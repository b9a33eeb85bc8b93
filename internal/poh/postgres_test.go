//go:build integration

package poh_test

import (
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/pohledger/internal/poh"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

func setupPostgres(t *testing.T) *poh.PostgresArchive {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := db.Exec(ctx, "DELETE FROM chain_entries"); err != nil {
		t.Fatalf("clean chain_entries (run cmd/migrate first): %v", err)
	}
	return poh.NewPostgresArchive(db, zap.NewNop())
}

func TestPostgresArchive_roundTrip(t *testing.T) {
	archive := setupPostgres(t)

	r := newRecorder(4)
	r.Tick()
	if _, err := r.Record([]*txn.Transaction{signedTx(7, 8)}); err != nil {
		t.Fatal(err)
	}
	entries := r.Entries()

	for i, e := range entries {
		if err := archive.Append(ctx, i, e); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := archive.Append(ctx, 0, entries[0]); !errors.Is(err, poh.ErrOutOfOrder) {
		t.Errorf("re-append = %v, want ErrOutOfOrder", err)
	}

	n, err := archive.Len(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Len() = %d, %v", n, err)
	}

	var restored []poh.Entry
	for i := range entries {
		e, err := archive.Get(ctx, i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		restored = append(restored, *e)
	}
	if err := poh.Verify(r.Genesis(), restored); err != nil {
		t.Errorf("archived chain does not verify: %v", err)
	}

	if _, err := archive.Get(ctx, 99); !errors.Is(err, poh.ErrEntryNotFound) {
		t.Errorf("Get(99) = %v, want ErrEntryNotFound", err)
	}
}
