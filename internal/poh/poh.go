// Package poh implements the sequential SHA-256 hash chain that orders
// transactions and proves elapsed time.
//
// The chain starts at GenesisHash(seed). A tick hashes the current value
// HashesPerTick times; a record mixes a transaction batch in with
//
//	new = SHA-256(current || SHA-256(sig_0 || sig_1 || ...))
//
// Every advance appends one Entry, so Verify can replay the log from the
// genesis hash and locate the first tampered entry.
//
// Entries can be exported to an Archive:
//   - MemoryArchive: in-process, for testing.
//   - PostgresArchive: durable audit copy.
package poh
