// Package txn defines the wire-level types shared by the ledger runtime and
// its clients: account identifiers, chain hashes, signatures, messages and
// transactions.
//
// A Transaction is a Message plus one 64-byte signature per required signer.
// The Message lists every account the transaction touches in account_keys,
// partitioned in order as
//
//	[writable signers | readonly signers | writable non-signers | readonly non-signers]
//
// and carries compiled instructions that reference those keys by index.
// Index 0 is always the fee payer and always a writable signer.
//
// Identifiers, hashes and signatures render as base58 text, both in String()
// and in JSON.
package txn
