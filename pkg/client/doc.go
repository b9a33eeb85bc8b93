// Package client is the Go SDK for a ledger node's HTTP API.
//
// # Moving lamports between genesis accounts
//
// The node holds the deterministic genesis keys, so a transfer between
// genesis accounts needs only their numbers:
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	receipt, err := c.Transfer(ctx, 1, 2, 10)
//	fmt.Println(receipt.EntryHash) // hex hash of the chain entry that recorded it
//
// A refused transaction comes back as a *RejectedError carrying the node's
// reason, e.g. "instruction 0: insufficient funds".
//
// # Caller-signed transactions
//
// Build and sign a txn.Transaction yourself and submit it:
//
//	receipt, err := c.SubmitTransaction(ctx, tx)
//
// # Inspecting the chain
//
//	ov, _ := c.ChainOverview(ctx)
//	res, _ := c.VerifyChain(ctx)
//	if !res.Valid {
//	    fmt.Println("first bad entry:", *res.MismatchIndex)
//	}
package client
