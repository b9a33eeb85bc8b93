package bank_test

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/jmerrifield20/pohledger/internal/bank"
	"github.com/jmerrifield20/pohledger/internal/system"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

func keypair(b byte) (txn.Identifier, ed25519.PrivateKey) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var id txn.Identifier
	copy(id[:], priv.Public().(ed25519.PublicKey))
	return id, priv
}

func transfer(from, to txn.Identifier) *txn.Transaction {
	return txn.NewTransaction(txn.Message{
		Header:      txn.MessageHeader{RequiredSignatures: 1, ReadonlyUnsignedCount: 1},
		AccountKeys: []txn.Identifier{from, to, system.ProgramID},
		Instructions: []txn.CompiledInstruction{{
			ProgramIndex:   2,
			AccountIndices: txn.IndexList{0, 1},
			Data:           system.Encode(system.Transfer{Lamports: 42}),
		}},
	}, nil)
}

func TestVerifySignatures_valid(t *testing.T) {
	from, priv := keypair(1)
	to, _ := keypair(2)
	tx := transfer(from, to)

	if err := bank.Sign(tx, map[txn.Identifier]ed25519.PrivateKey{from: priv}); err != nil {
		t.Fatal(err)
	}
	if err := bank.VerifySignatures(tx); err != nil {
		t.Errorf("VerifySignatures() = %v", err)
	}
}

func TestVerifySignatures_tamperedMessage(t *testing.T) {
	from, priv := keypair(1)
	to, _ := keypair(2)
	tx := transfer(from, to)
	if err := bank.Sign(tx, map[txn.Identifier]ed25519.PrivateKey{from: priv}); err != nil {
		t.Fatal(err)
	}

	tx.Message.Instructions[0].Data = system.Encode(system.Transfer{Lamports: 43})

	err := bank.VerifySignatures(tx)
	var serr *bank.SignatureError
	if !errors.As(err, &serr) || serr.Index != 0 {
		t.Fatalf("VerifySignatures() = %v, want SignatureError at 0", err)
	}
	if !errors.Is(err, bank.ErrSignatureVerificationFailed) {
		t.Error("SignatureError should unwrap to ErrSignatureVerificationFailed")
	}
}

func TestVerifySignatures_wrongKey(t *testing.T) {
	from, _ := keypair(1)
	_, other := keypair(3)
	to, _ := keypair(2)
	tx := transfer(from, to)
	tx.Signatures = []txn.Signature{{}}
	copy(tx.Signatures[0][:], ed25519.Sign(other, tx.Message.Serialize()))

	if err := bank.VerifySignatures(tx); !errors.Is(err, bank.ErrSignatureVerificationFailed) {
		t.Errorf("VerifySignatures() = %v, want ErrSignatureVerificationFailed", err)
	}
}

func TestVerifySignatures_missing(t *testing.T) {
	from, _ := keypair(1)
	to, _ := keypair(2)
	if err := bank.VerifySignatures(transfer(from, to)); !errors.Is(err, bank.ErrNotEnoughSignatures) {
		t.Errorf("VerifySignatures() = %v, want ErrNotEnoughSignatures", err)
	}
}

func TestVerifySignatures_surplus(t *testing.T) {
	from, priv := keypair(1)
	to, _ := keypair(2)
	tx := transfer(from, to)
	if err := bank.Sign(tx, map[txn.Identifier]ed25519.PrivateKey{from: priv}); err != nil {
		t.Fatal(err)
	}
	var extra txn.Signature
	for i := range extra {
		extra[i] = 0xAB
	}
	tx.Signatures = append(tx.Signatures, extra)

	if err := bank.VerifySignatures(tx); !errors.Is(err, bank.ErrTooManySignatures) {
		t.Errorf("VerifySignatures() = %v, want ErrTooManySignatures", err)
	}
}

func TestSign_unknownSigner(t *testing.T) {
	from, _ := keypair(1)
	to, _ := keypair(2)
	err := bank.Sign(transfer(from, to), map[txn.Identifier]ed25519.PrivateKey{})
	if !errors.Is(err, bank.ErrNotEnoughSignatures) {
		t.Errorf("Sign() = %v, want ErrNotEnoughSignatures", err)
	}
}
