// Package bank holds the pre-execution checks a transaction must pass before
// the runtime sees it. Only signature verification is implemented; fee
// collection and recent-hash expiry are not.
package bank

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

var (
	ErrNotEnoughSignatures         = errors.New("not enough signatures")
	ErrSignatureVerificationFailed = errors.New("signature verification failed")
	ErrTooManySignatures           = errors.New("too many signatures")
)

// SignatureError identifies the signer whose signature did not verify.
type SignatureError struct {
	Index int
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%v: signer %d", ErrSignatureVerificationFailed, e.Index)
}

func (e *SignatureError) Unwrap() error { return ErrSignatureVerificationFailed }

// VerifySignatures checks that the transaction carries exactly one signature
// per required signer and that signatures[i] is a valid ed25519 signature of
// the message's canonical bytes under account_keys[i].
func VerifySignatures(tx *txn.Transaction) error {
	msg := &tx.Message
	if err := msg.Sanitize(); err != nil {
		return err
	}

	required := int(msg.Header.RequiredSignatures)
	if len(tx.Signatures) < required {
		return fmt.Errorf("%w: expected %d, got %d", ErrNotEnoughSignatures, required, len(tx.Signatures))
	}
	if !tx.IsSigned() {
		return fmt.Errorf("%w: expected %d, got %d", ErrTooManySignatures, required, len(tx.Signatures))
	}

	payload := msg.Serialize()
	for i := 0; i < required; i++ {
		key := msg.AccountKeys[i]
		if !ed25519.Verify(ed25519.PublicKey(key[:]), payload, tx.Signatures[i][:]) {
			return &SignatureError{Index: i}
		}
	}
	return nil
}

// Sign fills the signature slot of every required signer that has a key in
// keys, which maps an account identifier to its ed25519 private key.
func Sign(tx *txn.Transaction, keys map[txn.Identifier]ed25519.PrivateKey) error {
	msg := &tx.Message
	required := int(msg.Header.RequiredSignatures)
	if required > len(msg.AccountKeys) {
		return fmt.Errorf("%w: %d required signatures but only %d keys", txn.ErrMalformedMessage, required, len(msg.AccountKeys))
	}
	if len(tx.Signatures) < required {
		sigs := make([]txn.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}

	payload := msg.Serialize()
	for i := 0; i < required; i++ {
		priv, ok := keys[msg.AccountKeys[i]]
		if !ok {
			return fmt.Errorf("%w: no key for signer %d (%s)", ErrNotEnoughSignatures, i, msg.AccountKeys[i])
		}
		copy(tx.Signatures[i][:], ed25519.Sign(priv, payload))
	}
	return nil
}
