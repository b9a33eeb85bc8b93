package txn

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxAccountKeys is the largest account_keys list the canonical encoding can
// express (the count is a single byte).
const MaxAccountKeys = 255

// ErrMalformedMessage is returned by Sanitize when a message violates the
// account_keys partition or size invariants.
var ErrMalformedMessage = errors.New("malformed message")

// MessageHeader describes where each group of account_keys ends.
type MessageHeader struct {
	RequiredSignatures    uint8 `json:"required_signature_count"`
	ReadonlySignedCount   uint8 `json:"readonly_signed_count"`
	ReadonlyUnsignedCount uint8 `json:"readonly_unsigned_count"`
}

// CompiledInstruction references its program and accounts by index into
// Message.AccountKeys.
type CompiledInstruction struct {
	ProgramIndex   uint8     `json:"program_index"`
	AccountIndices IndexList `json:"account_indices"`
	Data           []byte    `json:"data"`
}

// Message is the signed payload of a transaction.
type Message struct {
	Header          MessageHeader         `json:"header"`
	AccountKeys     []Identifier          `json:"account_keys"`
	RecentChainHash Hash                  `json:"recent_chain_hash"`
	Instructions    []CompiledInstruction `json:"instructions"`
}

// IsSigner reports whether account_keys[index] must sign.
func (m *Message) IsSigner(index int) bool {
	return index >= 0 && index < int(m.Header.RequiredSignatures)
}

// IsWritable reports whether account_keys[index] may be modified. An account
// is writable unless it falls in the readonly-signed or readonly-unsigned tail.
func (m *Message) IsWritable(index int) bool {
	if index < 0 || index >= len(m.AccountKeys) {
		return false
	}
	signers := int(m.Header.RequiredSignatures)
	if index < signers {
		return index < signers-int(m.Header.ReadonlySignedCount)
	}
	return index < len(m.AccountKeys)-int(m.Header.ReadonlyUnsignedCount)
}

// FeePayer returns account_keys[0], or false when the message has no keys.
func (m *Message) FeePayer() (Identifier, bool) {
	if len(m.AccountKeys) == 0 {
		return Identifier{}, false
	}
	return m.AccountKeys[0], true
}

// Sanitize checks the structural invariants every caller-built message must
// satisfy before it can be executed. Instruction indices are range-checked
// by the runtime, which reports them against the failing instruction.
func (m *Message) Sanitize() error {
	n := len(m.AccountKeys)
	h := m.Header
	switch {
	case n == 0:
		return fmt.Errorf("%w: no account keys", ErrMalformedMessage)
	case n > MaxAccountKeys:
		return fmt.Errorf("%w: %d account keys exceeds %d", ErrMalformedMessage, n, MaxAccountKeys)
	case h.RequiredSignatures == 0:
		return fmt.Errorf("%w: fee payer must sign", ErrMalformedMessage)
	case int(h.RequiredSignatures) > n:
		return fmt.Errorf("%w: %d required signatures but only %d keys", ErrMalformedMessage, h.RequiredSignatures, n)
	case h.ReadonlySignedCount >= h.RequiredSignatures:
		return fmt.Errorf("%w: fee payer must be writable", ErrMalformedMessage)
	case int(h.ReadonlyUnsignedCount) > n-int(h.RequiredSignatures):
		return fmt.Errorf("%w: readonly unsigned count %d exceeds non-signer keys", ErrMalformedMessage, h.ReadonlyUnsignedCount)
	case len(m.Instructions) > 255:
		return fmt.Errorf("%w: too many instructions", ErrMalformedMessage)
	}

	seen := make(map[Identifier]struct{}, n)
	for i, key := range m.AccountKeys {
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate account key at index %d", ErrMalformedMessage, i)
		}
		seen[key] = struct{}{}
	}

	for i, ix := range m.Instructions {
		if len(ix.AccountIndices) > 255 {
			return fmt.Errorf("%w: instruction %d lists too many accounts", ErrMalformedMessage, i)
		}
		if len(ix.Data) > 0xFFFF {
			return fmt.Errorf("%w: instruction %d data is %d bytes", ErrMalformedMessage, i, len(ix.Data))
		}
	}
	return nil
}

// Serialize returns the canonical bytes that signers sign:
//
//	[required u8][readonly_signed u8][readonly_unsigned u8]
//	[n_keys u8][key 32]*n
//	[recent_chain_hash 32]
//	[n_instructions u8]
//	  [program_index u8][n_accounts u8][index u8]*n [data_len u16 LE][data]
//
// Lengths are truncated to their field width; call Sanitize first.
func (m *Message) Serialize() []byte {
	size := 4 + IdentifierSize*len(m.AccountKeys) + HashSize + 1
	for _, ix := range m.Instructions {
		size += 2 + len(ix.AccountIndices) + 2 + len(ix.Data)
	}
	buf := make([]byte, 0, size)

	buf = append(buf, m.Header.RequiredSignatures, m.Header.ReadonlySignedCount, m.Header.ReadonlyUnsignedCount)
	buf = append(buf, uint8(len(m.AccountKeys)))
	for _, key := range m.AccountKeys {
		buf = append(buf, key[:]...)
	}
	buf = append(buf, m.RecentChainHash[:]...)

	buf = append(buf, uint8(len(m.Instructions)))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIndex, uint8(len(ix.AccountIndices)))
		buf = append(buf, ix.AccountIndices...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf
}
