// Package system implements the native System Program: the built-in program,
// addressed by the all-zero identifier, that creates accounts, moves lamports
// between system-owned accounts and reassigns ownership.
package system

import (
	"encoding/binary"
	"fmt"

	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// ProgramID is the address of the System Program.
var ProgramID = txn.Identifier{}

// Instruction discriminators (first 4 bytes of instruction data, little-endian).
const (
	TagCreateAccount uint32 = 0
	TagTransfer      uint32 = 2
	TagAssign        uint32 = 8
)

// MaxPermittedDataLength caps the space a CreateAccount may allocate.
const MaxPermittedDataLength = 10 * 1024 * 1024

// Instruction is a decoded System Program instruction: one of
// CreateAccount, Transfer or Assign.
type Instruction interface {
	Tag() uint32
}

// CreateAccount funds and initialises a new account.
// Accounts: [0] funder (writable, signer), [1] new account (writable, signer).
type CreateAccount struct {
	Lamports uint64
	Space    uint64
	Owner    txn.Identifier
}

// Transfer moves lamports between accounts.
// Accounts: [0] source (writable, signer), [1] destination (writable).
type Transfer struct {
	Lamports uint64
}

// Assign changes an account's owner.
// Accounts: [0] target (writable, signer).
type Assign struct {
	Owner txn.Identifier
}

func (CreateAccount) Tag() uint32 { return TagCreateAccount }
func (Transfer) Tag() uint32      { return TagTransfer }
func (Assign) Tag() uint32        { return TagAssign }

// Decode parses instruction data. Trailing bytes past the variant's payload
// are ignored.
func Decode(data []byte) (Instruction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, need a 4-byte discriminator", ErrInvalidInstructionData, len(data))
	}
	tag := binary.LittleEndian.Uint32(data[:4])
	payload := data[4:]

	switch tag {
	case TagCreateAccount:
		if len(payload) < 8+8+txn.IdentifierSize {
			return nil, fmt.Errorf("%w: CreateAccount payload is %d bytes", ErrInvalidInstructionData, len(payload))
		}
		ix := CreateAccount{
			Lamports: binary.LittleEndian.Uint64(payload[0:8]),
			Space:    binary.LittleEndian.Uint64(payload[8:16]),
		}
		copy(ix.Owner[:], payload[16:48])
		return ix, nil

	case TagTransfer:
		if len(payload) < 8 {
			return nil, fmt.Errorf("%w: Transfer payload is %d bytes", ErrInvalidInstructionData, len(payload))
		}
		return Transfer{Lamports: binary.LittleEndian.Uint64(payload[0:8])}, nil

	case TagAssign:
		if len(payload) < txn.IdentifierSize {
			return nil, fmt.Errorf("%w: Assign payload is %d bytes", ErrInvalidInstructionData, len(payload))
		}
		var ix Assign
		copy(ix.Owner[:], payload[:32])
		return ix, nil

	default:
		return nil, fmt.Errorf("%w: unknown discriminator %d", ErrInvalidInstructionData, tag)
	}
}

// Encode returns the wire form of ix.
func Encode(ix Instruction) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, ix.Tag())
	switch v := ix.(type) {
	case CreateAccount:
		buf = binary.LittleEndian.AppendUint64(buf, v.Lamports)
		buf = binary.LittleEndian.AppendUint64(buf, v.Space)
		buf = append(buf, v.Owner[:]...)
	case Transfer:
		buf = binary.LittleEndian.AppendUint64(buf, v.Lamports)
	case Assign:
		buf = append(buf, v.Owner[:]...)
	}
	return buf
}
