package system

import (
	"fmt"
	"math"

	"github.com/jmerrifield20/pohledger/internal/accounts"
)

// Handle decodes data and applies it to accts. It is the System Program's
// entry point in the runtime's program registry.
func Handle(data []byte, accts []*accounts.KeyedAccount) error {
	ix, err := Decode(data)
	if err != nil {
		return err
	}
	return Process(ix, accts)
}

// Process applies a decoded instruction to the instruction's accounts, in
// the order listed by the compiled instruction. Every check runs before the
// first mutation.
func Process(ix Instruction, accts []*accounts.KeyedAccount) error {
	switch v := ix.(type) {
	case CreateAccount:
		return createAccount(v, accts)
	case Transfer:
		return transfer(v, accts)
	case Assign:
		return assign(v, accts)
	default:
		return fmt.Errorf("%w: unsupported instruction %T", ErrInvalidInstructionData, ix)
	}
}

func createAccount(ix CreateAccount, accts []*accounts.KeyedAccount) error {
	if len(accts) < 2 {
		return ErrNotEnoughAccounts
	}
	funder, target := accts[0], accts[1]

	if target.Account.InUse() {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, target.Key.Short())
	}
	if !funder.Exists {
		return fmt.Errorf("%w: funder %s", ErrAccountNotFound, funder.Key.Short())
	}
	if !funder.Signer {
		return fmt.Errorf("%w: funder %s", ErrMissingRequiredSignature, funder.Key.Short())
	}
	if !target.Signer {
		return fmt.Errorf("%w: new account %s", ErrMissingRequiredSignature, target.Key.Short())
	}
	if funder.Account.Owner != ProgramID {
		return fmt.Errorf("%w: funder %s", ErrAccountNotOwnedBySystem, funder.Key.Short())
	}
	if ix.Space > MaxPermittedDataLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidAccountDataLength, ix.Space, MaxPermittedDataLength)
	}
	if funder.Account.Balance < ix.Lamports {
		return fmt.Errorf("%w: funder has %d, needs %d", ErrInsufficientFunds, funder.Account.Balance, ix.Lamports)
	}

	funder.Account.Balance -= ix.Lamports
	*target.Account = accounts.Account{
		Balance:    ix.Lamports,
		Data:       make([]byte, ix.Space),
		Owner:      ix.Owner,
		Executable: false,
	}
	return nil
}

func transfer(ix Transfer, accts []*accounts.KeyedAccount) error {
	if len(accts) < 2 {
		return ErrNotEnoughAccounts
	}
	from, to := accts[0], accts[1]

	if !from.Exists {
		return fmt.Errorf("%w: source %s", ErrAccountNotFound, from.Key.Short())
	}
	if !from.Signer {
		return fmt.Errorf("%w: source %s", ErrMissingRequiredSignature, from.Key.Short())
	}
	if from.Account.Owner != ProgramID {
		return fmt.Errorf("%w: source %s", ErrAccountNotOwnedBySystem, from.Key.Short())
	}
	if from.Account.Balance < ix.Lamports {
		return fmt.Errorf("%w: source has %d, needs %d", ErrInsufficientFunds, from.Account.Balance, ix.Lamports)
	}

	if from.Account == to.Account {
		return nil
	}
	if to.Account.Balance > math.MaxUint64-ix.Lamports {
		return fmt.Errorf("%w: crediting %s", ErrArithmeticOverflow, to.Key.Short())
	}

	from.Account.Balance -= ix.Lamports
	to.Account.Balance += ix.Lamports
	return nil
}

func assign(ix Assign, accts []*accounts.KeyedAccount) error {
	if len(accts) < 1 {
		return ErrNotEnoughAccounts
	}
	target := accts[0]

	if !target.Signer || !target.Writable {
		return fmt.Errorf("%w: %s is not a writable signer", ErrUnauthorizedOwnerChange, target.Key.Short())
	}
	if target.Account.Owner != ProgramID {
		return fmt.Errorf("%w: %s", ErrAccountNotOwnedBySystem, target.Key.Short())
	}

	target.Account.Owner = ix.Owner
	return nil
}
