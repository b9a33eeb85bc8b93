package system

import "errors"

var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrAccountNotFound          = errors.New("account not found")
	ErrUnauthorizedOwnerChange  = errors.New("unauthorized owner change")
	ErrNotEnoughAccounts        = errors.New("not enough accounts")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrAccountNotOwnedBySystem  = errors.New("account not owned by system program")
	ErrInvalidAccountDataLength = errors.New("invalid account data length")
	ErrArithmeticOverflow       = errors.New("arithmetic overflow")
)
