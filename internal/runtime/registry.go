// Package runtime is the execution engine. It loads a transaction's accounts
// into a private working set, dispatches every instruction to its program and
// commits the working set back to the account store only when all of them
// succeed.
package runtime

import (
	"github.com/jmerrifield20/pohledger/internal/accounts"
	"github.com/jmerrifield20/pohledger/internal/system"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// ProgramKind selects how a program identity is executed.
type ProgramKind int

const (
	// KindNative programs are Go functions built into the node.
	KindNative ProgramKind = iota
	// KindBytecode programs are on-chain code. Execution is not supported
	// yet, so invoking one fails with ErrUnknownProgram.
	KindBytecode
)

func (k ProgramKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindBytecode:
		return "bytecode"
	default:
		return "unknown"
	}
}

// NativeHandler applies one instruction's data to its resolved accounts.
type NativeHandler func(data []byte, accts []*accounts.KeyedAccount) error

// Program is a registry entry.
type Program struct {
	Kind    ProgramKind
	Handler NativeHandler
}

// Registry maps program identities to their execution strategy. It is
// populated before the engine starts serving and read-only afterwards.
type Registry struct {
	programs map[txn.Identifier]Program
}

// NewRegistry returns a registry holding the System Program.
func NewRegistry() *Registry {
	r := &Registry{programs: make(map[txn.Identifier]Program)}
	r.RegisterNative(system.ProgramID, system.Handle)
	return r
}

// RegisterNative binds id to a native handler, replacing any prior entry.
func (r *Registry) RegisterNative(id txn.Identifier, h NativeHandler) {
	r.programs[id] = Program{Kind: KindNative, Handler: h}
}

// RegisterBytecode marks id as a bytecode program.
func (r *Registry) RegisterBytecode(id txn.Identifier) {
	r.programs[id] = Program{Kind: KindBytecode}
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id txn.Identifier) (Program, bool) {
	p, ok := r.programs[id]
	return p, ok
}
