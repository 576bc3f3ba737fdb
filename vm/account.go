package vm

import (
	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

// AccountInfo is a program's view of one account for the duration of an
// instruction. Views in nested invocations share the underlying account,
// so a change made by a callee is visible to its caller; the signer and
// writable privileges belong to the view.
type AccountInfo struct {
	key        crypto.Pubkey
	isSigner   bool
	isWritable bool
	acct       *core.Account
}

func (a *AccountInfo) Key() crypto.Pubkey { return a.key }
func (a *AccountInfo) IsSigner() bool { return a.isSigner }
func (a *AccountInfo) IsWritable() bool { return a.isWritable }
func (a *AccountInfo) Lamports() uint64 { return a.acct.Lamports }
func (a *AccountInfo) Owner() crypto.Pubkey { return a.acct.Owner }
func (a *AccountInfo) DataLen() int { return len(a.acct.Data) }
func (a *AccountInfo) SetLamports(v uint64) { a.acct.Lamports = v }
func (a *AccountInfo) Assign(o crypto.Pubkey) { a.acct.Owner = o }

// IsOwnedBy reports whether program owns the account.
func (a *AccountInfo) IsOwnedBy(program crypto.Pubkey) bool {
	return a.acct.Owner == program
}

// IsUnused reports whether the account has never been allocated.
func (a *AccountInfo) IsUnused() bool {
	return a.acct.IsUnused()
}

// Data returns the account data. Writes through the slice change the
// account in place; the runtime validates them when the program returns.
func (a *AccountInfo) Data() []byte {
	return a.acct.Data
}

// Allocate gives an empty account space zeroed bytes.
func (a *AccountInfo) Allocate(space int) {
	a.acct.Data = make([]byte, space)
}
