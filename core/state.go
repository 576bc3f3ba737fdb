package core

import "github.com/happybigmtn/trust-bazaar/crypto"

// Account is what the ledger stores at an address: a lamport balance, the
// program that owns it, and its raw data. Records of every program live in
// Data; only the owner program may change it.
type Account struct {
	Address  crypto.Pubkey `json:"address"`
	Lamports uint64        `json:"lamports"`
	Owner    crypto.Pubkey `json:"owner"`
	Data     []byte        `json:"data"`
	Nonce    uint64        `json:"nonce"` // transactions paid for by this account
}

// IsUnused reports whether the address has never been allocated: no
// lamports, no data, owned by the system program.
func (a *Account) IsUnused() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner.IsZero()
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// GetAccount returns the account at address, or a zero-value account
	// owned by the system program when nothing is stored there.
	GetAccount(address crypto.Pubkey) (*Account, error)
	SetAccount(account *Account) error
	// AccountsOwnedBy returns every account whose owner is program.
	AccountsOwnedBy(program crypto.Pubkey) ([]*Account, error)

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
