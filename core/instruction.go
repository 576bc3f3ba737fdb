package core

import "github.com/happybigmtn/trust-bazaar/crypto"

// AccountMeta names one account an instruction touches. Roles are
// positional; each program documents the order it expects.
type AccountMeta struct {
	Pubkey     crypto.Pubkey `json:"pubkey"`
	IsSigner   bool          `json:"is_signer"`
	IsWritable bool          `json:"is_writable"`
}

// Writable returns a writable meta for key.
func Writable(key crypto.Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: key, IsSigner: signer, IsWritable: true}
}

// Readonly returns a read-only meta for key.
func Readonly(key crypto.Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: key, IsSigner: signer}
}

// Instruction is a single opaque call into a program: an ordered account
// list and a binary payload whose first byte is the program's opcode.
type Instruction struct {
	ProgramID crypto.Pubkey `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// Signers returns the distinct keys marked as signers, in order.
func (ix *Instruction) Signers() []crypto.Pubkey {
	seen := make(map[crypto.Pubkey]bool)
	var out []crypto.Pubkey
	for _, m := range ix.Accounts {
		if m.IsSigner && !seen[m.Pubkey] {
			seen[m.Pubkey] = true
			out = append(out, m.Pubkey)
		}
	}
	return out
}
