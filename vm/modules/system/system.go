// Package system implements the native program that owns every fresh
// address: it allocates accounts for other programs and moves lamports
// between plain wallets.
package system

import (
	"encoding/binary"
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/vm"
)

// ProgramID is the all-zero address. Unused accounts are owned by it.
var ProgramID = crypto.Pubkey{}

// MaxAccountSize caps the data an account may be created with.
const MaxAccountSize = 10 * 1024

// Instruction tags (u32 LE).
const (
	TagCreateAccount uint32 = 0
	TagTransfer      uint32 = 2
)

const (
	createAccountLen = 4 + 8 + 8 + crypto.PubkeySize
	transferLen      = 4 + 8
)

func init() {
	vm.Register(ProgramID, "system", process)
}

func process(ctx *vm.Context, accounts []*vm.AccountInfo, data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: missing instruction tag", core.ErrInvalidInstructionData)
	}
	switch tag := binary.LittleEndian.Uint32(data); tag {
	case TagCreateAccount:
		return createAccount(accounts, data)
	case TagTransfer:
		return transfer(accounts, data)
	default:
		return fmt.Errorf("%w: unknown system instruction %d", core.ErrInvalidInstructionData, tag)
	}
}

func createAccount(accounts []*vm.AccountInfo, data []byte) error {
	if len(accounts) < 2 {
		return core.ErrNotEnoughAccountKeys
	}
	if len(data) != createAccountLen {
		return fmt.Errorf("%w: create account body is %d bytes", core.ErrInvalidInstructionData, len(data))
	}
	lamports := binary.LittleEndian.Uint64(data[4:12])
	space := binary.LittleEndian.Uint64(data[12:20])
	owner, _ := crypto.PubkeyFromBytes(data[20:52])

	from, to := accounts[0], accounts[1]
	if !from.IsSigner() || !to.IsSigner() {
		return core.ErrMissingRequiredSignature
	}
	if space > MaxAccountSize {
		return fmt.Errorf("%w: %d bytes requested", core.ErrInvalidRealloc, space)
	}
	if !to.IsUnused() {
		return fmt.Errorf("%w: %s", core.ErrAccountAlreadyInUse, to.Key())
	}
	if err := debitable(from, lamports); err != nil {
		return err
	}

	from.SetLamports(from.Lamports() - lamports)
	to.SetLamports(lamports)
	to.Allocate(int(space))
	to.Assign(owner)
	log.Debugf("created %s: %d bytes, %d lamports, owner %s", to.Key(), space, lamports, owner)
	return nil
}

func transfer(accounts []*vm.AccountInfo, data []byte) error {
	if len(accounts) < 2 {
		return core.ErrNotEnoughAccountKeys
	}
	if len(data) != transferLen {
		return fmt.Errorf("%w: transfer body is %d bytes", core.ErrInvalidInstructionData, len(data))
	}
	lamports := binary.LittleEndian.Uint64(data[4:12])
	from, to := accounts[0], accounts[1]
	if !from.IsSigner() {
		return core.ErrMissingRequiredSignature
	}
	if err := debitable(from, lamports); err != nil {
		return err
	}
	if to.Lamports()+lamports < to.Lamports() {
		return core.ErrArithmeticOverflow
	}
	from.SetLamports(from.Lamports() - lamports)
	to.SetLamports(to.Lamports() + lamports)
	log.Tracef("transfer %d lamports %s -> %s", lamports, from.Key(), to.Key())
	return nil
}

// debitable checks that from is a plain wallet holding at least lamports.
func debitable(from *vm.AccountInfo, lamports uint64) error {
	if !from.IsOwnedBy(ProgramID) || from.DataLen() != 0 {
		return fmt.Errorf("%w: %s cannot fund from a program account", core.ErrIllegalOwner, from.Key())
	}
	if from.Lamports() < lamports {
		return fmt.Errorf("%w: have %d, need %d", core.ErrInsufficientFunds, from.Lamports(), lamports)
	}
	return nil
}

// CreateAccount builds the instruction allocating space bytes at to,
// funded with lamports by from and handed to owner. Both must sign.
func CreateAccount(from, to crypto.Pubkey, lamports, space uint64, owner crypto.Pubkey) core.Instruction {
	data := make([]byte, createAccountLen)
	binary.LittleEndian.PutUint32(data, TagCreateAccount)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[12:], space)
	copy(data[20:], owner[:])
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts:  []core.AccountMeta{core.Writable(from, true), core.Writable(to, true)},
		Data:      data,
	}
}

// Transfer builds the instruction moving lamports from a wallet to any account.
func Transfer(from, to crypto.Pubkey, lamports uint64) core.Instruction {
	data := make([]byte, transferLen)
	binary.LittleEndian.PutUint32(data, TagTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts:  []core.AccountMeta{core.Writable(from, true), core.Writable(to, false)},
		Data:      data,
	}
}
