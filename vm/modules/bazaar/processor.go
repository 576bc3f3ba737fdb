// Package bazaar implements the trust bazaar program: an iterated
// prisoner's dilemma where players stake trust tokens on every pairing
// and settlement swaps or returns the escrow.
package bazaar

import (
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/vm"
	"github.com/happybigmtn/trust-bazaar/vm/modules/system"
)

func init() {
	vm.Register(ProgramID, "trust-bazaar", Process)
}

// Process is the program entrypoint. Opcode and account count are checked
// before any record is read.
func Process(ctx *vm.Context, accounts []*vm.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrUnrecognizedOperation)
	}
	op := Opcode(data[0])
	if !op.valid() {
		return fmt.Errorf("%w: %d", ErrUnrecognizedOperation, data[0])
	}
	if len(accounts) < op.MinAccounts() {
		return fmt.Errorf("%w: %s needs %d accounts, got %d",
			ErrInsufficientContext, op, op.MinAccounts(), len(accounts))
	}
	body := data[1:]

	switch op {
	case OpCreate:
		return create(ctx, accounts, body)
	case OpRegister:
		return register(ctx, accounts, body)
	case OpSubmitAction:
		return submitAction(ctx, accounts, body)
	case OpResolveMatch:
		return resolveMatch(ctx, accounts, body)
	case OpAdvanceRound:
		return advanceRound(ctx, accounts, body)
	case OpFinalize:
		return finalize(ctx, accounts, body)
	case OpReclaimStake:
		return reclaimStake(ctx, accounts, body)
	}
	return ErrUnrecognizedOperation
}

func requireSigner(info *vm.AccountInfo) error {
	if !info.IsSigner() {
		return fmt.Errorf("%w: %s", core.ErrMissingRequiredSignature, info.Key())
	}
	return nil
}

func requireSystem(info *vm.AccountInfo) error {
	if info.Key() != system.ProgramID {
		return fmt.Errorf("%w: expected system program, got %s", core.ErrIncorrectProgramID, info.Key())
	}
	return nil
}

func requireOwned(info *vm.AccountInfo) error {
	if info.IsOwnedBy(ProgramID) {
		return nil
	}
	if info.IsUnused() {
		return fmt.Errorf("%w: %s", core.ErrUninitializedAccount, info.Key())
	}
	return fmt.Errorf("%w: %s is owned by %s", core.ErrIllegalOwner, info.Key(), info.Owner())
}

// loadGame decodes and authenticates a game record.
func loadGame(info *vm.AccountInfo) (*Game, error) {
	if err := requireOwned(info); err != nil {
		return nil, err
	}
	g, err := DecodeGame(info.Data())
	if err != nil {
		return nil, err
	}
	if !g.Initialized {
		return nil, fmt.Errorf("%w: game %s", core.ErrUninitializedAccount, info.Key())
	}
	if err := storedAddress(info.Key(), gameSeeds(g.Authority), g.Bump); err != nil {
		return nil, err
	}
	return g, nil
}

// loadParticipant decodes a participant record and checks that it is the
// record of its own pubkey in game.
func loadParticipant(info *vm.AccountInfo, game crypto.Pubkey) (*Participant, error) {
	if err := requireOwned(info); err != nil {
		return nil, err
	}
	p, err := DecodeParticipant(info.Data())
	if err != nil {
		return nil, err
	}
	if !p.Initialized {
		return nil, fmt.Errorf("%w: participant %s", core.ErrUninitializedAccount, info.Key())
	}
	if err := storedAddress(info.Key(), participantSeeds(game, p.Pubkey), p.Bump); err != nil {
		return nil, err
	}
	return p, nil
}

func loadMatch(info *vm.AccountInfo, game crypto.Pubkey) (*Match, error) {
	if err := requireOwned(info); err != nil {
		return nil, err
	}
	m, err := DecodeMatch(info.Data())
	if err != nil {
		return nil, err
	}
	if !m.Initialized {
		return nil, fmt.Errorf("%w: match %s", core.ErrUninitializedAccount, info.Key())
	}
	if err := storedAddress(info.Key(), matchSeeds(game, m.Round, m.PlayerA, m.PlayerB), m.Bump); err != nil {
		return nil, err
	}
	return m, nil
}

type encoder interface {
	Encode(dst []byte)
}

func save(info *vm.AccountInfo, rec encoder) {
	rec.Encode(info.Data())
}

// allocate creates a record at a derived address through the system
// program, paid by payer and signed with the record's seeds.
func allocate(ctx *vm.Context, payer, target crypto.Pubkey, size int, seeds [][]byte) error {
	ix := system.CreateAccount(payer, target, vm.MinimumBalance(size), uint64(size), ProgramID)
	if err := ctx.Invoke(ix, seeds); err != nil {
		return fmt.Errorf("allocate %s: %w", target, err)
	}
	return nil
}
