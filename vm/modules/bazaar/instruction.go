package bazaar

import (
	"encoding/binary"
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/vm/modules/system"
)

// Opcode is the first byte of every instruction payload.
type Opcode uint8

const (
	OpCreate Opcode = iota
	OpRegister
	OpSubmitAction
	OpResolveMatch
	OpAdvanceRound
	OpFinalize
	OpReclaimStake
)

var opcodeNames = [...]string{
	OpCreate:       "create",
	OpRegister:     "register",
	OpSubmitAction: "submit_action",
	OpResolveMatch: "resolve_match",
	OpAdvanceRound: "advance_round",
	OpFinalize:     "finalize",
	OpReclaimStake: "reclaim_stake",
}

// minAccounts is the account list length each opcode requires.
var minAccounts = [...]int{
	OpCreate:       3,
	OpRegister:     4,
	OpSubmitAction: 5,
	OpResolveMatch: 5,
	OpAdvanceRound: 2,
	OpFinalize:     3,
	OpReclaimStake: 4,
}

func (o Opcode) valid() bool { return int(o) < len(opcodeNames) }

func (o Opcode) String() string {
	if !o.valid() {
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
	return opcodeNames[o]
}

// MinAccounts returns how many accounts o needs.
func (o Opcode) MinAccounts() int {
	if !o.valid() {
		return 0
	}
	return minAccounts[o]
}

// CreateArgs is the body of OpCreate.
type CreateArgs struct {
	NumPlayers  uint8
	TotalRounds uint8
}

// SubmitArgs is the body of OpSubmitAction.
type SubmitArgs struct {
	Opponent crypto.Pubkey
	Action   Action
	Stake    uint64
}

// ResolveArgs is the body of OpResolveMatch.
type ResolveArgs struct {
	Round uint8
}

// ReclaimArgs is the body of OpReclaimStake.
type ReclaimArgs struct {
	Round    uint8
	Opponent crypto.Pubkey
}

const (
	createBodyLen  = 2
	submitBodyLen  = crypto.PubkeySize + 1 + 8
	resolveBodyLen = 1
	reclaimBodyLen = 1 + crypto.PubkeySize
)

func bodyLen(body []byte, want int) error {
	if len(body) != want {
		return fmt.Errorf("%w: body is %d bytes, want %d", ErrMalformedPayload, len(body), want)
	}
	return nil
}

func decodeCreate(body []byte) (CreateArgs, error) {
	if err := bodyLen(body, createBodyLen); err != nil {
		return CreateArgs{}, err
	}
	return CreateArgs{NumPlayers: body[0], TotalRounds: body[1]}, nil
}

func decodeSubmit(body []byte) (SubmitArgs, error) {
	if err := bodyLen(body, submitBodyLen); err != nil {
		return SubmitArgs{}, err
	}
	var a SubmitArgs
	copy(a.Opponent[:], body[:32])
	a.Action = Action(body[32])
	a.Stake = binary.LittleEndian.Uint64(body[33:41])
	return a, nil
}

func decodeResolve(body []byte) (ResolveArgs, error) {
	if err := bodyLen(body, resolveBodyLen); err != nil {
		return ResolveArgs{}, err
	}
	return ResolveArgs{Round: body[0]}, nil
}

func decodeReclaim(body []byte) (ReclaimArgs, error) {
	if err := bodyLen(body, reclaimBodyLen); err != nil {
		return ReclaimArgs{}, err
	}
	a := ReclaimArgs{Round: body[0]}
	copy(a.Opponent[:], body[1:33])
	return a, nil
}

// Encode returns the payload of a create instruction.
func (a CreateArgs) Encode() []byte {
	return []byte{byte(OpCreate), a.NumPlayers, a.TotalRounds}
}

func (a SubmitArgs) Encode() []byte {
	out := make([]byte, 1+submitBodyLen)
	out[0] = byte(OpSubmitAction)
	copy(out[1:33], a.Opponent[:])
	out[33] = byte(a.Action)
	binary.LittleEndian.PutUint64(out[34:], a.Stake)
	return out
}

func (a ResolveArgs) Encode() []byte {
	return []byte{byte(OpResolveMatch), a.Round}
}

func (a ReclaimArgs) Encode() []byte {
	out := make([]byte, 1+reclaimBodyLen)
	out[0] = byte(OpReclaimStake)
	out[1] = a.Round
	copy(out[2:], a.Opponent[:])
	return out
}

// Instruction builders. Each derives every address it needs.

// NewCreateInstruction builds a create instruction for payer.
func NewCreateInstruction(payer crypto.Pubkey, numPlayers, totalRounds uint8) (core.Instruction, error) {
	game, _, err := GameAddress(payer)
	if err != nil {
		return core.Instruction{}, err
	}
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Writable(payer, true),
			core.Writable(game, false),
			core.Readonly(system.ProgramID, false),
		},
		Data: CreateArgs{NumPlayers: numPlayers, TotalRounds: totalRounds}.Encode(),
	}, nil
}

// NewRegisterInstruction registers player in game.
func NewRegisterInstruction(player, game crypto.Pubkey) (core.Instruction, error) {
	participant, _, err := ParticipantAddress(game, player)
	if err != nil {
		return core.Instruction{}, err
	}
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Writable(player, true),
			core.Writable(game, false),
			core.Writable(participant, false),
			core.Readonly(system.ProgramID, false),
		},
		Data: []byte{byte(OpRegister)},
	}, nil
}

// NewSubmitInstruction submits player's action against opponent in round.
func NewSubmitInstruction(player, game crypto.Pubkey, round uint8, opponent crypto.Pubkey, action Action, stake uint64) (core.Instruction, error) {
	participant, _, err := ParticipantAddress(game, player)
	if err != nil {
		return core.Instruction{}, err
	}
	match, _, err := MatchAddress(game, round, player, opponent)
	if err != nil {
		return core.Instruction{}, err
	}
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Writable(player, true),
			core.Writable(game, false),
			core.Writable(participant, false),
			core.Writable(match, false),
			core.Readonly(system.ProgramID, false),
		},
		Data: SubmitArgs{Opponent: opponent, Action: action, Stake: stake}.Encode(),
	}, nil
}

// NewResolveInstruction settles the match of x and y in round.
func NewResolveInstruction(authority, game crypto.Pubkey, round uint8, x, y crypto.Pubkey) (core.Instruction, error) {
	a, b := CanonicalPair(x, y)
	partA, _, err := ParticipantAddress(game, a)
	if err != nil {
		return core.Instruction{}, err
	}
	partB, _, err := ParticipantAddress(game, b)
	if err != nil {
		return core.Instruction{}, err
	}
	match, _, err := MatchAddress(game, round, a, b)
	if err != nil {
		return core.Instruction{}, err
	}
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Readonly(authority, true),
			core.Writable(game, false),
			core.Writable(partA, false),
			core.Writable(partB, false),
			core.Writable(match, false),
		},
		Data: ResolveArgs{Round: round}.Encode(),
	}, nil
}

// NewAdvanceInstruction closes the current round.
func NewAdvanceInstruction(authority, game crypto.Pubkey) core.Instruction {
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Readonly(authority, true),
			core.Writable(game, false),
		},
		Data: []byte{byte(OpAdvanceRound)},
	}
}

// NewFinalizeInstruction folds player's tokens into its score.
func NewFinalizeInstruction(authority, game, player crypto.Pubkey) (core.Instruction, error) {
	participant, _, err := ParticipantAddress(game, player)
	if err != nil {
		return core.Instruction{}, err
	}
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Readonly(authority, true),
			core.Readonly(game, false),
			core.Writable(participant, false),
		},
		Data: []byte{byte(OpFinalize)},
	}, nil
}

// NewReclaimInstruction returns player's stake from a one-sided match.
func NewReclaimInstruction(player, game crypto.Pubkey, round uint8, opponent crypto.Pubkey) (core.Instruction, error) {
	participant, _, err := ParticipantAddress(game, player)
	if err != nil {
		return core.Instruction{}, err
	}
	match, _, err := MatchAddress(game, round, player, opponent)
	if err != nil {
		return core.Instruction{}, err
	}
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Readonly(player, true),
			core.Readonly(game, false),
			core.Writable(participant, false),
			core.Writable(match, false),
		},
		Data: ReclaimArgs{Round: round, Opponent: opponent}.Encode(),
	}, nil
}
