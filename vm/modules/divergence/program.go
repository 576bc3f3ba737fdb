// Package divergence implements the "guess two thirds of the average"
// arena: players pay an entry fee per round into a vault and the closest
// guess takes the pot.
package divergence

import (
	"encoding/binary"
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/vm"
	"github.com/happybigmtn/trust-bazaar/vm/modules/system"
)

// ProgramID is the address the arena program is registered under.
var ProgramID = crypto.Pubkey(crypto.HashBytes([]byte("divergence-arena/program")))

const (
	OpInit         uint8 = 0
	OpSubmitGuess  uint8 = 1
	OpResolveRound uint8 = 2
	OpClaimPrize   uint8 = 3
)

var (
	seedGame   = []byte("game")
	seedPlayer = []byte("player")
	seedVault  = []byte("vault")
)

func init() {
	vm.Register(ProgramID, "divergence-arena", process)
}

func process(ctx *vm.Context, accounts []*vm.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return ErrUnrecognizedOperation
	}
	op, body := data[0], data[1:]
	switch op {
	case OpInit:
		return initArena(ctx, accounts)
	case OpSubmitGuess:
		return submitGuess(ctx, accounts, body)
	case OpResolveRound:
		return resolveRound(ctx, accounts)
	case OpClaimPrize:
		return claimPrize(accounts)
	}
	return fmt.Errorf("%w: %d", ErrUnrecognizedOperation, op)
}

// ArenaAddress derives the arena record of authority.
func ArenaAddress(authority crypto.Pubkey) (crypto.Pubkey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{seedGame, authority.Bytes()}, ProgramID)
}

// VaultAddress derives the lamport vault of authority's arena.
func VaultAddress(authority crypto.Pubkey) (crypto.Pubkey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{seedVault, authority.Bytes()}, ProgramID)
}

// PlayerAddress derives the record of player. One record serves every arena.
func PlayerAddress(player crypto.Pubkey) (crypto.Pubkey, uint8, error) {
	return crypto.FindProgramAddress([][]byte{seedPlayer, player.Bytes()}, ProgramID)
}

func expect(info *vm.AccountInfo, derive func(crypto.Pubkey) (crypto.Pubkey, uint8, error), from crypto.Pubkey) (uint8, error) {
	addr, bump, err := derive(from)
	if err != nil {
		return 0, err
	}
	if addr != info.Key() {
		return 0, fmt.Errorf("%w: %s", core.ErrInvalidSeeds, info.Key())
	}
	return bump, nil
}

func loadArena(info *vm.AccountInfo) (*Arena, error) {
	if !info.IsOwnedBy(ProgramID) {
		return nil, fmt.Errorf("%w: arena %s", core.ErrIllegalOwner, info.Key())
	}
	a, err := DecodeArena(info.Data())
	if err != nil {
		return nil, err
	}
	if !a.Initialized {
		return nil, core.ErrUninitializedAccount
	}
	return a, nil
}

// initArena: authority, game, vault, system.
func initArena(ctx *vm.Context, accounts []*vm.AccountInfo) error {
	if len(accounts) < 4 {
		return core.ErrNotEnoughAccountKeys
	}
	authority, game, vault, sys := accounts[0], accounts[1], accounts[2], accounts[3]
	if !authority.IsSigner() {
		return core.ErrMissingRequiredSignature
	}
	if sys.Key() != system.ProgramID {
		return core.ErrIncorrectProgramID
	}
	gameBump, err := expect(game, ArenaAddress, authority.Key())
	if err != nil {
		return err
	}
	vaultBump, err := expect(vault, VaultAddress, authority.Key())
	if err != nil {
		return err
	}
	if !game.IsUnused() {
		return fmt.Errorf("%w: arena %s", core.ErrAccountAlreadyInUse, game.Key())
	}

	createGame := system.CreateAccount(authority.Key(), game.Key(), vm.MinimumBalance(ArenaSize), ArenaSize, ProgramID)
	if err := ctx.Invoke(createGame, [][]byte{seedGame, authority.Key().Bytes(), {gameBump}}); err != nil {
		return err
	}
	createVault := system.CreateAccount(authority.Key(), vault.Key(), vm.MinimumBalance(0), 0, ProgramID)
	if err := ctx.Invoke(createVault, [][]byte{seedVault, authority.Key().Bytes(), {vaultBump}}); err != nil {
		return err
	}

	arena := &Arena{
		Initialized: true,
		Authority:   authority.Key(),
		Round:       1,
		Phase:       PhaseSubmitting,
		VaultBump:   vaultBump,
		GameBump:    gameBump,
	}
	arena.Encode(game.Data())
	log.Infof("Arena created: %s", game.Key())
	return nil
}

// submitGuess: player, player_account, game, vault, system.
func submitGuess(ctx *vm.Context, accounts []*vm.AccountInfo, body []byte) error {
	if len(accounts) < 5 {
		return core.ErrNotEnoughAccountKeys
	}
	player, record, game, vault, sys := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]
	if len(body) != 8 {
		return fmt.Errorf("%w: guess body is %d bytes", ErrMalformedPayload, len(body))
	}
	guess := binary.LittleEndian.Uint64(body)
	if guess > GuessUpperBound {
		return fmt.Errorf("%w: %d", ErrGuessOutOfRange, guess)
	}
	if !player.IsSigner() {
		return core.ErrMissingRequiredSignature
	}
	if sys.Key() != system.ProgramID {
		return core.ErrIncorrectProgramID
	}
	arena, err := loadArena(game)
	if err != nil {
		return err
	}
	if arena.Phase != PhaseSubmitting {
		return ErrNotSubmitting
	}
	if len(arena.Submissions) >= MaxPlayers {
		return ErrRoundFull
	}
	if _, err := expect(vault, VaultAddress, arena.Authority); err != nil {
		return err
	}
	bump, err := expect(record, PlayerAddress, player.Key())
	if err != nil {
		return err
	}
	if arena.guessed(player.Key()) {
		return ErrAlreadyGuessed
	}

	var p *Player
	if record.IsUnused() {
		create := system.CreateAccount(player.Key(), record.Key(), vm.MinimumBalance(PlayerSize), PlayerSize, ProgramID)
		if err := ctx.Invoke(create, [][]byte{seedPlayer, player.Key().Bytes(), {bump}}); err != nil {
			return err
		}
		p = &Player{Initialized: true, Pubkey: player.Key(), Bump: bump}
	} else {
		if !record.IsOwnedBy(ProgramID) {
			return core.ErrIllegalOwner
		}
		if p, err = DecodePlayer(record.Data()); err != nil {
			return err
		}
	}
	if err := ctx.Invoke(system.Transfer(player.Key(), vault.Key(), EntryFee)); err != nil {
		return err
	}

	arena.Submissions = append(arena.Submissions, Submission{Player: player.Key(), Guess: guess})
	arena.Pot += EntryFee
	arena.Encode(game.Data())
	p.Guess = guess
	p.Encode(record.Data())

	log.Infof("Guess submitted: round %d, %d/%d", arena.Round, len(arena.Submissions), MaxPlayers)
	ctx.Emit(events.EventGuessSubmitted, map[string]any{
		"arena":  game.Key().String(),
		"round":  arena.Round,
		"player": player.Key().String(),
	})
	return nil
}

// resolveRound: authority, game, vault, player_accounts...
func resolveRound(ctx *vm.Context, accounts []*vm.AccountInfo) error {
	if len(accounts) < 3 {
		return core.ErrNotEnoughAccountKeys
	}
	authority, game, vault := accounts[0], accounts[1], accounts[2]
	if !authority.IsSigner() {
		return core.ErrMissingRequiredSignature
	}
	arena, err := loadArena(game)
	if err != nil {
		return err
	}
	if arena.Authority != authority.Key() {
		return ErrNotAuthorized
	}
	if arena.Phase != PhaseSubmitting {
		return ErrNotSubmitting
	}
	if _, err := expect(vault, VaultAddress, arena.Authority); err != nil {
		return err
	}
	if !vault.IsOwnedBy(ProgramID) {
		return core.ErrIllegalOwner
	}
	if len(arena.Submissions) == 0 {
		return ErrNoSubmissions
	}

	guesses := make([]uint64, len(arena.Submissions))
	for i, s := range arena.Submissions {
		guesses[i] = s.Guess
	}
	idx, target := SelectWinner(guesses)
	winner := arena.Submissions[idx].Player

	var winnerInfo *vm.AccountInfo
	var record *Player
	for _, info := range accounts[3:] {
		if !info.IsOwnedBy(ProgramID) || info.DataLen() != PlayerSize {
			continue
		}
		p, err := DecodePlayer(info.Data())
		if err != nil || !p.Initialized || p.Pubkey != winner {
			continue
		}
		winnerInfo, record = info, p
		break
	}
	if winnerInfo == nil {
		return fmt.Errorf("%w: %s", ErrWinnerAccountMissing, winner)
	}

	// The vault keeps its rent exemption.
	var prize uint64
	if reserve := vm.MinimumBalance(0); vault.Lamports() > reserve {
		prize = min(arena.Pot, vault.Lamports()-reserve)
	}
	record.Score++
	record.Encode(winnerInfo.Data())
	vault.SetLamports(vault.Lamports() - prize)
	winnerInfo.SetLamports(winnerInfo.Lamports() + prize)

	resolved := arena.Round
	arena.Pot = 0
	arena.Submissions = nil
	if arena.Round >= MaxRounds {
		arena.Phase = PhaseFinished
	} else {
		arena.Round++
		arena.Phase = PhaseSubmitting
	}
	arena.Encode(game.Data())

	log.Infof("Round %d resolved: target %d, winner %s takes %d", resolved, target, winner, prize)
	ctx.Emit(events.EventDivergenceRound, map[string]any{
		"arena":  game.Key().String(),
		"round":  resolved,
		"target": target,
		"winner": winner.String(),
		"prize":  prize,
	})
	return nil
}

// claimPrize: player, player_account.
func claimPrize(accounts []*vm.AccountInfo) error {
	if len(accounts) < 2 {
		return core.ErrNotEnoughAccountKeys
	}
	player, record := accounts[0], accounts[1]
	if !player.IsSigner() {
		return core.ErrMissingRequiredSignature
	}
	if !record.IsOwnedBy(ProgramID) {
		return core.ErrIllegalOwner
	}
	if _, err := expect(record, PlayerAddress, player.Key()); err != nil {
		return err
	}
	p, err := DecodePlayer(record.Data())
	if err != nil {
		return err
	}
	if !p.Initialized {
		return core.ErrUninitializedAccount
	}
	if p.Pubkey != player.Key() {
		return ErrIdentityMismatch
	}
	if reserve := vm.MinimumBalance(PlayerSize); record.Lamports() > reserve {
		claim := record.Lamports() - reserve
		record.SetLamports(reserve)
		player.SetLamports(player.Lamports() + claim)
		log.Infof("Prize claimed: %s receives %d", player.Key(), claim)
	}
	return nil
}

// Instruction builders.

func NewInitInstruction(authority crypto.Pubkey) (core.Instruction, error) {
	game, _, err := ArenaAddress(authority)
	if err != nil {
		return core.Instruction{}, err
	}
	vault, _, err := VaultAddress(authority)
	if err != nil {
		return core.Instruction{}, err
	}
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Writable(authority, true),
			core.Writable(game, false),
			core.Writable(vault, false),
			core.Readonly(system.ProgramID, false),
		},
		Data: []byte{OpInit},
	}, nil
}

func NewSubmitGuessInstruction(player, authority crypto.Pubkey, guess uint64) (core.Instruction, error) {
	record, _, err := PlayerAddress(player)
	if err != nil {
		return core.Instruction{}, err
	}
	game, _, err := ArenaAddress(authority)
	if err != nil {
		return core.Instruction{}, err
	}
	vault, _, err := VaultAddress(authority)
	if err != nil {
		return core.Instruction{}, err
	}
	data := make([]byte, 9)
	data[0] = OpSubmitGuess
	binary.LittleEndian.PutUint64(data[1:], guess)
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts: []core.AccountMeta{
			core.Writable(player, true),
			core.Writable(record, false),
			core.Writable(game, false),
			core.Writable(vault, false),
			core.Readonly(system.ProgramID, false),
		},
		Data: data,
	}, nil
}

// NewResolveRoundInstruction passes the records of every listed player so
// the winner's can be found among them.
func NewResolveRoundInstruction(authority crypto.Pubkey, players []crypto.Pubkey) (core.Instruction, error) {
	game, _, err := ArenaAddress(authority)
	if err != nil {
		return core.Instruction{}, err
	}
	vault, _, err := VaultAddress(authority)
	if err != nil {
		return core.Instruction{}, err
	}
	metas := []core.AccountMeta{
		core.Readonly(authority, true),
		core.Writable(game, false),
		core.Writable(vault, false),
	}
	for _, p := range players {
		record, _, err := PlayerAddress(p)
		if err != nil {
			return core.Instruction{}, err
		}
		metas = append(metas, core.Writable(record, false))
	}
	return core.Instruction{ProgramID: ProgramID, Accounts: metas, Data: []byte{OpResolveRound}}, nil
}

func NewClaimPrizeInstruction(player crypto.Pubkey) (core.Instruction, error) {
	record, _, err := PlayerAddress(player)
	if err != nil {
		return core.Instruction{}, err
	}
	return core.Instruction{
		ProgramID: ProgramID,
		Accounts:  []core.AccountMeta{core.Writable(player, true), core.Writable(record, false)},
		Data:      []byte{OpClaimPrize},
	}, nil
}
