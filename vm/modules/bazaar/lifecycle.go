package bazaar

import (
	"fmt"
	"math"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/vm"
)

// create: payer, game, system.
func create(ctx *vm.Context, accounts []*vm.AccountInfo, body []byte) error {
	payer, gameInfo, sys := accounts[0], accounts[1], accounts[2]

	args, err := decodeCreate(body)
	if err != nil {
		return err
	}
	if args.NumPlayers < MinPlayers || args.NumPlayers > MaxPlayers || args.TotalRounds < 1 {
		return fmt.Errorf("%w: players=%d rounds=%d", ErrInvalidConfiguration, args.NumPlayers, args.TotalRounds)
	}
	if err := requireSigner(payer); err != nil {
		return err
	}
	if err := requireSystem(sys); err != nil {
		return err
	}
	seeds := gameSeeds(payer.Key())
	bump, err := expectAddress(gameInfo.Key(), seeds)
	if err != nil {
		return err
	}
	if !gameInfo.IsUnused() {
		return fmt.Errorf("%w: game %s", ErrAlreadyInitialized, gameInfo.Key())
	}

	if err := allocate(ctx, payer.Key(), gameInfo.Key(), GameSize, withBump(seeds, bump)); err != nil {
		return err
	}
	save(gameInfo, &Game{
		Initialized: true,
		Authority:   payer.Key(),
		NumPlayers:  args.NumPlayers,
		TotalRounds: args.TotalRounds,
		Bump:        bump,
	})

	log.Infof("Game created: %s players=%d rounds=%d", gameInfo.Key(), args.NumPlayers, args.TotalRounds)
	ctx.Emit(events.EventGameCreated, map[string]any{
		"game":         gameInfo.Key().String(),
		"authority":    payer.Key().String(),
		"num_players":  args.NumPlayers,
		"total_rounds": args.TotalRounds,
	})
	return nil
}

// register: player, game, participant, system.
func register(ctx *vm.Context, accounts []*vm.AccountInfo, body []byte) error {
	player, gameInfo, partInfo, sys := accounts[0], accounts[1], accounts[2], accounts[3]

	if err := bodyLen(body, 0); err != nil {
		return err
	}
	if err := requireSigner(player); err != nil {
		return err
	}
	if err := requireSystem(sys); err != nil {
		return err
	}
	game, err := loadGame(gameInfo)
	if err != nil {
		return err
	}
	seeds := participantSeeds(gameInfo.Key(), player.Key())
	bump, err := expectAddress(partInfo.Key(), seeds)
	if err != nil {
		return err
	}
	// The last registration starts the game, so a full roster is also a
	// closed one.
	if game.Registered >= game.NumPlayers {
		return fmt.Errorf("%w: %w", ErrRosterFull, ErrRegistrationClosed)
	}
	if game.Round != 0 || game.Complete {
		return ErrRegistrationClosed
	}
	if !partInfo.IsUnused() {
		return fmt.Errorf("%w: participant %s", ErrAlreadyInitialized, partInfo.Key())
	}

	if err := allocate(ctx, player.Key(), partInfo.Key(), ParticipantSize, withBump(seeds, bump)); err != nil {
		return err
	}
	save(partInfo, &Participant{
		Initialized: true,
		Pubkey:      player.Key(),
		Tokens:      InitialTokens,
		Bump:        bump,
	})
	game.Registered++
	started := game.Registered == game.NumPlayers
	if started {
		game.Round = 1
		game.RoundResolved = false
		game.PendingMatches = 0
	}
	save(gameInfo, game)

	log.Infof("Player registered: %s (%d/%d)", player.Key(), game.Registered, game.NumPlayers)
	ctx.Emit(events.EventPlayerRegistered, map[string]any{
		"game":        gameInfo.Key().String(),
		"player":      player.Key().String(),
		"participant": partInfo.Key().String(),
		"registered":  game.Registered,
	})
	if started {
		log.Infof("Game %s started: round 1 of %d", gameInfo.Key(), game.TotalRounds)
		ctx.Emit(events.EventGameStarted, map[string]any{
			"game":  gameInfo.Key().String(),
			"round": game.Round,
		})
	}
	return nil
}

// authorityGame loads the game and checks that signer is its authority.
func authorityGame(signer, gameInfo *vm.AccountInfo) (*Game, error) {
	if err := requireSigner(signer); err != nil {
		return nil, err
	}
	game, err := loadGame(gameInfo)
	if err != nil {
		return nil, err
	}
	if signer.Key() != game.Authority {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, signer.Key())
	}
	return game, nil
}

// advanceRound: authority, game.
func advanceRound(ctx *vm.Context, accounts []*vm.AccountInfo, body []byte) error {
	authority, gameInfo := accounts[0], accounts[1]

	if err := bodyLen(body, 0); err != nil {
		return err
	}
	game, err := authorityGame(authority, gameInfo)
	if err != nil {
		return err
	}
	if !game.Active() {
		return ErrGameNotActive
	}
	if game.PendingMatches > 0 {
		return fmt.Errorf("%w: %d pending", ErrRoundNotResolved, game.PendingMatches)
	}

	closed := game.Round
	if game.Round >= game.TotalRounds {
		game.Complete = true
		game.RoundResolved = true
	} else {
		game.Round++
		game.RoundResolved = false
		game.PendingMatches = 0
	}
	save(gameInfo, game)

	if game.Complete {
		log.Infof("Game %s complete after round %d", gameInfo.Key(), closed)
		ctx.Emit(events.EventGameCompleted, map[string]any{
			"game":  gameInfo.Key().String(),
			"round": closed,
		})
		return nil
	}
	log.Infof("Round advanced: %d -> %d", closed, game.Round)
	ctx.Emit(events.EventRoundAdvanced, map[string]any{
		"game":  gameInfo.Key().String(),
		"round": game.Round,
	})
	return nil
}

// finalize: authority, game, participant.
func finalize(ctx *vm.Context, accounts []*vm.AccountInfo, body []byte) error {
	authority, gameInfo, partInfo := accounts[0], accounts[1], accounts[2]

	if err := bodyLen(body, 0); err != nil {
		return err
	}
	game, err := authorityGame(authority, gameInfo)
	if err != nil {
		return err
	}
	part, err := loadParticipant(partInfo, gameInfo.Key())
	if err != nil {
		return err
	}
	if !game.Complete {
		return ErrGameNotFinished
	}
	if part.Finalized {
		return fmt.Errorf("%w: %s", ErrAlreadyFinalized, part.Pubkey)
	}
	if part.Tokens > math.MaxInt64 {
		return core.ErrArithmeticOverflow
	}
	score, ok := addInt64(part.Score, int64(part.Tokens))
	if !ok {
		return core.ErrArithmeticOverflow
	}

	part.Score = score
	part.Finalized = true
	save(partInfo, part)

	log.Infof("Final score for %s: %d", part.Pubkey, part.Score)
	ctx.Emit(events.EventParticipantFinalized, map[string]any{
		"game":   gameInfo.Key().String(),
		"player": part.Pubkey.String(),
		"score":  part.Score,
		"tokens": part.Tokens,
	})
	return nil
}
