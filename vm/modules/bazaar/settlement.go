package bazaar

import (
	"fmt"
	"math"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/vm"
)

// Outcome is what settling a match pays each side.
type Outcome struct {
	ScoreA, ScoreB   int64
	CreditA, CreditB uint64
}

// Payoff scores of the prisoner's dilemma.
const (
	RewardMutualCooperation int64 = 3
	PunishmentMutualDefect  int64 = 1
	TemptationToDefect      int64 = 5
	SuckersPayoff           int64 = 0
)

// Settle computes the outcome of a fully submitted match. Mutual
// cooperation returns each stake to its owner; every other combination
// swaps the stakes.
func Settle(m *Match) Outcome {
	var o Outcome
	switch {
	case m.ActionA == Cooperate && m.ActionB == Cooperate:
		o.ScoreA, o.ScoreB = RewardMutualCooperation, RewardMutualCooperation
	case m.ActionA == Defect && m.ActionB == Defect:
		o.ScoreA, o.ScoreB = PunishmentMutualDefect, PunishmentMutualDefect
	case m.ActionA == Cooperate:
		o.ScoreA, o.ScoreB = SuckersPayoff, TemptationToDefect
	default:
		o.ScoreA, o.ScoreB = TemptationToDefect, SuckersPayoff
	}
	if m.ActionA == Cooperate && m.ActionB == Cooperate {
		o.CreditA, o.CreditB = m.StakeA, m.StakeB
	} else {
		o.CreditA, o.CreditB = m.StakeB, m.StakeA
	}
	return o
}

// submitAction: player, game, participant, match, system.
func submitAction(ctx *vm.Context, accounts []*vm.AccountInfo, body []byte) error {
	player, gameInfo, partInfo, matchInfo, sys := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	args, err := decodeSubmit(body)
	if err != nil {
		return err
	}
	if !args.Action.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidActionCode, uint8(args.Action))
	}
	if args.Opponent == player.Key() {
		return ErrInvalidOpponent
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
	part, err := loadParticipant(partInfo, gameInfo.Key())
	if err != nil {
		return err
	}
	if part.Pubkey != player.Key() {
		return fmt.Errorf("%w: record of %s", ErrIdentityMismatch, part.Pubkey)
	}
	if !game.Active() {
		return ErrGameNotActive
	}
	seeds := matchSeeds(gameInfo.Key(), game.Round, player.Key(), args.Opponent)
	bump, err := expectAddress(matchInfo.Key(), seeds)
	if err != nil {
		return err
	}

	fresh := matchInfo.IsUnused()
	var m *Match
	if fresh {
		a, b := CanonicalPair(player.Key(), args.Opponent)
		m = newMatch(game.Round, a, b, bump)
	} else if m, err = loadMatch(matchInfo, gameInfo.Key()); err != nil {
		return err
	}
	if m.Resolved {
		return ErrAlreadyResolved
	}
	if done, _ := m.submitted(player.Key()); done {
		return ErrAlreadySubmitted
	}
	if args.Stake > part.Tokens {
		return fmt.Errorf("%w: stake %d, balance %d", ErrInsufficientBalance, args.Stake, part.Tokens)
	}
	// The caller's side is open, so an opponent submission means this one
	// completes the match.
	completes := m.SubmittedA || m.SubmittedB
	if completes && game.PendingMatches == math.MaxUint16 {
		return core.ErrArithmeticOverflow
	}

	if fresh {
		if err := allocate(ctx, player.Key(), matchInfo.Key(), MatchSize, withBump(seeds, bump)); err != nil {
			return err
		}
	}
	part.Tokens -= args.Stake
	m.record(player.Key(), args.Action, args.Stake)
	if completes {
		game.PendingMatches++
		game.RoundResolved = false
	}
	save(partInfo, part)
	save(matchInfo, m)
	save(gameInfo, game)

	log.Infof("Action submitted: %s act=%s stake=%d", player.Key(), args.Action, args.Stake)
	ctx.Emit(events.EventActionSubmitted, map[string]any{
		"game":   gameInfo.Key().String(),
		"round":  game.Round,
		"player": player.Key().String(),
		"match":  matchInfo.Key().String(),
		"stake":  args.Stake,
	})
	return nil
}

// resolveMatch: authority, game, participant_a, participant_b, match.
func resolveMatch(ctx *vm.Context, accounts []*vm.AccountInfo, body []byte) error {
	authority, gameInfo, infoA, infoB, matchInfo := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	args, err := decodeResolve(body)
	if err != nil {
		return err
	}
	game, err := authorityGame(authority, gameInfo)
	if err != nil {
		return err
	}
	pa, err := loadParticipant(infoA, gameInfo.Key())
	if err != nil {
		return err
	}
	pb, err := loadParticipant(infoB, gameInfo.Key())
	if err != nil {
		return err
	}
	m, err := loadMatch(matchInfo, gameInfo.Key())
	if err != nil {
		return err
	}
	if pa.Pubkey != m.PlayerA || pb.Pubkey != m.PlayerB {
		return ErrParticipantMismatch
	}
	if !game.Active() {
		return ErrGameNotActive
	}
	if args.Round != game.Round || m.Round != game.Round {
		return fmt.Errorf("%w: requested %d, match %d, game %d", ErrRoundMismatch, args.Round, m.Round, game.Round)
	}
	if m.Resolved {
		return ErrAlreadyResolved
	}
	if !m.Complete() {
		return ErrIncompleteSubmissions
	}

	out := Settle(m)
	nextA, err := applyOutcome(pa, m.ActionA, out.ScoreA, out.CreditA)
	if err != nil {
		return err
	}
	nextB, err := applyOutcome(pb, m.ActionB, out.ScoreB, out.CreditB)
	if err != nil {
		return err
	}
	if game.PendingMatches == 0 {
		return core.ErrArithmeticOverflow
	}

	m.Resolved = true
	game.PendingMatches--
	if game.PendingMatches == 0 {
		game.RoundResolved = true
	}
	save(infoA, nextA)
	save(infoB, nextB)
	save(matchInfo, m)
	save(gameInfo, game)

	log.Infof("Match resolved: A=%s(+%d) B=%s(+%d) tokens A=%d B=%d",
		m.ActionA, out.ScoreA, m.ActionB, out.ScoreB, nextA.Tokens, nextB.Tokens)
	ctx.Emit(events.EventMatchResolved, map[string]any{
		"game":     gameInfo.Key().String(),
		"round":    m.Round,
		"match":    matchInfo.Key().String(),
		"player_a": m.PlayerA.String(),
		"player_b": m.PlayerB.String(),
		"score_a":  out.ScoreA,
		"score_b":  out.ScoreB,
		"tokens_a": nextA.Tokens,
		"tokens_b": nextB.Tokens,
	})
	return nil
}

// applyOutcome returns p updated with one settled match, or an overflow
// error. p itself is not modified.
func applyOutcome(p *Participant, action Action, score int64, credit uint64) (*Participant, error) {
	next := *p
	var ok bool
	if next.Tokens, ok = addUint64(p.Tokens, credit); !ok {
		return nil, core.ErrArithmeticOverflow
	}
	if next.Score, ok = addInt64(p.Score, score); !ok {
		return nil, core.ErrArithmeticOverflow
	}
	if action == Cooperate {
		if p.Cooperations == math.MaxUint32 {
			return nil, core.ErrArithmeticOverflow
		}
		next.Cooperations++
	} else {
		if p.Defections == math.MaxUint32 {
			return nil, core.ErrArithmeticOverflow
		}
		next.Defections++
	}
	return &next, nil
}

// reclaimStake: player, game, participant, match.
func reclaimStake(ctx *vm.Context, accounts []*vm.AccountInfo, body []byte) error {
	player, gameInfo, partInfo, matchInfo := accounts[0], accounts[1], accounts[2], accounts[3]

	args, err := decodeReclaim(body)
	if err != nil {
		return err
	}
	if args.Opponent == player.Key() {
		return ErrInvalidOpponent
	}
	if err := requireSigner(player); err != nil {
		return err
	}
	game, err := loadGame(gameInfo)
	if err != nil {
		return err
	}
	part, err := loadParticipant(partInfo, gameInfo.Key())
	if err != nil {
		return err
	}
	if part.Pubkey != player.Key() {
		return fmt.Errorf("%w: record of %s", ErrIdentityMismatch, part.Pubkey)
	}
	if _, err := expectAddress(matchInfo.Key(), matchSeeds(gameInfo.Key(), args.Round, player.Key(), args.Opponent)); err != nil {
		return err
	}
	if matchInfo.IsUnused() {
		return ErrNothingToReclaim
	}
	m, err := loadMatch(matchInfo, gameInfo.Key())
	if err != nil {
		return err
	}
	if args.Round >= game.Round && !game.Complete {
		return ErrMatchStillOpen
	}
	if m.Resolved {
		return ErrAlreadyResolved
	}
	mine, _ := m.submitted(player.Key())
	if !mine || m.Complete() {
		return ErrNothingToReclaim
	}
	stake := m.StakeA
	if player.Key() == m.PlayerB {
		stake = m.StakeB
	}
	tokens, ok := addUint64(part.Tokens, stake)
	if !ok {
		return core.ErrArithmeticOverflow
	}
	// A finalized score already counts the free balance, so the returned
	// stake is folded in as well.
	score := part.Score
	if part.Finalized {
		if stake > math.MaxInt64 {
			return core.ErrArithmeticOverflow
		}
		if score, ok = addInt64(part.Score, int64(stake)); !ok {
			return core.ErrArithmeticOverflow
		}
	}

	part.Tokens = tokens
	part.Score = score
	m.Resolved = true
	save(partInfo, part)
	save(matchInfo, m)

	log.Infof("Stake reclaimed: %s recovered %d from round %d", player.Key(), stake, args.Round)
	ctx.Emit(events.EventStakeReclaimed, map[string]any{
		"game":   gameInfo.Key().String(),
		"round":  args.Round,
		"player": player.Key().String(),
		"match":  matchInfo.Key().String(),
		"stake":  stake,
	})
	return nil
}

func addUint64(a, b uint64) (uint64, bool) {
	s := a + b
	return s, s >= a
}

func addInt64(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}
