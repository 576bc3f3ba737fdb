package bazaar_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
)

func TestPayoffMatrix(t *testing.T) {
	cases := []struct {
		name           string
		actA, actB     bazaar.Action
		stakeA, stakeB uint64
		tokA, tokB     uint64
		scoreA, scoreB int64
	}{
		{"both cooperate", bazaar.Cooperate, bazaar.Cooperate, 100, 50, 1000, 1000, 3, 3},
		{"a cooperates b defects", bazaar.Cooperate, bazaar.Defect, 200, 50, 850, 1150, 0, 5},
		{"a defects b cooperates", bazaar.Defect, bazaar.Cooperate, 200, 50, 850, 1150, 5, 0},
		{"both defect", bazaar.Defect, bazaar.Defect, 300, 100, 800, 1200, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			auth := h.players(1)[0]
			ps := h.players(2)
			game := h.started(auth, 1, ps...)
			a, b := ordered(ps[0], ps[1])

			require.NoError(t, h.submit(game, 1, a, b.pub, tc.actA, tc.stakeA))
			require.NoError(t, h.submit(game, 1, b, a.pub, tc.actB, tc.stakeB))
			assert.Equal(t, 1000-tc.stakeA, h.participant(game, a.pub).Tokens)
			require.NoError(t, h.resolve(auth, game, 1, b.pub, a.pub))

			pa, pb := h.participant(game, a.pub), h.participant(game, b.pub)
			assert.Equal(t, tc.tokA, pa.Tokens)
			assert.Equal(t, tc.tokB, pb.Tokens)
			assert.Equal(t, tc.scoreA, pa.Score)
			assert.Equal(t, tc.scoreB, pb.Score)
			assert.Equal(t, uint32(1), pa.Cooperations+pa.Defections)
			assert.Equal(t, uint32(1), pb.Cooperations+pb.Defections)

			m := h.match(game, 1, a.pub, b.pub)
			assert.True(t, m.Resolved)
			assert.Equal(t, a.pub, m.PlayerA)
			assert.Equal(t, tc.actA, m.ActionA)
		})
	}
}

func TestSettleIsPure(t *testing.T) {
	m := &bazaar.Match{ActionA: bazaar.Defect, ActionB: bazaar.Cooperate, StakeA: 7, StakeB: 9}
	out := bazaar.Settle(m)
	assert.Equal(t, bazaar.Outcome{ScoreA: 5, ScoreB: 0, CreditA: 9, CreditB: 7}, out)
	assert.Equal(t, uint64(7), m.StakeA)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	auth := h.players(1)[0]
	ps := h.players(3)
	outsider := h.players(1)[0]

	game := h.create(auth, 3, 2)
	h.register(game, ps[0], ps[1])
	assert.ErrorIs(t, h.submit(game, 0, ps[0], ps[1].pub, bazaar.Cooperate, 1), bazaar.ErrGameNotActive)
	h.register(game, ps[2])

	assert.ErrorIs(t, h.submit(game, 1, ps[0], ps[1].pub, bazaar.Action(2), 1), bazaar.ErrInvalidActionCode)
	assert.ErrorIs(t, h.submit(game, 1, ps[0], ps[0].pub, bazaar.Cooperate, 1), bazaar.ErrInvalidOpponent)
	assert.ErrorIs(t, h.submit(game, 1, ps[0], ps[1].pub, bazaar.Cooperate, 1001), bazaar.ErrInsufficientBalance)
	assert.ErrorIs(t, h.submit(game, 1, outsider, ps[1].pub, bazaar.Cooperate, 1), core.ErrUninitializedAccount)

	// Submitting with someone else's participant record.
	ix := h.ix(bazaar.NewSubmitInstruction(ps[0].pub, game, 1, ps[2].pub, bazaar.Cooperate, 1))
	other, _, err := bazaar.ParticipantAddress(game, ps[1].pub)
	require.NoError(t, err)
	ix.Accounts[2].Pubkey = other
	assert.ErrorIs(t, h.send(ps[0], ix), bazaar.ErrIdentityMismatch)

	// A match address derived for another round.
	ix = h.ix(bazaar.NewSubmitInstruction(ps[0].pub, game, 2, ps[1].pub, bazaar.Cooperate, 1))
	assert.ErrorIs(t, h.send(ps[0], ix), core.ErrInvalidSeeds)

	require.NoError(t, h.submit(game, 1, ps[0], ps[1].pub, bazaar.Cooperate, 0))
	assert.Equal(t, bazaar.InitialTokens, h.participant(game, ps[0].pub).Tokens, "zero stakes are allowed")
}

func TestReplayRejected(t *testing.T) {
	h := newHarness(t)
	auth := h.players(1)[0]
	ps := h.players(2)
	game := h.started(auth, 2, ps...)

	require.NoError(t, h.submit(game, 1, ps[0], ps[1].pub, bazaar.Defect, 100))
	root := h.state.ComputeRoot()
	assert.ErrorIs(t, h.submit(game, 1, ps[0], ps[1].pub, bazaar.Cooperate, 5), bazaar.ErrAlreadySubmitted)
	assert.Equal(t, root, h.state.ComputeRoot())
	assert.Equal(t, uint64(900), h.participant(game, ps[0].pub).Tokens)

	assert.ErrorIs(t, h.resolve(auth, game, 1, ps[0].pub, ps[1].pub), bazaar.ErrIncompleteSubmissions)
	require.NoError(t, h.submit(game, 1, ps[1], ps[0].pub, bazaar.Defect, 100))
	require.NoError(t, h.resolve(auth, game, 1, ps[0].pub, ps[1].pub))

	root = h.state.ComputeRoot()
	assert.ErrorIs(t, h.resolve(auth, game, 1, ps[0].pub, ps[1].pub), bazaar.ErrAlreadyResolved)
	assert.ErrorIs(t, h.submit(game, 1, ps[1], ps[0].pub, bazaar.Defect, 1), bazaar.ErrAlreadyResolved)
	assert.Equal(t, root, h.state.ComputeRoot())
}

func TestResolveChecks(t *testing.T) {
	h := newHarness(t)
	auth := h.players(1)[0]
	ps := h.players(3)
	game := h.started(auth, 2, ps...)
	a, b := ordered(ps[0], ps[1])

	require.NoError(t, h.submit(game, 1, a, b.pub, bazaar.Cooperate, 10))
	require.NoError(t, h.submit(game, 1, b, a.pub, bazaar.Cooperate, 10))

	assert.ErrorIs(t, h.resolve(a, game, 1, a.pub, b.pub), bazaar.ErrNotAuthorized)
	assert.ErrorIs(t, h.resolve(auth, game, 2, a.pub, b.pub), core.ErrUninitializedAccount)

	ix := h.ix(bazaar.NewResolveInstruction(auth.pub, game, 1, a.pub, b.pub))
	ix.Data[1] = 2
	assert.ErrorIs(t, h.send(auth, ix), bazaar.ErrRoundMismatch)

	// Participants given in the wrong order.
	ix = h.ix(bazaar.NewResolveInstruction(auth.pub, game, 1, a.pub, b.pub))
	ix.Accounts[2], ix.Accounts[3] = ix.Accounts[3], ix.Accounts[2]
	assert.ErrorIs(t, h.send(auth, ix), bazaar.ErrParticipantMismatch)

	// A third player's record in place of side B.
	third, _, err := bazaar.ParticipantAddress(game, ps[2].pub)
	require.NoError(t, err)
	ix = h.ix(bazaar.NewResolveInstruction(auth.pub, game, 1, a.pub, b.pub))
	ix.Accounts[3].Pubkey = third
	assert.ErrorIs(t, h.send(auth, ix), bazaar.ErrParticipantMismatch)

	require.NoError(t, h.resolve(auth, game, 1, a.pub, b.pub))
}

func TestReclaimStrandedStake(t *testing.T) {
	h := newHarness(t)
	auth := h.players(1)[0]
	ps := h.players(2)
	game := h.started(auth, 3, ps...)
	reclaim := func(p player, opp crypto.Pubkey, round uint8) error {
		return h.send(p, h.ix(bazaar.NewReclaimInstruction(p.pub, game, round, opp)))
	}

	require.NoError(t, h.submit(game, 1, ps[0], ps[1].pub, bazaar.Defect, 250))
	assert.ErrorIs(t, reclaim(ps[0], ps[1].pub, 1), bazaar.ErrMatchStillOpen)
	assert.ErrorIs(t, reclaim(ps[0], ps[1].pub, 2), bazaar.ErrNothingToReclaim)

	require.NoError(t, h.advance(auth, game))
	assert.ErrorIs(t, reclaim(ps[1], ps[0].pub, 1), bazaar.ErrNothingToReclaim)

	require.NoError(t, reclaim(ps[0], ps[1].pub, 1))
	assert.Equal(t, bazaar.InitialTokens, h.participant(game, ps[0].pub).Tokens)
	m := h.match(game, 1, ps[0].pub, ps[1].pub)
	assert.True(t, m.Resolved)
	p := h.participant(game, ps[0].pub)
	assert.Zero(t, p.Score, "a voided match scores nothing")
	assert.Zero(t, p.Cooperations+p.Defections)

	assert.ErrorIs(t, reclaim(ps[0], ps[1].pub, 1), bazaar.ErrAlreadyResolved)
}

func TestReclaimAfterFinalize(t *testing.T) {
	h := newHarness(t)
	auth := h.players(1)[0]
	ps := h.players(2)
	game := h.started(auth, 1, ps...)

	require.NoError(t, h.submit(game, 1, ps[0], ps[1].pub, bazaar.Defect, 400))
	require.NoError(t, h.advance(auth, game))
	require.True(t, h.game(game).Complete)
	h.mustSend(auth, h.ix(bazaar.NewFinalizeInstruction(auth.pub, game, ps[0].pub)))
	p := h.participant(game, ps[0].pub)
	require.Equal(t, int64(bazaar.InitialTokens-400), p.Score)

	h.mustSend(ps[0], h.ix(bazaar.NewReclaimInstruction(ps[0].pub, game, 1, ps[1].pub)))
	p = h.participant(game, ps[0].pub)
	assert.Equal(t, bazaar.InitialTokens, p.Tokens)
	assert.Equal(t, int64(bazaar.InitialTokens), p.Score, "the returned stake counts toward the final score")
	assert.True(t, p.Finalized)

	rep, err := bazaar.Audit(h.state, game)
	require.NoError(t, err)
	assert.True(t, rep.Balanced)
	assert.Zero(t, rep.Escrow)
}

func TestFailedInstructionsLeaveStateUntouched(t *testing.T) {
	h := newHarness(t)
	auth := h.players(1)[0]
	ps := h.players(2)
	game := h.started(auth, 2, ps...)
	root := h.state.ComputeRoot()

	base := h.ix(bazaar.NewRegisterInstruction(ps[0].pub, game))
	cases := []struct {
		name string
		ix   core.Instruction
		err  error
	}{
		{"empty payload", core.Instruction{ProgramID: bazaar.ProgramID, Accounts: base.Accounts}, bazaar.ErrUnrecognizedOperation},
		{"unknown opcode", core.Instruction{ProgramID: bazaar.ProgramID, Accounts: base.Accounts, Data: []byte{7}}, bazaar.ErrUnrecognizedOperation},
		{"too few accounts", core.Instruction{ProgramID: bazaar.ProgramID, Accounts: base.Accounts[:2], Data: []byte{1}}, bazaar.ErrInsufficientContext},
		{"truncated submit", core.Instruction{ProgramID: bazaar.ProgramID, Accounts: append(base.Accounts, base.Accounts[0]), Data: []byte{2, 1, 2}}, bazaar.ErrMalformedPayload},
		{"trailing bytes", core.Instruction{ProgramID: bazaar.ProgramID, Accounts: base.Accounts, Data: []byte{1, 0}}, bazaar.ErrMalformedPayload},
		{"registration closed", base, bazaar.ErrRegistrationClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.send(ps[0], tc.ix)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, root, h.state.ComputeRoot())
		})
	}
}

// TestTokenConservation drives random games and checks after every step
// that balances plus open escrow equal the grants, and that rounds only
// move forward.
func TestTokenConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 4; trial++ {
		h := newHarness(t)
		auth := h.players(1)[0]
		n := 2 + rng.Intn(3)
		ps := h.players(n)
		rounds := uint8(1 + rng.Intn(3))
		game := h.started(auth, rounds, ps...)

		lastRound := uint8(1)
		check := func() {
			rep, err := bazaar.Audit(h.state, game)
			require.NoError(t, err)
			require.True(t, rep.Balanced, "balances %d + escrow %d != granted %d", rep.Balances, rep.Escrow, rep.Granted)
			require.Equal(t, uint64(n)*bazaar.InitialTokens, rep.Granted)
			g := h.game(game)
			require.GreaterOrEqual(t, g.Round, lastRound)
			lastRound = g.Round
		}

		for !h.game(game).Complete {
			round := h.game(game).Round
			for step := 0; step < 3*n; step++ {
				x, y := rng.Intn(n), rng.Intn(n)
				if x == y {
					continue
				}
				p := ps[x]
				tokens := h.participant(game, p.pub).Tokens
				stake := uint64(rng.Int63n(int64(tokens) + 1))
				_ = h.submit(game, round, p, ps[y].pub, bazaar.Action(rng.Intn(2)), stake)
				check()
				if rng.Intn(2) == 0 {
					_ = h.resolve(auth, game, round, p.pub, ps[y].pub)
					check()
				}
			}
			// Settle whatever is still pending so the round can close.
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					_ = h.resolve(auth, game, round, ps[i].pub, ps[j].pub)
				}
			}
			require.NoError(t, h.advance(auth, game))
			check()
			if round > 1 {
				for i := 0; i < n; i++ {
					for j := 0; j < n; j++ {
						if i != j {
							_ = h.send(ps[i], h.ix(bazaar.NewReclaimInstruction(ps[i].pub, game, round-1, ps[j].pub)))
						}
					}
				}
				check()
			}
		}
		assert.True(t, h.game(game).Complete)
	}
}

func TestMatchAddressIsSymmetric(t *testing.T) {
	g := crypto.Pubkey{1}
	x, y := crypto.Pubkey{2}, crypto.Pubkey{3}
	ab, bumpAB, err := bazaar.MatchAddress(g, 4, x, y)
	require.NoError(t, err)
	ba, bumpBA, err := bazaar.MatchAddress(g, 4, y, x)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Equal(t, bumpAB, bumpBA)

	other, _, err := bazaar.MatchAddress(g, 5, x, y)
	require.NoError(t, err)
	assert.NotEqual(t, ab, other)

	a, b := bazaar.CanonicalPair(y, x)
	assert.Equal(t, x, a)
	assert.Equal(t, y, b)
}
