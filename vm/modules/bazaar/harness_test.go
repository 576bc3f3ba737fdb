package bazaar_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/internal/testutil"
	"github.com/happybigmtn/trust-bazaar/storage"
	"github.com/happybigmtn/trust-bazaar/vm"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
)

const startingLamports = 1_000_000_000

type player struct {
	priv crypto.PrivateKey
	pub  crypto.Pubkey
}

type harness struct {
	t      *testing.T
	state  *storage.StateDB
	exec   *vm.Executor
	nonces map[crypto.Pubkey]uint64
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		state:  testutil.NewStateDB(),
		nonces: make(map[crypto.Pubkey]uint64),
	}
	em := events.NewEmitter()
	for _, typ := range []events.EventType{
		events.EventGameCreated, events.EventPlayerRegistered, events.EventGameStarted,
		events.EventActionSubmitted, events.EventMatchResolved, events.EventStakeReclaimed,
		events.EventRoundAdvanced, events.EventGameCompleted, events.EventParticipantFinalized,
	} {
		em.Subscribe(typ, func(ev events.Event) { h.events = append(h.events, ev) })
	}
	h.exec = vm.NewExecutor(h.state, em)
	return h
}

func (h *harness) players(n int) []player {
	h.t.Helper()
	out := make([]player, n)
	for i := range out {
		priv, pub, err := crypto.GenerateKeyPair()
		require.NoError(h.t, err)
		require.NoError(h.t, h.state.SetAccount(&core.Account{Address: pub, Lamports: startingLamports}))
		out[i] = player{priv, pub}
	}
	return out
}

// send signs ix by p and executes it. The nonce advances only when the
// transaction commits.
func (h *harness) send(p player, ix core.Instruction) error {
	h.t.Helper()
	tx := core.NewTransaction("test", p.pub, h.nonces[p.pub], 0, ix)
	tx.Sign(p.priv)
	err := h.exec.ExecuteTx(core.NewBlock(1, "", crypto.Pubkey{}, nil), tx)
	if err == nil {
		h.nonces[p.pub]++
	}
	return err
}

func (h *harness) mustSend(p player, ix core.Instruction) {
	h.t.Helper()
	require.NoError(h.t, h.send(p, ix))
}

// ix unwraps an instruction builder result.
func (h *harness) ix(ix core.Instruction, err error) core.Instruction {
	h.t.Helper()
	require.NoError(h.t, err)
	return ix
}

func (h *harness) create(auth player, n, rounds uint8) crypto.Pubkey {
	h.t.Helper()
	h.mustSend(auth, h.ix(bazaar.NewCreateInstruction(auth.pub, n, rounds)))
	addr, _, err := bazaar.GameAddress(auth.pub)
	require.NoError(h.t, err)
	return addr
}

func (h *harness) register(game crypto.Pubkey, ps ...player) {
	h.t.Helper()
	for _, p := range ps {
		h.mustSend(p, h.ix(bazaar.NewRegisterInstruction(p.pub, game)))
	}
}

// started creates a game for auth with ps registered, so round 1 is open.
func (h *harness) started(auth player, rounds uint8, ps ...player) crypto.Pubkey {
	h.t.Helper()
	game := h.create(auth, uint8(len(ps)), rounds)
	h.register(game, ps...)
	return game
}

func (h *harness) submit(game crypto.Pubkey, round uint8, p player, opp crypto.Pubkey, a bazaar.Action, stake uint64) error {
	return h.send(p, h.ix(bazaar.NewSubmitInstruction(p.pub, game, round, opp, a, stake)))
}

func (h *harness) resolve(auth player, game crypto.Pubkey, round uint8, x, y crypto.Pubkey) error {
	return h.send(auth, h.ix(bazaar.NewResolveInstruction(auth.pub, game, round, x, y)))
}

func (h *harness) advance(auth player, game crypto.Pubkey) error {
	return h.send(auth, bazaar.NewAdvanceInstruction(auth.pub, game))
}

func (h *harness) game(addr crypto.Pubkey) *bazaar.Game {
	h.t.Helper()
	g, err := bazaar.ReadGame(h.state, addr)
	require.NoError(h.t, err)
	return g
}

func (h *harness) participant(game, key crypto.Pubkey) *bazaar.Participant {
	h.t.Helper()
	addr, _, err := bazaar.ParticipantAddress(game, key)
	require.NoError(h.t, err)
	p, err := bazaar.ReadParticipant(h.state, addr)
	require.NoError(h.t, err)
	return p
}

func (h *harness) match(game crypto.Pubkey, round uint8, x, y crypto.Pubkey) *bazaar.Match {
	h.t.Helper()
	addr, _, err := bazaar.MatchAddress(game, round, x, y)
	require.NoError(h.t, err)
	m, err := bazaar.ReadMatch(h.state, addr)
	require.NoError(h.t, err)
	return m
}

// ordered returns p and q as side A and side B.
func ordered(p, q player) (player, player) {
	a, _ := bazaar.CanonicalPair(p.pub, q.pub)
	if a == p.pub {
		return p, q
	}
	return q, p
}
