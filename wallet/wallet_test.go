package wallet

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/internal/testutil"
	"github.com/happybigmtn/trust-bazaar/storage"
	"github.com/happybigmtn/trust-bazaar/vm"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
	"github.com/happybigmtn/trust-bazaar/vm/modules/divergence"
)

const chainID = "wallet-test"

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate(chainID)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, SaveKey(path, "hunter2", w.PrivKey()))

	priv, err := LoadKey(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, w.Pubkey(), priv.Public())

	pub, err := ReadPubkey(path)
	require.NoError(t, err)
	assert.Equal(t, w.Pubkey(), pub)

	_, err = LoadKey(path, "wrong")
	assert.True(t, errors.Is(err, ErrWrongPassword))
}

type chain struct {
	t      *testing.T
	state  *storage.StateDB
	exec   *vm.Executor
	nonces map[crypto.Pubkey]uint64
}

func newChain(t *testing.T) *chain {
	state := testutil.NewStateDB()
	return &chain{t: t, state: state, exec: vm.NewExecutor(state, nil), nonces: map[crypto.Pubkey]uint64{}}
}

func (c *chain) wallet() *Wallet {
	c.t.Helper()
	w, err := Generate(chainID)
	require.NoError(c.t, err)
	require.NoError(c.t, c.state.SetAccount(&core.Account{Address: w.Pubkey(), Lamports: 1_000_000_000}))
	return w
}

func (c *chain) nonce(w *Wallet) uint64 { return c.nonces[w.Pubkey()] }

// apply executes tx and advances its payer's nonce.
func (c *chain) apply(tx *core.Transaction, err error) {
	c.t.Helper()
	require.NoError(c.t, err)
	require.NoError(c.t, c.exec.ExecuteTx(core.NewBlock(1, "", crypto.Pubkey{}, nil), tx))
	c.nonces[tx.From]++
}

func TestWalletPlaysFullGame(t *testing.T) {
	c := newChain(t)
	auth, alice, bob := c.wallet(), c.wallet(), c.wallet()
	game, err := auth.GameAddress()
	require.NoError(t, err)

	c.apply(auth.CreateGame(c.nonce(auth), 2, 2))
	c.apply(alice.Register(c.nonce(alice), game))
	c.apply(bob.Register(c.nonce(bob), game))

	c.apply(alice.Submit(c.nonce(alice), game, 1, bob.Pubkey(), bazaar.Cooperate, 100))
	c.apply(bob.Submit(c.nonce(bob), game, 1, alice.Pubkey(), bazaar.Defect, 100))
	c.apply(auth.Resolve(c.nonce(auth), game, 1, alice.Pubkey(), bob.Pubkey()))
	c.apply(auth.Advance(c.nonce(auth), game), nil)

	// bob never answers in round 2.
	c.apply(alice.Submit(c.nonce(alice), game, 2, bob.Pubkey(), bazaar.Cooperate, 10))
	c.apply(auth.Advance(c.nonce(auth), game), nil)
	c.apply(alice.Reclaim(c.nonce(alice), game, 2, bob.Pubkey()))

	c.apply(auth.Finalize(c.nonce(auth), game, alice.Pubkey()))
	c.apply(auth.Finalize(c.nonce(auth), game, bob.Pubkey()))

	g, err := bazaar.ReadGame(c.state, game)
	require.NoError(t, err)
	assert.True(t, g.Complete)

	rep, err := bazaar.Audit(c.state, game)
	require.NoError(t, err)
	assert.True(t, rep.Balanced)
	assert.Zero(t, rep.Escrow)

	addr, _, err := bazaar.ParticipantAddress(game, alice.Pubkey())
	require.NoError(t, err)
	p, err := bazaar.ReadParticipant(c.state, addr)
	require.NoError(t, err)
	assert.True(t, p.Finalized)
	assert.Equal(t, uint32(1), p.Cooperations)
}

func TestWalletPlaysArena(t *testing.T) {
	c := newChain(t)
	auth, alice := c.wallet(), c.wallet()

	c.apply(auth.InitArena(c.nonce(auth)))
	c.apply(alice.Guess(c.nonce(alice), auth.Pubkey(), 42))
	c.apply(auth.ResolveArena(c.nonce(auth), []crypto.Pubkey{alice.Pubkey()}))

	before, err := c.state.GetAccount(alice.Pubkey())
	require.NoError(t, err)
	c.apply(alice.ClaimPrize(c.nonce(alice)))
	after, err := c.state.GetAccount(alice.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, before.Lamports+divergence.EntryFee, after.Lamports)
}

func TestWalletFeeAndTransfer(t *testing.T) {
	c := newChain(t)
	w := c.wallet()
	w.SetFee(7)
	_, to, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	tx := w.Transfer(0, to, 500)
	assert.Equal(t, chainID, tx.ChainID)
	assert.Equal(t, uint64(7), tx.Fee)
	require.NoError(t, tx.Verify())
	c.apply(tx, nil)

	acct, err := c.state.GetAccount(w.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000-507), acct.Lamports)
}
