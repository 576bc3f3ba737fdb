package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/trust-bazaar/config"
	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/crypto/certgen"
	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/indexer"
	"github.com/happybigmtn/trust-bazaar/internal/testutil"
	"github.com/happybigmtn/trust-bazaar/sequencer"
	"github.com/happybigmtn/trust-bazaar/storage"
	"github.com/happybigmtn/trust-bazaar/vm"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
)

const testChainID = "rpc-test"

type node struct {
	t       *testing.T
	state   *storage.StateDB
	handler *Handler
	seq     *sequencer.Sequencer
	nonces  map[crypto.Pubkey]uint64
}

type keypair struct {
	priv crypto.PrivateKey
	pub  crypto.Pubkey
}

func newNode(t *testing.T) *node {
	t.Helper()
	seqKey, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	cfg.Genesis.ChainID = testChainID

	state := testutil.NewStateDB()
	bc := core.NewBlockchain(storage.NewBlockStore(testutil.NewMemDB()), seqKey.Public())
	require.NoError(t, bc.Init())
	mempool := core.NewMempool(testChainID)
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)
	exec := vm.NewExecutor(state, emitter)
	return &node{
		t:       t,
		state:   state,
		handler: NewHandler(bc, mempool, state, idx, testChainID),
		seq:     sequencer.New(cfg, bc, state, mempool, exec, emitter, seqKey),
		nonces:  make(map[crypto.Pubkey]uint64),
	}
}

func (n *node) key() keypair {
	n.t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(n.t, err)
	require.NoError(n.t, n.state.SetAccount(&core.Account{Address: pub, Lamports: 1_000_000_000}))
	require.NoError(n.t, n.state.Commit())
	return keypair{priv, pub}
}

func (n *node) tx(k keypair) func(core.Instruction, error) *core.Transaction {
	return func(ix core.Instruction, err error) *core.Transaction {
		n.t.Helper()
		require.NoError(n.t, err)
		tx := core.NewTransaction(testChainID, k.pub, n.nonces[k.pub], 0, ix)
		tx.Sign(k.priv)
		n.nonces[k.pub]++
		return tx
	}
}

func (n *node) seal() {
	n.t.Helper()
	block, err := n.seq.ProduceBlock()
	require.NoError(n.t, err)
	require.NotNil(n.t, block)
}

func (n *node) call(method string, params any) Response {
	n.t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(n.t, err)
	return n.handler.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
}

func (n *node) serve(token string) (*Server, string) {
	n.t.Helper()
	srv := NewServer("127.0.0.1:0", n.handler, token, nil)
	require.NoError(n.t, srv.Start())
	n.t.Cleanup(func() { _ = srv.Stop() })
	return srv, "http://" + srv.Addr()
}

func TestGameOverRPC(t *testing.T) {
	n := newNode(t)
	auth, alice, bob := n.key(), n.key(), n.key()
	_, url := n.serve("tok")
	c := NewClient(url, "tok", nil)
	ctx := context.Background()

	createID, err := c.SendTx(ctx, n.tx(auth)(bazaar.NewCreateInstruction(auth.pub, 2, 2)))
	require.NoError(t, err)
	n.seal()

	receipt, err := c.Receipt(ctx, createID)
	require.NoError(t, err)
	assert.True(t, receipt.Success)

	g, err := c.Game(ctx, auth.pub)
	require.NoError(t, err)
	game := g.Address
	assert.Equal(t, uint8(2), g.NumPlayers)
	assert.Equal(t, uint8(0), g.Round)

	_, err = c.SendTx(ctx, n.tx(alice)(bazaar.NewRegisterInstruction(alice.pub, game)))
	require.NoError(t, err)
	_, err = c.SendTx(ctx, n.tx(bob)(bazaar.NewRegisterInstruction(bob.pub, game)))
	require.NoError(t, err)
	n.seal()

	_, err = c.SendTx(ctx, n.tx(alice)(bazaar.NewSubmitInstruction(alice.pub, game, 1, bob.pub, bazaar.Cooperate, 50)))
	require.NoError(t, err)
	n.seal()

	p, err := c.Participant(ctx, game, alice.pub)
	require.NoError(t, err)
	assert.Equal(t, bazaar.InitialTokens-50, p.Tokens)

	m, err := c.Match(ctx, game, 1, bob.pub, alice.pub)
	require.NoError(t, err)
	assert.True(t, m.SubmittedA || m.SubmittedB)
	assert.False(t, m.Resolved)

	rep, err := c.Audit(ctx, game)
	require.NoError(t, err)
	assert.True(t, rep.Balanced)
	assert.Equal(t, uint64(50), rep.Escrow)

	var parts []ParticipantView
	require.NoError(t, c.Call(ctx, "getParticipants", map[string]any{"game": game}, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, alice.pub, parts[0].Pubkey)

	var matches []MatchView
	require.NoError(t, c.Call(ctx, "getMatches", map[string]any{"game": game, "round": 1}, &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, m.Address, matches[0].Address)

	height, err := c.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), height)
}

func TestFailedTxReceipt(t *testing.T) {
	n := newNode(t)
	auth := n.key()
	tx := n.tx(auth)(bazaar.NewCreateInstruction(auth.pub, 1, 3))
	resp := n.call("sendTx", tx)
	require.Nil(t, resp.Error)
	n.seal()

	resp = n.call("getReceipt", map[string]string{"tx_id": tx.ID})
	require.Nil(t, resp.Error)
	receipt := resp.Result.(*core.Receipt)
	assert.False(t, receipt.Success)
	assert.Equal(t, bazaar.ErrInvalidConfiguration.Code, receipt.Error.Code)
}

func TestDispatchErrors(t *testing.T) {
	n := newNode(t)
	auth := n.key()

	resp := n.call("noSuchMethod", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)

	resp = n.handler.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "getGame"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = n.call("getGame", map[string]any{"authority": auth.pub})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)

	resp = n.call("getAccount", map[string]any{"address": "0OIl"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	tx := core.NewTransaction("other-chain", auth.pub, 0, 0, bazaar.NewAdvanceInstruction(auth.pub, auth.pub))
	tx.Sign(auth.priv)
	resp = n.call("sendTx", tx)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = n.call("getReceipt", map[string]string{"tx_id": "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestDeriveAddresses(t *testing.T) {
	n := newNode(t)
	auth, alice, bob := n.key(), n.key(), n.key()

	resp := n.call("deriveAddresses", map[string]any{
		"authority": auth.pub, "player": alice.pub, "opponent": bob.pub, "round": 2,
	})
	require.Nil(t, resp.Error)
	out := resp.Result.(Addresses)

	game, _, err := bazaar.GameAddress(auth.pub)
	require.NoError(t, err)
	match, _, err := bazaar.MatchAddress(game, 2, bob.pub, alice.pub)
	require.NoError(t, err)
	assert.Equal(t, game, *out.Game)
	assert.Equal(t, match, *out.Match)
	require.NotNil(t, out.Participant)
	require.NotNil(t, out.Opponent)

	resp = n.call("deriveAddresses", map[string]any{"player": alice.pub})
	require.NotNil(t, resp.Error)
}

func TestServerAuth(t *testing.T) {
	n := newNode(t)
	_, url := n.serve("secret")
	ctx := context.Background()

	_, err := NewClient(url, "wrong", nil).Height(ctx)
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeUnauthorized, rpcErr.Code)

	_, err = NewClient(url, "secret", nil).Height(ctx)
	assert.NoError(t, err)
}

func TestServerTLS(t *testing.T) {
	n := newNode(t)
	bundle, err := certgen.Generate(t.TempDir(), "localhost")
	require.NoError(t, err)
	serverTLS, err := config.LoadTLSConfig(config.TLSConfig{
		CertFile: bundle.ServerCert, KeyFile: bundle.ServerKey, ClientCA: bundle.CACert,
	})
	require.NoError(t, err)

	srv := NewServer("127.0.0.1:0", n.handler, "", serverTLS)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	url := "https://" + srv.Addr()
	ctx := context.Background()

	clientTLS, err := config.LoadClientTLS(bundle.CACert, bundle.ClientCert, bundle.ClientKey)
	require.NoError(t, err)
	height, err := NewClient(url, "", clientTLS).Height(ctx)
	require.NoError(t, err)
	assert.Zero(t, height)

	anonymous, err := config.LoadClientTLS(bundle.CACert, "", "")
	require.NoError(t, err)
	_, err = NewClient(url, "", anonymous).Height(ctx)
	assert.Error(t, err)
}
