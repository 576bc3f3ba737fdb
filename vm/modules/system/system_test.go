package system_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/internal/testutil"
	"github.com/happybigmtn/trust-bazaar/storage"
	"github.com/happybigmtn/trust-bazaar/vm"
	"github.com/happybigmtn/trust-bazaar/vm/modules/system"
)

type key struct {
	priv crypto.PrivateKey
	pub  crypto.Pubkey
}

func newKey(t *testing.T) key {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return key{priv, pub}
}

func setup(t *testing.T, funded ...key) (*storage.StateDB, *vm.Executor) {
	t.Helper()
	state := testutil.NewStateDB()
	for _, k := range funded {
		require.NoError(t, state.SetAccount(&core.Account{Address: k.pub, Lamports: 10_000_000}))
	}
	return state, vm.NewExecutor(state, nil)
}

func run(t *testing.T, exec *vm.Executor, payer key, nonce uint64, ix core.Instruction, cosigners ...key) error {
	t.Helper()
	tx := core.NewTransaction("test", payer.pub, nonce, 0, ix)
	tx.Sign(payer.priv)
	for _, k := range cosigners {
		tx.Sign(k.priv)
	}
	return exec.ExecuteTx(core.NewBlock(1, "", crypto.Pubkey{}, nil), tx)
}

func TestCreateAccount(t *testing.T) {
	payer, fresh := newKey(t), newKey(t)
	state, exec := setup(t, payer)
	owner := crypto.Pubkey{1, 2, 3}
	rent := vm.MinimumBalance(64)

	require.NoError(t, run(t, exec, payer, 0, system.CreateAccount(payer.pub, fresh.pub, rent, 64, owner), fresh))

	acct, err := state.GetAccount(fresh.pub)
	require.NoError(t, err)
	assert.Equal(t, rent, acct.Lamports)
	assert.Equal(t, owner, acct.Owner)
	assert.Len(t, acct.Data, 64)

	p, err := state.GetAccount(payer.pub)
	require.NoError(t, err)
	assert.Equal(t, 10_000_000-rent, p.Lamports)

	// The address is taken now.
	err = run(t, exec, payer, 1, system.CreateAccount(payer.pub, fresh.pub, rent, 64, owner), fresh)
	assert.ErrorIs(t, err, core.ErrAccountAlreadyInUse)
}

func TestCreateAccountChecks(t *testing.T) {
	payer, fresh := newKey(t), newKey(t)
	_, exec := setup(t, payer)

	err := run(t, exec, payer, 0, system.CreateAccount(payer.pub, fresh.pub, 20_000_000, 8, crypto.Pubkey{1}), fresh)
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	err = run(t, exec, payer, 0, system.CreateAccount(payer.pub, fresh.pub, 1, system.MaxAccountSize+1, crypto.Pubkey{1}), fresh)
	assert.ErrorIs(t, err, core.ErrInvalidRealloc)

	ix := system.CreateAccount(payer.pub, fresh.pub, 1, 8, crypto.Pubkey{1})
	ix.Accounts[1].IsSigner = false
	assert.ErrorIs(t, run(t, exec, payer, 0, ix), core.ErrMissingRequiredSignature)

	ix.Data = ix.Data[:10]
	assert.ErrorIs(t, run(t, exec, payer, 0, ix), core.ErrInvalidInstructionData)
}

func TestTransfer(t *testing.T) {
	payer := newKey(t)
	state, exec := setup(t, payer)
	dst := crypto.Pubkey{9}

	require.NoError(t, run(t, exec, payer, 0, system.Transfer(payer.pub, dst, 2_500)))
	got, err := state.GetAccount(dst)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500), got.Lamports)

	err = run(t, exec, payer, 1, system.Transfer(payer.pub, dst, 50_000_000))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestTransferFromProgramAccountFails(t *testing.T) {
	payer := newKey(t)
	state, exec := setup(t, payer)
	require.NoError(t, state.SetAccount(&core.Account{Address: payer.pub, Lamports: 100, Data: []byte{1}}))

	err := run(t, exec, payer, 0, system.Transfer(payer.pub, crypto.Pubkey{9}, 10))
	assert.ErrorIs(t, err, core.ErrIllegalOwner)
}
