package vm

import (
	"fmt"
	"math"
	"sync"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/events"
)

// maxInvokeDepth bounds nested cross-program invocations.
const maxInvokeDepth = 4

// Executor applies transactions to the state using a program Registry.
type Executor struct {
	mu       sync.Mutex
	state    core.State
	emitter  *events.Emitter
	registry *Registry
}

// NewExecutor creates an Executor backed by the global registry.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return NewExecutorWithRegistry(state, emitter, globalRegistry)
}

// NewExecutorWithRegistry creates an Executor that dispatches through reg.
func NewExecutorWithRegistry(state core.State, emitter *events.Emitter, reg *Registry) *Executor {
	return &Executor{state: state, emitter: emitter, registry: reg}
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// On failure every write of the transaction, including the fee and nonce,
// is reverted and no program event is published.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidTransaction, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	inv, err := e.applyTx(block, tx)
	if err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		log.Debugf("tx %s reverted: %v", tx.ID, err)
		return err
	}

	if e.emitter != nil {
		height := block.Header.Height
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: height,
			Data: map[string]any{
				"program": e.registry.Name(tx.Instruction.ProgramID),
				"from":    tx.From.String(),
			},
		})
		for _, ev := range inv.events {
			ev.TxID = tx.ID
			ev.BlockHeight = height
			e.emitter.Emit(ev)
		}
	}
	return nil
}

// applyTx deducts the fee, increments the nonce, then runs the instruction.
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction) (*invocation, error) {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return nil, fmt.Errorf("%w: expected %d got %d", core.ErrInvalidNonce, acc.Nonce, tx.Nonce)
	}
	if acc.Lamports < tx.Fee {
		return nil, fmt.Errorf("%w: fee needs %d, have %d", core.ErrInsufficientFunds, tx.Fee, acc.Lamports)
	}
	if acc.Nonce == math.MaxUint64 {
		return nil, fmt.Errorf("%w: nonce of %s", core.ErrArithmeticOverflow, tx.From)
	}
	acc.Lamports -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return nil, err
	}

	inv := &invocation{registry: e.registry, tx: tx, block: block}
	infos, loaded, err := e.loadAccounts(tx)
	if err != nil {
		return nil, err
	}
	if err := inv.run(tx.Instruction.ProgramID, infos, tx.Instruction.Data, 0); err != nil {
		return nil, err
	}
	for _, l := range loaded {
		if accountChanged(l.orig, l.acct) {
			if err := e.state.SetAccount(l.acct); err != nil {
				return nil, fmt.Errorf("write %s: %w", l.acct.Address, err)
			}
		}
	}
	return inv, nil
}

type loadedAccount struct {
	orig *core.Account
	acct *core.Account
}

// loadAccounts resolves every account meta of the instruction. Duplicate
// keys share one underlying account.
func (e *Executor) loadAccounts(tx *core.Transaction) ([]*AccountInfo, []loadedAccount, error) {
	metas := tx.Instruction.Accounts
	byKey := make(map[crypto.Pubkey]*core.Account, len(metas))
	var loaded []loadedAccount
	infos := make([]*AccountInfo, 0, len(metas))
	for _, m := range metas {
		acct, ok := byKey[m.Pubkey]
		if !ok {
			stored, err := e.state.GetAccount(m.Pubkey)
			if err != nil {
				return nil, nil, fmt.Errorf("load %s: %w", m.Pubkey, err)
			}
			stored.Address = m.Pubkey
			acct = stored.Clone()
			byKey[m.Pubkey] = acct
			loaded = append(loaded, loadedAccount{orig: stored, acct: acct})
		}
		infos = append(infos, &AccountInfo{
			key:        m.Pubkey,
			isSigner:   m.IsSigner && tx.SignedBy(m.Pubkey),
			isWritable: m.IsWritable,
			acct:       acct,
		})
	}
	return infos, loaded, nil
}

func accountChanged(a, b *core.Account) bool {
	if a.Lamports != b.Lamports || a.Owner != b.Owner || len(a.Data) != len(b.Data) {
		return true
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return true
		}
	}
	return false
}
