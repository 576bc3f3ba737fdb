package vm

import (
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/events"
)

// Context is passed to every Program. It identifies the running program,
// the triggering transaction and block, and lets the program emit events
// and invoke other programs.
type Context struct {
	ProgramID crypto.Pubkey
	Tx        *core.Transaction
	Block     *core.Block

	inv      *invocation
	accounts []*AccountInfo
	depth    int
	frame    *frame
}

// Emit buffers an event. Buffered events are published only if the whole
// transaction commits.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.inv.events = append(c.inv.events, events.Event{Type: typ, Data: data})
}

// Height returns the height of the block being built.
func (c *Context) Height() int64 {
	if c.Block == nil {
		return 0
	}
	return c.Block.Header.Height
}

// Invoke runs ix as a nested call. Every account ix names, and the callee
// program itself, must be among the accounts passed to the caller. A
// callee account may be marked signer when the caller holds its signature
// or when one of signerSeeds, derived under the caller's program id, yields
// its address.
func (c *Context) Invoke(ix core.Instruction, signerSeeds ...[][]byte) error {
	if c.depth+1 >= maxInvokeDepth {
		return core.ErrCallDepthExceeded
	}

	pdaSigners := make(map[crypto.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := crypto.CreateProgramAddress(seeds, c.ProgramID)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrInvalidSeeds, err)
		}
		pdaSigners[addr] = true
	}

	if c.find(ix.ProgramID) == nil {
		return fmt.Errorf("%w: %s", core.ErrMissingAccount, ix.ProgramID)
	}

	calleeInfos := make([]*AccountInfo, 0, len(ix.Accounts))
	for _, m := range ix.Accounts {
		caller := c.find(m.Pubkey)
		if caller == nil {
			return fmt.Errorf("%w: %s", core.ErrMissingAccount, m.Pubkey)
		}
		if m.IsWritable && !caller.isWritable {
			return fmt.Errorf("%w: %s is not writable", core.ErrPrivilegeEscalation, m.Pubkey)
		}
		signer := false
		if m.IsSigner {
			if !caller.isSigner && !pdaSigners[m.Pubkey] {
				return fmt.Errorf("%w: %s did not sign", core.ErrPrivilegeEscalation, m.Pubkey)
			}
			signer = true
		}
		calleeInfos = append(calleeInfos, &AccountInfo{
			key:        m.Pubkey,
			isSigner:   signer,
			isWritable: m.IsWritable,
			acct:       caller.acct,
		})
	}

	// The caller's own changes so far are checked before handing over.
	if err := c.frame.verify(); err != nil {
		return err
	}
	if err := c.inv.run(ix.ProgramID, calleeInfos, ix.Data, c.depth+1); err != nil {
		return err
	}
	c.frame.rebase()
	return nil
}

func (c *Context) find(key crypto.Pubkey) *AccountInfo {
	var found *AccountInfo
	for _, a := range c.accounts {
		if a.key != key {
			continue
		}
		if found == nil {
			found = &AccountInfo{key: a.key, acct: a.acct}
		}
		found.isSigner = found.isSigner || a.isSigner
		found.isWritable = found.isWritable || a.isWritable
	}
	return found
}

// invocation carries state shared by every frame of one transaction.
type invocation struct {
	registry *Registry
	tx       *core.Transaction
	block    *core.Block
	events   []events.Event
}

func (inv *invocation) run(programID crypto.Pubkey, infos []*AccountInfo, data []byte, depth int) error {
	program, ok := inv.registry.Lookup(programID)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownProgram, programID)
	}
	f := newFrame(programID, infos)
	ctx := &Context{
		ProgramID: programID,
		Tx:        inv.tx,
		Block:     inv.block,
		inv:       inv,
		accounts:  infos,
		depth:     depth,
		frame:     f,
	}
	if err := program(ctx, infos, data); err != nil {
		return err
	}
	return f.verify()
}
