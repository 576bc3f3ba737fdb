package vm

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

// frame records the accounts one program saw on entry so its changes can
// be validated when it returns.
type frame struct {
	programID crypto.Pubkey
	entries   []*frameEntry
}

type frameEntry struct {
	acct     *core.Account
	pre      *core.Account
	writable bool
}

func newFrame(programID crypto.Pubkey, infos []*AccountInfo) *frame {
	f := &frame{programID: programID}
	seen := make(map[*core.Account]*frameEntry, len(infos))
	for _, info := range infos {
		if e, ok := seen[info.acct]; ok {
			e.writable = e.writable || info.isWritable
			continue
		}
		e := &frameEntry{acct: info.acct, pre: info.acct.Clone(), writable: info.isWritable}
		seen[info.acct] = e
		f.entries = append(f.entries, e)
	}
	return f
}

// verify checks every account change against the ownership rules and that
// the lamport total is unchanged.
func (f *frame) verify() error {
	var preSum, postSum, carry uint64
	for _, e := range f.entries {
		if err := checkTransition(f.programID, e.pre, e.acct, e.writable); err != nil {
			return fmt.Errorf("%w: account %s", err, e.acct.Address)
		}
		preSum, carry = bits.Add64(preSum, e.pre.Lamports, 0)
		if carry != 0 {
			return core.ErrArithmeticOverflow
		}
		postSum, carry = bits.Add64(postSum, e.acct.Lamports, 0)
		if carry != 0 {
			return core.ErrArithmeticOverflow
		}
	}
	if preSum != postSum {
		return fmt.Errorf("%w: before %d after %d", core.ErrUnbalancedInstruction, preSum, postSum)
	}
	return nil
}

// rebase accepts the current account values as the new baseline, after a
// nested invocation has validated its own changes.
func (f *frame) rebase() {
	for _, e := range f.entries {
		e.pre = e.acct.Clone()
	}
}

func checkTransition(program crypto.Pubkey, pre, post *core.Account, writable bool) error {
	owned := pre.Owner == program

	if pre.Owner != post.Owner {
		if !writable || !owned || !allZero(post.Data) {
			return core.ErrModifiedProgramID
		}
	}
	if post.Lamports < pre.Lamports && !owned {
		return core.ErrExternalLamportSpend
	}
	if post.Lamports != pre.Lamports && !writable {
		return core.ErrReadonlyModified
	}
	if len(pre.Data) != len(post.Data) {
		if !writable || !owned || len(pre.Data) != 0 {
			return core.ErrInvalidRealloc
		}
		return nil
	}
	if !bytes.Equal(pre.Data, post.Data) {
		if !writable {
			return core.ErrReadonlyModified
		}
		if !owned {
			return core.ErrExternalDataModified
		}
	}
	return nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
