// Package sequencer produces blocks on a single node. Transactions are
// executed in mempool order; one that fails is kept in its block with a
// failed receipt and has no effect on state.
package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/happybigmtn/trust-bazaar/config"
	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/vm"
)

const defaultMaxBlockTxs = 500

// Sequencer is the block producer.
type Sequencer struct {
	cfg     *config.Config
	bc      *core.Blockchain
	state   core.State
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	privKey crypto.PrivateKey
	pubKey  crypto.Pubkey
}

// New creates a Sequencer that signs blocks with privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
) *Sequencer {
	return &Sequencer{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
	}
}

// ProduceBlock drains the mempool into the next block, executes it, signs
// it and commits state. It returns (nil, nil) when there is nothing to do.
func (s *Sequencer) ProduceBlock() (*core.Block, error) {
	limit := s.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = defaultMaxBlockTxs
	}
	txs := s.mempool.Pending(limit)
	if len(txs) == 0 {
		return nil, nil
	}

	tip := s.bc.Tip()
	prevHash, nextHeight := config.GenesisHash, int64(1)
	if tip != nil {
		prevHash, nextHeight = tip.Hash, tip.Header.Height+1
	}
	block := core.NewBlock(nextHeight, prevHash, s.pubKey, txs)

	snap, err := s.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	for _, tx := range txs {
		receipt, err := s.execute(block, tx)
		if err != nil {
			if rerr := s.state.RevertToSnapshot(snap); rerr != nil {
				log.Errorf("revert block %d: %v", nextHeight, rerr)
			}
			return nil, fmt.Errorf("execute tx %s: %w", tx.ID, err)
		}
		block.Receipts = append(block.Receipts, receipt)
	}

	// Root is computed from the write buffer before flushing so that a
	// failed AddBlock leaves nothing persisted.
	block.Header.StateRoot = s.state.ComputeRoot()
	block.Sign(s.privKey)

	if err := s.bc.AddBlock(block); err != nil {
		if rerr := s.state.RevertToSnapshot(snap); rerr != nil {
			log.Errorf("revert block %d: %v", nextHeight, rerr)
		}
		return nil, fmt.Errorf("add block: %w", err)
	}
	if err := s.state.Commit(); err != nil {
		log.Criticalf("block %d stored but state commit failed: %v", block.Header.Height, err)
		return nil, fmt.Errorf("commit state: %w", err)
	}

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	s.mempool.Remove(ids)

	if s.emitter != nil {
		s.emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: block.Header.Height,
			Data: map[string]any{
				"hash":     block.Hash,
				"txs":      len(block.Transactions),
				"receipts": block.Receipts,
			},
		})
	}
	log.Infof("Block %d sealed: %d txs, root %s", block.Header.Height, len(txs), block.Header.StateRoot)
	return block, nil
}

// execute runs one transaction. Program and validation failures become a
// failed receipt; anything else aborts the block.
func (s *Sequencer) execute(block *core.Block, tx *core.Transaction) (*core.Receipt, error) {
	receipt := &core.Receipt{TxID: tx.ID, Height: block.Header.Height, Success: true}
	err := s.exec.ExecuteTx(block, tx)
	if err == nil {
		return receipt, nil
	}
	pe, ok := core.AsProgramError(err)
	if !ok {
		return nil, err
	}
	receipt.Success = false
	receipt.Error = pe
	receipt.Detail = err.Error()
	log.Debugf("tx %s failed: %v", tx.ID, err)
	if s.emitter != nil {
		s.emitter.Emit(events.Event{
			Type:        events.EventTxFailed,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"code": pe.Code, "error": err.Error()},
		})
	}
	return receipt, nil
}

// Run produces a block every interval until ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ProduceBlock(); err != nil {
				log.Errorf("produce block: %v", err)
			}
		}
	}
}
