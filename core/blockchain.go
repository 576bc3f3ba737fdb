package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/happybigmtn/trust-bazaar/crypto"
)

// ErrWrongSequencer is returned for a block produced by any key other than
// the chain's sequencer.
var ErrWrongSequencer = errors.New("block not produced by the sequencer")

// BlockStore persists blocks. Implementations live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	GetBlockByHeight(height int64) (*Block, error)
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	// CommitBlock writes the block, its height entry and the tip pointer
	// in one batch.
	CommitBlock(block *Block) error
}

// Blockchain is the linear history written by a single sequencer. There
// are no forks: every block extends the tip by one and carries the
// sequencer's signature.
type Blockchain struct {
	mu        sync.RWMutex
	store     BlockStore
	sequencer crypto.Pubkey
	tip       *Block
}

// NewBlockchain returns the chain of sequencer backed by store. Call Init
// to resume from a persisted tip.
func NewBlockchain(store BlockStore, sequencer crypto.Pubkey) *Blockchain {
	return &Blockchain{store: store, sequencer: sequencer}
}

// Init loads the persisted tip. A tip sealed by another key means the
// node was started with the wrong sequencer key.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	if tip.Header.Sequencer != bc.sequencer {
		return fmt.Errorf("%w: tip sealed by %s", ErrWrongSequencer, tip.Header.Sequencer)
	}
	bc.tip = tip
	return nil
}

// AddBlock appends block. It must be signed by the sequencer and follow
// the tip directly.
func (bc *Blockchain) AddBlock(block *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if block.Header.Sequencer != bc.sequencer {
		return fmt.Errorf("%w: %s", ErrWrongSequencer, block.Header.Sequencer)
	}
	if tip := bc.tip; tip != nil {
		if block.Header.Height != tip.Header.Height+1 {
			return fmt.Errorf("block height %d does not follow tip %d", block.Header.Height, tip.Header.Height)
		}
		if block.Header.PrevHash != tip.Hash {
			return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
		}
	}
	if err := block.Verify(); err != nil {
		return fmt.Errorf("block %d: %w", block.Header.Height, err)
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	bc.tip = block
	return nil
}

func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	return bc.store.GetBlock(hash)
}

func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the latest block, or nil before genesis.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height is the tip's height, 0 before genesis.
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.tip == nil {
		return 0
	}
	return bc.tip.Header.Height
}

// Sequencer returns the only key allowed to extend the chain.
func (bc *Blockchain) Sequencer() crypto.Pubkey {
	return bc.sequencer
}
