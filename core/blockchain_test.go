package core

import (
	"errors"
	"testing"
)

type mapStore struct {
	byHash   map[string]*Block
	byHeight map[int64]*Block
	tip      string
}

func newMapStore() *mapStore {
	return &mapStore{byHash: make(map[string]*Block), byHeight: make(map[int64]*Block)}
}

func (s *mapStore) GetBlock(hash string) (*Block, error) {
	b, ok := s.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *mapStore) GetBlockByHeight(height int64) (*Block, error) {
	b, ok := s.byHeight[height]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *mapStore) GetTip() (string, error) { return s.tip, nil }

func (s *mapStore) CommitBlock(b *Block) error {
	s.byHash[b.Hash] = b
	s.byHeight[b.Header.Height] = b
	s.tip = b.Hash
	return nil
}

func TestBlockchainAppend(t *testing.T) {
	priv, pub := mustKey(t)
	store := newMapStore()
	bc := NewBlockchain(store, pub)
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}
	if bc.Tip() != nil || bc.Height() != 0 {
		t.Fatal("fresh chain should have no tip")
	}

	genesis := NewBlock(0, "genesis", pub, nil)
	genesis.Sign(priv)
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatalf("AddBlock genesis: %v", err)
	}
	next := NewBlock(1, genesis.Hash, pub, nil)
	next.Sign(priv)
	if err := bc.AddBlock(next); err != nil {
		t.Fatalf("AddBlock 1: %v", err)
	}
	if bc.Height() != 1 || bc.Tip().Hash != next.Hash {
		t.Errorf("tip: height %d hash %s", bc.Height(), bc.Tip().Hash)
	}

	gap := NewBlock(3, next.Hash, pub, nil)
	gap.Sign(priv)
	if err := bc.AddBlock(gap); err == nil {
		t.Error("a height gap must be rejected")
	}
	fork := NewBlock(2, genesis.Hash, pub, nil)
	fork.Sign(priv)
	if err := bc.AddBlock(fork); err == nil {
		t.Error("a block not linked to the tip must be rejected")
	}
	unsigned := NewBlock(2, next.Hash, pub, nil)
	unsigned.Hash = unsigned.ComputeHash()
	if err := bc.AddBlock(unsigned); err == nil {
		t.Error("an unsigned block must be rejected")
	}

	resumed := NewBlockchain(store, pub)
	if err := resumed.Init(); err != nil {
		t.Fatal(err)
	}
	if resumed.Height() != 1 {
		t.Errorf("resumed height: got %d want 1", resumed.Height())
	}
}

func TestBlockchainRejectsOtherProducer(t *testing.T) {
	priv, pub := mustKey(t)
	otherPriv, other := mustKey(t)
	store := newMapStore()
	bc := NewBlockchain(store, pub)

	foreign := NewBlock(0, "genesis", other, nil)
	foreign.Sign(otherPriv)
	if err := bc.AddBlock(foreign); !errors.Is(err, ErrWrongSequencer) {
		t.Fatalf("got %v want ErrWrongSequencer", err)
	}

	genesis := NewBlock(0, "genesis", pub, nil)
	genesis.Sign(priv)
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}
	if err := NewBlockchain(store, other).Init(); !errors.Is(err, ErrWrongSequencer) {
		t.Errorf("resuming with another key: got %v want ErrWrongSequencer", err)
	}
}
