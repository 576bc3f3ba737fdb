package config

import (
	"fmt"
	"sort"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock funds every alloc address in state, commits it, and
// builds block #0 signed by sequencerPriv.
func CreateGenesisBlock(cfg *Config, state core.State, sequencerPriv crypto.PrivateKey) (*core.Block, error) {
	addrs := make([]string, 0, len(cfg.Genesis.Alloc))
	for a := range cfg.Genesis.Alloc {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	for _, a := range addrs {
		pub, err := crypto.PubkeyFromString(a)
		if err != nil {
			return nil, fmt.Errorf("genesis alloc %q: %w", a, err)
		}
		if err := state.SetAccount(&core.Account{Address: pub, Lamports: cfg.Genesis.Alloc[a]}); err != nil {
			return nil, err
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, sequencerPriv.Public(), nil)
	block.Header.StateRoot = stateRoot
	// The chain id is sealed into the tx root of block #0.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(sequencerPriv)
	return block, nil
}

// IsGenesisHash reports whether h is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return h == GenesisHash
}
