package divergence

import (
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

// ArenaView is an arena record together with its vault balance.
type ArenaView struct {
	Address crypto.Pubkey `json:"address"`
	Vault   crypto.Pubkey `json:"vault"`
	Balance uint64        `json:"vault_lamports"`
	*Arena
}

// ReadArena loads the arena created by authority.
func ReadArena(state core.State, authority crypto.Pubkey) (*ArenaView, error) {
	addr, _, err := ArenaAddress(authority)
	if err != nil {
		return nil, err
	}
	acct, err := state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct.Owner != ProgramID || len(acct.Data) != ArenaSize || acct.Data[0] != 1 {
		return nil, fmt.Errorf("arena %s: %w", addr, core.ErrNotFound)
	}
	arena, err := DecodeArena(acct.Data)
	if err != nil {
		return nil, err
	}
	vault, _, err := VaultAddress(authority)
	if err != nil {
		return nil, err
	}
	vacct, err := state.GetAccount(vault)
	if err != nil {
		return nil, err
	}
	return &ArenaView{Address: addr, Vault: vault, Balance: vacct.Lamports, Arena: arena}, nil
}

// ReadPlayer loads the player record of key.
func ReadPlayer(state core.State, key crypto.Pubkey) (*Player, error) {
	addr, _, err := PlayerAddress(key)
	if err != nil {
		return nil, err
	}
	acct, err := state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct.Owner != ProgramID || len(acct.Data) != PlayerSize || acct.Data[0] != 1 {
		return nil, fmt.Errorf("player %s: %w", addr, core.ErrNotFound)
	}
	return DecodePlayer(acct.Data)
}
