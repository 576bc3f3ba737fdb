package bazaar

import (
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

// ReadGame loads the game record at addr from state.
func ReadGame(state core.State, addr crypto.Pubkey) (*Game, error) {
	acct, err := ownedRecord(state, addr, GameSize)
	if err != nil {
		return nil, err
	}
	return DecodeGame(acct.Data)
}

// ReadParticipant loads the participant record at addr from state.
func ReadParticipant(state core.State, addr crypto.Pubkey) (*Participant, error) {
	acct, err := ownedRecord(state, addr, ParticipantSize)
	if err != nil {
		return nil, err
	}
	return DecodeParticipant(acct.Data)
}

// ReadMatch loads the match record at addr from state.
func ReadMatch(state core.State, addr crypto.Pubkey) (*Match, error) {
	acct, err := ownedRecord(state, addr, MatchSize)
	if err != nil {
		return nil, err
	}
	return DecodeMatch(acct.Data)
}

func ownedRecord(state core.State, addr crypto.Pubkey, size int) (*core.Account, error) {
	acct, err := state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct.Owner != ProgramID || len(acct.Data) != size || acct.Data[0] != 1 {
		return nil, fmt.Errorf("%s: %w", addr, core.ErrNotFound)
	}
	return acct, nil
}

// Records is every record that belongs to one game.
type Records struct {
	Game         *Game
	Participants map[crypto.Pubkey]*Participant
	Matches      map[crypto.Pubkey]*Match
}

// Collect scans the program's accounts and keeps those whose address
// re-derives under game.
func Collect(state core.State, game crypto.Pubkey) (*Records, error) {
	g, err := ReadGame(state, game)
	if err != nil {
		return nil, err
	}
	owned, err := state.AccountsOwnedBy(ProgramID)
	if err != nil {
		return nil, err
	}
	recs := &Records{
		Game:         g,
		Participants: make(map[crypto.Pubkey]*Participant),
		Matches:      make(map[crypto.Pubkey]*Match),
	}
	for _, acct := range owned {
		switch len(acct.Data) {
		case ParticipantSize:
			p, err := DecodeParticipant(acct.Data)
			if err != nil || !p.Initialized {
				continue
			}
			if storedAddress(acct.Address, participantSeeds(game, p.Pubkey), p.Bump) == nil {
				recs.Participants[acct.Address] = p
			}
		case MatchSize:
			m, err := DecodeMatch(acct.Data)
			if err != nil || !m.Initialized {
				continue
			}
			if storedAddress(acct.Address, matchSeeds(game, m.Round, m.PlayerA, m.PlayerB), m.Bump) == nil {
				recs.Matches[acct.Address] = m
			}
		}
	}
	return recs, nil
}

// AuditReport checks trust token conservation for one game: the sum of
// balances plus the stakes held in unresolved matches equals the grants.
type AuditReport struct {
	Game         crypto.Pubkey `json:"game"`
	Participants int           `json:"participants"`
	Granted      uint64        `json:"granted"`
	Balances     uint64        `json:"balances"`
	Escrow       uint64        `json:"escrow"`
	Balanced     bool          `json:"balanced"`
}

// Audit builds the conservation report of game.
func Audit(state core.State, game crypto.Pubkey) (*AuditReport, error) {
	recs, err := Collect(state, game)
	if err != nil {
		return nil, err
	}
	rep := &AuditReport{Game: game, Participants: len(recs.Participants)}
	rep.Granted = uint64(len(recs.Participants)) * InitialTokens
	for _, p := range recs.Participants {
		rep.Balances += p.Tokens
	}
	for _, m := range recs.Matches {
		if m.Resolved {
			continue
		}
		if m.SubmittedA {
			rep.Escrow += m.StakeA
		}
		if m.SubmittedB {
			rep.Escrow += m.StakeB
		}
	}
	rep.Balanced = rep.Balances+rep.Escrow == rep.Granted
	return rep, nil
}
