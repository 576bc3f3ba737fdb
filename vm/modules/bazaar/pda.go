package bazaar

import (
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

// ProgramID is the address the trust bazaar program is registered under.
var ProgramID = crypto.Pubkey(crypto.HashBytes([]byte("trust-bazaar/program")))

var (
	seedGame   = []byte("game")
	seedPlayer = []byte("player")
	seedMatch  = []byte("match")
)

// CanonicalPair orders two identities byte-lexicographically. The smaller
// one is side A.
func CanonicalPair(x, y crypto.Pubkey) (a, b crypto.Pubkey) {
	if y.Less(x) {
		return y, x
	}
	return x, y
}

func gameSeeds(authority crypto.Pubkey) [][]byte {
	return [][]byte{seedGame, authority.Bytes()}
}

func participantSeeds(game, player crypto.Pubkey) [][]byte {
	return [][]byte{seedPlayer, game.Bytes(), player.Bytes()}
}

func matchSeeds(game crypto.Pubkey, round uint8, x, y crypto.Pubkey) [][]byte {
	a, b := CanonicalPair(x, y)
	return [][]byte{seedMatch, game.Bytes(), {round}, a.Bytes(), b.Bytes()}
}

// GameAddress derives the game record address of authority.
func GameAddress(authority crypto.Pubkey) (crypto.Pubkey, uint8, error) {
	return crypto.FindProgramAddress(gameSeeds(authority), ProgramID)
}

// ParticipantAddress derives the record address of player in game.
func ParticipantAddress(game, player crypto.Pubkey) (crypto.Pubkey, uint8, error) {
	return crypto.FindProgramAddress(participantSeeds(game, player), ProgramID)
}

// MatchAddress derives the match record of a pair in a round. The order of
// x and y does not matter.
func MatchAddress(game crypto.Pubkey, round uint8, x, y crypto.Pubkey) (crypto.Pubkey, uint8, error) {
	return crypto.FindProgramAddress(matchSeeds(game, round, x, y), ProgramID)
}

func withBump(seeds [][]byte, bump uint8) [][]byte {
	return append(seeds, []byte{bump})
}

// expectAddress re-derives an address from its seeds and compares it with
// the presented key. A mismatch is never corrected.
func expectAddress(presented crypto.Pubkey, seeds [][]byte) (uint8, error) {
	bump, err := crypto.VerifyProgramAddress(presented, seeds, ProgramID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrInvalidSeeds, err)
	}
	return bump, nil
}

// storedAddress checks a record address against its seeds and the bump
// kept in the record.
func storedAddress(presented crypto.Pubkey, seeds [][]byte, bump uint8) error {
	addr, err := crypto.CreateProgramAddress(withBump(seeds, bump), ProgramID)
	if err != nil || addr != presented {
		return fmt.Errorf("%w: %s", core.ErrInvalidSeeds, presented)
	}
	return nil
}
