package divergence

import (
	"encoding/binary"
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

const (
	MaxPlayers = 10
	MaxRounds  = 5
	// GuessUpperBound is the largest guess accepted.
	GuessUpperBound uint64 = 1_000_000
	// EntryFee is charged per submission, in lamports.
	EntryFee uint64 = 100_000_000

	headerSize     = 46
	submissionSize = crypto.PubkeySize + 8
	ArenaSize      = headerSize + MaxPlayers*submissionSize
	PlayerSize     = 50
)

// Phase of an arena.
type Phase uint8

const (
	PhaseSubmitting Phase = 0
	PhaseResolved   Phase = 1
	PhaseFinished   Phase = 2
)

// Submission is one guess of the current round, in arrival order.
type Submission struct {
	Player crypto.Pubkey `json:"player"`
	Guess  uint64        `json:"guess"`
}

// Arena is the game state record.
type Arena struct {
	Initialized bool          `json:"initialized"`
	Authority   crypto.Pubkey `json:"authority"`
	Round       uint8         `json:"round"`
	Phase       Phase         `json:"phase"`
	Pot         uint64        `json:"pot"`
	VaultBump   uint8         `json:"vault_bump"`
	GameBump    uint8         `json:"game_bump"`
	Submissions []Submission  `json:"submissions"`
}

func (a *Arena) guessed(player crypto.Pubkey) bool {
	for _, s := range a.Submissions {
		if s.Player == player {
			return true
		}
	}
	return false
}

// Encode writes a into dst, which must be ArenaSize bytes. Unused
// submission slots are zeroed.
func (a *Arena) Encode(dst []byte) {
	for i := range dst {
		dst[i] = 0
	}
	if a.Initialized {
		dst[0] = 1
	}
	copy(dst[1:33], a.Authority[:])
	dst[33] = a.Round
	dst[34] = uint8(a.Phase)
	binary.LittleEndian.PutUint64(dst[35:43], a.Pot)
	dst[43] = uint8(len(a.Submissions))
	dst[44] = a.VaultBump
	dst[45] = a.GameBump
	for i, s := range a.Submissions {
		off := headerSize + i*submissionSize
		copy(dst[off:off+32], s.Player[:])
		binary.LittleEndian.PutUint64(dst[off+32:off+40], s.Guess)
	}
}

// DecodeArena parses an arena record.
func DecodeArena(b []byte) (*Arena, error) {
	if len(b) != ArenaSize {
		return nil, fmt.Errorf("%w: arena record is %d bytes", core.ErrAccountDataTooSmall, len(b))
	}
	n := int(b[43])
	if n > MaxPlayers {
		return nil, fmt.Errorf("%w: %d submissions", core.ErrInvalidInstructionData, n)
	}
	a := &Arena{
		Initialized: b[0] == 1,
		Round:       b[33],
		Phase:       Phase(b[34]),
		Pot:         binary.LittleEndian.Uint64(b[35:43]),
		VaultBump:   b[44],
		GameBump:    b[45],
		Submissions: make([]Submission, n),
	}
	copy(a.Authority[:], b[1:33])
	for i := range a.Submissions {
		off := headerSize + i*submissionSize
		copy(a.Submissions[i].Player[:], b[off:off+32])
		a.Submissions[i].Guess = binary.LittleEndian.Uint64(b[off+32 : off+40])
	}
	return a, nil
}

// Player is the per-player record that also holds won prizes.
type Player struct {
	Initialized bool          `json:"initialized"`
	Pubkey      crypto.Pubkey `json:"pubkey"`
	Guess       uint64        `json:"guess"`
	Score       uint64        `json:"score"`
	Bump        uint8         `json:"bump"`
}

func (p *Player) Encode(dst []byte) {
	dst[0] = 0
	if p.Initialized {
		dst[0] = 1
	}
	copy(dst[1:33], p.Pubkey[:])
	binary.LittleEndian.PutUint64(dst[33:41], p.Guess)
	binary.LittleEndian.PutUint64(dst[41:49], p.Score)
	dst[49] = p.Bump
}

func DecodePlayer(b []byte) (*Player, error) {
	if len(b) != PlayerSize {
		return nil, fmt.Errorf("%w: player record is %d bytes", core.ErrAccountDataTooSmall, len(b))
	}
	p := &Player{
		Initialized: b[0] == 1,
		Guess:       binary.LittleEndian.Uint64(b[33:41]),
		Score:       binary.LittleEndian.Uint64(b[41:49]),
		Bump:        b[49],
	}
	copy(p.Pubkey[:], b[1:33])
	return p, nil
}
