package bazaar

import (
	"encoding/binary"
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

// Record sizes of layout version 2. Every v1 field keeps its offset;
// version 2 only appends bytes.
const (
	GameSize        = 42
	ParticipantSize = 59
	MatchSize       = 88
)

const (
	// InitialTokens is the only source of trust tokens.
	InitialTokens uint64 = 1000
	MinPlayers           = 2
	MaxPlayers           = 10
)

// Action is a player's move in a match.
type Action uint8

const (
	Cooperate Action = 0
	Defect    Action = 1
	Unset     Action = 0xFF
)

func (a Action) Valid() bool { return a == Cooperate || a == Defect }

func (a Action) String() string {
	switch a {
	case Cooperate:
		return "cooperate"
	case Defect:
		return "defect"
	case Unset:
		return "unset"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Game is the per-game header record.
type Game struct {
	Initialized    bool          `json:"initialized"`
	Authority      crypto.Pubkey `json:"authority"`
	Round          uint8         `json:"round"`
	NumPlayers     uint8         `json:"num_players"`
	TotalRounds    uint8         `json:"total_rounds"`
	Registered     uint8         `json:"registered"`
	RoundResolved  bool          `json:"round_resolved"`
	Complete       bool          `json:"game_complete"`
	Bump           uint8         `json:"bump"`
	PendingMatches uint16        `json:"pending_matches"`
}

// Active reports whether actions may be submitted.
func (g *Game) Active() bool { return g.Round >= 1 && !g.Complete }

// Encode writes g into dst, which must be GameSize bytes.
func (g *Game) Encode(dst []byte) {
	dst[0] = boolByte(g.Initialized)
	copy(dst[1:33], g.Authority[:])
	dst[33] = g.Round
	dst[34] = g.NumPlayers
	dst[35] = g.TotalRounds
	dst[36] = g.Registered
	dst[37] = boolByte(g.RoundResolved)
	dst[38] = boolByte(g.Complete)
	dst[39] = g.Bump
	binary.LittleEndian.PutUint16(dst[40:42], g.PendingMatches)
}

// DecodeGame parses a game record.
func DecodeGame(b []byte) (*Game, error) {
	if len(b) != GameSize {
		return nil, fmt.Errorf("%w: game record is %d bytes", core.ErrAccountDataTooSmall, len(b))
	}
	g := &Game{
		Initialized:    b[0] == 1,
		Round:          b[33],
		NumPlayers:     b[34],
		TotalRounds:    b[35],
		Registered:     b[36],
		RoundResolved:  b[37] == 1,
		Complete:       b[38] == 1,
		Bump:           b[39],
		PendingMatches: binary.LittleEndian.Uint16(b[40:42]),
	}
	copy(g.Authority[:], b[1:33])
	return g, nil
}

// Participant is one registered player of a game.
type Participant struct {
	Initialized  bool          `json:"initialized"`
	Pubkey       crypto.Pubkey `json:"pubkey"`
	Tokens       uint64        `json:"trust_tokens"`
	Score        int64         `json:"cumulative_score"`
	Cooperations uint32        `json:"cooperation_count"`
	Defections   uint32        `json:"defection_count"`
	Bump         uint8         `json:"bump"`
	Finalized    bool          `json:"finalized"`
}

func (p *Participant) Encode(dst []byte) {
	dst[0] = boolByte(p.Initialized)
	copy(dst[1:33], p.Pubkey[:])
	binary.LittleEndian.PutUint64(dst[33:41], p.Tokens)
	binary.LittleEndian.PutUint64(dst[41:49], uint64(p.Score))
	binary.LittleEndian.PutUint32(dst[49:53], p.Cooperations)
	binary.LittleEndian.PutUint32(dst[53:57], p.Defections)
	dst[57] = p.Bump
	dst[58] = boolByte(p.Finalized)
}

func DecodeParticipant(b []byte) (*Participant, error) {
	if len(b) != ParticipantSize {
		return nil, fmt.Errorf("%w: participant record is %d bytes", core.ErrAccountDataTooSmall, len(b))
	}
	p := &Participant{
		Initialized:  b[0] == 1,
		Tokens:       binary.LittleEndian.Uint64(b[33:41]),
		Score:        int64(binary.LittleEndian.Uint64(b[41:49])),
		Cooperations: binary.LittleEndian.Uint32(b[49:53]),
		Defections:   binary.LittleEndian.Uint32(b[53:57]),
		Bump:         b[57],
		Finalized:    b[58] == 1,
	}
	copy(p.Pubkey[:], b[1:33])
	return p, nil
}

// Match is the settlement record of one pair in one round. Side A is
// the lexicographically smaller identity.
type Match struct {
	Initialized bool          `json:"initialized"`
	Round       uint8         `json:"round"`
	PlayerA     crypto.Pubkey `json:"player_a"`
	PlayerB     crypto.Pubkey `json:"player_b"`
	ActionA     Action        `json:"action_a"`
	StakeA      uint64        `json:"stake_a"`
	SubmittedA  bool          `json:"submitted_a"`
	ActionB     Action        `json:"action_b"`
	StakeB      uint64        `json:"stake_b"`
	SubmittedB  bool          `json:"submitted_b"`
	Resolved    bool          `json:"resolved"`
	Bump        uint8         `json:"bump"`
}

func newMatch(round uint8, a, b crypto.Pubkey, bump uint8) *Match {
	return &Match{
		Initialized: true,
		Round:       round,
		PlayerA:     a,
		PlayerB:     b,
		ActionA:     Unset,
		ActionB:     Unset,
		Bump:        bump,
	}
}

// submitted reports whether key's side has submitted. ok is false when
// key plays neither side.
func (m *Match) submitted(key crypto.Pubkey) (done, ok bool) {
	switch key {
	case m.PlayerA:
		return m.SubmittedA, true
	case m.PlayerB:
		return m.SubmittedB, true
	}
	return false, false
}

func (m *Match) record(key crypto.Pubkey, action Action, stake uint64) {
	if key == m.PlayerA {
		m.ActionA, m.StakeA, m.SubmittedA = action, stake, true
		return
	}
	m.ActionB, m.StakeB, m.SubmittedB = action, stake, true
}

// Complete reports whether both sides have submitted.
func (m *Match) Complete() bool { return m.SubmittedA && m.SubmittedB }

func (m *Match) Encode(dst []byte) {
	dst[0] = boolByte(m.Initialized)
	dst[1] = m.Round
	copy(dst[2:34], m.PlayerA[:])
	copy(dst[34:66], m.PlayerB[:])
	dst[66] = uint8(m.ActionA)
	binary.LittleEndian.PutUint64(dst[67:75], m.StakeA)
	dst[75] = boolByte(m.SubmittedA)
	dst[76] = uint8(m.ActionB)
	binary.LittleEndian.PutUint64(dst[77:85], m.StakeB)
	dst[85] = boolByte(m.SubmittedB)
	dst[86] = boolByte(m.Resolved)
	dst[87] = m.Bump
}

func DecodeMatch(b []byte) (*Match, error) {
	if len(b) != MatchSize {
		return nil, fmt.Errorf("%w: match record is %d bytes", core.ErrAccountDataTooSmall, len(b))
	}
	m := &Match{
		Initialized: b[0] == 1,
		Round:       b[1],
		ActionA:     Action(b[66]),
		StakeA:      binary.LittleEndian.Uint64(b[67:75]),
		SubmittedA:  b[75] == 1,
		ActionB:     Action(b[76]),
		StakeB:      binary.LittleEndian.Uint64(b[77:85]),
		SubmittedB:  b[85] == 1,
		Resolved:    b[86] == 1,
		Bump:        b[87],
	}
	copy(m.PlayerA[:], b[2:34])
	copy(m.PlayerB[:], b[34:66])
	return m, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
