package bazaar

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
)

func TestGameLayout(t *testing.T) {
	g := &Game{
		Initialized:    true,
		Authority:      crypto.Pubkey{0xAA},
		Round:          2,
		NumPlayers:     4,
		TotalRounds:    5,
		Registered:     4,
		RoundResolved:  true,
		Bump:           253,
		PendingMatches: 0x0102,
	}
	buf := make([]byte, GameSize)
	g.Encode(buf)

	assert.Equal(t, byte(1), buf[0])
	assert.Equal(t, byte(0xAA), buf[1])
	assert.Equal(t, []byte{2, 4, 5, 4, 1, 0, 253}, buf[33:40])
	assert.Equal(t, uint16(0x0102), binary.LittleEndian.Uint16(buf[40:]))

	back, err := DecodeGame(buf)
	require.NoError(t, err)
	assert.Equal(t, g, back)

	_, err = DecodeGame(buf[:40])
	assert.ErrorIs(t, err, core.ErrAccountDataTooSmall)
}

func TestParticipantLayout(t *testing.T) {
	p := &Participant{
		Initialized:  true,
		Pubkey:       crypto.Pubkey{7},
		Tokens:       850,
		Score:        -3,
		Cooperations: 2,
		Defections:   9,
		Bump:         250,
		Finalized:    true,
	}
	buf := make([]byte, ParticipantSize)
	p.Encode(buf)

	assert.Equal(t, uint64(850), binary.LittleEndian.Uint64(buf[33:]))
	assert.Equal(t, int64(-3), int64(binary.LittleEndian.Uint64(buf[41:])))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[49:]))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(buf[53:]))
	assert.Equal(t, byte(250), buf[57])
	assert.Equal(t, byte(1), buf[58])

	back, err := DecodeParticipant(buf)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestMatchLayout(t *testing.T) {
	m := newMatch(3, crypto.Pubkey{1}, crypto.Pubkey{2}, 254)
	m.record(crypto.Pubkey{2}, Defect, 40)
	buf := make([]byte, MatchSize)
	m.Encode(buf)

	assert.Equal(t, byte(3), buf[1])
	assert.Equal(t, byte(1), buf[2])
	assert.Equal(t, byte(2), buf[34])
	assert.Equal(t, byte(Unset), buf[66], "side A has not acted")
	assert.Equal(t, byte(0), buf[75])
	assert.Equal(t, byte(Defect), buf[76])
	assert.Equal(t, uint64(40), binary.LittleEndian.Uint64(buf[77:]))
	assert.Equal(t, byte(1), buf[85])
	assert.Equal(t, byte(0), buf[86])
	assert.Equal(t, byte(254), buf[87])

	back, err := DecodeMatch(buf)
	require.NoError(t, err)
	assert.Equal(t, m, back)
	assert.False(t, back.Complete())
}

func TestOpcodeAccountMinimums(t *testing.T) {
	assert.Equal(t, 3, OpCreate.MinAccounts())
	assert.Equal(t, 5, OpSubmitAction.MinAccounts())
	assert.Equal(t, 4, OpReclaimStake.MinAccounts())
	assert.Equal(t, "reclaim_stake", OpReclaimStake.String())
	assert.False(t, Opcode(7).valid())
}

func TestSubmitPayloadRoundTrip(t *testing.T) {
	args := SubmitArgs{Opponent: crypto.Pubkey{9, 8}, Action: Defect, Stake: 77}
	data := args.Encode()
	require.Len(t, data, 42)
	got, err := decodeSubmit(data[1:])
	require.NoError(t, err)
	assert.Equal(t, args, got)

	_, err = decodeSubmit(data[1:40])
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestCheckedAdd(t *testing.T) {
	_, ok := addUint64(^uint64(0), 1)
	assert.False(t, ok)
	_, ok = addInt64(1<<62, 1<<62)
	assert.False(t, ok)
	s, ok := addInt64(-5, 3)
	assert.True(t, ok)
	assert.Equal(t, int64(-2), s)
}
