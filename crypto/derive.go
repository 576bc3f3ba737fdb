package crypto

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// MaxSeeds bounds the number of seeds, including the bump.
	MaxSeeds = 16
	// MaxSeedLen bounds the length of a single seed.
	MaxSeedLen = 32

	derivedAddressMarker = "ProgramDerivedAddress"
)

var (
	// ErrInvalidSeeds is returned for seed lists the derivation rejects.
	ErrInvalidSeeds = errors.New("invalid seeds")
	// ErrOnCurve is returned when a candidate address is a valid ed25519
	// point and could therefore have a private key.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")
	// ErrNoViableBump is returned when all 256 bumps land on the curve.
	ErrNoViableBump = errors.New("no viable bump seed")
)

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != PubkeySize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds under programID and fails when the
// result is on the curve. The seeds must already include the bump.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, fmt.Errorf("%w: %d seeds, max %d", ErrInvalidSeeds, len(seeds), MaxSeeds)
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return Pubkey{}, fmt.Errorf("%w: seed %d is %d bytes, max %d", ErrInvalidSeeds, i, len(s), MaxSeedLen)
		}
		parts = append(parts, s)
	}
	parts = append(parts, programID[:], []byte(derivedAddressMarker))
	digest := HashBytes(parts...)
	if IsOnCurve(digest[:]) {
		return Pubkey{}, ErrOnCurve
	}
	return Pubkey(digest), nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address with its bump. The same inputs always give the same
// result.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Pubkey{}, 0, fmt.Errorf("%w: %d seeds leaves no room for a bump", ErrInvalidSeeds, len(seeds))
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return Pubkey{}, 0, err
		}
		return addr, uint8(bump), nil
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// VerifyProgramAddress re-derives the address for seeds and compares it
// byte for byte with presented. It returns the bump on success.
func VerifyProgramAddress(presented Pubkey, seeds [][]byte, programID Pubkey) (uint8, error) {
	want, bump, err := FindProgramAddress(seeds, programID)
	if err != nil {
		return 0, err
	}
	if want != presented {
		return 0, fmt.Errorf("%w: presented %s, derived %s", ErrInvalidSeeds, presented, want)
	}
	return bump, nil
}
