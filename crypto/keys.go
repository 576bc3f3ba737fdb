package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the width of every identity and record address.
const PubkeySize = 32

// Pubkey is a 32-byte identity. It is either an ed25519 public key or a
// derived address that has no private key.
type Pubkey [PubkeySize]byte

// PrivateKey wraps ed25519 private key bytes.
type PrivateKey []byte

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (PrivateKey, Pubkey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, Pubkey{}, err
	}
	var pk Pubkey
	copy(pk[:], pub)
	return PrivateKey(priv), pk, nil
}

// Public derives the public key from the private key.
func (priv PrivateKey) Public() Pubkey {
	var pk Pubkey
	copy(pk[:], ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
	return pk
}

// Hex returns the hex-encoded private key.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// String returns the base58 form used on the wire and in logs.
func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

// Hex returns the 64-char hex form.
func (pk Pubkey) Hex() string {
	return hex.EncodeToString(pk[:])
}

// Bytes returns a copy of the key as a slice.
func (pk Pubkey) Bytes() []byte {
	b := make([]byte, PubkeySize)
	copy(b, pk[:])
	return b
}

// IsZero reports whether every byte is zero.
func (pk Pubkey) IsZero() bool {
	return pk == Pubkey{}
}

// Less orders keys byte-lexicographically.
func (pk Pubkey) Less(other Pubkey) bool {
	return bytes.Compare(pk[:], other[:]) < 0
}

// MarshalText implements encoding.TextMarshaler using base58.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := PubkeyFromString(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// PubkeyFromString decodes a base58 key.
func PubkeyFromString(s string) (Pubkey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid pubkey %q: %w", s, err)
	}
	return PubkeyFromBytes(b)
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeySize {
		return pk, fmt.Errorf("pubkey must be %d bytes, got %d", PubkeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PrivKeyFromHex decodes a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("privkey must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return PrivateKey(b), nil
}
