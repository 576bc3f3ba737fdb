package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("signature verification failed")

// Sign signs msg and returns the signature hex encoded.
func Sign(priv PrivateKey, msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(ed25519.PrivateKey(priv), msg))
}

// Verify checks a hex signature produced by signer over msg.
func Verify(signer Pubkey, msg []byte, sigHex string) error {
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(raw))
	}
	if !ed25519.Verify(signer[:], msg, raw) {
		return fmt.Errorf("%w for %s", ErrBadSignature, signer)
	}
	return nil
}
