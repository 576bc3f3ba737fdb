package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/happybigmtn/trust-bazaar/crypto"
)

// Signature binds a signer to its hex ed25519 signature over Transaction.Hash.
type Signature struct {
	Signer crypto.Pubkey `json:"signer"`
	Sig    string        `json:"sig"`
}

// Transaction is the signed envelope around one instruction. From pays the
// fee and owns the nonce used for replay protection; every account meta
// marked as signer must carry a signature.
type Transaction struct {
	ID          string        `json:"id"`
	ChainID     string        `json:"chain_id"`
	From        crypto.Pubkey `json:"from"`
	Nonce       uint64        `json:"nonce"`
	Fee         uint64        `json:"fee"`
	Timestamp   int64         `json:"timestamp"`
	Instruction Instruction   `json:"instruction"`
	Signatures  []Signature   `json:"signatures"`
}

// signingBody holds the fields that are covered by the signatures.
type signingBody struct {
	ChainID     string        `json:"chain_id"`
	From        crypto.Pubkey `json:"from"`
	Nonce       uint64        `json:"nonce"`
	Fee         uint64        `json:"fee"`
	Timestamp   int64         `json:"timestamp"`
	Instruction Instruction   `json:"instruction"`
}

// Hash returns a deterministic hash of the transaction (sans signatures).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:     tx.ChainID,
		From:        tx.From,
		Nonce:       tx.Nonce,
		Fee:         tx.Fee,
		Timestamp:   tx.Timestamp,
		Instruction: tx.Instruction,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign adds priv's signature and sets ID. Call once per required signer.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	signer := priv.Public()
	for i, s := range tx.Signatures {
		if s.Signer == signer {
			tx.Signatures[i].Sig = crypto.Sign(priv, []byte(hash))
			tx.ID = hash
			return
		}
	}
	tx.Signatures = append(tx.Signatures, Signature{Signer: signer, Sig: crypto.Sign(priv, []byte(hash))})
	tx.ID = hash
}

// SignedBy reports whether a verified signature from key is present.
// It does not re-verify; call Verify first.
func (tx *Transaction) SignedBy(key crypto.Pubkey) bool {
	for _, s := range tx.Signatures {
		if s.Signer == key {
			return true
		}
	}
	return false
}

// Verify checks every signature, and that the fee payer and every account
// marked as signer have signed.
func (tx *Transaction) Verify() error {
	if tx.From.IsZero() {
		return errors.New("missing from field")
	}
	if len(tx.Signatures) == 0 {
		return errors.New("transaction is unsigned")
	}
	hash := []byte(tx.Hash())
	for _, s := range tx.Signatures {
		if err := crypto.Verify(s.Signer, hash, s.Sig); err != nil {
			return err
		}
	}
	if !tx.SignedBy(tx.From) {
		return fmt.Errorf("fee payer %s did not sign", tx.From)
	}
	for _, key := range tx.Instruction.Signers() {
		if !tx.SignedBy(key) {
			return fmt.Errorf("%w: %s", ErrMissingRequiredSignature, key)
		}
	}
	return nil
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, from crypto.Pubkey, nonce, fee uint64, ix Instruction) *Transaction {
	return &Transaction{
		ChainID:     chainID,
		From:        from,
		Nonce:       nonce,
		Fee:         fee,
		Timestamp:   time.Now().UnixNano(),
		Instruction: ix,
	}
}
