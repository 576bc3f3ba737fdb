package core

import (
	"encoding/json"
	"time"

	"github.com/happybigmtn/trust-bazaar/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height      int64         `json:"height"`
	PrevHash    string        `json:"prev_hash"`
	StateRoot   string        `json:"state_root"`   // state after executing this block
	TxRoot      string        `json:"tx_root"`      // hash of all transaction IDs
	ReceiptRoot string        `json:"receipt_root"` // hash of all receipts
	Timestamp   int64         `json:"timestamp"`
	Sequencer   crypto.Pubkey `json:"sequencer"`
}

// Receipt records the outcome of one transaction. A failed transaction is
// still included in its block; it simply left state untouched.
type Receipt struct {
	TxID    string        `json:"tx_id"`
	Height  int64         `json:"height"`
	Success bool          `json:"success"`
	Error   *ProgramError `json:"error,omitempty"`
	Detail  string        `json:"detail,omitempty"`
}

// Block is an ordered batch of transactions with their receipts.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Receipts     []*Receipt     `json:"receipts"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// NewBlock creates an unsigned block. Receipts are filled in by the
// sequencer as it executes.
func NewBlock(height int64, prevHash string, sequencer crypto.Pubkey, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Sequencer: sequencer,
		},
		Transactions: txs,
	}
}

// ComputeHash returns the SHA-256 hash of the serialised header.
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign seals the receipt root, sets Hash and signs the block.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Header.ReceiptRoot = ComputeReceiptRoot(b.Receipts)
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks the block signature against the sequencer key in the header.
func (b *Block) Verify() error {
	return crypto.Verify(b.Header.Sequencer, []byte(b.Hash), b.Signature)
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, []byte(tx.ID)...)
	}
	return crypto.Hash(ids)
}

// ComputeReceiptRoot hashes the serialised receipts in order.
func ComputeReceiptRoot(receipts []*Receipt) string {
	data, err := json.Marshal(receipts)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}
