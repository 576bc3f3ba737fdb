package wallet

import (
	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
	"github.com/happybigmtn/trust-bazaar/vm/modules/divergence"
	"github.com/happybigmtn/trust-bazaar/vm/modules/system"
)

// Wallet holds a key pair and builds signed transactions for one chain.
// Every builder derives the record addresses it needs.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.Pubkey
	chainID string
	fee     uint64
}

// New creates a Wallet for chainID from an existing private key.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// SetFee sets the fee attached to every transaction built afterwards.
func (w *Wallet) SetFee(fee uint64) { w.fee = fee }

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey { return w.priv }

// Pubkey returns the wallet identity.
func (w *Wallet) Pubkey() crypto.Pubkey { return w.pub }

// NewTx wraps ix in a transaction paid and signed by the wallet. nonce
// must match the account's current nonce.
func (w *Wallet) NewTx(nonce uint64, ix core.Instruction) *core.Transaction {
	tx := core.NewTransaction(w.chainID, w.pub, nonce, w.fee, ix)
	tx.Sign(w.priv)
	return tx
}

func (w *Wallet) build(nonce uint64, ix core.Instruction, err error) (*core.Transaction, error) {
	if err != nil {
		return nil, err
	}
	return w.NewTx(nonce, ix), nil
}

// Transfer moves lamports from the wallet to to.
func (w *Wallet) Transfer(nonce uint64, to crypto.Pubkey, lamports uint64) *core.Transaction {
	return w.NewTx(nonce, system.Transfer(w.pub, to, lamports))
}

// GameAddress returns the address of the game this wallet would author.
func (w *Wallet) GameAddress() (crypto.Pubkey, error) {
	addr, _, err := bazaar.GameAddress(w.pub)
	return addr, err
}

// CreateGame creates a game with the wallet as authority.
func (w *Wallet) CreateGame(nonce uint64, numPlayers, totalRounds uint8) (*core.Transaction, error) {
	ix, err := bazaar.NewCreateInstruction(w.pub, numPlayers, totalRounds)
	return w.build(nonce, ix, err)
}

// Register joins game.
func (w *Wallet) Register(nonce uint64, game crypto.Pubkey) (*core.Transaction, error) {
	ix, err := bazaar.NewRegisterInstruction(w.pub, game)
	return w.build(nonce, ix, err)
}

// Submit records the wallet's action and stake against opponent.
func (w *Wallet) Submit(nonce uint64, game crypto.Pubkey, round uint8, opponent crypto.Pubkey, action bazaar.Action, stake uint64) (*core.Transaction, error) {
	ix, err := bazaar.NewSubmitInstruction(w.pub, game, round, opponent, action, stake)
	return w.build(nonce, ix, err)
}

// Resolve settles the match of x and y. The wallet must be the authority.
func (w *Wallet) Resolve(nonce uint64, game crypto.Pubkey, round uint8, x, y crypto.Pubkey) (*core.Transaction, error) {
	ix, err := bazaar.NewResolveInstruction(w.pub, game, round, x, y)
	return w.build(nonce, ix, err)
}

// Advance closes the current round of game.
func (w *Wallet) Advance(nonce uint64, game crypto.Pubkey) *core.Transaction {
	return w.NewTx(nonce, bazaar.NewAdvanceInstruction(w.pub, game))
}

// Finalize marks player's record final once game is complete.
func (w *Wallet) Finalize(nonce uint64, game, player crypto.Pubkey) (*core.Transaction, error) {
	ix, err := bazaar.NewFinalizeInstruction(w.pub, game, player)
	return w.build(nonce, ix, err)
}

// Reclaim recovers the wallet's stake from a match left open when its
// round closed.
func (w *Wallet) Reclaim(nonce uint64, game crypto.Pubkey, round uint8, opponent crypto.Pubkey) (*core.Transaction, error) {
	ix, err := bazaar.NewReclaimInstruction(w.pub, game, round, opponent)
	return w.build(nonce, ix, err)
}

// InitArena opens a divergence arena with the wallet as authority.
func (w *Wallet) InitArena(nonce uint64) (*core.Transaction, error) {
	ix, err := divergence.NewInitInstruction(w.pub)
	return w.build(nonce, ix, err)
}

// Guess pays the entry fee and submits guess to authority's arena.
func (w *Wallet) Guess(nonce uint64, authority crypto.Pubkey, guess uint64) (*core.Transaction, error) {
	ix, err := divergence.NewSubmitGuessInstruction(w.pub, authority, guess)
	return w.build(nonce, ix, err)
}

// ResolveArena closes the current arena round. players must include the
// winner.
func (w *Wallet) ResolveArena(nonce uint64, players []crypto.Pubkey) (*core.Transaction, error) {
	ix, err := divergence.NewResolveRoundInstruction(w.pub, players)
	return w.build(nonce, ix, err)
}

// ClaimPrize withdraws the wallet's divergence winnings.
func (w *Wallet) ClaimPrize(nonce uint64) (*core.Transaction, error) {
	ix, err := divergence.NewClaimPrizeInstruction(w.pub)
	return w.build(nonce, ix, err)
}
