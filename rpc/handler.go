package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/indexer"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
	"github.com/happybigmtn/trust-bazaar/vm/modules/divergence"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())
	case "getBlock":
		return h.getBlock(req)
	case "getAccount":
		return h.getAccount(req)
	case "getGame":
		return h.getGame(req)
	case "getParticipant":
		return h.getParticipant(req)
	case "getMatch":
		return h.getMatch(req)
	case "getParticipants":
		return h.getParticipants(req)
	case "getMatches":
		return h.getMatches(req)
	case "getReceipt":
		return h.getReceipt(req)
	case "deriveAddresses":
		return h.deriveAddresses(req)
	case "audit":
		return h.audit(req)
	case "getArena":
		return h.getArena(req)
	case "sendTx":
		return h.sendTx(req)
	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// GameView is a decoded game record with its address.
type GameView struct {
	Address crypto.Pubkey `json:"address"`
	*bazaar.Game
}

// ParticipantView is a decoded participant record with its address.
type ParticipantView struct {
	Address crypto.Pubkey `json:"address"`
	*bazaar.Participant
}

// MatchView is a decoded match record with its address.
type MatchView struct {
	Address crypto.Pubkey `json:"address"`
	*bazaar.Match
}

// Addresses are the derived record addresses of one (game, player,
// opponent, round) tuple. Fields the request did not ask for stay empty.
type Addresses struct {
	Game        *crypto.Pubkey `json:"game,omitempty"`
	Participant *crypto.Pubkey `json:"participant,omitempty"`
	Opponent    *crypto.Pubkey `json:"opponent_participant,omitempty"`
	Match       *crypto.Pubkey `json:"match,omitempty"`
}

func decodeParams(req Request, v any) *Response {
	if len(req.Params) == 0 {
		r := errResponse(req.ID, CodeInvalidParams, "params are required")
		return &r
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		r := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &r
	}
	return nil
}

func lookupError(id any, err error) Response {
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(id, CodeNotFound, err.Error())
	}
	return errResponse(id, CodeInternalError, err.Error())
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		}
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return lookupError(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getAccount(req Request) Response {
	var params struct {
		Address crypto.Pubkey `json:"address"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	acc.Address = params.Address
	return okResponse(req.ID, acc)
}

// getGame accepts either the game address or its authority.
func (h *Handler) getGame(req Request) Response {
	var params struct {
		Address   *crypto.Pubkey `json:"address"`
		Authority *crypto.Pubkey `json:"authority"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	var addr crypto.Pubkey
	switch {
	case params.Address != nil:
		addr = *params.Address
	case params.Authority != nil:
		var err error
		if addr, _, err = bazaar.GameAddress(*params.Authority); err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
	default:
		return errResponse(req.ID, CodeInvalidParams, "address or authority is required")
	}
	g, err := bazaar.ReadGame(h.state, addr)
	if err != nil {
		return lookupError(req.ID, err)
	}
	return okResponse(req.ID, GameView{Address: addr, Game: g})
}

func (h *Handler) getParticipant(req Request) Response {
	var params struct {
		Game   crypto.Pubkey `json:"game"`
		Player crypto.Pubkey `json:"player"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	addr, _, err := bazaar.ParticipantAddress(params.Game, params.Player)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	p, err := bazaar.ReadParticipant(h.state, addr)
	if err != nil {
		return lookupError(req.ID, err)
	}
	return okResponse(req.ID, ParticipantView{Address: addr, Participant: p})
}

func (h *Handler) getMatch(req Request) Response {
	var params struct {
		Game     crypto.Pubkey `json:"game"`
		Round    uint8         `json:"round"`
		Player   crypto.Pubkey `json:"player"`
		Opponent crypto.Pubkey `json:"opponent"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	addr, _, err := bazaar.MatchAddress(params.Game, params.Round, params.Player, params.Opponent)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	m, err := bazaar.ReadMatch(h.state, addr)
	if err != nil {
		return lookupError(req.ID, err)
	}
	return okResponse(req.ID, MatchView{Address: addr, Match: m})
}

func (h *Handler) getParticipants(req Request) Response {
	var params struct {
		Game crypto.Pubkey `json:"game"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	addrs, err := h.indexer.Participants(params.Game.String())
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	out := make([]ParticipantView, 0, len(addrs))
	for _, s := range addrs {
		addr, err := crypto.PubkeyFromString(s)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		p, err := bazaar.ReadParticipant(h.state, addr)
		if err != nil {
			return lookupError(req.ID, err)
		}
		out = append(out, ParticipantView{Address: addr, Participant: p})
	}
	return okResponse(req.ID, out)
}

func (h *Handler) getMatches(req Request) Response {
	var params struct {
		Game  crypto.Pubkey `json:"game"`
		Round uint8         `json:"round"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	addrs, err := h.indexer.Matches(params.Game.String(), params.Round)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	out := make([]MatchView, 0, len(addrs))
	for _, s := range addrs {
		addr, err := crypto.PubkeyFromString(s)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		m, err := bazaar.ReadMatch(h.state, addr)
		if err != nil {
			return lookupError(req.ID, err)
		}
		out = append(out, MatchView{Address: addr, Match: m})
	}
	return okResponse(req.ID, out)
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	receipt, err := h.indexer.Receipt(params.TxID)
	if err != nil {
		return lookupError(req.ID, err)
	}
	return okResponse(req.ID, receipt)
}

func (h *Handler) deriveAddresses(req Request) Response {
	var params struct {
		Authority *crypto.Pubkey `json:"authority"`
		Game      *crypto.Pubkey `json:"game"`
		Player    *crypto.Pubkey `json:"player"`
		Opponent  *crypto.Pubkey `json:"opponent"`
		Round     uint8          `json:"round"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	var out Addresses
	game := params.Game
	if params.Authority != nil {
		g, _, err := bazaar.GameAddress(*params.Authority)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		game = &g
	}
	if game == nil {
		return errResponse(req.ID, CodeInvalidParams, "authority or game is required")
	}
	out.Game = game
	if params.Player != nil {
		p, _, err := bazaar.ParticipantAddress(*game, *params.Player)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		out.Participant = &p
	}
	if params.Opponent != nil {
		o, _, err := bazaar.ParticipantAddress(*game, *params.Opponent)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		out.Opponent = &o
	}
	if params.Player != nil && params.Opponent != nil && params.Round > 0 {
		m, _, err := bazaar.MatchAddress(*game, params.Round, *params.Player, *params.Opponent)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		out.Match = &m
	}
	return okResponse(req.ID, out)
}

func (h *Handler) audit(req Request) Response {
	var params struct {
		Game crypto.Pubkey `json:"game"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	rep, err := bazaar.Audit(h.state, params.Game)
	if err != nil {
		return lookupError(req.ID, err)
	}
	if !rep.Balanced {
		log.Warnf("Game %s fails token audit: granted %d, balances %d, escrow %d",
			params.Game, rep.Granted, rep.Balances, rep.Escrow)
	}
	return okResponse(req.ID, rep)
}

func (h *Handler) getArena(req Request) Response {
	var params struct {
		Authority crypto.Pubkey `json:"authority"`
	}
	if r := decodeParams(req, &params); r != nil {
		return *r
	}
	view, err := divergence.ReadArena(h.state, params.Authority)
	if err != nil {
		return lookupError(req.ID, err)
	}
	return okResponse(req.ID, view)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if r := decodeParams(req, &tx); r != nil {
		return *r
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	if err := h.mempool.Add(&tx); err != nil {
		log.Debugf("sendTx rejected: %v", err)
		return errResponse(req.ID, CodeRejected, err.Error())
	}
	log.Tracef("Accepted tx %s from %s", tx.ID, tx.From)
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
