package rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
)

// Client calls a node's JSON-RPC endpoint.
type Client struct {
	url   string
	token string
	http  *http.Client
	seq   atomic.Int64
}

// NewClient returns a Client for url. tlsConfig may be nil.
func NewClient(url, token string, tlsConfig *tls.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &Client{
		url:   url,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

// Call invokes method with params and decodes the result into out, which
// may be nil. A JSON-RPC error is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	req := struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int64  `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{"2.0", c.seq.Add(1), method, params}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: http %s", method, resp.Status)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("rpc %s: decode: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// SendTx submits a signed transaction and returns its id.
func (c *Client) SendTx(ctx context.Context, tx *core.Transaction) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := c.Call(ctx, "sendTx", tx, &out); err != nil {
		return "", err
	}
	return out.TxID, nil
}

// Account returns the account at addr; unknown accounts come back empty.
func (c *Client) Account(ctx context.Context, addr crypto.Pubkey) (*core.Account, error) {
	var acc core.Account
	if err := c.Call(ctx, "getAccount", map[string]any{"address": addr}, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// Height returns the chain height.
func (c *Client) Height(ctx context.Context) (int64, error) {
	var h int64
	err := c.Call(ctx, "getBlockHeight", nil, &h)
	return h, err
}

// Game returns the game record created by authority.
func (c *Client) Game(ctx context.Context, authority crypto.Pubkey) (*GameView, error) {
	var v GameView
	if err := c.Call(ctx, "getGame", map[string]any{"authority": authority}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Participant returns player's record in game.
func (c *Client) Participant(ctx context.Context, game, player crypto.Pubkey) (*ParticipantView, error) {
	var v ParticipantView
	if err := c.Call(ctx, "getParticipant", map[string]any{"game": game, "player": player}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Match returns the match of player and opponent in round.
func (c *Client) Match(ctx context.Context, game crypto.Pubkey, round uint8, player, opponent crypto.Pubkey) (*MatchView, error) {
	var v MatchView
	params := map[string]any{"game": game, "round": round, "player": player, "opponent": opponent}
	if err := c.Call(ctx, "getMatch", params, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Receipt returns the receipt of a sequenced transaction.
func (c *Client) Receipt(ctx context.Context, txID string) (*core.Receipt, error) {
	var r core.Receipt
	if err := c.Call(ctx, "getReceipt", map[string]any{"tx_id": txID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Audit returns the token conservation report of game.
func (c *Client) Audit(ctx context.Context, game crypto.Pubkey) (*bazaar.AuditReport, error) {
	var rep bazaar.AuditReport
	if err := c.Call(ctx, "audit", map[string]any{"game": game}, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
