package main

import (
	"context"
	"fmt"
	"os"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/wallet"
)

func keygen(_ context.Context, c *client, _ []string) error {
	if _, err := os.Stat(c.keyPath); err == nil {
		return fmt.Errorf("%s already exists", c.keyPath)
	}
	w, err := wallet.Generate(c.chainID)
	if err != nil {
		return err
	}
	if err := wallet.SaveKey(c.keyPath, os.Getenv("BAZAAR_PASSWORD"), w.PrivKey()); err != nil {
		return err
	}
	fmt.Printf("address %s\nsaved to %s\n", w.Pubkey(), c.keyPath)
	return nil
}

func create(ctx context.Context, c *client, args []string) error {
	f := newFlags("create")
	players := f.Uint("players", 2, "number of players (2..10)")
	rounds := f.Uint("rounds", 3, "number of rounds")
	if err := f.parse(args); err != nil {
		return err
	}
	if *players > 255 || *rounds > 255 {
		return fmt.Errorf("players and rounds must fit in a byte")
	}
	return c.send(ctx, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		game, err := w.GameAddress()
		if err != nil {
			return nil, err
		}
		fmt.Printf("game %s\n", game)
		return w.CreateGame(nonce, uint8(*players), uint8(*rounds))
	})
}

func register(ctx context.Context, c *client, args []string) error {
	f := newFlags("register")
	game := f.pubkey("game", "game address")
	if err := f.parse(args); err != nil {
		return err
	}
	return c.send(ctx, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Register(nonce, game.key)
	})
}

func submit(ctx context.Context, c *client, args []string) error {
	f := newFlags("submit")
	game := f.pubkey("game", "game address")
	opponent := f.pubkey("opponent", "opponent identity")
	round := f.Uint("round", 1, "current round")
	actionName := f.String("action", "cooperate", "cooperate or defect")
	stake := f.Uint64("stake", 0, "trust tokens to stake")
	if err := f.parse(args); err != nil {
		return err
	}
	action, err := parseAction(*actionName)
	if err != nil {
		return err
	}
	return c.send(ctx, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Submit(nonce, game.key, uint8(*round), opponent.key, action, *stake)
	})
}

func resolve(ctx context.Context, c *client, args []string) error {
	f := newFlags("resolve")
	game := f.pubkey("game", "game address")
	a := f.pubkey("a", "first player")
	b := f.pubkey("b", "second player")
	round := f.Uint("round", 1, "match round")
	if err := f.parse(args); err != nil {
		return err
	}
	return c.send(ctx, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Resolve(nonce, game.key, uint8(*round), a.key, b.key)
	})
}

func advance(ctx context.Context, c *client, args []string) error {
	f := newFlags("advance")
	game := f.pubkey("game", "game address")
	if err := f.parse(args); err != nil {
		return err
	}
	return c.send(ctx, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Advance(nonce, game.key), nil
	})
}

func finalize(ctx context.Context, c *client, args []string) error {
	f := newFlags("finalize")
	game := f.pubkey("game", "game address")
	player := f.pubkey("player", "player identity")
	if err := f.parse(args); err != nil {
		return err
	}
	return c.send(ctx, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Finalize(nonce, game.key, player.key)
	})
}

func reclaim(ctx context.Context, c *client, args []string) error {
	f := newFlags("reclaim")
	game := f.pubkey("game", "game address")
	opponent := f.pubkey("opponent", "opponent identity")
	round := f.Uint("round", 1, "round of the match")
	if err := f.parse(args); err != nil {
		return err
	}
	return c.send(ctx, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Reclaim(nonce, game.key, uint8(*round), opponent.key)
	})
}

func transfer(ctx context.Context, c *client, args []string) error {
	f := newFlags("transfer")
	to := f.pubkey("to", "recipient")
	lamports := f.Uint64("lamports", 0, "amount")
	if err := f.parse(args); err != nil {
		return err
	}
	return c.send(ctx, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Transfer(nonce, to.key, *lamports), nil
	})
}

func showGame(ctx context.Context, c *client, args []string) error {
	f := newFlags("game")
	authority := f.pubkey("authority", "game authority")
	if err := f.parse(args); err != nil {
		return err
	}
	g, err := c.rpc.Game(ctx, authority.key)
	if err != nil {
		return err
	}
	return printJSON(g)
}

func showPlayer(ctx context.Context, c *client, args []string) error {
	f := newFlags("player")
	game := f.pubkey("game", "game address")
	player := f.pubkey("player", "player identity")
	if err := f.parse(args); err != nil {
		return err
	}
	p, err := c.rpc.Participant(ctx, game.key, player.key)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func showMatch(ctx context.Context, c *client, args []string) error {
	f := newFlags("match")
	game := f.pubkey("game", "game address")
	a := f.pubkey("a", "first player")
	b := f.pubkey("b", "second player")
	round := f.Uint("round", 1, "match round")
	if err := f.parse(args); err != nil {
		return err
	}
	m, err := c.rpc.Match(ctx, game.key, uint8(*round), a.key, b.key)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func audit(ctx context.Context, c *client, args []string) error {
	f := newFlags("audit")
	game := f.pubkey("game", "game address")
	if err := f.parse(args); err != nil {
		return err
	}
	rep, err := c.rpc.Audit(ctx, game.key)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func receipt(ctx context.Context, c *client, args []string) error {
	f := newFlags("receipt")
	id := f.String("tx", "", "transaction id")
	if err := f.parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("receipt: missing -tx")
	}
	r, err := c.rpc.Receipt(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(r)
}
