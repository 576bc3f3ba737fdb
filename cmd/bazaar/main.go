// Command bazaar is a client for a Trust Bazaar node.
//
// Usage:
//
//	bazaar [global flags] <command> [command flags]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/happybigmtn/trust-bazaar/config"
	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/rpc"
	"github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
	"github.com/happybigmtn/trust-bazaar/wallet"
)

type client struct {
	rpc     *rpc.Client
	keyPath string
	chainID string
	wait    time.Duration
}

type command struct {
	usage string
	run   func(ctx context.Context, c *client, args []string) error
}

var commands = map[string]command{
	"keygen":   {"keygen                              write a new keystore to -key", keygen},
	"create":   {"create -players N -rounds R          create a game with you as authority", create},
	"register": {"register -game G                     join game G", register},
	"submit":   {"submit -game G -round R -opponent P -action cooperate|defect -stake S", submit},
	"resolve":  {"resolve -game G -round R -a P -b Q  settle a match (authority)", resolve},
	"advance":  {"advance -game G                      close the current round (authority)", advance},
	"finalize": {"finalize -game G -player P           mark a record final (authority)", finalize},
	"reclaim":  {"reclaim -game G -round R -opponent P recover a stake from an unanswered match", reclaim},
	"transfer": {"transfer -to P -lamports N           send lamports", transfer},
	"game":     {"game -authority A                    show a game", showGame},
	"player":   {"player -game G -player P             show a participant", showPlayer},
	"match":    {"match -game G -round R -a P -b Q     show a match", showMatch},
	"audit":    {"audit -game G                        check token conservation", audit},
	"receipt":  {"receipt -tx ID                       show a transaction receipt", receipt},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: bazaar [flags] <command> [args]\n\nflags:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\ncommands:\n")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[n].usage)
	}
}

func main() {
	rpcURL := flag.String("rpc", "http://127.0.0.1:8899", "node RPC endpoint")
	token := flag.String("token", os.Getenv("BAZAAR_RPC_TOKEN"), "RPC bearer token")
	keyPath := flag.String("key", "bazaar.key", "keystore file")
	chainID := flag.String("chain", "bazaar-dev", "chain id")
	caFile := flag.String("ca", "", "CA certificate for an HTTPS endpoint")
	certFile := flag.String("cert", "", "client certificate")
	certKey := flag.String("certkey", "", "client certificate key")
	wait := flag.Duration("wait", 5*time.Second, "wait this long for a receipt after sending (0 to skip)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	c := &client{keyPath: *keyPath, chainID: *chainID, wait: *wait}
	if *caFile != "" {
		tc, err := config.LoadClientTLS(*caFile, *certFile, *certKey)
		if err != nil {
			fatal(err)
		}
		c.rpc = rpc.NewClient(*rpcURL, *token, tc)
	} else {
		c.rpc = rpc.NewClient(*rpcURL, *token, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := cmd.run(ctx, c, flag.Args()[1:]); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		fmt.Fprintf(os.Stderr, "rpc error %d: %s\n", rpcErr.Code, rpcErr.Message)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

// wallet opens the keystore with BAZAAR_PASSWORD.
func (c *client) wallet() (*wallet.Wallet, error) {
	priv, err := wallet.LoadKey(c.keyPath, os.Getenv("BAZAAR_PASSWORD"))
	if err != nil {
		return nil, err
	}
	return wallet.New(priv, c.chainID), nil
}

func (c *client) nonce(ctx context.Context, w *wallet.Wallet) (uint64, error) {
	acct, err := c.rpc.Account(ctx, w.Pubkey())
	if err != nil {
		return 0, err
	}
	return acct.Nonce, nil
}

// send builds a transaction with the wallet's current nonce, submits it and
// optionally waits for its receipt.
func (c *client) send(ctx context.Context, build func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error)) error {
	w, err := c.wallet()
	if err != nil {
		return err
	}
	nonce, err := c.nonce(ctx, w)
	if err != nil {
		return err
	}
	tx, err := build(w, nonce)
	if err != nil {
		return err
	}
	id, err := c.rpc.SendTx(ctx, tx)
	if err != nil {
		return err
	}
	fmt.Printf("tx %s\n", id)
	if c.wait <= 0 {
		return nil
	}

	deadline := time.Now().Add(c.wait)
	for time.Now().Before(deadline) {
		r, err := c.rpc.Receipt(ctx, id)
		var rpcErr *rpc.Error
		switch {
		case errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeNotFound:
			time.Sleep(200 * time.Millisecond)
			continue
		case err != nil:
			return err
		case r.Success:
			fmt.Printf("committed at height %d\n", r.Height)
			return nil
		default:
			return fmt.Errorf("failed at height %d: %s", r.Height, r.Detail)
		}
	}
	return fmt.Errorf("no receipt after %s", c.wait)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// pubkeyFlag parses a base58 address flag value.
type pubkeyFlag struct {
	key crypto.Pubkey
	set bool
}

func (p *pubkeyFlag) String() string {
	if !p.set {
		return ""
	}
	return p.key.String()
}

func (p *pubkeyFlag) Set(s string) error {
	k, err := crypto.PubkeyFromString(s)
	if err != nil {
		return err
	}
	p.key, p.set = k, true
	return nil
}

// flags is a per-command flag set that checks required addresses.
type flags struct {
	*flag.FlagSet
	keys map[string]*pubkeyFlag
}

func newFlags(name string) *flags {
	return &flags{FlagSet: flag.NewFlagSet(name, flag.ContinueOnError), keys: map[string]*pubkeyFlag{}}
}

func (f *flags) pubkey(name, usage string) *pubkeyFlag {
	p := &pubkeyFlag{}
	f.Var(p, name, usage)
	f.keys[name] = p
	return p
}

func (f *flags) parse(args []string) error {
	if err := f.Parse(args); err != nil {
		return err
	}
	var missing []string
	for name, p := range f.keys {
		if !p.set {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s: missing %s", f.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func parseAction(s string) (bazaar.Action, error) {
	switch strings.ToLower(s) {
	case "cooperate", "c", "0":
		return bazaar.Cooperate, nil
	case "defect", "d", "1":
		return bazaar.Defect, nil
	}
	return bazaar.Unset, fmt.Errorf("action must be cooperate or defect, got %q", s)
}
