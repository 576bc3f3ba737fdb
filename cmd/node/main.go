// Command node runs a single-sequencer Trust Bazaar chain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/happybigmtn/trust-bazaar/config"
	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/crypto/certgen"
	"github.com/happybigmtn/trust-bazaar/events"
	"github.com/happybigmtn/trust-bazaar/indexer"
	"github.com/happybigmtn/trust-bazaar/rpc"
	"github.com/happybigmtn/trust-bazaar/sequencer"
	"github.com/happybigmtn/trust-bazaar/storage"
	"github.com/happybigmtn/trust-bazaar/vm"
	"github.com/happybigmtn/trust-bazaar/wallet"

	// Programs register themselves in init().
	_ "github.com/happybigmtn/trust-bazaar/vm/modules/bazaar"
	_ "github.com/happybigmtn/trust-bazaar/vm/modules/divergence"
	_ "github.com/happybigmtn/trust-bazaar/vm/modules/system"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "sequencer.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new sequencer key and exit")
	genCerts := flag.String("gencerts", "", "write a dev CA plus RPC server and client certs into this directory and exit")
	certHost := flag.String("certhost", "localhost", "host name or IP for the RPC server certificate")
	flag.Parse()

	if err := run(*cfgPath, *keyPath, *genKey, *genCerts, *certHost); err != nil {
		log.Criticalf("%v", err)
		os.Exit(1)
	}
}

func run(cfgPath, keyPath string, genKey bool, genCerts, certHost string) error {
	// Read keystore password from environment (not CLI flags, they leak via ps).
	password := os.Getenv("BAZAAR_PASSWORD")

	if genKey {
		w, err := wallet.Generate("")
		if err != nil {
			return err
		}
		if err := wallet.SaveKey(keyPath, password, w.PrivKey()); err != nil {
			return err
		}
		fmt.Printf("Generated key. Sequencer address: %s\nSaved to: %s\n", w.Pubkey(), keyPath)
		return nil
	}

	if genCerts != "" {
		b, err := certgen.Generate(genCerts, certHost)
		if err != nil {
			return fmt.Errorf("gencerts: %w", err)
		}
		fmt.Printf("CA: %s\nServer: %s %s\nClient: %s %s\n",
			b.CACert, b.ServerCert, b.ServerKey, b.ClientCert, b.ClientKey)
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := setLogLevels(cfg.LogLevel); err != nil {
		return err
	}
	log.Debugf("Subsystems: %s", strings.Join(subsystems(), ", "))
	if password == "" {
		log.Warnf("BAZAAR_PASSWORD not set, keystore uses an empty password")
	}

	privKey, err := wallet.LoadKey(keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	if cfg.Sequencer != "" {
		want, err := crypto.PubkeyFromString(cfg.Sequencer)
		if err != nil {
			return fmt.Errorf("config sequencer: %w", err)
		}
		if privKey.Public() != want {
			return fmt.Errorf("key %s is not the configured sequencer %s", privKey.Public(), want)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// State, blocks and indexes share one DB under distinct key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db), privKey.Public())
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesis); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.Infof("Genesis block committed: %s (chain %s, %d funded accounts)",
			genesis.Hash, cfg.Genesis.ChainID, len(cfg.Genesis.Alloc))
	} else {
		log.Infof("Resuming at height %d", bc.Height())
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	exec := vm.NewExecutor(state, emitter)
	seq := sequencer.New(cfg, bc, state, mempool, exec, emitter, privKey)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcServer := rpc.NewServer(rpcAddr, rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.ChainID), cfg.RPCToken, tlsCfg)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer func() {
		if err := rpcServer.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("rpc stop: %v", err)
		}
	}()
	if cfg.RPCToken != "" {
		log.Infof("RPC bearer token authentication enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		seq.Run(ctx, cfg.BlockInterval)
	}()
	log.Infof("Sequencing every %s as %s", cfg.BlockInterval, privKey.Public())

	<-ctx.Done()
	log.Infof("Shutting down...")
	// The sequencer stops before the deferred RPC and DB shutdown.
	wg.Wait()
	log.Infof("Shutdown complete")
	return nil
}
