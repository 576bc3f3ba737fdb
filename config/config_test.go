package config

import (
	"crypto/tls"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybigmtn/trust-bazaar/core"
	"github.com/happybigmtn/trust-bazaar/crypto"
	"github.com/happybigmtn/trust-bazaar/crypto/certgen"
	"github.com/happybigmtn/trust-bazaar/internal/testutil"
	"github.com/happybigmtn/trust-bazaar/storage"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	cfg := DefaultConfig()
	cfg.RPCPort = 9000
	cfg.Genesis.Alloc["11111111111111111111111111111111"] = 5
	require.NoError(t, Save(cfg, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, got.RPCPort)
	assert.Equal(t, uint64(5), got.Genesis.Alloc["11111111111111111111111111111111"])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BAZAAR_RPC_PORT", "7001")
	t.Setenv("BAZAAR_CHAIN_ID", "bazaar-test")
	t.Setenv("BAZAAR_BLOCK_INTERVAL", "2s")
	t.Setenv("BAZAAR_RPC_TOKEN", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.RPCPort)
	assert.Equal(t, "bazaar-test", cfg.Genesis.ChainID)
	assert.Equal(t, 2*time.Second, cfg.BlockInterval)
	assert.Equal(t, "secret", cfg.RPCToken)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty chain id":   func(c *Config) { c.Genesis.ChainID = "" },
		"bad port":         func(c *Config) { c.RPCPort = 70000 },
		"zero interval":    func(c *Config) { c.BlockInterval = 0 },
		"cert without key": func(c *Config) { c.TLS.CertFile = "rpc.crt" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestCreateGenesisBlock(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, funded, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Genesis.Alloc[funded.String()] = 1_000_000
	state := storage.NewStateDB(testutil.NewMemDB())

	block, err := CreateGenesisBlock(cfg, state, priv)
	require.NoError(t, err)
	assert.Equal(t, int64(0), block.Header.Height)
	assert.True(t, IsGenesisHash(block.Header.PrevHash))
	assert.Equal(t, pub, block.Header.Sequencer)
	assert.NoError(t, block.Verify())

	acct, err := state.GetAccount(funded)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), acct.Lamports)
	assert.Equal(t, crypto.Pubkey{}, acct.Owner)

	bc := core.NewBlockchain(storage.NewBlockStore(testutil.NewMemDB()), pub)
	require.NoError(t, bc.AddBlock(block))
}

func TestCreateGenesisBlockRejectsBadAddress(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Genesis.Alloc["not-base58!"] = 1
	_, err = CreateGenesisBlock(cfg, storage.NewStateDB(testutil.NewMemDB()), priv)
	assert.Error(t, err)
}

func TestLoadTLSConfig(t *testing.T) {
	tc, err := LoadTLSConfig(TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, tc)

	b, err := certgen.Generate(t.TempDir(), "localhost")
	require.NoError(t, err)

	tc, err = LoadTLSConfig(TLSConfig{CertFile: b.ServerCert, KeyFile: b.ServerKey, ClientCA: b.CACert})
	require.NoError(t, err)
	assert.Len(t, tc.Certificates, 1)
	assert.Equal(t, tls.RequireAndVerifyClientCert, tc.ClientAuth)

	client, err := LoadClientTLS(b.CACert, b.ClientCert, b.ClientKey)
	require.NoError(t, err)
	assert.Len(t, client.Certificates, 1)
	assert.NotNil(t, client.RootCAs)
}
