// Command ledgerd is the ledger engine's process entrypoint: it wires a KV
// backend, bootstraps the MPN and teleport contracts plus an optional
// genesis validator on first run, and then sits idle — there is no RPC or
// p2p sync server here, both out of scope (spec.md §1 "out of scope: p2p
// networking, RPC/API surface").
//
// Grounded on cmd/ccoind/main.go's startup sequencing (banner, Config
// struct, flag parsing, signal-cancellable context, run(ctx, cfg) error),
// adapted to this repo's components in place of the teacher's
// dag.NewDAG/libp2p stack.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ziesha-go/ledger/internal/chain"
	"github.com/ziesha-go/ledger/internal/config"
	"github.com/ziesha-go/ledger/internal/kvstore"
	"github.com/ziesha-go/ledger/internal/mempool"
	"github.com/ziesha-go/ledger/internal/staking"
	"github.com/ziesha-go/ledger/internal/storage"
	"github.com/ziesha-go/ledger/internal/txapply"
	"github.com/ziesha-go/ledger/internal/zkp"
	"github.com/ziesha-go/ledger/internal/zkstate"
	"github.com/ziesha-go/ledger/pkg/scalar"
	"github.com/ziesha-go/ledger/pkg/types"
)

const (
	version = "0.1.0"
	banner  = `
  _           _                   _
 | | ___  __| | __ _  ___ _ __ __| |
 | |/ _ \/ _. |/ _. |/ _ \ '__/ _. |
 | |  __/ (_| | (_| |  __/ | | (_| |
 |_|\___|\__,_|\__, |\___|_|  \__,_|
               |___/
 ledgerd v%s
`
)

// Config holds node configuration.
type Config struct {
	// Storage backend: "ram" or "postgres".
	Backend string

	// Postgres connection, only used when Backend == "postgres".
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Genesis validator, optional: when ValidatorPub is empty no
	// validator is registered and the chain starts with zero stake
	// (fine for a dev/validation-only node).
	ValidatorPub    string // hex-encoded PublicKey.X
	ValidatorParity bool
	ValidatorVrfPub string // hex-encoded, 32 bytes
	ValidatorStake  uint64
	GenesisSupply   uint64

	LogLevel string
	DataDir  string
}

func main() {
	cfg := parseFlags()
	fmt.Printf(banner, version)

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ledgerd exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Backend, "backend", "ram", "storage backend (ram, postgres)")

	flag.StringVar(&cfg.DBHost, "db-host", "localhost", "PostgreSQL host")
	flag.IntVar(&cfg.DBPort, "db-port", 5432, "PostgreSQL port")
	flag.StringVar(&cfg.DBUser, "db-user", "ziesha", "PostgreSQL user")
	flag.StringVar(&cfg.DBPassword, "db-password", "", "PostgreSQL password")
	flag.StringVar(&cfg.DBName, "db-name", "ziesha_ledger", "PostgreSQL database name")

	flag.StringVar(&cfg.ValidatorPub, "validator-pub", "", "genesis validator's PublicKey.X, hex (empty: no genesis validator)")
	flag.BoolVar(&cfg.ValidatorParity, "validator-parity", false, "genesis validator's PublicKey.Parity bit")
	flag.StringVar(&cfg.ValidatorVrfPub, "validator-vrf-pub", "", "genesis validator's VRF public key, hex (32 bytes)")
	flag.Uint64Var(&cfg.ValidatorStake, "validator-stake", 0, "genesis validator's self-delegated stake")
	flag.Uint64Var(&cfg.GenesisSupply, "genesis-supply", 2_000_000_000_000, "total Ziesha minted to the genesis validator at bootstrap")

	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.DataDir, "data-dir", "./data", "data directory (ram backend only uses this for future snapshotting)")

	flag.Parse()

	return cfg
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	logger.Info("initializing ledger node", "backend", cfg.Backend)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage backend: %w", err)
	}
	defer closeStore()

	mgr := zkstate.NewManager()
	bcCfg := config.DefaultConfig()

	if err := bootstrapGenesis(store, mgr, bcCfg, cfg, logger); err != nil {
		return fmt.Errorf("genesis bootstrap failed: %w", err)
	}

	mp := mempool.New(mempool.FromBlockchainConfig(bcCfg))
	ch := chain.New(store, mgr, bcCfg, mp)

	height, err := ch.Height()
	if err != nil {
		return fmt.Errorf("failed to read chain height: %w", err)
	}
	logger.Info("ledger node started", "height", height)

	<-ctx.Done()
	logger.Info("ledger node stopped")
	return nil
}

func openStore(ctx context.Context, cfg *Config) (kvstore.Store, func(), error) {
	switch cfg.Backend {
	case "ram":
		return storage.NewRamStore(), func() {}, nil
	case "postgres":
		pgCfg := storage.DefaultConfig()
		pgCfg.Host = cfg.DBHost
		pgCfg.Port = cfg.DBPort
		pgCfg.User = cfg.DBUser
		pgCfg.Password = cfg.DBPassword
		pgCfg.Database = cfg.DBName
		store, err := storage.NewPostgresStore(ctx, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// bootstrapGenesis registers the MPN and teleport contracts and, if
// requested, a single genesis validator with an initial stake and minted
// supply. It is idempotent: a store that already has an MPN contract is
// assumed already bootstrapped.
func bootstrapGenesis(db kvstore.Store, mgr *zkstate.Manager, bcCfg *config.BlockchainConfig, cfg *Config, logger *slog.Logger) error {
	types.MpnContractId = types.ContractId(hashLabel("ziesha-mpn-contract"))
	types.TeleportContractId = types.ContractId(hashLabel("ziesha-teleport-contract"))

	if _, ok, err := txapply.GetContract(db, types.MpnContractId); err != nil {
		return err
	} else if ok {
		logger.Info("genesis already bootstrapped, skipping")
		return nil
	}

	accountModel := mpnAccountModelFor(bcCfg)
	if err := deployContract(db, mgr, types.MpnContractId, accountModel, logger, "mpn"); err != nil {
		return err
	}

	teleportModel := types.List(16, types.Struct(types.Scalar(), types.Scalar()))
	if err := deployContract(db, mgr, types.TeleportContractId, teleportModel, logger, "teleport"); err != nil {
		return err
	}

	if cfg.ValidatorPub == "" {
		logger.Info("no genesis validator requested")
		return nil
	}
	return bootstrapValidator(db, cfg, logger)
}

func deployContract(db kvstore.Store, mgr *zkstate.Manager, cid types.ContractId, model types.StateModel, logger *slog.Logger, label string) error {
	initial := mgr.CompressDefault(model)
	contract := &types.Contract{StateModel: model, InitialState: initial}
	if err := txapply.SetContract(db, cid, contract); err != nil {
		return err
	}
	if err := txapply.SetContractAccount(db, cid, &types.ContractAccount{Height: 0, CompressedState: initial}); err != nil {
		return err
	}
	logger.Info("deployed genesis contract", "contract", label, "id", types.Hash(cid).String())
	return nil
}

func bootstrapValidator(db kvstore.Store, cfg *Config, logger *slog.Logger) error {
	x, err := decodeScalarHex(cfg.ValidatorPub)
	if err != nil {
		return fmt.Errorf("invalid -validator-pub: %w", err)
	}
	vrfPub, err := decodeVrfPub(cfg.ValidatorVrfPub)
	if err != nil {
		return fmt.Errorf("invalid -validator-vrf-pub: %w", err)
	}
	validator := types.Address{PublicKey: types.PublicKey{X: x, Parity: cfg.ValidatorParity}}

	if err := staking.SetValidator(db, validator, vrfPub, 0); err != nil {
		return err
	}
	if cfg.ValidatorStake > 0 {
		if err := staking.ApplyDelegate(db, validator, validator, cfg.ValidatorStake, false); err != nil {
			return err
		}
	}
	if cfg.GenesisSupply > 0 {
		if err := txapply.SetBalance(db, validator, types.Ziesha, cfg.GenesisSupply); err != nil {
			return err
		}
	}
	logger.Info("registered genesis validator", "stake", cfg.ValidatorStake, "supply", cfg.GenesisSupply)
	return nil
}

func mpnAccountModelFor(bcCfg *config.BlockchainConfig) types.StateModel {
	tokenSlot := types.Struct(types.Scalar(), types.Scalar())
	account := types.Struct(
		types.Scalar(), // tx_nonce
		types.Scalar(), // withdraw_nonce
		types.Scalar(), // address.x
		types.Scalar(), // address.parity
		types.List(int(bcCfg.Log4TokenTreeSize), tokenSlot),
	)
	return types.List(int(bcCfg.Log4TreeSize), account)
}

func hashLabel(label string) types.Hash {
	return types.Hash(zkp.Sha3_256([]byte(label)))
}

func decodeScalarHex(h string) (scalar.Scalar, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return scalar.Scalar{}, err
	}
	if len(raw) != 32 {
		return scalar.Scalar{}, errors.New("expected 32 bytes")
	}
	var arr [32]byte
	copy(arr[:], raw)
	return scalar.FromBytes(arr)
}

func decodeVrfPub(h string) ([32]byte, error) {
	var arr [32]byte
	raw, err := hex.DecodeString(h)
	if err != nil {
		return arr, err
	}
	if len(raw) != 32 {
		return arr, errors.New("expected 32 bytes")
	}
	copy(arr[:], raw)
	return arr, nil
}
