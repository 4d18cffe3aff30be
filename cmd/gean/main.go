// Command gean runs a Lean Ethereum consensus node: a durable fork-choice
// store driven by a serialized chain service, a per-slot validator duty
// loop for locally held keystores, and gossipsub/req-resp networking.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/geanlabs/gean/chain"
	"github.com/geanlabs/gean/config"
	"github.com/geanlabs/gean/forkchoice"
	"github.com/geanlabs/gean/netstate"
	"github.com/geanlabs/gean/networking"
	"github.com/geanlabs/gean/networking/chainsync"
	"github.com/geanlabs/gean/networking/reqresp"
	"github.com/geanlabs/gean/observability/metrics"
	"github.com/geanlabs/gean/sig"
	"github.com/geanlabs/gean/storage/pebblestore"
	"github.com/geanlabs/gean/types"
	"github.com/geanlabs/gean/validator"
	"github.com/libp2p/go-libp2p/core/peer"
)

func main() {
	genesisTime := flag.Uint64("genesis-time", 0, "Genesis time (Unix timestamp). Defaults to 10 seconds from now when -config is not set.")
	configPath := flag.String("config", "", "Path to a generate-validator-registry config.yaml; when set, overrides -genesis-time and -validators.")
	validatorsCount := flag.Uint64("validators", 8, "Number of validators in the network (used only without -config).")
	keysDir := flag.String("keys-dir", "", "Directory of local validator private-key JSON files, named <index>.json.")
	validatorIndices := flag.String("validator-index", "", "Comma-separated validator indices to run as (e.g. 0,1,2).")
	dataDir := flag.String("data-dir", "./data", "Directory for the durable pebble store.")
	listen := flag.String("listen", "/ip4/0.0.0.0/udp/9000/quic-v1", "Listen multiaddr (QUIC)")
	bootnodesFlag := flag.String("bootnodes", "", "Comma-separated bootnode multiaddrs, or a path to a nodes.yaml file.")
	metricsAddr := flag.String("metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. :9090).")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	flag.Parse()

	logger := newLogger(*logLevel, *logFormat)

	if err := run(logger, runOptions{
		genesisTime:      *genesisTime,
		configPath:       *configPath,
		validatorsCount:  *validatorsCount,
		keysDir:          *keysDir,
		validatorIndices: *validatorIndices,
		dataDir:          *dataDir,
		listen:           *listen,
		bootnodesFlag:    *bootnodesFlag,
		metricsAddr:      *metricsAddr,
	}); err != nil {
		logger.Error("gean exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level, format string) *slog.Logger {
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
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

type runOptions struct {
	genesisTime      uint64
	configPath       string
	validatorsCount  uint64
	keysDir          string
	validatorIndices string
	dataDir          string
	listen           string
	bootnodesFlag    string
	metricsAddr      string
}

func run(logger *slog.Logger, opts runOptions) error {
	genesisTime, validators, err := resolveGenesis(opts)
	if err != nil {
		return fmt.Errorf("resolve genesis: %w", err)
	}
	if genesisTime == 0 {
		genesisTime = uint64(time.Now().Unix()) + 10
		logger.Info("genesis time not set, using now + 10 seconds", "genesis_time", genesisTime)
	}

	genesisState, genesisBlock, err := config.GenerateGenesis(genesisTime, validators)
	if err != nil {
		return fmt.Errorf("generate genesis: %w", err)
	}
	genesisSigned := &types.SignedBlockWithAttestation{
		Message: types.BlockWithAttestation{Block: *genesisBlock},
	}

	if err := os.MkdirAll(opts.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := pebblestore.Open(filepath.Join(opts.dataDir, "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	fc, err := forkchoice.NewStore(db, genesisState, genesisSigned)
	if err != nil {
		return fmt.Errorf("create fork choice store: %w", err)
	}

	keystores, err := loadKeystores(opts.keysDir, opts.validatorIndices, validators)
	if err != nil {
		return fmt.Errorf("load keystores: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	host, err := networking.NewHost(ctx, networking.HostConfig{ListenAddrs: []string{opts.listen}})
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}
	defer host.Close()

	bootnodeStrings, err := resolveBootnodes(opts.bootnodesFlag)
	if err != nil {
		return fmt.Errorf("resolve bootnodes: %w", err)
	}
	bootnodes, err := networking.ParseBootnodes(bootnodeStrings)
	if err != nil {
		return fmt.Errorf("parse bootnodes: %w", err)
	}

	netState := netstate.New()

	handlers := &networking.MessageHandlers{}
	netSvc, err := networking.NewService(ctx, networking.ServiceConfig{
		Host:      host,
		Handlers:  handlers,
		Bootnodes: bootnodes,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create networking service: %w", err)
	}

	chainSvc := chain.NewService(fc, netSvc, genesisTime, logger)

	reqrespHandler := reqresp.NewHandler(fc)
	streamHandler := reqresp.NewStreamHandler(host, reqrespHandler)
	streamHandler.RegisterProtocols()

	syncer := chainsync.NewSyncer(ctx, chainsync.Config{
		Host:           host,
		Store:          fc,
		StreamHandler:  streamHandler,
		ReqRespHandler: reqrespHandler,
		NetState:       netState,
		Logger:         logger,
	})

	// Gossip-received objects are accepted into the store but never
	// re-gossiped (libp2p's own mesh already forwards them); blocks missing
	// a known parent trigger the syncer's backfill path.
	handlers.OnBlock = func(ctx context.Context, block *types.SignedBlockWithAttestation, from peer.ID) error {
		chainSvc.ProcessBlock(ctx, block, false)
		return syncer.OnBlockReceived(block, from)
	}
	handlers.OnAttestation = func(ctx context.Context, att *types.SignedAttestation) error {
		chainSvc.ProcessAttestation(ctx, att, false)
		return nil
	}

	var duties *validator.Duties
	if len(keystores) > 0 {
		duties = validator.New(keystores, chainSvc, genesisTime, logger)
	}

	if opts.metricsAddr != "" {
		go serveMetrics(ctx, logger, opts.metricsAddr, fc, netState)
	}

	chainSvc.Start(ctx)
	defer chainSvc.Stop()

	syncer.Start()
	defer syncer.Stop()

	netSvc.Start()
	defer netSvc.Stop()

	if duties != nil {
		go duties.Run(ctx)
		logger.Info("running as validator", "keystores", len(keystores))
	}

	logger.Info("gean running", "genesis_time", genesisTime, "validators", len(validators), "peer_id", host.ID())

	<-ctx.Done()
	logger.Info("shutting down...")
	return nil
}

// resolveGenesis builds the genesis validator set either from a
// generate-validator-registry config.yaml (-config) or from a placeholder
// registry of size -validators, for devnets started without a registry.
func resolveGenesis(opts runOptions) (uint64, []types.Validator, error) {
	if opts.configPath != "" {
		cfg, err := config.LoadGenesisConfig(opts.configPath)
		if err != nil {
			return 0, nil, err
		}
		validators, err := cfg.ToValidators()
		if err != nil {
			return 0, nil, err
		}
		return cfg.GenesisTime, validators, nil
	}

	validators := make([]types.Validator, opts.validatorsCount)
	for i := range validators {
		var seed [32]byte
		seed[0] = byte(i)
		seed[1] = byte(i >> 8)
		pub, _, err := sig.KeyGen(seed, 0, uint64(1)<<uint(sig.LifetimeTest.Height()), sig.LifetimeTest)
		if err != nil {
			return 0, nil, fmt.Errorf("devnet keygen for validator %d: %w", i, err)
		}
		validators[i] = types.Validator{Index: types.ValidatorIndex(i), Pubkey: pub.Bytes()}
	}
	return opts.genesisTime, validators, nil
}

// loadKeystores reads the private-key JSON files named by validatorIndices
// from keysDir, matching each against the genesis validator registry.
func loadKeystores(keysDir, validatorIndices string, validators []types.Validator) ([]validator.Keystore, error) {
	if keysDir == "" || validatorIndices == "" {
		return nil, nil
	}

	var out []validator.Keystore
	for _, s := range strings.Split(validatorIndices, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		idx, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid validator index %q: %w", s, err)
		}
		if idx >= uint64(len(validators)) {
			return nil, fmt.Errorf("validator index %d out of range (registry has %d)", idx, len(validators))
		}

		path := filepath.Join(keysDir, fmt.Sprintf("%d.json", idx))
		priv, err := sig.LoadPrivateKey(path)
		if err != nil {
			return nil, fmt.Errorf("load key for validator %d: %w", idx, err)
		}
		pub, err := sig.PublicKeyFromBytes(validators[idx].Pubkey)
		if err != nil {
			return nil, fmt.Errorf("decode public key for validator %d: %w", idx, err)
		}

		out = append(out, validator.Keystore{
			Index:      types.ValidatorIndex(idx),
			PublicKey:  pub,
			PrivateKey: priv,
		})
	}
	return out, nil
}

// resolveBootnodes accepts either a comma-separated multiaddr list or a path
// to a nodes.yaml document (ENR or legacy multiaddr-struct format).
func resolveBootnodes(flagValue string) ([]string, error) {
	if flagValue == "" {
		return nil, nil
	}
	if strings.HasSuffix(flagValue, ".yaml") || strings.HasSuffix(flagValue, ".yml") {
		return config.LoadBootnodes(flagValue)
	}
	return strings.Split(flagValue, ","), nil
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, fc *forkchoice.Store, netState *netstate.State) {
	m := metrics.New()
	updateMetrics(fc, netState, m)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	ticker := time.NewTicker(time.Duration(types.SecondsPerInterval) * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				updateMetrics(fc, netState, m)
			}
		}
	}()

	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", "error", err)
	}
}

func updateMetrics(fc *forkchoice.Store, netState *netstate.State, m *metrics.Metrics) {
	if headRoot, err := fc.GetHead(); err == nil {
		if block, ok, err := fc.GetBlock(headRoot); err == nil && ok {
			m.HeadSlot.Set(float64(block.Slot))
		}
	}
	if justified, err := fc.GetLatestJustified(); err == nil {
		m.JustifiedSlot.Set(float64(justified.Slot))
	}
	if finalized, err := fc.GetLatestFinalized(); err == nil {
		m.FinalizedSlot.Set(float64(finalized.Slot))
	}
	m.ConnectedPeers.Set(float64(netState.ConnectedPeers()))
}
