// Command replica runs one member of a bftcore committee.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tolelom/bftcore/aggregator"
	"github.com/tolelom/bftcore/committee"
	"github.com/tolelom/bftcore/config"
	"github.com/tolelom/bftcore/consensus"
	"github.com/tolelom/bftcore/crypto"
	"github.com/tolelom/bftcore/crypto/certgen"
	"github.com/tolelom/bftcore/leader"
	"github.com/tolelom/bftcore/mempool"
	"github.com/tolelom/bftcore/network"
	"github.com/tolelom/bftcore/store"
	"github.com/tolelom/bftcore/synchronizer"
)

func main() {
	var cfgPath string
	var genKey bool
	var genCerts bool
	v := viper.New()

	root := &cobra.Command{
		Use:   "replica",
		Short: "Run a bftcore committee replica",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath, v)
			if err != nil {
				return err
			}

			switch {
			case genKey:
				return runGenKey(cfg)
			case genCerts:
				return runGenCerts(cfg)
			default:
				return run(cfg)
			}
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "replica.yaml", "path to config file")
	root.Flags().BoolVar(&genKey, "genkey", false, "generate a new replica key and exit")
	root.Flags().BoolVar(&genCerts, "gencerts", false, "generate a self-signed CA and replica mTLS cert/key pair and exit")
	config.BindFlags(root, v)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func keystorePassword() string {
	pw := os.Getenv("BFTCORE_PASSWORD")
	if pw == "" {
		fmt.Fprintln(os.Stderr, "WARNING: BFTCORE_PASSWORD not set, using an empty password")
	}
	return pw
}

func runGenKey(cfg *config.Config) error {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	if err := crypto.SaveKey(cfg.KeyFile, keystorePassword(), priv); err != nil {
		return err
	}
	fmt.Printf("Generated key. Public key (committee identity): %s\n", pub.Hex())
	fmt.Printf("Saved to: %s\n", cfg.KeyFile)
	return nil
}

func runGenCerts(cfg *config.Config) error {
	dir := filepath.Join(cfg.DataDir, "tls")
	if err := certgen.GenerateAll(dir, cfg.NodeID, nil); err != nil {
		return err
	}
	fmt.Printf("Generated CA and replica cert/key under %s\n", dir)
	fmt.Printf("Point tls.ca_cert/node_cert/node_key at ca.crt/%s.crt/%s.key to enable mTLS.\n", cfg.NodeID, cfg.NodeID)
	return nil
}

func run(cfg *config.Config) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	priv, err := crypto.LoadKey(cfg.KeyFile, keystorePassword())
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	self := priv.Public()

	comm, err := committee.LoadFile(cfg.CommitteeFile)
	if err != nil {
		return fmt.Errorf("load committee: %w", err)
	}
	if !comm.Exists(self) {
		return fmt.Errorf("this replica's key %s is not in %s", self.Hex(), cfg.CommitteeFile)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := store.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	blocks := store.NewBlockStore(db)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	node := network.NewNode(self.Hex(), cfg.ListenAddr, tlsCfg, log)
	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()
	log.Info("listening", zap.String("addr", node.ListenAddr()))

	for _, peer := range comm.Authorities() {
		if peer.Hex() == self.Hex() {
			continue
		}
		addr, err := comm.Address(peer)
		if err != nil {
			continue
		}
		if err := node.AddPeer(peer.Hex(), addr); err != nil {
			log.Warn("failed to register peer", zap.String("peer", peer.Hex()), zap.Error(err))
		}
	}

	elector := leader.New(comm, blocks)
	votes := aggregator.NewVoteAggregator(comm)
	timeouts := aggregator.NewTimeoutAggregator(comm)
	mp := mempool.NewSimple()
	signer := crypto.NewSignatureService(priv)
	defer signer.Close()

	// The synchronizer needs the core as its CoreFeed, and the core needs
	// the synchronizer to fetch missing ancestors: build the synchronizer
	// with no feed yet, then attach the core once it exists.
	ccfg := consensus.DefaultConfig()
	ccfg.TimeoutDelay = cfg.TimeoutDelay
	ccfg.InboundQueueCapacity = cfg.QueueCapacity
	ccfg.CommitQueueCapacity = cfg.QueueCapacity

	sync := synchronizer.New(self, comm, blocks, node, nil, log)
	core := consensus.New(self, comm, elector, votes, timeouts, mp, blocks, signer, node, sync, log, ccfg)
	sync.SetCoreFeed(core)

	if err := core.Recover(context.Background()); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- core.Run(ctx) }()

	go func() {
		for b := range core.Commits() {
			log.Info("committed", zap.Uint64("round", b.Round), zap.Int("batches", len(b.Payload)))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
		cancel()
		<-runErr
	case err := <-runErr:
		cancel()
		if err != nil {
			log.Fatal("consensus core stopped", zap.Error(err))
		}
	}
	return nil
}
