package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quorumvault/quorumvault/pkg/blobstore"
	"github.com/quorumvault/quorumvault/pkg/config"
	"github.com/quorumvault/quorumvault/pkg/consensus"
	"github.com/quorumvault/quorumvault/pkg/coordinator"
	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/log"
	"github.com/quorumvault/quorumvault/pkg/metadata"
	"github.com/quorumvault/quorumvault/pkg/metrics"
	"github.com/quorumvault/quorumvault/pkg/replog"
)

var (
	// Version information, set via ldflags during build.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quorumvaultd",
	Short: "quorumvaultd runs a single node of a quorumvault cluster",
	Long: `quorumvaultd runs one node of a quorumvault cluster: a content-addressed
blob store, a versioned metadata index, and a raft-replicated commit log,
composed behind a single coordinator.

It has no HTTP or S3-compatible front end; it speaks only the peer
protocol used for replication, leader election, and cross-node blob
recovery.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to node configuration YAML (required)")
	serveCmd.Flags().StringVar(&joinAddr, "join", "", "peer-transport address (node_ip:port+1) of an existing cluster member to join; omit to bootstrap a new cluster")
	_ = serveCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var (
	configPath string
	joinAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start this node, bootstrapping a new cluster or joining an existing one",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log.Info(fmt.Sprintf("starting quorumvaultd node %s (version %s, commit %s)", cfg.NodeID, Version, Commit))

	store, err := blobstore.Open(cfg.StoragePath, cfg.MaxStorageBytes)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	idx, err := metadata.Open(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("opening metadata index: %w", err)
	}
	defer idx.Close()

	fsm := replog.NewFSM(idx)
	node := consensus.NewNode(cfg, fsm)

	if joinAddr != "" {
		if err := node.Join(joinAddr); err != nil {
			return fmt.Errorf("joining cluster via %s: %w", joinAddr, err)
		}
		log.Info("joined existing cluster via " + joinAddr)
	} else {
		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrapping cluster: %w", err)
		}
		log.Info("bootstrapped new single-node cluster")
	}

	if err := verifyCheckpoint(idx, node); err != nil {
		return err
	}

	// Coordinator.New registers the blob-fetch handler that answers inbound
	// peer BlobFetchRequests, so it must exist before Serve starts
	// accepting connections.
	_ = coordinator.New(store, idx, node, cfg)

	if err := node.Serve(); err != nil {
		return fmt.Errorf("starting peer transport: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	waitForShutdown(node)
	return nil
}

// verifyCheckpoint refuses to serve if the on-disk checkpoint claims to
// have applied past where raft's own log currently ends — a corruption
// signal (the metadata index and the raft log store have diverged) that
// is not safe to paper over by just continuing.
func verifyCheckpoint(idx *metadata.Index, node *consensus.Node) error {
	lastApplied, _, err := replog.ReadCheckpoint(idx)
	if err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}
	if lastApplied > node.LastIndex() {
		return coreerr.AppliedPastLog.With(
			"checkpoint last_applied_index %d exceeds raft last index %d", lastApplied, node.LastIndex())
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info("serving metrics on " + addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped: " + err.Error())
	}
}

func waitForShutdown(node *consensus.Node) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	if err := node.Shutdown(); err != nil {
		log.Error("error during shutdown: " + err.Error())
	}
}
