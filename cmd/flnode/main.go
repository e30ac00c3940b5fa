// Command flnode runs one DeFL core node: the mempool ingress (filter),
// the Obsido ingress, the epoch state machine, and the admin HTTP surface.
// Consensus commit delivery and batch ordering are out-of-scope
// collaborators; this binary wires a minimal in-memory stand-in for both
// so the state machine has a real commit stream to consume.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ocx/flnode/internal/adminhttp"
	"github.com/ocx/flnode/internal/blobstore"
	"github.com/ocx/flnode/internal/config"
	"github.com/ocx/flnode/internal/consensus"
	"github.com/ocx/flnode/internal/filter"
	"github.com/ocx/flnode/internal/mempool"
	"github.com/ocx/flnode/internal/metrics"
	"github.com/ocx/flnode/internal/node"
	"github.com/ocx/flnode/internal/obsido"
	"github.com/ocx/flnode/internal/registry"
	"github.com/ocx/flnode/internal/responder"
	"github.com/ocx/flnode/internal/signature"
	"github.com/ocx/flnode/internal/transport"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, continuing with process environment")
	}

	cfg := config.Get()

	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if _, err := signature.LoadEd25519FromKeyFile(cfg.Core.KeyFile); err != nil {
		logger.Warn("no usable key_file, continuing without a signing key", "err", err)
	}
	if cfg.Core.CommitteeFile != "" {
		committee, err := signature.LoadCommittee(cfg.Core.CommitteeFile)
		if err != nil {
			logger.Warn("failed to load committee_file", "err", err)
		} else {
			cfg.ResolveQuorum(len(committee.Members))
		}
	}

	store, err := buildBlobStore(cfg)
	if err != nil {
		logger.Error("blob store initialization failed", "err", err)
		os.Exit(1)
	}

	promMetrics := metrics.New()

	contacts := registry.NewWithMetrics(promMetrics)
	dialer := responder.NewUDPDialer()
	resp := responder.NewWithMetrics(contacts, dialer, promMetrics, logger)

	// A real deployment sits this core atop a BFT consensus engine that
	// orders and agrees on batch digests across the committee before they
	// reach AnalyzeBlock. That engine is an explicit out-of-scope
	// collaborator; this relay is the trivial single-node stand-in —
	// every flushed batch becomes its own committed block, in flush order.
	blocks := make(chan consensus.Block, 16)
	commits := consensus.NewChannelCommitStream(blocks)
	batchMaker := mempool.NewBatchMaker(store, cfg.Parameters.MaxBatchSize)
	go func() {
		height := uint64(0)
		for digest := range batchMaker.Committed {
			height++
			blocks <- consensus.Block{Height: height, Digests: []string{digest}}
		}
	}()

	admin := adminhttp.NewServer(func() bool { return true }, logger)
	adminHTTPServer := &http.Server{Addr: cfg.Admin.ListenAddr, Handler: admin.Router()}

	n := node.New(node.Config{
		Quorum:    cfg.Core.Quorum,
		Contacts:  contacts,
		Responder: resp,
		Store:     store,
		Commits:   commits,
		Metrics:   promMetrics,
		Observer:  admin,
		Logger:    logger,
	})

	f := filter.New(contacts, resp, n, batchMaker, logger)
	ob := obsido.New(contacts, resp, n, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mempoolListener := transport.NewWithQueueDepth(cfg.Core.MempoolAddr, f, logger, cfg.Parameters.IngressQueueDepth)
	obsidoListener := transport.NewWithQueueDepth(cfg.ObsidoAddr(), ob, logger, cfg.Parameters.IngressQueueDepth)

	go func() {
		if err := mempoolListener.Serve(ctx); err != nil {
			logger.Error("mempool ingress stopped", "err", err)
		}
	}()
	go func() {
		if err := obsidoListener.Serve(ctx); err != nil {
			logger.Error("obsido ingress stopped", "err", err)
		}
	}()
	go func() {
		if err := adminHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin HTTP server stopped", "err", err)
		}
	}()

	logger.Info("flnode started",
		"mempool_addr", cfg.Core.MempoolAddr,
		"obsido_addr", cfg.ObsidoAddr(),
		"admin_addr", cfg.Admin.ListenAddr,
		"quorum", cfg.Core.Quorum,
	)

	if err := n.AnalyzeBlock(ctx); err != nil && ctx.Err() == nil {
		logger.Error("state machine stopped", "err", err)
		os.Exit(1)
	}

	_ = adminHTTPServer.Shutdown(context.Background())
	logger.Info("flnode shut down")
}

func buildBlobStore(cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.BlobStore.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.BlobStore.RedisAddr})
		return blobstore.NewRedisBlobStore(client, cfg.BlobStore.KeyPrefix), nil
	default:
		return blobstore.NewMemoryBlobStore(), nil
	}
}
