// Command shard-node hosts a set of shards and serves them over HTTP and
// WebSocket RPC, registering itself with a coordinator for discovery and
// health monitoring.
//
// Required environment:
//   - GRAPHDB_NODE_ID: unique identifier for this node
//
// Optional environment (see internal/config for the full list and
// defaults): GRAPHDB_LISTEN, GRAPHDB_PUBLIC_ADDR, GRAPHDB_COORDINATOR_ADDR,
// GRAPHDB_NUM_SHARDS, GRAPHDB_OWNED_SHARDS, GRAPHDB_NAMESPACE,
// GRAPHDB_BLOB_*, GRAPHDB_LOG_LEVEL. GRAPHDB_GUARD_* is loaded into the
// config but not applied: the HTTP and WebSocket transports use the rpc
// package's default guard limits.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edgegraph/graphdb/internal/blobstore"
	"github.com/edgegraph/graphdb/internal/bloom"
	"github.com/edgegraph/graphdb/internal/cluster"
	"github.com/edgegraph/graphdb/internal/config"
	"github.com/edgegraph/graphdb/internal/coordinator"
	"github.com/edgegraph/graphdb/internal/exec"
	"github.com/edgegraph/graphdb/internal/manifest"
	"github.com/edgegraph/graphdb/internal/planner"
	"github.com/edgegraph/graphdb/internal/rpc"
	"github.com/edgegraph/graphdb/internal/shard"
)

func main() {
	root := &cobra.Command{
		Use:   "shard-node",
		Short: "Host a set of graph store shards and serve them over RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	if err := root.Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadShardNode()
	if err != nil {
		return err
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("node", cfg.NodeID).Logger().Level(cfg.LogLevel)

	blobs, err := newBlobStore(ctx, cfg.Blob)
	if err != nil {
		return err
	}
	manifestStore := manifest.New(blobs, manifest.WithLogger(log))

	shards := make(map[planner.ShardID]*shard.Shard, len(cfg.OwnedShards))
	handles := make(map[planner.ShardID]*exec.ShardHandle, len(cfg.OwnedShards))
	for _, id := range cfg.OwnedShards {
		sid := planner.ShardID(id)
		writer := shard.NewBatchedWriter(cfg.Namespace, blobs, manifestStore, shard.WithWriterLogger(log))
		sh := shard.New(shardName(cfg.NodeID, id), shard.NewMemoryRowStore(), writer, shard.WithLogger(log))
		shards[sid] = sh
		handles[sid] = &exec.ShardHandle{Shard: sh, Bloom: newShardBloom()}
	}

	svc := rpc.NewService(cfg.NumShards, shards, handles, log)
	httpSrv := rpc.NewHTTPServer(svc, log)

	mux := http.NewServeMux()
	mux.Handle("/", httpSrv.Handler())
	mux.HandleFunc("/rpc/ws", rpc.WebSocketHandler(svc, log))
	mux.HandleFunc("/health", healthHandler(handles))

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Str("public", cfg.PublicAddr).Msg("shard node listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	if cfg.CoordinatorAddr != "" {
		registerWithCoordinator(ctx, cfg, log)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("shard node stopped")
	return nil
}

func newBlobStore(ctx context.Context, cfg blobstore.S3Config) (blobstore.Store, error) {
	if cfg.Bucket == "" {
		return blobstore.NewMemoryStore(), nil
	}
	return blobstore.NewS3Store(ctx, cfg)
}

// newShardBloom builds an empty bloom filter for a freshly started shard.
// A node resuming from persisted state instead restores one via
// shard.BatchedWriter.RestoreState, which this cold-start path doesn't use.
func newShardBloom() *bloom.Filter {
	return bloom.New(bloom.DefaultCapacity, bloom.DefaultFalsePositiveRate)
}

func shardName(nodeID string, shardID int) string {
	return nodeID + "-shard-" + strconv.Itoa(shardID)
}

// healthHandler reports this node's per-shard storage state for the
// coordinator's HealthMonitor: each owned shard's row count (RowStore) and
// whether its writer currently has a full inflight-upload window
// (BatchedWriter.IsBackpressured).
func healthHandler(handles map[planner.ShardID]*exec.ShardHandle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shards := make([]coordinator.ShardStatus, 0, len(handles))
		for id, h := range handles {
			shards = append(shards, coordinator.ShardStatus{
				ShardID:       int(id),
				RowCount:      h.Shard.Rows.RowCount(),
				Backpressured: h.Shard.Writer.IsBackpressured(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Shards []coordinator.ShardStatus `json:"shards"`
		}{Shards: shards})
	}
}

// registerWithCoordinator announces this node to the coordinator, retrying
// with a fixed backoff to tolerate coordinator startup ordering, and
// reports which shards this node owns.
func registerWithCoordinator(ctx context.Context, cfg config.ShardNode, log zerolog.Logger) {
	body := cluster.RegisterRequest{Node: cluster.NodeInfo{
		ID:     cfg.NodeID,
		Addr:   cfg.PublicAddr,
		Shards: cfg.OwnedShards,
	}}

	var lastErr error
	for i := 0; i < 10; i++ {
		lastErr = cluster.PostJSON(ctx, cfg.CoordinatorAddr+"/register", body, nil)
		if lastErr == nil {
			log.Info().Str("coordinator", cfg.CoordinatorAddr).Msg("registered with coordinator")
			return
		}
		log.Warn().Err(lastErr).Int("attempt", i+1).Msg("coordinator registration retry")
		time.Sleep(400 * time.Millisecond)
	}
	log.Error().Err(lastErr).Msg("failed to register with coordinator after all retries")
}
