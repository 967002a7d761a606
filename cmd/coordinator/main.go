// Package main implements the graph database coordinator, the control
// plane that tracks which shard node hosts which shard, health-monitors
// those nodes, and proxies client RPC calls to the node owning the
// relevant entity's shard.
//
// The coordinator is deliberately stateless about graph data itself: every
// triple lives on a shard node (cmd/shard-node). The coordinator only
// knows the shard assignment table and forwards framed RPC requests
// (internal/rpc) to the right node's HTTP endpoint.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│              Coordinator                 │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /register     - Node registration    │
//	│    /nodes        - List active nodes    │
//	│    /rpc/call     - Route one RPC call   │
//	│    /rpc/batch    - Route a batch frame  │
//	│    /shards       - Manage assignments   │
//	│    /broadcast    - Cluster-wide ops     │
//	│    /health       - Health check         │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    server        - HTTP handler state   │
//	│    ShardRegistry - Shard assignments    │
//	│    nodes[]       - Active node list     │
//	└─────────────────────────────────────────┘
//
// Configuration is read by internal/config.LoadCoordinator; see that
// package for the full environment variable list and defaults.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgegraph/graphdb/internal/cluster"
	"github.com/edgegraph/graphdb/internal/config"
	"github.com/edgegraph/graphdb/internal/coordinator"
	"github.com/edgegraph/graphdb/internal/planner"
	"github.com/edgegraph/graphdb/internal/rpc"
	"github.com/edgegraph/graphdb/internal/types"
)

// Health status constants for node health monitoring.
const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
	healthStatusUnknown   = "unknown"
)

// main initializes and runs the coordinator service, setting up HTTP
// endpoints for cluster management and gracefully handling shutdown
// signals.
func main() {
	cfg, err := config.LoadCoordinator()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "coordinator").Logger().Level(cfg.LogLevel)

	srv := newServer(cfg, log)

	go srv.healthMonitor.Start(context.Background(), func() []cluster.NodeInfo {
		srv.mu.RLock()
		defer srv.mu.RUnlock()
		nodes := make([]cluster.NodeInfo, len(srv.nodes))
		copy(nodes, srv.nodes)
		return nodes
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/register", srv.handleRegister)
	mux.HandleFunc("/nodes", srv.handleListNodes)
	mux.HandleFunc("/broadcast", srv.handleBroadcast)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rpc/call", srv.handleRPCCall)
	mux.HandleFunc("/rpc/batch", srv.handleRPCBatch)
	mux.HandleFunc("/shards", srv.handleShards)
	mux.HandleFunc("/shards/assign", srv.handleShardAssign)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("listen", cfg.Listen).Msg("coordinator listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("stopping health monitor")
	srv.healthMonitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	log.Info().Msg("coordinator stopped")
}

// server encapsulates the coordinator's runtime state: the registered node
// list and the shard assignment registry that maps an entity's subject
// hash to the node currently hosting it.
type server struct {
	registry      *coordinator.ShardRegistry
	healthMonitor *coordinator.HealthMonitor
	log           zerolog.Logger

	nodes []cluster.NodeInfo
	mu    sync.RWMutex
}

func newServer(cfg config.Coordinator, log zerolog.Logger) *server {
	srv := &server{
		registry:      coordinator.NewShardRegistry(cfg.NumShards),
		healthMonitor: coordinator.NewHealthMonitor(cfg.HealthInterval),
		log:           log,
	}

	srv.healthMonitor.SetOnUnhealthy(func(nodeID string) {
		log.Warn().Str("node", nodeID).Msg("node unhealthy, redistributing its shards")
		srv.markNodeUnhealthy(nodeID)
		for _, shardID := range srv.registry.GetNodeShards(nodeID) {
			_ = srv.registry.RemoveShard(int(shardID))
		}
		srv.autoAssignShards()
	})

	srv.healthMonitor.SetOnBackpressure(func(nodeID string) {
		log.Warn().Str("node", nodeID).Msg("node reports a backpressured shard writer")
	})

	return srv
}

// handleRegister processes shard node registration, recording the node and
// binding it to the shards it reports owning (GRAPHDB_OWNED_SHARDS on the
// node side). Nodes that don't report explicit ownership fall back to
// round-robin auto-assignment, covering the single-shard-per-node default.
//
// Endpoint: POST /register
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Node.ID == "" || req.Node.Addr == "" {
		http.Error(w, "missing id/addr", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.nodes, func(n cluster.NodeInfo) bool { return n.ID == req.Node.ID })
	if idx >= 0 {
		s.nodes[idx] = req.Node
	} else {
		s.nodes = append(s.nodes, req.Node)
	}

	if len(req.Node.Shards) > 0 {
		for _, shardID := range req.Node.Shards {
			if err := s.registry.AssignShard(shardID, req.Node.ID, true); err != nil {
				s.log.Warn().Err(err).Str("node", req.Node.ID).Int("shard", shardID).Msg("failed to bind reported shard")
			}
		}
	} else if idx < 0 {
		s.autoAssignShards()
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) markNodeUnhealthy(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, node := range s.nodes {
		if node.ID == nodeID {
			s.nodes[i].Status = healthStatusUnhealthy
			return
		}
	}
}

// handleListNodes returns the list of all registered nodes, annotated with
// their latest known health status.
//
// Endpoint: GET /nodes
func (s *server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allHealth := s.healthMonitor.GetAllNodeHealth()
	nodes := make([]cluster.NodeInfo, len(s.nodes))
	for i, node := range s.nodes {
		nodes[i] = node
		if node.Status != healthStatusUnhealthy {
			if health := allHealth[node.ID]; health != nil {
				nodes[i].Status = health.Status
				nodes[i].LastHealthCheck = health.LastCheck
			} else {
				nodes[i].Status = healthStatusUnknown
			}
		}
	}

	if err := json.NewEncoder(w).Encode(struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}{Nodes: nodes}); err != nil {
		s.log.Error().Err(err).Msg("encoding nodes response")
	}
}

// handleBroadcast sends a request to every registered node, used for
// cluster-wide control operations (cache invalidation, config reload).
//
// Endpoint: POST /broadcast
func (s *server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req cluster.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Path == "" || req.Path[0] != '/' {
		http.Error(w, "path must start with '/'", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	targets := append([]cluster.NodeInfo(nil), s.nodes...)
	s.mu.RUnlock()

	type result struct {
		NodeID string `json:"node_id"`
		Err    string `json:"err,omitempty"`
	}
	out := make([]result, 0, len(targets))

	ctx, cancel := context.WithTimeout(r.Context(), 4*time.Second)
	defer cancel()

	for _, n := range targets {
		url := n.Addr + req.Path
		err := cluster.PostJSON(ctx, url, req.Payload, nil)
		res := result{NodeID: n.ID}
		if err != nil {
			res.Err = err.Error()
		}
		out = append(out, res)
	}

	if err := json.NewEncoder(w).Encode(struct {
		Results []result `json:"results"`
		SentTo  int      `json:"sent_to"`
	}{Results: out, SentTo: len(out)}); err != nil {
		s.log.Error().Err(err).Msg("encoding broadcast results")
	}
}

// handleRPCCall proxies a single RPC call to the shard node owning the
// routing key extracted from its arguments, routing both reads and
// writes to a shard by subject hash.
//
// Endpoint: POST /rpc/call
func (s *server) handleRPCCall(w http.ResponseWriter, r *http.Request) {
	var req rpc.SubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	nodeAddr, err := s.nodeAddrForKey(routingKey(req))
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	var resp rpc.SubResponse
	if err := cluster.PostJSON(r.Context(), nodeAddr+"/call", req, &resp); err != nil {
		http.Error(w, fmt.Sprintf("failed to forward call: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("encoding call response")
	}
}

// handleRPCBatch proxies a batch frame to the shard node owning the first
// non-empty routing key among its sub-requests. Pipelined $result references only resolve
// correctly when every sub-request in the frame addresses the same
// shard, since each shard node's ExecuteBatch resolves pipelining locally;
// a client batching calls across unrelated entities should issue them as
// separate frames.
//
// Endpoint: POST /rpc/batch
func (s *server) handleRPCBatch(w http.ResponseWriter, r *http.Request) {
	var frame rpc.BatchFrame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(frame.Requests) == 0 {
		http.Error(w, "empty batch", http.StatusBadRequest)
		return
	}

	var key types.EntityId
	for _, sub := range frame.Requests {
		if k := routingKey(sub); k != "" {
			key = k
			break
		}
	}

	nodeAddr, err := s.nodeAddrForKey(key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	var resp rpc.BatchFrameResponse
	if err := cluster.PostJSON(r.Context(), nodeAddr+"/batch", frame, &resp); err != nil {
		http.Error(w, fmt.Sprintf("failed to forward batch: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("encoding batch response")
	}
}

// routingKey extracts the subject a sub-request's shard should be hashed
// from, checking the argument names every subject-addressed method in
// internal/rpc's method table uses. Methods with no natural routing subject
// (query, batchCreate with no explicit ids) return "" and fall back to
// whichever key the rest of the frame supplies, or, when none does, the
// shard the empty subject hashes to.
func routingKey(req rpc.SubRequest) types.EntityId {
	for _, field := range []string{"id", "startId", "targetId"} {
		if v, ok := req.Args[field].(string); ok && v != "" {
			return types.EntityId(v)
		}
	}
	if entity, ok := req.Args["entity"].(map[string]any); ok {
		if id, ok := entity["id"].(string); ok {
			return types.EntityId(id)
		}
	}
	return ""
}

// nodeAddrForKey resolves a routing subject to its owning node's address,
// looking up the shard via internal/coordinator.ShardRegistry's subject hash
// and then the node currently assigned that shard.
func (s *server) nodeAddrForKey(subject types.EntityId) (string, error) {
	nodeID, err := s.registry.GetNodeForSubject(subject)
	if err != nil {
		return "", fmt.Errorf("no node assigned for subject %q: %w", subject, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, node := range s.nodes {
		if node.ID == nodeID {
			return node.Addr, nil
		}
	}
	return "", fmt.Errorf("node %s assigned but not registered", nodeID)
}

// handleShards returns current shard assignments for monitoring.
//
// Endpoint: GET /shards
func (s *server) handleShards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	assignments := s.registry.GetAllAssignments()
	response := struct {
		Shards    []*coordinator.ShardAssignment `json:"shards"`
		NumShards int                            `json:"num_shards"`
	}{
		Shards:    assignments,
		NumShards: s.registry.NumShards(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Error().Err(err).Msg("encoding shards response")
	}
}

// handleShardAssign manually (re)assigns a shard to a node, used for
// recovery and rebalancing operations outside the automatic health-driven
// path.
//
// Endpoint: POST /shards/assign
func (s *server) handleShardAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		NodeID    string `json:"node_id"`
		IsPrimary bool   `json:"is_primary"`
		ShardID   int    `json:"shard_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if err := s.registry.AssignShard(req.ShardID, req.NodeID, req.IsPrimary); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// autoAssignShards distributes any still-unassigned shards round-robin
// across healthy nodes. Nodes that report explicit ownership at
// registration bypass this path entirely (see handleRegister); it exists
// for the default topology where a node's GRAPHDB_OWNED_SHARDS is left
// unset and the coordinator must pick something.
func (s *server) autoAssignShards() {
	var healthyNodes []cluster.NodeInfo
	for _, node := range s.nodes {
		if node.Status != healthStatusUnhealthy {
			healthyNodes = append(healthyNodes, node)
		}
	}
	if len(healthyNodes) == 0 {
		return
	}

	assignments := s.registry.GetAllAssignments()
	assignedShards := make(map[planner.ShardID]bool, len(assignments))
	for _, a := range assignments {
		assignedShards[a.ShardID] = true
	}

	nodeIndex := 0
	for shardID := 0; shardID < s.registry.NumShards(); shardID++ {
		if assignedShards[planner.ShardID(shardID)] {
			continue
		}
		nodeID := healthyNodes[nodeIndex].ID
		if err := s.registry.AssignShard(shardID, nodeID, true); err != nil {
			s.log.Warn().Err(err).Int("shard", shardID).Str("node", nodeID).Msg("auto-assign failed")
		}
		nodeIndex = (nodeIndex + 1) % len(healthyNodes)
	}
}
