// Package coordinator implements the orchestration layer for the graph
// database's distributed storage system, managing cluster topology, shard
// distribution, request routing, and maintaining system-wide consistency
// through centralized coordination.
//
// # Overview
//
// The coordinator serves as the control plane for the shard cluster, making
// global decisions about entity placement, node membership, and RPC
// routing. It maintains authoritative state about which shard nodes host
// which shards and ensures this information is propagated throughout the
// cluster.
//
// # Architecture
//
// The coordinator implements several key subsystems:
//
//	┌─────────────────────────────────────┐
//	│         COORDINATOR                  │
//	├─────────────────────────────────────┤
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   Shard Registry              │  │
//	│  │   - Node → Shard mappings     │  │
//	│  │   - Shard → Node mappings     │  │
//	│  │   - Replication tracking      │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   Node Manager                │  │
//	│  │   - Registration handling     │  │
//	│  │   - Health monitoring         │  │
//	│  │   - Failure detection         │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   Request Router              │  │
//	│  │   - Key → Shard mapping       │  │
//	│  │   - Load balancing            │  │
//	│  │   - Retry logic               │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	│  ┌──────────────────────────────┐  │
//	│  │   State Broadcaster           │  │
//	│  │   - Cluster state propagation │  │
//	│  │   - Event notifications       │  │
//	│  │   - Configuration updates     │  │
//	│  └──────────────────────────────┘  │
//	│                                     │
//	└─────────────────────────────────────┘
//
// # Core Components
//
// This package provides two of them; registration, request routing, and
// broadcasting are HTTP handlers in cmd/coordinator built on top.
//
// ShardRegistry: Central registry of shard assignments
//   - Maps each shard to at most one node (primary or replica flag)
//   - Answers node-for-subject and shards-for-node queries
//   - Round-robin RebalanceShards over a given node list
//   - Thread-safe behind one RWMutex
//
// HealthMonitor: Periodic health checks of registered nodes
//   - Probes each node's /health endpoint every interval
//   - Records per-shard row counts and writer backpressure
//   - Marks a node unhealthy after 3 consecutive failures
//   - Fires unhealthy and backpressure callbacks on state changes
//
// # Shard Distribution Strategy
//
// Subjects map to shards by hash-then-modulo, via
// internal/planner.ShardForSubject:
//
//	shard = FNV-1a-32(subject) mod numShards
//
// Shards map to nodes through the registry: a node either reports the
// shards it owns when it registers, or cmd/coordinator assigns it the
// still-unassigned shards round-robin. Changing numShards moves most
// subjects to a different shard.
//
// Rebalancing on node changes:
//   - Node addition: only still-unassigned shards go to the new node
//   - Node failure: the failed node's shards are released and reassigned
//     round-robin to the healthy nodes
//
// # Request Routing Protocol
//
// cmd/coordinator routes each RPC call or batch frame as follows:
//
// 1. Subject Resolution:
//   - Extract a routing subject from the call's arguments
//   - Hash it to its shard and look up the node assigned that shard
//
// 2. Request Forwarding:
//   - POST the request to that node's address
//
// 3. Response Handling:
//   - Return the node's response as is
//   - A forwarding failure is returned as 502 Bad Gateway; there is no
//     retry and no failover
//
// # Concurrency and Synchronization
//
// Lock Granularity:
//   - ShardRegistry: one RWMutex over the assignment map
//   - HealthMonitor: one RWMutex over the per-node health records
//
// Goroutine Patterns:
//   - One monitor goroutine checks nodes one after another each interval
//   - Callbacks run in their own goroutines
//   - Context cancellation stops the monitor
//
// Consistency Guarantees:
//   - Linearizable reads from registry
//   - Eventually consistent broadcast propagation
//   - At-least-once delivery for state updates
//
// # Failure Scenarios and Recovery
//
// The coordinator handles various failure modes:
//
// Node Failures:
//   - Detection: Health check timeouts (3 strikes)
//   - Impact: Shards on failed node unavailable
//   - Recovery: Reassign shards to healthy nodes
//
// Network Partitions:
//   - Detection: Partial health check failures
//   - Impact: Split-brain scenarios possible
//   - Recovery: Quorum-based decision making (future)
//   - Mitigation: Prefer availability over consistency
//
// Coordinator Failures:
//   - Detection: Client connection failures
//   - Impact: No new nodes can register
//   - Recovery: Manual restart required (current)
//   - Future: Standby coordinators with failover
//
// # Performance Characteristics
//
// Operation complexities:
//   - Node registration: O(s) where s = shards to assign
//   - Shard lookup: O(1) map lookup
//   - Health check round: O(n) with n nodes (sequential)
//   - Broadcast: O(n*m) where m = message size
//   - Key routing: O(k) hash over a k-byte subject, then O(1) lookup
//
// # Configuration
//
// Key configuration parameters:
//
//	GRAPHDB_HEALTH_INTERVAL: 5s   // Frequency of health probes
//	probe timeout:           2s   // Fixed in NewHealthMonitor
//	failures before unhealthy: 3  // Fixed in NewHealthMonitor
//	broadcast timeout:       4s   // Fixed in cmd/coordinator
//	GRAPHDB_NUM_SHARDS:      1    // Total shards in cluster
//
// # Usage Example
//
//	// Starting a coordinator
//	registry := NewShardRegistry(numShards)
//
//	// Register node handler
//	http.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
//	    var req cluster.RegisterRequest
//	    json.NewDecoder(r.Body).Decode(&req)
//
//	    // Bind the shards the node reports owning
//	    for _, shardID := range req.Node.Shards {
//	        registry.AssignShard(shardID, req.Node.ID, true)
//	    }
//
//	    w.WriteHeader(http.StatusNoContent)
//	})
//
//	// Route an RPC call by the entity id in its arguments
//	http.HandleFunc("/rpc/call", func(w http.ResponseWriter, r *http.Request) {
//	    var call rpc.SubRequest
//	    json.NewDecoder(r.Body).Decode(&call)
//	    nodeID, _ := registry.GetNodeForSubject(types.EntityId(call.Args["id"].(string)))
//
//	    // Forward to the owning shard node
//	    cluster.PostJSON(r.Context(), nodeAddr(nodeID)+"/call", call, w)
//	})
//
// # Monitoring and Observability
//
// The coordinator exports no metrics of its own. GET /nodes lists the
// registered nodes with their health status, and GET /shards lists the
// current shard assignments; the health monitor logs failed probes and
// state changes.
//
// # Limitations and Future Work
//
// Current limitations:
//   - Single coordinator (SPOF)
//   - No automatic shard rebalancing
//   - Missing replication support
//   - No transaction coordination
//   - Limited to single datacenter
//
// Roadmap:
//   - Implement Raft for coordinator HA
//   - Add automatic shard rebalancing
//   - Support configurable replication
//   - Implement 2PC for transactions
//   - Add cross-region support
//
// # See Also
//
// Related packages:
//   - internal/cluster: Core cluster types and communication
//   - internal/shard: Individual shard implementation
//   - cmd/coordinator: Coordinator server implementation
package coordinator
