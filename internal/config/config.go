package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgegraph/graphdb/internal/blobstore"
	"github.com/edgegraph/graphdb/internal/rpc"
)

// ShardNode holds everything one shard-hosting process needs to start:
// its identity, how it listens, how many shards the ring has and which of
// them this process owns, where its chunk blobs live, and the RPC guard's
// limits. Collects what would otherwise be a flat list of getenv() calls
// into one validated struct loaded once at startup.
type ShardNode struct {
	NodeID          string
	Listen          string
	PublicAddr      string
	CoordinatorAddr string
	NumShards       int
	OwnedShards     []int
	Namespace       string
	Blob            blobstore.S3Config
	Guard           rpc.Guard
	LogLevel        zerolog.Level
}

// Coordinator holds the coordinator process's configuration: where it
// listens, how many shards the ring has, and how often the health monitor
// probes each node. HealthTimeout is loaded from GRAPHDB_HEALTH_TIMEOUT
// but the health monitor does not read it: each probe uses the monitor's
// fixed 2s timeout, and a node is marked unhealthy after 3 consecutive
// failed probes.
type Coordinator struct {
	Listen         string
	NumShards      int
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	LogLevel       zerolog.Level
}

// LoadShardNode reads a ShardNode config from the environment, using a
// getenv(key, default)/mustGetenv(key) convention generalized to parse
// ints/durations and validate their ranges instead of passing raw strings
// to callers.
func LoadShardNode() (ShardNode, error) {
	numShards, err := getenvInt("GRAPHDB_NUM_SHARDS", 1)
	if err != nil {
		return ShardNode{}, err
	}
	if numShards <= 0 {
		return ShardNode{}, fmt.Errorf("config: GRAPHDB_NUM_SHARDS must be positive, got %d", numShards)
	}

	owned, err := getenvIntList("GRAPHDB_OWNED_SHARDS", allShards(numShards))
	if err != nil {
		return ShardNode{}, err
	}

	level, err := getenvLogLevel("GRAPHDB_LOG_LEVEL", zerolog.InfoLevel)
	if err != nil {
		return ShardNode{}, err
	}

	maxSize, err := getenvInt64("GRAPHDB_GUARD_MAX_SIZE", rpc.DefaultMaxSize)
	if err != nil {
		return ShardNode{}, err
	}
	maxDepth, err := getenvInt("GRAPHDB_GUARD_MAX_DEPTH", rpc.DefaultMaxDepth)
	if err != nil {
		return ShardNode{}, err
	}
	maxKeys, err := getenvInt("GRAPHDB_GUARD_MAX_KEYS", rpc.DefaultMaxKeys)
	if err != nil {
		return ShardNode{}, err
	}

	nodeID, err := mustGetenv("GRAPHDB_NODE_ID")
	if err != nil {
		return ShardNode{}, err
	}

	return ShardNode{
		NodeID:          nodeID,
		Listen:          getenv("GRAPHDB_LISTEN", ":8081"),
		PublicAddr:      getenv("GRAPHDB_PUBLIC_ADDR", "http://127.0.0.1:8081"),
		CoordinatorAddr: getenv("GRAPHDB_COORDINATOR_ADDR", ""),
		NumShards:       numShards,
		OwnedShards:     owned,
		Namespace:       getenv("GRAPHDB_NAMESPACE", "https://graphdb.local/"),
		Blob: blobstore.S3Config{
			// Empty Bucket is the signal cmd/shard-node uses to fall back to
			// an in-memory blob store for local/dev runs with no S3/R2
			// credentials configured.
			Bucket:          getenv("GRAPHDB_BLOB_BUCKET", ""),
			Endpoint:        getenv("GRAPHDB_BLOB_ENDPOINT", ""),
			Region:          getenv("GRAPHDB_BLOB_REGION", "auto"),
			AccessKeyID:     getenv("GRAPHDB_BLOB_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("GRAPHDB_BLOB_SECRET_ACCESS_KEY", ""),
		},
		Guard:    rpc.Guard{MaxSize: maxSize, MaxDepth: maxDepth, MaxKeys: maxKeys},
		LogLevel: level,
	}, nil
}

// LoadCoordinator reads a Coordinator config from the environment.
func LoadCoordinator() (Coordinator, error) {
	numShards, err := getenvInt("GRAPHDB_NUM_SHARDS", 1)
	if err != nil {
		return Coordinator{}, err
	}
	interval, err := getenvDuration("GRAPHDB_HEALTH_INTERVAL", 5*time.Second)
	if err != nil {
		return Coordinator{}, err
	}
	timeout, err := getenvDuration("GRAPHDB_HEALTH_TIMEOUT", 2*time.Second)
	if err != nil {
		return Coordinator{}, err
	}
	level, err := getenvLogLevel("GRAPHDB_LOG_LEVEL", zerolog.InfoLevel)
	if err != nil {
		return Coordinator{}, err
	}

	return Coordinator{
		Listen:         getenv("GRAPHDB_COORDINATOR_LISTEN", ":8080"),
		NumShards:      numShards,
		HealthInterval: interval,
		HealthTimeout:  timeout,
		LogLevel:       level,
	}, nil
}

func allShards(numShards int) []int {
	out := make([]int, numShards)
	for i := range out {
		out[i] = i
	}
	return out
}

// getenv retrieves an environment variable with a default fallback value.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// mustGetenv retrieves a required environment variable, returning an error
// rather than exiting the process so callers (tests included) can handle
// a missing variable without terminating.
func mustGetenv(k string) (string, error) {
	if v := os.Getenv(k); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("config: required environment variable %s is not set", k)
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", k, err)
	}
	return n, nil
}

func getenvInt64(k string, def int64) (int64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", k, err)
	}
	return n, nil
}

func getenvDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration (e.g. \"5s\"): %w", k, err)
	}
	return d, nil
}

func getenvLogLevel(k string, def zerolog.Level) (zerolog.Level, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	level, err := zerolog.ParseLevel(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s is not a valid log level: %w", k, err)
	}
	return level, nil
}

// getenvIntList parses a comma-separated list of ints, e.g. "0,1,2".
func getenvIntList(k string, def []int) ([]int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	var out []int
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			tok := v[start:i]
			start = i + 1
			if tok == "" {
				continue
			}
			n, err := strconv.Atoi(tok)
			if err != nil {
				return nil, fmt.Errorf("config: %s must be a comma-separated list of integers: %w", k, err)
			}
			out = append(out, n)
		}
	}
	return out, nil
}
