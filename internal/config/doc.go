// Package config loads node configuration from environment variables,
// using a getenv/mustGetenv convention across every collaborator a shard
// node wires together: listen addresses, shard topology, blob store
// credentials, the RPC JSON guard's limits, and logging.
package config
