// Package rpc exposes the graph store over two wire transports sharing one
// typed method table: batch-framed HTTP/JSON and pipelined WebSocket. Both
// transports decode through the same size/depth/key-bounded JSON guard
// before a request ever reaches a handler.
package rpc
