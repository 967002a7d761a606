package rpc

import (
	"bytes"
	"encoding/json"
	"io"
)

// Guard bounds JSON decoded at the transport boundary:
// maxSize caps the raw byte count, maxDepth caps nested object/array
// levels, and maxKeys caps the total number of object keys across the
// whole document. Violations surface as one of the four typed errors
// before any handler ever sees the decoded value.
type Guard struct {
	MaxSize  int64
	MaxDepth int
	MaxKeys  int
}

// Default guard limits
const (
	DefaultMaxSize  int64 = 64 * 1024
	DefaultMaxDepth       = 10
	DefaultMaxKeys        = 1000
)

// NewGuard builds a Guard with the default limits.
func NewGuard() *Guard {
	return &Guard{MaxSize: DefaultMaxSize, MaxDepth: DefaultMaxDepth, MaxKeys: DefaultMaxKeys}
}

// Decode reads up to g.MaxSize+1 bytes from r, rejecting anything larger,
// then parses into a generic tree to enforce depth/key bounds before
// unmarshaling into out. An empty body is not an error; out is left zero.
func (g *Guard) Decode(r io.Reader, out any) error {
	limited := io.LimitReader(r, g.MaxSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return NewError(CodeParseError, "failed to read request body: %v", err)
	}
	if int64(len(body)) > g.MaxSize {
		return NewError(CodeSizeExceeded, "request body exceeds %d bytes", g.MaxSize)
	}
	if len(body) == 0 {
		return nil
	}

	var tree any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return NewError(CodeParseError, "malformed JSON: %v", err)
	}

	keys := 0
	if err := g.walk(tree, 1, &keys); err != nil {
		return err
	}

	return json.Unmarshal(body, out)
}

func (g *Guard) walk(v any, depth int, keys *int) error {
	if depth > g.MaxDepth {
		return NewError(CodeDepthExceeded, "JSON nesting exceeds max depth %d", g.MaxDepth)
	}
	switch val := v.(type) {
	case map[string]any:
		*keys += len(val)
		if *keys > g.MaxKeys {
			return NewError(CodeKeysExceeded, "JSON object has more than %d keys", g.MaxKeys)
		}
		for _, child := range val {
			if err := g.walk(child, depth+1, keys); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range val {
			if err := g.walk(child, depth+1, keys); err != nil {
				return err
			}
		}
	}
	return nil
}
