package types

import "strings"

// ReverseNamespace converts a namespace URL into the reversed-domain blob
// key prefix requires, e.g. "https://a.b.c/path" becomes
// ".c/.b/.a/path", so that listing by prefix returns every entity under a
// namespace regardless of how deep the path component goes. Shared by
// internal/blobstore (building keys) and internal/shard (the batched writer
// building the chunk key it uploads to), so the two can never drift apart.
func ReverseNamespace(namespace string) string {
	rest := namespace
	rest = strings.TrimPrefix(rest, "https://")
	rest = strings.TrimPrefix(rest, "http://")

	host := rest
	path := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		host = rest[:i]
		path = rest[i+1:]
	}

	labels := strings.Split(host, ".")
	var sb strings.Builder
	for i := len(labels) - 1; i >= 0; i-- {
		if labels[i] == "" {
			continue
		}
		sb.WriteByte('.')
		sb.WriteString(labels[i])
		sb.WriteByte('/')
	}
	sb.WriteString(path)
	return strings.TrimSuffix(sb.String(), "/")
}
