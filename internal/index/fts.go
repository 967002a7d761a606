package index

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/edgegraph/graphdb/internal/types"
)

// FTS error codes/§8 property 9.
const (
	FTSErrCodeTableNotFound = "TABLE_NOT_FOUND"
	FTSErrCodeQueryError    = "QUERY_ERROR"
)

// FTSQueryError is returned by FTS operations that fail a contract check
// rather than simply returning no matches.
type FTSQueryError struct {
	Code    string
	Message string
}

func (e *FTSQueryError) Error() string {
	return fmt.Sprintf("fts: %s: %s", e.Code, e.Message)
}

var tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := tokenSplit.Split(lower, -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

type ftsEntry struct {
	token    string
	subjects map[types.EntityId]struct{}
}

// ftsTable is a predicate-scoped prefix-token index: tokens are kept sorted
// so a prefix query resolves to a contiguous range via binary search.
type ftsTable struct {
	mu sync.RWMutex
	// entries is kept sorted by token for prefix range scans.
	entries []*ftsEntry
	// bySubject tracks which tokens a subject contributed, so deleteRow
	// can remove exactly what it indexed without a full table scan.
	bySubject map[types.EntityId][]string
}

func newFTSTable() *ftsTable {
	return &ftsTable{bySubject: make(map[types.EntityId][]string)}
}

func (tbl *ftsTable) find(token string) (int, bool) {
	i := sort.Search(len(tbl.entries), func(i int) bool { return tbl.entries[i].token >= token })
	if i < len(tbl.entries) && tbl.entries[i].token == token {
		return i, true
	}
	return i, false
}

func (tbl *ftsTable) add(token string, subject types.EntityId) {
	i, found := tbl.find(token)
	if found {
		tbl.entries[i].subjects[subject] = struct{}{}
		return
	}
	entry := &ftsEntry{token: token, subjects: map[types.EntityId]struct{}{subject: {}}}
	tbl.entries = append(tbl.entries, nil)
	copy(tbl.entries[i+1:], tbl.entries[i:])
	tbl.entries[i] = entry
}

func (tbl *ftsTable) remove(token string, subject types.EntityId) {
	i, found := tbl.find(token)
	if !found {
		return
	}
	delete(tbl.entries[i].subjects, subject)
	if len(tbl.entries[i].subjects) == 0 {
		tbl.entries = append(tbl.entries[:i], tbl.entries[i+1:]...)
	}
}

func (tbl *ftsTable) searchPrefix(prefix string) []types.EntityId {
	start := sort.Search(len(tbl.entries), func(i int) bool { return tbl.entries[i].token >= prefix })
	seen := make(map[types.EntityId]struct{})
	for i := start; i < len(tbl.entries) && strings.HasPrefix(tbl.entries[i].token, prefix); i++ {
		for subj := range tbl.entries[i].subjects {
			seen[subj] = struct{}{}
		}
	}
	out := make([]types.EntityId, 0, len(seen))
	for subj := range seen {
		out = append(out, subj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FTSIndex owns one prefix-token table per predicate.
type FTSIndex struct {
	mu     sync.RWMutex
	tables map[types.Predicate]*ftsTable
}

// NewFTSIndex returns an empty FTS index with no predicates initialized.
func NewFTSIndex() *FTSIndex {
	return &FTSIndex{tables: make(map[types.Predicate]*ftsTable)}
}

// Initialize registers predicate for indexing, idempotently.
func (idx *FTSIndex) Initialize(predicate types.Predicate) error {
	if err := types.ValidatePredicate(predicate); err != nil {
		return &FTSQueryError{Code: FTSErrCodeQueryError, Message: err.Error()}
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.tables[predicate]; !ok {
		idx.tables[predicate] = newFTSTable()
	}
	return nil
}

func (idx *FTSIndex) tableFor(predicate types.Predicate) (*ftsTable, error) {
	idx.mu.RLock()
	tbl, ok := idx.tables[predicate]
	idx.mu.RUnlock()
	if !ok {
		return nil, &FTSQueryError{Code: FTSErrCodeTableNotFound, Message: fmt.Sprintf("predicate %q was never initialized", predicate)}
	}
	return tbl, nil
}

// IndexRow tokenizes text and indexes it under (subject, predicate).
// Initialize must have been called for predicate first.
func (idx *FTSIndex) IndexRow(subject types.EntityId, predicate types.Predicate, text string) error {
	if err := types.ValidatePredicate(predicate); err != nil {
		return &FTSQueryError{Code: FTSErrCodeQueryError, Message: err.Error()}
	}
	tbl, err := idx.tableFor(predicate)
	if err != nil {
		return err
	}

	tokens := tokenize(text)
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	for _, tok := range tokens {
		tbl.add(tok, subject)
	}
	tbl.bySubject[subject] = append(tbl.bySubject[subject], tokens...)
	return nil
}

// DeleteRow removes every token (subject, predicate) previously contributed.
func (idx *FTSIndex) DeleteRow(subject types.EntityId, predicate types.Predicate) error {
	tbl, err := idx.tableFor(predicate)
	if err != nil {
		return err
	}
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	for _, tok := range tbl.bySubject[subject] {
		tbl.remove(tok, subject)
	}
	delete(tbl.bySubject, subject)
	return nil
}

// FTSSearchQuery is the argument shape for Search
type FTSSearchQuery struct {
	Query     string
	Predicate types.Predicate
}

// Search resolves query.Query as a token prefix against query.Predicate's
// table. No matches is not an error: it returns an empty, non-nil slice.
func (idx *FTSIndex) Search(q FTSSearchQuery) ([]types.EntityId, error) {
	if err := types.ValidatePredicate(q.Predicate); err != nil {
		return nil, &FTSQueryError{Code: FTSErrCodeQueryError, Message: err.Error()}
	}
	tbl, err := idx.tableFor(q.Predicate)
	if err != nil {
		return nil, err
	}

	prefix := strings.ToLower(strings.TrimSpace(q.Query))
	if prefix == "" {
		return nil, &FTSQueryError{Code: FTSErrCodeQueryError, Message: "empty query"}
	}

	tbl.mu.RLock()
	defer tbl.mu.RUnlock()
	return tbl.searchPrefix(prefix), nil
}
