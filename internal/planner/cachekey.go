package planner

import (
	"strconv"
	"strings"

	"github.com/edgegraph/graphdb/internal/lang"
)

// cacheKey builds a deterministic cache key for a parsed query: two
// identical queries must produce identical keys, and differing source
// ids, predicates or fields must produce distinct keys; filters differing
// only in literal values MAY share a key. This implementation takes that
// license: it encodes each comparison's field and operator but omits the
// literal's text, so `age > 30` and `age > 99` collapse to the same key
// while `age > 30` and `name = "x"` do not.
func cacheKey(q *lang.Query) string {
	var sb strings.Builder
	sb.WriteString(q.Source.Type)
	sb.WriteByte(':')
	sb.WriteString(sourceKindTag(q.Source.Kind))
	sb.WriteByte(':')
	sb.WriteString(q.Source.Value)

	for _, step := range q.Steps {
		sb.WriteByte('|')
		writeStep(&sb, step)
	}

	if q.Expansion != nil {
		sb.WriteString("|expand(")
		writeFields(&sb, q.Expansion.Fields)
		sb.WriteByte(')')
	}

	return sb.String()
}

func sourceKindTag(kind lang.SourceIDKind) string {
	if kind == lang.SourceIDString {
		return "str"
	}
	return "num"
}

func writeStep(sb *strings.Builder, step lang.Step) {
	switch s := step.(type) {
	case lang.TraverseStep:
		sb.WriteString("t(")
		sb.WriteString(s.Predicate)
		sb.WriteByte(')')
	case lang.ReverseTraverseStep:
		sb.WriteString("r(")
		sb.WriteString(s.Predicate)
		sb.WriteByte(')')
	case lang.RecurseStep:
		sb.WriteString("rc(")
		sb.WriteString(s.Predicate)
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(s.DepthBound))
		sb.WriteByte(')')
	case lang.FilterStep:
		sb.WriteString("f(")
		writeCondition(sb, s.Condition)
		sb.WriteByte(')')
	}
}

// writeCondition encodes a condition's shape (fields, operators, AND/OR
// structure) but never the literal's text, per cacheKey's normalization
// choice above.
func writeCondition(sb *strings.Builder, cond lang.Condition) {
	switch c := cond.(type) {
	case lang.Comparison:
		sb.WriteString(c.Field)
		sb.WriteString(c.Op)
	case lang.LogicalAnd:
		writeCondition(sb, c.Left)
		sb.WriteString("&&")
		writeCondition(sb, c.Right)
	case lang.LogicalOr:
		writeCondition(sb, c.Left)
		sb.WriteString("||")
		writeCondition(sb, c.Right)
	}
}

func writeFields(sb *strings.Builder, fields []lang.Field) {
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.Name)
		if len(f.Nested) > 0 {
			sb.WriteByte('{')
			writeFields(sb, f.Nested)
			sb.WriteByte('}')
		}
	}
}
