package exec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edgegraph/graphdb/internal/lang"
	"github.com/edgegraph/graphdb/internal/types"
)

// evalCondition applies cond locally over triples step 4.
func evalCondition(triples []types.Triple, cond lang.Condition) (bool, error) {
	switch c := cond.(type) {
	case lang.Comparison:
		return evalComparison(triples, c)
	case lang.LogicalAnd:
		left, err := evalCondition(triples, c.Left)
		if err != nil || !left {
			return false, err
		}
		return evalCondition(triples, c.Right)
	case lang.LogicalOr:
		left, err := evalCondition(triples, c.Left)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return evalCondition(triples, c.Right)
	default:
		return false, fmt.Errorf("exec: unknown condition type %T", cond)
	}
}

func findValue(triples []types.Triple, field string) (types.TypedValue, bool) {
	for _, t := range triples {
		if string(t.Predicate) == field && !t.Object.IsTombstone() {
			return t.Object, true
		}
	}
	return types.TypedValue{}, false
}

func evalComparison(triples []types.Triple, c lang.Comparison) (bool, error) {
	val, ok := findValue(triples, c.Field)
	if !ok {
		return false, nil
	}
	switch c.Literal.Kind {
	case lang.LiteralNumber:
		lv, err := strconv.ParseFloat(c.Literal.Text, 64)
		if err != nil {
			return false, fmt.Errorf("exec: invalid numeric literal %q", c.Literal.Text)
		}
		fv, ok := numericValue(val)
		if !ok {
			return false, nil
		}
		return compareFloat(fv, c.Op, lv)
	case lang.LiteralString:
		sv, ok := stringValue(val)
		if !ok {
			return false, nil
		}
		return compareString(sv, c.Op, c.Literal.Text)
	case lang.LiteralIdent:
		if val.Kind != types.KindBool {
			return false, nil
		}
		lv := strings.EqualFold(c.Literal.Text, "true")
		return compareBool(val.Bool, c.Op, lv)
	default:
		return false, fmt.Errorf("exec: unknown literal kind %v", c.Literal.Kind)
	}
}

func numericValue(v types.TypedValue) (float64, bool) {
	switch v.Kind {
	case types.KindInt32, types.KindInt64:
		return float64(v.Int), true
	case types.KindFloat64:
		return v.Float, true
	case types.KindTimestamp:
		return float64(v.Ts), true
	case types.KindDate:
		return float64(v.Date), true
	default:
		return 0, false
	}
}

func stringValue(v types.TypedValue) (string, bool) {
	switch v.Kind {
	case types.KindString:
		return v.Str, true
	case types.KindURL:
		return v.URL, true
	default:
		return "", false
	}
}

func compareFloat(a float64, op string, b float64) (bool, error) {
	switch op {
	case ">":
		return a > b, nil
	case "<":
		return a < b, nil
	case ">=":
		return a >= b, nil
	case "<=":
		return a <= b, nil
	case "=":
		return a == b, nil
	case "!=":
		return a != b, nil
	default:
		return false, fmt.Errorf("exec: unsupported operator %q", op)
	}
}

func compareString(a, op, b string) (bool, error) {
	switch op {
	case "=":
		return a == b, nil
	case "!=":
		return a != b, nil
	case ">":
		return a > b, nil
	case "<":
		return a < b, nil
	case ">=":
		return a >= b, nil
	case "<=":
		return a <= b, nil
	default:
		return false, fmt.Errorf("exec: unsupported operator %q", op)
	}
}

func compareBool(a bool, op string, b bool) (bool, error) {
	switch op {
	case "=":
		return a == b, nil
	case "!=":
		return a != b, nil
	default:
		return false, fmt.Errorf("exec: unsupported operator %q for boolean field", op)
	}
}
