package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
)

// Operator is the closed set of criterion operators.
type Operator int

const (
	OpEq Operator = iota
	OpGt
	OpGte
	OpLt
	OpLte
	OpRegex
	OpExists
)

var operatorNames = map[Operator]string{
	OpEq:     "$eq",
	OpGt:     "$gt",
	OpGte:    "$gte",
	OpLt:     "$lt",
	OpLte:    "$lte",
	OpRegex:  "$regex",
	OpExists: "$exists",
}

var operatorsByName = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorNames))
	for op, name := range operatorNames {
		m[name] = op
	}
	return m
}()

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ParseOperator converts "$gt" and friends to an Operator.
func ParseOperator(name string) (Operator, error) {
	op, ok := operatorsByName[name]
	if !ok {
		return 0, pidxerrors.NewInvalidQuery(name, "unknown operator")
	}
	return op, nil
}

// Criterion is one (field, operator, value) condition.
type Criterion struct {
	Field string
	Op    Operator
	Value any

	re *regexp.Regexp
}

// Eq, Gt, Gte, Lt, Lte, Regex and Exists build criteria.
func Eq(field string, v any) Criterion  { return Criterion{Field: field, Op: OpEq, Value: v} }
func Gt(field string, v any) Criterion  { return Criterion{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Criterion { return Criterion{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Criterion  { return Criterion{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Criterion { return Criterion{Field: field, Op: OpLte, Value: v} }
func Regex(field, pattern string) Criterion {
	c := Criterion{Field: field, Op: OpRegex, Value: pattern}
	if re, err := regexp.Compile(pattern); err == nil {
		c.re = re
	}
	return c
}
func Exists(field string, want bool) Criterion {
	return Criterion{Field: field, Op: OpExists, Value: want}
}

// ParseCriteria converts a document-style criteria map into criteria:
//
//	{"age": {"$gt": 25, "$lte": 60}, "name": "ada", "email": {"$exists": true}}
//
// A plain value means equality. A map whose keys all start with "$" is a set
// of operators; a map without "$" keys is compared for equality as a whole.
// Criteria are returned sorted by field, then operator.
func ParseCriteria(doc map[string]any) ([]Criterion, error) {
	var out []Criterion
	for field, cond := range doc {
		if field == "" {
			return nil, pidxerrors.NewInvalidQuery("criteria", "empty field name")
		}
		ops, isOps, err := operatorMap(field, cond)
		if err != nil {
			return nil, err
		}
		if !isOps {
			out = append(out, Eq(field, cond))
			continue
		}
		for name, v := range ops {
			op, err := ParseOperator(name)
			if err != nil {
				return nil, pidxerrors.NewInvalidQuery(field, "unknown operator "+name)
			}
			out = append(out, Criterion{Field: field, Op: op, Value: v})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Op < out[j].Op
	})
	return compileCriteria(out)
}

// operatorMap reports whether cond is an operator map. Mixing operator and
// plain keys is malformed.
func operatorMap(field string, cond any) (map[string]any, bool, error) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false, nil
	}
	dollar := 0
	for k := range m {
		if strings.HasPrefix(k, "$") {
			dollar++
		}
	}
	switch dollar {
	case 0:
		return nil, false, nil
	case len(m):
		return m, true, nil
	default:
		return nil, false, pidxerrors.NewInvalidQuery(field, "operator and plain keys mixed")
	}
}

// compileCriteria validates operator values and compiles regular expressions.
// It returns a new slice; the input is not modified.
func compileCriteria(in []Criterion) ([]Criterion, error) {
	out := make([]Criterion, len(in))
	for i, c := range in {
		if c.Field == "" {
			return nil, pidxerrors.NewInvalidQuery("criteria", "empty field name")
		}
		switch c.Op {
		case OpEq:
		case OpGt, OpGte, OpLt, OpLte:
			if _, ok := toFloat(c.Value); !ok {
				if _, ok := c.Value.(string); !ok {
					return nil, pidxerrors.NewInvalidQuery(c.Field, c.Op.String()+" needs a number or string")
				}
			}
		case OpRegex:
			pattern, ok := c.Value.(string)
			if !ok {
				return nil, pidxerrors.NewInvalidQuery(c.Field, "$regex needs a string pattern")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, pidxerrors.NewInvalidQuery(c.Field, err.Error())
			}
			c.re = re
		case OpExists:
			if _, ok := c.Value.(bool); !ok {
				return nil, pidxerrors.NewInvalidQuery(c.Field, "$exists needs a boolean")
			}
		default:
			return nil, pidxerrors.NewInvalidQuery(c.Field, "unknown operator "+c.Op.String())
		}
		out[i] = c
	}
	return out, nil
}

// Match reports whether the payload satisfies the criterion. A missing field
// or a type mismatch is not a match, and neither is a criterion whose value
// does not suit its operator.
func (c Criterion) Match(payload map[string]any) bool {
	v, present := payload[c.Field]
	if c.Op == OpExists {
		want, ok := c.Value.(bool)
		return ok && present == want
	}
	if !present {
		return false
	}

	switch c.Op {
	case OpEq:
		return equal(v, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpRegex:
		s, ok := v.(string)
		if !ok {
			return false
		}
		re := c.re
		if re == nil {
			pattern, ok := c.Value.(string)
			if !ok {
				return false
			}
			var err error
			if re, err = regexp.Compile(pattern); err != nil {
				return false
			}
		}
		return re.MatchString(s)
	}
	return false
}

// key renders the criterion for cache keys.
func (c Criterion) key() string {
	return fmt.Sprintf("%s\x00%s\x00%#v", c.Field, c.Op, c.Value)
}

// matchAll reports whether every criterion matches.
func matchAll(criteria []Criterion, payload map[string]any) bool {
	for _, c := range criteria {
		if !c.Match(payload) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare returns -1, 0 or 1 for two numbers or two strings.
func compare(a, b any) (int, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
