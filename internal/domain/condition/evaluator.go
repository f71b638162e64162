// Package condition evaluates step conditional rules against an entity
// snapshot using expr-lang programs.
package condition

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// EntityVar is the name the snapshot is bound to inside expressions
const EntityVar = "entity"

// Supported rule operators
const (
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpIn             = "in"
	OpNotIn          = "not_in"
	OpContains       = "contains"
)

var comparisonOps = map[string]bool{
	OpEqual: true, OpNotEqual: true,
	OpGreater: true, OpGreaterOrEqual: true,
	OpLess: true, OpLessOrEqual: true,
}

// Evaluator compiles rule sets once and caches the programs by source
type Evaluator struct {
	programs map[string]*vm.Program
	mu       sync.RWMutex
}

// NewEvaluator creates an Evaluator with an empty program cache
func NewEvaluator() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

// Validate checks that rules can be compiled. Nil or empty rules are valid.
func (e *Evaluator) Validate(rules *entity.ConditionalRules) error {
	if rules.IsEmpty() {
		return nil
	}
	src, err := Source(rules)
	if err != nil {
		return err
	}
	_, err = e.program(src)
	return err
}

// Applies reports whether a step guarded by rules applies to fields.
// Empty rules always apply. On error the returned bool is true so callers
// that ignore the error still require the step.
func (e *Evaluator) Applies(rules *entity.ConditionalRules, fields map[string]interface{}) (bool, error) {
	if rules.IsEmpty() {
		return true, nil
	}

	src, err := Source(rules)
	if err != nil {
		return true, err
	}
	program, err := e.program(src)
	if err != nil {
		return true, err
	}

	if fields == nil {
		fields = map[string]interface{}{}
	}
	out, err := expr.Run(program, map[string]interface{}{EntityVar: fields})
	if err != nil {
		return true, fmt.Errorf("evaluate %q: %w", src, err)
	}

	result, ok := out.(bool)
	if !ok {
		return true, fmt.Errorf("evaluate %q: result is %T, not bool", src, out)
	}
	return result, nil
}

func (e *Evaluator) program(src string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programs[src]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prog, ok := e.programs[src]; ok {
		return prog, nil
	}

	prog, err := expr.Compile(src,
		expr.Env(map[string]interface{}{EntityVar: map[string]interface{}{}}),
		expr.AsBool(),
		expr.Function("has", has),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	e.programs[src] = prog
	return prog, nil
}

// Source renders rules as a single boolean expr-lang expression
func Source(rules *entity.ConditionalRules) (string, error) {
	if rules.IsEmpty() {
		return "true", nil
	}

	joiner := " && "
	switch strings.ToLower(rules.Match) {
	case "", entity.MatchAll:
	case entity.MatchAny:
		joiner = " || "
	default:
		return "", fmt.Errorf("unknown match mode %q", rules.Match)
	}

	parts := make([]string, 0, len(rules.Rules))
	for i, rule := range rules.Rules {
		clause, err := ruleSource(rule)
		if err != nil {
			return "", fmt.Errorf("rule %d: %w", i, err)
		}
		parts = append(parts, clause)
	}

	var src string
	if len(parts) > 0 {
		src = "(" + strings.Join(parts, joiner) + ")"
	}
	if expression := strings.TrimSpace(rules.Expression); expression != "" {
		if src != "" {
			src += " && "
		}
		src += "(" + expression + ")"
	}
	return src, nil
}

func ruleSource(rule entity.Rule) (string, error) {
	field, err := fieldSource(rule.Field)
	if err != nil {
		return "", err
	}
	value, err := literal(rule.Value)
	if err != nil {
		return "", err
	}

	switch {
	case comparisonOps[rule.Operator]:
		return fmt.Sprintf("%s %s %s", field, rule.Operator, value), nil
	case rule.Operator == OpIn || rule.Operator == OpNotIn:
		if !isList(rule.Value) {
			return "", fmt.Errorf("operator %s requires a list value", rule.Operator)
		}
		if rule.Operator == OpNotIn {
			return fmt.Sprintf("not (%s in %s)", field, value), nil
		}
		return fmt.Sprintf("%s in %s", field, value), nil
	case rule.Operator == OpContains:
		return fmt.Sprintf("has(%s, %s)", field, value), nil
	default:
		return "", fmt.Errorf("unknown operator %q", rule.Operator)
	}
}

// fieldSource turns "farmer.region" into entity["farmer"]["region"]
func fieldSource(field string) (string, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return "", fmt.Errorf("field is required")
	}
	var b strings.Builder
	b.WriteString(EntityVar)
	for _, part := range strings.Split(field, ".") {
		if part == "" {
			return "", fmt.Errorf("invalid field %q", field)
		}
		b.WriteString("[")
		b.WriteString(strconv.Quote(part))
		b.WriteString("]")
	}
	return b.String(), nil
}

func literal(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "nil", nil
	case string:
		return strconv.Quote(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case []string:
		items := make([]interface{}, len(val))
		for i, s := range val {
			items[i] = s
		}
		return literal(items)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := literal(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func isList(v interface{}) bool {
	switch v.(type) {
	case []string, []interface{}:
		return true
	}
	return false
}

// has implements the contains operator for strings and lists
func has(params ...interface{}) (interface{}, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("has requires 2 arguments")
	}
	switch container := params[0].(type) {
	case nil:
		return false, nil
	case string:
		needle, ok := params[1].(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(container, needle), nil
	case []interface{}:
		for _, item := range container {
			if equal(item, params[1]) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		for _, item := range container {
			if equal(item, params[1]) {
				return true, nil
			}
		}
		return false, nil
	case map[string]interface{}:
		key, ok := params[1].(string)
		if !ok {
			return false, nil
		}
		_, found := container[key]
		return found, nil
	default:
		return nil, fmt.Errorf("has: unsupported container %T", params[0])
	}
}

func equal(a, b interface{}) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Operators lists the supported rule operators in a stable order
func Operators() []string {
	ops := []string{OpIn, OpNotIn, OpContains}
	for op := range comparisonOps {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
