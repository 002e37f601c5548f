// Package expr implements the formula language behind derive and
// adjustColumn actions. The grammar is deliberately small and
// sandboxed: literals, bracketed column references, arithmetic,
// comparisons, boolean connectives and a fixed function set. There is
// no way to reach code, I/O or anything outside the current row.
//
// Runtime misuse (division by zero, arithmetic on strings, a missing
// operand) yields the missing sentinel for that row, never an error.
package expr

import (
	"fmt"
	"math"
	"strings"

	"tabflow/domain/table"
)

// Expr is a parsed, reusable formula
type Expr struct {
	root    node
	columns []string
}

// Parse compiles a formula. Parse errors are compose-time failures.
func Parse(formula string) (*Expr, error) {
	if strings.TrimSpace(formula) == "" {
		return nil, fmt.Errorf("formula cannot be empty")
	}
	p := &parser{tokens: lex(formula)}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected %q after expression", p.peek().text)
	}

	seen := make(map[string]bool)
	var columns []string
	collectColumns(root, func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	})
	return &Expr{root: root, columns: columns}, nil
}

// Columns returns every column the formula references, in first-use
// order. Compose-time validation checks these against the projected
// schema.
func (e *Expr) Columns() []string {
	return append([]string(nil), e.columns...)
}

// Eval computes the formula for one row. Any invalid operation
// produces the missing sentinel.
func (e *Expr) Eval(row table.Row) table.Value {
	return e.root.eval(row)
}

// StaticType predicts the result column type from the formula shape
// and the referenced columns' declared types. Best effort: string when
// the shape does not pin anything down.
func (e *Expr) StaticType(types map[string]table.ValueType) table.ValueType {
	return e.root.staticType(types)
}

// ---- AST ----

type node interface {
	eval(row table.Row) table.Value
	staticType(types map[string]table.ValueType) table.ValueType
}

type literalNode struct{ value table.Value }

func (n literalNode) eval(table.Row) table.Value { return n.value }
func (n literalNode) staticType(map[string]table.ValueType) table.ValueType {
	return n.value.Type
}

type columnNode struct{ name string }

func (n columnNode) eval(row table.Row) table.Value { return row.Cell(n.name) }
func (n columnNode) staticType(types map[string]table.ValueType) table.ValueType {
	if t, ok := types[n.name]; ok {
		return t
	}
	return table.TypeString
}

type unaryNode struct {
	op    string
	child node
}

func (n unaryNode) eval(row table.Row) table.Value {
	v := n.child.eval(row)
	if v.IsMissing {
		return table.NewMissingValue()
	}
	switch n.op {
	case "-":
		if v.IsNumber() {
			return table.NewNumberValue(-v.AsFloat64())
		}
	case "!":
		if v.IsBoolean() {
			return table.NewBooleanValue(!v.AsBoolean())
		}
	}
	return table.NewMissingValue()
}

func (n unaryNode) staticType(types map[string]table.ValueType) table.ValueType {
	if n.op == "!" {
		return table.TypeBoolean
	}
	return table.TypeNumber
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval(row table.Row) table.Value {
	left := n.left.eval(row)
	right := n.right.eval(row)

	switch n.op {
	case "&&", "||":
		if !left.IsBoolean() || !right.IsBoolean() {
			return table.NewMissingValue()
		}
		if n.op == "&&" {
			return table.NewBooleanValue(left.AsBoolean() && right.AsBoolean())
		}
		return table.NewBooleanValue(left.AsBoolean() || right.AsBoolean())
	}

	if left.IsMissing || right.IsMissing {
		return table.NewMissingValue()
	}

	switch n.op {
	case "==":
		return table.NewBooleanValue(left.Equal(right))
	case "!=":
		return table.NewBooleanValue(!left.Equal(right))
	case ">", "<", ">=", "<=":
		cmp := table.Compare(left, right)
		switch n.op {
		case ">":
			return table.NewBooleanValue(cmp > 0)
		case "<":
			return table.NewBooleanValue(cmp < 0)
		case ">=":
			return table.NewBooleanValue(cmp >= 0)
		default:
			return table.NewBooleanValue(cmp <= 0)
		}
	case "+":
		if left.IsNumber() && right.IsNumber() {
			return table.NewNumberValue(left.AsFloat64() + right.AsFloat64())
		}
		// string + anything concatenates
		if left.IsString() || right.IsString() {
			return table.NewStringValue(left.Render() + right.Render())
		}
		return table.NewMissingValue()
	case "-", "*", "/", "%":
		if !left.IsNumber() || !right.IsNumber() {
			return table.NewMissingValue()
		}
		a, b := left.AsFloat64(), right.AsFloat64()
		switch n.op {
		case "-":
			return table.NewNumberValue(a - b)
		case "*":
			return table.NewNumberValue(a * b)
		case "/":
			if b == 0 {
				return table.NewMissingValue()
			}
			return table.NewNumberValue(a / b)
		default:
			if b == 0 {
				return table.NewMissingValue()
			}
			return table.NewNumberValue(math.Mod(a, b))
		}
	}
	return table.NewMissingValue()
}

func (n binaryNode) staticType(types map[string]table.ValueType) table.ValueType {
	switch n.op {
	case "&&", "||", "==", "!=", ">", "<", ">=", "<=":
		return table.TypeBoolean
	case "+":
		if n.left.staticType(types) == table.TypeString || n.right.staticType(types) == table.TypeString {
			return table.TypeString
		}
		return table.TypeNumber
	default:
		return table.TypeNumber
	}
}

type callNode struct {
	name string
	args []node
}

func (n callNode) eval(row table.Row) table.Value {
	args := make([]table.Value, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval(row)
	}

	switch n.name {
	case "if":
		cond := args[0]
		if !cond.IsBoolean() {
			return table.NewMissingValue()
		}
		if cond.AsBoolean() {
			return args[1]
		}
		return args[2]
	case "concat":
		var b strings.Builder
		for _, a := range args {
			if a.IsMissing {
				return table.NewMissingValue()
			}
			b.WriteString(a.Render())
		}
		return table.NewStringValue(b.String())
	}

	// Remaining functions are unary
	v := args[0]
	if v.IsMissing {
		return table.NewMissingValue()
	}
	switch n.name {
	case "upper":
		return table.NewStringValue(strings.ToUpper(v.Render()))
	case "lower":
		return table.NewStringValue(strings.ToLower(v.Render()))
	case "trim":
		return table.NewStringValue(strings.TrimSpace(v.Render()))
	case "len":
		return table.NewNumberValue(float64(len(v.Render())))
	case "abs":
		if v.IsNumber() {
			return table.NewNumberValue(math.Abs(v.AsFloat64()))
		}
	case "round":
		if v.IsNumber() {
			return table.NewNumberValue(math.Round(v.AsFloat64()))
		}
	}
	return table.NewMissingValue()
}

func (n callNode) staticType(types map[string]table.ValueType) table.ValueType {
	switch n.name {
	case "upper", "lower", "trim", "concat":
		return table.TypeString
	case "len", "abs", "round":
		return table.TypeNumber
	case "if":
		return n.args[1].staticType(types)
	}
	return table.TypeString
}

// funcArity pins the argument count per function
var funcArity = map[string]int{
	"upper": 1, "lower": 1, "trim": 1, "len": 1,
	"abs": 1, "round": 1, "if": 3, "concat": -1,
}

func collectColumns(n node, visit func(string)) {
	switch v := n.(type) {
	case columnNode:
		visit(v.name)
	case unaryNode:
		collectColumns(v.child, visit)
	case binaryNode:
		collectColumns(v.left, visit)
		collectColumns(v.right, visit)
	case callNode:
		for _, a := range v.args {
			collectColumns(a, visit)
		}
	}
}
