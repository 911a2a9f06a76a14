// Package filter lowers AIP-160 filter expressions into SQL fragments for
// the event journal's list queries.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// SQLCondition is a WHERE-clause fragment plus its positional parameters.
type SQLCondition struct {
	Clause string
	Params []any
}

// Filterable journal fields, keyed by their wire name. The ts field compares
// against the millisecond integers the events table stores.
var columns = map[string]string{
	"kind":       "kind",
	"subkind":    "subkind",
	"message_id": "message_id",
	"swipe_id":   "swipe_id",
	"ts":         "timestamp",
}

// CEL spells operators both as functions (_&&_) and as keywords (AND),
// depending on how the expression was written.
var connectives = map[string]string{
	"_&&_": "AND", "AND": "AND",
	"_||_": "OR", "OR": "OR",
}

var comparators = map[string]string{
	"_==_": "=", "=": "=",
	"_!=_": "!=", "!=": "!=",
	"_<_": "<", "<": "<",
	"_<=_": "<=", "<=": "<=",
	"_>_": ">", ">": ">",
	"_>=_": ">=", ">=": ">=",
}

func declarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("kind", filtering.TypeString),
		filtering.DeclareIdent("subkind", filtering.TypeString),
		filtering.DeclareIdent("message_id", filtering.TypeInt),
		filtering.DeclareIdent("swipe_id", filtering.TypeInt),
		filtering.DeclareIdent("ts", filtering.TypeTimestamp),
	)
}

// ParseEventFilter compiles filterStr into a SQL condition. A blank filter
// yields the zero condition.
func ParseEventFilter(filterStr string) (SQLCondition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return SQLCondition{}, nil
	}

	decls, err := declarations()
	if err != nil {
		return SQLCondition{}, fmt.Errorf("declare filter fields: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return SQLCondition{}, fmt.Errorf("parse filter: %w", err)
	}
	return walk(parsed.CheckedExpr.GetExpr())
}

// walk recursively lowers a checked CEL expression. Every node the parser
// hands us is a call: either a boolean connective or a field comparison.
func walk(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}
	call := e.GetCallExpr()
	if call == nil {
		return SQLCondition{}, fmt.Errorf("unsupported expression %T", e.GetExprKind())
	}
	if kw, ok := connectives[call.GetFunction()]; ok {
		return combine(kw, call.GetArgs())
	}
	if op, ok := comparators[call.GetFunction()]; ok {
		return compare(op, call.GetArgs())
	}
	return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.GetFunction())
}

func combine(kw string, args []*expr.Expr) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s wants 2 operands, got %d", kw, len(args))
	}
	left, err := walk(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	right, err := walk(args[1])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{
		Clause: "(" + left.Clause + " " + kw + " " + right.Clause + ")",
		Params: append(left.Params, right.Params...),
	}, nil
}

func compare(op string, args []*expr.Expr) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s wants 2 operands, got %d", op, len(args))
	}
	ident := args[0].GetIdentExpr()
	if ident == nil {
		return SQLCondition{}, fmt.Errorf("left side of %s must be a field name", op)
	}
	column, ok := columns[ident.GetName()]
	if !ok {
		return SQLCondition{}, fmt.Errorf("unknown field: %s", ident.GetName())
	}
	value, err := literal(args[1])
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{Clause: column + " " + op + " ?", Params: []any{value}}, nil
}

// literal extracts a comparison operand. timestamp("...") calls become the
// millisecond integers the events table stores.
func literal(e *expr.Expr) (any, error) {
	if c := e.GetConstExpr(); c != nil {
		switch k := c.GetConstantKind().(type) {
		case *expr.Constant_StringValue:
			return k.StringValue, nil
		case *expr.Constant_Int64Value:
			return k.Int64Value, nil
		case *expr.Constant_Uint64Value:
			return k.Uint64Value, nil
		case *expr.Constant_DoubleValue:
			return k.DoubleValue, nil
		case *expr.Constant_BoolValue:
			return k.BoolValue, nil
		}
		return nil, fmt.Errorf("unsupported constant %T", c.GetConstantKind())
	}
	if call := e.GetCallExpr(); call != nil && call.GetFunction() == "timestamp" && len(call.GetArgs()) == 1 {
		return timestampMillis(call.GetArgs()[0])
	}
	return nil, fmt.Errorf("comparison value must be a constant or timestamp()")
}

// timestampMillis parses the string argument of timestamp() as RFC 3339,
// with or without fractional seconds.
func timestampMillis(arg *expr.Expr) (int64, error) {
	sv, ok := arg.GetConstExpr().GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return 0, fmt.Errorf("timestamp argument must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, sv.StringValue)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", sv.StringValue)
	}
	return t.UTC().UnixMilli(), nil
}
