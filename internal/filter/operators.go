package filter

import (
	"fmt"
	"strings"

	"github.com/keel-api/keel/internal/schema"
)

// Built-in filter operator names
const (
	OpEq        = "eq"
	OpNe        = "ne"
	OpGt        = "gt"
	OpGe        = "ge"
	OpLt        = "lt"
	OpLe        = "le"
	OpLike      = "like"
	OpILike     = "ilike"
	OpIn        = "in"
	OpNotIn     = "notin"
	OpIsNull    = "isnull"
	OpIsNotNull = "isnotnull"
	OpBetween   = "between"
)

// operatorAliases maps alternate spellings kept for compatibility with
// SQLAlchemy-style clients onto canonical names
var operatorAliases = map[string]string{
	"in_":     OpIn,
	"notin_":  OpNotIn,
	"is_":     OpIsNull,
	"isnot":   OpIsNotNull,
	"not_in":  OpNotIn,
	"like_":   OpLike,
	"ilike_":  OpILike,
}

// CanonicalOperator resolves aliases to the canonical operator name
func CanonicalOperator(op string) string {
	if canonical, ok := operatorAliases[op]; ok {
		return canonical
	}
	return op
}

var comparableOperators = map[string]bool{
	OpGt: true, OpGe: true, OpLt: true, OpLe: true, OpBetween: true,
}

var patternOperators = map[string]bool{
	OpLike: true, OpILike: true,
}

var builtinOperators = map[string]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGe: true, OpLt: true, OpLe: true,
	OpLike: true, OpILike: true, OpIn: true, OpNotIn: true,
	OpIsNull: true, OpIsNotNull: true, OpBetween: true,
}

// validateOperator checks that the operator is applicable to the resolved
// field type. Failures here are compile-time client errors; nothing
// invalid ever reaches the storage engine.
func validateOperator(field string, op string, t schema.FieldType) error {
	if comparableOperators[op] && t == schema.TypeBool {
		return fmt.Errorf("operator %q cannot be applied to boolean field %q", op, field)
	}
	if comparableOperators[op] && t == schema.TypeJSON {
		return fmt.Errorf("operator %q cannot be applied to json field %q", op, field)
	}
	if patternOperators[op] && !t.IsTextual() {
		return fmt.Errorf("operator %q requires a text field but %q is %s", op, field, t)
	}
	return nil
}

// builtinSQL renders a single builtin condition, appending bind arguments
// and advancing the placeholder counter
func builtinSQL(column, op string, val any, paramCounter *int, args *[]any) (string, error) {
	switch op {
	case OpEq:
		return bindOne(column, "=", val, paramCounter, args), nil
	case OpNe:
		return bindOne(column, "!=", val, paramCounter, args), nil
	case OpGt:
		return bindOne(column, ">", val, paramCounter, args), nil
	case OpGe:
		return bindOne(column, ">=", val, paramCounter, args), nil
	case OpLt:
		return bindOne(column, "<", val, paramCounter, args), nil
	case OpLe:
		return bindOne(column, "<=", val, paramCounter, args), nil

	case OpLike:
		return bindOne(column, "LIKE", val, paramCounter, args), nil
	case OpILike:
		return bindOne(column, "ILIKE", val, paramCounter, args), nil

	case OpIn, OpNotIn:
		values, ok := val.([]any)
		if !ok {
			return "", fmt.Errorf("operator %q requires an array value", op)
		}
		if len(values) == 0 {
			// IN () is not valid SQL; an empty set matches nothing
			if op == OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			*args = append(*args, v)
			placeholders[i] = fmt.Sprintf("$%d", *paramCounter)
			*paramCounter++
		}
		keyword := "IN"
		if op == OpNotIn {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", column, keyword, strings.Join(placeholders, ", ")), nil

	case OpIsNull:
		return fmt.Sprintf("%s IS NULL", column), nil
	case OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", column), nil

	case OpBetween:
		values, ok := val.([]any)
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("operator %q requires an array of exactly 2 values", op)
		}
		*args = append(*args, values[0], values[1])
		sql := fmt.Sprintf("%s BETWEEN $%d AND $%d", column, *paramCounter, *paramCounter+1)
		*paramCounter += 2
		return sql, nil

	default:
		return "", fmt.Errorf("unknown operator %q", op)
	}
}

func bindOne(column, sqlOp string, val any, paramCounter *int, args *[]any) string {
	*args = append(*args, val)
	sql := fmt.Sprintf("%s %s $%d", column, sqlOp, *paramCounter)
	*paramCounter++
	return sql
}

// CustomOperator renders a backend-specific condition for one column. It
// must append its bind arguments to args and advance paramCounter, mirroring
// the builtin operators.
type CustomOperator func(column string, val any, paramCounter *int, args *[]any) (string, error)

// JSONBContains is a custom operator testing jsonb containment (@>)
func JSONBContains(column string, val any, paramCounter *int, args *[]any) (string, error) {
	*args = append(*args, val)
	sql := fmt.Sprintf("%s @> $%d::jsonb", column, *paramCounter)
	*paramCounter++
	return sql, nil
}

// JSONBHasKey is a custom operator testing jsonb key presence. It uses the
// jsonb_exists function form because the `?` operator collides with bind
// placeholder handling in some drivers.
func JSONBHasKey(column string, val any, paramCounter *int, args *[]any) (string, error) {
	key, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("jsonb_has_key requires a string value")
	}
	*args = append(*args, key)
	sql := fmt.Sprintf("jsonb_exists(%s, $%d)", column, *paramCounter)
	*paramCounter++
	return sql, nil
}
