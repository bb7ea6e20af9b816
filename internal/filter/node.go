// Package filter implements the JSON:API filter expression tree and its
// compilation into SQL predicates. The wire grammar follows the common
// JSON:API filtering convention: a JSON array of condition objects
// (combined with AND), where each condition is either a terminal node
// {"name": ..., "op": ..., "val": ...} or a logic node {"and": [...]},
// {"or": [...]}, {"not": {...}}. Terminal names may traverse relationships
// with dotted paths.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Logic is the combinator kind of a non-terminal node
type Logic int

const (
	// LogicNone marks a terminal node
	LogicNone Logic = iota
	LogicAnd
	LogicOr
	LogicNot
)

// String returns the wire name of the combinator
func (l Logic) String() string {
	switch l {
	case LogicAnd:
		return "and"
	case LogicOr:
		return "or"
	case LogicNot:
		return "not"
	default:
		return "terminal"
	}
}

// Node is one node of a filter tree: either a terminal condition
// (Path/Op/Val) or a combinator (Logic/Children)
type Node struct {
	// Terminal members. Path is the dotted field name split into
	// segments; every segment but the last must be a relationship.
	Path []string
	Op   string
	Val  any

	// Combinator members
	Logic    Logic
	Children []*Node
}

// IsTerminal reports whether the node is a terminal condition
func (n *Node) IsTerminal() bool {
	return n.Logic == LogicNone
}

// And combines nodes under an AND combinator, flattening where possible
func And(nodes ...*Node) *Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &Node{Logic: LogicAnd, Children: nodes}
}

// Condition builds a terminal node from a dotted field name
func Condition(name, op string, val any) *Node {
	return &Node{Path: strings.Split(name, "."), Op: op, Val: val}
}

// terminalKeys are the members allowed on a terminal condition object
var terminalKeys = map[string]bool{"name": true, "op": true, "val": true}

// logicKeys are the members allowed on a logic node
var logicKeys = map[string]Logic{"and": LogicAnd, "or": LogicOr, "not": LogicNot}

// Parse decodes the raw value of a filter query parameter. The top level
// must be a JSON array of condition objects; the array combines with AND.
func Parse(raw string) (*Node, error) {
	var decoded any
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parse error on filter: %w", err)
	}

	list, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("incorrect filters format, expected list of conditions but got %T", decoded)
	}
	return fromList(list)
}

func fromList(list []any) (*Node, error) {
	if len(list) == 0 {
		return nil, errors.New("filter condition list is empty")
	}

	children := make([]*Node, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("filter condition must be an object, got %T", item)
		}
		node, err := fromObject(obj)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	return And(children...), nil
}

func fromObject(obj map[string]any) (*Node, error) {
	if isTerminal(obj) {
		return terminalFromObject(obj)
	}
	return logicFromObject(obj)
}

// isTerminal reports whether the object is a terminal condition: its keys
// are a subset of {name, op, val} and name/op are present
func isTerminal(obj map[string]any) bool {
	for key := range obj {
		if !terminalKeys[key] {
			return false
		}
	}
	_, hasName := obj["name"]
	_, hasOp := obj["op"]
	return hasName && hasOp
}

func terminalFromObject(obj map[string]any) (*Node, error) {
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return nil, errors.New("filter condition requires a string name")
	}
	op, ok := obj["op"].(string)
	if !ok || op == "" {
		return nil, fmt.Errorf("filter condition on %q requires a string op", name)
	}

	node := Condition(name, op, normalizeValue(obj["val"]))
	for _, segment := range node.Path {
		if segment == "" {
			return nil, fmt.Errorf("filter condition has a malformed field path %q", name)
		}
	}
	return node, nil
}

func logicFromObject(obj map[string]any) (*Node, error) {
	if len(obj) != 1 {
		return nil, fmt.Errorf("in each logic node expected one of operators [and or not] but got %d members", len(obj))
	}

	for key, value := range obj {
		logic, ok := logicKeys[key]
		if !ok {
			return nil, fmt.Errorf("not found logic operator %q expected one of [and or not]", key)
		}

		if logic == LogicNot {
			child, ok := value.(map[string]any)
			if !ok {
				return nil, errors.New("not operator requires a single condition object")
			}
			node, err := fromObject(child)
			if err != nil {
				return nil, err
			}
			return &Node{Logic: LogicNot, Children: []*Node{node}}, nil
		}

		list, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s operator requires a list of conditions", key)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%s operator requires at least one condition", key)
		}

		children := make([]*Node, 0, len(list))
		for _, item := range list {
			childObj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s operator conditions must be objects, got %T", key, item)
			}
			node, err := fromObject(childObj)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
		return &Node{Logic: logic, Children: children}, nil
	}

	// unreachable: obj has exactly one member
	return nil, errors.New("empty logic node")
}

// normalizeValue converts json.Number values (and slices of them) into
// int64 or float64 so compiled arguments bind as native SQL numerics
func normalizeValue(val any) any {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return val
	}
}
