package filter

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/keel-api/keel/internal/schema"
)

// Predicate is a compiled filter: a SQL boolean expression with $n
// placeholders and the bind arguments in placeholder order
type Predicate struct {
	SQL  string
	Args []any
}

// Compiler turns filter trees into SQL predicates for one resource. It is
// stateless apart from the custom operator registry, which is populated at
// startup; Compile is safe for concurrent use and has no side effects.
type Compiler struct {
	registry *schema.Registry
	custom   map[schema.FieldType]map[string]CustomOperator
}

// NewCompiler creates a compiler with the default custom operators
// (jsonb containment tests on json fields)
func NewCompiler(registry *schema.Registry) *Compiler {
	c := &Compiler{
		registry: registry,
		custom:   make(map[schema.FieldType]map[string]CustomOperator),
	}
	c.RegisterOperator(schema.TypeJSON, "jsonb_contains", JSONBContains)
	c.RegisterOperator(schema.TypeJSON, "jsonb_has_key", JSONBHasKey)
	return c
}

// RegisterOperator adds a custom operator for one field type, resolved by
// name when a terminal condition uses it. Call during startup only.
func (c *Compiler) RegisterOperator(t schema.FieldType, name string, op CustomOperator) {
	if c.custom[t] == nil {
		c.custom[t] = make(map[string]CustomOperator)
	}
	c.custom[t][name] = op
}

// Compile compiles a filter tree against a resource schema. A nil node
// yields a nil predicate. Compilation is deterministic: the same tree
// always produces the same SQL and argument order.
func (c *Compiler) Compile(node *Node, resource *schema.ResourceSchema) (*Predicate, error) {
	if node == nil {
		return nil, nil
	}

	paramCounter := 1
	args := make([]any, 0)
	aliasCounter := 0

	sql, err := c.compileNode(node, resource, quoted(resource.Table), &paramCounter, &args, &aliasCounter)
	if err != nil {
		return nil, err
	}
	return &Predicate{SQL: sql, Args: args}, nil
}

func (c *Compiler) compileNode(
	node *Node,
	resource *schema.ResourceSchema,
	tableExpr string,
	paramCounter *int,
	args *[]any,
	aliasCounter *int,
) (string, error) {
	if node.IsTerminal() {
		return c.compileTerminal(node, resource, tableExpr, paramCounter, args, aliasCounter)
	}

	switch node.Logic {
	case LogicNot:
		if len(node.Children) != 1 {
			return "", fmt.Errorf("not combinator requires exactly one child, got %d", len(node.Children))
		}
		child, err := c.compileNode(node.Children[0], resource, tableExpr, paramCounter, args, aliasCounter)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", child), nil

	case LogicAnd, LogicOr:
		if len(node.Children) == 0 {
			return "", fmt.Errorf("%s combinator requires at least one child", node.Logic)
		}
		parts := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			sql, err := c.compileNode(child, resource, tableExpr, paramCounter, args, aliasCounter)
			if err != nil {
				return "", err
			}
			parts = append(parts, sql)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		connector := " AND "
		if node.Logic == LogicOr {
			connector = " OR "
		}
		return "(" + strings.Join(parts, connector) + ")", nil

	default:
		return "", fmt.Errorf("unknown combinator %d", node.Logic)
	}
}

// compileTerminal compiles one condition, traversing relationship path
// segments. A to-one segment joins directly on the owning foreign key; a
// to-many segment compiles to an existential subquery so a match in any
// related row satisfies the condition without multiplying parent rows.
func (c *Compiler) compileTerminal(
	node *Node,
	resource *schema.ResourceSchema,
	tableExpr string,
	paramCounter *int,
	args *[]any,
	aliasCounter *int,
) (string, error) {
	if len(node.Path) == 1 {
		return c.compileCondition(node, resource, tableExpr, paramCounter, args)
	}

	relName := node.Path[0]
	rel, ok := resource.Relationships[relName]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", schema.ErrUnknownRelationship, relName, resource.Type)
	}
	target, err := c.registry.Resolve(rel.Target)
	if err != nil {
		return "", err
	}

	*aliasCounter++
	alias := fmt.Sprintf("t%d", *aliasCounter)

	rest := &Node{Path: node.Path[1:], Op: node.Op, Val: node.Val}
	inner, err := c.compileTerminal(rest, target, alias, paramCounter, args, aliasCounter)
	if err != nil {
		return "", err
	}

	switch {
	case rel.Kind == schema.ToOne:
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s.%s = %s.%s AND %s)",
			quoted(target.Table), alias,
			alias, quoted(target.IDField),
			tableExpr, quoted(rel.ForeignKey),
			inner), nil

	case rel.ManyToMany():
		*aliasCounter++
		joinAlias := fmt.Sprintf("t%d", *aliasCounter)
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s JOIN %s %s ON %s.%s = %s.%s WHERE %s.%s = %s.%s AND %s)",
			quoted(rel.JoinTable), joinAlias,
			quoted(target.Table), alias,
			alias, quoted(target.IDField),
			joinAlias, quoted(rel.TargetKey),
			joinAlias, quoted(rel.LocalKey),
			tableExpr, quoted(resource.IDField),
			inner), nil

	default: // to-many with a foreign key on the target table
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s.%s = %s.%s AND %s)",
			quoted(target.Table), alias,
			alias, quoted(rel.ForeignKey),
			tableExpr, quoted(resource.IDField),
			inner), nil
	}
}

func (c *Compiler) compileCondition(
	node *Node,
	resource *schema.ResourceSchema,
	tableExpr string,
	paramCounter *int,
	args *[]any,
) (string, error) {
	name := node.Path[0]
	fieldType, err := resolveField(resource, name)
	if err != nil {
		return "", err
	}
	column := tableExpr + "." + quoted(name)

	op := CanonicalOperator(node.Op)

	// Custom operators registered for the field type win over builtins
	if fn, ok := c.custom[fieldType][op]; ok {
		sql, err := fn(column, node.Val, paramCounter, args)
		if err != nil {
			return "", fmt.Errorf("field %q, operator %q: %w", name, op, err)
		}
		return sql, nil
	}

	if !builtinOperators[op] {
		return "", fmt.Errorf("field %q has no operator %q", name, node.Op)
	}
	if err := validateOperator(name, op, fieldType); err != nil {
		return "", err
	}

	sql, err := builtinSQL(column, op, node.Val, paramCounter, args)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", name, err)
	}
	return sql, nil
}

// resolveField maps a terminal path segment to the field type of the
// underlying column: the id, a declared attribute, or a to-one foreign key
func resolveField(resource *schema.ResourceSchema, name string) (schema.FieldType, error) {
	if name == resource.IDField {
		return schema.TypeUUID, nil
	}
	if field, ok := resource.Fields[name]; ok {
		return field.Type, nil
	}
	for _, rel := range resource.Relationships {
		if rel.Kind == schema.ToOne && rel.ForeignKey == name {
			return schema.TypeUUID, nil
		}
	}
	if _, ok := resource.Relationships[name]; ok {
		return 0, fmt.Errorf("relationship %q on %s cannot be filtered directly, use a dotted path", name, resource.Type)
	}
	return 0, fmt.Errorf("field %q does not exist on resource %s", name, resource.Type)
}

func quoted(identifier string) string {
	return pq.QuoteIdentifier(identifier)
}
