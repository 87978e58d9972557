// Package condition implements the boolean expression language used by event
// mapping rules.
//
// Grammar, loosest binding first:
//
//	expr       := and ( "||" and )*
//	and        := unary ( "&&" unary )*
//	unary      := "!" unary | comparison | path
//	comparison := operand OP operand      OP in === !== == != >= <= > <
//	path       := identifier ( "." identifier )*
//
// Operands resolve in order: quoted string, number, true/false/null/undefined,
// event data lookup, and finally the raw token text. There are no parentheses.
//
// The source is split on "||" and then "&&" before quotes are read, so a
// quoted literal cannot contain either operator: label === 'a||b' compiles
// to the terms "label === 'a" and "b'".
package condition

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyExpression is returned when an expression or one of its
	// logical operands is blank.
	ErrEmptyExpression = errors.New("empty condition expression")
	// ErrMissingOperand is returned when a comparison lacks a side.
	ErrMissingOperand = errors.New("comparison is missing an operand")
)

var comparisonPattern = regexp.MustCompile(`^(.+?)\s*(===|!==|==|!=|>=|<=|>|<)\s*(.+)$`)

// Expr is a compiled condition.
type Expr interface {
	// Eval reports whether the condition holds for data.
	Eval(data map[string]any) bool
	String() string
}

// Compile parses src into an Expr.
func Compile(src string) (Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, ErrEmptyExpression
	}

	orParts := strings.Split(src, "||")
	ors := make(anyOf, 0, len(orParts))

	for _, orPart := range orParts {
		andParts := strings.Split(orPart, "&&")
		ands := make(allOf, 0, len(andParts))

		for _, andPart := range andParts {
			term, err := compileUnary(strings.TrimSpace(andPart))
			if err != nil {
				return nil, fmt.Errorf("condition %q: %w", src, err)
			}

			ands = append(ands, term)
		}

		ors = append(ors, ands)
	}

	return &compiled{src: src, root: ors}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level tables.
func MustCompile(src string) Expr {
	expr, err := Compile(src)
	if err != nil {
		panic(err)
	}

	return expr
}

// Evaluate compiles and evaluates src in one step. Malformed expressions
// evaluate to false.
func Evaluate(src string, data map[string]any) bool {
	expr, err := Compile(src)
	if err != nil {
		return false
	}

	return expr.Eval(data)
}

func compileUnary(term string) (node, error) {
	if term == "" {
		return nil, ErrEmptyExpression
	}

	if strings.HasPrefix(term, "!") {
		inner, err := compileUnary(strings.TrimSpace(term[1:]))
		if err != nil {
			return nil, err
		}

		return not{inner}, nil
	}

	if m := comparisonPattern.FindStringSubmatch(term); m != nil {
		left := strings.TrimSpace(m[1])
		right := strings.TrimSpace(m[3])

		if left == "" || right == "" {
			return nil, fmt.Errorf("%w: %q", ErrMissingOperand, term)
		}

		return comparison{
			op:    m[2],
			left:  parseOperand(left),
			right: parseOperand(right),
		}, nil
	}

	return pathTerm(term), nil
}

type node interface {
	eval(data map[string]any) bool
}

type compiled struct {
	src  string
	root node
}

func (c *compiled) Eval(data map[string]any) bool {
	if data == nil {
		data = map[string]any{}
	}

	return c.root.eval(data)
}

func (c *compiled) String() string {
	return c.src
}

type anyOf []node

func (a anyOf) eval(data map[string]any) bool {
	for _, n := range a {
		if n.eval(data) {
			return true
		}
	}

	return false
}

type allOf []node

func (a allOf) eval(data map[string]any) bool {
	for _, n := range a {
		if !n.eval(data) {
			return false
		}
	}

	return true
}

type not struct {
	inner node
}

func (n not) eval(data map[string]any) bool {
	return !n.inner.eval(data)
}

type pathTerm string

func (p pathTerm) eval(data map[string]any) bool {
	value, ok := Lookup(data, string(p))
	if !ok {
		return false
	}

	return truthy(value)
}

type comparison struct {
	op    string
	left  operand
	right operand
}

func (c comparison) eval(data map[string]any) bool {
	l := c.left.resolve(data)
	r := c.right.resolve(data)

	switch c.op {
	case "===":
		return strictEqual(l, r)
	case "!==":
		return !strictEqual(l, r)
	case "==":
		return looseEqual(l, r)
	case "!=":
		return !looseEqual(l, r)
	case ">", "<", ">=", "<=":
		return ordered(c.op, l, r)
	default:
		return false
	}
}

// Lookup resolves key against data. An exact key match wins; otherwise a
// dotted key walks nested maps.
func Lookup(data map[string]any, key string) (any, bool) {
	if value, ok := data[key]; ok {
		return value, true
	}

	if !strings.Contains(key, ".") {
		return nil, false
	}

	var current any = data

	for _, part := range strings.Split(key, ".") {
		next, ok := child(current, part)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func child(value any, key string) (any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		v, ok := typed[key]

		return v, ok
	case map[string]string:
		v, ok := typed[key]

		return v, ok
	case map[string]bool:
		v, ok := typed[key]

		return v, ok
	default:
		return nil, false
	}
}
