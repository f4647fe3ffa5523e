// Package calc is the calculator skill: a small arithmetic evaluator that
// never touches eval or the shell.
package calc

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/fhaenel/frieda/internal/skills"
)

// Skill evaluates arithmetic expressions.
type Skill struct{}

// New creates the calculator skill.
func New() *Skill { return &Skill{} }

func (s *Skill) Name() string { return "calculator" }

func (s *Skill) Description() string {
	return "Evaluate an arithmetic expression. Supports + - * / % ^, parentheses, and decimal numbers."
}

func (s *Skill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"expression": skills.Property("string", "The expression, e.g. '2 * (3 + 4.5)'"),
	}, "expression")
}

func (s *Skill) Execute(_ context.Context, args map[string]any) (string, error) {
	expr := skills.StringArg(args, "expression")
	if strings.TrimSpace(expr) == "" {
		return skills.Errorf("expression is empty"), nil
	}
	result, err := Eval(expr)
	if err != nil {
		return skills.Errorf("%v", err), nil
	}
	return strconv.FormatFloat(result, 'f', -1, 64), nil
}

type token struct {
	kind  byte // 'n' number, 'o' operator, '(' or ')'
	value float64
	op    byte
}

// Eval parses and evaluates the expression with the shunting-yard algorithm.
func Eval(expr string) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	rpn, err := toRPN(tokens)
	if err != nil {
		return 0, err
	}
	return evalRPN(rpn)
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(string(runes[i:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", string(runes[i:j]))
			}
			tokens = append(tokens, token{kind: 'n', value: n})
			i = j
		case strings.ContainsRune("+-*/%^", r):
			// Unary minus becomes (0 - x).
			if r == '-' && (len(tokens) == 0 || tokens[len(tokens)-1].kind == 'o' || tokens[len(tokens)-1].kind == '(') {
				tokens = append(tokens, token{kind: 'n', value: 0})
			}
			tokens = append(tokens, token{kind: 'o', op: byte(r)})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: '('})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: ')'})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return tokens, nil
}

func precedence(op byte) int {
	switch op {
	case '+', '-':
		return 1
	case '*', '/', '%':
		return 2
	case '^':
		return 3
	}
	return 0
}

func toRPN(tokens []token) ([]token, error) {
	var out, stack []token
	for _, t := range tokens {
		switch t.kind {
		case 'n':
			out = append(out, t)
		case 'o':
			for len(stack) > 0 && stack[len(stack)-1].kind == 'o' {
				top := stack[len(stack)-1]
				// ^ is right-associative.
				if precedence(top.op) > precedence(t.op) ||
					(precedence(top.op) == precedence(t.op) && t.op != '^') {
					out = append(out, top)
					stack = stack[:len(stack)-1]
					continue
				}
				break
			}
			stack = append(stack, t)
		case '(':
			stack = append(stack, t)
		case ')':
			found := false
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.kind == '(' {
					found = true
					break
				}
				out = append(out, top)
			}
			if !found {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.kind == '(' {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		out = append(out, top)
	}
	return out, nil
}

func evalRPN(rpn []token) (float64, error) {
	var stack []float64
	for _, t := range rpn {
		if t.kind == 'n' {
			stack = append(stack, t.value)
			continue
		}
		if len(stack) < 2 {
			return 0, fmt.Errorf("malformed expression")
		}
		b := stack[len(stack)-1]
		a := stack[len(stack)-2]
		stack = stack[:len(stack)-2]
		var v float64
		switch t.op {
		case '+':
			v = a + b
		case '-':
			v = a - b
		case '*':
			v = a * b
		case '/':
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v = a / b
		case '%':
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v = math.Mod(a, b)
		case '^':
			v = math.Pow(a, b)
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("result out of range")
		}
		stack = append(stack, v)
	}
	if len(stack) != 1 {
		return 0, fmt.Errorf("malformed expression")
	}
	return stack[0], nil
}
