// Package evaluator walks a parsed roll document and produces the rendered
// message together with the value and formula of every roll in it.
package evaluator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/sambeau/roll/pkg/roll/ast"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/lexer"
)

const (
	DefaultMaxDepth = 32
	DefaultMaxDice  = 1000
)

type ObjectType string

const (
	NUMBER_OBJ = "NUMBER"
	TEXT_OBJ   = "TEXT"
	ERROR_OBJ  = "ERROR"
)

// Object represents every value the evaluator produces
type Object interface {
	Type() ObjectType
	Inspect() string
}

// Number is the result of an expression. Formula is the expression as it
// should appear inside a parent formula.
type Number struct {
	Value   float64
	Formula string
	Dice    []DiceRoll
}

func (n *Number) Type() ObjectType { return NUMBER_OBJ }
func (n *Number) Inspect() string  { return n.Formula + "=" + FormatNumber(n.Value) }

// DiceRoll records one dice term and the faces it rolled.
type DiceRoll struct {
	Count int       `json:"count"`
	Sides float64   `json:"sides"`
	Faces []float64 `json:"faces"`
}

// Roll is a top-level roll after rendering
type Roll struct {
	Formula string
	Value   float64
	Command bool
	Dice    []DiceRoll
}

// Text is a rendered document
type Text struct {
	Value string
	Rolls []Roll
}

func (t *Text) Type() ObjectType { return TEXT_OBJ }
func (t *Text) Inspect() string  { return t.Value }

// Error wraps a RollError so it can travel through Eval like any other value
type Error struct {
	Err *rerrors.RollError
}

func (e *Error) Type() ObjectType { return ERROR_OBJ }
func (e *Error) Inspect() string  { return "ERROR: " + e.Err.String() }

func isError(obj Object) bool {
	if obj != nil {
		return obj.Type() == ERROR_OBJ
	}
	return false
}

// QueryPrompter asks the user to answer a roll query. ok is false when the
// user cancelled, in which case the default is used.
type QueryPrompter func(prompt, def string) (answer string, ok bool)

// Logger receives trace output while a message is evaluated
type Logger interface {
	Log(values ...any)
	LogLine(values ...any)
}

type nullLogger struct{}

func (nullLogger) Log(values ...any)     {}
func (nullLogger) LogLine(values ...any) {}

// Environment carries everything one interpretation needs. Macro bodies
// and inline rolls are evaluated in enclosed environments that share the
// query cache and add one level of depth.
type Environment struct {
	Macros   Macros
	Random   func() float64
	Prompter QueryPrompter
	MaxDepth int
	MaxDice  int
	Logger   Logger

	queries *queryCache
	depth   int
	origin  string
	outer   *Environment
}

// NewEnvironment creates a top-level environment with default limits,
// math/rand/v2 randomness and no prompter.
func NewEnvironment() *Environment {
	return &Environment{
		Macros:   Macros{},
		Random:   rand.Float64,
		MaxDepth: DefaultMaxDepth,
		MaxDice:  DefaultMaxDice,
		Logger:   nullLogger{},
		queries:  newQueryCache(nil),
		origin:   rerrors.DefaultOrigin,
	}
}

// newEnclosedEnvironment creates an environment one level deeper than
// outer. origin names the source evaluated in it, such as "#melee".
func newEnclosedEnvironment(outer *Environment, origin string) *Environment {
	env := *outer
	env.outer = outer
	env.depth = outer.depth + 1
	if origin != "" {
		env.origin = origin
	}
	return &env
}

// SetQueryAnswers pre-resolves roll queries, keyed by trimmed prompt.
// The map is copied.
func (e *Environment) SetQueryAnswers(answers map[string]string) {
	e.queries = newQueryCache(answers)
}

// Origin returns the name of the source evaluated in the environment.
func (e *Environment) Origin() string {
	return e.origin
}

func (e *Environment) logger() Logger {
	if e.Logger == nil {
		return nullLogger{}
	}
	return e.Logger
}

func (e *Environment) trace(tag string, format string, a ...any) {
	indent := strings.Repeat("  ", e.depth)
	e.logger().LogLine(fmt.Sprintf("%s[%s] %s", indent, tag, fmt.Sprintf(format, a...)))
}

// enter returns an enclosed environment, or an error when it would nest
// deeper than MaxDepth.
func (e *Environment) enter(tok lexer.Token, name, origin string) (*Environment, *Error) {
	limit := e.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	if e.depth >= limit {
		return nil, newError(rerrors.CodeRecursionLimit, tok, e, map[string]any{
			"Limit": limit,
			"Name":  name,
		})
	}
	return newEnclosedEnvironment(e, origin), nil
}

func newError(code string, tok lexer.Token, env *Environment, data map[string]any) *Error {
	err := rerrors.NewWithPosition(code, tok.Offset, tok.Line, tok.Column, data)
	err.Origin = env.origin
	return &Error{Err: err}
}

// Eval evaluates a node
func Eval(node ast.Node, env *Environment) Object {
	switch node := node.(type) {

	case *ast.Document:
		return evalDocument(node, env)

	case *ast.NumberLiteral:
		return &Number{Value: node.Value, Formula: FormatNumber(node.Value)}

	case *ast.PrefixExpression:
		right := Eval(node.Right, env)
		if isError(right) {
			return right
		}
		return evalPrefixExpression(node, right.(*Number))

	case *ast.InfixExpression:
		left := Eval(node.Left, env)
		if isError(left) {
			return left
		}
		right := Eval(node.Right, env)
		if isError(right) {
			return right
		}
		return evalInfixExpression(node, left.(*Number), right.(*Number), env)

	case *ast.GroupedExpression:
		inner := Eval(node.Inner, env)
		if isError(inner) {
			return inner
		}
		n := inner.(*Number)
		return &Number{Value: n.Value, Formula: "(" + n.Formula + ")", Dice: n.Dice}

	case *ast.FunctionCall:
		arg := Eval(node.Argument, env)
		if isError(arg) {
			return arg
		}
		return evalFunctionCall(node, arg.(*Number), env)

	case *ast.DiceExpression:
		return evalDiceExpression(node, env)

	case *ast.LabelExpression:
		inner := Eval(node.Inner, env)
		if isError(inner) {
			return inner
		}
		n := inner.(*Number)
		return &Number{Value: n.Value, Formula: n.Formula + "[" + node.Label + "]", Dice: n.Dice}

	case *ast.InlineRoll:
		return evalInlineRoll(node, env)

	case *ast.QueryExpression:
		return evalQueryExpression(node, env)

	case *ast.MacroReference:
		return evalMacroReference(node, env)
	}

	return &Error{Err: rerrors.New(rerrors.CodeUnexpectedToken, map[string]any{"Token": fmt.Sprintf("%T", node)})}
}

func evalPrefixExpression(node *ast.PrefixExpression, right *Number) Object {
	return &Number{Value: -right.Value, Formula: "-" + right.Formula, Dice: right.Dice}
}

func evalInfixExpression(node *ast.InfixExpression, left, right *Number, env *Environment) Object {
	formula := left.Formula + node.Operator + right.Formula

	var value float64
	switch node.Operator {
	case "+":
		value = left.Value + right.Value
	case "-":
		value = left.Value - right.Value
	case "*":
		value = left.Value * right.Value
	case "/":
		if right.Value == 0 {
			return newError(rerrors.CodeDivisionByZero, node.Token, env, map[string]any{"Formula": formula})
		}
		value = left.Value / right.Value
	case "^":
		value = math.Pow(left.Value, right.Value)
	default:
		return newError(rerrors.CodeUnexpectedToken, node.Token, env, map[string]any{"Token": node.Operator})
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return newError(rerrors.CodeNonFiniteResult, node.Token, env, map[string]any{"Formula": formula})
	}

	return &Number{Value: value, Formula: formula, Dice: joinDice(left.Dice, right.Dice)}
}

func evalFunctionCall(node *ast.FunctionCall, arg *Number, env *Environment) Object {
	info, ok := FunctionMetadata[node.Function]
	if !ok {
		return newError(rerrors.CodeUnexpectedToken, node.Token, env, map[string]any{"Token": node.Function})
	}

	value := info.fn(arg.Value)
	return &Number{Value: value, Formula: node.Function + "(" + arg.Formula + ")", Dice: arg.Dice}
}

func evalInlineRoll(node *ast.InlineRoll, env *Environment) Object {
	inner, errObj := env.enter(node.Token, "[[", "")
	if errObj != nil {
		return errObj
	}

	result := Eval(node.Inner, inner)
	if isError(result) {
		return result
	}
	n := result.(*Number)

	formula := "(" + FormatNumber(n.Value) + ")"
	if node.Provenance == ast.ProvenanceMacro {
		formula = "{" + FormatNumber(n.Value) + "}"
	}
	env.trace("ROLL", "%s=%s", n.Formula, FormatNumber(n.Value))

	return &Number{Value: n.Value, Formula: formula, Dice: n.Dice}
}

// substitute presents a macro body or query answer inside its parent
// formula. A top-level binary operation is parenthesized so the displayed
// precedence matches the evaluated one.
func substitute(expr ast.Expression, n *Number) *Number {
	if ast.IsInfix(expr) {
		return &Number{Value: n.Value, Formula: "(" + n.Formula + ")", Dice: n.Dice}
	}
	return n
}

func joinDice(a, b []DiceRoll) []DiceRoll {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]DiceRoll, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
