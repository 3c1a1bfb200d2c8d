package evaluator

import (
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/sambeau/roll/pkg/roll/ast"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/lexer"
	"github.com/sambeau/roll/pkg/roll/parser"
)

// Macros maps macro names to their raw body text. It is never modified
// while a message is being interpreted.
type Macros map[string]string

// Lookup returns the body of a macro. Names that differ only in Unicode
// composition (é written as one code point or as e plus an accent) match.
func (m Macros) Lookup(name string) (string, bool) {
	if body, ok := m[name]; ok {
		return body, true
	}
	nfc := norm.NFC.String(name)
	if body, ok := m[nfc]; ok {
		return body, true
	}
	for key, body := range m {
		if norm.NFC.String(key) == nfc {
			return body, true
		}
	}
	return "", false
}

// Names returns the macro names in sorted order.
func (m Macros) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the table.
func (m Macros) Clone() Macros {
	out := make(Macros, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func macroOrigin(name string) string {
	return (&ast.MacroReference{Name: name}).String()
}

// evalMacroReference expands #name inside an expression. The body must be
// a single expression; it is parsed with macro provenance so its inline
// rolls display as {v}.
func evalMacroReference(node *ast.MacroReference, env *Environment) Object {
	body, ok := env.Macros.Lookup(node.Name)
	if !ok {
		err := rerrors.NewUnknownMacro(node.Name, env.Macros.Names()).
			WithPosition(node.Token.Offset, node.Token.Line, node.Token.Column).
			WithOrigin(env.origin)
		return &Error{Err: err}
	}

	origin := macroOrigin(node.Name)
	inner, errObj := env.enter(node.Token, origin, origin)
	if errObj != nil {
		return errObj
	}
	inner.trace("MACRO", "%s => %s", origin, body)

	p := parser.NewWithProvenance(lexer.NewWithOrigin(body, origin), ast.ProvenanceMacro).SetMacros(env.Macros)
	expr := p.ParseExpressionOnly()
	if err := p.Err(); err != nil {
		return &Error{Err: err}
	}

	result := Eval(expr, inner)
	if isError(result) {
		return result
	}

	return substitute(expr, result.(*Number))
}

// evalMacroSegment expands a macro written in free text. The body is a
// document in its own right and its rolls render as top-level rolls.
func evalMacroSegment(node *ast.MacroSegment, env *Environment) Object {
	body, ok := env.Macros.Lookup(node.Name)
	if !ok {
		err := rerrors.NewUnknownMacro(node.Name, env.Macros.Names()).
			WithPosition(node.Token.Offset, node.Token.Line, node.Token.Column).
			WithOrigin(env.origin)
		return &Error{Err: err}
	}

	origin := macroOrigin(node.Name)
	inner, errObj := env.enter(node.Token, origin, origin)
	if errObj != nil {
		return errObj
	}
	inner.trace("MACRO", "%s => %s", origin, body)

	p := parser.NewWithProvenance(lexer.NewWithOrigin(body, origin), ast.ProvenanceMacro).SetMacros(env.Macros)
	doc := p.ParseDocument()
	if err := p.Err(); err != nil {
		return &Error{Err: err}
	}

	return evalDocument(doc, inner)
}
