package parser

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sambeau/roll/pkg/roll/ast"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/lexer"
)

// table is a minimal macro table for tests.
type table map[string]string

func (t table) Lookup(name string) (string, bool) {
	body, ok := t[name]
	return body, ok
}

func (t table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}

var ignoreTokens = cmpopts.IgnoreTypes(lexer.Token{})

func n(v float64) *ast.NumberLiteral {
	return &ast.NumberLiteral{Value: v}
}

func parseDocument(t *testing.T, input string, macros MacroLookup) *ast.Document {
	t.Helper()
	p := New(lexer.New(input))
	if macros != nil {
		p.SetMacros(macros)
	}
	doc := p.ParseDocument()
	if err := p.Err(); err != nil {
		t.Fatalf("ParseDocument(%q) error: %s", input, err)
	}
	return doc
}

func TestParseExpressionOnly(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"5 - 4 + 1", "((5 - 4) + 1)"},
		{"4 * 6 / 3", "((4 * 6) / 3)"},
		{"2^3^2", "(2 ^ (3 ^ 2))"},
		{"2^-1", "(2 ^ (-1))"},
		{"-2^2", "(-(2 ^ 2))"},
		{"-3d6", "(-(3d6))"},
		{"2d6 + 3", "((2d6) + 3)"},
		{"2*3d6", "(2 * (3d6))"},
		{"d20", "(d20)"},
		{"D8", "(d8)"},
		{"(1+1)d(2*3)", "(((1 + 1))d((2 * 3)))"},
		{"(1+2)*3", "(((1 + 2)) * 3)"},
		{"floor(7/2)", "floor((7 / 2))"},
		{"ROUND(2.5)", "round(2.5)"},
		{"20+3[STR]", "(20 + 3[STR])"},
		{"2d6[fire] + 1", "((2d6)[fire] + 1)"},
		{"?{ Bonus | 2 }", "?{Bonus|2}"},
		{"?{Bonus}", "?{Bonus}"},
		{"#melee + 1", "(#melee + 1)"},
		{"#{melee attack}", "#{melee attack}"},
		{"10 + [[7 + 8]]", "(10 + [[(7 + 8)]])"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := New(lexer.New(tt.input))
			expr := p.ParseExpressionOnly()
			if err := p.Err(); err != nil {
				t.Fatalf("ParseExpressionOnly() error: %s", err)
			}
			if got := expr.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseDocument(t *testing.T) {
	doc := parseDocument(t, `attack is [[20+1]] and damage is /r 10 \ take that!`, nil)

	want := &ast.Document{
		Segments: []ast.Segment{
			&ast.TextSegment{Value: "attack is "},
			&ast.RollSegment{
				Roll: &ast.InfixExpression{Left: n(20), Operator: "+", Right: n(1)},
			},
			&ast.TextSegment{Value: " and damage is "},
			&ast.RollSegment{Roll: n(10), Command: true, Terminated: true},
			&ast.TextSegment{Value: " take that!"},
		},
	}

	if diff := cmp.Diff(want, doc, ignoreTokens); diff != "" {
		t.Errorf("ParseDocument() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDocumentMacros(t *testing.T) {
	macros := table{"melee": "[[15+4]]", "melee attack": "[[15+4]]"}
	doc := parseDocument(t, "I hit for #melee and #{melee attack}!", macros)

	want := &ast.Document{
		Segments: []ast.Segment{
			&ast.TextSegment{Value: "I hit for "},
			&ast.MacroSegment{Name: "melee"},
			&ast.TextSegment{Value: " and "},
			&ast.MacroSegment{Name: "melee attack"},
			&ast.TextSegment{Value: "!"},
		},
	}

	if diff := cmp.Diff(want, doc, ignoreTokens); diff != "" {
		t.Errorf("ParseDocument() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseQuery(t *testing.T) {
	doc := parseDocument(t, "[[?{ attack |3}]]", nil)

	want := &ast.Document{
		Segments: []ast.Segment{
			&ast.RollSegment{
				Roll: &ast.QueryExpression{Prompt: "attack", Default: "3", Key: "attack"},
			},
		},
	}

	if diff := cmp.Diff(want, doc, ignoreTokens); diff != "" {
		t.Errorf("ParseDocument() mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandLongestPrefix(t *testing.T) {
	tests := []struct {
		input      string
		roll       string
		rest       string
		terminated bool
	}{
		{"/r 20*2 is my attack roll", "(20 * 2)", " is my attack roll", false},
		{"/r 20*2", "(20 * 2)", "", false},
		{`/r 20*2\ is my attack roll`, "(20 * 2)", " is my attack roll", true},
		{`/r 10 \ take that!`, "10", " take that!", true},
		{"/r 10 - the end", "10", " - the end", false},
		{"/r 1+2*x", "(1 + 2)", "*x", false},
		{"/r 2*(3+x)", "2", "*(3+x)", false},
		{"/r (4+2)*2 apples", "(((4 + 2)) * 2)", " apples", false},
		{"/r d20 to hit", "(d20)", " to hit", false},
		{"/roll 3 dogs", "3", " dogs", false},
		{"/r 5 ?{later}", "5", " ?{later}", false},
		{"/r 20+3[STR] with strength", "(20 + 3[STR])", " with strength", false},
		{"/r 2^3 ✓", "(2 ^ 3)", " ✓", false},
		{"/r 4 d", "4", " d", false},
		{"/r 4 d x", "4", " d x", false},
		{"/r 4 + d", "4", " + d", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			doc := parseDocument(t, tt.input, nil)

			rolls := doc.Rolls()
			if len(rolls) != 1 {
				t.Fatalf("len(Rolls()) = %d, want 1 (%s)", len(rolls), doc.String())
			}
			if got := rolls[0].Roll.String(); got != tt.roll {
				t.Errorf("roll = %q, want %q", got, tt.roll)
			}
			if rolls[0].Terminated != tt.terminated {
				t.Errorf("Terminated = %v, want %v", rolls[0].Terminated, tt.terminated)
			}

			var rest strings.Builder
			for _, seg := range doc.Segments[1:] {
				rest.WriteString(seg.String())
			}
			if rest.String() != tt.rest {
				t.Errorf("rest = %q, want %q", rest.String(), tt.rest)
			}
		})
	}
}

func TestCommandWithoutExpression(t *testing.T) {
	tests := []string{
		"/r is what I type",
		"/r",
		"/r )",
		"say /r later",
		"/r (1+2 apples",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			doc := parseDocument(t, input, nil)
			if len(doc.Rolls()) != 0 {
				t.Fatalf("Rolls() = %v, want none", doc.Rolls())
			}
			if got := doc.String(); got != input {
				t.Errorf("String() = %q, want %q", got, input)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		code  string
	}{
		{"[[1+2", rerrors.CodeUnterminatedInlineRoll},
		{"[[1+2 is]]", rerrors.CodeUnexpectedToken},
		{"[[ ]]", rerrors.CodeUnexpectedToken},
		{"[[ (1+2 ]]", rerrors.CodeExpectedToken},
		{"/r 10+[[7+x]]", rerrors.CodeUnexpectedToken},
		{"/r 10+[[7+8", rerrors.CodeUnterminatedInlineRoll},
		{"[[?{Bonus", rerrors.CodeUnterminatedQuery},
		{"/r ?{Bonus|2", rerrors.CodeUnterminatedQuery},
		{"/r 2d", rerrors.CodeMalformedDiceTerm},
		{"/r 2dx", rerrors.CodeMalformedDiceTerm},
		{"[[ d ]]", rerrors.CodeMalformedDiceTerm},
		{"[[ 4 d ]]", rerrors.CodeMalformedDiceTerm},
		{"/r 4+[[2 d]]", rerrors.CodeMalformedDiceTerm},
		{"[[ #mele ]]", rerrors.CodeUnknownMacro},
		{"hit #nope", rerrors.CodeUnknownMacro},
		{"/r 1 + #nope", rerrors.CodeUnknownMacro},
	}

	macros := table{"melee": "[[15+4]]"}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := New(lexer.New(tt.input)).SetMacros(macros)
			p.ParseDocument()

			err := p.Err()
			if err == nil {
				t.Fatalf("expected error %s, got none", tt.code)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %s (%s), want %s", err.Code, err.Message, tt.code)
			}
			if len(p.Errors()) != 1 {
				t.Errorf("len(Errors()) = %d, want 1", len(p.Errors()))
			}
		})
	}
}

func TestUnknownMacroHint(t *testing.T) {
	p := New(lexer.New("[[ #mele ]]")).SetMacros(table{"melee": "[[15+4]]"})
	p.ParseDocument()

	err := p.Err()
	if !stderrors.Is(err, rerrors.ErrUnknownMacro) {
		t.Fatalf("err = %v, want unknown macro", err)
	}
	if len(err.Hints) != 1 || err.Hints[0] != "Did you mean `#melee`?" {
		t.Errorf("Hints = %v", err.Hints)
	}
}

func TestMacrosWithoutTable(t *testing.T) {
	doc := parseDocument(t, "[[ #anything + 1 ]]", nil)
	if got := doc.Rolls()[0].Roll.String(); got != "(#anything + 1)" {
		t.Errorf("roll = %q", got)
	}
}

func TestErrorPosition(t *testing.T) {
	p := New(lexer.New("[[1 + )]]"))
	p.ParseDocument()

	err := p.Err()
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Offset != 6 || err.Line != 1 || err.Column != 7 {
		t.Errorf("position = %d (%d:%d), want 6 (1:7)", err.Offset, err.Line, err.Column)
	}
	if err.Origin != rerrors.DefaultOrigin {
		t.Errorf("Origin = %q, want %q", err.Origin, rerrors.DefaultOrigin)
	}
}

func TestErrorOrigin(t *testing.T) {
	p := New(lexer.NewWithOrigin("1 +", "#broken"))
	p.ParseExpressionOnly()

	err := p.Err()
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Origin != "#broken" {
		t.Errorf("Origin = %q, want %q", err.Origin, "#broken")
	}
}

func TestProvenance(t *testing.T) {
	expr := NewWithProvenance(lexer.New("[[ 14 ]]"), ast.ProvenanceMacro).ParseExpressionOnly()
	roll, ok := expr.(*ast.InlineRoll)
	if !ok {
		t.Fatalf("expr = %T, want *ast.InlineRoll", expr)
	}
	if roll.Provenance != ast.ProvenanceMacro {
		t.Errorf("Provenance = %s, want macro", roll.Provenance)
	}

	doc := parseDocument(t, "[[ 1 + [[2]] ]]", nil)
	infix := doc.Rolls()[0].Roll.(*ast.InfixExpression)
	if inner := infix.Right.(*ast.InlineRoll); inner.Provenance != ast.ProvenanceLiteral {
		t.Errorf("Provenance = %s, want literal", inner.Provenance)
	}
}

func TestParseExpressionOnlyTrailing(t *testing.T) {
	tests := []string{"1 2", "3 is", "2 ]]", ""}

	for _, input := range tests {
		p := New(lexer.New(input))
		if expr := p.ParseExpressionOnly(); expr != nil {
			t.Errorf("ParseExpressionOnly(%q) = %s, want nil", input, expr)
		}
		if err := p.Err(); err == nil || err.Code != rerrors.CodeUnexpectedToken {
			t.Errorf("ParseExpressionOnly(%q) error = %v, want %s", input, err, rerrors.CodeUnexpectedToken)
		}
	}
}
