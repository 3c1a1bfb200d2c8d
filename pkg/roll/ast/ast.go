package ast

import (
	"bytes"
	"strconv"
	"unicode"

	"github.com/sambeau/roll/pkg/roll/lexer"
)

// Node represents any node in the AST
type Node interface {
	TokenLiteral() string
	String() string
}

// Expression represents nodes that produce a number
type Expression interface {
	Node
	expressionNode()
}

// Segment represents a top-level piece of a document
type Segment interface {
	Node
	segmentNode()
}

// Provenance records where an inline roll was written. It decides how the
// roll's value is bracketed when it appears inside another formula.
type Provenance int

const (
	ProvenanceLiteral Provenance = iota // written by the author: (v)
	ProvenanceMacro                     // came from a macro body: {v}
)

func (p Provenance) String() string {
	if p == ProvenanceMacro {
		return "macro"
	}
	return "literal"
}

// Document is the root node: literal text interleaved with roll occurrences
type Document struct {
	Segments []Segment
}

func (d *Document) TokenLiteral() string {
	if len(d.Segments) > 0 {
		return d.Segments[0].TokenLiteral()
	}
	return ""
}

func (d *Document) String() string {
	var out bytes.Buffer
	for _, s := range d.Segments {
		out.WriteString(s.String())
	}
	return out.String()
}

// Rolls returns the roll segments of the document in order.
func (d *Document) Rolls() []*RollSegment {
	var rolls []*RollSegment
	for _, s := range d.Segments {
		if r, ok := s.(*RollSegment); ok {
			rolls = append(rolls, r)
		}
	}
	return rolls
}

// TextSegment is literal text copied to the output unchanged
type TextSegment struct {
	Token lexer.Token
	Value string
}

func (ts *TextSegment) segmentNode()         {}
func (ts *TextSegment) TokenLiteral() string { return ts.Token.Literal }
func (ts *TextSegment) String() string       { return ts.Value }

// RollSegment is a top-level roll: [[expr]] or /r expr
type RollSegment struct {
	Token      lexer.Token // the [[ or /r token
	Roll       Expression
	Command    bool // written as /r or /roll
	Terminated bool // a /r expression closed with a backslash
}

func (rs *RollSegment) segmentNode()         {}
func (rs *RollSegment) TokenLiteral() string { return rs.Token.Literal }
func (rs *RollSegment) String() string {
	var out bytes.Buffer
	if rs.Command {
		out.WriteString(rs.Token.Literal + " ")
		out.WriteString(rs.Roll.String())
		if rs.Terminated {
			out.WriteString("\\")
		}
		return out.String()
	}
	out.WriteString("[[")
	out.WriteString(rs.Roll.String())
	out.WriteString("]]")
	return out.String()
}

// MacroSegment is a macro reference in free text. Its body is expanded
// as a nested document.
type MacroSegment struct {
	Token lexer.Token
	Name  string
}

func (ms *MacroSegment) segmentNode()         {}
func (ms *MacroSegment) TokenLiteral() string { return ms.Token.Literal }
func (ms *MacroSegment) String() string       { return macroString(ms.Name) }

// NumberLiteral represents a numeric literal
type NumberLiteral struct {
	Token lexer.Token
	Value float64
}

func (nl *NumberLiteral) expressionNode()      {}
func (nl *NumberLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NumberLiteral) String() string {
	if nl.Token.Literal != "" {
		return nl.Token.Literal
	}
	return strconv.FormatFloat(nl.Value, 'f', -1, 64)
}

// PrefixExpression represents unary minus
type PrefixExpression struct {
	Token    lexer.Token
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) String() string {
	var out bytes.Buffer
	out.WriteString("(")
	out.WriteString(pe.Operator)
	out.WriteString(pe.Right.String())
	out.WriteString(")")
	return out.String()
}

// InfixExpression represents a binary operation: + - * / ^
type InfixExpression struct {
	Token    lexer.Token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) String() string {
	var out bytes.Buffer
	out.WriteString("(")
	out.WriteString(ie.Left.String())
	out.WriteString(" " + ie.Operator + " ")
	out.WriteString(ie.Right.String())
	out.WriteString(")")
	return out.String()
}

// GroupedExpression keeps parentheses the author wrote
type GroupedExpression struct {
	Token lexer.Token // the ( token
	Inner Expression
}

func (ge *GroupedExpression) expressionNode()      {}
func (ge *GroupedExpression) TokenLiteral() string { return ge.Token.Literal }
func (ge *GroupedExpression) String() string       { return "(" + ge.Inner.String() + ")" }

// FunctionCall represents floor(x), ceil(x), round(x) and abs(x)
type FunctionCall struct {
	Token    lexer.Token
	Function string // lower-cased name
	Argument Expression
}

func (fc *FunctionCall) expressionNode()      {}
func (fc *FunctionCall) TokenLiteral() string { return fc.Token.Literal }
func (fc *FunctionCall) String() string {
	return fc.Function + "(" + fc.Argument.String() + ")"
}

// DiceExpression represents NdX. Count is nil for an implicit count of 1.
type DiceExpression struct {
	Token lexer.Token // the d token
	Count Expression
	Sides Expression
}

func (de *DiceExpression) expressionNode()      {}
func (de *DiceExpression) TokenLiteral() string { return de.Token.Literal }
func (de *DiceExpression) String() string {
	var out bytes.Buffer
	out.WriteString("(")
	if de.Count != nil {
		out.WriteString(de.Count.String())
	}
	out.WriteString("d")
	out.WriteString(de.Sides.String())
	out.WriteString(")")
	return out.String()
}

// InlineRoll represents [[expr]] nested inside an expression
type InlineRoll struct {
	Token      lexer.Token
	Inner      Expression
	Provenance Provenance
}

func (ir *InlineRoll) expressionNode()      {}
func (ir *InlineRoll) TokenLiteral() string { return ir.Token.Literal }
func (ir *InlineRoll) String() string {
	if ir.Provenance == ProvenanceMacro {
		return "{[[" + ir.Inner.String() + "]]}"
	}
	return "[[" + ir.Inner.String() + "]]"
}

// QueryExpression represents ?{prompt|default}
type QueryExpression struct {
	Token   lexer.Token
	Prompt  string // trimmed
	Default string // trimmed; empty when absent
	Key     string // cache key for the answer
}

func (qe *QueryExpression) expressionNode()      {}
func (qe *QueryExpression) TokenLiteral() string { return qe.Token.Literal }
func (qe *QueryExpression) String() string {
	if qe.Default == "" {
		return "?{" + qe.Prompt + "}"
	}
	return "?{" + qe.Prompt + "|" + qe.Default + "}"
}

// MacroReference represents #name inside an expression
type MacroReference struct {
	Token lexer.Token
	Name  string
}

func (mr *MacroReference) expressionNode()      {}
func (mr *MacroReference) TokenLiteral() string { return mr.Token.Literal }
func (mr *MacroReference) String() string       { return macroString(mr.Name) }

// LabelExpression attaches a display label to a term: 3[STR]
type LabelExpression struct {
	Token lexer.Token
	Inner Expression
	Label string
}

func (le *LabelExpression) expressionNode()      {}
func (le *LabelExpression) TokenLiteral() string { return le.Token.Literal }
func (le *LabelExpression) String() string {
	return le.Inner.String() + "[" + le.Label + "]"
}

// IsInfix reports whether e is a binary operation at the top level.
// Substituted macro bodies and query answers are wrapped in parentheses
// when it returns true.
func IsInfix(e Expression) bool {
	_, ok := e.(*InfixExpression)
	return ok
}

func macroString(name string) string {
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && '0' <= r && r <= '9') {
			continue
		}
		return "#{" + name + "}"
	}
	if name == "" {
		return "#{}"
	}
	return "#" + name
}
