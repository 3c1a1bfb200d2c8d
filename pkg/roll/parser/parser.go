package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sambeau/roll/pkg/roll/ast"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/lexer"
)

// Precedence levels for operators
const (
	_ int = iota
	LOWEST
	SUM     // + -
	PRODUCT // * /
	PREFIX  // -X
	POWER   // ^
	LABEL   // 3[STR]
	DICE    // 2d6
)

// precedences maps tokens to their precedence
var precedences = map[lexer.TokenType]int{
	lexer.PLUS:     SUM,
	lexer.MINUS:    SUM,
	lexer.ASTERISK: PRODUCT,
	lexer.SLASH:    PRODUCT,
	lexer.CARET:    POWER,
	lexer.LABEL:    LABEL,
	lexer.DICE:     DICE,
}

// MacroLookup is consulted while parsing so that references to undefined
// macros are reported as syntax errors.
type MacroLookup interface {
	Lookup(name string) (string, bool)
	Names() []string
}

// Parser represents the parser
type Parser struct {
	l *lexer.Lexer

	provenance ast.Provenance
	macros     MacroLookup

	structuredErrors []*rerrors.RollError
	softError        bool // the recorded error may be backtracked over

	prevToken lexer.Token
	curToken  lexer.Token
	peekToken lexer.Token

	// lexer state just after curToken and peekToken
	curEnd  lexer.LexerState
	peekEnd lexer.LexerState

	lenient     bool // parsing a /r expression
	halted      bool // a /r expression stopped at its longest valid prefix
	inlineDepth int  // nesting inside [[ ]]

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

// snapshot is the parser state needed to undo a failed operator.
type snapshot struct {
	prev, cur, peek lexer.Token
	curEnd, peekEnd lexer.LexerState
}

// New creates a new parser instance
func New(l *lexer.Lexer) *Parser {
	return NewWithProvenance(l, ast.ProvenanceLiteral)
}

// NewWithProvenance creates a parser whose inline rolls are tagged with the
// given provenance. Macro bodies are parsed with ast.ProvenanceMacro.
func NewWithProvenance(l *lexer.Lexer, provenance ast.Provenance) *Parser {
	p := &Parser{
		l:          l,
		provenance: provenance,
	}

	p.prefixParseFns = make(map[lexer.TokenType]prefixParseFn)
	p.registerPrefix(lexer.NUMBER, p.parseNumberLiteral)
	p.registerPrefix(lexer.MINUS, p.parsePrefixExpression)
	p.registerPrefix(lexer.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(lexer.FUNCTION, p.parseFunctionCall)
	p.registerPrefix(lexer.DICE, p.parseImplicitDice)
	p.registerPrefix(lexer.MACRO, p.parseMacroReference)
	p.registerPrefix(lexer.QUERY_OPEN, p.parseQueryExpression)
	p.registerPrefix(lexer.INLINE_OPEN, p.parseInlineRoll)

	p.infixParseFns = make(map[lexer.TokenType]infixParseFn)
	p.registerInfix(lexer.PLUS, p.parseInfixExpression)
	p.registerInfix(lexer.MINUS, p.parseInfixExpression)
	p.registerInfix(lexer.ASTERISK, p.parseInfixExpression)
	p.registerInfix(lexer.SLASH, p.parseInfixExpression)
	p.registerInfix(lexer.CARET, p.parsePowerExpression)
	p.registerInfix(lexer.DICE, p.parseDiceExpression)
	p.registerInfix(lexer.LABEL, p.parseLabelExpression)

	return p
}

// SetMacros makes the parser reject macro names that m does not define.
// Without a table every macro reference is accepted.
func (p *Parser) SetMacros(m MacroLookup) *Parser {
	p.macros = m
	return p
}

// Errors returns parser errors as strings (convenience method for tests).
// Prefer StructuredErrors() for production code.
func (p *Parser) Errors() []string {
	result := make([]string, len(p.structuredErrors))
	for i, err := range p.structuredErrors {
		result[i] = err.String()
	}
	return result
}

// StructuredErrors returns parser errors as structured RollError objects.
func (p *Parser) StructuredErrors() []*rerrors.RollError {
	return p.structuredErrors
}

// Err returns the first parse error, or nil.
func (p *Parser) Err() *rerrors.RollError {
	if len(p.structuredErrors) == 0 {
		return nil
	}
	return p.structuredErrors[0]
}

func (p *Parser) failed() bool {
	return len(p.structuredErrors) > 0
}

// addError records a catalog error at tok.
// Only the first error is recorded - subsequent errors are usually cascading noise.
func (p *Parser) addError(code string, tok lexer.Token, data map[string]any) {
	if p.failed() {
		return
	}
	p.record(rerrors.NewWithPosition(code, tok.Offset, tok.Line, tok.Column, data), code)
}

func (p *Parser) record(err *rerrors.RollError, code string) {
	err.Origin = p.l.Origin()
	p.structuredErrors = append(p.structuredErrors, err)
	p.softError = p.inlineDepth == 0 &&
		(code == rerrors.CodeUnexpectedToken || code == rerrors.CodeExpectedToken)
}

// registerPrefix registers a prefix parse function
func (p *Parser) registerPrefix(tokenType lexer.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

// registerInfix registers an infix parse function
func (p *Parser) registerInfix(tokenType lexer.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

// nextToken advances prevToken, curToken, and peekToken
func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.curEnd = p.peekEnd
	p.peekToken = p.l.NextToken()
	p.peekEnd = p.l.SaveState()
}

// enterExpression makes tok the current token and reads the first token
// after it in expression mode.
func (p *Parser) enterExpression(tok lexer.Token) {
	p.prevToken = lexer.Token{}
	p.curToken = tok
	p.curEnd = p.l.SaveState()
	p.peekToken = p.l.NextToken()
	p.peekEnd = p.l.SaveState()
}

// leaveExpression rewinds the lexer to just after the current token so
// scanning can carry on in text mode.
func (p *Parser) leaveExpression() {
	p.l.RestoreState(p.curEnd)
}

func (p *Parser) save() snapshot {
	return snapshot{
		prev:    p.prevToken,
		cur:     p.curToken,
		peek:    p.peekToken,
		curEnd:  p.curEnd,
		peekEnd: p.peekEnd,
	}
}

func (p *Parser) restore(s snapshot) {
	p.prevToken = s.prev
	p.curToken = s.cur
	p.peekToken = s.peek
	p.curEnd = s.curEnd
	p.peekEnd = s.peekEnd
	p.l.RestoreState(s.peekEnd)
	p.structuredErrors = nil
	p.softError = false
}

// ParseDocument parses free text with embedded rolls and macro references.
func (p *Parser) ParseDocument() *ast.Document {
	doc := &ast.Document{}

	for !p.failed() {
		tok := p.l.NextTextToken()

		switch tok.Type {
		case lexer.EOF:
			return doc
		case lexer.TEXT:
			doc.Segments = append(doc.Segments, &ast.TextSegment{Token: tok, Value: tok.Literal})
		case lexer.MACRO:
			if p.checkMacro(tok) {
				doc.Segments = append(doc.Segments, &ast.MacroSegment{Token: tok, Name: tok.Literal})
			}
		case lexer.INLINE_OPEN:
			if seg := p.parseInlineSegment(tok); seg != nil {
				doc.Segments = append(doc.Segments, seg)
			}
		case lexer.COMMAND:
			if seg := p.parseCommand(tok); seg != nil {
				doc.Segments = append(doc.Segments, seg)
			}
		}
	}

	return doc
}

// ParseExpressionOnly parses input that must be a single roll expression,
// such as a macro body used inside an expression or a query answer.
func (p *Parser) ParseExpressionOnly() ast.Expression {
	first := p.l.NextToken()
	p.enterExpression(first)

	expr := p.parseExpression(LOWEST)
	if p.failed() {
		return nil
	}

	if !p.peekTokenIs(lexer.EOF) {
		p.addError(rerrors.CodeUnexpectedToken, p.peekToken, map[string]any{"Token": tokenText(p.peekToken)})
		return nil
	}

	return expr
}

// parseInlineSegment parses a top-level [[ expr ]]. tok is the [[ token
// returned in text mode.
func (p *Parser) parseInlineSegment(tok lexer.Token) *ast.RollSegment {
	p.enterExpression(tok)
	roll := p.parseInlineRoll()
	if p.failed() {
		return nil
	}
	p.leaveExpression()

	inline := roll.(*ast.InlineRoll)
	return &ast.RollSegment{Token: tok, Roll: inline.Inner}
}

// parseCommand parses the longest expression that follows /r. When no
// expression can be parsed at all, the command is kept as literal text.
func (p *Parser) parseCommand(tok lexer.Token) ast.Segment {
	literal := &ast.TextSegment{Token: tok, Value: tok.Literal}
	start := p.l.SaveState()

	p.enterExpression(tok)
	p.lenient = true
	p.halted = false
	defer func() {
		p.lenient = false
		p.halted = false
	}()

	p.nextToken()
	expr := p.parseExpression(LOWEST)

	if p.failed() {
		if !p.softError {
			return nil
		}
		p.structuredErrors = nil
		p.softError = false
		p.l.RestoreState(start)
		return literal
	}

	seg := &ast.RollSegment{Token: tok, Roll: expr, Command: true}
	if p.peekTokenIs(lexer.TERMINATOR) {
		p.nextToken()
		seg.Terminated = true
	}
	p.leaveExpression()

	return seg
}

// checkMacro reports an unknown macro when a table is available.
func (p *Parser) checkMacro(tok lexer.Token) bool {
	if p.macros == nil {
		return true
	}
	if _, ok := p.macros.Lookup(tok.Literal); ok {
		return true
	}
	if p.failed() {
		return false
	}
	err := rerrors.NewUnknownMacro(tok.Literal, p.macros.Names()).WithPosition(tok.Offset, tok.Line, tok.Column)
	p.record(err, rerrors.CodeUnknownMacro)
	return false
}

// parseExpression parses expressions using Pratt parsing.
//
// In a /r expression every operator is tried speculatively: if its
// right-hand side fails with a recoverable error the parser rewinds to the
// operator and the expression ends there.
func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken)
		return nil
	}

	leftExp := prefix()
	if p.failed() {
		return nil
	}

	for !p.halted && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}

		snap := p.save()
		p.nextToken()

		next := infix(leftExp)
		if p.failed() {
			if p.lenient && p.softError {
				p.restore(snap)
				p.halted = true
				return leftExp
			}
			return nil
		}
		leftExp = next
	}

	return leftExp
}

func (p *Parser) parseNumberLiteral() ast.Expression {
	lit := &ast.NumberLiteral{Token: p.curToken}

	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.addError(rerrors.CodeUnexpectedToken, p.curToken, map[string]any{"Token": p.curToken.Literal})
		return nil
	}

	lit.Value = value
	return lit
}

func (p *Parser) parsePrefixExpression() ast.Expression {
	expression := &ast.PrefixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
	}

	p.nextToken()

	expression.Right = p.parseExpression(PREFIX)
	if expression.Right == nil {
		return nil
	}

	return expression
}

func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	expression := &ast.InfixExpression{
		Token:    p.curToken,
		Left:     left,
		Operator: p.curToken.Literal,
	}

	precedence := p.curPrecedence()
	p.nextToken()
	expression.Right = p.parseExpression(precedence)
	if expression.Right == nil {
		return nil
	}

	return expression
}

// parsePowerExpression parses ^, which is right-associative and accepts a
// negated exponent: 2^3^2 is 2^(3^2), 2^-1 is 2^(-1).
func (p *Parser) parsePowerExpression(left ast.Expression) ast.Expression {
	expression := &ast.InfixExpression{
		Token:    p.curToken,
		Left:     left,
		Operator: p.curToken.Literal,
	}

	p.nextToken()
	expression.Right = p.parseExpression(POWER - 1)
	if expression.Right == nil {
		return nil
	}

	return expression
}

func (p *Parser) parseGroupedExpression() ast.Expression {
	group := &ast.GroupedExpression{Token: p.curToken}
	p.nextToken()

	group.Inner = p.parseExpression(LOWEST)
	if group.Inner == nil {
		return nil
	}

	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}

	return group
}

func (p *Parser) parseFunctionCall() ast.Expression {
	call := &ast.FunctionCall{
		Token:    p.curToken,
		Function: strings.ToLower(p.curToken.Literal),
	}

	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	p.nextToken()

	call.Argument = p.parseExpression(LOWEST)
	if call.Argument == nil {
		return nil
	}

	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}

	return call
}

// parseImplicitDice parses d20 as one twenty-sided die.
func (p *Parser) parseImplicitDice() ast.Expression {
	dice := &ast.DiceExpression{Token: p.curToken}
	dice.Sides = p.parseDiceSides()
	if dice.Sides == nil {
		return nil
	}
	return dice
}

func (p *Parser) parseDiceExpression(left ast.Expression) ast.Expression {
	dice := &ast.DiceExpression{Token: p.curToken, Count: left}
	dice.Sides = p.parseDiceSides()
	if dice.Sides == nil {
		return nil
	}
	return dice
}

// parseDiceSides parses the operand after d. Anything that cannot start an
// operand makes the dice term malformed. In a /r expression a d standing on
// its own ends the expression instead, so "/r 4 d" leaves " d" as text.
func (p *Parser) parseDiceSides() ast.Expression {
	switch p.peekToken.Type {
	case lexer.NUMBER, lexer.LPAREN, lexer.FUNCTION, lexer.MACRO, lexer.QUERY_OPEN, lexer.INLINE_OPEN:
	default:
		if p.lenient && p.inlineDepth == 0 && !p.diceAttached() {
			p.addError(rerrors.CodeUnexpectedToken, p.curToken, map[string]any{"Token": tokenText(p.curToken)})
			return nil
		}
		p.addError(rerrors.CodeMalformedDiceTerm, p.peekToken, map[string]any{"Got": tokenText(p.peekToken)})
		return nil
	}

	p.nextToken()
	return p.parseExpression(DICE)
}

// diceAttached reports whether the current d follows an operand with
// nothing in between, as in 2d or (1+1)d.
func (p *Parser) diceAttached() bool {
	off := p.curToken.Offset
	input := p.l.Input()
	if off <= 0 || off > len(input) {
		return false
	}
	switch c := input[off-1]; {
	case '0' <= c && c <= '9', c == ')', c == ']', c == '}':
		return true
	}
	return false
}

func (p *Parser) parseLabelExpression(left ast.Expression) ast.Expression {
	return &ast.LabelExpression{
		Token: p.curToken,
		Inner: left,
		Label: p.curToken.Literal,
	}
}

func (p *Parser) parseMacroReference() ast.Expression {
	if !p.checkMacro(p.curToken) {
		return nil
	}
	return &ast.MacroReference{Token: p.curToken, Name: p.curToken.Literal}
}

// parseQueryExpression parses ?{prompt|default}. The lexer hands back the
// prompt and default as raw text.
func (p *Parser) parseQueryExpression() ast.Expression {
	query := &ast.QueryExpression{Token: p.curToken}

	if p.peekTokenIs(lexer.TEXT) {
		p.nextToken()
		query.Prompt = strings.TrimSpace(p.curToken.Literal)
	}

	if p.peekTokenIs(lexer.PIPE) {
		p.nextToken()
		if p.peekTokenIs(lexer.TEXT) {
			p.nextToken()
			query.Default = strings.TrimSpace(p.curToken.Literal)
		}
	}

	if !p.peekTokenIs(lexer.QUERY_CLOSE) {
		if p.peekTokenIs(lexer.EOF) {
			p.addError(rerrors.CodeUnterminatedQuery, query.Token, map[string]any{})
		} else {
			p.peekError(lexer.QUERY_CLOSE)
		}
		return nil
	}
	p.nextToken()

	query.Key = query.Prompt
	return query
}

// parseInlineRoll parses [[ expr ]]. Errors inside the brackets are never
// recoverable, so a /r expression containing a broken inline roll fails.
func (p *Parser) parseInlineRoll() ast.Expression {
	p.inlineDepth++
	defer func() { p.inlineDepth-- }()

	roll := &ast.InlineRoll{Token: p.curToken, Provenance: p.provenance}

	p.nextToken()
	roll.Inner = p.parseExpression(LOWEST)
	if roll.Inner == nil {
		return nil
	}

	if !p.peekTokenIs(lexer.INLINE_CLOSE) {
		if p.peekTokenIs(lexer.EOF) {
			p.addError(rerrors.CodeUnterminatedInlineRoll, roll.Token, map[string]any{"Sample": sample(roll.Inner)})
		} else {
			p.addError(rerrors.CodeUnexpectedToken, p.peekToken, map[string]any{"Token": tokenText(p.peekToken)})
		}
		return nil
	}
	p.nextToken()

	return roll
}

// Helper functions
func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t lexer.TokenType) {
	p.addError(rerrors.CodeExpectedToken, p.peekToken, map[string]any{
		"Expected": tokenTypeToReadableName(t),
		"Got":      tokenText(p.peekToken),
	})
}

func (p *Parser) noPrefixParseFnError(tok lexer.Token) {
	p.addError(rerrors.CodeUnexpectedToken, tok, map[string]any{"Token": tokenText(tok)})
}

func (p *Parser) peekPrecedence() int {
	if p, ok := precedences[p.peekToken.Type]; ok {
		return p
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if p, ok := precedences[p.curToken.Type]; ok {
		return p
	}
	return LOWEST
}

// tokenText describes a token for an error message.
func tokenText(tok lexer.Token) string {
	if tok.Type == lexer.EOF {
		return "end of input"
	}
	if tok.Literal == "" {
		return tokenTypeToReadableName(tok.Type)
	}
	return tok.Literal
}

func tokenTypeToReadableName(t lexer.TokenType) string {
	switch t {
	case lexer.RPAREN:
		return "')'"
	case lexer.LPAREN:
		return "'('"
	case lexer.INLINE_CLOSE:
		return "']]'"
	case lexer.QUERY_CLOSE:
		return "'}'"
	case lexer.PIPE:
		return "'|'"
	case lexer.NUMBER:
		return "a number"
	case lexer.EOF:
		return "end of input"
	default:
		return strings.ToLower(t.String())
	}
}

// sample trims an expression for use in a hint.
func sample(e ast.Expression) string {
	r := []rune(e.String())
	if len(r) > 24 {
		return fmt.Sprintf("%s...", string(r[:21]))
	}
	return string(r)
}
