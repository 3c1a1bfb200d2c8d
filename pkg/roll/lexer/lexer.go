package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents different types of tokens
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Document text
	TEXT    // literal text between rolls, or raw query text
	COMMAND // /r or /roll

	// Literals
	NUMBER // 20, 2.5
	IDENT  // any letter run that is not a function or dice marker
	LABEL  // [STR]
	MACRO  // #name or #{name with spaces}

	// Operators
	PLUS     // +
	MINUS    // -
	ASTERISK // *
	SLASH    // /
	CARET    // ^
	DICE     // d

	// Delimiters
	LPAREN       // (
	RPAREN       // )
	INLINE_OPEN  // [[
	INLINE_CLOSE // ]]
	TERMINATOR   // \
	QUERY_OPEN   // ?{
	PIPE         // |
	QUERY_CLOSE  // }

	// Keywords
	FUNCTION // floor, ceil, round, abs
)

// Token represents a single token
type Token struct {
	Type    TokenType
	Literal string
	Offset  int // byte offset of the first character
	Line    int
	Column  int
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{Type: %s, Literal: %s, Line: %d, Column: %d}",
		t.Type.String(), t.Literal, t.Line, t.Column)
}

func (tt TokenType) String() string {
	switch tt {
	case ILLEGAL:
		return "ILLEGAL"
	case EOF:
		return "EOF"
	case TEXT:
		return "TEXT"
	case COMMAND:
		return "COMMAND"
	case NUMBER:
		return "NUMBER"
	case IDENT:
		return "IDENT"
	case LABEL:
		return "LABEL"
	case MACRO:
		return "MACRO"
	case PLUS:
		return "PLUS"
	case MINUS:
		return "MINUS"
	case ASTERISK:
		return "ASTERISK"
	case SLASH:
		return "SLASH"
	case CARET:
		return "CARET"
	case DICE:
		return "DICE"
	case LPAREN:
		return "LPAREN"
	case RPAREN:
		return "RPAREN"
	case INLINE_OPEN:
		return "INLINE_OPEN"
	case INLINE_CLOSE:
		return "INLINE_CLOSE"
	case TERMINATOR:
		return "TERMINATOR"
	case QUERY_OPEN:
		return "QUERY_OPEN"
	case PIPE:
		return "PIPE"
	case QUERY_CLOSE:
		return "QUERY_CLOSE"
	case FUNCTION:
		return "FUNCTION"
	default:
		return "UNKNOWN"
	}
}

// functions maps function names to their canonical spelling
var functions = map[string]string{
	"floor": "floor",
	"ceil":  "ceil",
	"round": "round",
	"abs":   "abs",
}

// lookupWord classifies a run of letters in expression mode.
func lookupWord(word string) TokenType {
	if word == "d" || word == "D" {
		return DICE
	}
	if _, ok := functions[strings.ToLower(word)]; ok {
		return FUNCTION
	}
	return IDENT
}

// FunctionNames returns the built-in function names.
func FunctionNames() []string {
	return []string{"abs", "ceil", "floor", "round"}
}

// Lexer represents the lexical analyzer.
//
// It has two entry points: NextTextToken scans document text and stops at
// roll markers, NextToken scans roll expressions. The parser decides which
// one to call and uses SaveState/RestoreState to hand the cursor back and
// forth between the two.
type Lexer struct {
	origin       string
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination (first byte)
	chRune       rune // current character as a rune
	chSize       int  // byte size of current character
	line         int
	column       int
	inQuery      bool // between ?{ and }
	queryPiped   bool // the query's | has been seen
}

// New creates a new lexer instance
func New(input string) *Lexer {
	return NewWithOrigin(input, "<input>")
}

// NewWithOrigin creates a lexer whose tokens belong to a named source,
// such as a macro body.
func NewWithOrigin(input string, origin string) *Lexer {
	l := &Lexer{
		origin: origin,
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// Origin returns the name of the source being scanned.
func (l *Lexer) Origin() string {
	return l.origin
}

// Input returns the full source text.
func (l *Lexer) Input() string {
	return l.input
}

// Offset returns the byte offset of the current character.
func (l *Lexer) Offset() int {
	return l.position
}

// LexerState holds the state of a lexer for save/restore
type LexerState struct {
	position     int
	readPosition int
	ch           byte
	chRune       rune
	chSize       int
	line         int
	column       int
	inQuery      bool
	queryPiped   bool
}

// Offset returns the byte offset the state points at.
func (s LexerState) Offset() int {
	return s.position
}

// SaveState saves the current lexer state for potential restoration
func (l *Lexer) SaveState() LexerState {
	return LexerState{
		position:     l.position,
		readPosition: l.readPosition,
		ch:           l.ch,
		chRune:       l.chRune,
		chSize:       l.chSize,
		line:         l.line,
		column:       l.column,
		inQuery:      l.inQuery,
		queryPiped:   l.queryPiped,
	}
}

// RestoreState restores the lexer to a previously saved state
func (l *Lexer) RestoreState(state LexerState) {
	l.position = state.position
	l.readPosition = state.readPosition
	l.ch = state.ch
	l.chRune = state.chRune
	l.chSize = state.chSize
	l.line = state.line
	l.column = state.column
	l.inQuery = state.inQuery
	l.queryPiped = state.queryPiped
}

// readChar reads the next character and advances position.
// ASCII takes a fast path; anything else is decoded as a full UTF-8 rune.
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.chRune = 0
		l.chSize = 0
		l.position = l.readPosition
		return
	}

	b := l.input[l.readPosition]

	if b < utf8.RuneSelf {
		l.ch = b
		l.chRune = rune(b)
		l.chSize = 1
		l.position = l.readPosition
		l.readPosition++
		if l.ch == '\n' {
			l.line++
			l.column = 0
		} else {
			l.column++
		}
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = b
	l.chRune = r
	l.chSize = size
	l.position = l.readPosition
	l.readPosition += size
	l.column++
}

// peekChar returns the next byte without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// peekRune returns the next character as a rune without advancing position.
func (l *Lexer) peekRune() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.position >= len(l.input)
}

// startToken records where a token begins.
func (l *Lexer) startToken() (int, int, int) {
	return l.position, l.line, l.column
}

// NextTextToken scans document text. It returns TEXT for a literal run,
// INLINE_OPEN, COMMAND or MACRO for a roll marker, and EOF at the end.
func (l *Lexer) NextTextToken() Token {
	offset, line, col := l.startToken()

	if l.atEOF() {
		return Token{Type: EOF, Offset: offset, Line: line, Column: col}
	}

	switch {
	case l.ch == '[' && l.peekChar() == '[':
		l.readChar()
		l.readChar()
		return Token{Type: INLINE_OPEN, Literal: "[[", Offset: offset, Line: line, Column: col}
	case l.commandLength() > 0:
		n := l.commandLength()
		for range n {
			l.readChar()
		}
		return Token{Type: COMMAND, Literal: l.input[offset:l.position], Offset: offset, Line: line, Column: col}
	case l.macroAhead():
		name, _ := l.readMacro()
		return Token{Type: MACRO, Literal: name, Offset: offset, Line: line, Column: col}
	}

	for !l.atEOF() {
		l.readChar()
		if l.ch == '[' && l.peekChar() == '[' || l.commandLength() > 0 || l.macroAhead() {
			break
		}
	}

	return Token{Type: TEXT, Literal: l.input[offset:l.position], Offset: offset, Line: line, Column: col}
}

// commandLength returns the byte length of a /r or /roll marker at the
// current position, or 0. The marker must start the input or follow
// whitespace, and must be followed by whitespace or the end of input.
func (l *Lexer) commandLength() int {
	if l.ch != '/' {
		return 0
	}
	if l.position > 0 && !isWhitespace(l.input[l.position-1]) {
		return 0
	}
	rest := l.input[l.position:]
	for _, marker := range []string{"/roll", "/r"} {
		if !strings.HasPrefix(rest, marker) {
			continue
		}
		if len(rest) == len(marker) || isWhitespace(rest[len(marker)]) {
			return len(marker)
		}
	}
	return 0
}

// macroAhead reports whether a well-formed macro reference starts here.
func (l *Lexer) macroAhead() bool {
	if l.ch != '#' {
		return false
	}
	next := l.peekRune()
	if next == '{' {
		end := strings.IndexByte(l.input[l.readPosition:], '}')
		return end > 1
	}
	return isLetterRune(next)
}

// readMacro consumes #name or #{name} and returns the name. The current
// character must be '#'.
func (l *Lexer) readMacro() (string, bool) {
	l.readChar() // consume '#'

	if l.ch == '{' {
		l.readChar()
		start := l.position
		for !l.atEOF() && l.ch != '}' {
			l.readChar()
		}
		if l.atEOF() {
			return l.input[start:l.position], false
		}
		name := l.input[start:l.position]
		l.readChar() // consume '}'
		return name, name != ""
	}

	if !isLetterRune(l.chRune) {
		return "", false
	}
	start := l.position
	for isLetterRune(l.chRune) || isDigit(l.ch) {
		l.readChar()
	}
	name := l.input[start:l.position]
	return name, name != ""
}

// NextToken scans the next token of a roll expression.
func (l *Lexer) NextToken() Token {
	if l.inQuery {
		return l.nextQueryToken()
	}

	l.skipWhitespace()
	offset, line, col := l.startToken()

	if l.atEOF() {
		return Token{Type: EOF, Offset: offset, Line: line, Column: col}
	}

	single := func(tt TokenType) Token {
		tok := Token{Type: tt, Literal: string(l.ch), Offset: offset, Line: line, Column: col}
		l.readChar()
		return tok
	}

	switch l.ch {
	case '+':
		return single(PLUS)
	case '-':
		return single(MINUS)
	case '*':
		return single(ASTERISK)
	case '/':
		return single(SLASH)
	case '^':
		return single(CARET)
	case '(':
		return single(LPAREN)
	case ')':
		return single(RPAREN)
	case '\\':
		return single(TERMINATOR)
	case '[':
		if l.peekChar() == '[' {
			l.readChar()
			l.readChar()
			return Token{Type: INLINE_OPEN, Literal: "[[", Offset: offset, Line: line, Column: col}
		}
		if label, ok := l.readLabel(); ok {
			return Token{Type: LABEL, Literal: label, Offset: offset, Line: line, Column: col}
		}
		return Token{Type: ILLEGAL, Literal: l.input[offset:l.position], Offset: offset, Line: line, Column: col}
	case ']':
		if l.peekChar() == ']' {
			l.readChar()
			l.readChar()
			return Token{Type: INLINE_CLOSE, Literal: "]]", Offset: offset, Line: line, Column: col}
		}
		return single(ILLEGAL)
	case '?':
		if l.peekChar() == '{' {
			l.readChar()
			l.readChar()
			l.inQuery = true
			l.queryPiped = false
			return Token{Type: QUERY_OPEN, Literal: "?{", Offset: offset, Line: line, Column: col}
		}
		return single(ILLEGAL)
	case '#':
		if name, ok := l.readMacro(); ok {
			return Token{Type: MACRO, Literal: name, Offset: offset, Line: line, Column: col}
		}
		return Token{Type: ILLEGAL, Literal: l.input[offset:l.position], Offset: offset, Line: line, Column: col}
	}

	if isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())) {
		return Token{Type: NUMBER, Literal: l.readNumber(), Offset: offset, Line: line, Column: col}
	}

	// a d written straight after an operand is always the dice operator,
	// so 2dx is a broken dice term rather than 2 followed by a word
	if (l.ch == 'd' || l.ch == 'D') && l.position > 0 && isOperandEnd(l.input[l.position-1]) {
		return single(DICE)
	}

	if isLetterRune(l.chRune) && l.ch != '_' {
		word := l.readWord()
		return Token{Type: lookupWord(word), Literal: word, Offset: offset, Line: line, Column: col}
	}

	tok := Token{Type: ILLEGAL, Literal: l.input[offset : offset+max(l.chSize, 1)], Offset: offset, Line: line, Column: col}
	l.readChar()
	return tok
}

// nextQueryToken scans inside ?{...}: raw prompt text, the | delimiter,
// raw default text and the closing brace.
func (l *Lexer) nextQueryToken() Token {
	offset, line, col := l.startToken()

	if l.atEOF() {
		l.inQuery = false
		return Token{Type: EOF, Offset: offset, Line: line, Column: col}
	}

	switch {
	case l.ch == '}':
		l.readChar()
		l.inQuery = false
		return Token{Type: QUERY_CLOSE, Literal: "}", Offset: offset, Line: line, Column: col}
	case l.ch == '|' && !l.queryPiped:
		l.readChar()
		l.queryPiped = true
		return Token{Type: PIPE, Literal: "|", Offset: offset, Line: line, Column: col}
	}

	for !l.atEOF() && l.ch != '}' && (l.ch != '|' || l.queryPiped) {
		l.readChar()
	}
	return Token{Type: TEXT, Literal: l.input[offset:l.position], Offset: offset, Line: line, Column: col}
}

// readNumber reads digits with an optional fractional part
func (l *Lexer) readNumber() string {
	position := l.position
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[position:l.position]
}

// readWord reads a run of letters. Digits end the word so that 2d6 splits
// into 2, d and 6.
func (l *Lexer) readWord() string {
	position := l.position
	for isLetterRune(l.chRune) && l.ch != '_' {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readLabel reads [text] on a single line. The current character is '['.
func (l *Lexer) readLabel() (string, bool) {
	rest := l.input[l.readPosition:]
	end := strings.IndexAny(rest, "]\n")
	if end < 0 || rest[end] != ']' {
		l.readChar()
		return "", false
	}
	label := rest[:end]
	for range utf8.RuneCountInString(label) + 2 {
		l.readChar()
	}
	return label, true
}

func (l *Lexer) skipWhitespace() {
	for isWhitespace(l.ch) {
		l.readChar()
	}
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// isLetterRune reports whether r may appear in a macro name or word.
func isLetterRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isOperandEnd(ch byte) bool {
	return isDigit(ch) || ch == ')' || ch == ']' || ch == '}'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
