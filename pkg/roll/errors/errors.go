// Package errors provides structured error types for the roll language.
//
// RollError represents lexer, parser, evaluation and query failures with a
// stable code, a rendered message, optional hints and the source position
// where the problem was detected.
package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ErrorClass categorizes errors for filtering and display.
type ErrorClass string

const (
	ClassLex   ErrorClass = "lex"   // Scanner errors (not expected in practice)
	ClassParse ErrorClass = "parse" // Syntax errors
	ClassEval  ErrorClass = "eval"  // Arithmetic, dice and expansion errors
	ClassQuery ErrorClass = "query" // Roll query resolution errors
)

// RollError represents any error produced while interpreting a message.
type RollError struct {
	Class   ErrorClass     `json:"class"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hints   []string       `json:"hints,omitempty"`
	Offset  int            `json:"offset"`           // 0-based byte offset
	Line    int            `json:"line"`             // 1-based line (0 if unknown)
	Column  int            `json:"column"`           // 1-based column (0 if unknown)
	Origin  string         `json:"origin,omitempty"` // "<input>" or "#macro"
	Data    map[string]any `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RollError) Error() string {
	return e.String()
}

// Is reports whether target is a RollError with the same code.
// This lets callers use errors.Is against the exported sentinels.
func (e *RollError) Is(target error) bool {
	t, ok := target.(*RollError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// String returns a one-line representation followed by indented hints.
func (e *RollError) String() string {
	var sb strings.Builder

	if e.Origin != "" && e.Origin != DefaultOrigin {
		sb.WriteString(e.Origin)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		sb.WriteString(fmt.Sprintf("line %d, column %d: ", e.Line, e.Column))
	}

	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// PrettyString returns a multi-line formatted string for terminal display.
func (e *RollError) PrettyString() string {
	var sb strings.Builder

	switch {
	case e.IsParseError():
		sb.WriteString("Syntax error")
	case e.Class == ClassQuery:
		sb.WriteString("Query error")
	default:
		sb.WriteString("Roll error")
	}

	if e.Origin != "" && e.Origin != DefaultOrigin {
		sb.WriteString(":\n  in: ")
		sb.WriteString(e.Origin)
		if e.Line > 0 {
			sb.WriteString(fmt.Sprintf("\n  at: line %d, column %d", e.Line, e.Column))
		}
		sb.WriteString("\n  ")
	} else if e.Line > 0 {
		sb.WriteString(fmt.Sprintf(": line %d, column %d\n  ", e.Line, e.Column))
	} else {
		sb.WriteString(":\n  ")
	}

	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  hint: ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// ToJSON returns the error as JSON bytes.
func (e *RollError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithOrigin returns a copy of the error with the origin set.
func (e *RollError) WithOrigin(origin string) *RollError {
	copy := *e
	copy.Origin = origin
	return &copy
}

// WithPosition returns a copy of the error with offset, line and column set.
func (e *RollError) WithPosition(offset, line, column int) *RollError {
	copy := *e
	copy.Offset = offset
	copy.Line = line
	copy.Column = column
	return &copy
}

// IsParseError returns true for lexer and parser errors.
func (e *RollError) IsParseError() bool {
	return e.Class == ClassParse || e.Class == ClassLex
}

// DefaultOrigin names the top-level source.
const DefaultOrigin = "<input>"

// Error codes.
const (
	CodeLex                    = "LEX-0001"
	CodeUnterminatedInlineRoll = "PARSE-0001"
	CodeUnterminatedQuery      = "PARSE-0002"
	CodeMalformedDiceTerm      = "PARSE-0003"
	CodeUnknownMacro           = "PARSE-0004"
	CodeUnexpectedToken        = "PARSE-0005"
	CodeExpectedToken          = "PARSE-0006"
	CodeRecursionLimit         = "EVAL-0001"
	CodeDivisionByZero         = "EVAL-0002"
	CodeTooManyDice            = "EVAL-0003"
	CodeNonFiniteResult        = "EVAL-0004"
	CodeQueryCancelled         = "QUERY-0001"
	CodeInvalidQueryAnswer     = "QUERY-0002"
)

// Sentinels for use with errors.Is.
var (
	ErrLex                    = &RollError{Class: ClassLex, Code: CodeLex}
	ErrUnterminatedInlineRoll = &RollError{Class: ClassParse, Code: CodeUnterminatedInlineRoll}
	ErrUnterminatedQuery      = &RollError{Class: ClassParse, Code: CodeUnterminatedQuery}
	ErrMalformedDiceTerm      = &RollError{Class: ClassParse, Code: CodeMalformedDiceTerm}
	ErrUnknownMacro           = &RollError{Class: ClassParse, Code: CodeUnknownMacro}
	ErrUnexpectedToken        = &RollError{Class: ClassParse, Code: CodeUnexpectedToken}
	ErrExpectedToken          = &RollError{Class: ClassParse, Code: CodeExpectedToken}
	ErrRecursionLimit         = &RollError{Class: ClassEval, Code: CodeRecursionLimit}
	ErrDivisionByZero         = &RollError{Class: ClassEval, Code: CodeDivisionByZero}
	ErrTooManyDice            = &RollError{Class: ClassEval, Code: CodeTooManyDice}
	ErrNonFiniteResult        = &RollError{Class: ClassEval, Code: CodeNonFiniteResult}
	ErrQueryCancelled         = &RollError{Class: ClassQuery, Code: CodeQueryCancelled}
	ErrInvalidQueryAnswer     = &RollError{Class: ClassQuery, Code: CodeInvalidQueryAnswer}
)

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Class    ErrorClass
	Summary  string   // One-line description for help output
	Template string   // Message template with {{.placeholders}}
	Hints    []string // Hint templates
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	CodeLex: {
		Class:    ClassLex,
		Summary:  "the scanner could not classify the input",
		Template: "cannot scan input: {{.Reason}}",
	},
	CodeUnterminatedInlineRoll: {
		Class:    ClassParse,
		Summary:  "an inline roll was opened with [[ but never closed",
		Template: "unterminated inline roll: expected ']]' before end of input",
		Hints:    []string{"close the roll: [[ {{.Sample}} ]]"},
	},
	CodeUnterminatedQuery: {
		Class:    ClassParse,
		Summary:  "a roll query was opened with ?{ but never closed",
		Template: "unterminated roll query: expected '}' before end of input",
		Hints:    []string{"?{prompt|default}"},
	},
	CodeMalformedDiceTerm: {
		Class:    ClassParse,
		Summary:  "a dice term has no usable side count",
		Template: "malformed dice term: expected a number of sides after 'd', got '{{.Got}}'",
		Hints:    []string{"2d6", "d20", "(1+1)d(2*3)"},
	},
	CodeUnknownMacro: {
		Class:    ClassParse,
		Summary:  "a macro reference names a macro that is not defined",
		Template: "unknown macro '{{.Name}}'",
	},
	CodeUnexpectedToken: {
		Class:    ClassParse,
		Summary:  "a token cannot begin or continue a roll expression",
		Template: "unexpected '{{.Token}}'",
	},
	CodeExpectedToken: {
		Class:    ClassParse,
		Summary:  "a required token is missing",
		Template: "expected {{.Expected}}, got '{{.Got}}'",
	},
	CodeRecursionLimit: {
		Class:    ClassEval,
		Summary:  "macros or inline rolls are nested too deeply",
		Template: "recursion limit exceeded: nesting deeper than {{.Limit}} while expanding '{{.Name}}'",
		Hints:    []string{"check for a macro that refers to itself, directly or through another macro"},
	},
	CodeDivisionByZero: {
		Class:    ClassEval,
		Summary:  "an expression divides by zero",
		Template: "division by zero in '{{.Formula}}'",
	},
	CodeTooManyDice: {
		Class:    ClassEval,
		Summary:  "a dice term asks for more dice than allowed",
		Template: "too many dice: {{.Count}} requested, limit is {{.Limit}}",
	},
	CodeNonFiniteResult: {
		Class:    ClassEval,
		Summary:  "an expression produced an infinite or undefined number",
		Template: "'{{.Formula}}' does not produce a finite number",
	},
	CodeQueryCancelled: {
		Class:    ClassQuery,
		Summary:  "a roll query got no answer and has no default",
		Template: "roll query '{{.Prompt}}' was cancelled and has no default",
		Hints:    []string{"?{ {{- .Prompt}}|0}"},
	},
	CodeInvalidQueryAnswer: {
		Class:    ClassQuery,
		Summary:  "the answer to a roll query is not a roll expression",
		Template: "answer '{{.Answer}}' to roll query '{{.Prompt}}' is not a roll expression",
	},
}

// New creates a RollError from the catalog.
func New(code string, data map[string]any) *RollError {
	def, ok := ErrorCatalog[code]
	if !ok {
		msg := fmt.Sprintf("unknown error code: %s", code)
		if m, ok := data["message"].(string); ok {
			msg = m
		}
		return &RollError{
			Class:   ClassEval,
			Code:    code,
			Message: msg,
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		rendered := renderTemplate(hintTmpl, data)
		if rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &RollError{
		Class:   def.Class,
		Code:    code,
		Message: msg,
		Hints:   hints,
		Origin:  DefaultOrigin,
		Data:    data,
	}
}

// NewWithPosition creates a RollError with position information.
func NewWithPosition(code string, offset, line, column int, data map[string]any) *RollError {
	err := New(code, data)
	err.Offset = offset
	err.Line = line
	err.Column = column
	return err
}

// NewUnknownMacro creates an unknown-macro error with an optional
// "Did you mean" hint drawn from the available macro names.
func NewUnknownMacro(name string, available []string) *RollError {
	err := New(CodeUnknownMacro, map[string]any{"Name": name})
	if suggestion := findClosestMatch(name, available); suggestion != "" {
		err.Hints = append(err.Hints, "Did you mean `#"+suggestion+"`?")
	}
	return err
}

// Codes returns all catalog codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(ErrorCatalog))
	for code := range ErrorCatalog {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return strings.ReplaceAll(buf.String(), "<no value>", "")
}

// ============================================================================
// Fuzzy Matching - "Did you mean?" suggestions
// ============================================================================

// levenshteinDistance computes the edit distance between two strings, rune-wise.
func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// threshold returns how many edits a suggestion may be away from input.
// Short words (1-3): 1 edit, medium (4-6): 2, longer: 3.
func threshold(input string) int {
	n := len([]rune(input))
	switch {
	case n >= 7:
		return 3
	case n >= 4:
		return 2
	default:
		return 1
	}
}

// findClosestMatch returns the candidate closest to input, or "" when none
// is within the length-based threshold. Comparison is case-insensitive.
func findClosestMatch(input string, candidates []string) string {
	if input == "" || len(candidates) == 0 {
		return ""
	}

	inputLower := strings.ToLower(input)

	var bestMatch string
	bestDistance := -1

	// Sorted so ties resolve the same way on every run.
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	for _, candidate := range sorted {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if bestDistance == -1 || dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	if bestDistance <= 0 || bestDistance > threshold(input) {
		return ""
	}

	return bestMatch
}

// FindTopMatches returns up to n candidates within the threshold, closest first.
func FindTopMatches(input string, candidates []string, n int) []string {
	if input == "" || len(candidates) == 0 || n <= 0 {
		return nil
	}

	type match struct {
		value    string
		distance int
	}

	inputLower := strings.ToLower(input)
	var matches []match
	for _, candidate := range candidates {
		dist := levenshteinDistance(inputLower, strings.ToLower(candidate))
		if dist > 0 {
			matches = append(matches, match{candidate, dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].value < matches[j].value
	})

	limit := threshold(input)
	var result []string
	for i := 0; i < len(matches) && len(result) < n; i++ {
		if matches[i].distance <= limit {
			result = append(result, matches[i].value)
		}
	}
	return result
}
