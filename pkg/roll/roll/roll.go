// Package roll provides the public API for interpreting chat messages that
// contain dice rolls, macros and roll queries.
//
//	out := roll.Interpret(roll.Config{Source: "I hit for [[2d6+3]]!"})
//	if out.Err != nil {
//		// report the error
//	}
//	fmt.Println(out)
package roll

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sambeau/roll/pkg/roll/ast"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/evaluator"
	"github.com/sambeau/roll/pkg/roll/lexer"
	"github.com/sambeau/roll/pkg/roll/parser"
)

// Macros maps macro names to their body text
type Macros = evaluator.Macros

// QueryPrompter asks for the answer to a roll query
type QueryPrompter = evaluator.QueryPrompter

// DiceRoll is one dice term and its faces
type DiceRoll = evaluator.DiceRoll

// Config holds everything one interpretation needs. The zero value of
// every optional field selects the default.
type Config struct {
	Source      string
	Macros      Macros            // optional
	RollQueries map[string]string // optional answers keyed by query prompt; never modified
	Random      func() float64    // optional; default math/rand/v2 Float64
	Prompter    QueryPrompter     // optional; default StdinPrompter
	MaxDepth    int               // optional; default 32
	MaxDice     int               // optional; default 1000
	Logger      Logger            // optional trace logger; default NullLogger
}

// RollResult is one top-level roll of a message
type RollResult struct {
	Formula string     `json:"formula"`
	Value   float64    `json:"value"`
	Command bool       `json:"command,omitempty"`
	Dice    []DiceRoll `json:"dice,omitempty"`
}

// String returns formula=value
func (r RollResult) String() string {
	return r.Formula + "=" + evaluator.FormatNumber(r.Value)
}

// Output is the result of Interpret. It is not modified after Interpret
// returns.
type Output struct {
	Text  string
	Rolls []RollResult
	Err   error
}

// String returns the rendered message, or "" when interpretation failed.
func (o *Output) String() string {
	if o == nil || o.Err != nil {
		return ""
	}
	return o.Text
}

// RollError returns the structured error, or nil when the output has no
// error or the error did not come from the interpreter.
func (o *Output) RollError() *rerrors.RollError {
	var re *rerrors.RollError
	if o != nil && errors.As(o.Err, &re) {
		return re
	}
	return nil
}

type outputJSON struct {
	Text  string             `json:"text"`
	Rolls []RollResult       `json:"rolls"`
	Error *rerrors.RollError `json:"error,omitempty"`
}

// MarshalJSON encodes the output. Errors that are not RollErrors are
// stored by message.
func (o *Output) MarshalJSON() ([]byte, error) {
	out := outputJSON{Text: o.Text, Rolls: o.Rolls}
	if out.Rolls == nil {
		out.Rolls = []RollResult{}
	}
	if o.Err != nil {
		out.Error = o.RollError()
		if out.Error == nil {
			out.Error = &rerrors.RollError{Message: o.Err.Error()}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes output written by MarshalJSON.
func (o *Output) UnmarshalJSON(data []byte) error {
	var in outputJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	o.Text = in.Text
	o.Rolls = in.Rolls
	if len(o.Rolls) == 0 {
		o.Rolls = nil
	}
	o.Err = nil
	if in.Error != nil {
		o.Err = in.Error
	}
	return nil
}

// Parse parses a message without evaluating it. Macro names are checked
// against macros when it is not nil.
func Parse(source string, macros Macros) (*ast.Document, error) {
	p := parser.New(lexer.New(source))
	if macros != nil {
		p.SetMacros(macros)
	}
	doc := p.ParseDocument()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Interpret parses and evaluates cfg.Source. Any error aborts the whole
// message; there is no partial output.
func Interpret(cfg Config) *Output {
	macros := cfg.Macros
	if macros == nil {
		macros = Macros{}
	}

	doc, err := Parse(cfg.Source, macros)
	if err != nil {
		return &Output{Err: err}
	}

	env := newEnvironment(cfg, macros)
	result := evaluator.Eval(doc, env)

	switch result := result.(type) {
	case *evaluator.Error:
		return &Output{Err: result.Err}
	case *evaluator.Text:
		out := &Output{Text: result.Value}
		for _, r := range result.Rolls {
			out.Rolls = append(out.Rolls, RollResult{
				Formula: r.Formula,
				Value:   r.Value,
				Command: r.Command,
				Dice:    r.Dice,
			})
		}
		return out
	}

	return &Output{Err: fmt.Errorf("roll: unexpected result %s", result.Inspect())}
}

func newEnvironment(cfg Config, macros Macros) *evaluator.Environment {
	env := evaluator.NewEnvironment()
	env.Macros = macros
	env.SetQueryAnswers(cfg.RollQueries)

	if cfg.Random != nil {
		env.Random = cfg.Random
	}
	env.Prompter = cfg.Prompter
	if env.Prompter == nil {
		env.Prompter = StdinPrompter()
	}
	if cfg.MaxDepth > 0 {
		env.MaxDepth = cfg.MaxDepth
	}
	if cfg.MaxDice > 0 {
		env.MaxDice = cfg.MaxDice
	}
	env.Logger = cfg.Logger
	if env.Logger == nil {
		env.Logger = NullLogger()
	}

	return env
}
