// Package help provides topic-based documentation for the roll language,
// accessible via CLI (`roll describe`) and REPL (`:describe`).
package help

import (
	"fmt"
	"sort"
	"strings"

	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/evaluator"
)

// TopicResult represents the help output for a topic
type TopicResult struct {
	Kind        string                   `json:"kind"`
	Name        string                   `json:"name"`
	Title       string                   `json:"title,omitempty"`
	Description string                   `json:"description,omitempty"`
	Examples    []Example                `json:"examples,omitempty"`
	Functions   []evaluator.FunctionInfo `json:"functions,omitempty"`
	Operators   []evaluator.OperatorInfo `json:"operators,omitempty"`
	Errors      []ErrorEntry             `json:"errors,omitempty"`
	Topics      []string                 `json:"topics,omitempty"`
	Params      []string                 `json:"params,omitempty"`
	Class       string                   `json:"class,omitempty"`
	Hints       []string                 `json:"hints,omitempty"`
}

// Example is a message and what it renders to. Dice examples show every
// die at its highest face and queries answered with their default.
type Example struct {
	Input  string            `json:"input"`
	Output string            `json:"output"`
	Macros map[string]string `json:"macros,omitempty"`
}

// ErrorEntry summarizes one error code
type ErrorEntry struct {
	Code    string `json:"code"`
	Class   string `json:"class"`
	Summary string `json:"summary"`
}

// DescribeTopic returns help information for the given topic.
// Topics can be guides (syntax, dice, macros, queries), lists (operators,
// functions, errors), a function name (round) or an error code (PARSE-0004).
func DescribeTopic(topic string) (*TopicResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("no topic specified (try: %s)", strings.Join(Topics(), ", "))
	}

	lower := strings.ToLower(topic)

	if g, ok := guides[lower]; ok {
		return describeGuide(lower, g), nil
	}

	switch lower {
	case "topics":
		return &TopicResult{Kind: "topic-list", Name: "topics", Topics: Topics()}, nil
	case "operators":
		return describeOperators(), nil
	case "functions":
		return describeFunctions(), nil
	case "errors":
		return describeErrors(), nil
	}

	if result := describeFunction(lower); result != nil {
		return result, nil
	}

	if result := describeErrorCode(strings.ToUpper(topic)); result != nil {
		return result, nil
	}

	return nil, unknownTopicError(topic)
}

// Topics returns the named topics in display order
func Topics() []string {
	return []string{"syntax", "dice", "operators", "functions", "macros", "queries", "errors"}
}

func describeGuide(name string, g guide) *TopicResult {
	return &TopicResult{
		Kind:        "guide",
		Name:        name,
		Title:       g.Title,
		Description: g.Body,
		Examples:    g.Examples,
	}
}

func describeOperators() *TopicResult {
	operators := make([]evaluator.OperatorInfo, len(evaluator.OperatorMetadata))
	copy(operators, evaluator.OperatorMetadata)

	// Loosest binding first, as in the grammar
	sort.SliceStable(operators, func(i, j int) bool {
		return operators[i].Precedence < operators[j].Precedence
	})

	return &TopicResult{
		Kind:      "operator-list",
		Name:      "operators",
		Operators: operators,
	}
}

func describeFunctions() *TopicResult {
	functions := make([]evaluator.FunctionInfo, 0, len(evaluator.FunctionMetadata))
	for _, info := range evaluator.FunctionMetadata {
		functions = append(functions, info)
	}
	sort.Slice(functions, func(i, j int) bool {
		return functions[i].Name < functions[j].Name
	})

	return &TopicResult{
		Kind:      "function-list",
		Name:      "functions",
		Functions: functions,
	}
}

// describeFunction returns help for a single function, or nil if not found
func describeFunction(name string) *TopicResult {
	info, ok := evaluator.FunctionMetadata[name]
	if !ok {
		return nil
	}

	result := &TopicResult{
		Kind:        "function",
		Name:        info.Name,
		Description: info.Description,
		Params:      info.Params,
	}
	if input, output, ok := strings.Cut(info.Example, " → "); ok {
		result.Examples = []Example{{Input: input, Output: output}}
	}
	return result
}

func describeErrors() *TopicResult {
	var entries []ErrorEntry
	for _, code := range rerrors.Codes() {
		def := rerrors.ErrorCatalog[code]
		entries = append(entries, ErrorEntry{
			Code:    code,
			Class:   string(def.Class),
			Summary: def.Summary,
		})
	}

	return &TopicResult{
		Kind:   "error-list",
		Name:   "errors",
		Errors: entries,
	}
}

// describeErrorCode returns help for an error code, or nil if not found
func describeErrorCode(code string) *TopicResult {
	def, ok := rerrors.ErrorCatalog[code]
	if !ok {
		return nil
	}

	return &TopicResult{
		Kind:        "error",
		Name:        code,
		Description: def.Summary,
		Class:       string(def.Class),
		Hints:       def.Hints,
	}
}

// unknownTopicError generates a helpful error for unknown topics
func unknownTopicError(topic string) error {
	suggestions := findSuggestions(topic)

	if len(suggestions) > 0 {
		return fmt.Errorf("unknown topic: %s\nDid you mean: %s?", topic, strings.Join(suggestions, ", "))
	}

	return fmt.Errorf("unknown topic: %s\nTry: %s", topic, strings.Join(Topics(), ", "))
}

// findSuggestions finds topics similar to the given unknown topic
func findSuggestions(topic string) []string {
	candidates := append([]string{"topics"}, Topics()...)
	for name := range evaluator.FunctionMetadata {
		candidates = append(candidates, name)
	}
	candidates = append(candidates, rerrors.Codes()...)

	return rerrors.FindTopMatches(topic, candidates, 3)
}
