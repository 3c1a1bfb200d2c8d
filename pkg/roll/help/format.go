package help

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sambeau/roll/pkg/roll/evaluator"
)

// FormatText formats a TopicResult for terminal output with the given width
func FormatText(result *TopicResult, width int) string {
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder

	switch result.Kind {
	case "guide":
		formatGuideText(&sb, result, width)
	case "function":
		formatFunctionText(&sb, result)
	case "function-list":
		formatFunctionListText(&sb, result)
	case "operator-list":
		formatOperatorListText(&sb, result)
	case "error":
		formatErrorText(&sb, result)
	case "error-list":
		formatErrorListText(&sb, result)
	case "topic-list":
		sb.WriteString("Topics:\n")
		fmt.Fprintf(&sb, "  %s\n", strings.Join(result.Topics, ", "))
	default:
		sb.WriteString(fmt.Sprintf("Unknown result kind: %s\n", result.Kind))
	}

	return sb.String()
}

// FormatJSON formats a TopicResult as JSON
func FormatJSON(result *TopicResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}

func formatGuideText(sb *strings.Builder, result *TopicResult, width int) {
	sb.WriteString(result.Title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", min(len([]rune(result.Title)), width)))
	sb.WriteString("\n\n")
	sb.WriteString(result.Description)
	sb.WriteString("\n")

	formatExamples(sb, result.Examples)
}

func formatExamples(sb *strings.Builder, examples []Example) {
	if len(examples) == 0 {
		return
	}

	sb.WriteString("\nExamples:\n")
	for _, ex := range examples {
		for name, body := range ex.Macros {
			fmt.Fprintf(sb, "  #%s = %s\n", name, body)
		}
		fmt.Fprintf(sb, "  %s\n", ex.Input)
		fmt.Fprintf(sb, "    → %s\n", ex.Output)
	}
}

// formatFunctionText formats a single function's help output
func formatFunctionText(sb *strings.Builder, result *TopicResult) {
	fmt.Fprintf(sb, "%s(%s)\n", result.Name, strings.Join(result.Params, ", "))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "%s\n", result.Description)

	formatExamples(sb, result.Examples)
}

func formatFunctionListText(sb *strings.Builder, result *TopicResult) {
	sb.WriteString("Functions\n")
	sb.WriteString("=========\n\n")

	maxLen := 0
	for _, f := range result.Functions {
		maxLen = max(maxLen, len(signature(f)))
	}

	for _, f := range result.Functions {
		display := signature(f)
		padding := strings.Repeat(" ", maxLen-len(display)+2)
		fmt.Fprintf(sb, "  %s%s%s\n", display, padding, f.Description)
	}
}

func signature(f evaluator.FunctionInfo) string {
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(f.Params, ", "))
}

// formatOperatorListText lists operators loosest binding first
func formatOperatorListText(sb *strings.Builder, result *TopicResult) {
	sb.WriteString("Operators\n")
	sb.WriteString("=========\n\n")

	maxLen := 6
	for _, op := range result.Operators {
		maxLen = max(maxLen, len(op.Symbol))
	}

	for _, op := range result.Operators {
		padding := strings.Repeat(" ", maxLen-len(op.Symbol)+2)
		fmt.Fprintf(sb, "  %s%s%s\n", op.Symbol, padding, op.Description)
	}

	sb.WriteString("\nOperators lower in the list bind tighter. ^ groups right to left,\n")
	sb.WriteString("the others left to right.\n")
}

func formatErrorText(sb *strings.Builder, result *TopicResult) {
	fmt.Fprintf(sb, "%s (%s)\n", result.Name, result.Class)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "%s\n", result.Description)

	for _, hint := range result.Hints {
		fmt.Fprintf(sb, "\nhint: %s\n", hint)
	}
}

func formatErrorListText(sb *strings.Builder, result *TopicResult) {
	sb.WriteString("Errors\n")
	sb.WriteString("======\n\n")

	for _, e := range result.Errors {
		fmt.Fprintf(sb, "  %-11s %-6s %s\n", e.Code, e.Class, e.Summary)
	}

	sb.WriteString("\nUse 'roll describe <code>' for details on a specific error.\n")
}
