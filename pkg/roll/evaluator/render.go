package evaluator

import (
	"strings"

	"github.com/sambeau/roll/pkg/roll/ast"
)

// evalDocument renders a document: text is copied, each top-level roll is
// replaced by formula=value and each macro is expanded in place. The first
// error aborts the whole document.
func evalDocument(doc *ast.Document, env *Environment) Object {
	var out strings.Builder
	var rolls []Roll

	for _, segment := range doc.Segments {
		switch seg := segment.(type) {
		case *ast.TextSegment:
			out.WriteString(seg.Value)

		case *ast.RollSegment:
			obj := Eval(seg.Roll, env)
			if isError(obj) {
				return obj
			}
			n := obj.(*Number)
			out.WriteString(RenderRoll(n))
			rolls = append(rolls, Roll{
				Formula: n.Formula,
				Value:   n.Value,
				Command: seg.Command,
				Dice:    n.Dice,
			})

		case *ast.MacroSegment:
			obj := evalMacroSegment(seg, env)
			if isError(obj) {
				return obj
			}
			text := obj.(*Text)
			out.WriteString(text.Value)
			rolls = append(rolls, text.Rolls...)
		}
	}

	return &Text{Value: out.String(), Rolls: rolls}
}

// RenderRoll formats a top-level roll as formula=value.
func RenderRoll(n *Number) string {
	return n.Formula + "=" + FormatNumber(n.Value)
}
