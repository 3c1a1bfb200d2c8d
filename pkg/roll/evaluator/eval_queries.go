package evaluator

import (
	"strings"

	"github.com/sambeau/roll/pkg/roll/ast"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/lexer"
	"github.com/sambeau/roll/pkg/roll/parser"
)

// queryCache holds the answers of one run. answers are raw texts supplied
// up front; parsed holds every answer already turned into an expression.
type queryCache struct {
	answers map[string]string
	parsed  map[string]ast.Expression
}

func newQueryCache(answers map[string]string) *queryCache {
	c := &queryCache{
		answers: make(map[string]string, len(answers)),
		parsed:  make(map[string]ast.Expression),
	}
	for k, v := range answers {
		c.answers[strings.TrimSpace(k)] = v
	}
	return c
}

// evalQueryExpression resolves ?{prompt|default}. Each key is asked at most
// once per run; later occurrences reuse the parsed answer.
func evalQueryExpression(node *ast.QueryExpression, env *Environment) Object {
	if env.queries == nil {
		env.queries = newQueryCache(nil)
	}
	cache := env.queries

	expr, ok := cache.parsed[node.Key]
	if !ok {
		answer, found := cache.answers[node.Key]
		if !found {
			answer = ask(env.Prompter, node.Prompt, node.Default)
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			answer = node.Default
		}
		if answer == "" {
			return newError(rerrors.CodeQueryCancelled, node.Token, env, map[string]any{"Prompt": node.Prompt})
		}

		origin := "?{" + node.Prompt + "}"
		p := parser.New(lexer.NewWithOrigin(answer, origin)).SetMacros(env.Macros)
		expr = p.ParseExpressionOnly()
		if p.Err() != nil {
			return newError(rerrors.CodeInvalidQueryAnswer, node.Token, env, map[string]any{
				"Prompt": node.Prompt,
				"Answer": answer,
			})
		}

		cache.parsed[node.Key] = expr
		env.trace("QUERY", "%s = %s", node.Prompt, answer)
	}

	result := Eval(expr, env)
	if isError(result) {
		return result
	}

	return substitute(expr, result.(*Number))
}

// ask calls the prompter. A missing prompter or a cancelled prompt falls
// back to the default.
func ask(prompter QueryPrompter, prompt, def string) string {
	if prompter == nil {
		return def
	}
	answer, ok := prompter(prompt, def)
	if !ok {
		return def
	}
	return answer
}
