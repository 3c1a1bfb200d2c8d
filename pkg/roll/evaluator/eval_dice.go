package evaluator

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/sambeau/roll/pkg/roll/ast"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
)

// evalDiceExpression rolls NdX. Count and sides are truncated toward zero;
// a count or side number of zero or less rolls nothing and sums to 0.
func evalDiceExpression(node *ast.DiceExpression, env *Environment) Object {
	count := &Number{Value: 1}
	if node.Count != nil {
		obj := Eval(node.Count, env)
		if isError(obj) {
			return obj
		}
		count = obj.(*Number)
	}

	obj := Eval(node.Sides, env)
	if isError(obj) {
		return obj
	}
	sides := obj.(*Number)

	n := math.Trunc(count.Value)
	x := math.Trunc(sides.Value)

	limit := env.MaxDice
	if limit <= 0 {
		limit = DefaultMaxDice
	}
	if n > float64(limit) {
		return newError(rerrors.CodeTooManyDice, node.Token, env, map[string]any{
			"Count": FormatNumber(n),
			"Limit": limit,
		})
	}

	roll := DiceRoll{Count: int(max(n, 0)), Sides: x}
	var sum float64
	if n > 0 && x > 0 {
		roll.Faces = make([]float64, 0, roll.Count)
		for range roll.Count {
			face := rollFace(env.Random, x)
			roll.Faces = append(roll.Faces, face)
			sum += face
		}
	} else {
		roll.Count = 0
	}

	formula := FormatNumber(n) + "d" + FormatNumber(x) + "[" + joinFaces(roll.Faces) + "]"
	env.trace("DICE", "%s=%s", formula, FormatNumber(sum))

	dice := joinDice(count.Dice, sides.Dice)
	dice = append(dice[:len(dice):len(dice)], roll)

	return &Number{Value: sum, Formula: formula, Dice: dice}
}

// rollFace maps a sample in [0, 1] onto a face in [1, sides]. A source that
// returns exactly 1 yields the highest face.
func rollFace(random func() float64, sides float64) float64 {
	if random == nil {
		random = rand.Float64
	}
	face := math.Floor(random()*sides) + 1
	if face < 1 {
		return 1
	}
	if face > sides {
		return sides
	}
	return face
}

func joinFaces(faces []float64) string {
	parts := make([]string, len(faces))
	for i, f := range faces {
		parts[i] = FormatNumber(f)
	}
	return strings.Join(parts, "+")
}

// FormatNumber formats v with the fewest digits that represent it exactly:
// 5, 3.5, -2.
func FormatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
