package evaluator

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/sambeau/roll/pkg/roll/ast"
	rerrors "github.com/sambeau/roll/pkg/roll/errors"
	"github.com/sambeau/roll/pkg/roll/lexer"
	"github.com/sambeau/roll/pkg/roll/parser"
)

func constant(v float64) func() float64 {
	return func() float64 { return v }
}

// sequence returns the samples in order, repeating the last one.
func sequence(samples ...float64) func() float64 {
	i := 0
	return func() float64 {
		s := samples[min(i, len(samples)-1)]
		i++
		return s
	}
}

func testEnv(macros Macros) *Environment {
	env := NewEnvironment()
	env.Random = constant(1.0)
	if macros != nil {
		env.Macros = macros
	}
	return env
}

func testEval(t *testing.T, input string, env *Environment) Object {
	t.Helper()
	p := parser.New(lexer.New(input)).SetMacros(env.Macros)
	doc := p.ParseDocument()
	if err := p.Err(); err != nil {
		return &Error{Err: err}
	}
	return Eval(doc, env)
}

func render(t *testing.T, input string, env *Environment) string {
	t.Helper()
	obj := testEval(t, input, env)
	if errObj, ok := obj.(*Error); ok {
		t.Fatalf("evaluating %q: %s", input, errObj.Err)
	}
	return obj.(*Text).Value
}

func TestRender(t *testing.T) {
	macros := Macros{
		"melee":        "[[15+4]]",
		"melee attack": "[[15+4]]",
		"dtwenty":      "[[ 14 ]]",
		"bonus":        "2+3",
		"three":        "3",
	}

	tests := []struct {
		input    string
		expected string
	}{
		{`attack is [[20+1]] and damage is /r 10 \ take that!`, "attack is 20+1=21 and damage is 10=10 take that!"},
		{"/r 20*2 is my attack roll", "20*2=40 is my attack roll"},
		{"/r 20*2", "20*2=40"},
		{`/r 20*2\ is my attack roll`, "20*2=40 is my attack roll"},
		{"I attack you for #melee and deal [[10/2]] damage!", "I attack you for 15+4=19 and deal 10/2=5 damage!"},
		{"I attack you for #{melee attack} and deal [[10/2]] damage!", "I attack you for 15+4=19 and deal 10/2=5 damage!"},
		{"[[ #dtwenty + 1 ]]", "{14}+1=15"},
		{"/r 10+[[7+8]]", "10+(15)=25"},
		{"[[ 20 + 4 * 2 ]]", "20+4*2=28"},
		{"[[5-4+1]]", "5-4+1=2"},
		{"[[4*6/3]]", "4*6/3=8"},
		{"[[(4+2)*2]]", "(4+2)*2=12"},
		{"[[2^3^2]]", "2^3^2=512"},
		{"[[-2^2]]", "-2^2=-4"},
		{"[[round(2.5)]] [[round(-2.5)]]", "round(2.5)=3 round(-2.5)=-3"},
		{"[[floor(7/2)]] [[ceil(7/2)]] [[abs(-3)]]", "floor(7/2)=3 ceil(7/2)=4 abs(-3)=3"},
		{"[[7/2]]", "7/2=3.5"},
		{"/r 20+3[STR] to hit", "20+3[STR]=23 to hit"},
		{"[[2d6]]", "2d6[6+6]=12"},
		{"[[d20+1]]", "1d20[20]+1=21"},
		{"[[2.9d6.5]]", "2d6[6+6]=12"},
		{"[[0d6]] [[2d0]] [[(-1)d6]]", "0d6[]=0 2d0[]=0 -1d6[]=0"},
		{"[[-1d6]]", "-1d6[6]=-6"},
		{"[[#bonus * 2]]", "(2+3)*2=10"},
		{"[[#three * 2]]", "3*2=6"},
		{"文字 [[1+1]] ✓", "文字 1+1=2 ✓"},
		{"no rolls here", "no rolls here"},
		{"and/or w/rage", "and/or w/rage"},
		{"/r is not a roll", "/r is not a roll"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := render(t, tt.input, testEnv(macros)); got != tt.expected {
				t.Errorf("render(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDiceFaces(t *testing.T) {
	env := testEnv(nil)
	env.Random = sequence(0, 0.5, 0.99)

	obj := testEval(t, "[[3d6]]", env)
	text := obj.(*Text)
	if text.Value != "3d6[1+4+6]=11" {
		t.Errorf("Value = %q, want %q", text.Value, "3d6[1+4+6]=11")
	}

	if len(text.Rolls) != 1 || len(text.Rolls[0].Dice) != 1 {
		t.Fatalf("Rolls = %+v", text.Rolls)
	}
	dice := text.Rolls[0].Dice[0]
	if dice.Count != 3 || dice.Sides != 6 || len(dice.Faces) != 3 {
		t.Errorf("Dice = %+v", dice)
	}
}

func TestNestedDiceCollected(t *testing.T) {
	obj := testEval(t, "[[(1d4)d6 + d8]]", testEnv(nil))
	text := obj.(*Text)
	if got := len(text.Rolls[0].Dice); got != 3 {
		t.Errorf("len(Dice) = %d, want 3", got)
	}
	if text.Value != "4d6[6+6+6+6]+1d8[8]=32" {
		t.Errorf("Value = %q", text.Value)
	}
}

func TestEvalErrors(t *testing.T) {
	macros := Macros{
		"loop":  "#loop",
		"ping":  "[[#pong]]",
		"pong":  "[[#ping]]",
		"echo":  "again #echo",
		"bad":   "1 +",
		"zero":  "[[1/0]]",
		"multi": "1 2",
	}

	tests := []struct {
		input string
		code  error
	}{
		{"[[1/0]]", rerrors.ErrDivisionByZero},
		{"[[1/(2-2)]]", rerrors.ErrDivisionByZero},
		{"[[0^-1]]", rerrors.ErrNonFiniteResult},
		{"[[(-8)^0.5]]", rerrors.ErrNonFiniteResult},
		{"[[10^400]]", rerrors.ErrNonFiniteResult},
		{"[[1001d6]]", rerrors.ErrTooManyDice},
		{"[[#loop]]", rerrors.ErrRecursionLimit},
		{"[[#ping]]", rerrors.ErrRecursionLimit},
		{"#echo", rerrors.ErrRecursionLimit},
		{"[[#bad]]", rerrors.ErrUnexpectedToken},
		{"[[#multi]]", rerrors.ErrUnexpectedToken},
		{"#zero", rerrors.ErrDivisionByZero},
		{"[[1+2", rerrors.ErrUnterminatedInlineRoll},
		{"[[?{Bonus}]]", rerrors.ErrQueryCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			obj := testEval(t, tt.input, testEnv(macros))
			errObj, ok := obj.(*Error)
			if !ok {
				t.Fatalf("expected error, got %s", obj.Inspect())
			}
			if !stderrors.Is(errObj.Err, tt.code) {
				t.Errorf("error = %s (%s), want %v", errObj.Err.Code, errObj.Err.Message, tt.code)
			}
		})
	}
}

func TestErrorOrigin(t *testing.T) {
	obj := testEval(t, "see #zero", testEnv(Macros{"zero": "[[1/0]]"}))
	errObj := obj.(*Error)
	if errObj.Err.Origin != "#zero" {
		t.Errorf("Origin = %q, want %q", errObj.Err.Origin, "#zero")
	}
	if errObj.Err.Column != 4 {
		t.Errorf("Column = %d, want 4", errObj.Err.Column)
	}
}

func TestUnknownMacroAtEvalTime(t *testing.T) {
	env := testEnv(Macros{"melee": "3"})
	// parsed without a table, so the name is only checked when evaluated
	doc := parser.New(lexer.New("[[#mele]]")).ParseDocument()

	obj := Eval(doc, env)
	errObj, ok := obj.(*Error)
	if !ok {
		t.Fatalf("expected error, got %s", obj.Inspect())
	}
	if !stderrors.Is(errObj.Err, rerrors.ErrUnknownMacro) {
		t.Errorf("error = %s", errObj.Err)
	}
	if len(errObj.Err.Hints) == 0 || !strings.Contains(errObj.Err.Hints[0], "#melee") {
		t.Errorf("Hints = %v", errObj.Err.Hints)
	}
}

func TestMaxDepth(t *testing.T) {
	macros := Macros{"a": "#b", "b": "#c", "c": "1"}

	env := testEnv(macros)
	env.MaxDepth = 3
	if got := render(t, "[[#a]]", env); got != "1=1" {
		t.Errorf("render() = %q, want %q", got, "1=1")
	}

	env = testEnv(macros)
	env.MaxDepth = 2
	obj := testEval(t, "[[#a]]", env)
	if errObj, ok := obj.(*Error); !ok || !stderrors.Is(errObj.Err, rerrors.ErrRecursionLimit) {
		t.Errorf("expected recursion limit error, got %s", obj.Inspect())
	}
}

func TestMaxDice(t *testing.T) {
	env := testEnv(nil)
	env.MaxDice = 5
	if got := render(t, "[[5d2]]", env); got != "5d2[2+2+2+2+2]=10" {
		t.Errorf("render() = %q", got)
	}
	obj := testEval(t, "[[6d2]]", env)
	if !isError(obj) {
		t.Errorf("expected error, got %s", obj.Inspect())
	}
}

func TestQueries(t *testing.T) {
	var asked []string
	env := testEnv(nil)
	env.Prompter = func(prompt, def string) (string, bool) {
		asked = append(asked, prompt+"|"+def)
		return "1+1", true
	}

	got := render(t, "[[?{Bonus|3}]] and [[?{ Bonus }*2]]", env)
	if got != "(1+1)=2 and (1+1)*2=4" {
		t.Errorf("render() = %q", got)
	}
	if len(asked) != 1 || asked[0] != "Bonus|3" {
		t.Errorf("asked = %v, want [Bonus|3]", asked)
	}
}

func TestQueryDefaults(t *testing.T) {
	tests := []struct {
		name     string
		prompter QueryPrompter
		input    string
		expected string
	}{
		{"no prompter uses default", nil, "[[?{attack|3}]]", "3=3"},
		{"cancelled uses default", func(string, string) (string, bool) { return "9", false }, "[[?{attack|3}]]", "3=3"},
		{"empty answer uses default", func(string, string) (string, bool) { return "  ", true }, "[[?{attack|3}]]", "3=3"},
		{"answer wins", func(string, string) (string, bool) { return "7", true }, "[[?{attack|3}]]", "7=7"},
		{"dice answer", func(string, string) (string, bool) { return "2d4", true }, "[[?{dmg}]]", "2d4[4+4]=8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(nil)
			env.Prompter = tt.prompter
			if got := render(t, tt.input, env); got != tt.expected {
				t.Errorf("render() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestQueryAnswers(t *testing.T) {
	answers := map[string]string{"Bonus": "4"}
	env := testEnv(nil)
	env.SetQueryAnswers(answers)
	env.Prompter = func(string, string) (string, bool) {
		t.Error("prompter called for a pre-resolved query")
		return "", false
	}

	if got := render(t, "[[?{Bonus|1}+1]]", env); got != "4+1=5" {
		t.Errorf("render() = %q, want %q", got, "4+1=5")
	}
	if len(answers) != 1 || answers["Bonus"] != "4" {
		t.Errorf("answers was modified: %v", answers)
	}
}

func TestInvalidQueryAnswer(t *testing.T) {
	env := testEnv(nil)
	env.Prompter = func(string, string) (string, bool) { return "lots", true }

	obj := testEval(t, "[[?{Bonus}]]", env)
	errObj, ok := obj.(*Error)
	if !ok {
		t.Fatalf("expected error, got %s", obj.Inspect())
	}
	if !stderrors.Is(errObj.Err, rerrors.ErrInvalidQueryAnswer) {
		t.Errorf("error = %s", errObj.Err)
	}
}

func TestTrace(t *testing.T) {
	logger := &recordingLogger{}
	env := testEnv(Macros{"hit": "[[1d4]]"})
	env.Logger = logger

	render(t, "#hit", env)

	out := strings.Join(logger.lines, "\n")
	for _, want := range []string{"[MACRO] #hit => [[1d4]]", "[DICE] 1d4[4]=4"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace missing %q:\n%s", want, out)
		}
	}
}

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Log(values ...any) {}

func (r *recordingLogger) LogLine(values ...any) {
	for _, v := range values {
		r.lines = append(r.lines, v.(string))
	}
}

func TestMacrosLookup(t *testing.T) {
	composed := "\u00e9p\u00e9e"
	decomposed := "e\u0301pe\u0301e"

	m := Macros{composed: "1"}
	if _, ok := m.Lookup(decomposed); !ok {
		t.Error("Lookup(decomposed) failed for a composed key")
	}

	m = Macros{decomposed: "2"}
	if body, ok := m.Lookup(composed); !ok || body != "2" {
		t.Errorf("Lookup(composed) = %q, %v", body, ok)
	}

	if _, ok := m.Lookup("sword"); ok {
		t.Error("Lookup(sword) succeeded")
	}
}

func TestFormatNumber(t *testing.T) {
	a, b := 0.1, 0.2
	tests := []struct {
		input    float64
		expected string
	}{
		{5, "5"},
		{3.5, "3.5"},
		{-2, "-2"},
		{a + b, "0.30000000000000004"},
		{0.1 + 0.2, "0.3"},
		{1e21, "1000000000000000000000"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.input); got != tt.expected {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestProvenanceFormatting(t *testing.T) {
	env := testEnv(nil)
	literal := &ast.InlineRoll{Inner: &ast.NumberLiteral{Value: 7}, Provenance: ast.ProvenanceLiteral}
	macro := &ast.InlineRoll{Inner: &ast.NumberLiteral{Value: 7}, Provenance: ast.ProvenanceMacro}

	if got := Eval(literal, env).(*Number).Formula; got != "(7)" {
		t.Errorf("literal formula = %q, want (7)", got)
	}
	if got := Eval(macro, env).(*Number).Formula; got != "{7}" {
		t.Errorf("macro formula = %q, want {7}", got)
	}
}
