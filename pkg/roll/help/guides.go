package help

type guide struct {
	Title    string
	Body     string
	Examples []Example
}

var guides = map[string]guide{
	"syntax": {
		Title: "Rolls in chat messages",
		Body: `A message is free text with rolls in it. Each top-level roll is replaced
by formula=value; everything else is copied unchanged.

  [[expr]]      inline roll, anywhere in the text
  /r expr       command roll; /roll is the same
  /r expr \     a backslash ends a command roll early
  #name         macro (#{name with spaces} for other names)
  ?{prompt|x}   roll query, asked once per prompt

A command roll takes the longest expression it can and leaves the rest of
the message as text.`,
		Examples: []Example{
			{Input: `attack is [[20+1]] and damage is /r 10 \ take that!`, Output: "attack is 20+1=21 and damage is 10=10 take that!"},
			{Input: "/r 20*2 is my attack roll", Output: "20*2=40 is my attack roll"},
			{Input: "/r 10+[[7+8]]", Output: "10+(15)=25"},
			{Input: "/r 20+3[STR] to hit", Output: "20+3[STR]=23 to hit"},
		},
	},
	"dice": {
		Title: "Dice",
		Body: `NdX rolls N dice with X sides and adds them up. dX is 1dX. Both sides may
be any term, including a bracketed expression. Fractions are truncated.
Zero or negative counts or sides roll nothing and count as 0.

The formula lists every face: 2d6[3+5].`,
		Examples: []Example{
			{Input: "[[2d6+3]]", Output: "2d6[6+6]+3=15"},
			{Input: "[[d20+5]]", Output: "1d20[20]+5=25"},
			{Input: "[[(1+1)d(2*3)]]", Output: "2d6[6+6]=12"},
			{Input: "[[0d6]]", Output: "0d6[]=0"},
		},
	},
	"macros": {
		Title: "Macros",
		Body: `#name is replaced by the macro's body. In text the body is a message of its
own; inside a roll it is an expression. Rolls that come from a macro are
shown in braces, {14}, instead of parentheses.

Macros are loaded from YAML files (--macros) or a SQLite store (--db).
A macro may use other macros, up to the nesting limit.`,
		Examples: []Example{
			{Input: "I hit for #melee", Output: "I hit for 15+4=19", Macros: map[string]string{"melee": "[[15+4]]"}},
			{Input: "#{melee attack}", Output: "15+4=19", Macros: map[string]string{"melee attack": "[[15+4]]"}},
			{Input: "[[ #dtwenty + 1 ]]", Output: "{14}+1=15", Macros: map[string]string{"dtwenty": "[[ 14 ]]"}},
			{Input: "[[#bonus*2]]", Output: "(2+3)*2=10", Macros: map[string]string{"bonus": "2+3"}},
		},
	},
	"queries": {
		Title: "Roll queries",
		Body: `?{prompt|default} asks for a value when the message is rolled. The answer
is itself a roll expression. An empty answer takes the default.

Each prompt is asked once per message; repeats reuse the answer. Answers
can be given up front with --query prompt=answer.`,
		Examples: []Example{
			{Input: "[[?{Bonus|2}+1]]", Output: "2+1=3"},
			{Input: "[[1d20+?{Modifier|1d4}]]", Output: "1d20[20]+1d4[4]=24"},
			{Input: "[[?{Bonus|2}]] and [[?{Bonus|2}*2]]", Output: "2=2 and 2*2=4"},
		},
	},
}
