package evaluator

import "math"

// FunctionInfo describes a built-in function for help output
type FunctionInfo struct {
	Name        string   `json:"name"`
	Params      []string `json:"params"`
	Description string   `json:"description"`
	Example     string   `json:"example,omitempty"`

	fn func(float64) float64
}

// OperatorInfo describes an operator for help output
type OperatorInfo struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Precedence  int    `json:"precedence"` // higher binds tighter
	Category    string `json:"category"`
	Example     string `json:"example,omitempty"`
}

// FunctionMetadata holds every built-in function, keyed by name.
var FunctionMetadata = map[string]FunctionInfo{
	"floor": {
		Name:        "floor",
		Params:      []string{"x"},
		Description: "Rounds x down to the nearest integer",
		Example:     "[[floor(7/2)]] → floor(7/2)=3",
		fn:          math.Floor,
	},
	"ceil": {
		Name:        "ceil",
		Params:      []string{"x"},
		Description: "Rounds x up to the nearest integer",
		Example:     "[[ceil(7/2)]] → ceil(7/2)=4",
		fn:          math.Ceil,
	},
	"round": {
		Name:        "round",
		Params:      []string{"x"},
		Description: "Rounds x to the nearest integer, halves away from zero",
		Example:     "[[round(2.5)]] → round(2.5)=3",
		fn:          math.Round,
	},
	"abs": {
		Name:        "abs",
		Params:      []string{"x"},
		Description: "Returns the absolute value of x",
		Example:     "[[abs(-3)]] → abs(-3)=3",
		fn:          math.Abs,
	},
}

// OperatorMetadata lists the operators of the roll expression language.
var OperatorMetadata = []OperatorInfo{
	{Symbol: "+", Description: "Addition", Precedence: 1, Category: "arithmetic", Example: "[[20+1]]"},
	{Symbol: "-", Description: "Subtraction", Precedence: 1, Category: "arithmetic", Example: "[[5-4+1]]"},
	{Symbol: "*", Description: "Multiplication", Precedence: 2, Category: "arithmetic", Example: "[[4*6/3]]"},
	{Symbol: "/", Description: "Division (may produce a fraction)", Precedence: 2, Category: "arithmetic", Example: "[[7/2]]"},
	{Symbol: "-x", Description: "Negation", Precedence: 3, Category: "arithmetic", Example: "[[-2^2]]"},
	{Symbol: "^", Description: "Exponentiation, right-associative", Precedence: 4, Category: "arithmetic", Example: "[[2^3^2]]"},
	{Symbol: "[label]", Description: "Labels the preceding term without changing its value", Precedence: 5, Category: "annotation", Example: "/r 20+3[STR]"},
	{Symbol: "d", Description: "Rolls N dice with X sides (NdX, dX means 1dX)", Precedence: 6, Category: "dice", Example: "[[2d6+3]]"},
	{Symbol: "( )", Description: "Grouping", Precedence: 7, Category: "grouping", Example: "[[(4+2)*2]]"},
	{Symbol: "[[ ]]", Description: "Nested inline roll, shown as (value)", Precedence: 7, Category: "grouping", Example: "/r 10+[[7+8]]"},
}
