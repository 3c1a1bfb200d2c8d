package roll

import "math/rand/v2"

// SeededRandom returns a repeatable random source for Config.Random. The
// same seed always rolls the same faces.
func SeededRandom(seed uint64) func() float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return r.Float64
}
