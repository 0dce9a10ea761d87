package privacy

import (
	"math"
	"math/rand/v2"
)

// laplace draws from Laplace(0, scale) by inverse transform:
// u ~ Uniform(-0.5, 0.5), x = -scale * sign(u) * ln(1 - 2|u|).
func laplace(rng *rand.Rand, scale float64) float64 {
	for {
		u := rng.Float64() - 0.5
		v := 1 - 2*math.Abs(u)
		if v <= 0 {
			// u == -0.5 would give ln(0)
			continue
		}
		sign := 1.0
		if u < 0 {
			sign = -1.0
		}
		return -scale * sign * math.Log(v)
	}
}
