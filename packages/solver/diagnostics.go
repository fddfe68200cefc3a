package solver

import "math"

// Diagnostics summarizes a state.
type Diagnostics struct {
	Mass           float64 `json:"mass"`
	TotalVariation float64 `json:"totalVariation"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	L1             float64 `json:"l1"`
	L2             float64 `json:"l2"`
}

// Measure computes diagnostics of s on a grid with spacing dx.
func Measure(s State, dx float64) Diagnostics {
	if len(s) == 0 {
		return Diagnostics{}
	}
	d := Diagnostics{Min: s[0], Max: s[0]}
	var sum, abs, sq float64
	for i, v := range s {
		sum += v
		abs += math.Abs(v)
		sq += v * v
		if v < d.Min {
			d.Min = v
		}
		if v > d.Max {
			d.Max = v
		}
		if i > 0 {
			d.TotalVariation += math.Abs(v - s[i-1])
		}
	}
	d.Mass = sum * dx
	d.L1 = abs * dx
	d.L2 = math.Sqrt(sq * dx)
	return d
}

// MassDrift returns the change of mass between two diagnostics relative to
// the larger of the initial |mass| and L1 norm. States whose mass cancels
// out, like a sine over whole periods, are measured against their L1 norm.
// The change is absolute when both are zero.
func MassDrift(before, after Diagnostics) float64 {
	delta := math.Abs(after.Mass - before.Mass)
	scale := math.Max(math.Abs(before.Mass), before.L1)
	if scale == 0 {
		return delta
	}
	return delta / scale
}

// ErrorNorms returns the L1 and max norm of the difference between two states.
func ErrorNorms(got, want State, dx float64) (l1, linf float64) {
	for i := range got {
		d := math.Abs(got[i] - want[i])
		l1 += d * dx
		if d > linf {
			linf = d
		}
	}
	return l1, linf
}
