package ripple

import "math"

// FieldStats summarises one height grid.
type FieldStats struct {
	Min, Max float32
	Mean     float64
	// Energy is the sum of squared heights.
	Energy float64
	// Deviation is the sum of squared deviations from the mean. The clamped
	// boundary conserves the mean, so this is the part damping removes.
	Deviation float64
	Finite    bool
}

// Measure computes statistics over a view.
func Measure(v View) FieldStats {
	st := FieldStats{Finite: true}
	if len(v.data) == 0 {
		return st
	}
	st.Min, st.Max = v.data[0], v.data[0]
	var sum float64
	for _, h := range v.data {
		if h < st.Min {
			st.Min = h
		}
		if h > st.Max {
			st.Max = h
		}
		fh := float64(h)
		if math.IsNaN(fh) || math.IsInf(fh, 0) {
			st.Finite = false
		}
		sum += fh
		st.Energy += fh * fh
	}
	st.Mean = sum / float64(len(v.data))
	for _, h := range v.data {
		d := float64(h) - st.Mean
		st.Deviation += d * d
	}
	return st
}
