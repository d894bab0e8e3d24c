package od

// chiSquare95 tabulates the 95th-percentile χ² critical value for small
// degrees of freedom (Abramowitz & Stegun table 26.8), used to gate
// whether a measurement's NIS is consistent with the filter's current
// covariance (spec §4.6/§8's "reject measurements whose normalized
// residual exceeds a χ² sigma threshold").
var chiSquare95 = map[int]float64{
	1: 3.841,
	2: 5.991,
	3: 7.815,
	4: 9.488,
}

// AcceptResidual reports whether a NIS value at the given degrees of
// freedom (the measurement dimension, typically 2 for range/range-rate)
// is consistent at the 95% level — the filter-consistency check run over a
// processed arc's innovations. Step-level rejection uses the sigma
// threshold on ODProcess instead.
func AcceptResidual(nis float64, dof int) bool {
	threshold, ok := chiSquare95[dof]
	if !ok {
		threshold = chiSquare95[2]
	}
	return nis <= threshold
}
