package trajectory

import "github.com/hartmut/nyx/nyxerr"

// hermiteEval fits the unique polynomial of degree 2n-1 through n nodes,
// each carrying both a value and a derivative, and evaluates it (and its
// derivative) at t. This is the classic osculating Hermite interpolation
// ANISE and the teacher's trajectory splines use to reconstruct a smooth
// state history from discrete samples (original_source/src/md/trajectory/
// mod.rs's `hermite_eval` calls, one per Cartesian axis): fitting position
// and velocity jointly lets the spline obey the kinematic constraint
// ẋ = v exactly at every sample instead of treating position and velocity
// as independently-fit curves.
func hermiteEval(nodes, values, derivs []float64, t float64) (float64, float64, error) {
	n := len(nodes)
	if n == 0 || len(values) != n || len(derivs) != n {
		return 0, 0, nyxerr.Trajectory("hermite_eval", errMismatchedSamples)
	}
	// Build the 2n duplicated-node divided-difference table: z[2i]=z[2i+1]=nodes[i].
	m := 2 * n
	z := make([]float64, m)
	q := make([][]float64, m)
	for i := range q {
		q[i] = make([]float64, m)
	}
	for i := 0; i < n; i++ {
		z[2*i] = nodes[i]
		z[2*i+1] = nodes[i]
		q[2*i][0] = values[i]
		q[2*i+1][0] = values[i]
		q[2*i+1][1] = derivs[i]
		if i != 0 {
			q[2*i][1] = (q[2*i][0] - q[2*i-1][0]) / (z[2*i] - z[2*i-1])
		}
	}
	for j := 2; j < m; j++ {
		for i := j; i < m; i++ {
			q[i][j] = (q[i][j-1] - q[i-1][j-1]) / (z[i] - z[i-j])
		}
	}
	// Evaluate the Newton form p(t) = q[0][0] + sum_k q[k][k] * prod_{j<k}(t-z[j])
	// and its derivative by differentiating each product term directly; O(m^2)
	// but m never exceeds 2*interpolationSamples (16), so this is cheap.
	value := q[0][0]
	deriv := 0.0
	prod := make([]float64, m)
	prod[0] = 1
	for k := 1; k < m; k++ {
		prod[k] = prod[k-1] * (t - z[k-1])
	}
	for k := 1; k < m; k++ {
		value += q[k][k] * prod[k]
		var dprod float64
		for i := 0; i < k; i++ {
			term := 1.0
			for j := 0; j < k; j++ {
				if j == i {
					continue
				}
				term *= t - z[j]
			}
			dprod += term
		}
		deriv += q[k][k] * dprod
	}
	return value, deriv, nil
}

var errMismatchedSamples = trajErr("mismatched node/value/derivative sample counts")

type trajErr string

func (e trajErr) Error() string { return string(e) }
