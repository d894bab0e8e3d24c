package od

import (
	"github.com/hartmut/nyx/nyxerr"
	"gonum.org/v1/gonum/mat"
)

// SmoothAll performs Rauch-Tung-Striebel smoothing over a completed
// forward pass (spec §4.6's "RTS smoothing over the full history"),
// ported from the structure of cmd/od/main.go's SmoothAll call (there,
// delegated entirely to gokalman; here, implemented explicitly since
// gokalman is deliberately not a dependency of this module).
//
// history must be ordered oldest-to-newest and already populated by a full
// forward Predict/Update pass; SmoothAll overwrites each entry's XFilt/PFilt
// in place with the smoothed values.
func SmoothAll(history []*Estimate) error {
	n := len(history)
	if n == 0 {
		return nil
	}
	for k := n - 2; k >= 0; k-- {
		cur := history[k]
		next := history[k+1]
		if next.Phi == nil {
			return nyxerr.Filter("od.SmoothAll", errNoSTM)
		}

		var pInv mat.Dense
		if err := pInv.Inverse(next.PPred); err != nil {
			return nyxerr.Filter("od.SmoothAll", err)
		}
		var phiT, c mat.Dense
		phiT.CloneFrom(next.Phi.T())
		var tmp mat.Dense
		tmp.Mul(&phiT, &pInv)
		c.Mul(cur.PFilt, &tmp)

		rows, _ := c.Dims()
		dx := mat.NewVecDense(rows, nil)
		diff := mat.NewVecDense(rows, nil)
		diff.SubVec(next.XFilt, next.XPred)
		dx.MulVec(&c, diff)
		xs := mat.NewVecDense(rows, nil)
		xs.AddVec(cur.XFilt, dx)

		var dP, cdP, cdPct mat.Dense
		dP.Sub(next.PFilt, next.PPred)
		cdP.Mul(&c, &dP)
		cdPct.Mul(&cdP, c.T())
		ps := mat.NewDense(rows, rows, nil)
		ps.Add(cur.PFilt, &cdPct)

		cur.XFilt, cur.PFilt = xs, ps
	}
	return nil
}
