package trajectory

import "github.com/hartmut/nyx"

// EventFunc is a scalar indicator over an interpolated sample; its zero
// crossings are the events Find/FindAll search for.
type EventFunc func(s Sample) float64

// searchStep is the coarse scan resolution used to bracket candidate
// crossings before bisection refines them; fine enough to not miss short
// events in a typical LEO-period trajectory (orders of magnitude shorter
// than an orbital period) without re-evaluating the spline at every sample.
const searchStep = 10.0 // seconds

// Precision is the event refinement stopping pair: bisection stops when
// the event scalar's magnitude drops below Value or the bracket narrows
// below TimeSeconds, whichever comes first.
type Precision struct {
	Value       float64
	TimeSeconds float64
}

// DefaultPrecision is the pair Find/FindAll refine to.
var DefaultPrecision = Precision{Value: 1e-9, TimeSeconds: 1e-6}

// FindAll returns every epoch within the trajectory's span at which f
// crosses zero, refined to DefaultPrecision by bisection.
func (t *Trajectory) FindAll(f EventFunc) ([]nyx.Epoch, error) {
	return t.FindAllWithPrecision(f, DefaultPrecision)
}

// FindAllWithPrecision is FindAll with an explicit precision pair.
func (t *Trajectory) FindAllWithPrecision(f EventFunc, prec Precision) ([]nyx.Epoch, error) {
	start, end, err := t.Span()
	if err != nil {
		return nil, err
	}
	var crossings []nyx.Epoch
	prevT := start
	prevS, err := t.At(prevT)
	if err != nil {
		return nil, err
	}
	prevG := f(prevS)
	for cur := start.Add(nyx.Seconds(searchStep)); !cur.After(end); cur = cur.Add(nyx.Seconds(searchStep)) {
		s, err := t.At(cur)
		if err != nil {
			return nil, err
		}
		g := f(s)
		if (prevG <= 0 && g > 0) || (prevG >= 0 && g < 0) {
			root, err := t.bisect(prevT, cur, f, prec)
			if err != nil {
				return nil, err
			}
			crossings = append(crossings, root)
		}
		prevT, prevG = cur, g
	}
	return crossings, nil
}

// Find returns the nth (1-based) zero crossing of f.
func (t *Trajectory) Find(f EventFunc, n int) (nyx.Epoch, error) {
	return t.FindWithPrecision(f, n, DefaultPrecision)
}

// FindWithPrecision is Find with an explicit precision pair.
func (t *Trajectory) FindWithPrecision(f EventFunc, n int, prec Precision) (nyx.Epoch, error) {
	all, err := t.FindAllWithPrecision(f, prec)
	if err != nil {
		return nyx.Epoch{}, err
	}
	if n < 1 || n > len(all) {
		start, end, _ := t.Span()
		return nyx.Epoch{}, errEventNotFound(start, end)
	}
	return all[n-1], nil
}

func (t *Trajectory) bisect(a, b nyx.Epoch, f EventFunc, prec Precision) (nyx.Epoch, error) {
	sa, err := t.At(a)
	if err != nil {
		return nyx.Epoch{}, err
	}
	fa := f(sa)
	const maxIter = 60
	for i := 0; i < maxIter && b.Sub(a).Seconds() > prec.TimeSeconds; i++ {
		mid := a.Add(b.Sub(a).Scale(0.5))
		sm, err := t.At(mid)
		if err != nil {
			return nyx.Epoch{}, err
		}
		fm := f(sm)
		if abs(fm) < prec.Value {
			return mid, nil
		}
		if (fa <= 0 && fm > 0) || (fa >= 0 && fm < 0) {
			b = mid
		} else {
			a, fa = mid, fm
		}
	}
	return b, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func errEventNotFound(start, end nyx.Epoch) error {
	return sentinelErr("event not found between " + start.String() + " and " + end.String())
}
