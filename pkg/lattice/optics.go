package lattice

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Twiss holds the normal-mode parameters of one plane.
type Twiss struct {
	Beta, Alpha, Gamma, Phi float64
	Eta, Etap               float64
}

// Dispersion holds lab-frame dispersion of one plane.
type Dispersion struct {
	Eta, Etap float64
}

// Optics is the computed state at an element exit.
type Optics struct {
	S, L      float64
	ETot, P0c float64
	A, B      Twiss
	X, Y      Dispersion

	// K1 and B1Gradient are the effective quadrupole strengths.
	K1, B1Gradient float64

	Mat6 *mat.Dense
	Vec0 [6]float64
}

func momentum(eTot float64) (float64, error) {
	if eTot <= ElectronMass {
		return 0, ErrBeamLost
	}
	return math.Sqrt(eTot*eTot - ElectronMass*ElectronMass), nil
}

// Compute propagates the beginning conditions through the beamline. The
// result has one entry for BEGINNING, one per element and one for END.
func Compute(bl *Beamline) ([]Optics, error) {
	b := bl.Beginning
	p0c, err := momentum(b.ETot)
	if err != nil {
		return nil, err
	}

	cur := Optics{
		ETot: b.ETot,
		P0c:  p0c,
		A:    newTwiss(b.BetaA, b.AlphaA, b.EtaX, b.EtapX),
		B:    newTwiss(b.BetaB, b.AlphaB, b.EtaY, b.EtapY),
		X:    Dispersion{Eta: b.EtaX, Etap: b.EtapX},
		Y:    Dispersion{Eta: b.EtaY, Etap: b.EtapY},
		Mat6: identity6(),
	}
	out := make([]Optics, 0, len(bl.Elements)+2)
	out = append(out, cur)

	for _, e := range bl.Elements {
		next, err := track(e, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		out = append(out, next)
		cur = next
	}

	end := cur
	end.L = 0
	end.K1, end.B1Gradient = 0, 0
	end.Mat6 = identity6()
	end.Vec0 = [6]float64{}
	return append(out, end), nil
}

// energyGain is the energy gain of an lcavity at its phase.
func energyGain(e *Element) float64 {
	return e.Attr(AttrVoltage) * math.Cos(2*math.Pi*e.Attr(AttrPhi0))
}

// entranceMomentum returns the reference momentum at the entrance of el.
func (bl *Beamline) entranceMomentum(el *Element) (float64, error) {
	eTot := bl.Beginning.ETot
	for _, e := range bl.Elements {
		if e == el {
			break
		}
		if e.Kind == KindLCavity {
			eTot += energyGain(e)
		}
	}
	return momentum(eTot)
}

func newTwiss(beta, alpha, eta, etap float64) Twiss {
	return Twiss{Beta: beta, Alpha: alpha, Gamma: (1 + alpha*alpha) / beta, Eta: eta, Etap: etap}
}

// track computes the exit optics of e given the entrance state in.
func track(e *Element, in Optics) (Optics, error) {
	l := e.Length()
	out := Optics{S: in.S + l, L: l, ETot: in.ETot, P0c: in.P0c}

	var m *mat.Dense
	switch e.Kind {
	case KindQuadrupole:
		k1 := e.Attr(AttrK1)
		if e.Attr(AttrFieldMaster) != 0 {
			k1 = e.Attr(AttrB1Gradient) * SpeedOfLight / in.P0c
		}
		out.K1 = k1
		out.B1Gradient = k1 * in.P0c / SpeedOfLight
		m = quadMatrix(l, k1, in.P0c)
	case KindSBend:
		m = bendMatrix(l, e.Attr(AttrAngle), in.P0c)
	case KindLCavity:
		out.ETot = in.ETot + energyGain(e)
		p1, err := momentum(out.ETot)
		if err != nil {
			return Optics{}, err
		}
		out.P0c = p1
		m = cavityMatrix(l, in.P0c, p1)
	default:
		m = driftMatrix(l, in.P0c)
	}
	out.Mat6 = m

	out.A = propagatePlane(m, 0, in.A)
	out.B = propagatePlane(m, 2, in.B)
	out.X = Dispersion{Eta: out.A.Eta, Etap: out.A.Etap}
	out.Y = Dispersion{Eta: out.B.Eta, Etap: out.B.Etap}
	return out, nil
}

// propagatePlane transports Twiss parameters and dispersion through the
// 2x2 block of m starting at row/column i. The Twiss matrix transforms
// as M T Mt / det(M), which keeps beta normalized through acceleration.
func propagatePlane(m *mat.Dense, i int, t Twiss) Twiss {
	sub := mat.NewDense(2, 2, []float64{
		m.At(i, i), m.At(i, i+1),
		m.At(i+1, i), m.At(i+1, i+1),
	})
	det := mat.Det(sub)

	t0 := mat.NewDense(2, 2, []float64{t.Beta, -t.Alpha, -t.Alpha, t.Gamma})
	var tmp, t1 mat.Dense
	tmp.Mul(sub, t0)
	t1.Mul(&tmp, sub.T())
	t1.Scale(1/det, &t1)

	m11, m12 := sub.At(0, 0), sub.At(0, 1)
	dphi := math.Atan2(m12, m11*t.Beta-m12*t.Alpha)
	if dphi < 0 {
		dphi += 2 * math.Pi
	}

	var eta mat.VecDense
	eta.MulVec(sub, mat.NewVecDense(2, []float64{t.Eta, t.Etap}))
	eta.AddVec(&eta, mat.NewVecDense(2, []float64{m.At(i, 5), m.At(i+1, 5)}))

	return Twiss{
		Beta:  t1.At(0, 0),
		Alpha: -t1.At(0, 1),
		Gamma: t1.At(1, 1),
		Phi:   t.Phi + dphi,
		Eta:   eta.AtVec(0),
		Etap:  eta.AtVec(1),
	}
}

func identity6() *mat.Dense {
	m := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// zDrift is the path length term L/(beta*gamma)^2.
func zDrift(l, p0c float64) float64 {
	r := ElectronMass / p0c
	return l * r * r
}

func driftMatrix(l, p0c float64) *mat.Dense {
	m := identity6()
	m.Set(0, 1, l)
	m.Set(2, 3, l)
	m.Set(4, 5, zDrift(l, p0c))
	return m
}

// setBlock writes a 2x2 focusing block for strength k over length l at
// row/column i. Positive k focuses.
func setBlock(m *mat.Dense, i int, k, l float64) {
	switch {
	case k > 0:
		sk := math.Sqrt(k)
		m.Set(i, i, math.Cos(sk*l))
		m.Set(i, i+1, math.Sin(sk*l)/sk)
		m.Set(i+1, i, -sk*math.Sin(sk*l))
		m.Set(i+1, i+1, math.Cos(sk*l))
	case k < 0:
		sk := math.Sqrt(-k)
		m.Set(i, i, math.Cosh(sk*l))
		m.Set(i, i+1, math.Sinh(sk*l)/sk)
		m.Set(i+1, i, sk*math.Sinh(sk*l))
		m.Set(i+1, i+1, math.Cosh(sk*l))
	default:
		m.Set(i, i, 1)
		m.Set(i, i+1, l)
		m.Set(i+1, i, 0)
		m.Set(i+1, i+1, 1)
	}
}

func quadMatrix(l, k1, p0c float64) *mat.Dense {
	if l == 0 {
		return identity6()
	}
	m := identity6()
	setBlock(m, 0, k1, l)
	setBlock(m, 2, -k1, l)
	m.Set(4, 5, zDrift(l, p0c))
	return m
}

// bendMatrix is a sector bend without edge focusing.
func bendMatrix(l, angle, p0c float64) *mat.Dense {
	if angle == 0 || l == 0 {
		return driftMatrix(l, p0c)
	}
	g := angle / l
	c, s := math.Cos(angle), math.Sin(angle)

	m := identity6()
	m.Set(0, 0, c)
	m.Set(0, 1, s/g)
	m.Set(1, 0, -g*s)
	m.Set(1, 1, c)
	m.Set(0, 5, (1-c)/g)
	m.Set(1, 5, s)
	m.Set(2, 3, l)
	m.Set(4, 0, -s)
	m.Set(4, 1, -(1-c)/g)
	m.Set(4, 5, zDrift(l, p0c)-(angle-s)/g)
	return m
}

// cavityMatrix models an accelerating section without RF focusing:
// transverse momenta shrink by p0/p1 and the drift length is replaced by
// its adiabatic equivalent.
func cavityMatrix(l, p0, p1 float64) *mat.Dense {
	dp := p1 - p0
	if math.Abs(dp) < 1e-12*p0 {
		return driftMatrix(l, p0)
	}
	ratio := p0 / p1
	eff := l * p0 / dp * math.Log(p1/p0)

	m := identity6()
	m.Set(0, 1, eff)
	m.Set(1, 1, ratio)
	m.Set(2, 3, eff)
	m.Set(3, 3, ratio)
	m.Set(4, 5, l*(ElectronMass/p0)*(ElectronMass/p1))
	m.Set(5, 5, ratio)
	return m
}

// flatten returns m in row-major order.
func flatten(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
