package cells

import "math"

// Coupling constants for the all-pairs exchange and thermal throttling.
const (
	EnergyCoupling float32 = 0.08 // Energy flow per unit difference, per neighbor
	HeatCoupling   float32 = 0.05 // Heat flow per unit difference, per neighbor
	ThrottleAlpha  float32 = 0.9  // Efficiency decay rate per unit of overflow

	minTheta float32 = 1e-6
)

// Delta is the aggregate signal returned by Step.
type Delta struct {
	MeanEnergy    float32 `json:"mean_energy"`
	MeanHeat      float32 `json:"mean_heat"`
	EnergyLambda2 float32 `json:"energy_lambda2"` // Energy of cell 1, or cell 0 when alone
	EnergyLambda3 float32 `json:"energy_lambda3"` // Energy of cell 2, or EnergyLambda2 when fewer than 3 cells
	Pruning       float32 `json:"pruning"`        // 1 - mean heat fraction
}

// Overflow is the fraction by which heat exceeds theta, floored at zero.
func Overflow(heat, theta float32) float32 {
	o := (heat - theta) / max(theta, minTheta)
	if o < 0 {
		return 0
	}
	return o
}

// Step advances every cell by dt and returns the post-step aggregates.
//
// Each cell generates activity*g*eta_eff and consumes activity*c, where
// eta_eff decays exponentially once heat passes the archetype threshold.
// Energy and heat also diffuse between every pair of cells. All neighbor
// terms read the state as it was when the step began, so the iteration order
// does not matter. Cost is O(n²).
//
// An empty store returns a zero Delta.
func Step(s *Store, dt float32) Delta {
	n := s.Len()
	if n == 0 {
		return Delta{}
	}

	prevE := s.prevEnergy[:n]
	prevH := s.prevHeat[:n]
	copy(prevE, s.energy)
	copy(prevH, s.heat)

	for i := 0; i < n; i++ {
		p := s.Params(i)
		e0, h0 := prevE[i], prevH[i]
		act := s.activity[i]

		overflow := Overflow(h0, p.Theta)
		etaEff := p.Eta * float32(math.Exp(float64(-ThrottleAlpha*overflow)))
		pGen := float32(act*p.G) * etaEff
		pUse := act * p.C

		var eNeighbor, hNeighbor float32
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			eNeighbor += float32(EnergyCoupling * (prevE[j] - e0))
			hNeighbor += float32(HeatCoupling * (prevH[j] - h0))
		}

		dE := float32(pGen-pUse) + eNeighbor
		dH := float32(p.Gamma*pUse) + hNeighbor - float32(p.Rho*h0)
		s.energy[i] = clamp(e0+float32(dt*dE), 0, MaxEnergy)
		s.heat[i] = clamp(h0+float32(dt*dH), 0, MaxHeat)
	}

	d := Delta{
		MeanEnergy: average(s.energy),
		MeanHeat:   average(s.heat),
	}
	d.EnergyLambda2 = s.energy[0]
	if n > 1 {
		d.EnergyLambda2 = s.energy[1]
	}
	d.EnergyLambda3 = d.EnergyLambda2
	if n > 2 {
		d.EnergyLambda3 = s.energy[2]
	}
	d.Pruning = 1 - clamp(d.MeanHeat/100, 0, 1)
	return d
}
