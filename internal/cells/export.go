package cells

// Eigenstate is a six-scalar summary of the population at one instant.
// It holds no reference to the Store it came from.
type Eigenstate struct {
	EnergySetpoint      float32 `json:"energy_setpoint"`
	EpigeneticProfile   float32 `json:"epigenetic_profile"`
	CascadeReadiness    float32 `json:"cascade_readiness"`
	StressResilience    float32 `json:"stress_resilience"`
	DifferentiationAxis float32 `json:"differentiation_axis"`
	MechanicalState     float32 `json:"mechanical_state"`
}

// Export reduces the store to an Eigenstate. It does not mutate the store.
// All arithmetic is float32 so encoded checksums are reproducible.
func Export(s *Store) Eigenstate {
	n := s.Len()
	if n == 0 {
		return Eigenstate{}
	}

	var e Eigenstate
	e.EnergySetpoint = average(s.energy)
	e.EpigeneticProfile = average(s.heat) / 100
	if n > 1 {
		e.CascadeReadiness = s.energy[1] / 100
	} else {
		e.CascadeReadiness = e.EnergySetpoint / 100
	}
	e.StressResilience = 1 - e.EpigeneticProfile
	e.DifferentiationAxis = e.CascadeReadiness - e.EpigeneticProfile
	e.MechanicalState = 0.5 * (e.EnergySetpoint/100 + e.StressResilience)
	return e
}
