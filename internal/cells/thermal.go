package cells

// Band classifies how close a cell runs to its thermal threshold.
type Band uint8

const (
	BandLow    Band = iota // Below 60% of theta
	BandMedium             // Between 60% and 100% of theta
	BandHigh               // At or above theta: misfold territory
)

func (b Band) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandMedium:
		return "medium"
	default:
		return "high"
	}
}

// ThermalBand returns the band for heat relative to theta.
func ThermalBand(heat, theta float32) Band {
	normalized := heat / max(theta, minTheta)
	switch {
	case normalized < 0.6:
		return BandLow
	case normalized < 1.0:
		return BandMedium
	default:
		return BandHigh
	}
}
