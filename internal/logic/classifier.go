package logic

// Tier breakpoints in ppm.
const (
	FairFloor = 450.0
	PoorFloor = 800.0

	// DefaultThreshold is the alarm threshold and the DANGEROUS floor.
	DefaultThreshold = 2000.0
)

// Classifier maps averaged ppm to a quality tier.
type Classifier struct {
	Threshold float64
}

// NewClassifier returns a Classifier for the given alarm threshold.
// A non-positive threshold uses DefaultThreshold.
func NewClassifier(threshold float64) Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Classifier{Threshold: threshold}
}

// Classify returns the tier for ppm. Every lower bound is inclusive.
func (c Classifier) Classify(ppm float64) Tier {
	switch {
	case ppm < FairFloor:
		return TierGood
	case ppm < PoorFloor:
		return TierFair
	case ppm < c.Threshold:
		return TierPoor
	default:
		return TierDangerous
	}
}
