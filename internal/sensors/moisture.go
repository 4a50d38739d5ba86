package sensors

// MoistureLevel is how a moisture reading is presented to the user.
type MoistureLevel int

const (
	MoistureLow MoistureLevel = iota
	MoistureGood
	MoistureOptimal
)

const (
	lowBelow     = 40
	optimalAbove = 70
)

// Classify maps a reading to a level. Both bounds are strict,
// so 40 and 70 are still Good.
func Classify(moisture int) MoistureLevel {
	switch {
	case moisture < lowBelow:
		return MoistureLow
	case moisture > optimalAbove:
		return MoistureOptimal
	default:
		return MoistureGood
	}
}

func (l MoistureLevel) String() string {
	switch l {
	case MoistureLow:
		return "low"
	case MoistureGood:
		return "good"
	case MoistureOptimal:
		return "optimal"
	default:
		return "unknown"
	}
}

// Advice is the hint shown next to a reading.
func (l MoistureLevel) Advice() string {
	switch l {
	case MoistureLow:
		return "Low moisture - Consider watering"
	case MoistureOptimal:
		return "Optimal moisture level"
	default:
		return "Good moisture level"
	}
}
