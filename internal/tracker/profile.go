package tracker

import "math"

// Hysteresis bands, in degrees. They are shared by every exercise.
const (
	directionBand = 2.0 // minimum change that counts as moving
	reversalBand  = 5.0 // rise while descending that abandons the attempt
)

// emptyRepScore is the score given to a rep with no recorded samples.
const emptyRepScore = 50.0

// Direction is the way the primary angle moves when leaving rest.
type Direction int

const (
	// Descending: the angle falls towards Down, then rises back to Up.
	Descending Direction = iota
	// Ascending mirrors every comparison: the angle rises towards Down and
	// falls back to Up.
	Ascending
)

func (d Direction) sign() float64 {
	if d == Ascending {
		return -1
	}
	return 1
}

// Thresholds configure when the machine enters DOWN and UP.
type Thresholds struct {
	Down      float64
	Up        float64
	Direction Direction
}

// Profile is the per-exercise configuration of a Tracker. The set of
// implementations is closed: DepthProfile, RangeProfile and LockoutProfile.
type Profile interface {
	Thresholds() Thresholds
	// ScoreRep rates one completed rep from its angle samples (0-100).
	ScoreRep(angles []float64) float64
	// Feedback returns coaching hints for the current angle and state.
	Feedback(angle float64, state State) []string

	profile()
}

// DepthProfile scores flexion depth and steadiness (squat-style).
type DepthProfile struct {
	Limits Thresholds

	ShallowAbove   float64 // minimum angle above this is too shallow
	ShallowPenalty float64 // per degree
	DeepBelow      float64 // minimum angle below this is too deep
	DeepPenalty    float64 // per degree

	WobbleMinSamples int     // wobble is only checked on longer reps
	WobbleMeanDelta  float64 // mean absolute sample delta above this is wobble
	WobblePenalty    float64 // fixed deduction

	CueDeeperAbove float64 // feedback at the bottom
}

func (DepthProfile) profile() {}

func (p DepthProfile) Thresholds() Thresholds { return p.Limits }

func (p DepthProfile) ScoreRep(angles []float64) float64 {
	if len(angles) == 0 {
		return emptyRepScore
	}
	lo, _ := minMax(angles)
	score := 100.0

	if lo > p.ShallowAbove {
		score -= (lo - p.ShallowAbove) * p.ShallowPenalty
	} else if lo < p.DeepBelow {
		score -= (p.DeepBelow - lo) * p.DeepPenalty
	}

	if len(angles) > p.WobbleMinSamples {
		var total float64
		for i := 1; i < len(angles); i++ {
			total += math.Abs(angles[i] - angles[i-1])
		}
		if total/float64(len(angles)-1) > p.WobbleMeanDelta {
			score -= p.WobblePenalty
		}
	}

	return clampScore(score)
}

func (p DepthProfile) Feedback(angle float64, state State) []string {
	switch state {
	case StateDown:
		switch {
		case angle > p.CueDeeperAbove:
			return []string{"Go deeper, aim for a 90° knee angle"}
		case angle < p.DeepBelow:
			return []string{"Careful, you're going too deep"}
		default:
			return []string{"Good depth!"}
		}
	case StateGoingDown:
		return []string{"Control the descent"}
	case StateUp:
		return []string{"Great rep!"}
	}
	return nil
}

// RangeProfile scores full range of motion (curl-style).
type RangeProfile struct {
	Limits Thresholds

	MinRange      float64 // max-min below this is a partial rep
	RangePenalty  float64
	CloseBelow    float64 // minimum angle must reach this
	ClosePenalty  float64
	ExtendAbove   float64 // maximum angle must reach this
	ExtendPenalty float64
}

func (RangeProfile) profile() {}

func (p RangeProfile) Thresholds() Thresholds { return p.Limits }

func (p RangeProfile) ScoreRep(angles []float64) float64 {
	if len(angles) == 0 {
		return emptyRepScore
	}
	lo, hi := minMax(angles)
	score := 100.0

	if rom := hi - lo; rom < p.MinRange {
		score -= (p.MinRange - rom) * p.RangePenalty
	}
	if lo > p.CloseBelow {
		score -= (lo - p.CloseBelow) * p.ClosePenalty
	}
	if hi < p.ExtendAbove {
		score -= (p.ExtendAbove - hi) * p.ExtendPenalty
	}

	return clampScore(score)
}

func (p RangeProfile) Feedback(angle float64, state State) []string {
	switch state {
	case StateDown:
		if angle > p.CloseBelow {
			return []string{"Curl higher, squeeze at the top"}
		}
		return []string{"Good curl!"}
	case StateGoingUp:
		return []string{"Extend fully, control the negative"}
	case StateUp:
		return []string{"Great rep!"}
	}
	return nil
}

// LockoutProfile scores reaching full extension from a low start (press-style).
type LockoutProfile struct {
	Limits Thresholds

	LockoutAbove   float64 // maximum angle must reach this
	LockoutPenalty float64
	StartBelow     float64 // minimum angle must get below this
	StartPenalty   float64
}

func (LockoutProfile) profile() {}

func (p LockoutProfile) Thresholds() Thresholds { return p.Limits }

func (p LockoutProfile) ScoreRep(angles []float64) float64 {
	if len(angles) == 0 {
		return emptyRepScore
	}
	lo, hi := minMax(angles)
	score := 100.0

	if hi < p.LockoutAbove {
		score -= (p.LockoutAbove - hi) * p.LockoutPenalty
	}
	if lo > p.StartBelow {
		score -= (lo - p.StartBelow) * p.StartPenalty
	}

	return clampScore(score)
}

func (p LockoutProfile) Feedback(angle float64, state State) []string {
	switch state {
	case StateUp:
		if angle < p.LockoutAbove {
			return []string{"Press higher, full lockout"}
		}
		return []string{"Great lockout!"}
	case StateDown:
		return []string{"Good starting position"}
	case StateGoingUp:
		return []string{"Drive it up!"}
	}
	return nil
}

func minMax(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// clampScore rounds to one decimal and bounds the result to [0, 100].
func clampScore(score float64) float64 {
	return math.Max(0, math.Min(100, roundTenth(score)))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
