package tracker

// State is the wire label of a tracker's position in the rep cycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateGoingDown State = "GOING_DOWN"
	StateDown      State = "DOWN"
	StateGoingUp   State = "GOING_UP"
	StateUp        State = "UP"
)

// Phase returns the motion-neutral name of the state. GOING_DOWN always means
// "moving away from rest towards the first threshold", whichever way the
// joint angle changes for the exercise.
func (s State) Phase() string {
	switch s {
	case StateGoingDown:
		return "CONTRACTING"
	case StateDown:
		return "CONTRACTED"
	case StateGoingUp:
		return "EXTENDING"
	case StateUp:
		return "EXTENDED"
	default:
		return "REST"
	}
}
