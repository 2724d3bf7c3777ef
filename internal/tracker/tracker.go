// Package tracker counts exercise repetitions from a stream of joint angles.
//
// A Tracker is a five-state machine (IDLE, GOING_DOWN, DOWN, GOING_UP, UP)
// configured by a Profile. It is owned by a single streaming session and is
// not safe for concurrent use.
package tracker

import "log/slog"

// Update is the tracker snapshot returned after every reading.
type Update struct {
	State        State    `json:"state"`
	Phase        string   `json:"phase"`
	RepCount     int      `json:"rep_count"`
	CompletedRep bool     `json:"completed_rep"`
	RepScore     *float64 `json:"rep_score,omitempty"`
	AvgFormScore *float64 `json:"avg_form_score"`
	Feedback     []string `json:"feedback"`
}

// Tracker is the rep-counting state machine for one exercise.
type Tracker struct {
	kind    string
	profile Profile
	log     *slog.Logger

	state      State
	repCount   int
	formScores []float64
	repAngles  []float64 // samples since the last return to IDLE
	prevAngle  *float64
}

// New creates a tracker in the IDLE state.
func New(kind string, profile Profile, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		kind:    kind,
		profile: profile,
		log:     log,
		state:   StateIdle,
	}
}

// Kind returns the exercise this tracker counts.
func (t *Tracker) Kind() string { return t.kind }

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// RepCount returns the number of completed reps.
func (t *Tracker) RepCount() int { return t.repCount }

// FormScores returns a copy of the per-rep scores, in rep order.
func (t *Tracker) FormScores() []float64 {
	return append([]float64(nil), t.formScores...)
}

// AvgFormScore returns the mean form score, or nil before the first rep.
func (t *Tracker) AvgFormScore() *float64 {
	return AverageScore(t.formScores)
}

// Update feeds one reading. A nil angle (no pose on this frame) leaves the
// machine untouched and returns the current snapshot.
func (t *Tracker) Update(angle *float64) Update {
	if angle == nil {
		return t.snapshot(false, nil, nil)
	}
	a := *angle
	t.repAngles = append(t.repAngles, a)

	var (
		completed bool
		repScore  *float64
	)
	from := t.state
	th := t.profile.Thresholds()
	sign := th.Direction.sign()

	// delta is positive when moving back towards rest.
	var delta float64
	hasPrev := t.prevAngle != nil
	if hasPrev {
		delta = sign * (a - *t.prevAngle)
	}

	switch t.state {
	case StateIdle:
		if hasPrev && delta < -directionBand {
			t.state = StateGoingDown
		}
	case StateGoingDown:
		if sign*a <= sign*th.Down {
			t.state = StateDown
		} else if hasPrev && delta > reversalBand {
			t.state = StateIdle
			t.repAngles = t.repAngles[:0]
		}
	case StateDown:
		if hasPrev && delta > directionBand {
			t.state = StateGoingUp
		}
	case StateGoingUp:
		if sign*a >= sign*th.Up {
			t.state = StateUp
		}
	case StateUp:
		score := t.profile.ScoreRep(t.repAngles)
		t.repCount++
		t.formScores = append(t.formScores, score)
		t.repAngles = t.repAngles[:0]
		t.state = StateIdle
		completed = true
		repScore = &score
	}

	t.prevAngle = &a

	if from != t.state {
		t.log.Debug("state transition",
			"exercise", t.kind,
			"from", from,
			"to", t.state,
			"angle", a,
		)
	}

	return t.snapshot(completed, repScore, t.profile.Feedback(a, t.state))
}

// Reset returns the tracker to its initial state.
func (t *Tracker) Reset() {
	t.state = StateIdle
	t.repCount = 0
	t.formScores = nil
	t.repAngles = nil
	t.prevAngle = nil
}

func (t *Tracker) snapshot(completed bool, repScore *float64, feedback []string) Update {
	if feedback == nil {
		feedback = []string{}
	}
	return Update{
		State:        t.state,
		Phase:        t.state.Phase(),
		RepCount:     t.repCount,
		CompletedRep: completed,
		RepScore:     repScore,
		AvgFormScore: t.AvgFormScore(),
		Feedback:     feedback,
	}
}

// AverageScore returns the mean of scores rounded to one decimal, or nil
// when there are none.
func AverageScore(scores []float64) *float64 {
	if len(scores) == 0 {
		return nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	avg := roundTenth(sum / float64(len(scores)))
	return &avg
}
