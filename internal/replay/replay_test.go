package replay

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/claude/reptrack/internal/tracker"
)

var discard = slog.New(slog.DiscardHandler)

func values(readings []*float64) []any {
	out := make([]any, len(readings))
	for i, r := range readings {
		if r == nil {
			out[i] = nil
		} else {
			out[i] = *r
		}
	}
	return out
}

// TestParse verifies column selection, absent readings and comments.
func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []any
	}{
		{
			name: "single column",
			in:   "170\n165.5\n-\n\n80\n",
			want: []any{170.0, 165.5, nil, nil, 80.0},
		},
		{
			name: "header picks primary",
			in:   "frame,left_knee,primary\n1,171,170\n2,,\n3;90;91\n",
			want: []any{170.0, nil, 91.0},
		},
		{
			name: "header without primary uses first column",
			in:   "knee,hip\n150,20\n-,30\n",
			want: []any{150.0, nil},
		},
		{
			name: "comments skipped",
			in:   "# squat take 2\n170\n# midway\n160\n",
			want: []any{170.0, 160.0},
		},
		{
			name: "short row is absent",
			in:   "a,primary\n1\n",
			want: []any{nil},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.in))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			gv := values(got)
			if len(gv) != len(tt.want) {
				t.Fatalf("readings = %v, want %v", gv, tt.want)
			}
			for i := range gv {
				if gv[i] != tt.want[i] {
					t.Errorf("reading %d = %v, want %v", i, gv[i], tt.want[i])
				}
			}
		})
	}
}

// TestParseErrors verifies bad values report their line.
func TestParseErrors(t *testing.T) {
	for _, in := range []string{"170\nabc\n", "170\nNaN\n", "170\n+Inf\n"} {
		_, err := Parse(strings.NewReader(in))
		if err == nil || !strings.Contains(err.Error(), "line 2") {
			t.Errorf("Parse(%q) error = %v, want line 2", in, err)
		}
	}
}

// TestRunCountsReps verifies a replayed squat series yields its reps.
func TestRunCountsReps(t *testing.T) {
	in := strings.Repeat("170\n165\n130\n100\n80\n-\n85\n120\n150\n165\n170\n", 3)
	readings, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var updates int
	res, err := Run(tracker.NewDefaultRegistry(discard), "squat", readings, func(frame int, u tracker.Update) {
		updates++
		if frame != updates {
			t.Errorf("frame = %d, want %d", frame, updates)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Frames != 33 || updates != 33 {
		t.Errorf("frames = %d, updates = %d; want 33", res.Frames, updates)
	}
	if res.TotalReps != 3 || len(res.Reps) != 3 {
		t.Fatalf("reps = %d (%d details), want 3", res.TotalReps, len(res.Reps))
	}
	for i, r := range res.Reps {
		if r.RepNumber != i+1 {
			t.Errorf("rep %d number = %d", i, r.RepNumber)
		}
	}
	if res.AvgFormScore == nil {
		t.Error("avg form score missing")
	}
	if res.Final != tracker.StateIdle {
		t.Errorf("final state = %q, want %q", res.Final, tracker.StateIdle)
	}
}

// TestRunNoReadings verifies an empty replay is a clean zero result.
func TestRunNoReadings(t *testing.T) {
	res, err := Run(tracker.NewDefaultRegistry(discard), "bicep_curl", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalReps != 0 || res.AvgFormScore != nil || res.Reps == nil || len(res.Reps) != 0 {
		t.Errorf("result = %+v", res)
	}
}

// TestRunUnknownExercise verifies the registry error is passed through.
func TestRunUnknownExercise(t *testing.T) {
	_, err := Run(tracker.NewDefaultRegistry(discard), "yoga", nil, nil)
	var unknown *tracker.UnknownExerciseError
	if !errors.As(err, &unknown) {
		t.Errorf("error = %v, want *tracker.UnknownExerciseError", err)
	}
}
