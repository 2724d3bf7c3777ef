package tracker

import "github.com/claude/reptrack/internal/pose"

// Exercise kinds shipped with the default registry.
const (
	Squat         = "squat"
	BicepCurl     = "bicep_curl"
	ShoulderPress = "shoulder_press"
)

// DefaultEntries returns the built-in exercises. Adding an exercise means
// appending one Entry here.
func DefaultEntries() []Entry {
	return []Entry{
		{
			Kind: Squat,
			Info: Info{
				Name:          Squat,
				DisplayName:   "Squat",
				Description:   "Track knee angle for proper squat depth and form",
				TargetMuscles: []string{"quadriceps", "glutes", "hamstrings"},
				TrackedAngle:  "knee",
			},
			Joints: []pose.Joint{
				{Name: "left_knee", A: pose.LeftHip, B: pose.LeftKnee, C: pose.LeftAnkle},
				{Name: "right_knee", A: pose.RightHip, B: pose.RightKnee, C: pose.RightAnkle},
			},
			// Standing knee ~170°, parallel ~90°.
			Profile: DepthProfile{
				Limits:           Thresholds{Down: 90, Up: 160, Direction: Descending},
				ShallowAbove:     100,
				ShallowPenalty:   1.5,
				DeepBelow:        50,
				DeepPenalty:      1.0,
				WobbleMinSamples: 5,
				WobbleMeanDelta:  8,
				WobblePenalty:    10,
				CueDeeperAbove:   95,
			},
		},
		{
			Kind: BicepCurl,
			Info: Info{
				Name:          BicepCurl,
				DisplayName:   "Bicep Curl",
				Description:   "Track elbow angle for full range of motion curls",
				TargetMuscles: []string{"biceps", "forearms"},
				TrackedAngle:  "elbow",
			},
			Joints: []pose.Joint{
				{Name: "left_elbow", A: pose.LeftShoulder, B: pose.LeftElbow, C: pose.LeftWrist},
				{Name: "right_elbow", A: pose.RightShoulder, B: pose.RightElbow, C: pose.RightWrist},
			},
			// DOWN is the top of the curl (elbow closed), UP is the arm extended.
			Profile: RangeProfile{
				Limits:        Thresholds{Down: 40, Up: 160, Direction: Descending},
				MinRange:      100,
				RangePenalty:  0.5,
				CloseBelow:    50,
				ClosePenalty:  1.0,
				ExtendAbove:   150,
				ExtendPenalty: 0.5,
			},
		},
		{
			Kind: ShoulderPress,
			Info: Info{
				Name:          ShoulderPress,
				DisplayName:   "Shoulder Press",
				Description:   "Track shoulder angle for overhead press lockout",
				TargetMuscles: []string{"deltoids", "triceps", "trapezius"},
				TrackedAngle:  "shoulder",
			},
			Joints: []pose.Joint{
				{Name: "left_shoulder", A: pose.LeftHip, B: pose.LeftShoulder, C: pose.LeftElbow},
				{Name: "right_shoulder", A: pose.RightHip, B: pose.RightShoulder, C: pose.RightElbow},
			},
			Profile: LockoutProfile{
				Limits:         Thresholds{Down: 90, Up: 160, Direction: Descending},
				LockoutAbove:   155,
				LockoutPenalty: 1.0,
				StartBelow:     100,
				StartPenalty:   0.5,
			},
		},
	}
}
