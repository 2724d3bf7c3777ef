// Package pose defines the frame-processing collaborator used by the rep
// tracker: body landmarks extracted from an image and the joint angles
// derived from them. Extraction backends live in sub-packages.
package pose

// Landmark names produced by every Processor. Coordinates are normalized
// to the image (0-1), visibility is the detector's confidence (0-1).
const (
	Nose          = "NOSE"
	LeftShoulder  = "LEFT_SHOULDER"
	RightShoulder = "RIGHT_SHOULDER"
	LeftElbow     = "LEFT_ELBOW"
	RightElbow    = "RIGHT_ELBOW"
	LeftWrist     = "LEFT_WRIST"
	RightWrist    = "RIGHT_WRIST"
	LeftHip       = "LEFT_HIP"
	RightHip      = "RIGHT_HIP"
	LeftKnee      = "LEFT_KNEE"
	RightKnee     = "RIGHT_KNEE"
	LeftAnkle     = "LEFT_ANKLE"
	RightAnkle    = "RIGHT_ANKLE"
)

// MinVisibility is the confidence below which a landmark is ignored.
const MinVisibility = 0.3

// Landmark is a single detected body point.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Landmarks maps landmark names to positions. A nil map means no pose was detected.
type Landmarks map[string]Landmark

// Processor extracts landmarks from one encoded image frame.
type Processor interface {
	// Extract returns nil landmarks (and a nil error) when no person is found.
	Extract(frame []byte) (Landmarks, error)

	// Close releases resources
	Close() error
}

// Factory creates one Processor per streaming session.
type Factory func() (Processor, error)
