package pose

import "testing"

// tensor builds a channel-major pose output with the given number of anchors.
func tensor(anchors int) []float32 {
	return make([]float32, yoloPoseChannels*anchors)
}

func setKeypoint(data []float32, anchors, anchor, k int, x, y, conf float32) {
	base := 5 + k*3
	data[base*anchors+anchor] = x
	data[(base+1)*anchors+anchor] = y
	data[(base+2)*anchors+anchor] = conf
}

// TestDecodeYOLOPosePicksBestAnchor verifies the highest-scoring person is
// returned with normalized coordinates.
func TestDecodeYOLOPosePicksBestAnchor(t *testing.T) {
	const anchors = 3
	data := tensor(anchors)
	data[4*anchors+0] = 0.6
	data[4*anchors+2] = 0.9

	setKeypoint(data, anchors, 0, 13, 100, 100, 0.9)
	setKeypoint(data, anchors, 2, 13, 320, 480, 0.8)

	lms, err := DecodeYOLOPose(data, yoloPoseChannels, anchors, 0.5, 640, 640)
	if err != nil {
		t.Fatalf("DecodeYOLOPose: %v", err)
	}
	knee, ok := lms[LeftKnee]
	if !ok {
		t.Fatal("LEFT_KNEE missing")
	}
	if knee.X != 0.5 || knee.Y != 0.75 {
		t.Errorf("knee = (%v, %v), want (0.5, 0.75)", knee.X, knee.Y)
	}
	if knee.Visibility < 0.79 || knee.Visibility > 0.81 {
		t.Errorf("visibility = %v, want 0.8", knee.Visibility)
	}
	if len(lms) != 13 {
		t.Errorf("len(landmarks) = %d, want 13", len(lms))
	}
}

// TestDecodeYOLOPoseNoPerson verifies nil landmarks below the score floor.
func TestDecodeYOLOPoseNoPerson(t *testing.T) {
	const anchors = 4
	data := tensor(anchors)
	data[4*anchors+1] = 0.2

	lms, err := DecodeYOLOPose(data, yoloPoseChannels, anchors, 0.5, 640, 640)
	if err != nil {
		t.Fatalf("DecodeYOLOPose: %v", err)
	}
	if lms != nil {
		t.Errorf("landmarks = %v, want nil", lms)
	}
}

// TestDecodeYOLOPoseShape verifies malformed tensors are rejected.
func TestDecodeYOLOPoseShape(t *testing.T) {
	if _, err := DecodeYOLOPose(make([]float32, 84*10), 84, 10, 0.5, 640, 640); err == nil {
		t.Error("expected error for detection-model channel count")
	}
	if _, err := DecodeYOLOPose(make([]float32, 10), yoloPoseChannels, 10, 0.5, 640, 640); err == nil {
		t.Error("expected error for short buffer")
	}
}
