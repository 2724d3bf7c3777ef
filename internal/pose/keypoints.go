package pose

import "fmt"

// COCOKeypoints is the keypoint order of COCO-trained pose models. Ears and
// eyes are not tracked and map to "".
var COCOKeypoints = [17]string{
	Nose, "", "", "", "",
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// yoloPoseChannels is 4 box values, 1 person score, 17 keypoints of (x, y, conf).
const yoloPoseChannels = 4 + 1 + len(COCOKeypoints)*3

// DecodeYOLOPose picks the highest-scoring person from a YOLOv8-pose output
// tensor laid out channel-major ([channels][anchors]) and returns its
// keypoints normalized by the network input size. It returns nil when no
// anchor scores at least minScore.
func DecodeYOLOPose(data []float32, channels, anchors int, minScore float32, inputW, inputH int) (Landmarks, error) {
	if channels != yoloPoseChannels {
		return nil, fmt.Errorf("unexpected pose output: %d channels, want %d", channels, yoloPoseChannels)
	}
	if len(data) < channels*anchors {
		return nil, fmt.Errorf("pose output too short: %d values for %dx%d", len(data), channels, anchors)
	}

	best, bestScore := -1, minScore
	for i := 0; i < anchors; i++ {
		if s := data[4*anchors+i]; s >= bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return nil, nil
	}

	lms := make(Landmarks, 13)
	for k, name := range COCOKeypoints {
		if name == "" {
			continue
		}
		base := 5 + k*3
		lms[name] = Landmark{
			X:          float64(data[base*anchors+best]) / float64(inputW),
			Y:          float64(data[(base+1)*anchors+best]) / float64(inputH),
			Visibility: float64(data[(base+2)*anchors+best]),
		}
	}
	return lms, nil
}
