package pose

import "math"

// PrimaryKey is the AngleSet entry that drives the rep state machine.
const PrimaryKey = "primary"

// Joint names an angle measured at vertex B between landmarks A and C.
type Joint struct {
	Name string
	A    string
	B    string
	C    string
}

// AngleSet holds named joint angles in degrees. A nil value means the angle
// could not be measured on this frame.
type AngleSet map[string]*float64

// Primary returns the primary angle, or nil when absent.
func (s AngleSet) Primary() *float64 {
	return s[PrimaryKey]
}

// CalculateAngle returns the angle at b formed by the segments b-a and b-c,
// in degrees (0-180) rounded to one decimal.
func CalculateAngle(ax, ay, bx, by, cx, cy float64) float64 {
	bax, bay := ax-bx, ay-by
	bcx, bcy := cx-bx, cy-by

	dot := bax*bcx + bay*bcy
	norm := math.Hypot(bax, bay)*math.Hypot(bcx, bcy) + 1e-6
	cosine := math.Max(-1, math.Min(1, dot/norm))

	return round1(math.Acos(cosine) * 180 / math.Pi)
}

// Angle measures the angle at b. It returns nil if any of the three landmarks
// is missing or below MinVisibility.
func (l Landmarks) Angle(a, b, c string) *float64 {
	pts := [3]Landmark{}
	for i, name := range [3]string{a, b, c} {
		lm, ok := l[name]
		if !ok || lm.Visibility < MinVisibility {
			return nil
		}
		pts[i] = lm
	}
	v := CalculateAngle(pts[0].X, pts[0].Y, pts[1].X, pts[1].Y, pts[2].X, pts[2].Y)
	return &v
}

// Angles measures every joint and sets the primary angle to the mean of the
// measurable ones. Without landmarks it returns an empty set.
func Angles(l Landmarks, joints []Joint) AngleSet {
	set := AngleSet{}
	if l == nil {
		return set
	}

	var sum float64
	var n int
	for _, j := range joints {
		v := l.Angle(j.A, j.B, j.C)
		set[j.Name] = v
		if v != nil {
			sum += *v
			n++
		}
	}

	if n > 0 {
		p := round1(sum / float64(n))
		set[PrimaryKey] = &p
	} else {
		set[PrimaryKey] = nil
	}
	return set
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
