// Package headpose turns 2-D facial landmarks into head orientation angles
// and classifies them against the guided-capture pose targets. The solve is
// a perspective pose fit of six landmark points against a generic 3-D face
// model; it never returns an error, only a success flag, because a frame
// with an unresolvable pose is routine rather than exceptional.
package headpose

import "math"

// Pose is the estimated head orientation in degrees. Yaw is negative when
// the head turns left, pitch is positive when it tilts up. OK is false when
// the landmarks were unusable or the geometric solve failed; the angles are
// zero in that case.
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	OK    bool    `json:"ok"`
}

// Generic 3-D face model in millimetres, nose tip at the origin:
// nose, chin, left eye outer corner, right eye outer corner, left mouth
// corner, right mouth corner.
var modelPoints = []vec3{
	{0.0, 0.0, 0.0},
	{0.0, -330.0, -65.0},
	{-225.0, 170.0, -135.0},
	{225.0, 170.0, -135.0},
	{-150.0, -150.0, -125.0},
	{150.0, -150.0, -125.0},
}

// Estimate computes yaw/pitch/roll from a landmark set. Five-point sets
// (left eye, right eye, nose, left mouth, right mouth) reuse the nose as
// the chin approximation; 68-point and larger sets use the dlib-style
// indices; anything else with at least six points uses the first six.
func Estimate(landmarks [][2]float64, imageWidth, imageHeight int) Pose {
	if imageWidth <= 0 || imageHeight <= 0 {
		return Pose{}
	}

	imagePoints, ok := selectImagePoints(landmarks)
	if !ok {
		return Pose{}
	}

	fx := float64(imageWidth)
	cx := float64(imageWidth) / 2
	cy := float64(imageHeight) / 2

	rvec, _, ok := solvePnP(modelPoints, imagePoints, fx, cx, cy)
	if !ok {
		return Pose{}
	}

	yaw, pitch, roll := eulerAngles(rodrigues(rvec))
	if math.IsNaN(yaw) || math.IsNaN(pitch) || math.IsNaN(roll) {
		return Pose{}
	}

	return Pose{Yaw: yaw, Pitch: pitch, Roll: roll, OK: true}
}

// selectImagePoints picks the six observation points matching modelPoints.
func selectImagePoints(landmarks [][2]float64) ([][2]float64, bool) {
	var idx []int
	switch {
	case len(landmarks) == 5:
		idx = []int{2, 2, 0, 1, 3, 4}
	case len(landmarks) >= 68:
		idx = []int{30, 8, 36, 45, 48, 54}
	case len(landmarks) >= 6:
		idx = []int{0, 1, 2, 3, 4, 5}
	default:
		return nil, false
	}

	points := make([][2]float64, len(idx))
	for i, j := range idx {
		points[i] = landmarks[j]
	}
	return points, true
}
