package headpose

import (
	"math"
	"testing"
)

// projectFace renders the model points through a known pose so tests can
// compare the recovered angles against the truth. The returned landmarks
// are in model-point order (nose, chin, eyes, mouth corners).
func projectFace(t *testing.T, yaw, pitch, roll float64, width, height int) [][2]float64 {
	t.Helper()

	const rad = math.Pi / 180
	R := matMul(
		matMul(rodrigues(vec3{0, 0, yaw * rad}), rodrigues(vec3{0, pitch * rad, 0})),
		rodrigues(vec3{roll * rad, 0, 0}),
	)
	tvec := vec3{0, 0, 900}

	landmarks := make([][2]float64, len(modelPoints))
	for i, p := range modelPoints {
		u, v, ok := projectPoint(R, tvec, p, float64(width), float64(width)/2, float64(height)/2)
		if !ok {
			t.Fatalf("model point %d projected behind the camera", i)
		}
		landmarks[i] = [2]float64{u, v}
	}
	return landmarks
}

func TestEstimateRecoversKnownPose(t *testing.T) {
	const tolerance = 3.0

	tests := []struct {
		name  string
		yaw   float64
		pitch float64
		roll  float64
	}{
		{name: "frontal", yaw: 0, pitch: 0, roll: 0},
		{name: "turned left", yaw: -35, pitch: 0, roll: 0},
		{name: "turned right", yaw: 35, pitch: 0, roll: 0},
		{name: "tilted up", yaw: 0, pitch: 20, roll: 0},
		{name: "tilted down", yaw: 0, pitch: -20, roll: 0},
		{name: "rolled", yaw: 0, pitch: 0, roll: 10},
		{name: "combined", yaw: 12, pitch: -8, roll: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			landmarks := projectFace(t, tt.yaw, tt.pitch, tt.roll, 640, 480)

			pose := Estimate(landmarks, 640, 480)
			if !pose.OK {
				t.Fatal("expected pose to resolve")
			}
			if math.Abs(pose.Yaw-tt.yaw) > tolerance {
				t.Errorf("expected yaw %.1f, got %.1f", tt.yaw, pose.Yaw)
			}
			if math.Abs(pose.Pitch-tt.pitch) > tolerance {
				t.Errorf("expected pitch %.1f, got %.1f", tt.pitch, pose.Pitch)
			}
			if math.Abs(pose.Roll-tt.roll) > tolerance {
				t.Errorf("expected roll %.1f, got %.1f", tt.roll, pose.Roll)
			}
		})
	}
}

func TestEstimateFivePointLayout(t *testing.T) {
	// The detector's 5-point layout: left eye, right eye, nose tip, left
	// mouth corner, right mouth corner. The chin observation is missing, so
	// the solve reuses the nose and the pitch absorbs the model error; yaw
	// and roll stay usable.
	fivePoint := func(pts [][2]float64) [][2]float64 {
		return [][2]float64{pts[2], pts[3], pts[0], pts[4], pts[5]}
	}

	t.Run("frontal", func(t *testing.T) {
		pose := Estimate(fivePoint(projectFace(t, 0, 0, 0, 640, 480)), 640, 480)
		if !pose.OK {
			t.Fatal("expected pose to resolve")
		}
		if math.Abs(pose.Yaw) > 10 {
			t.Errorf("expected near-zero yaw, got %.1f", pose.Yaw)
		}
		if math.Abs(pose.Roll) > 10 {
			t.Errorf("expected near-zero roll, got %.1f", pose.Roll)
		}
	})

	t.Run("turned left keeps yaw sign", func(t *testing.T) {
		pose := Estimate(fivePoint(projectFace(t, -30, 0, 0, 640, 480)), 640, 480)
		if !pose.OK {
			t.Fatal("expected pose to resolve")
		}
		if pose.Yaw >= -5 {
			t.Errorf("expected clearly negative yaw, got %.1f", pose.Yaw)
		}
	})
}

func TestEstimateSixtyEightPointLayout(t *testing.T) {
	pts := projectFace(t, 0, 0, 0, 640, 480)

	// dlib-style indexing: 30 nose tip, 8 chin, 36/45 outer eye corners,
	// 48/54 mouth corners. The rest of the set is ignored.
	landmarks := make([][2]float64, 68)
	landmarks[30] = pts[0]
	landmarks[8] = pts[1]
	landmarks[36] = pts[2]
	landmarks[45] = pts[3]
	landmarks[48] = pts[4]
	landmarks[54] = pts[5]

	pose := Estimate(landmarks, 640, 480)
	if !pose.OK {
		t.Fatal("expected pose to resolve")
	}
	if math.Abs(pose.Yaw) > 3 || math.Abs(pose.Pitch) > 3 || math.Abs(pose.Roll) > 3 {
		t.Errorf("expected near-zero angles, got yaw %.1f pitch %.1f roll %.1f",
			pose.Yaw, pose.Pitch, pose.Roll)
	}
}

func TestEstimateRejectsBadInput(t *testing.T) {
	valid := projectFace(t, 0, 0, 0, 640, 480)

	tests := []struct {
		name      string
		landmarks [][2]float64
		width     int
		height    int
	}{
		{name: "too few landmarks", landmarks: valid[:4], width: 640, height: 480},
		{name: "no landmarks", landmarks: nil, width: 640, height: 480},
		{name: "zero width", landmarks: valid, width: 0, height: 480},
		{name: "zero height", landmarks: valid, width: 640, height: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pose := Estimate(tt.landmarks, tt.width, tt.height)
			if pose.OK {
				t.Error("expected pose estimation to fail")
			}
			if pose.Yaw != 0 || pose.Pitch != 0 || pose.Roll != 0 {
				t.Errorf("expected zero angles on failure, got %+v", pose)
			}
		})
	}
}
