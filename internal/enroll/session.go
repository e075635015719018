// Package enroll drives guided enrollment: a session walks the subject
// through the required pose sequence, captures a face crop per pose and
// finalizes into an employee record with embeddings.
package enroll

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/edgekit/facegate/internal/headpose"
)

const (
	// captureMargin widens the detected face box before cropping.
	captureMargin = 50
	// captureMaxEdge bounds the stored crop's longer edge.
	captureMaxEdge = 320
)

// Status classifies the outcome of one processed frame.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusNoPose    Status = "no_pose"
	StatusAdjusting Status = "adjusting"
	StatusHolding   Status = "holding"
	StatusCaptured  Status = "captured"

	// Detector-level outcomes reported by the HTTP layer before a frame
	// reaches the session. They never touch the stability counter.
	StatusNoFace        Status = "no_face"
	StatusMultipleFaces Status = "multiple_faces"
)

// StepResult is the guidance returned for one processed frame.
type StepResult struct {
	Status       Status          `json:"status"`
	Target       headpose.Target `json:"target,omitempty"`
	Guidance     string          `json:"guidance"`
	Pose         headpose.Pose   `json:"pose"`
	FramesLeft   int             `json:"frames_left,omitempty"`
	CapturedPose headpose.Target `json:"captured_pose,omitempty"`
	Progress     Progress        `json:"progress"`
}

// Progress describes how far a session has come.
type Progress struct {
	SessionID     string            `json:"session_id"`
	EmployeeCode  string            `json:"employee_code"`
	CurrentTarget headpose.Target   `json:"current_target,omitempty"`
	Captured      []headpose.Target `json:"captured"`
	Remaining     []headpose.Target `json:"remaining"`
	Percent       int               `json:"percent"`
	Complete      bool              `json:"complete"`
}

// Session tracks one employee's guided capture. All state transitions run
// under the session lock; frames arrive from concurrent HTTP requests.
type Session struct {
	ID           string
	EmployeeCode string
	FullName     string
	CreatedAt    time.Time

	dir     string
	targets headpose.TargetSet

	mu        sync.Mutex
	targetIdx int
	stable    int
	captured  map[headpose.Target]string
}

func newSession(employeeCode, fullName, dir string, targets headpose.TargetSet) *Session {
	return &Session{
		ID:           uuid.New().String(),
		EmployeeCode: employeeCode,
		FullName:     fullName,
		CreatedAt:    time.Now(),
		dir:          dir,
		targets:      targets,
		captured:     make(map[headpose.Target]string),
	}
}

// ProcessFrame advances the session by one frame. The bbox and landmarks
// come from the embedding engine's detection for this frame. A frame that
// completes the hold captures a face crop to disk; the returned result
// carries the guidance for the subject.
func (s *Session) ProcessFrame(img image.Image, bbox [4]float64, landmarks [][2]float64) (StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completeLocked() {
		return StepResult{
			Status:   StatusCompleted,
			Guidance: "Registration complete!",
			Progress: s.progressLocked(),
		}, nil
	}

	target := s.targets.Order[s.targetIdx]
	bounds := img.Bounds()

	pose := headpose.Estimate(landmarks, bounds.Dx(), bounds.Dy())
	if !pose.OK {
		return StepResult{
			Status:   StatusNoPose,
			Target:   target,
			Guidance: "Face the camera clearly",
			Progress: s.progressLocked(),
		}, nil
	}

	ok, guidance := s.targets.Acceptable(pose.Yaw, pose.Pitch, pose.Roll, target)
	if !ok {
		s.stable = 0
		return StepResult{
			Status:   StatusAdjusting,
			Target:   target,
			Guidance: guidance,
			Pose:     pose,
			Progress: s.progressLocked(),
		}, nil
	}

	s.stable++
	if s.stable < s.targets.HoldFrames {
		left := s.targets.HoldFrames - s.stable
		return StepResult{
			Status:     StatusHolding,
			Target:     target,
			Guidance:   fmt.Sprintf("%s (%d frames left)", guidance, left),
			Pose:       pose,
			FramesLeft: left,
			Progress:   s.progressLocked(),
		}, nil
	}

	path, err := s.saveCapture(img, bbox, target)
	if err != nil {
		s.stable = 0
		return StepResult{}, fmt.Errorf("save %s capture: %w", target, err)
	}

	s.captured[target] = path
	s.stable = 0
	s.targetIdx++

	return StepResult{
		Status:       StatusCaptured,
		Guidance:     fmt.Sprintf("Captured %s pose!", target),
		Pose:         pose,
		CapturedPose: target,
		Progress:     s.progressLocked(),
	}, nil
}

// Progress reports the session state without advancing it.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// IsComplete reports whether every required pose has a capture.
func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked()
}

// Captures returns the pose to capture-path mapping.
func (s *Session) Captures() map[headpose.Target]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[headpose.Target]string, len(s.captured))
	for pose, path := range s.captured {
		out[pose] = path
	}
	return out
}

func (s *Session) completeLocked() bool {
	return len(s.captured) >= len(s.targets.Order)
}

func (s *Session) progressLocked() Progress {
	p := Progress{
		SessionID:    s.ID,
		EmployeeCode: s.EmployeeCode,
		Captured:     make([]headpose.Target, 0, len(s.captured)),
		Remaining:    make([]headpose.Target, 0, len(s.targets.Order)-len(s.captured)),
		Complete:     s.completeLocked(),
	}
	for _, target := range s.targets.Order {
		if _, ok := s.captured[target]; ok {
			p.Captured = append(p.Captured, target)
		} else {
			p.Remaining = append(p.Remaining, target)
		}
	}
	if !p.Complete {
		p.CurrentTarget = s.targets.Order[s.targetIdx]
	}
	if len(s.targets.Order) > 0 {
		p.Percent = len(s.captured) * 100 / len(s.targets.Order)
	}
	return p
}

// saveCapture crops the frame around the face box with a margin, scales it
// down and writes it as the pose's capture file.
func (s *Session) saveCapture(img image.Image, bbox [4]float64, target headpose.Target) (string, error) {
	crop := cropWithMargin(img, bbox, captureMargin)
	data, err := encodeJPEGResized(crop, captureMaxEdge)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}

	path := filepath.Join(s.dir, string(target)+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write capture file: %w", err)
	}
	return path, nil
}

// cropWithMargin cuts the face region plus margin out of the frame,
// clamped to the image bounds.
func cropWithMargin(img image.Image, bbox [4]float64, margin int) image.Image {
	bounds := img.Bounds()

	rect := image.Rect(
		int(bbox[0])-margin,
		int(bbox[1])-margin,
		int(bbox[2])+margin,
		int(bbox[3])+margin,
	).Intersect(bounds)
	if rect.Empty() {
		rect = bounds
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

// encodeJPEGResized scales the image down to maxEdge on its longer side
// (never up) and encodes it as JPEG.
func encodeJPEGResized(img image.Image, maxEdge int) ([]byte, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > maxEdge || height > maxEdge {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxEdge
			newHeight = int(float64(height) * float64(maxEdge) / float64(width))
		} else {
			newHeight = maxEdge
			newWidth = int(float64(width) * float64(maxEdge) / float64(height))
		}

		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode capture: %w", err)
	}
	return buf.Bytes(), nil
}
