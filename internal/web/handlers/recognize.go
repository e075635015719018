package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/edgekit/facegate/internal/attendance"
	"github.com/edgekit/facegate/internal/match"
	"github.com/edgekit/facegate/internal/pipeline"
	"github.com/edgekit/facegate/internal/store"
)

// RecognitionHandler handles the single-shot recognize endpoint.
type RecognitionHandler struct {
	detector      Detector
	engine        *match.Engine
	tracker       *attendance.Tracker
	employees     store.EmployeeStore
	threshold     float64
	allowFallback bool
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(detector Detector, engine *match.Engine, tracker *attendance.Tracker, employees store.EmployeeStore, threshold float64, allowFallback bool) *RecognitionHandler {
	return &RecognitionHandler{
		detector:      detector,
		engine:        engine,
		tracker:       tracker,
		employees:     employees,
		threshold:     threshold,
		allowFallback: allowFallback,
	}
}

type attendanceAction struct {
	EmployeeCode string `json:"employee_code"`
	Action       string `json:"action"`
	WorkDate     string `json:"work_date"`
}

type recognizeResponse struct {
	FacesCount int                  `json:"faces_count"`
	Faces      []pipeline.FaceMatch `json:"faces"`
	ProcessMS  float64              `json:"process_ms"`
	At         time.Time            `json:"at"`
	Attendance []attendanceAction   `json:"attendance,omitempty"`
}

// Recognize matches every face in an uploaded image against the enrolled
// identities. With ?attendance=1 each accepted match also records an
// attendance event.
func (h *RecognitionHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	img, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	threshold := h.threshold
	if s := r.URL.Query().Get("threshold"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f <= 0 || f > 1 {
			respondError(w, http.StatusBadRequest, "threshold must be in (0, 1]")
			return
		}
		threshold = f
	}
	recordAttendance := r.URL.Query().Get("attendance") == "1"

	start := time.Now()
	faces, err := h.detector.Detect(r.Context(), img)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("embedding engine: %v", err))
		return
	}

	matches := make([]pipeline.FaceMatch, 0, len(faces))
	var actions []attendanceAction
	for _, face := range faces {
		res := h.engine.Match(face.Embedding, threshold, h.allowFallback)
		fm := pipeline.FaceMatch{
			EmployeeCode: res.EmployeeCode,
			Score:        res.Score,
			Method:       string(res.Method),
			BBox:         face.BBox,
		}
		if res.EmployeeCode != match.Unknown {
			if emp, err := h.employees.GetEmployee(r.Context(), res.EmployeeCode); err == nil {
				fm.EmployeeName = emp.FullName
			}
			if recordAttendance {
				rec, action, err := h.tracker.RecordEvent(r.Context(), res.EmployeeCode, start)
				if err != nil {
					log.Printf("[web] attendance for %s failed: %v", sanitizeForLog(res.EmployeeCode), err)
				} else {
					actions = append(actions, attendanceAction{
						EmployeeCode: res.EmployeeCode,
						Action:       string(action),
						WorkDate:     rec.WorkDate,
					})
				}
			}
		}
		matches = append(matches, fm)
	}

	respondJSON(w, http.StatusOK, recognizeResponse{
		FacesCount: len(matches),
		Faces:      matches,
		ProcessMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		At:         start,
		Attendance: actions,
	})
}
