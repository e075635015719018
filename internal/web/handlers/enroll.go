package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"strings"

	// Decoders for uploaded enrollment frames.
	_ "image/jpeg"
	_ "image/png"

	"github.com/go-chi/chi/v5"

	"github.com/edgekit/facegate/internal/enroll"
	"github.com/edgekit/facegate/internal/pipeline"
	"github.com/edgekit/facegate/internal/store"
)

// EnrollHandler handles the guided enrollment endpoints. Pose guidance and
// completions are mirrored onto the pipeline event feed so the kiosk UI can
// follow a session over the same SSE stream it watches recognition on.
type EnrollHandler struct {
	registry *enroll.Registry
	detector Detector
	events   *pipeline.Broadcaster
}

// NewEnrollHandler creates a new enrollment handler.
func NewEnrollHandler(registry *enroll.Registry, detector Detector, events *pipeline.Broadcaster) *EnrollHandler {
	return &EnrollHandler{
		registry: registry,
		detector: detector,
		events:   events,
	}
}

// Start opens a new enrollment session. When the request names no employee
// code one is suggested from the full name.
func (h *EnrollHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmployeeCode string `json:"employee_code"`
		FullName     string `json:"full_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	code := strings.TrimSpace(req.EmployeeCode)
	if code == "" {
		code = enroll.CodeFromName(req.FullName)
	}
	if code == "" {
		respondError(w, http.StatusBadRequest, "employee_code or full_name is required")
		return
	}

	session, err := h.registry.Start(code, strings.TrimSpace(req.FullName))
	if err != nil {
		if errors.Is(err, enroll.ErrSessionExists) {
			respondError(w, http.StatusConflict, fmt.Sprintf("enrollment session for %s already exists", code))
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("starting session: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, session.Progress())
}

// List returns the progress of every active enrollment session.
func (h *EnrollHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.Active()
	out := make([]enroll.Progress, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Progress())
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": out,
		"count":    len(out),
	})
}

// Frame feeds one camera frame into an enrollment session and returns the
// pose guidance. Detector-level outcomes (no face, several faces) are
// reported without advancing the session.
func (h *EnrollHandler) Frame(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	img, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	faces, err := h.detector.Detect(r.Context(), img)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("embedding engine: %v", err))
		return
	}

	var result enroll.StepResult
	switch len(faces) {
	case 0:
		result = enroll.StepResult{
			Status:   enroll.StatusNoFace,
			Guidance: "No face detected",
			Progress: session.Progress(),
		}
	case 1:
		decoded, _, err := image.Decode(bytes.NewReader(img))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid image data")
			return
		}
		result, err = session.ProcessFrame(decoded, faces[0].BBox, faces[0].Landmarks)
		if err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("processing frame: %v", err))
			return
		}
	default:
		result = enroll.StepResult{
			Status:   enroll.StatusMultipleFaces,
			Guidance: "Multiple faces detected",
			Progress: session.Progress(),
		}
	}

	h.events.SendEvent(pipeline.Event{
		Type: pipeline.EventPoseGuidance,
		Guidance: &pipeline.GuidancePayload{
			EmployeeCode: session.EmployeeCode,
			SessionID:    session.ID,
			Step:         result,
		},
	})

	respondJSON(w, http.StatusOK, result)
}

// Progress returns the progress of one enrollment session.
func (h *EnrollHandler) Progress(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session.Progress())
}

// Complete finalizes a session into an employee record.
func (h *EnrollHandler) Complete(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	employee, err := h.registry.Complete(r.Context(), session.EmployeeCode)
	if err != nil {
		switch {
		case errors.Is(err, enroll.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "enrollment session not found")
		case errors.Is(err, enroll.ErrSessionIncomplete):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrDuplicateCode):
			respondError(w, http.StatusConflict, fmt.Sprintf("employee %s already exists", session.EmployeeCode))
		default:
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("completing session: %v", err))
		}
		return
	}

	h.events.SendEvent(pipeline.Event{
		Type: pipeline.EventSessionComplete,
		Session: &pipeline.SessionPayload{
			EmployeeCode: employee.Code,
			SessionID:    session.ID,
			FullName:     employee.FullName,
		},
	})
	log.Printf("[web] enrollment completed for %s", sanitizeForLog(employee.Code))

	respondJSON(w, http.StatusCreated, newEmployeeResponse(employee))
}

// Cancel discards a session and its captured frames.
func (h *EnrollHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.registry.Cancel(code); err != nil {
		if errors.Is(err, enroll.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "enrollment session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("cancelling session: %v", err))
		return
	}

	log.Printf("[web] enrollment cancelled for %s", sanitizeForLog(code))
	respondJSON(w, http.StatusOK, map[string]string{
		"status":        "cancelled",
		"employee_code": code,
	})
}

// lookupSession resolves the {code} URL parameter to a live session. On
// failure it writes the error response and returns false.
func (h *EnrollHandler) lookupSession(w http.ResponseWriter, r *http.Request) (*enroll.Session, bool) {
	code := chi.URLParam(r, "code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "missing employee code")
		return nil, false
	}

	session, err := h.registry.Get(code)
	if err != nil {
		respondError(w, http.StatusNotFound, "enrollment session not found")
		return nil, false
	}
	return session, true
}
