package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/edgekit/facegate/internal/attendance"
	"github.com/edgekit/facegate/internal/store"
)

// AttendanceHandler handles the attendance query endpoints.
type AttendanceHandler struct {
	records store.AttendanceStore
	tracker *attendance.Tracker
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(records store.AttendanceStore, tracker *attendance.Tracker) *AttendanceHandler {
	return &AttendanceHandler{
		records: records,
		tracker: tracker,
	}
}

type attendanceResponse struct {
	EmployeeCode string     `json:"employee_code"`
	WorkDate     string     `json:"work_date"`
	CheckIn      time.Time  `json:"check_in"`
	CheckOut     *time.Time `json:"check_out,omitempty"`
	TotalHours   float64    `json:"total_hours"`
	Status       string     `json:"status"`
	Camera       string     `json:"camera,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

func newAttendanceResponse(rec *store.AttendanceRecord) attendanceResponse {
	return attendanceResponse{
		EmployeeCode: rec.EmployeeCode,
		WorkDate:     rec.WorkDate,
		CheckIn:      rec.CheckIn,
		CheckOut:     rec.CheckOut,
		TotalHours:   rec.TotalHours,
		Status:       rec.Status,
		Camera:       rec.Camera,
		Notes:        rec.Notes,
	}
}

func respondAttendance(w http.ResponseWriter, records []store.AttendanceRecord) {
	out := make([]attendanceResponse, 0, len(records))
	for i := range records {
		out = append(out, newAttendanceResponse(&records[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"records": out,
		"count":   len(out),
	})
}

// List returns attendance records, optionally filtered by ?employee, ?from
// and ?to (inclusive work dates).
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.AttendanceFilter{
		EmployeeCode: query.Get("employee"),
		From:         query.Get("from"),
		To:           query.Get("to"),
	}

	for _, date := range []string{filter.From, filter.To} {
		if date == "" {
			continue
		}
		if _, err := time.Parse(store.WorkDateLayout, date); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q, expected %s", date, store.WorkDateLayout))
			return
		}
	}

	records, err := h.records.ListAttendance(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("listing attendance: %v", err))
		return
	}
	respondAttendance(w, records)
}

// Today returns the attendance records for the current work date.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	records, err := h.tracker.Today(r.Context(), time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("listing attendance: %v", err))
		return
	}
	respondAttendance(w, records)
}

// Stats returns record counts for today, this week and this month plus the
// distinct employees seen today.
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tracker.Stats(r.Context(), time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("computing stats: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"today":           stats.Today,
		"week":            stats.Week,
		"month":           stats.Month,
		"employees_today": stats.EmployeesToday,
	})
}
