package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgekit/facegate/internal/attendance"
)

func newAttendanceHandler(t *testing.T) (*AttendanceHandler, *attendance.Tracker) {
	t.Helper()

	s := newTestStore(t)
	tracker := attendance.NewTracker(s, time.UTC, "test-camera")
	return NewAttendanceHandler(s, tracker), tracker
}

func TestAttendanceListFilters(t *testing.T) {
	h, tracker := newAttendanceHandler(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	for _, seed := range []struct {
		code string
		at   time.Time
	}{
		{"alice", base},
		{"alice", base.AddDate(0, 0, 2)},
		{"bob", base.AddDate(0, 0, 2)},
	} {
		if _, _, err := tracker.RecordEvent(ctx, seed.code, seed.at); err != nil {
			t.Fatalf("could not seed attendance: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance?employee=alice", nil)
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Records []attendanceResponse `json:"records"`
		Count   int                  `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 2 {
		t.Fatalf("expected 2 records for alice, got %d", resp.Count)
	}
	for _, rec := range resp.Records {
		if rec.EmployeeCode != "alice" {
			t.Errorf("expected only alice, got %q", rec.EmployeeCode)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/attendance?from=2025-03-11", nil)
	recorder = httptest.NewRecorder()
	h.List(recorder, req)
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 2 {
		t.Errorf("expected 2 records from 2025-03-11, got %d", resp.Count)
	}
}

func TestAttendanceListInvalidDate(t *testing.T) {
	h, _ := newAttendanceHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance?from=yesterday", nil)
	recorder := httptest.NewRecorder()
	h.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestAttendanceToday(t *testing.T) {
	h, tracker := newAttendanceHandler(t)

	if _, _, err := tracker.RecordEvent(context.Background(), "alice", time.Now()); err != nil {
		t.Fatalf("could not seed attendance: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/today", nil)
	recorder := httptest.NewRecorder()
	h.Today(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Records []attendanceResponse `json:"records"`
		Count   int                  `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 1 || resp.Records[0].EmployeeCode != "alice" {
		t.Errorf("unexpected today response: %+v", resp)
	}
	if resp.Records[0].Camera != "test-camera" {
		t.Errorf("expected camera test-camera, got %q", resp.Records[0].Camera)
	}
}

func TestAttendanceStats(t *testing.T) {
	h, tracker := newAttendanceHandler(t)

	now := time.Now()
	for _, code := range []string{"alice", "bob"} {
		if _, _, err := tracker.RecordEvent(context.Background(), code, now); err != nil {
			t.Fatalf("could not seed attendance: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/stats", nil)
	recorder := httptest.NewRecorder()
	h.Stats(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var stats map[string]int
	parseJSONResponse(t, recorder, &stats)
	if stats["today"] != 2 || stats["employees_today"] != 2 {
		t.Errorf("unexpected stats: %v", stats)
	}
}
