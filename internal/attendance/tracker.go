// Package attendance turns accepted recognitions into check-in/check-out
// records, one row per employee per work date.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/edgekit/facegate/internal/store"
)

// Action reports which transition a recorded event performed.
type Action string

const (
	ActionCheckIn  Action = "check-in"
	ActionCheckOut Action = "check-out"
)

// Tracker serializes attendance writes per employee. The first event of a
// work date opens the record with a check-in; every later event rewrites
// the check-out and the derived total hours. The store's (employee,
// work date) upsert key keeps the create/update race impossible even
// across processes.
type Tracker struct {
	store    store.AttendanceStore
	location *time.Location
	camera   string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker writing to the given store. Work dates are
// derived in loc; camera labels every record this kiosk writes.
func NewTracker(s store.AttendanceStore, loc *time.Location, camera string) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{
		store:    s,
		location: loc,
		camera:   camera,
		locks:    make(map[string]*sync.Mutex),
	}
}

// employeeLock interns one mutex per employee code.
func (t *Tracker) employeeLock(code string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[code]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[code] = lock
	}
	return lock
}

// WorkDate returns the work date the given instant falls on in the
// tracker's location.
func (t *Tracker) WorkDate(at time.Time) string {
	return at.In(t.location).Format(store.WorkDateLayout)
}

// RecordEvent records one recognition event for an employee. The first
// event of the work date checks the employee in; every later event
// rewrites the check-out, keeping it monotonically non-decreasing and
// never before the check-in.
func (t *Tracker) RecordEvent(ctx context.Context, employeeCode string, at time.Time) (store.AttendanceRecord, Action, error) {
	if employeeCode == "" {
		return store.AttendanceRecord{}, "", errors.New("employee code is required")
	}

	lock := t.employeeLock(employeeCode)
	lock.Lock()
	defer lock.Unlock()

	workDate := t.WorkDate(at)

	existing, err := t.store.GetAttendanceForDate(ctx, employeeCode, workDate)
	if err != nil {
		return store.AttendanceRecord{}, "", fmt.Errorf("load attendance: %w", err)
	}

	if existing == nil {
		stored, err := t.store.UpsertAttendance(ctx, &store.AttendanceRecord{
			EmployeeCode: employeeCode,
			Camera:       t.camera,
			WorkDate:     workDate,
			CheckIn:      at,
			Status:       store.StatusOpen,
		})
		if err != nil {
			return store.AttendanceRecord{}, "", fmt.Errorf("record check-in: %w", err)
		}
		log.Printf("[attendance] %s check-in on %s", employeeCode, workDate)
		return *stored, ActionCheckIn, nil
	}

	checkOut := at
	if checkOut.Before(existing.CheckIn) {
		checkOut = existing.CheckIn
	}
	if existing.CheckOut != nil && checkOut.Before(*existing.CheckOut) {
		checkOut = *existing.CheckOut
	}

	existing.Camera = t.camera
	existing.CheckOut = &checkOut
	existing.TotalHours = roundHours(checkOut.Sub(existing.CheckIn))
	existing.Status = store.StatusClosed

	stored, err := t.store.UpsertAttendance(ctx, existing)
	if err != nil {
		return store.AttendanceRecord{}, "", fmt.Errorf("record check-out: %w", err)
	}
	log.Printf("[attendance] %s check-out on %s, %.2f hours", employeeCode, workDate, stored.TotalHours)
	return *stored, ActionCheckOut, nil
}

// Today returns the records for the current work date.
func (t *Tracker) Today(ctx context.Context, now time.Time) ([]store.AttendanceRecord, error) {
	today := t.WorkDate(now)
	return t.store.ListAttendance(ctx, store.AttendanceFilter{From: today, To: today})
}

// Stats aggregates record counts for today, the current week (starting
// Monday) and the current month.
func (t *Tracker) Stats(ctx context.Context, now time.Time) (*store.AttendanceStats, error) {
	today, weekStart, monthStart := t.periodStarts(now)
	return t.store.GetAttendanceStats(ctx, today, weekStart, monthStart)
}

// periodStarts returns today, the Monday of its week and the first of its
// month as work-date strings in the tracker's location.
func (t *Tracker) periodStarts(now time.Time) (today, weekStart, monthStart string) {
	local := now.In(t.location)
	year, month, day := local.Date()

	date := time.Date(year, month, day, 0, 0, 0, 0, t.location)
	monday := date.AddDate(0, 0, -((int(date.Weekday()) + 6) % 7))
	first := time.Date(year, month, 1, 0, 0, 0, 0, t.location)

	return date.Format(store.WorkDateLayout),
		monday.Format(store.WorkDateLayout),
		first.Format(store.WorkDateLayout)
}

// roundHours converts a duration to hours rounded to two decimals.
func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
