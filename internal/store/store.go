// Package store defines the persistence interfaces and record types for
// employees and attendance. Concrete backends live in subpackages and
// register themselves by DATABASE_URL scheme.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edgekit/facegate/internal/config"
)

// WorkDateLayout is the canonical format for attendance work dates.
const WorkDateLayout = "2006-01-02"

// Attendance status labels. Status is descriptive only; a closed day is
// reopened implicitly by the next check-out rewrite.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateCode is returned when creating an employee whose code is taken.
	ErrDuplicateCode = errors.New("employee code already exists")
)

// Employee is one enrolled person, including the face embeddings captured
// during enrollment and their precomputed mean.
type Employee struct {
	ID              int64
	Code            string
	FullName        string
	Email           string
	Phone           string
	Department      string
	Position        string
	Embeddings      [][]float32
	MeanEmbedding   []float32
	ImagePaths      []string
	TotalEmbeddings int
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AttendanceRecord is one employee's attendance for one work date.
// CheckOut is nil until the second recognition of the day.
type AttendanceRecord struct {
	ID           int64
	EmployeeCode string
	Camera       string
	WorkDate     string // WorkDateLayout
	CheckIn      time.Time
	CheckOut     *time.Time
	TotalHours   float64
	Status       string
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AttendanceFilter narrows ListAttendance results. Empty fields are ignored.
// From and To are inclusive work dates in WorkDateLayout.
type AttendanceFilter struct {
	EmployeeCode string
	From         string
	To           string
}

// AttendanceStats aggregates record counts for the dashboard.
type AttendanceStats struct {
	Today          int
	Week           int
	Month          int
	EmployeesToday int
}

// EmployeeStore provides access to the employee registry.
type EmployeeStore interface {
	// CreateEmployee inserts a new employee; ErrDuplicateCode if the code is taken.
	CreateEmployee(ctx context.Context, e *Employee) error
	// GetEmployee retrieves an employee by code; ErrNotFound if absent.
	GetEmployee(ctx context.Context, code string) (*Employee, error)
	// ListEmployees returns employees ordered by code, active only unless includeInactive.
	ListEmployees(ctx context.Context, includeInactive bool) ([]Employee, error)
	// UpdateEmployee rewrites the mutable fields of an existing employee; ErrNotFound if absent.
	UpdateEmployee(ctx context.Context, e *Employee) error
	// DeactivateEmployee soft-deletes an employee; ErrNotFound if absent.
	DeactivateEmployee(ctx context.Context, code string) error
}

// AttendanceStore provides access to attendance records.
type AttendanceStore interface {
	// GetAttendanceForDate returns the record for the employee and work date,
	// or nil if none exists yet.
	GetAttendanceForDate(ctx context.Context, employeeCode, workDate string) (*AttendanceRecord, error)
	// UpsertAttendance inserts the record keyed by (employee, work date) or,
	// when a record for that key already exists, rewrites its check-out
	// fields. Returns the record as stored.
	UpsertAttendance(ctx context.Context, rec *AttendanceRecord) (*AttendanceRecord, error)
	// ListAttendance returns records matching the filter, newest work date first.
	ListAttendance(ctx context.Context, filter AttendanceFilter) ([]AttendanceRecord, error)
	// GetAttendanceStats counts records since the given period starts
	// (inclusive work dates) plus distinct employees seen today.
	GetAttendanceStats(ctx context.Context, today, weekStart, monthStart string) (*AttendanceStats, error)
}

// Store is the full persistence surface of the kiosk.
type Store interface {
	EmployeeStore
	AttendanceStore
	Close() error
}

var backends = map[string]func(*config.DatabaseConfig) (Store, error){}

// RegisterBackend registers a backend constructor for a DATABASE_URL scheme.
// Called from backend package init functions to avoid import cycles; the
// in-memory backend registers the empty scheme.
func RegisterBackend(scheme string, open func(*config.DatabaseConfig) (Store, error)) {
	backends[scheme] = open
}

// Open selects and opens a backend by the DATABASE_URL scheme. An empty URL
// selects the in-memory store. The backend packages must be linked in
// (blank imports) for their schemes to resolve.
func Open(cfg *config.DatabaseConfig) (Store, error) {
	scheme := ""
	if cfg != nil && cfg.URL != "" {
		idx := strings.Index(cfg.URL, "://")
		if idx < 0 {
			return nil, fmt.Errorf("database URL has no scheme: %q", cfg.URL)
		}
		scheme = cfg.URL[:idx]
		if scheme == "postgresql" {
			scheme = "postgres"
		}
	}

	open, ok := backends[scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
	return open(cfg)
}
