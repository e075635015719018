// Package memory provides the in-memory store backend. It backs the kiosk's
// offline mode (empty DATABASE_URL) and doubles as the unit-test store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edgekit/facegate/internal/config"
	"github.com/edgekit/facegate/internal/store"
)

func init() {
	store.RegisterBackend("", func(*config.DatabaseConfig) (store.Store, error) {
		return New(), nil
	})
}

// Store keeps employees and attendance in mutex-guarded maps.
type Store struct {
	mu         sync.RWMutex
	employees  map[string]*store.Employee
	attendance map[string]*store.AttendanceRecord // employeeCode|workDate
	nextEmpID  int64
	nextAttID  int64
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		employees:  make(map[string]*store.Employee),
		attendance: make(map[string]*store.AttendanceRecord),
	}
}

func attendanceKey(employeeCode, workDate string) string {
	return employeeCode + "|" + workDate
}

// CreateEmployee inserts a new employee.
func (s *Store) CreateEmployee(ctx context.Context, e *store.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[e.Code]; ok {
		return store.ErrDuplicateCode
	}

	s.nextEmpID++
	e.ID = s.nextEmpID
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now

	s.employees[e.Code] = cloneEmployee(e)
	return nil
}

// GetEmployee retrieves an employee by code.
func (s *Store) GetEmployee(ctx context.Context, code string) (*store.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneEmployee(e), nil
}

// ListEmployees returns employees ordered by code.
func (s *Store) ListEmployees(ctx context.Context, includeInactive bool) ([]store.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]store.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		if !includeInactive && !e.IsActive {
			continue
		}
		employees = append(employees, *cloneEmployee(e))
	}
	sort.Slice(employees, func(i, j int) bool {
		return employees[i].Code < employees[j].Code
	})
	return employees, nil
}

// UpdateEmployee rewrites the mutable fields of an existing employee.
func (s *Store) UpdateEmployee(ctx context.Context, e *store.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.employees[e.Code]
	if !ok {
		return store.ErrNotFound
	}

	updated := cloneEmployee(e)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	s.employees[e.Code] = updated
	e.UpdatedAt = updated.UpdatedAt
	return nil
}

// DeactivateEmployee soft-deletes an employee.
func (s *Store) DeactivateEmployee(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.employees[code]
	if !ok {
		return store.ErrNotFound
	}
	e.IsActive = false
	e.UpdatedAt = time.Now()
	return nil
}

// GetAttendanceForDate returns the record for the employee and work date,
// or nil if none exists yet.
func (s *Store) GetAttendanceForDate(ctx context.Context, employeeCode, workDate string) (*store.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.attendance[attendanceKey(employeeCode, workDate)]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// UpsertAttendance inserts the record or rewrites the check-out fields of
// the record sharing its (employee, work date) key.
func (s *Store) UpsertAttendance(ctx context.Context, rec *store.AttendanceRecord) (*store.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := attendanceKey(rec.EmployeeCode, rec.WorkDate)
	now := time.Now()

	existing, ok := s.attendance[key]
	if !ok {
		s.nextAttID++
		stored := cloneRecord(rec)
		stored.ID = s.nextAttID
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.attendance[key] = stored
		return cloneRecord(stored), nil
	}

	existing.Camera = rec.Camera
	existing.CheckOut = cloneTime(rec.CheckOut)
	existing.TotalHours = rec.TotalHours
	existing.Status = rec.Status
	existing.UpdatedAt = now
	return cloneRecord(existing), nil
}

// ListAttendance returns records matching the filter, newest work date first.
func (s *Store) ListAttendance(ctx context.Context, filter store.AttendanceFilter) ([]store.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]store.AttendanceRecord, 0, len(s.attendance))
	for _, rec := range s.attendance {
		if filter.EmployeeCode != "" && rec.EmployeeCode != filter.EmployeeCode {
			continue
		}
		if filter.From != "" && rec.WorkDate < filter.From {
			continue
		}
		if filter.To != "" && rec.WorkDate > filter.To {
			continue
		}
		records = append(records, *cloneRecord(rec))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].WorkDate != records[j].WorkDate {
			return records[i].WorkDate > records[j].WorkDate
		}
		return records[i].EmployeeCode < records[j].EmployeeCode
	})
	return records, nil
}

// GetAttendanceStats counts records for the dashboard periods.
func (s *Store) GetAttendanceStats(ctx context.Context, today, weekStart, monthStart string) (*store.AttendanceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.AttendanceStats{}
	seenToday := make(map[string]bool)
	for _, rec := range s.attendance {
		if rec.WorkDate == today {
			stats.Today++
			seenToday[rec.EmployeeCode] = true
		}
		if rec.WorkDate >= weekStart {
			stats.Week++
		}
		if rec.WorkDate >= monthStart {
			stats.Month++
		}
	}
	stats.EmployeesToday = len(seenToday)
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cloneEmployee(e *store.Employee) *store.Employee {
	c := *e
	c.Embeddings = make([][]float32, len(e.Embeddings))
	for i, emb := range e.Embeddings {
		c.Embeddings[i] = append([]float32(nil), emb...)
	}
	c.MeanEmbedding = append([]float32(nil), e.MeanEmbedding...)
	c.ImagePaths = append([]string(nil), e.ImagePaths...)
	return &c
}

func cloneRecord(rec *store.AttendanceRecord) *store.AttendanceRecord {
	c := *rec
	c.CheckOut = cloneTime(rec.CheckOut)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
