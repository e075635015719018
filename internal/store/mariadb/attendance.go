package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edgekit/facegate/internal/store"
)

const attendanceColumns = `id, employee_code, camera, work_date, check_in, check_out,
       total_hours, status, notes, created_at, updated_at`

// GetAttendanceForDate returns the record for the employee and work date,
// or nil if none exists yet.
func (s *Store) GetAttendanceForDate(ctx context.Context, employeeCode, workDate string) (*store.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + " FROM attendance WHERE employee_code = ? AND work_date = ?"

	rec, err := scanAttendanceRow(s.db.QueryRowContext(ctx, query, employeeCode, workDate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// UpsertAttendance inserts the record or, when a record for the same
// (employee, work date) key already exists, rewrites its check-out fields.
func (s *Store) UpsertAttendance(ctx context.Context, rec *store.AttendanceRecord) (*store.AttendanceRecord, error) {
	query := `
		INSERT INTO attendance (employee_code, camera, work_date, check_in, check_out,
		                        total_hours, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			camera      = VALUES(camera),
			check_out   = VALUES(check_out),
			total_hours = VALUES(total_hours),
			status      = VALUES(status)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.EmployeeCode, rec.Camera, rec.WorkDate, rec.CheckIn, rec.CheckOut,
		rec.TotalHours, rec.Status, rec.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}

	stored, err := s.GetAttendanceForDate(ctx, rec.EmployeeCode, rec.WorkDate)
	if err != nil {
		return nil, fmt.Errorf("read back attendance: %w", err)
	}
	if stored == nil {
		return nil, errors.New("attendance record missing after upsert")
	}
	return stored, nil
}

// ListAttendance returns records matching the filter, newest work date first.
func (s *Store) ListAttendance(ctx context.Context, filter store.AttendanceFilter) ([]store.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + " FROM attendance"

	var conds []string
	var args []any
	if filter.EmployeeCode != "" {
		conds = append(conds, "employee_code = ?")
		args = append(args, filter.EmployeeCode)
	}
	if filter.From != "" {
		conds = append(conds, "work_date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conds = append(conds, "work_date <= ?")
		args = append(args, filter.To)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY work_date DESC, employee_code"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []store.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendanceRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// GetAttendanceStats counts records for the dashboard periods.
func (s *Store) GetAttendanceStats(ctx context.Context, today, weekStart, monthStart string) (*store.AttendanceStats, error) {
	query := `
		SELECT COALESCE(SUM(work_date = ?), 0),
		       COALESCE(SUM(work_date >= ?), 0),
		       COALESCE(SUM(work_date >= ?), 0),
		       COUNT(DISTINCT CASE WHEN work_date = ? THEN employee_code END)
		FROM attendance
	`

	stats := &store.AttendanceStats{}
	err := s.db.QueryRowContext(ctx, query, today, weekStart, monthStart, today).
		Scan(&stats.Today, &stats.Week, &stats.Month, &stats.EmployeesToday)
	if err != nil {
		return nil, fmt.Errorf("query attendance stats: %w", err)
	}
	return stats, nil
}

// scanAttendanceRow scans a single row into an AttendanceRecord.
func scanAttendanceRow(scanner interface{ Scan(...any) error }) (*store.AttendanceRecord, error) {
	var rec store.AttendanceRecord
	var workDate time.Time
	var checkOut sql.NullTime

	err := scanner.Scan(
		&rec.ID,
		&rec.EmployeeCode,
		&rec.Camera,
		&workDate,
		&rec.CheckIn,
		&checkOut,
		&rec.TotalHours,
		&rec.Status,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan attendance: %w", err)
	}

	rec.WorkDate = workDate.Format(store.WorkDateLayout)
	if checkOut.Valid {
		t := checkOut.Time
		rec.CheckOut = &t
	}
	return &rec, nil
}
