package postgres

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
	query := "SELECT " + attendanceColumns + " FROM attendance WHERE employee_code = $1 AND work_date = $2"

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
// The unique key makes a duplicate day impossible even if two writers race
// past the tracker's per-employee lock.
func (s *Store) UpsertAttendance(ctx context.Context, rec *store.AttendanceRecord) (*store.AttendanceRecord, error) {
	query := `
		INSERT INTO attendance (employee_code, camera, work_date, check_in, check_out,
		                        total_hours, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (employee_code, work_date) DO UPDATE
		SET camera      = EXCLUDED.camera,
		    check_out   = EXCLUDED.check_out,
		    total_hours = EXCLUDED.total_hours,
		    status      = EXCLUDED.status,
		    updated_at  = NOW()
		RETURNING ` + attendanceColumns

	stored, err := scanAttendanceRow(s.db.QueryRowContext(ctx, query,
		rec.EmployeeCode, rec.Camera, rec.WorkDate, rec.CheckIn, rec.CheckOut,
		rec.TotalHours, rec.Status, rec.Notes,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return stored, nil
}

// ListAttendance returns records matching the filter, newest work date first.
func (s *Store) ListAttendance(ctx context.Context, filter store.AttendanceFilter) ([]store.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + " FROM attendance"

	var conds []string
	var args []any
	if filter.EmployeeCode != "" {
		args = append(args, filter.EmployeeCode)
		conds = append(conds, fmt.Sprintf("employee_code = $%d", len(args)))
	}
	if filter.From != "" {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("work_date >= $%d", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("work_date <= $%d", len(args)))
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
		SELECT COUNT(*) FILTER (WHERE work_date = $1),
		       COUNT(*) FILTER (WHERE work_date >= $2),
		       COUNT(*) FILTER (WHERE work_date >= $3),
		       COUNT(DISTINCT employee_code) FILTER (WHERE work_date = $1)
		FROM attendance
	`

	stats := &store.AttendanceStats{}
	err := s.db.QueryRowContext(ctx, query, today, weekStart, monthStart).
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
