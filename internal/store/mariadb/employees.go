package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edgekit/facegate/internal/store"
)

const employeeColumns = `id, code, full_name, email, phone, department, position,
       embeddings, mean_embedding, image_paths, total_embeddings, is_active,
       created_at, updated_at`

// CreateEmployee inserts a new employee.
func (s *Store) CreateEmployee(ctx context.Context, e *store.Employee) error {
	embeddings, mean, paths, err := marshalEmployeePayload(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO employees (code, full_name, email, phone, department, position,
		                       embeddings, mean_embedding, image_paths, total_embeddings, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		e.Code, e.FullName, e.Email, e.Phone, e.Department, e.Position,
		embeddings, mean, paths, e.TotalEmbeddings, e.IsActive,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return store.ErrDuplicateCode
		}
		return fmt.Errorf("insert employee: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert employee id: %w", err)
	}
	e.ID = id

	stored, err := s.GetEmployee(ctx, e.Code)
	if err != nil {
		return fmt.Errorf("read back employee: %w", err)
	}
	e.CreatedAt = stored.CreatedAt
	e.UpdatedAt = stored.UpdatedAt
	return nil
}

// GetEmployee retrieves an employee by code.
func (s *Store) GetEmployee(ctx context.Context, code string) (*store.Employee, error) {
	query := "SELECT " + employeeColumns + " FROM employees WHERE code = ?"

	e, err := scanEmployeeRow(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListEmployees returns employees ordered by code.
func (s *Store) ListEmployees(ctx context.Context, includeInactive bool) ([]store.Employee, error) {
	query := "SELECT " + employeeColumns + " FROM employees"
	if !includeInactive {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY code"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var employees []store.Employee
	for rows.Next() {
		e, err := scanEmployeeRow(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}

// UpdateEmployee rewrites the mutable fields of an existing employee.
func (s *Store) UpdateEmployee(ctx context.Context, e *store.Employee) error {
	embeddings, mean, paths, err := marshalEmployeePayload(e)
	if err != nil {
		return err
	}

	query := `
		UPDATE employees
		SET full_name = ?, email = ?, phone = ?, department = ?, position = ?,
		    embeddings = ?, mean_embedding = ?, image_paths = ?,
		    total_embeddings = ?, is_active = ?
		WHERE code = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		e.FullName, e.Email, e.Phone, e.Department, e.Position,
		embeddings, mean, paths, e.TotalEmbeddings, e.IsActive, e.Code,
	)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}

	// RowsAffected is 0 both for a missing row and for a no-op rewrite, so
	// confirm existence separately.
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update employee rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetEmployee(ctx, e.Code); err != nil {
			return err
		}
	}
	return nil
}

// DeactivateEmployee soft-deletes an employee.
func (s *Store) DeactivateEmployee(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE employees SET is_active = 0 WHERE code = ?", code)
	if err != nil {
		return fmt.Errorf("deactivate employee: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate employee rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetEmployee(ctx, code); err != nil {
			return err
		}
	}
	return nil
}

// marshalEmployeePayload serializes the JSON-backed employee columns.
func marshalEmployeePayload(e *store.Employee) (embeddings, mean, paths []byte, err error) {
	embeddings, err = json.Marshal(e.Embeddings)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal embeddings: %w", err)
	}
	mean, err = json.Marshal(e.MeanEmbedding)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal mean embedding: %w", err)
	}
	if e.ImagePaths == nil {
		paths = []byte("[]")
	} else {
		paths, err = json.Marshal(e.ImagePaths)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal image paths: %w", err)
		}
	}
	return embeddings, mean, paths, nil
}

// scanEmployeeRow scans a single row into an Employee.
func scanEmployeeRow(scanner interface{ Scan(...any) error }) (*store.Employee, error) {
	var e store.Employee
	var embeddings, mean, paths []byte

	err := scanner.Scan(
		&e.ID,
		&e.Code,
		&e.FullName,
		&e.Email,
		&e.Phone,
		&e.Department,
		&e.Position,
		&embeddings,
		&mean,
		&paths,
		&e.TotalEmbeddings,
		&e.IsActive,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan employee: %w", err)
	}

	if err := json.Unmarshal(embeddings, &e.Embeddings); err != nil {
		return nil, fmt.Errorf("unmarshal embeddings: %w", err)
	}
	if err := json.Unmarshal(mean, &e.MeanEmbedding); err != nil {
		return nil, fmt.Errorf("unmarshal mean embedding: %w", err)
	}
	if err := json.Unmarshal(paths, &e.ImagePaths); err != nil {
		return nil, fmt.Errorf("unmarshal image paths: %w", err)
	}
	return &e, nil
}
