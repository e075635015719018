package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edgekit/facegate/internal/store"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const uniqueViolation = "23505"

const employeeColumns = `id, code, full_name, email, phone, department, position,
       embeddings, mean_embedding, image_paths, total_embeddings, is_active,
       created_at, updated_at`

// CreateEmployee inserts a new employee.
func (s *Store) CreateEmployee(ctx context.Context, e *store.Employee) error {
	embeddings, err := json.Marshal(e.Embeddings)
	if err != nil {
		return fmt.Errorf("marshal embeddings: %w", err)
	}

	query := `
		INSERT INTO employees (code, full_name, email, phone, department, position,
		                       embeddings, mean_embedding, image_paths, total_embeddings, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		e.Code, e.FullName, e.Email, e.Phone, e.Department, e.Position,
		embeddings, pgvector.NewVector(e.MeanEmbedding), pq.Array(e.ImagePaths),
		e.TotalEmbeddings, e.IsActive,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return store.ErrDuplicateCode
		}
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by code.
func (s *Store) GetEmployee(ctx context.Context, code string) (*store.Employee, error) {
	query := "SELECT " + employeeColumns + " FROM employees WHERE code = $1"

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
		query += " WHERE is_active"
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
	embeddings, err := json.Marshal(e.Embeddings)
	if err != nil {
		return fmt.Errorf("marshal embeddings: %w", err)
	}

	query := `
		UPDATE employees
		SET full_name = $2, email = $3, phone = $4, department = $5, position = $6,
		    embeddings = $7, mean_embedding = $8::vector, image_paths = $9,
		    total_embeddings = $10, is_active = $11, updated_at = NOW()
		WHERE code = $1
		RETURNING updated_at
	`

	err = s.db.QueryRowContext(ctx, query,
		e.Code, e.FullName, e.Email, e.Phone, e.Department, e.Position,
		embeddings, pgvector.NewVector(e.MeanEmbedding), pq.Array(e.ImagePaths),
		e.TotalEmbeddings, e.IsActive,
	).Scan(&e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("update employee: %w", err)
	}
	return nil
}

// DeactivateEmployee soft-deletes an employee.
func (s *Store) DeactivateEmployee(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE employees SET is_active = FALSE, updated_at = NOW() WHERE code = $1", code)
	if err != nil {
		return fmt.Errorf("deactivate employee: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate employee rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// scanEmployeeRow scans a single row into an Employee.
func scanEmployeeRow(scanner interface{ Scan(...any) error }) (*store.Employee, error) {
	var e store.Employee
	var embeddings []byte
	var mean pgvector.Vector
	var imagePaths pq.StringArray

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
		&imagePaths,
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
	e.MeanEmbedding = mean.Slice()
	e.ImagePaths = []string(imagePaths)
	return &e, nil
}
