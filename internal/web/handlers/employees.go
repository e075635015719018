package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgekit/facegate/internal/match"
	"github.com/edgekit/facegate/internal/store"
)

// EmployeesHandler handles the employee registry endpoints.
type EmployeesHandler struct {
	employees store.EmployeeStore
	engine    *match.Engine
}

// NewEmployeesHandler creates a new employees handler.
func NewEmployeesHandler(employees store.EmployeeStore, engine *match.Engine) *EmployeesHandler {
	return &EmployeesHandler{
		employees: employees,
		engine:    engine,
	}
}

// employeeResponse is the API view of an employee. Raw embedding vectors
// stay out of responses; total_embeddings reports their count.
type employeeResponse struct {
	Code            string    `json:"code"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Department      string    `json:"department,omitempty"`
	Position        string    `json:"position,omitempty"`
	ImagePaths      []string  `json:"image_paths,omitempty"`
	TotalEmbeddings int       `json:"total_embeddings"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newEmployeeResponse(e *store.Employee) employeeResponse {
	return employeeResponse{
		Code:            e.Code,
		FullName:        e.FullName,
		Email:           e.Email,
		Phone:           e.Phone,
		Department:      e.Department,
		Position:        e.Position,
		ImagePaths:      e.ImagePaths,
		TotalEmbeddings: e.TotalEmbeddings,
		IsActive:        e.IsActive,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// List returns the enrolled employees, active only unless ?all=1.
func (h *EmployeesHandler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("all") == "1"

	employees, err := h.employees.ListEmployees(r.Context(), includeInactive)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("listing employees: %v", err))
		return
	}

	out := make([]employeeResponse, 0, len(employees))
	for i := range employees {
		out = append(out, newEmployeeResponse(&employees[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"employees": out,
		"count":     len(out),
	})
}

// Get returns one employee by code.
func (h *EmployeesHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	employee, err := h.employees.GetEmployee(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("loading employee: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, newEmployeeResponse(employee))
}

// Update patches the contact fields of an employee. Absent fields keep
// their current values.
func (h *EmployeesHandler) Update(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req struct {
		FullName   *string `json:"full_name"`
		Email      *string `json:"email"`
		Phone      *string `json:"phone"`
		Department *string `json:"department"`
		Position   *string `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	employee, err := h.employees.GetEmployee(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("loading employee: %v", err))
		return
	}

	if req.FullName != nil {
		if *req.FullName == "" {
			respondError(w, http.StatusBadRequest, "full_name cannot be empty")
			return
		}
		employee.FullName = *req.FullName
	}
	if req.Email != nil {
		employee.Email = *req.Email
	}
	if req.Phone != nil {
		employee.Phone = *req.Phone
	}
	if req.Department != nil {
		employee.Department = *req.Department
	}
	if req.Position != nil {
		employee.Position = *req.Position
	}

	if err := h.employees.UpdateEmployee(r.Context(), employee); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("updating employee: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, newEmployeeResponse(employee))
}

// Delete soft-deletes an employee and drops it from the identity snapshot.
func (h *EmployeesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.employees.DeactivateEmployee(r.Context(), code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("deactivating employee: %v", err))
		return
	}

	if err := h.reloadSnapshot(r); err != nil {
		// The registry change is committed; recognition keeps serving the
		// stale snapshot until the next successful reload.
		log.Printf("[web] snapshot reload after deactivating %s failed: %v", sanitizeForLog(code), err)
	}

	log.Printf("[web] employee %s deactivated", sanitizeForLog(code))
	respondJSON(w, http.StatusOK, map[string]string{
		"status":        "deactivated",
		"employee_code": code,
	})
}

// Reload rebuilds the identity snapshot from the store.
func (h *EmployeesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	employees, err := h.employees.ListEmployees(r.Context(), false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("listing employees: %v", err))
		return
	}

	indexed, err := h.engine.Reload(employees)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("rebuilding snapshot: %v", err))
		return
	}

	log.Printf("[web] identity snapshot reloaded: %d employees, %d embeddings", len(employees), indexed)
	respondJSON(w, http.StatusOK, map[string]int{
		"employees":  len(employees),
		"embeddings": indexed,
	})
}

func (h *EmployeesHandler) reloadSnapshot(r *http.Request) error {
	employees, err := h.employees.ListEmployees(r.Context(), false)
	if err != nil {
		return fmt.Errorf("listing employees: %w", err)
	}
	if _, err := h.engine.Reload(employees); err != nil {
		return fmt.Errorf("rebuilding snapshot: %w", err)
	}
	return nil
}
