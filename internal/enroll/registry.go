package enroll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/edgekit/facegate/internal/embedding"
	"github.com/edgekit/facegate/internal/headpose"
	"github.com/edgekit/facegate/internal/identity"
	"github.com/edgekit/facegate/internal/match"
	"github.com/edgekit/facegate/internal/store"
)

var (
	ErrSessionExists     = errors.New("enrollment session already exists")
	ErrSessionNotFound   = errors.New("enrollment session not found")
	ErrSessionIncomplete = errors.New("enrollment session is not complete")
)

// Detector is the slice of the embedding client the registry needs to
// finalize a session.
type Detector interface {
	DetectOne(ctx context.Context, image []byte) (*embedding.Face, error)
}

var _ Detector = (*embedding.Client)(nil)

// Registry owns the live enrollment sessions, one per employee code, and
// finalizes completed ones into employee records.
type Registry struct {
	dataDir   string
	targets   headpose.TargetSet
	detector  Detector
	employees store.EmployeeStore
	engine    *match.Engine

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry storing captures under
// <dataDir>/enroll/<employee code>.
func NewRegistry(dataDir string, detector Detector, employees store.EmployeeStore, engine *match.Engine) *Registry {
	return &Registry{
		dataDir:   dataDir,
		targets:   headpose.DefaultTargets(),
		detector:  detector,
		employees: employees,
		engine:    engine,
		sessions:  make(map[string]*Session),
	}
}

// Start opens a session for an employee. An employee has at most one live
// session; starting a second returns ErrSessionExists.
func (r *Registry) Start(employeeCode, fullName string) (*Session, error) {
	if employeeCode == "" {
		return nil, errors.New("employee code is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[employeeCode]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, employeeCode)
	}

	dir := filepath.Join(r.dataDir, "enroll", employeeCode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	session := newSession(employeeCode, fullName, dir, r.targets)
	r.sessions[employeeCode] = session

	log.Printf("[enroll] session %s started for %s", session.ID, employeeCode)
	return session, nil
}

// Get returns the live session for an employee.
func (r *Registry) Get(employeeCode string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[employeeCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, employeeCode)
	}
	return session, nil
}

// Active returns the live sessions ordered by employee code.
func (r *Registry) Active() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeCode < out[j].EmployeeCode })
	return out
}

// Cancel destroys a live session and its capture files.
func (r *Registry) Cancel(employeeCode string) error {
	r.mu.Lock()
	session, ok := r.sessions[employeeCode]
	if ok {
		delete(r.sessions, employeeCode)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, employeeCode)
	}

	if err := os.RemoveAll(session.dir); err != nil {
		log.Printf("[enroll] could not remove captures for %s: %v", employeeCode, err)
	}
	log.Printf("[enroll] session %s cancelled", session.ID)
	return nil
}

// Complete finalizes a completed session: every capture is embedded, the
// mean embedding computed and the employee created, then the identity
// snapshot is reloaded and the session destroyed. Any failure before the
// employee exists leaves the session and its captures untouched.
func (r *Registry) Complete(ctx context.Context, employeeCode string) (*store.Employee, error) {
	session, err := r.Get(employeeCode)
	if err != nil {
		return nil, err
	}

	progress := session.Progress()
	if !progress.Complete {
		return nil, fmt.Errorf("%w: %d of %d poses captured", ErrSessionIncomplete,
			len(progress.Captured), len(progress.Captured)+len(progress.Remaining))
	}

	captures := session.Captures()
	embeddings := make([][]float32, 0, len(captures))
	paths := make([]string, 0, len(captures))

	for _, target := range r.targets.Order {
		path := captures[target]
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s capture: %w", target, err)
		}
		face, err := r.detector.DetectOne(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s capture: %w", target, err)
		}
		embeddings = append(embeddings, face.Embedding)
		paths = append(paths, path)
	}

	fullName := session.FullName
	if fullName == "" {
		fullName = session.EmployeeCode
	}

	created := &store.Employee{
		Code:            session.EmployeeCode,
		FullName:        fullName,
		Embeddings:      embeddings,
		MeanEmbedding:   identity.MeanEmbedding(embeddings),
		ImagePaths:      paths,
		TotalEmbeddings: len(embeddings),
		IsActive:        true,
	}
	if err := r.employees.CreateEmployee(ctx, created); err != nil {
		return nil, fmt.Errorf("create employee: %w", err)
	}

	if r.engine != nil {
		if err := r.reloadEngine(ctx); err != nil {
			log.Printf("[enroll] snapshot reload after enrolling %s failed: %v", employeeCode, err)
		}
	}

	r.mu.Lock()
	delete(r.sessions, employeeCode)
	r.mu.Unlock()

	log.Printf("[enroll] session %s completed, employee %s created", session.ID, created.Code)
	return created, nil
}

func (r *Registry) reloadEngine(ctx context.Context) error {
	employees, err := r.employees.ListEmployees(ctx, false)
	if err != nil {
		return fmt.Errorf("list employees: %w", err)
	}
	count, err := r.engine.Reload(employees)
	if err != nil {
		return err
	}
	log.Printf("[enroll] identity snapshot reloaded, %d identities", count)
	return nil
}
