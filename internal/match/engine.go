// Package match decides who a face belongs to. It combines the trained
// classifier with a nearest-neighbor search over the identity snapshot and
// reports the winning path's score and method.
package match

import (
	"errors"
	"sync/atomic"

	"github.com/edgekit/facegate/internal/identity"
	"github.com/edgekit/facegate/internal/store"
)

// Unknown is the identity reported when no known employee wins.
const Unknown = "unknown"

// Method tags which matching path produced a score.
type Method string

const (
	MethodClassifier      Method = "classifier"
	MethodNearestNeighbor Method = "nearest-neighbor"
	MethodNone            Method = "none"
)

// Result is one matching decision for one face. Immutable value.
type Result struct {
	EmployeeCode string
	Score        float64
	Method       Method
	BBox         [4]float64
}

// classifierCell wraps the interface so atomic.Value always stores one
// concrete type.
type classifierCell struct {
	c identity.Classifier
}

// Engine matches face embeddings against the enrolled identities. The
// identity snapshot and the classifier are both swapped atomically on
// reload, so Match is safe to call concurrently with reloads.
type Engine struct {
	identities *identity.Store
	classifier atomic.Value // *classifierCell
}

// NewEngine creates an engine over the given identity store. The
// classifier is absent until SetClassifier is called.
func NewEngine(identities *identity.Store) *Engine {
	if identities == nil {
		identities = identity.NewStore()
	}
	e := &Engine{identities: identities}
	e.classifier.Store(&classifierCell{})
	return e
}

// SetClassifier hot-swaps the classifier. Passing nil removes it.
func (e *Engine) SetClassifier(c identity.Classifier) {
	e.classifier.Store(&classifierCell{c: c})
}

// Classifier returns the current classifier, or nil when none is loaded.
func (e *Engine) Classifier() identity.Classifier {
	cell, _ := e.classifier.Load().(*classifierCell)
	if cell == nil {
		return nil
	}
	return cell.c
}

// Identities returns the engine's identity store.
func (e *Engine) Identities() *identity.Store {
	return e.identities
}

// Reload rebuilds the identity snapshot from employee records and swaps it
// in atomically. Returns the number of indexed embeddings.
func (e *Engine) Reload(employees []store.Employee) (int, error) {
	identities := make([]identity.Identity, 0, len(employees))
	for _, emp := range employees {
		if !emp.IsActive {
			continue
		}
		identities = append(identities, identity.Identity{
			Code:       emp.Code,
			Embeddings: emp.Embeddings,
			Mean:       emp.MeanEmbedding,
		})
	}

	snapshot, err := identity.NewSnapshot(identities)
	if err != nil {
		return 0, err
	}
	e.identities.Swap(snapshot)
	return snapshot.Len(), nil
}

// Match decides the identity for one embedding. The classifier runs first
// when loaded; the nearest-neighbor path runs when fallback is allowed and
// wins only with a strictly higher score, so an exact tie keeps the
// classifier's answer. A winning score below the threshold reports the
// identity as unknown while preserving the score and method. When neither
// path produced a score the method is "none".
func (e *Engine) Match(embedding []float32, threshold float64, allowFallback bool) Result {
	result := Result{EmployeeCode: Unknown, Method: MethodNone}
	if len(embedding) == 0 {
		return result
	}

	var (
		candidate string
		score     float64
		method    = MethodNone
	)

	if c := e.Classifier(); c != nil {
		label, prob, err := c.Predict(embedding)
		switch {
		case err == nil:
			candidate, score, method = label, prob, MethodClassifier
		case errors.Is(err, identity.ErrNoModel):
			// No model yet; the similarity path decides alone.
		default:
			// A broken classifier must not take the kiosk down.
		}
	}

	if allowFallback {
		if neighbor, ok := e.identities.Current().Nearest(embedding); ok {
			if method == MethodNone || neighbor.Similarity > score {
				candidate, score, method = neighbor.Code, neighbor.Similarity, MethodNearestNeighbor
			}
		}
	}

	if method == MethodNone {
		return result
	}

	result.Score = score
	result.Method = method
	if score >= threshold {
		result.EmployeeCode = candidate
	}
	return result
}
