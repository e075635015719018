package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/edgekit/facegate/internal/identity"
	"github.com/edgekit/facegate/internal/match"
	"github.com/edgekit/facegate/internal/store"
)

// TrainHandler handles the classifier training endpoint.
type TrainHandler struct {
	employees store.EmployeeStore
	engine    *match.Engine
	modelPath string
}

// NewTrainHandler creates a new train handler. modelPath is where the
// trained model is persisted; empty skips persistence.
func NewTrainHandler(employees store.EmployeeStore, engine *match.Engine, modelPath string) *TrainHandler {
	return &TrainHandler{
		employees: employees,
		engine:    engine,
		modelPath: modelPath,
	}
}

// Train fits a classifier on every active employee's embeddings, persists
// the model and hot-swaps it into the matching engine.
func (h *TrainHandler) Train(w http.ResponseWriter, r *http.Request) {
	employees, err := h.employees.ListEmployees(r.Context(), false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("listing employees: %v", err))
		return
	}

	var embeddings [][]float32
	var labels []string
	for _, emp := range employees {
		for _, emb := range emp.Embeddings {
			embeddings = append(embeddings, emb)
			labels = append(labels, emp.Code)
		}
	}
	if len(embeddings) == 0 {
		respondError(w, http.StatusConflict, "no enrolled embeddings to train on")
		return
	}

	model, err := identity.Train(embeddings, labels)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("training classifier: %v", err))
		return
	}

	if h.modelPath != "" {
		if err := model.SaveFile(h.modelPath); err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("saving model: %v", err))
			return
		}
	}
	h.engine.SetClassifier(model)

	log.Printf("[web] classifier trained: %d employees, %d embeddings", len(model.Labels()), len(embeddings))
	respondJSON(w, http.StatusOK, map[string]any{
		"employees":  len(model.Labels()),
		"embeddings": len(embeddings),
		"model_path": h.modelPath,
	})
}
