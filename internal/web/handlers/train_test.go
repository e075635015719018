package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/edgekit/facegate/internal/match"
)

func TestTrainFitsAndPersists(t *testing.T) {
	s := newTestStore(t)
	seedEmployee(t, s, "alice", "Alice Doe", []float32{1, 0})
	seedEmployee(t, s, "bob", "Bob Roe", []float32{0, 1})
	engine := match.NewEngine(nil)

	modelPath := filepath.Join(t.TempDir(), "classifier.json")
	h := NewTrainHandler(s, engine, modelPath)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/train", nil)
	recorder := httptest.NewRecorder()
	h.Train(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Employees  int    `json:"employees"`
		Embeddings int    `json:"embeddings"`
		ModelPath  string `json:"model_path"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Employees != 2 || resp.Embeddings != 2 {
		t.Errorf("unexpected training summary: %+v", resp)
	}

	if _, err := os.Stat(modelPath); err != nil {
		t.Errorf("expected persisted model at %s: %v", modelPath, err)
	}

	// The fresh classifier is live immediately.
	result := engine.Match([]float32{1, 0}, 0.8, false)
	if result.EmployeeCode != "alice" {
		t.Errorf("expected classifier to recognize alice, got %q", result.EmployeeCode)
	}
	if result.Method != match.MethodClassifier {
		t.Errorf("expected classifier method, got %q", result.Method)
	}
}

func TestTrainWithoutEmbeddings(t *testing.T) {
	s := newTestStore(t)
	h := NewTrainHandler(s, match.NewEngine(nil), "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/train", nil)
	recorder := httptest.NewRecorder()
	h.Train(recorder, req)

	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, "no enrolled embeddings to train on")
}
