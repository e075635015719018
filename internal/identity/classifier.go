package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// softmaxScale sharpens centroid similarities before the softmax so the
// reported probability separates close and distant identities usefully.
const softmaxScale = 10.0

var ErrNoModel = errors.New("no classifier model")

// Classifier predicts the most likely identity for an embedding.
// Implementations must be safe for concurrent Predict calls.
type Classifier interface {
	Predict(embedding []float32) (label string, probability float64, err error)
	Labels() []string
}

// CentroidClassifier is a nearest-centroid model: one unit-length mean
// vector per identity, with a softmax over scaled cosine similarities as
// the predicted probability. Exported fields make up the persisted model.
type CentroidClassifier struct {
	Dim       int         `json:"dim"`
	Scale     float64     `json:"scale"`
	LabelList []string    `json:"labels"`
	Centroids [][]float32 `json:"centroids"`
}

// Train builds a centroid model from parallel embedding/label slices.
// Labels are sorted so training is reproducible for a fixed input set.
func Train(embeddings [][]float32, labels []string) (*CentroidClassifier, error) {
	if len(embeddings) == 0 {
		return nil, errors.New("no training samples")
	}
	if len(embeddings) != len(labels) {
		return nil, fmt.Errorf("got %d embeddings for %d labels", len(embeddings), len(labels))
	}

	dim := len(embeddings[0])
	grouped := make(map[string][][]float32)
	for i, emb := range embeddings {
		if len(emb) != dim {
			return nil, fmt.Errorf("sample %d: embedding dim %d, expected %d", i, len(emb), dim)
		}
		if labels[i] == "" {
			return nil, fmt.Errorf("sample %d has an empty label", i)
		}
		grouped[labels[i]] = append(grouped[labels[i]], emb)
	}

	labelList := make([]string, 0, len(grouped))
	for label := range grouped {
		labelList = append(labelList, label)
	}
	sort.Strings(labelList)

	model := &CentroidClassifier{
		Dim:       dim,
		Scale:     softmaxScale,
		LabelList: labelList,
		Centroids: make([][]float32, len(labelList)),
	}
	for i, label := range labelList {
		centroid := normalize(MeanEmbedding(grouped[label]))
		if centroid == nil {
			return nil, fmt.Errorf("label %q: degenerate centroid", label)
		}
		model.Centroids[i] = centroid
	}
	return model, nil
}

// Predict returns the best label and its softmax probability.
func (c *CentroidClassifier) Predict(embedding []float32) (string, float64, error) {
	if c == nil || len(c.LabelList) == 0 {
		return "", 0, ErrNoModel
	}
	if len(embedding) != c.Dim {
		return "", 0, fmt.Errorf("embedding dim %d, model dim %d", len(embedding), c.Dim)
	}

	scores := make([]float64, len(c.Centroids))
	maxScore := math.Inf(-1)
	for i, centroid := range c.Centroids {
		scores[i] = c.Scale * CosineSimilarity(embedding, centroid)
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
	}

	// Softmax with the max subtracted for numeric stability.
	var sum float64
	for i := range scores {
		scores[i] = math.Exp(scores[i] - maxScore)
		sum += scores[i]
	}

	bestIdx := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[bestIdx] {
			bestIdx = i
		}
	}
	return c.LabelList[bestIdx], scores[bestIdx] / sum, nil
}

// Labels returns the identity codes the model was trained on.
func (c *CentroidClassifier) Labels() []string {
	if c == nil {
		return nil
	}
	return c.LabelList
}

// SaveFile persists the model as JSON, creating parent directories.
func (c *CentroidClassifier) SaveFile(path string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding classifier model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing classifier model: %w", err)
	}
	return nil
}

// LoadClassifier reads a persisted centroid model. A missing file is
// reported as ErrNoModel so callers can fall back silently.
func LoadClassifier(path string) (*CentroidClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoModel
		}
		return nil, fmt.Errorf("reading classifier model: %w", err)
	}

	var model CentroidClassifier
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("decoding classifier model: %w", err)
	}
	if len(model.LabelList) != len(model.Centroids) {
		return nil, fmt.Errorf("model has %d labels but %d centroids", len(model.LabelList), len(model.Centroids))
	}
	if model.Scale <= 0 {
		model.Scale = softmaxScale
	}
	return &model, nil
}
