package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/edgekit/facegate/internal/embedding"
	"github.com/edgekit/facegate/internal/match"
	"github.com/edgekit/facegate/internal/store"
	"github.com/edgekit/facegate/internal/store/memory"
)

// stubDetector fakes the embedding engine for handler tests.
type stubDetector struct {
	faces []embedding.Face
	err   error
}

func (s *stubDetector) Detect(_ context.Context, _ []byte) ([]embedding.Face, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.faces, nil
}

// newTestStore creates an in-memory store that closes with the test.
func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedEmployee inserts an active employee with a one-vector identity.
func seedEmployee(t *testing.T, s store.EmployeeStore, code, name string, emb []float32) {
	t.Helper()
	err := s.CreateEmployee(context.Background(), &store.Employee{
		Code:            code,
		FullName:        name,
		Embeddings:      [][]float32{emb},
		MeanEmbedding:   emb,
		TotalEmbeddings: 1,
		IsActive:        true,
	})
	if err != nil {
		t.Fatalf("could not seed employee %s: %v", code, err)
	}
}

// newTestEngine builds a match engine loaded from the store's employees.
func newTestEngine(t *testing.T, s store.EmployeeStore) *match.Engine {
	t.Helper()
	engine := match.NewEngine(nil)
	employees, err := s.ListEmployees(context.Background(), false)
	if err != nil {
		t.Fatalf("could not list employees: %v", err)
	}
	if _, err := engine.Reload(employees); err != nil {
		t.Fatalf("could not reload engine: %v", err)
	}
	return engine
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartImageRequest builds a request carrying a small JPEG in the
// "image" field.
func multipartImageRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, img, nil); err != nil {
		t.Fatalf("could not encode test image: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		t.Fatalf("could not create form file: %v", err)
	}
	if _, err := part.Write(jpegBuf.Bytes()); err != nil {
		t.Fatalf("could not write form file: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("could not marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
