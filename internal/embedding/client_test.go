package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// jpegHeader is enough of a JPEG to satisfy MIME detection.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}

func setupMockServer(t *testing.T, response string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("expected path /embed/face, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart request, got %s", r.Header.Get("Content-Type"))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected file part: %v", err)
		} else {
			file.Close()
		}
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
}

func TestDetect(t *testing.T) {
	response := `{
		"faces_count": 2,
		"faces": [
			{
				"face_index": 0,
				"dim": 4,
				"embedding": [0.1, 0.2, 0.3, 0.4],
				"bbox": [10.0, 20.0, 110.0, 140.0],
				"landmarks": [[30, 50], [90, 50], [60, 80], [40, 110], [80, 110]],
				"det_score": 0.98
			},
			{
				"face_index": 1,
				"dim": 4,
				"embedding": [0.4, 0.3, 0.2, 0.1],
				"bbox": [200.0, 20.0, 300.0, 140.0],
				"landmarks": [[220, 50], [280, 50], [250, 80], [230, 110], [270, 110]],
				"det_score": 0.91
			}
		],
		"model_version": "buffalo_l"
	}`
	server := setupMockServer(t, response, http.StatusOK)
	defer server.Close()

	client := NewClient(server.URL, 4)
	faces, err := client.Detect(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].Index != 0 || faces[1].Index != 1 {
		t.Errorf("unexpected face indexes: %d, %d", faces[0].Index, faces[1].Index)
	}
	if faces[0].BBox != [4]float64{10, 20, 110, 140} {
		t.Errorf("unexpected bbox: %v", faces[0].BBox)
	}
	if len(faces[0].Landmarks) != LandmarkPoints {
		t.Errorf("expected %d landmarks, got %d", LandmarkPoints, len(faces[0].Landmarks))
	}
	if faces[0].DetScore != 0.98 {
		t.Errorf("expected det score 0.98, got %v", faces[0].DetScore)
	}
	if faces[0].Embedding[2] != 0.3 {
		t.Errorf("unexpected embedding: %v", faces[0].Embedding)
	}
}

func TestDetectNoFaces(t *testing.T) {
	server := setupMockServer(t, `{"faces_count": 0, "faces": [], "model_version": "buffalo_l"}`, http.StatusOK)
	defer server.Close()

	client := NewClient(server.URL, 512)
	faces, err := client.Detect(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
}

func TestDetectServerError(t *testing.T) {
	server := setupMockServer(t, `{"error": "model not loaded"}`, http.StatusInternalServerError)
	defer server.Close()

	client := NewClient(server.URL, 512)
	_, err := client.Detect(context.Background(), jpegHeader)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestDetectEmptyEmbedding(t *testing.T) {
	response := `{"faces_count": 1, "faces": [{"face_index": 0, "dim": 0, "embedding": [], "bbox": [0,0,1,1], "det_score": 0.5}]}`
	server := setupMockServer(t, response, http.StatusOK)
	defer server.Close()

	client := NewClient(server.URL, 512)
	_, err := client.Detect(context.Background(), jpegHeader)
	if err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestDetectOne(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  string
	}{
		{
			name:     "exactly one face",
			response: `{"faces_count": 1, "faces": [{"face_index": 0, "dim": 2, "embedding": [0.6, 0.8], "bbox": [0,0,10,10], "det_score": 0.9}]}`,
		},
		{
			name:     "no faces",
			response: `{"faces_count": 0, "faces": []}`,
			wantErr:  "no face detected",
		},
		{
			name: "multiple faces",
			response: `{"faces_count": 2, "faces": [
				{"face_index": 0, "dim": 2, "embedding": [0.6, 0.8], "bbox": [0,0,10,10], "det_score": 0.9},
				{"face_index": 1, "dim": 2, "embedding": [0.8, 0.6], "bbox": [20,0,30,10], "det_score": 0.8}
			]}`,
			wantErr: "expected exactly one face",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockServer(t, tt.response, http.StatusOK)
			defer server.Close()

			client := NewClient(server.URL, 2)
			face, err := client.DetectOne(context.Background(), jpegHeader)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("DetectOne failed: %v", err)
				}
				if face == nil || len(face.Embedding) != 2 {
					t.Errorf("unexpected face: %+v", face)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("", 0)
	if client.baseURL != defaultBaseURL {
		t.Errorf("expected default base URL, got %s", client.baseURL)
	}
	if client.Dim() != defaultDim {
		t.Errorf("expected default dim %d, got %d", defaultDim, client.Dim())
	}

	trimmed := NewClient("http://embedder:9000/", 128)
	if trimmed.baseURL != "http://embedder:9000" {
		t.Errorf("expected trailing slash trimmed, got %s", trimmed.baseURL)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpegHeader, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"short", []byte{0x00}, "application/octet-stream"},
		{"unknown", []byte("notanimageatall"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
