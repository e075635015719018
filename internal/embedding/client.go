// Package embedding talks to the external face embedding service. The
// service detects faces in an image and returns one normalized embedding,
// bounding box and landmark set per face.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultDim     = 512
)

// LandmarkPoints is the number of facial landmarks per detected face.
// Layout: left eye, right eye, nose tip, left mouth corner, right mouth
// corner.
const LandmarkPoints = 5

// Face is one detected face with its embedding and geometry.
type Face struct {
	Index     int
	Dim       int
	Embedding []float32
	BBox      [4]float64 // [x1, y1, x2, y2] in pixel coordinates
	Landmarks [][2]float64
	DetScore  float64
}

// Client computes face embeddings using the embedding service.
type Client struct {
	baseURL string
	dim     int
	client  *http.Client
}

// NewClient creates a new embedding service client.
func NewClient(baseURL string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if dim <= 0 {
		dim = defaultDim
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Dim returns the embedding dimension the service is expected to produce.
func (c *Client) Dim() int {
	return c.dim
}

// faceDetection represents a single detected face on the wire.
type faceDetection struct {
	FaceIndex int          `json:"face_index"`
	Dim       int          `json:"dim"`
	Embedding []float32    `json:"embedding"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	Landmarks [][2]float64 `json:"landmarks"`
	DetScore  float64      `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint.
type faceResponse struct {
	FacesCount   int             `json:"faces_count"`
	Faces        []faceDetection `json:"faces"`
	ModelVersion string          `json:"model_version"`
}

// Detect finds faces in the image and returns their embeddings. An image
// without faces yields an empty slice, not an error.
func (c *Client) Detect(ctx context.Context, image []byte) ([]Face, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", image)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]Face, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding for face %d", f.FaceIndex)
		}
		face := Face{
			Index:     f.FaceIndex,
			Dim:       f.Dim,
			Embedding: f.Embedding,
			Landmarks: f.Landmarks,
			DetScore:  f.DetScore,
		}
		copy(face.BBox[:], f.BBox)
		faces = append(faces, face)
	}
	return faces, nil
}

// DetectOne finds exactly one face in the image, as required when building
// an identity from an enrollment capture.
func (c *Client) DetectOne(ctx context.Context, image []byte) (*Face, error) {
	faces, err := c.Detect(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, errors.New("no face detected")
	}
	if len(faces) > 1 {
		return nil, fmt.Errorf("expected exactly one face, detected %d", len(faces))
	}
	return &faces[0], nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint. The part carries an explicit Content-Type
// header based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
