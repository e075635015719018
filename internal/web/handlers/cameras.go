package handlers

import (
	"net/http"

	"github.com/edgekit/facegate/internal/capture"
)

type cameraResponse struct {
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
}

// Cameras enumerates the capture devices present on the host. Source is the
// URL to pass to the stream start endpoint.
func Cameras(w http.ResponseWriter, r *http.Request) {
	devices := capture.Devices()
	out := make([]cameraResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, cameraResponse{
			Path:   d.Path,
			Name:   d.Name,
			Source: "v4l2:" + d.Path,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cameras": out,
		"count":   len(out),
	})
}
