package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/edgekit/facegate/internal/pipeline"
)

// Pipeline is the dispatcher surface the stream endpoints drive. It is an
// interface so handler tests can stub the pipeline out.
type Pipeline interface {
	Start(sourceURL string) error
	Stop() error
	SwitchSource(url string) error
	Running() bool
	SourceURL() string
	Results() pipeline.Results
	Recognized(now time.Time) []pipeline.Sighting
	Events() *pipeline.Broadcaster
}

var _ Pipeline = (*pipeline.Dispatcher)(nil)

// StreamHandler handles the live recognition pipeline endpoints.
type StreamHandler struct {
	pipeline      Pipeline
	defaultSource string
}

// NewStreamHandler creates a new stream handler. defaultSource is the
// configured camera used when a start request names no source.
func NewStreamHandler(p Pipeline, defaultSource string) *StreamHandler {
	return &StreamHandler{
		pipeline:      p,
		defaultSource: defaultSource,
	}
}

// Start launches the pipeline on the requested capture source.
func (h *StreamHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	source := req.Source
	if source == "" {
		source = h.defaultSource
	}
	if source == "" {
		respondError(w, http.StatusBadRequest, "no capture source configured")
		return
	}

	if err := h.pipeline.Start(source); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "stream already running")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("starting stream: %v", err))
		return
	}

	log.Printf("[web] stream started on %s", sanitizeForLog(source))
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "started",
		"source": source,
	})
}

// Stop halts the pipeline.
func (h *StreamHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Stop(); err != nil {
		if errors.Is(err, pipeline.ErrNotRunning) {
			respondError(w, http.StatusConflict, "stream not running")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("stopping stream: %v", err))
		return
	}

	log.Printf("[web] stream stopped")
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// SwitchSource redirects the running pipeline to another capture source.
func (h *StreamHandler) SwitchSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Source == "" {
		respondError(w, http.StatusBadRequest, "source is required")
		return
	}

	if err := h.pipeline.SwitchSource(req.Source); err != nil {
		if errors.Is(err, pipeline.ErrNotRunning) {
			respondError(w, http.StatusConflict, "stream not running")
			return
		}
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	log.Printf("[web] stream source switch requested: %s", sanitizeForLog(req.Source))
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "switching",
		"source": req.Source,
	})
}

// Results returns the latest recognition results snapshot.
func (h *StreamHandler) Results(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.pipeline.Results())
}

// Recognized returns the employees recognized since the pipeline started,
// first sighting each.
func (h *StreamHandler) Recognized(w http.ResponseWriter, r *http.Request) {
	sightings := h.pipeline.Recognized(time.Now())
	if sightings == nil {
		sightings = []pipeline.Sighting{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"recognized": sightings,
		"count":      len(sightings),
	})
}

// Events streams the pipeline event feed over SSE until the client
// disconnects. The first event reports the pipeline status.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := h.pipeline.Events()
	ch := events.AddListener()
	defer events.RemoveListener(ch)

	sendSSEEvent(w, flusher, "status", map[string]any{
		"running": h.pipeline.Running(),
		"source":  h.pipeline.SourceURL(),
	})

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, string(ev.Type), ev)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
