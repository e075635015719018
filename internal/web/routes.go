package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgekit/facegate/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Deps) {
	// Create handlers
	recognitionHandler := handlers.NewRecognitionHandler(
		deps.Detector, deps.Engine, deps.Tracker, deps.Store,
		s.config.Recognition.Threshold, s.config.Recognition.AllowFallback)
	streamHandler := handlers.NewStreamHandler(deps.Dispatcher, s.config.Camera.Source)
	enrollHandler := handlers.NewEnrollHandler(deps.Registry, deps.Detector, deps.Dispatcher.Events())
	employeesHandler := handlers.NewEmployeesHandler(deps.Store, deps.Engine)
	attendanceHandler := handlers.NewAttendanceHandler(deps.Store, deps.Tracker)
	trainHandler := handlers.NewTrainHandler(deps.Store, deps.Engine, s.config.Storage.ClassifierPath)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Single-shot recognition
		r.Post("/recognize", recognitionHandler.Recognize)

		// Live pipeline
		r.Get("/stream/events", streamHandler.Events)
		r.Post("/stream/start", streamHandler.Start)
		r.Post("/stream/stop", streamHandler.Stop)
		r.Get("/stream/results", streamHandler.Results)
		r.Post("/stream/source", streamHandler.SwitchSource)
		r.Get("/stream/recognized", streamHandler.Recognized)

		// Guided enrollment
		r.Post("/enroll", enrollHandler.Start)
		r.Get("/enroll", enrollHandler.List)
		r.Post("/enroll/{code}/frame", enrollHandler.Frame)
		r.Get("/enroll/{code}", enrollHandler.Progress)
		r.Post("/enroll/{code}/complete", enrollHandler.Complete)
		r.Delete("/enroll/{code}", enrollHandler.Cancel)

		// Employee registry
		r.Get("/employees", employeesHandler.List)
		r.Post("/employees/reload", employeesHandler.Reload)
		r.Get("/employees/{code}", employeesHandler.Get)
		r.Patch("/employees/{code}", employeesHandler.Update)
		r.Delete("/employees/{code}", employeesHandler.Delete)

		// Attendance
		r.Get("/attendance", attendanceHandler.List)
		r.Get("/attendance/today", attendanceHandler.Today)
		r.Get("/attendance/stats", attendanceHandler.Stats)

		// Classifier training
		r.Post("/train", trainHandler.Train)

		// Capture devices
		r.Get("/cameras", handlers.Cameras)
	})

	// Landing page for anyone poking the kiosk address with a browser
	s.router.Get("/", s.serveIndex)
}

// serveIndex serves a placeholder page; the kiosk UI is deployed separately.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>FaceGate</title>
    <style>
        body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; }
        h1 { color: #00d9ff; }
        p { color: #aaa; }
        a { color: #00d9ff; }
        code { background: #2a2a3e; padding: 2px 8px; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>FaceGate Kiosk</h1>
        <p>The kiosk UI is deployed separately and talks to this API.</p>
        <p>API is available at <a href="/api/v1/health">/api/v1/health</a></p>
    </div>
</body>
</html>`))
}
