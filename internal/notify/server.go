// Package notify provides the local HTTP API and WebSocket push channel
// used by frontends to manage bindings and observe activity.
package notify

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"usbtrigger/internal/action"
	"usbtrigger/internal/config"
	"usbtrigger/internal/hid"
	"usbtrigger/internal/logging"
)

// Controller is the slice of the background listener the API needs.
type Controller interface {
	Running() bool
	StartIdentify() error
	StopIdentify()
}

// Server provides the HTTP API for local control
type Server struct {
	store   *config.Store
	devices *hid.Manager
	ctrl    Controller
	wsMgr   *WSManager

	// TestAction runs an action config once, outside any binding.
	TestAction func(cfg action.Config) error

	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(store *config.Store, devices *hid.Manager, ctrl Controller) *Server {
	s := &Server{
		store:   store,
		devices: devices,
		ctrl:    ctrl,
	}
	s.wsMgr = newWSManager(s)
	return s
}

// Broadcast pushes an event to every connected WebSocket client.
func (s *Server) Broadcast(event string, payload interface{}) {
	s.wsMgr.Broadcast(event, payload)
}

// Start begins serving on addr. Push of new activity log entries is
// wired here. The returned error covers listen failures only; serve
// errors are logged.
func (s *Server) Start(addr string) error {
	go s.wsMgr.start()

	s.store.OnLog(func(e config.LogEntry) {
		s.wsMgr.Broadcast("log-entry", e)
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logging.Log.Error("API server failed to listen",
			zap.String("addr", addr),
			zap.Error(err),
		)
		return err
	}

	logging.Log.Info("API server listening", zap.String("addr", addr))

	s.httpServer = &http.Server{
		Handler: s.logMiddleware(s.recoverMiddleware(s.routes())),
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Log.Error("API server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server and the WebSocket hub down.
func (s *Server) Stop() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.wsMgr.stop()
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/bindings", s.handleBindings)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/test-action", s.handleTestAction)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.Log.Error("API handler panicked", zap.Any("panic", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Log.Debug("API request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleDevices handles GET /api/devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices, err := s.devices.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, devices)
}

// handleBindings handles GET (list), POST (upsert) and DELETE (by id)
func (s *Server) handleBindings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		if deviceID := r.URL.Query().Get("deviceId"); deviceID != "" {
			b, ok := s.store.GetBinding(deviceID)
			if !ok {
				http.Error(w, "No binding for device", http.StatusNotFound)
				return
			}
			writeJSON(w, b)
			return
		}
		writeJSON(w, s.store.GetAllBindings())

	case "POST":
		var b action.Binding
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			http.Error(w, "Invalid binding data", http.StatusBadRequest)
			return
		}
		saved, err := s.store.SaveBinding(b)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.devices.SetConfigured(saved.DeviceID)
		writeJSON(w, saved)

	case "DELETE":
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Missing id parameter", http.StatusBadRequest)
			return
		}
		var deviceID string
		for _, b := range s.store.GetAllBindings() {
			if b.ID == id {
				deviceID = b.DeviceID
				break
			}
		}
		removed, err := s.store.DeleteBinding(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !removed {
			http.Error(w, "No such binding", http.StatusNotFound)
			return
		}
		s.devices.SetUnconfigured(deviceID)
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSettings handles GET (read) and POST (update)
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		writeJSON(w, s.store.Settings())

	case "POST":
		var settings config.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "Invalid settings data", http.StatusBadRequest)
			return
		}
		if err := s.store.SaveSettings(settings); err != nil {
			http.Error(w, "Failed to save settings", http.StatusInternalServerError)
			return
		}
		logging.Log.Info("Settings updated", zap.String("logLevel", settings.LogLevel))
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLogs handles GET /api/logs?limit=N and DELETE /api/logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
				return
			}
			limit = n
		}
		writeJSON(w, s.store.Logs(limit))

	case "DELETE":
		if err := s.store.ClearLogs(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTestAction handles POST /api/test-action with an action config body
func (s *Server) handleTestAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.TestAction == nil {
		http.Error(w, "Test execution unavailable", http.StatusServiceUnavailable)
		return
	}

	var cfg action.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid action data", http.StatusBadRequest)
		return
	}

	if err := s.TestAction(cfg); err != nil {
		writeJSON(w, map[string]string{"status": "failed", "error": err.Error()})
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]interface{}{
		"monitoring":        s.ctrl.Running(),
		"configuredDevices": s.store.ConfiguredDeviceIDs(),
	})
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
