// Package api provides the HTTP API and WebSocket event stream for scroll
// control.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"

	"eyescroll/internal/config"
	"eyescroll/internal/engine"
	"eyescroll/internal/scroll"
)

// Server provides HTTP API for remote control
type Server struct {
	configMgr *config.Manager
	engine    *engine.Engine
	wsMgr     *WSManager

	hubOnce sync.Once
	mu      sync.Mutex
	httpSrv *http.Server
}

// NewServer creates a new API server. Engine events are forwarded to
// WebSocket clients.
func NewServer(configMgr *config.Manager, eng *engine.Engine) *Server {
	s := &Server{
		configMgr: configMgr,
		engine:    eng,
	}
	s.wsMgr = newWSManager(s)
	eng.AddObserver(s.wsMgr.onEvent)
	return s
}

// Handler returns the API routes wrapped in auth and recovery middleware
func (s *Server) Handler() http.Handler {
	// Start WebSocket Manager
	s.hubOnce.Do(func() { go s.wsMgr.start() })

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sensitivity", s.handleSensitivity)
	mux.HandleFunc("/api/scroll", s.handleScroll)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start starts the API server on addr (host:port). It blocks until Stop
// is called or the server fails.
func (s *Server) Start(addr string) error {
	// Explicitly use tcp4 for IPv4 hosts to avoid IPv6-only binding issues on Windows
	network := "tcp"
	if host, _, err := net.SplitHostPort(addr); err == nil {
		if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
			network = "tcp4"
		}
	}

	ln, err := net.Listen(network, addr)
	if err != nil {
		log.Printf("ERROR: API server failed to listen on %s: %v", addr, err)
		log.Printf("Note: eyescroll will continue running without the HTTP API.")
		return err
	}
	return s.Serve(ln)
}

// Serve serves the API on ln until Stop is called
func (s *Server) Serve(ln net.Listener) error {
	server := &http.Server{Handler: s.Handler()}

	s.mu.Lock()
	s.httpSrv = server
	s.mu.Unlock()

	log.Printf("API: Listening on %s", ln.Addr())

	// This is blocking
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("ERROR: API server stopped: %v", err)
		return err
	}
	return nil
}

// Stop shuts the HTTP server and the WebSocket hub down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()

	s.wsMgr.stop()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOV: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("API: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		// Skip auth for health check
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		// If token is configured, verify it
		if token := s.configMgr.Get().API.Token; token != "" {
			authHeader := r.Header.Get("Authorization")
			expectedAuth := "Bearer " + token

			// Browsers cannot set headers on a WebSocket handshake
			if authHeader != expectedAuth && !(r.URL.Path == "/ws" && r.URL.Query().Get("token") == token) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.engine.Status())
}

type sensitivityBody struct {
	Sensitivity int `json:"sensitivity"`
}

// handleSensitivity handles GET (read) and POST (update) of the gaze sensitivity
func (s *Server) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		writeJSON(w, sensitivityBody{Sensitivity: s.configMgr.Sensitivity()})

	case "POST":
		var body sensitivityBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid sensitivity", http.StatusBadRequest)
			return
		}

		got := s.configMgr.SetSensitivity(body.Sensitivity)
		log.Printf("API: Sensitivity set to %d by %s", got, r.RemoteAddr)
		if err := s.configMgr.Save(); err != nil {
			log.Printf("API: Failed to save sensitivity: %v", err)
			http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
			return
		}
		writeJSON(w, sensitivityBody{Sensitivity: got})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleScroll handles POST /api/scroll?direction=<up|down>. A JSON body
// {"direction":"up"} is accepted as well.
func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Query().Get("direction")
	if raw == "" {
		var body struct {
			Direction string `json:"direction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Missing direction parameter", http.StatusBadRequest)
			return
		}
		raw = body.Direction
	}

	d, ok := scroll.ParseDirection(raw)
	if !ok || d == scroll.Center {
		http.Error(w, fmt.Sprintf("Invalid direction %q", raw), http.StatusBadRequest)
		return
	}

	delivered, err := s.engine.Dispatch(engine.OriginAPI, d)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"direction": d,
		"delivered": delivered,
	})
}

// handleConfig handles GET (read) and POST (update) for configuration
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		writeJSON(w, s.configMgr.Get())

	case "POST":
		cur := s.configMgr.Get()
		newCfg := s.configMgr.Get()
		if err := json.NewDecoder(r.Body).Decode(newCfg); err != nil {
			http.Error(w, "Invalid configuration data", http.StatusBadRequest)
			return
		}

		if locked := fileOnlyChanges(cur, newCfg); len(locked) > 0 {
			log.Printf("API: Rejected configuration update from %s touching %v", r.RemoteAddr, locked)
			http.Error(w, fmt.Sprintf("%s can only be changed in %s", strings.Join(locked, ", "), s.configMgr.Path()), http.StatusForbidden)
			return
		}

		log.Printf("API: Receiving configuration update from %s", r.RemoteAddr)

		// Update in-memory config and save to disk
		s.configMgr.Set(newCfg)
		if err := s.configMgr.Save(); err != nil {
			log.Printf("API: Failed to save received config: %v", err)
			http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// fileOnlyChanges lists the settings that differ between cur and next but
// may only be edited in the config file: the recognizer command line, and
// the API's own bind address and token.
func fileOnlyChanges(cur, next *config.Config) []string {
	var locked []string
	if next.Gaze.RecognizerCmd != cur.Gaze.RecognizerCmd {
		locked = append(locked, "gaze.recognizer_cmd")
	}
	if !slices.Equal(next.Gaze.RecognizerArgs, cur.Gaze.RecognizerArgs) {
		locked = append(locked, "gaze.recognizer_args")
	}
	if next.Gaze.RecognizerDir != cur.Gaze.RecognizerDir {
		locked = append(locked, "gaze.recognizer_dir")
	}
	if next.API.Bind != cur.API.Bind {
		locked = append(locked, "api.bind")
	}
	if next.API.Token != cur.API.Token {
		locked = append(locked, "api.token")
	}
	return locked
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
