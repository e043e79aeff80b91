// Package devsim provides an in-process simulated device. It serves the same
// HTTP surface as a real device (info query, home navigation, installer
// endpoints) and is used by integration tests and the `castforge simulate`
// command.
package devsim

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Config
// =============================================================================

// Config configures the simulated device.
type Config struct {
	// Name, Model, Serial, SoftwareVersion feed the device-info document.
	Name            string
	Model           string
	Serial          string
	SoftwareVersion string

	// Credential is the installer password. Empty rejects all installer
	// requests.
	Credential string

	// SignKey, when set, must match the submitted passwd on rekey and
	// package requests; a simulated device that was never rekeyed accepts
	// any key and adopts the first one it sees.
	SignKey string

	// OperationDelay slows installer operations down to exercise timeout
	// paths. Default: none.
	OperationDelay time.Duration
}

// =============================================================================
// Simulator
// =============================================================================

// Simulator is a fake device. Its state (installed app, adopted sign key) is
// mutated by the installer endpoints, mirroring how a real device behaves
// across a deploy run.
type Simulator struct {
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	installed bool
	signKey   string
}

// New creates a simulator.
func New(config Config, logger *slog.Logger) *Simulator {
	if config.Name == "" {
		config.Name = "Simulated Device"
	}
	if config.Model == "" {
		config.Model = "SIM-1"
	}
	if config.Serial == "" {
		config.Serial = "SIM0001"
	}
	if config.SoftwareVersion == "" {
		config.SoftwareVersion = "1.0.0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		config:  config,
		logger:  logger.With("component", "devsim"),
		signKey: config.SignKey,
	}
}

// Handler returns the simulator's HTTP surface.
func (s *Simulator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/query/device-info", s.handleInfo)
	r.Post("/keypress/home", s.handleHome)
	r.Get("/installer/status", s.requireAuth(s.handleStatus))
	r.Post("/plugin_install", s.requireAuth(s.handleInstall))
	r.Post("/plugin_package", s.requireAuth(s.handlePackage))

	return r
}

// Installed reports whether an app has been installed since startup.
func (s *Simulator) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Simulator) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprintf(w, `<?xml version="1.0"?>
<device-info>
  <friendly-name>%s</friendly-name>
  <model-name>%s</model-name>
  <serial-number>%s</serial-number>
  <software-version>%s</software-version>
  <device-class>simulator</device-class>
</device-info>`,
		s.config.Name, s.config.Model, s.config.Serial, s.config.SoftwareVersion)
}

func (s *Simulator) handleHome(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
}

func (s *Simulator) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	installed := s.installed
	s.mu.Unlock()
	fmt.Fprintf(w, `{"installed":%t}`, installed)
}

func (s *Simulator) handleInstall(w http.ResponseWriter, r *http.Request) {
	s.delay()
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	switch r.FormValue("mysubmit") {
	case "Install":
		if _, _, err := r.FormFile("archive"); err != nil {
			http.Error(w, "missing archive", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.installed = true
		s.mu.Unlock()
		s.logger.Info("app installed")

	case "Rekey":
		key := r.FormValue("passwd")
		if _, _, err := r.FormFile("archive"); err != nil {
			http.Error(w, "missing reference package", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		if s.signKey != "" && s.signKey != key {
			s.mu.Unlock()
			http.Error(w, "sign key mismatch", http.StatusForbidden)
			return
		}
		s.signKey = key
		s.mu.Unlock()
		s.logger.Info("device rekeyed")

	default:
		http.Error(w, "unknown operation", http.StatusBadRequest)
		return
	}
}

func (s *Simulator) handlePackage(w http.ResponseWriter, r *http.Request) {
	s.delay()
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	installed := s.installed
	signKey := s.signKey
	s.mu.Unlock()

	if !installed {
		http.Error(w, "no app installed", http.StatusBadRequest)
		return
	}
	if signKey != "" && r.FormValue("passwd") != signKey {
		http.Error(w, "sign key mismatch", http.StatusForbidden)
		return
	}

	appName := r.FormValue("app_name")
	w.Header().Set("Content-Type", "application/octet-stream")
	fmt.Fprintf(w, "signed-package:%s", appName)
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Simulator) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, pass, ok := r.BasicAuth()
		if !ok || s.config.Credential == "" || pass != s.config.Credential {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Simulator) delay() {
	if s.config.OperationDelay > 0 {
		time.Sleep(s.config.OperationDelay)
	}
}
