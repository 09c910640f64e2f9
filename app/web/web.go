// Package web implements the JSON management API for the saved-tab
// collection: list with search and pagination, save from the browser,
// delete, clear, backup and export/restore.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/tabvault/tabvault/app/browser"
	"github.com/tabvault/tabvault/app/tabs"
)

// DefaultPageSize is used when the config doesn't set one
const DefaultPageSize = 20

// rate limit for save requests, each one hits the browser over CDP
var saveLimiter = tollbooth.NewLimiter(5, nil)

// TabsManager defines collection operations the server needs
type TabsManager interface {
	GetAll() ([]tabs.SavedTab, error)
	SaveBatch(candidates []tabs.Candidate) (int, error)
	DeleteByID(id string) error
	ClearAll() error
	Snapshot() ([]tabs.SavedTab, error)
}

// BrowserClient defines open-tab enumeration and close
type BrowserClient interface {
	List(ctx context.Context, scope browser.Scope) ([]browser.Tab, error)
	CloseTabs(ctx context.Context, ids []string)
}

// BackupRunner triggers an out-of-schedule backup
type BackupRunner interface {
	Run()
}

// BackupInfo reports when the backup key was last written, unix millis,
// zero if never
type BackupInfo interface {
	UpdatedAt(key string) (int64, error)
}

// Server represents the web server
type Server struct {
	tabs         TabsManager
	browser      BrowserClient // nil when no browser endpoint configured
	backup       BackupRunner
	backupInfo   BackupInfo
	pageSize     int
	version      string
	passwordHash string // bcrypt hash for basic auth, empty to disable
	uninstallURL string // data-loss notice URL reported by status
	startTime    time.Time
}

// Config holds server configuration
type Config struct {
	Tabs         TabsManager
	Browser      BrowserClient
	Backup       BackupRunner
	BackupInfo   BackupInfo
	PageSize     int
	Version      string
	PasswordHash string
	UninstallURL string
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Tabs == nil {
		return nil, fmt.Errorf("web server initialization failed: tabs manager is required")
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Server{
		tabs:         cfg.Tabs,
		browser:      cfg.Browser,
		backup:       cfg.Backup,
		backupInfo:   cfg.BackupInfo,
		pageSize:     pageSize,
		version:      cfg.Version,
		passwordHash: cfg.PasswordHash,
		uninstallURL: cfg.UninstallURL,
		startTime:    time.Now(),
	}, nil
}

// Run starts the web server, blocking until ctx is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("tabvault", "tabvault", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(1024*1024), // 1MB max request size, restore dumps included
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	if s.passwordHash != "" {
		log.Printf("[INFO] authentication enabled for API")
		router.Use(s.authMiddleware)
	}

	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)

		api.HandleFunc("GET /tabs", s.handleTabsList)
		api.With(tollbooth.HTTPMiddleware(saveLimiter)).HandleFunc("POST /tabs/save", s.handleTabsSave)
		api.HandleFunc("DELETE /tabs/{id}", s.handleTabDelete)
		api.HandleFunc("DELETE /tabs", s.handleTabsClear)

		api.HandleFunc("GET /backup", s.handleBackupList)
		api.HandleFunc("POST /backup/run", s.handleBackupRun)

		api.HandleFunc("GET /export", s.handleExport)
		api.HandleFunc("POST /restore", s.handleRestore)

		api.HandleFunc("GET /status", s.handleStatus)
	})

	return router
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[WARN] failed to encode JSON error response: %v", err)
	}
}
