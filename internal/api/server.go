package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/fundingradar/internal/ingest"
)

// Server exposes the latest dataset over HTTP and lets an operator trigger
// a fresh run.
type Server struct {
	echo        *echo.Echo
	pipeline    *ingest.Pipeline
	adminSecret string

	mu      sync.RWMutex
	dataset *ingest.Dataset
	running bool
}

func NewServer(pipeline *ingest.Pipeline, adminSecret string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())

	s := &Server{echo: e, pipeline: pipeline, adminSecret: adminSecret}

	e.GET("/health", s.handleHealth)
	v1 := e.Group("/api/v1")
	v1.GET("/dataset", s.handleDataset)
	v1.GET("/items", s.handleItems)
	v1.GET("/stats", s.handleStats)
	v1.GET("/digest", s.handleDigest)
	v1.POST("/run", s.handleRun, s.requireAdmin)

	return s
}

// SetDataset replaces the dataset served to clients.
func (s *Server) SetDataset(d *ingest.Dataset) {
	s.mu.Lock()
	s.dataset = d
	s.mu.Unlock()
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	s.mu.RLock()
	loaded := s.dataset != nil
	s.mu.RUnlock()
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "dataset_loaded": loaded})
}

func (s *Server) handleDataset(c echo.Context) error {
	s.mu.RLock()
	d := s.dataset
	s.mu.RUnlock()
	if d == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no dataset yet; trigger a run")
	}
	return c.JSON(http.StatusOK, d)
}

// handleItems returns the item list, optionally filtered by status, source,
// or a free-text query over title and description.
func (s *Server) handleItems(c echo.Context) error {
	s.mu.RLock()
	d := s.dataset
	s.mu.RUnlock()
	if d == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no dataset yet; trigger a run")
	}

	status := c.QueryParam("status")
	source := c.QueryParam("source")
	query := strings.ToLower(c.QueryParam("q"))

	items := make([]ingest.Opportunity, 0, len(d.Items))
	for _, item := range d.Items {
		if status != "" && item.Status != status {
			continue
		}
		if source != "" && item.SourceID != source {
			continue
		}
		if query != "" {
			hay := strings.ToLower(item.Title + " " + item.Description)
			if !strings.Contains(hay, query) {
				continue
			}
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(items), "items": items})
}

func (s *Server) handleStats(c echo.Context) error {
	s.mu.RLock()
	d := s.dataset
	s.mu.RUnlock()
	if d == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no dataset yet; trigger a run")
	}
	return c.JSON(http.StatusOK, d.Stats)
}

func (s *Server) handleDigest(c echo.Context) error {
	s.mu.RLock()
	d := s.dataset
	s.mu.RUnlock()
	if d == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no dataset yet; trigger a run")
	}
	return c.JSON(http.StatusOK, d.Digest)
}

// handleRun triggers a scan. Runs are serialized; a second trigger while
// one is in flight gets a 409.
func (s *Server) handleRun(c echo.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return echo.NewHTTPError(http.StatusConflict, "a run is already in progress")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	dataset, err := s.pipeline.Run(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.SetDataset(dataset)
	return c.JSON(http.StatusOK, map[string]any{"status": "completed", "stats": dataset.Stats})
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.adminSecret == "" {
			return echo.NewHTTPError(http.StatusForbidden, "admin endpoints disabled: ADMIN_SECRET not set")
		}
		got := c.Request().Header.Get("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminSecret)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin secret")
		}
		return next(c)
	}
}
