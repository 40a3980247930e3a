// ABOUTME: Echo REST surface: health/stats/discovery/upload-coordination routes, CORS, and the /ws upgrade
// ABOUTME: Grounded on rustyguts-bken's httpapi.Server (registerRoutes, requestLogger, graceful Run)
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/beatsync/beatsync-server/internal/dispatcher"
	"github.com/beatsync/beatsync-server/internal/registry"
	"github.com/beatsync/beatsync-server/internal/storage"
)

// Server is the Echo application exposing beatsync's HTTP surface.
type Server struct {
	echo     *echo.Echo
	registry *registry.Registry
	dispatch *dispatcher.Dispatcher
	blobs    storage.BlobStore
	logger   zerolog.Logger
}

// New constructs an Echo app with REST routes plus the WebSocket upgrade.
func New(reg *registry.Registry, dispatch *dispatcher.Dispatcher, blobs storage.BlobStore, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	s := &Server{echo: e, registry: reg, dispatch: dispatch, blobs: blobs, logger: logger}
	s.registerRoutes()
	return s
}

// requestLogger logs each HTTP request via zerolog, mirroring the pack's
// per-request middleware idiom but with /ws kept at debug level since it's
// expected to be noisy and long-lived.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			ev := logger.Info()
			if req.URL.Path == "/ws" || req.URL.Path == "/healthz" {
				ev = logger.Debug()
			}
			ev.Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Msg("http request")
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleHealth)
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/stats", s.handleStats)
	s.echo.GET("/discover", s.handleDiscover)
	s.echo.GET("/active-rooms", s.handleActiveRooms)
	s.echo.GET("/default", s.handleDefaultTracks)
	s.echo.POST("/upload/get-presigned-url", s.handlePresignUpload)
	s.echo.POST("/upload/complete", s.handleUploadComplete)
	s.echo.GET("/ws", s.handleWebSocket)

	// A BlobStore that also knows how to serve its own bytes (LocalDiskStore)
	// gets mounted at the path its own PresignUpload URLs point to.
	if h, ok := s.blobs.(http.Handler); ok {
		s.echo.Any("/blobs/*", echo.WrapHandler(h))
	}
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.echo.Shutdown(shutCtx)
		s.logger.Info().Msg("http server stopped")
		return err
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Stats())
}

func (s *Server) handleDiscover(c echo.Context) error {
	active := s.registry.ActiveRooms()
	if active == nil {
		active = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"rooms": active})
}

func (s *Server) handleActiveRooms(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"count": len(s.registry.ActiveRooms())})
}

func (s *Server) handleDefaultTracks(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"urls": dispatcher.DefaultTrackURLs})
}

type presignRequest struct {
	RoomID   string `json:"roomId"`
	Filename string `json:"filename"`
}

type presignResponse struct {
	URL string `json:"url"`
}

func (s *Server) handlePresignUpload(c echo.Context) error {
	var req presignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.RoomID == "" || req.Filename == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "roomId and filename are required"})
	}
	url, err := s.blobs.PresignUpload(c.Request().Context(), req.RoomID, req.Filename)
	if err != nil {
		s.logger.Error().Err(err).Msg("presign upload failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to mint upload url"})
	}
	return c.JSON(http.StatusOK, presignResponse{URL: url})
}

type uploadCompleteRequest struct {
	RoomID string `json:"roomId"`
	URL    string `json:"url"`
}

func (s *Server) handleUploadComplete(c echo.Context) error {
	var req uploadCompleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.RoomID == "" || req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "roomId and url are required"})
	}
	r, ok := s.registry.GetRoom(req.RoomID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
	}
	r.AddAudioSource(req.URL)
	return c.NoContent(http.StatusOK)
}
