// Package httpapi implements the read-only status surface (§2
// "ambient additions"): a small gin server, separate from the game
// port, exposing /healthz, /metrics, and /clients. It never touches
// the game protocol; everything it reports comes from Sequencer's own
// read accessors.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rorelay/rorelay-server/internal/core"
)

// Server is the status HTTP server.
type Server struct {
	http *http.Server
	log  *zerolog.Logger
}

// New builds a Server listening on addr, reporting on seq.
func New(addr string, seq *core.Sequencer, startedAt time.Time, logger *zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), loggerMiddleware(logger))

	router.GET("/healthz", healthzHandler())
	router.GET("/metrics", metricsHandler(seq, startedAt))
	router.GET("/clients", clientsHandler(seq))

	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger,
	}
}

// Run starts the server and blocks until ctx is canceled or
// ListenAndServe fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			if s.log != nil {
				s.log.Warn().Err(err).Msg("status server shutdown error")
			}
		}
		return <-errCh
	}
}

func loggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if logger == nil {
			return
		}
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("status http request")
	}
}

func healthzHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func metricsHandler(seq *core.Sequencer, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"clients":        seq.ClientCount(),
			"uptime_seconds": time.Since(startedAt).Seconds(),
		})
	}
}

// clientEntry is the public shape one roster row is rendered as;
// exporting the Client struct's internal fields directly would leak
// its mutex and connHandle.
type clientEntry struct {
	UID       uint32 `json:"uid"`
	Nickname  string `json:"nickname"`
	IP        string `json:"ip"`
	AuthChars string `json:"auth_chars"`
	Vehicle   string `json:"vehicle"`
}

func clientsHandler(seq *core.Sequencer) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := seq.Snapshot()
		out := make([]clientEntry, 0, len(snapshot))
		for _, client := range snapshot {
			out = append(out, clientEntry{
				UID:       client.UID,
				Nickname:  client.Nickname,
				IP:        client.IP,
				AuthChars: client.AuthFlags.Chars(),
				Vehicle:   client.Vehicle,
			})
		}
		c.JSON(http.StatusOK, gin.H{"clients": out})
	}
}
