package httpserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"persona-chat-relay/internal/config"
)

// Server wraps the gin engine with graceful shutdown.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger, turns TurnHandler) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(RequestID(log))
	engine.Use(Recovery(log))
	engine.Use(Logging(log))
	engine.Use(CORS())
	engine.Use(Metrics())

	h := &chatHandler{turns: turns, log: log}
	engine.POST("/api/chat", h.chat)
	engine.GET("/health", health(time.Now))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	registerStatic(engine, cfg.StaticDir)

	return &Server{
		cfg:    cfg,
		engine: engine,
		log:    log,
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down within
// cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("relay listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down relay")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// registerStatic serves the web client shell from dir. Without a dir the
// relay answers unknown paths with a JSON 404.
func registerStatic(engine *gin.Engine, dir string) {
	notFound := func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	}

	info, err := os.Stat(dir)
	if dir == "" || err != nil || !info.IsDir() {
		engine.NoRoute(notFound)
		return
	}

	index := filepath.Join(dir, "index.html")
	engine.GET("/", func(c *gin.Context) {
		if _, err := os.Stat(index); err != nil {
			notFound(c)
			return
		}
		c.File(index)
	})

	files := http.FileServer(http.Dir(dir))
	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			notFound(c)
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
}
