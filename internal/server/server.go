// Package server exposes the review bot over HTTP: the chat page, the form
// endpoint it posts to and a JSON search endpoint.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reviewrag/internal/domain"
	"reviewrag/internal/logger"
	"reviewrag/internal/service"
)

//go:embed templates/chat.html
var assets embed.FS

// Bot is the part of the service the server exposes.
type Bot interface {
	Ask(ctx context.Context, question string) (service.Answer, error)
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

type Config struct {
	Addr           string
	RequestTimeout time.Duration
	DefaultTopK    int
	Title          string
}

type Server struct {
	cfg    Config
	bot    Bot
	log    logger.Logger
	router *gin.Engine
}

// New builds the router. Metrics are registered on reg and served from
// /metrics; a nil reg disables both.
func New(cfg Config, bot Bot, log logger.Logger, reg *prometheus.Registry) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8001"
	}
	if cfg.Title == "" {
		cfg.Title = "Product review bot"
	}
	if log == nil {
		log = logger.GetDefault()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware())
	if reg != nil {
		router.Use(newHTTPMetrics(reg).middleware())
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	router.SetHTMLTemplate(template.Must(template.ParseFS(assets, "templates/chat.html")))

	s := &Server{cfg: cfg, bot: bot, log: log, router: router}
	router.GET("/healthz", s.health)
	router.GET("/", s.index)
	bounded := router.Group("/", TimeoutMiddleware(cfg.RequestTimeout))
	bounded.POST("/get", s.chat)
	bounded.POST("/api/search", s.search)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server.listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server.stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "chat.html", gin.H{"Title": s.cfg.Title})
}

type chatForm struct {
	Msg string `form:"msg" binding:"required"`
}

// chat answers the form field msg with the plain answer text.
func (s *Server) chat(c *gin.Context) {
	var form chatForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusUnprocessableEntity, "field msg is required")
		return
	}
	answer, err := s.bot.Ask(c.Request.Context(), form.Msg)
	if err != nil {
		_ = c.Error(err)
		c.String(statusFor(err), http.StatusText(statusFor(err)))
		return
	}
	c.String(http.StatusOK, answer.Text)
}

type searchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  *int   `json:"top_k"`
}

type searchHit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
	Product string  `json:"product_name"`
	Rating  float64 `json:"product_rating"`
	Summary string  `json:"product_summary"`
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	topK := s.cfg.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	results, err := s.bot.Search(c.Request.Context(), req.Query, topK)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{
			ID:      r.Document.ID,
			Score:   r.Score,
			Content: r.Document.Content,
			Product: r.Document.Metadata.Title,
			Rating:  r.Document.Metadata.Rating,
			Summary: r.Document.Metadata.Summary,
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrConfig):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
