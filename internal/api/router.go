package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/LJTian/HoopsHub/internal/answer"
	"github.com/LJTian/HoopsHub/internal/config"
	"github.com/LJTian/HoopsHub/internal/scheduler"
	"github.com/LJTian/HoopsHub/internal/storage"
)

const (
	defaultLimit  = 50
	askCandidates = 100
)

// ArticleStore is the read side of storage used by the handlers.
type ArticleStore interface {
	ListLatest(ctx context.Context, source string, limit int) ([]storage.Article, error)
	Search(ctx context.Context, q string, limit int) ([]storage.Article, error)
	SearchAny(ctx context.Context, terms []string, limit int) ([]storage.Article, error)
	Count(ctx context.Context) (int64, error)
}

// Runner triggers and reports collection cycles.
type Runner interface {
	RunOnce(ctx context.Context) (storage.Run, error)
	Last(ctx context.Context, kind storage.RunKind) (storage.Run, bool)
}

type Server struct {
	store   ArticleStore
	runner  Runner
	catalog *config.Catalog
	secret  string
}

func NewServer(store ArticleStore, runner Runner, catalog *config.Catalog, refreshSecret string) *Server {
	return &Server{store: store, runner: runner, catalog: catalog, secret: refreshSecret}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.status)
		v1.GET("/articles", s.listArticles)
		v1.GET("/search", s.search)
		v1.GET("/ask", s.ask)
		v1.GET("/debug", s.debug)
		v1.GET("/links", s.links)
		v1.GET("/sources", s.sources)
		v1.POST("/refresh", refreshAuth(s.secret), s.refresh)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func internalError(c *gin.Context, err error) {
	log.WithError(err).WithField("path", c.FullPath()).Error("api: request failed")
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	return limit
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	n, err := s.store.Count(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	data := gin.H{"articles": n, "last_refresh": nil}
	if run, found := s.runner.Last(c.Request.Context(), storage.RunLastGood); found {
		data["last_refresh"] = run.Updated
	}
	ok(c, data)
}

func (s *Server) listArticles(c *gin.Context) {
	items, err := s.store.ListLatest(c.Request.Context(), c.Query("source"), queryLimit(c))
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, nonNil(items))
}

func (s *Server) search(c *gin.Context) {
	items, err := s.store.Search(c.Request.Context(), c.Query("q"), queryLimit(c))
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, nonNil(items))
}

func (s *Server) ask(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		fail(c, http.StatusBadRequest, "bad_request", "missing q")
		return
	}
	var candidates []storage.Article
	if kw := answer.Keywords(q); len(kw) > 0 {
		var err error
		candidates, err = s.store.SearchAny(c.Request.Context(), kw, askCandidates)
		if err != nil {
			internalError(c, err)
			return
		}
	}
	ok(c, answer.Answer(q, candidates))
}

func (s *Server) debug(c *gin.Context) {
	run, found := s.runner.Last(c.Request.Context(), storage.RunLatest)
	if !found {
		ok(c, nil)
		return
	}
	ok(c, run)
}

func (s *Server) links(c *gin.Context) {
	ok(c, nonNil(s.catalog.Links))
}

func (s *Server) sources(c *gin.Context) {
	ok(c, gin.H{
		"curated":   nonNil(s.catalog.CuratedSources),
		"collected": nonNil(s.catalog.Sources),
	})
}

// refresh runs a cycle synchronously. A client disconnect does not abort it.
func (s *Server) refresh(c *gin.Context) {
	run, err := s.runner.RunOnce(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		fail(c, http.StatusConflict, "already_running", err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	ok(c, run)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
