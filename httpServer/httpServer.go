package httpServer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rapidsprite/internal/auth"
	"rapidsprite/internal/jobs"
	"rapidsprite/internal/metrics"
	"rapidsprite/internal/storage"
	"rapidsprite/pkg/models"
)

// signedURLExpiry bounds redirects to directly downloadable artifacts
const signedURLExpiry = 15 * time.Minute

// Server wraps the HTTP server with dependencies
type Server struct {
	router    *gin.Engine
	jobs      *jobs.Manager
	auth      *auth.Manager
	storage   storage.Storage
	metrics   *metrics.Metrics
	mediaRoot string // inputs are resolved under this directory; empty allows any path
	log       *logrus.Entry
}

// New creates a new HTTP server
func New(jobManager *jobs.Manager, authManager *auth.Manager, store storage.Storage, m *metrics.Metrics, mediaRoot string, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if authManager == nil {
		authManager = auth.New("")
	}
	s := &Server{
		jobs:      jobManager,
		auth:      authManager,
		storage:   store,
		metrics:   m,
		mediaRoot: mediaRoot,
		log:       log,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.POST("/v1/tokens", s.requireKey(), s.handleIssueToken)
		api.POST("/v1/previews", s.handleSubmit)
		api.GET("/v1/previews", s.handleListJobs)
		api.GET("/v1/previews/:id", s.handleGetJob)
	}

	router.GET("/previews/:stem/:file", s.handleArtifact)

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	s.router = router
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// observe logs requests and records HTTP metrics
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), elapsed.Seconds())
		}
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": elapsed,
		}).Debug("HTTP request")
	}
}

// requireKey rejects requests without the operator API key
func (s *Server) requireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.auth.Enabled() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "authentication is disabled"})
			return
		}
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if err := s.auth.CheckKey(key); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// Handler implementations

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":    "pong",
		"time":       time.Now().Unix(),
		"activeJobs": s.jobs.ActiveCount(),
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req models.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := s.resolveInput(req.Input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.auth.Spend(req.Token, input); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	job, err := s.jobs.Submit(input)
	if errors.Is(err, jobs.ErrJobActive) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, models.PreviewResponse{
		ID:        job.ID,
		State:     string(job.GetState()),
		StatusURL: "/api/v1/previews/" + job.ID,
	})
}

func (s *Server) handleIssueToken(c *gin.Context) {
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := s.resolveInput(req.Input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := s.auth.Issue(input, time.Duration(req.ExpiresIn)*time.Second)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		Token:     token.Token,
		Input:     token.Input,
		ExpiresAt: token.ExpiresAt,
	})
}

func (s *Server) handleListJobs(c *gin.Context) {
	list := s.jobs.List()

	infos := make([]models.JobInfo, len(list))
	for i, job := range list {
		infos[i] = s.jobToInfo(job.Status())
	}

	c.JSON(http.StatusOK, models.JobListResponse{
		Jobs:  infos,
		Total: len(infos),
	})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, exists := s.jobs.Get(c.Param("id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	info := s.jobToInfo(job.Status())
	if info.MetadataPath != "" {
		data, err := s.storage.Read(c.Request.Context(), info.MetadataPath)
		if err != nil {
			s.log.WithError(err).WithField("job", info.ID).Warn("Metadata not readable")
		} else {
			info.Metadata = json.RawMessage(data)
		}
	}

	c.JSON(http.StatusOK, info)
}

func (s *Server) handleArtifact(c *gin.Context) {
	p, err := storage.Clean(path.Join(c.Param("stem"), c.Param("file")))
	if err != nil || strings.Count(p, "/") != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artifact path"})
		return
	}

	ctx := c.Request.Context()
	ok, err := s.storage.Exists(ctx, p)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}

	// Remote storage can hand the client a direct link
	if signer, ok := s.storage.(storage.Signer); ok {
		url, err := signer.SignedURL(p, signedURLExpiry)
		if err == nil {
			c.Redirect(http.StatusFound, url)
			return
		}
		s.log.WithError(err).Warn("Signed URL unavailable, serving through the API")
	}

	rs, err := s.storage.ReadSeeker(ctx, p)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not readable"})
		return
	}
	if closer, ok := rs.(io.Closer); ok {
		defer closer.Close()
	}

	c.Header("Content-Type", storage.ContentType(p))
	c.Header("Access-Control-Allow-Origin", "*")
	http.ServeContent(c.Writer, c.Request, path.Base(p), time.Time{}, rs)
}

// Helper functions

// resolveInput maps a requested path into the media root
func (s *Server) resolveInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("input is required")
	}
	if s.mediaRoot == "" {
		return filepath.Clean(input), nil
	}

	root, err := filepath.Abs(s.mediaRoot)
	if err != nil {
		return "", err
	}
	// Rooting the path first keeps ".." from climbing out
	resolved := filepath.Join(root, filepath.Clean(string(filepath.Separator)+input))
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", errors.New("input is outside the media root")
	}
	return resolved, nil
}

func (s *Server) jobToInfo(status models.JobStatus) models.JobInfo {
	info := models.JobInfo{JobStatus: status}

	if status.CuePath != "" {
		info.CueURL = "/previews/" + status.CuePath
	}
	if status.MetadataPath != "" {
		info.MetadataURL = "/previews/" + status.MetadataPath
	}
	for _, sheet := range status.Sheets {
		info.SheetURLs = append(info.SheetURLs, "/previews/"+storage.ArtifactPath(status.Stem, sheet.File))
	}

	return info
}
