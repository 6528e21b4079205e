package main

import (
	"context"
	"embed"
	"encoding/gob"
	"flag"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"time"

	"webtoonquiz"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionName = "webtoon-quiz"

type Server struct {
	cfg       *webtoonquiz.Config
	generator webtoonquiz.QuizMaker
	records   *webtoonquiz.RecordStore
	store     sessions.Store
	templates map[string]*template.Template
}

func init() {
	gob.Register(webtoonquiz.Session{})
}

func main() {
	configPath := flag.String("config", ".", "Directory containing config.yaml")
	flag.Parse()

	cfg, err := webtoonquiz.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	webtoonquiz.InitLogger(cfg.Log)
	err = serve(cfg)
	if err != nil {
		webtoonquiz.Log.Error("server stopped", zap.Error(err))
	}
	webtoonquiz.Log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// serve wires the server together and blocks until it stops. Record storage
// is closed before it returns.
func serve(cfg *webtoonquiz.Config) error {
	logger := webtoonquiz.Log

	if cfg.AI.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, generation requests will fail until it is configured")
	}

	generator, err := webtoonquiz.NewQuizGenerator(cfg.AI)
	if err != nil {
		return fmt.Errorf("failed to create quiz generator: %w", err)
	}
	if cfg.Log.TranscriptFile != "" {
		generator.SetTranscriptLogger(webtoonquiz.NewTranscriptLogger(cfg.Log.TranscriptFile))
	}

	blobs, closeBlobs, err := webtoonquiz.OpenBlobStore(context.Background(), cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open record storage: %w", err)
	}
	defer func() {
		if err := closeBlobs(); err != nil {
			logger.Warn("closing record storage", zap.Error(err))
		}
	}()

	if err := webtoonquiz.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	prometheus.MustRegister(requestCounter, requestDuration)

	store, err := newSessionStore(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	server := &Server{
		cfg:       cfg,
		generator: generator,
		records:   webtoonquiz.NewRecordStore(blobs, cfg.Storage.Key),
		store:     store,
		templates: loadTemplates(),
	}

	gin.SetMode(cfg.Server.Mode)
	router := server.setupRouter()

	logger.Info("Starting server", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Type))
	if err := router.Run(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// newSessionStore keeps quiz sessions on disk; uploaded screenshots make
// them far too large for a cookie.
func newSessionStore(cfg webtoonquiz.ServerConfig) (*sessions.FilesystemStore, error) {
	if err := os.MkdirAll(cfg.SessionDir, 0700); err != nil {
		return nil, err
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		webtoonquiz.Log.Warn("SESSION_SECRET is not set, using a random key; sessions will not survive a restart")
		secret = securecookie.GenerateRandomKey(32)
	}

	store := sessions.NewFilesystemStore(cfg.SessionDir, secret)
	store.MaxLength(0)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

func loadTemplates() map[string]*template.Template {
	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"letter": func(i int) string {
			return string(rune('A' + i))
		},
		"date": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
	}

	templates := make(map[string]*template.Template)
	for _, name := range []string{"home", "question", "results"} {
		templates[name] = template.Must(template.New(name).Funcs(funcMap).ParseFS(templateFS,
			"templates/base.html", "templates/projects.html", "templates/"+name+".html"))
	}
	return templates
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(), recovery(), metricsMiddleware())

	router.GET("/", s.handleHome)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", prometheusHandler())

	images := router.Group("/images")
	{
		images.POST("", s.handleUpload)
		images.GET("/:id", s.handleImage)
		images.POST("/:id/delete", s.handleRemoveImage)
	}

	router.POST("/count", s.handleQuestionCount)
	router.POST("/generate", rateLimiter(s.cfg.Server.GenerateBurst, s.cfg.Server.GenerateEvery, s.handleRateLimited), s.handleGenerate)
	router.POST("/answer", s.handleAnswer)
	router.POST("/next", s.handleNext)
	router.POST("/retry", s.handleRetry)
	router.POST("/reset", s.handleReset)
	router.POST("/save", s.handleSave)
	router.GET("/export", s.handleExportCurrent)

	projects := router.Group("/projects")
	{
		projects.POST("", s.handleCreateProject)
		projects.POST("/:id/select", s.handleSelectProject)
		projects.POST("/:id/rename", s.handleRenameProject)
		projects.POST("/:id/delete", s.handleDeleteProject)
		projects.GET("/:id/export", s.handleExportProject)
	}

	saved := router.Group("/quizzes")
	{
		saved.POST("/:id/play", s.handlePlaySaved)
		saved.POST("/:id/rename", s.handleRenameQuiz)
		saved.POST("/:id/delete", s.handleDeleteQuiz)
		saved.GET("/:id/export", s.handleExportQuiz)
	}

	return router
}
