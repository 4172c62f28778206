package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/jasonscribd/transcribe-my-journal/internal/config"
	"github.com/jasonscribd/transcribe-my-journal/internal/services"
	"github.com/jasonscribd/transcribe-my-journal/internal/storage"
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
}

func NewServer(cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	files, err := storage.NewFileManager(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init file manager: %w", err)
	}

	store, err := storage.NewProjectStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init project store: %w", err)
	}

	settings, err := storage.NewSettingsStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init settings store: %w", err)
	}

	openaiSvc := services.NewOpenAIService(cfg)
	controller := services.NewProjectController(cfg, store, settings, files, openaiSvc, openaiSvc)
	ingester := services.NewIngester(services.NewFitzRasterizer(), files, cfg.MaxImageEdge)
	exporter := services.NewExporter()
	share := services.NewShareService(cfg)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))
	engine.Use(CORS(cfg.AllowedOrigins))

	api := NewAPI(store, settings, files, controller, ingester, exporter, share)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg}, nil
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	return s.engine.Run(addr)
}
