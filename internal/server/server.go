package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/erpcore/internal/audit"
	"github.com/smallbiznis/erpcore/internal/authorization"
	"github.com/smallbiznis/erpcore/internal/config"
	"github.com/smallbiznis/erpcore/internal/events"
	"github.com/smallbiznis/erpcore/internal/manufacturing"
	mfgdomain "github.com/smallbiznis/erpcore/internal/manufacturing/domain"
	"github.com/smallbiznis/erpcore/internal/observability"
	obstracing "github.com/smallbiznis/erpcore/internal/observability/tracing"
	"github.com/smallbiznis/erpcore/internal/ratelimit"
	"github.com/smallbiznis/erpcore/internal/sequence"
	seqdomain "github.com/smallbiznis/erpcore/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	ratelimit.Module,
	sequence.Module,
	manufacturing.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Correlation())
	r.Use(obstracing.GinMiddleware())
	r.Use(RequestLogger(log, RequestLoggerConfig{
		Debug:           obsCfg.Environment != "production",
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type generateLimiter interface {
	Enabled() bool
	Allow(ctx context.Context, tenantID int64, sequenceName string) (*ratelimit.Result, error)
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	sequenceSvc     seqdomain.Service
	mfgSvc          mfgdomain.Service
	generateLimiter generateLimiter
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Log              *zap.Logger
	SequenceSvc      seqdomain.Service
	ManufacturingSvc mfgdomain.Service
	GenerateLimiter  *ratelimit.GenerateLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		sequenceSvc:     p.SequenceSvc,
		mfgSvc:          p.ManufacturingSvc,
		generateLimiter: p.GenerateLimiter,
	}

	svc.registerSequenceRoutes()
	svc.registerManufacturingRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerSequenceRoutes() {
	v1 := s.engine.Group("/v1", TenantContext())

	// -------- Sequences --------
	v1.POST("/sequences", s.CreateSequence)
	v1.GET("/sequences", s.ListSequences)
	v1.GET("/sequences/:name", s.GetSequence)
	v1.PATCH("/sequences/:name", s.UpdateSequence)
	v1.DELETE("/sequences/:name", s.DeleteSequence)
	v1.POST("/sequences/:name/generate", s.GenerateRateLimit(), s.GenerateNumber)
	v1.GET("/sequences/:name/preview", s.PreviewNumber)
	v1.POST("/sequences/:name/preview", s.PreviewNumber)
	v1.POST("/sequences/:name/override", s.OverrideNumber)
	v1.POST("/sequences/:name/reset", s.ResetSequence)
	v1.GET("/sequences/:name/logs", s.ListSequenceLogs)

	// -------- Patterns --------
	v1.POST("/patterns/validate", s.ValidatePattern)
}

func (s *Server) registerManufacturingRoutes() {
	v1 := s.engine.Group("/v1", TenantContext())

	// -------- Products --------
	v1.POST("/products", s.CreateProduct)
	v1.GET("/products", s.ListProducts)
	v1.GET("/products/:id", s.GetProduct)
	v1.GET("/products/:id/boms", s.ListProductBOMs)
	v1.GET("/products/:id/where-used", s.WhereUsed)

	// -------- Bills of material --------
	v1.POST("/boms", s.CreateBOM)
	v1.POST("/boms/explode", s.ExplodeMany)
	v1.GET("/boms/:id", s.GetBOM)
	v1.POST("/boms/:id/items", s.AddBOMItem)
	v1.POST("/boms/:id/activate", s.ActivateBOM)
	v1.POST("/boms/:id/obsolete", s.ObsoleteBOM)
	v1.GET("/boms/:id/explode", s.ExplodeBOM)
	v1.GET("/boms/:id/cost", s.BOMCost)
	v1.GET("/boms/:id/requirements.pdf", s.RequirementSheet)
}
