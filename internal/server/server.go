package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/studiosync/internal/config"
	obslogger "github.com/smallbiznis/studiosync/internal/observability/logger"
	obstracing "github.com/smallbiznis/studiosync/internal/observability/tracing"
	pipelinedomain "github.com/smallbiznis/studiosync/internal/pipeline/domain"
	"github.com/smallbiznis/studiosync/internal/reporting"
	watermarkdomain "github.com/smallbiznis/studiosync/internal/watermark/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type Params struct {
	fx.In

	Config     config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Registry   *prometheus.Registry `optional:"true"`
	Watermarks watermarkdomain.Service
	Pipeline   pipelinedomain.Service
	Store      *reporting.Store
}

// Server is the operator status surface. It never mutates import state.
type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	watermarks watermarkdomain.Service
	pipeline   pipelinedomain.Service
	store      *reporting.Store
}

func NewServer(p Params) *Server {
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	s := &Server{
		cfg:        p.Config,
		db:         p.DB,
		log:        p.Log.Named("http"),
		watermarks: p.Watermarks,
		pipeline:   p.Pipeline,
		store:      p.Store,
	}
	s.engine = NewEngine(s.log, p.Registry)
	s.RegisterRoutes()
	return s
}

func NewEngine(log *zap.Logger, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	// The default gatherer carries the runtime collectors and the gorm
	// plugin; the custom registry carries import and scheduler series.
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	if registry != nil {
		gatherers = append(gatherers, registry)
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	return r
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Health)

	s.engine.GET("/watermarks", s.ListWatermarks)
	s.engine.GET("/watermarks/:reportType", s.GetWatermark)
	s.engine.GET("/watermarks/:reportType/window", s.GetWindow)

	s.engine.GET("/runs", s.ListRuns)
	s.engine.GET("/revenue", s.ListRevenue)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http.server.failed", zap.Error(err))
				}
			}()
			log.Info("http.server.start", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
