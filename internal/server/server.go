package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seatwise/seatwise/internal/config"
	lifecycledomain "github.com/seatwise/seatwise/internal/lifecycle/domain"
	redeemflowdomain "github.com/seatwise/seatwise/internal/redeemflow/domain"
	redemptiondomain "github.com/seatwise/seatwise/internal/redemption/domain"
	reminderdomain "github.com/seatwise/seatwise/internal/reminder/domain"
	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config) *gin.Engine {
	return NewEngine(cfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	RedeemSvc    redeemflowdomain.Service
	CodeSvc      redemptiondomain.Service
	PoolSvc      seatpooldomain.Service
	LifecycleSvc lifecycledomain.Service
	ReminderSvc  reminderdomain.Service
}

type Server struct {
	engine       *gin.Engine
	log          *zap.Logger
	redeemSvc    redeemflowdomain.Service
	codeSvc      redemptiondomain.Service
	poolSvc      seatpooldomain.Service
	lifecycleSvc lifecycledomain.Service
	reminderSvc  reminderdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http.server"),
		redeemSvc:    p.RedeemSvc,
		codeSvc:      p.CodeSvc,
		poolSvc:      p.PoolSvc,
		lifecycleSvc: p.LifecycleSvc,
		reminderSvc:  p.ReminderSvc,
	}

	svc.registerPublicRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	api.POST("/redeem/verify", s.VerifyCode)
	api.POST("/redeem", s.Redeem)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")

	admin.GET("/pools", s.ListPools)
	admin.GET("/pools/:id", s.GetPool)
	admin.PATCH("/pools/:id", s.UpdatePool)
	admin.POST("/pools/:id/members", s.AddPoolMember)
	admin.GET("/codes", s.ListCodes)
	admin.POST("/codes/generate", s.GenerateCodes)
	admin.POST("/records/:id/withdraw", s.WithdrawRecord)
	admin.GET("/reminders", s.ListReminders)
	admin.POST("/reminders/:id/send", s.SendReminder)
	admin.GET("/lifecycles/:email", s.GetLifecycle)
}
