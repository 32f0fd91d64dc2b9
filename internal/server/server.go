package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/openatrium/atrium/internal/auth"
	authdomain "github.com/openatrium/atrium/internal/auth/domain"
	"github.com/openatrium/atrium/internal/auth/session"
	"github.com/openatrium/atrium/internal/community"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/config"
	"github.com/openatrium/atrium/internal/institution"
	institutiondomain "github.com/openatrium/atrium/internal/institution/domain"
	"github.com/openatrium/atrium/internal/invitecode"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	"github.com/openatrium/atrium/internal/join"
	joindomain "github.com/openatrium/atrium/internal/join/domain"
	"github.com/openatrium/atrium/internal/message"
	messagedomain "github.com/openatrium/atrium/internal/message/domain"
	"github.com/openatrium/atrium/internal/observability"
	obsmiddleware "github.com/openatrium/atrium/internal/observability/logger"
	obsmetrics "github.com/openatrium/atrium/internal/observability/metrics"
	obstracing "github.com/openatrium/atrium/internal/observability/tracing"
	"github.com/openatrium/atrium/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	auth.Module,
	session.Module,
	community.Module,
	invitecode.Module,
	join.Module,
	message.Module,
	institution.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	authsvc        authdomain.Service
	sessions       *session.Manager
	genID          *snowflake.Node
	institutionSvc institutiondomain.Service
	communitySvc   communitydomain.Service
	inviteSvc      invitecodedomain.Service
	joinSvc        joindomain.Service
	messageSvc     messagedomain.Service
	obsMetrics     *obsmetrics.Metrics
	loginLimiter   *ratelimit.LoginLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Authsvc        authdomain.Service
	Sessions       *session.Manager
	GenID          *snowflake.Node
	InstitutionSvc institutiondomain.Service
	CommunitySvc   communitydomain.Service
	InviteSvc      invitecodedomain.Service
	JoinSvc        joindomain.Service
	MessageSvc     messagedomain.Service
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`
	LoginLimiter   *ratelimit.LoginLimiter   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		authsvc:        p.Authsvc,
		sessions:       p.Sessions,
		genID:          p.GenID,
		institutionSvc: p.InstitutionSvc,
		communitySvc:   p.CommunitySvc,
		inviteSvc:      p.InviteSvc,
		joinSvc:        p.JoinSvc,
		messageSvc:     p.MessageSvc,
		obsMetrics:     p.ObsMetrics,
		loginLimiter:   p.LoginLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerInstitutionRoutes()
	svc.registerCommunityRoutes()

	return svc
}

func (s *Server) registerAuthRoutes() {
	group := s.engine.Group("/api/auth")
	group.POST("/signup", s.Signup)
	group.POST("/login", s.Login)
	group.POST("/logout", s.Logout)
	group.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerInstitutionRoutes() {
	group := s.engine.Group("/api/institutions")
	group.POST("", s.CreateInstitution)
	group.GET("/:id", s.AuthRequired(), s.GetInstitution)
	group.POST("/join", s.AuthRequired(), s.JoinInstitution)
	group.GET("/:id/codes", s.AuthRequired(), s.ListInstitutionCodes)
}

func (s *Server) registerCommunityRoutes() {
	group := s.engine.Group("/api/communities", s.AuthRequired())
	group.GET("", s.ListCommunities)
	group.GET("/mine", s.ListMyCommunities)
	group.POST("", s.CreateCommunity)
	group.POST("/join", s.JoinCommunityByCode)
	group.GET("/:id", s.GetCommunity)
	group.PATCH("/:id", s.UpdateCommunity)
	group.GET("/:id/roles", s.GetCommunityRoles)
	group.PATCH("/:id/roles", s.UpdateCommunityRoles)
	group.POST("/:id/join", s.JoinPublicCommunity)
	group.GET("/:id/requests", s.ListJoinRequests)
	group.POST("/:id/requests", s.RequestJoinCommunity)
	group.PATCH("/:id/requests", s.ResolveJoinRequest)
	group.GET("/:id/code", s.GetCommunityCode)
	group.POST("/:id/code/rotate", s.RotateCommunityCode)
	group.POST("/:id/actions", s.PerformCommunityAction)
	group.GET("/:id/messages", s.ListCommunityMessages)
	group.POST("/:id/messages", s.PostCommunityMessage)
}
