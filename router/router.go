package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"videotube/api"
	"videotube/config"
	"videotube/middleware"
	"videotube/service"
)

// Deps 路由需要的依赖
type Deps struct {
	Handlers *api.APIHandlers
	Tokens   *service.TokenIssuer
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger
}

func SetupRouter(cfg *config.AppConfig, deps Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	deps.Log.Info().Str("mode", gin.Mode()).Msg("router configured")

	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	r.Use(
		middleware.RequestLogger(deps.Log),
		middleware.Errors(cfg.IsProduction(), deps.Log),
		middleware.Recovery(deps.Log),
		cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CorsOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	// 本地存储时直接提供已上传的文件
	if cfg.Storage.Provider == "local" {
		r.Static("/uploads", cfg.Storage.Local.Path)
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h := deps.Handlers
	v1 := r.Group("/api/v1")
	{
		v1.GET("/healthcheck", api.HealthcheckHandler)

		users := v1.Group("/users")
		users.POST("/register", h.RegisterUserHandler)
		users.POST("/login", h.LoginHandler)

		authed := users.Group("", middleware.AuthMiddleware(deps.Tokens))
		authed.PATCH("/avatar", h.UpdateAvatarHandler)
		authed.PATCH("/cover-image", h.UpdateCoverImageHandler)

		videos := v1.Group("/videos", middleware.AuthMiddleware(deps.Tokens))
		videos.POST("/publish", h.PublishVideoHandler)
		videos.PATCH("/:videoId/thumbnail", h.UpdateThumbnailHandler)
	}

	return r
}
