package http

import (
	"context"
	nethttp "net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Notify/internal/adapters/signal"
	"github.com/dkeye/Notify/internal/app/orch"
	"github.com/dkeye/Notify/internal/config"
)

const deviceKey = "device"

// ClientTokenMiddleware tags the request with a per-browser device token kept
// in the cookie session. It only feeds logs; identity comes from the caller.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(deviceKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(deviceKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, limiter *signal.RateLimiter) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("NotifySessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{"status": "ok"})
	})

	ctrl := signal.NewSignalWSController(o, signal.OptionsFromConfig(cfg), limiter)
	ws := r.Group("/ws")
	ws.GET("/notifications/:user_id", func(c *gin.Context) {
		ctrl.HandleNotifications(ctx, c)
	})
	ws.GET("/call/:call_id/:user_id", func(c *gin.Context) {
		ctrl.HandleCall(ctx, c)
	})

	api := &API{Orch: o}
	api.Register(r.Group("/api"))

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
