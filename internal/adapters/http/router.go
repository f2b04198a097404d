package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/adapters/signal"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/core"
)

const clientTokenKey = "ct"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware gives every client a stable token kept in its cookie
// session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, store core.RecordStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	sessionStore := cookie.NewStore([]byte(cfg.Secret))
	sessionStore.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("DuetSessions", sessionStore))
	r.Use(ClientTokenMiddleware())

	h := &Handlers{
		Store:   store,
		Limiter: signal.NewCandidateRateLimiter(cfg.Store.CandidateLimit, cfg.Store.CandidateInterval),
		Feed:    signal.NewFeedController(store, cfg.Store.ReadLimit, cfg.Store.PingPeriod),
	}

	api := r.Group("/api")
	calls := api.Group("/calls")
	calls.POST("", h.CreateCall)
	calls.GET("/:id", h.GetCall)
	calls.PUT("/:id/offer", h.SetOffer)
	calls.PUT("/:id/answer", h.SetAnswer)
	calls.POST("/:id/candidates/:role", h.AppendCandidate)
	calls.GET("/:id/ws", func(c *gin.Context) {
		h.Subscribe(ctx, c)
	})
	go h.sweepLimiter(ctx, cfg.Store.CandidateInterval)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
