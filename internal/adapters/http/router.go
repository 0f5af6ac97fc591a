package http

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/Desk/internal/adapters/rtc"
	"github.com/dkeye/Desk/internal/adapters/signal"
	"github.com/dkeye/Desk/internal/app/orch"
	"github.com/dkeye/Desk/internal/config"
	"github.com/dkeye/Desk/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	cookieName     = "DeskSessions"
	clientTokenKey = "client_token"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a stable per-browser token in the cookie
// session and exposes it as "client_token" on the gin context.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// ResponseHeaders disables caching and opens the API to cross-origin
// viewers. Preflight requests are answered here.
func ResponseHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With, Authorization")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type sessionResponse struct {
	ID              domain.SessionID `json:"id"`
	DisplayName     string           `json:"display_name"`
	ControllerCount int              `json:"controller_count"`
	Quality         domain.Quality   `json:"quality"`
	CreatedAt       time.Time        `json:"created_at"`
	LastActivity    time.Time        `json:"last_activity"`
	SharerConnected bool             `json:"sharer_connected"`
	SharerLastSeen  *time.Time       `json:"sharer_last_seen,omitempty"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctl *signal.SignalWSController, ice webrtc.Configuration) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ResponseHeaders())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, Secure: cfg.TLS()})
	r.Use(sessions.Sessions(cookieName, store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		if fi, err := os.Stat(cfg.StaticPath); err == nil && fi.IsDir() {
			r.Static("/static", cfg.StaticPath)
			r.GET("/", func(c *gin.Context) {
				c.File(filepath.Join(cfg.StaticPath, "index.html"))
			})
		} else {
			log.Warn().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("static path unavailable, UI disabled")
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": o.Sessions.Count(), "connections": o.Registry.Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": o.Sessions.ListSessions()})
	})

	api.GET("/sessions/:id", func(c *gin.Context) {
		view, ok := o.Sessions.GetSession(domain.SessionID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		resp := sessionResponse{
			ID:              view.ID,
			DisplayName:     view.DisplayName,
			ControllerCount: len(view.Controllers),
			Quality:         view.Quality,
			CreatedAt:       view.CreatedAt,
			LastActivity:    view.LastActivity,
			SharerConnected: o.Registry.Alive(view.Sharer),
		}
		if seen, ok := o.Registry.LastSeen(view.Sharer); ok {
			resp.SharerLastSeen = &seen
		}
		c.JSON(http.StatusOK, resp)
	})

	api.GET("/connection-info", func(c *gin.Context) {
		c.JSON(http.StatusOK, rtc.NewConnectionInfo(ice, cfg.TLS(), time.Now()))
	})

	return r
}
