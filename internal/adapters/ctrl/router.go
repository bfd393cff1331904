// Package ctrl is the local operator surface standing in for the
// original browser shell: a small gin API over the running session.
package ctrl

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/rest"
	appsession "github.com/dkeye/Meet/internal/app/session"
	"github.com/dkeye/Meet/internal/config"
)

type Controller struct {
	Session  *appsession.Session
	Meetings *rest.Client
}

func genOperatorToken() string {
	return uuid.NewString()
}

// OperatorTokenMiddleware pins a token cookie to the local operator so
// repeated commands are attributable in the logs.
func OperatorTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ot")
		if token == "" {
			token = genOperatorToken()
			c.SetCookie("ot", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("operator_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, ctl *Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeetSessions", store))
	r.Use(OperatorTokenMiddleware())

	log.Info().Str("module", "adapters.ctrl").Int("port", cfg.ControlPort).Msg("router setup")

	api := r.Group("/api")

	api.POST("/meetings", ctl.handleCreate)
	api.POST("/join", ctl.handleJoin)
	api.POST("/leave", ctl.handleLeave)
	api.POST("/end", ctl.handleEnd)
	api.GET("/status", ctl.handleStatus)
	api.GET("/tiles", ctl.handleTiles)
	api.GET("/chat", ctl.handleChatLog)
	api.POST("/chat", ctl.handleChatSend)
	api.POST("/typing", ctl.handleTyping)
	api.POST("/toggle", ctl.handleToggle)
	api.POST("/reconnect", ctl.handleReconnect)
	api.GET("/devices", ctl.handleDevices)

	return r
}
