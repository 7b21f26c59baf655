package http

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/adapters/signal"
	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/config"
	"github.com/dkeye/Converse/internal/domain"
)

const lastRoomKey = "last_room"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SignalOptions(cfg *config.Config) signal.Options {
	opts := signal.DefaultOptions()
	if cfg.ReadLimit > 0 {
		opts.ReadLimit = cfg.ReadLimit
	}
	if cfg.WriteWait > 0 {
		opts.WriteWait = cfg.WriteWait
	}
	opts.PongWait = cfg.PongWait
	opts.PingPeriod = cfg.PingPeriod
	if cfg.SendBuffer > 0 {
		opts.SendBuffer = cfg.SendBuffer
	}
	return opts
}

func SetupRouter(ctx context.Context, cfg *config.Config, router *app.Router) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConverseSessions", store))
	r.Use(ClientTokenMiddleware())

	ctrl := signal.NewSignalWSController(router, SignalOptions(cfg))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})
	r.POST("/", func(c *gin.Context) {
		id := domain.RoomID(c.PostForm("roomId"))
		if err := id.Validate(); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.Redirect(http.StatusSeeOther, "/room/"+url.PathEscape(string(id)))
	})
	r.GET("/room/:roomId", func(c *gin.Context) {
		id := domain.RoomID(c.Param("roomId"))
		if err := id.Validate(); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		sess := sessions.Default(c)
		sess.Set(lastRoomKey, string(id))
		if err := sess.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
		}
		c.File(filepath.Join(cfg.StaticPath, "room.html"))
	})
	r.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, router.Rooms.ListRooms())
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": len(router.Rooms.ListRooms())})
	})
	r.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/whoami", func(c *gin.Context) {
		last, _ := sessions.Default(c).Get(lastRoomKey).(string)
		c.JSON(http.StatusOK, gin.H{
			"client_token": c.GetString("client_token"),
			"last_room":    last,
		})
	})

	return r
}
