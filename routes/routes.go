package routes

import (
	"net/http"
	"time"

	"curasure-chat/controllers"
	"curasure-chat/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Store        services.MessageStore
	Hub          *services.WSManager
	HistoryLimit int
	AllowOrigins []string
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	origins := deps.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// 配置跨域中间件
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	ws := &controllers.WSController{Hub: deps.Hub}
	messages := controllers.NewMessageController(deps.Store, deps.HistoryLimit)
	users := controllers.NewUserController(deps.Store)
	conversations := &controllers.ConversationsController{Store: deps.Store}

	r.GET("/ws", ws.Handle)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/chat/messages/:userA/:userB", messages.GetDirectMessages)
		api.GET("/chat/group/:groupId", messages.GetGroupMessages)
		api.GET("/chat/conversations/:userId", conversations.GetConversations)
		api.GET("/users", users.GetUsers)
		api.POST("/users", users.UpsertUser)
		api.GET("/online", ws.Presence)
	}

	return r
}
