package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/researchmate-backend/internal/http/handlers"
	httpMW "github.com/yungbote/researchmate-backend/internal/http/middleware"
)

type RouterConfig struct {
	AuthMiddleware *httpMW.AuthMiddleware

	ChatStreamHandler *httpH.ChatStreamHandler
	ChatTitleHandler  *httpH.ChatTitleHandler
	ChatsHandler      *httpH.ChatsHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.ChatStreamHandler != nil {
			protected.POST("/chat/stream", cfg.ChatStreamHandler.Stream)
		}
		if cfg.ChatTitleHandler != nil {
			protected.POST("/chat/title", cfg.ChatTitleHandler.Generate)
		}
		if cfg.ChatsHandler != nil {
			protected.GET("/chats", cfg.ChatsHandler.List)
			protected.GET("/chats/:id/messages", cfg.ChatsHandler.ListMessages)
			protected.PATCH("/chats/:id", cfg.ChatsHandler.Update)
			protected.DELETE("/chats/:id", cfg.ChatsHandler.Delete)
		}
	}

	return r
}
