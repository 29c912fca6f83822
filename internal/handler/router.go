package handler

import (
	"fashion-advisor-go/internal/middleware"
	"fashion-advisor-go/internal/service"

	"github.com/gin-gonic/gin"
)

// Services 汇总路由需要的全部服务。
type Services struct {
	Sessions      service.SessionService
	Conversations service.ConversationService
	Catalog       service.CatalogService
	Analysis      service.AnalysisService
	Users         service.UserService
}

// NewRouter 创建 gin 引擎并注册 /api/v1 下的所有路由。
func NewRouter(s Services) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	authHandler := NewAuthHandler(s.Sessions)
	conversationHandler := NewConversationHandler(s.Conversations)
	chatHandler := NewChatHandler(s.Conversations)
	productHandler := NewProductHandler(s.Catalog)
	uploadHandler := NewUploadHandler(s.Analysis)
	userHandler := NewUserHandler(s.Users)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", authHandler.Me)
		}

		conversations := apiV1.Group("/conversations")
		{
			conversations.POST("", conversationHandler.Create)
			conversations.GET("", conversationHandler.List)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.POST("/:id/reset", conversationHandler.Reset)
			conversations.POST("/:id/messages", conversationHandler.SendMessage)
			conversations.PUT("/:id/draft", conversationHandler.UpdateDraft)
			conversations.POST("/:id/nearby", conversationHandler.SearchNearby)
			conversations.POST("/:id/voice/start", conversationHandler.StartRecording)
			conversations.POST("/:id/voice/stop", conversationHandler.StopRecording)
			conversations.GET("/:id/ws", chatHandler.Stream)
		}

		products := apiV1.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/trending", productHandler.Trending)
			products.GET("/:id", productHandler.Detail)
		}

		apiV1.POST("/uploads/analyze", uploadHandler.Analyze)

		// 需要认证的路由
		users := apiV1.Group("/users")
		users.Use(middleware.RequireSession(s.Sessions))
		{
			users.POST("/:id/images", userHandler.UploadImage)
		}
	}
	return r
}
