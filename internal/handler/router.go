package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers 汇总所有路由处理器。
type Handlers struct {
	Document     *DocumentHandler
	Upload       *UploadHandler
	Search       *SearchHandler
	Model        *ModelHandler
	Chat         *ChatHandler
	Conversation *ConversationHandler
	Events       *EventsHandler
}

// RegisterRoutes 在 r 上注册所有 API 路由。
func RegisterRoutes(r *gin.Engine, h Handlers) {
	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("/upload", h.Upload.Upload)
			documents.GET("", h.Document.ListDocuments)
			documents.GET("/tree", h.Document.Tree)
			documents.DELETE("/:id", h.Document.DeleteDocument)
			documents.GET("/:id/preview", h.Document.PreviewFile)
			documents.GET("/:id/download", h.Document.GenerateDownloadURL)
		}

		apiV1.GET("/collection/status", h.Document.CollectionStatus)
		apiV1.GET("/activities", h.Document.Activities)
		apiV1.GET("/events", h.Events.Stream)
		apiV1.GET("/search", h.Search.Search)

		models := apiV1.Group("/models")
		{
			models.GET("", h.Model.GetModels)
			models.PUT("/embedding", h.Model.SetEmbeddingModel)
			models.PUT("/inference", h.Model.SetInferenceModel)
			models.POST("/reindex", h.Model.Reindex)
		}

		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.POST("", h.Chat.Ask)
			chatGroup.GET("/websocket-token", h.Chat.GetWebsocketToken)
		}

		conversations := apiV1.Group("/conversations")
		{
			conversations.GET("/:id", h.Conversation.GetConversation)
			conversations.DELETE("/:id", h.Conversation.DeleteConversation)
		}
	}
	r.GET("/chat/:token", h.Chat.Handle)
}
