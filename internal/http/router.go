package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/threadline/dialoguecore/internal/domain"
	"github.com/threadline/dialoguecore/internal/http/handlers"
	"github.com/threadline/dialoguecore/internal/http/middleware"
	"github.com/threadline/dialoguecore/internal/notify"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

// Handlers bundles every REST handler the router wires in.
type Handlers struct {
	Input         *handlers.InputHandler
	Dialogue      *handlers.DialogueHandler
	Query         *handlers.QueryHandler
	Tools         *handlers.ToolsHandler
	Notify        *handlers.NotifyHandler
	Media         *handlers.MediaHandler
	Introspection *handlers.IntrospectionHandler
}

// NewRouter assembles the gin engine: middleware chain, REST surface, and
// the /ws upgrade endpoint served directly by the NotificationHub.
func NewRouter(h Handlers, hub *notify.Hub, corsOrigins string, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("dialoguecore"))
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.AttachRequestContext())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(corsOrigins))

	r.GET("/ws", hub.ServeWS)
	r.GET("/media/:category/:filename", h.Media.Serve)

	api := r.Group("/api")
	{
		api.POST("/input", h.Input.Handle)

		dlg := api.Group("/dialogues")
		dlg.POST("/new", h.Dialogue.CreateGeneric)
		dlg.POST("/human_ai", h.Dialogue.CreateTyped(domain.DialogueHumanAI))
		dlg.POST("/ai_self", h.Dialogue.CreateTyped(domain.DialogueAISelf))
		dlg.POST("/ai_ai", h.Dialogue.CreateTyped(domain.DialogueAIAI))
		dlg.POST("/human_human_private", h.Dialogue.CreateTyped(domain.DialogueHumanHumanPrivate))
		dlg.POST("/human_human_group", h.Dialogue.CreateTyped(domain.DialogueHumanHumanGroup))
		dlg.POST("/human_ai_group", h.Dialogue.CreateTyped(domain.DialogueHumanAIGroup))
		dlg.POST("/ai_multi_human", h.Dialogue.CreateTyped(domain.DialogueAIMultiHuman))
		dlg.GET("", h.Dialogue.List)
		dlg.GET("/:id", h.Dialogue.Get)
		dlg.POST("/:id/close", h.Dialogue.Close)
		dlg.POST("/:id/introspect", h.Introspection.Run)

		q := api.Group("/query")
		q.GET("/dialogues", h.Query.Dialogues)
		q.GET("/sessions", h.Query.Sessions)
		q.GET("/turns", h.Query.Turns)
		q.GET("/messages", h.Query.Messages)
		q.PATCH("/messages/:id", h.Query.UpdateMessage)
		q.DELETE("/messages/:id", h.Query.DeleteMessage)

		t := api.Group("/tools")
		t.GET("", h.Tools.List)
		t.POST("", h.Tools.Invoke)
		t.GET("/categories", h.Tools.Categories)

		n := api.Group("/notify")
		n.POST("/message", h.Notify.Message)
		n.POST("/dialogue_update", h.Notify.DialogueUpdate)
		n.POST("/stream_response", h.Notify.StreamResponse)

		m := api.Group("/media")
		m.POST("/upload", h.Media.Upload)
		m.POST("/upload/base64", h.Media.UploadBase64)
	}

	return r
}
