package controller

import (
	"context"

	"coverage-rag-be/internal/dto"
	"coverage-rag-be/internal/pkg/logger"
	"coverage-rag-be/internal/pkg/serverutils"
	"coverage-rag-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ChatWsController exposes the same frame sequence as the NDJSON endpoint
// over a websocket, one frame per text message.
type ChatWsController struct {
	chatService service.IChatService
	logger      logger.ILogger
}

func NewChatWsController(chatService service.IChatService, wsLogger logger.ILogger) *ChatWsController {
	return &ChatWsController{
		chatService: chatService,
		logger:      wsLogger,
	}
}

func (c *ChatWsController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Get("ws", serverutils.JwtMiddleware, func(ctx *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(ctx) {
			return websocket.New(c.handle)(ctx)
		}
		return fiber.ErrUpgradeRequired
	})
}

// wsFrameWriter turns each assembler write (one frame per call) into one
// websocket text message.
type wsFrameWriter struct {
	conn *websocket.Conn
}

func (w wsFrameWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *ChatWsController) handle(conn *websocket.Conn) {
	defer conn.Close()

	userIdStr, _ := conn.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid identity"}`))
		return
	}

	for {
		var req dto.QueryRequest
		if err := conn.ReadJSON(&req); err != nil {
			return // client went away or sent garbage
		}
		if req.Query == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"query is required"}`))
			continue
		}

		// A dropped connection surfaces as a frame-write failure inside
		// QueryStream, which stops generation and persists the partial
		// exchange as incomplete.
		if err := c.chatService.QueryStream(context.Background(), userId, &req, wsFrameWriter{conn: conn}); err != nil {
			writeErrorFrame(wsFrameWriter{conn: conn}, err)
		}
	}
}
