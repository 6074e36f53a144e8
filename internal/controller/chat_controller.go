package controller

import (
	"bufio"
	"errors"
	"io"

	"coverage-rag-be/internal/dto"
	"coverage-rag-be/internal/pkg/serverutils"
	"coverage-rag-be/internal/service"
	"coverage-rag-be/pkg/rag/progress"
	"coverage-rag-be/pkg/rag/session"
	"coverage-rag-be/pkg/search"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Query(ctx *fiber.Ctx) error
	QueryStream(ctx *fiber.Ctx) error
	CreateSession(ctx *fiber.Ctx) error
	ListSessions(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
	ClearSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	GetProgress(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
	recorder    *progress.Recorder
}

func NewChatController(chatService service.IChatService, recorder *progress.Recorder) IChatController {
	return &chatController{
		chatService: chatService,
		recorder:    recorder,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("query", c.Query)
	h.Post("query/stream", c.QueryStream)
	h.Post("session", c.CreateSession)
	h.Get("sessions", c.ListSessions)
	h.Get("session/:id/history", c.GetHistory)
	h.Post("session/:id/clear", c.ClearSession)
	h.Delete("session/:id", c.DeleteSession)
	h.Get("progress", c.GetProgress)
}

func userIdFromLocals(ctx *fiber.Ctx) uuid.UUID {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)
	return userId
}

func (c *chatController) Query(ctx *fiber.Ctx) error {
	userId := userIdFromLocals(ctx)

	var req dto.QueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Query(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success query", res))
}

// flushWriter flushes after every frame so deltas reach the client as they
// are produced instead of sitting in the buffer.
type flushWriter struct {
	w *bufio.Writer
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}

func (c *chatController) QueryStream(ctx *fiber.Ctx) error {
	userId := userIdFromLocals(ctx)

	var req dto.QueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// Frames must go out as they are produced, so the handler hands the
	// connection to a stream writer. Pre-stream errors (busy session,
	// retrieval down) cannot use the error middleware from inside the
	// writer; they are framed as a terminal JSON line instead.
	reqCtx := ctx.Context()
	ctx.Set(fiber.HeaderContentType, "application/x-ndjson")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")

	reqCtx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		err := c.chatService.QueryStream(reqCtx, userId, &req, flushWriter{w: w})
		if err != nil {
			writeErrorFrame(w, err)
		}
	}))

	return nil
}

func writeErrorFrame(w io.Writer, err error) {
	msg := "internal error"
	switch {
	case errors.Is(err, session.ErrBusy):
		msg = "session busy"
	case errors.Is(err, search.ErrUnavailable):
		msg = "retrieval backend unavailable"
	}
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
}

func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	userId := userIdFromLocals(ctx)

	var req struct {
		SessionId *uuid.UUID `json:"session_id,omitempty"`
	}
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return err
		}
	}

	res, err := c.chatService.CreateSession(ctx.Context(), userId, req.SessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *chatController) ListSessions(ctx *fiber.Ctx) error {
	userId := userIdFromLocals(ctx)
	limit := ctx.QueryInt("limit", 0)

	res, err := c.chatService.ListSessions(ctx.Context(), userId, limit)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

func (c *chatController) GetHistory(ctx *fiber.Ctx) error {
	userId := userIdFromLocals(ctx)

	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}

	res, err := c.chatService.GetHistory(ctx.Context(), userId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get history", res))
}

func (c *chatController) ClearSession(ctx *fiber.Ctx) error {
	userId := userIdFromLocals(ctx)

	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}

	res, err := c.chatService.ClearSession(ctx.Context(), userId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success clear session", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	userId := userIdFromLocals(ctx)

	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}

	if err := c.chatService.DeleteSession(ctx.Context(), userId, id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *chatController) GetProgress(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 50)

	records, err := c.recorder.Recent(limit)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get progress", records))
}
