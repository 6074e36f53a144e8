package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"coverage-rag-be/internal/config"
	"coverage-rag-be/internal/constant"
	"coverage-rag-be/internal/dto"
	"coverage-rag-be/internal/entity"
	"coverage-rag-be/internal/pkg/logger"
	"coverage-rag-be/internal/repository/specification"
	"coverage-rag-be/internal/repository/unitofwork"
	"coverage-rag-be/pkg/llm"
	"coverage-rag-be/pkg/rag/citation"
	"coverage-rag-be/pkg/rag/history"
	"coverage-rag-be/pkg/rag/prompt"
	"coverage-rag-be/pkg/rag/session"
	"coverage-rag-be/pkg/rag/stream"
	"coverage-rag-be/pkg/search"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// ExchangeCompletedTopic is the in-process event topic fed after every
// persisted exchange.
const ExchangeCompletedTopic = "EXCHANGE_COMPLETED"

// ExchangeCompletedMessage is the watermill payload for a finished exchange.
type ExchangeCompletedMessage struct {
	SessionId     uuid.UUID `json:"session_id"`
	ExchangeId    uuid.UUID `json:"exchange_id"`
	Query         string    `json:"query"`
	Incomplete    bool      `json:"incomplete"`
	CitationCount int       `json:"citation_count"`
	FirstExchange bool      `json:"first_exchange"`
}

type IChatService interface {
	// Query runs one full exchange and returns the complete response.
	Query(ctx context.Context, userId uuid.UUID, req *dto.QueryRequest) (*dto.QueryResponse, error)

	// QueryStream runs one exchange, writing newline-delimited frames to w
	// as fragments arrive. Errors raised before the first frame (retrieval
	// down, session busy) return without writing anything.
	QueryStream(ctx context.Context, userId uuid.UUID, req *dto.QueryRequest, w io.Writer) error

	CreateSession(ctx context.Context, userId uuid.UUID, sessionId *uuid.UUID) (*dto.CreateSessionResponse, error)
	ListSessions(ctx context.Context, userId uuid.UUID, limit int) ([]dto.SessionSummaryResponse, error)
	GetHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]dto.ExchangeResponse, error)
	ClearSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.ClearSessionResponse, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error
}

type chatService struct {
	uowFactory     unitofwork.RepositoryFactory
	searchProvider search.Provider
	llmProvider    llm.LLMProvider
	promptBuilder  *prompt.Builder
	historyLoader  *history.Loader
	locker         session.Locker
	publisher      message.Publisher
	logger         logger.ILogger
	searchCfg      config.SearchConfig
	ragCfg         config.RagConfig
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	searchProvider search.Provider,
	llmProvider llm.LLMProvider,
	promptBuilder *prompt.Builder,
	historyLoader *history.Loader,
	locker session.Locker,
	publisher message.Publisher,
	sysLogger logger.ILogger,
	searchCfg config.SearchConfig,
	ragCfg config.RagConfig,
) IChatService {
	return &chatService{
		uowFactory:     uowFactory,
		searchProvider: searchProvider,
		llmProvider:    llmProvider,
		promptBuilder:  promptBuilder,
		historyLoader:  historyLoader,
		locker:         locker,
		publisher:      publisher,
		logger:         sysLogger,
		searchCfg:      searchCfg,
		ragCfg:         ragCfg,
	}
}

// --- Session lifecycle ---

// resolveSession loads the caller's session or creates one. A client-supplied
// id unknown to the store is created as-is, which makes server-side creation
// idempotent for clients that mint their own identity.
func (s *chatService) resolveSession(ctx context.Context, userId uuid.UUID, sessionId *uuid.UUID) (*entity.ChatSession, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if sessionId != nil && *sessionId != uuid.Nil {
		existing, err := uow.ChatSessionRepository().FindOne(ctx,
			specification.ByID{ID: *sessionId},
			specification.ByUserID{UserID: userId},
		)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	newSession := &entity.ChatSession{
		UserId: userId,
		Title:  constant.ChatSessionDefaultTitle,
	}
	if sessionId != nil && *sessionId != uuid.Nil {
		newSession.Id = *sessionId
	} else {
		newSession.Id = uuid.New()
	}

	if err := uow.ChatSessionRepository().Create(ctx, newSession); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return newSession, nil
}

func (s *chatService) CreateSession(ctx context.Context, userId uuid.UUID, sessionId *uuid.UUID) (*dto.CreateSessionResponse, error) {
	sess, err := s.resolveSession(ctx, userId, sessionId)
	if err != nil {
		return nil, err
	}
	return &dto.CreateSessionResponse{Id: sess.Id}, nil
}

func (s *chatService) ListSessions(ctx context.Context, userId uuid.UUID, limit int) ([]dto.SessionSummaryResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	specs := []specification.Specification{
		specification.ByUserID{UserID: userId},
		specification.OrderBy{Field: "updated_at", Desc: true},
	}
	if limit > 0 {
		specs = append(specs, specification.Pagination{Limit: limit, Offset: 0})
	}

	sessions, err := uow.ChatSessionRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessionIds := make([]uuid.UUID, len(sessions))
	for i, sess := range sessions {
		sessionIds[i] = sess.Id
	}
	latest, err := uow.ExchangeRepository().LatestCreatedAt(ctx, sessionIds)
	if err != nil {
		return nil, fmt.Errorf("load latest exchanges: %w", err)
	}

	summaries := make([]dto.SessionSummaryResponse, 0, len(sessions))
	for _, sess := range sessions {
		summary := dto.SessionSummaryResponse{
			Id:        sess.Id,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
		}
		if t, ok := latest[sess.Id]; ok {
			summary.LatestExchange = &t
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *chatService) GetHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]dto.ExchangeResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	// Ownership check; unknown session still yields an empty history
	sess, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return []dto.ExchangeResponse{}, nil
	}

	exchanges, err := uow.ExchangeRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}

	responses := make([]dto.ExchangeResponse, 0, len(exchanges))
	for _, ex := range exchanges {
		// Citations are derived, recomputed on every read
		responses = append(responses, dto.ExchangeResponse{
			Id:         ex.Id,
			Query:      ex.Query,
			Response:   ex.Response,
			Citations:  citation.Resolve(ex.Response, ex.Results, s.ragCfg.CitationThreshold),
			Incomplete: ex.Incomplete,
			CreatedAt:  ex.CreatedAt,
		})
	}
	return responses, nil
}

// ClearSession detaches the caller's current-session pointer by minting a
// fresh identity. The cleared session and its exchanges stay persisted.
func (s *chatService) ClearSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.ClearSessionResponse, error) {
	fresh, err := s.resolveSession(ctx, userId, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("chat", "session cleared", map[string]interface{}{
		"old_session_id": sessionId.String(),
		"new_session_id": fresh.Id.String(),
	})

	return &dto.ClearSessionResponse{Id: fresh.Id}, nil
}

func (s *chatService) DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	sess, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.ByUserID{UserID: userId},
	)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil
	}
	return uow.ChatSessionRepository().Delete(ctx, sessionId)
}

// --- Query orchestration ---

func (s *chatService) retrievalQuery(req *dto.QueryRequest) search.Query {
	filter := req.PlanName
	if filter == "" {
		filter = s.searchCfg.PlanFilter
	}

	var selectFields []string
	if s.searchCfg.SelectFields != "" {
		for _, f := range strings.Split(s.searchCfg.SelectFields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				selectFields = append(selectFields, f)
			}
		}
	}

	return search.Query{
		Text:         req.Query,
		Top:          s.searchCfg.Top,
		Filter:       filter,
		SelectFields: selectFields,
	}
}

func (s *chatService) Query(ctx context.Context, userId uuid.UUID, req *dto.QueryRequest) (*dto.QueryResponse, error) {
	sess, err := s.resolveSession(ctx, userId, req.SessionId)
	if err != nil {
		return nil, err
	}

	if err := s.locker.Acquire(ctx, sess.Id.String()); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, sess.Id.String())

	results, err := s.searchProvider.Retrieve(ctx, s.retrievalQuery(req))
	if err != nil {
		return nil, err
	}

	messages, err := s.historyLoader.Load(ctx, sess.Id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	pc := s.promptBuilder.Build(messages, req.Query, results)

	responseText, err := s.llmProvider.Chat(ctx, pc.Messages,
		llm.WithTemperature(s.ragCfg.Temperature),
		llm.WithTopP(s.ragCfg.TopP),
	)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	citations := citation.Resolve(responseText, results, s.ragCfg.CitationThreshold)

	exchange := s.newExchange(sess, req.Query, responseText, results, false)
	s.persistExchange(ctx, sess, exchange, len(citations))

	return &dto.QueryResponse{
		SessionId:  sess.Id,
		ExchangeId: exchange.Id,
		Response:   responseText,
		Citations:  citations,
		Incomplete: false,
	}, nil
}

func (s *chatService) QueryStream(ctx context.Context, userId uuid.UUID, req *dto.QueryRequest, w io.Writer) error {
	sess, err := s.resolveSession(ctx, userId, req.SessionId)
	if err != nil {
		return err
	}

	if err := s.locker.Acquire(ctx, sess.Id.String()); err != nil {
		return err
	}
	defer s.locker.Release(context.WithoutCancel(ctx), sess.Id.String())

	// Retrieval failure is terminal for the exchange; no frame is written
	results, err := s.searchProvider.Retrieve(ctx, s.retrievalQuery(req))
	if err != nil {
		return err
	}

	messages, err := s.historyLoader.Load(ctx, sess.Id)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	pc := s.promptBuilder.Build(messages, req.Query, results)

	// Generation gets its own cancellable context so a dead client stops
	// the fragment producer instead of leaving it blocked mid-send
	genCtx, cancelGen := context.WithCancel(ctx)
	defer cancelGen()

	fragments, err := s.llmProvider.ChatStream(genCtx, pc.Messages,
		llm.WithTemperature(s.ragCfg.Temperature),
		llm.WithTopP(s.ragCfg.TopP),
	)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	assembler := stream.NewAssembler(w)
	interrupted, writeErr := assembler.Consume(fragments)
	if writeErr != nil {
		// A frame-write failure means the client stopped reading. Cancel
		// generation, drain what the producer already sent, and persist
		// the partial text as an incomplete exchange.
		cancelGen()
		for range fragments {
		}
		interrupted = true
		s.logger.Warn("chat", "client stopped reading mid-stream", map[string]interface{}{
			"session_id": sess.Id.String(),
			"error":      writeErr.Error(),
		})
	}
	if ctx.Err() != nil {
		interrupted = true
	}

	citations, finalizeErr := assembler.Finalize(results, s.ragCfg.CitationThreshold, interrupted)
	if finalizeErr != nil && writeErr == nil && ctx.Err() == nil {
		s.logger.Warn("chat", "failed to write citation frame", map[string]interface{}{
			"session_id": sess.Id.String(),
			"error":      finalizeErr.Error(),
		})
	}

	exchange := s.newExchange(sess, req.Query, assembler.Accumulated(), results, interrupted)
	s.persistExchange(context.WithoutCancel(ctx), sess, exchange, len(citations))

	return nil
}

// --- Persistence ---

func (s *chatService) newExchange(sess *entity.ChatSession, query, response string, results []search.Result, incomplete bool) *entity.Exchange {
	return &entity.Exchange{
		Id:            uuid.New(),
		ChatSessionId: sess.Id,
		Query:         query,
		Response:      response,
		Results:       results,
		Temperature:   s.ragCfg.Temperature,
		TopP:          s.ragCfg.TopP,
		Incomplete:    incomplete,
		CreatedAt:     time.Now(),
	}
}

// persistExchange appends the exchange and, on the session's first exchange,
// promotes the leading query to the session title. A store failure after the
// response was already delivered is logged, never retried.
func (s *chatService) persistExchange(ctx context.Context, sess *entity.ChatSession, exchange *entity.Exchange, citationCount int) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if err := uow.Begin(ctx); err != nil {
		s.logger.Warn("chat", "persistence failed: begin transaction", map[string]interface{}{
			"session_id": sess.Id.String(),
			"error":      err.Error(),
		})
		return
	}
	defer uow.Rollback()

	count, err := uow.ExchangeRepository().Count(ctx,
		specification.ByChatSessionID{ChatSessionID: sess.Id},
	)
	if err != nil {
		s.logger.Warn("chat", "persistence failed: count exchanges", map[string]interface{}{
			"session_id": sess.Id.String(),
			"error":      err.Error(),
		})
		return
	}
	firstExchange := count == 0

	if err := uow.ExchangeRepository().Create(ctx, exchange); err != nil {
		s.logger.Warn("chat", "persistence failed: append exchange", map[string]interface{}{
			"session_id": sess.Id.String(),
			"error":      err.Error(),
		})
		return
	}

	if firstExchange {
		sess.Title = sessionTitle(exchange.Query)
		if err := uow.ChatSessionRepository().Update(ctx, sess); err != nil {
			s.logger.Warn("chat", "failed to update session title", map[string]interface{}{
				"session_id": sess.Id.String(),
				"error":      err.Error(),
			})
			return
		}
	}

	if err := uow.Commit(); err != nil {
		s.logger.Warn("chat", "persistence failed: commit", map[string]interface{}{
			"session_id": sess.Id.String(),
			"error":      err.Error(),
		})
		return
	}

	s.publishExchangeCompleted(ExchangeCompletedMessage{
		SessionId:     sess.Id,
		ExchangeId:    exchange.Id,
		Query:         exchange.Query,
		Incomplete:    exchange.Incomplete,
		CitationCount: citationCount,
		FirstExchange: firstExchange,
	})
}

func (s *chatService) publishExchangeCompleted(payload ExchangeCompletedMessage) {
	if s.publisher == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("chat", "failed to marshal exchange event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := s.publisher.Publish(ExchangeCompletedTopic, msg); err != nil {
		s.logger.Warn("chat", "failed to publish exchange event", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func sessionTitle(query string) string {
	title := strings.TrimSpace(query)
	runes := []rune(title)
	if len(runes) > constant.ChatSessionTitleMaxLen {
		title = string(runes[:constant.ChatSessionTitleMaxLen]) + "..."
	}
	if title == "" {
		title = constant.ChatSessionDefaultTitle
	}
	return title
}
