package service

import (
	"context"
	"encoding/json"

	"coverage-rag-be/internal/pkg/logger"
	"coverage-rag-be/pkg/events"
	pkgNats "coverage-rag-be/pkg/nats"
	"coverage-rag-be/pkg/rag/progress"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains exchange-completed events off the in-process bus,
// appends an audit record, and mirrors the event to NATS when available.
type consumerService struct {
	pubSub   *gochannel.GoChannel
	recorder *progress.Recorder
	natsPub  *pkgNats.Publisher
	logger   logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	recorder *progress.Recorder,
	natsPub *pkgNats.Publisher,
	sysLogger logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:   pubSub,
		recorder: recorder,
		natsPub:  natsPub,
		logger:   sysLogger,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, ExchangeCompletedTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload ExchangeCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("consumer", "failed to unmarshal exchange event", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	status := "completed"
	if payload.Incomplete {
		status = "interrupted"
	}

	if err := cs.recorder.Append(progress.Record{
		Operation: "exchange",
		SessionId: payload.SessionId.String(),
		Status:    status,
		Details: map[string]interface{}{
			"exchange_id":    payload.ExchangeId.String(),
			"citation_count": payload.CitationCount,
			"first_exchange": payload.FirstExchange,
		},
	}); err != nil {
		cs.logger.Warn("consumer", "failed to append progress record", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if cs.natsPub != nil {
		event := events.NewExchangeCompleted(
			payload.SessionId.String(),
			payload.ExchangeId.String(),
			payload.Incomplete,
			payload.CitationCount,
		)
		if err := cs.natsPub.Publish(ctx, event); err != nil {
			cs.logger.Warn("consumer", "failed to publish NATS event", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	msg.Ack()
}
