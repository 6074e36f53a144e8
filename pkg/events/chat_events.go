package events

import "time"

const (
	TypeExchangeCompleted = "EXCHANGE_COMPLETED"
	TypeSessionCleared    = "SESSION_CLEARED"
)

// NewExchangeCompleted is emitted after an exchange is persisted, whether
// the generation finished cleanly or was interrupted.
func NewExchangeCompleted(sessionId, exchangeId string, incomplete bool, citationCount int) Event {
	return BaseEvent{
		Type: TypeExchangeCompleted,
		Data: map[string]interface{}{
			"session_id":     sessionId,
			"exchange_id":    exchangeId,
			"incomplete":     incomplete,
			"citation_count": citationCount,
		},
		OccurredAt: time.Now(),
	}
}

func NewSessionCleared(sessionId string) Event {
	return BaseEvent{
		Type: TypeSessionCleared,
		Data: map[string]interface{}{
			"session_id": sessionId,
		},
		OccurredAt: time.Now(),
	}
}
