package history

import (
	"context"

	"coverage-rag-be/pkg/llm"

	"github.com/google/uuid"
)

// DefaultMaxExchanges bounds how many prior exchanges feed the prompt.
const DefaultMaxExchanges = 10

// ExchangeEntry is the query/response pair of one stored exchange.
type ExchangeEntry struct {
	Query    string
	Response string
}

// ExchangeSource lists a session's most recent exchanges, newest first. The
// storage layer implements it; an unknown session id yields an empty list,
// never an error.
type ExchangeSource interface {
	RecentExchanges(ctx context.Context, sessionId uuid.UUID, limit int) ([]ExchangeEntry, error)
}

// Loader reads a session's recent exchanges and flattens them into chat
// messages for the generation call.
type Loader struct {
	source     ExchangeSource
	maxHistory int
}

func NewLoader(source ExchangeSource, maxHistory int) *Loader {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxExchanges
	}
	return &Loader{
		source:     source,
		maxHistory: maxHistory,
	}
}

// Load returns up to maxHistory most recent exchanges as messages, oldest
// first, each exchange contributing a user and an assistant message. Older
// exchanges are dropped outright, no summarization.
func (l *Loader) Load(ctx context.Context, sessionId uuid.UUID) ([]llm.Message, error) {
	entries, err := l.source.RecentExchanges(ctx, sessionId, l.maxHistory)
	if err != nil {
		return nil, err
	}

	// Newest-first from the source, reversed to oldest-first for the prompt
	messages := make([]llm.Message, 0, len(entries)*2)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		messages = append(messages, llm.Message{Role: "user", Content: e.Query})
		if e.Response != "" {
			messages = append(messages, llm.Message{Role: "assistant", Content: e.Response})
		}
	}

	return messages, nil
}
