package prompt

import (
	"fmt"
	"strings"

	"coverage-rag-be/pkg/llm"
	"coverage-rag-be/pkg/search"
)

// PromptContext is the assembled input for one generation call: the system
// prompt, bounded history, and the current query with its reference block.
type PromptContext struct {
	Messages []llm.Message
}

// Builder renders retrieval results into a numbered reference block and
// stitches it together with history and the current query.
type Builder struct {
	systemPrompt string
}

func NewBuilder(systemPrompt string) *Builder {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Builder{systemPrompt: systemPrompt}
}

const defaultSystemPrompt = `You are an assistant that answers questions about insurance plan documents.
Answer only from the numbered reference documents provided. When you use a
document, cite it inline with its bracketed number, e.g. [1]. If the
references do not contain the answer, say so instead of guessing.`

// Build assembles the prompt. History must already be bounded and ordered
// oldest first. Reference numbering equals 1-based position in results and
// must never be re-sorted afterwards; citation resolution depends on it.
func (b *Builder) Build(history []llm.Message, query string, results []search.Result) PromptContext {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: b.systemPrompt})
	messages = append(messages, history...)

	var sb strings.Builder
	if len(results) > 0 {
		sb.WriteString("Reference documents:\n\n")
		for i, r := range results {
			sb.WriteString(fmt.Sprintf("--- Document %d (%s", i+1, r.Document))
			if r.Plan != "" {
				sb.WriteString(", plan: " + r.Plan)
			}
			sb.WriteString(") ---\n")
			sb.WriteString(r.Content)
			sb.WriteString("\n\n")
		}
		sb.WriteString("Question: ")
	}
	sb.WriteString(query)

	messages = append(messages, llm.Message{Role: "user", Content: sb.String()})

	return PromptContext{Messages: messages}
}
