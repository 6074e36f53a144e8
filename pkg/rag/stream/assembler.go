package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"coverage-rag-be/pkg/llm"
	"coverage-rag-be/pkg/rag/citation"
	"coverage-rag-be/pkg/search"
)

// Assembler converts a fragment sequence into newline-delimited JSON frames
// while building the full accumulated response. Frame order is fixed: every
// text-delta frame precedes the single citation frame, and concatenating the
// deltas in emission order reproduces Accumulated() exactly.
type Assembler struct {
	w           io.Writer
	accumulated strings.Builder
	finalized   bool
}

type deltaFrame struct {
	Response string `json:"response"`
}

type citationFrame struct {
	Citations  []citation.Citation `json:"citations"`
	Incomplete bool                `json:"incomplete"`
}

func NewAssembler(w io.Writer) *Assembler {
	return &Assembler{w: w}
}

// WriteDelta appends the fragment to the accumulator and emits one frame.
// A write error means the client stopped reading; the accumulator still
// holds everything appended so far.
func (a *Assembler) WriteDelta(delta string) error {
	if a.finalized {
		return errors.New("stream already finalized")
	}

	a.accumulated.WriteString(delta)

	frame, err := json.Marshal(deltaFrame{Response: delta})
	if err != nil {
		return fmt.Errorf("marshal delta frame: %w", err)
	}
	frame = append(frame, '\n')
	if _, err := a.w.Write(frame); err != nil {
		return fmt.Errorf("write delta frame: %w", err)
	}
	return nil
}

// Consume drains the fragment channel into delta frames. It reports whether
// the stream terminated abnormally; partial text is kept either way. A frame
// write error stops consumption early and is returned as writeErr.
func (a *Assembler) Consume(fragments <-chan llm.Fragment) (interrupted bool, writeErr error) {
	for frag := range fragments {
		if frag.Err != nil {
			return true, nil
		}
		if frag.Content == "" {
			continue
		}
		if err := a.WriteDelta(frag.Content); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Finalize resolves citations against the accumulated text and emits the
// closing frame. Called exactly once, after the fragment sequence ends.
func (a *Assembler) Finalize(results []search.Result, threshold float64, incomplete bool) ([]citation.Citation, error) {
	if a.finalized {
		return nil, errors.New("stream already finalized")
	}
	a.finalized = true

	citations := citation.Resolve(a.accumulated.String(), results, threshold)

	frame, err := json.Marshal(citationFrame{
		Citations:  citations,
		Incomplete: incomplete,
	})
	if err != nil {
		return citations, fmt.Errorf("marshal citation frame: %w", err)
	}
	frame = append(frame, '\n')
	if _, err := a.w.Write(frame); err != nil {
		return citations, fmt.Errorf("write citation frame: %w", err)
	}
	return citations, nil
}

// Accumulated returns the full response text assembled so far.
func (a *Assembler) Accumulated() string {
	return a.accumulated.String()
}
