package stream

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"coverage-rag-be/pkg/llm"
	"coverage-rag-be/pkg/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parsedFrame struct {
	Response   *string                  `json:"response"`
	Citations  []map[string]interface{} `json:"citations"`
	Incomplete *bool                    `json:"incomplete"`
}

func parseFrames(t *testing.T, raw []byte) []parsedFrame {
	t.Helper()
	var frames []parsedFrame
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		var f parsedFrame
		require.NoError(t, json.Unmarshal([]byte(line), &f), "frame not individually parseable: %q", line)
		frames = append(frames, f)
	}
	return frames
}

func TestDeltasThenCitationFrame(t *testing.T) {
	var buf bytes.Buffer
	a := NewAssembler(&buf)

	require.NoError(t, a.WriteDelta("Coverage "))
	require.NoError(t, a.WriteDelta("includes X[1]."))

	results := []search.Result{{Document: "SBC.pdf", Score: 0.82}}
	citations, err := a.Finalize(results, 0.7, false)
	require.NoError(t, err)

	require.Len(t, citations, 1)
	assert.Equal(t, "SBC.pdf", citations[0].Document)
	assert.Equal(t, 0.82, citations[0].Score)

	frames := parseFrames(t, buf.Bytes())
	require.Len(t, frames, 3)

	// two delta frames first, citation frame last
	assert.Equal(t, "Coverage ", *frames[0].Response)
	assert.Equal(t, "includes X[1].", *frames[1].Response)
	assert.Nil(t, frames[2].Response)
	require.Len(t, frames[2].Citations, 1)
	assert.Equal(t, "SBC.pdf", frames[2].Citations[0]["document"])
	assert.False(t, *frames[2].Incomplete)
}

func TestDeltaRoundTripMatchesAccumulated(t *testing.T) {
	var buf bytes.Buffer
	a := NewAssembler(&buf)

	deltas := []string{"one ", "", "two ", "three[2]"}
	for _, d := range deltas {
		require.NoError(t, a.WriteDelta(d))
	}
	_, err := a.Finalize(nil, 0.7, false)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for _, f := range parseFrames(t, buf.Bytes()) {
		if f.Response != nil {
			rebuilt.WriteString(*f.Response)
		}
	}
	assert.Equal(t, a.Accumulated(), rebuilt.String())
}

func TestConsumeInterruptedStream(t *testing.T) {
	var buf bytes.Buffer
	a := NewAssembler(&buf)

	fragments := make(chan llm.Fragment, 3)
	fragments <- llm.Fragment{Content: "partial "}
	fragments <- llm.Fragment{Content: "answer"}
	fragments <- llm.Fragment{Err: llm.ErrInterrupted}
	close(fragments)

	interrupted, writeErr := a.Consume(fragments)
	require.NoError(t, writeErr)
	assert.True(t, interrupted)
	assert.Equal(t, "partial answer", a.Accumulated())

	_, err := a.Finalize(nil, 0.7, true)
	require.NoError(t, err)

	frames := parseFrames(t, buf.Bytes())
	last := frames[len(frames)-1]
	assert.True(t, *last.Incomplete)
	assert.NotNil(t, last.Citations, "citation frame must carry a citation list even when empty")
}

func TestFinalizeTwiceFails(t *testing.T) {
	a := NewAssembler(&bytes.Buffer{})
	_, err := a.Finalize(nil, 0.7, false)
	require.NoError(t, err)
	_, err = a.Finalize(nil, 0.7, false)
	assert.Error(t, err)
}

func TestEmptyCitationListSerializesAsArray(t *testing.T) {
	var buf bytes.Buffer
	a := NewAssembler(&buf)
	require.NoError(t, a.WriteDelta("no markers here"))
	_, err := a.Finalize([]search.Result{{Document: "D.pdf", Score: 0.9}}, 0.7, false)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Contains(t, lines[len(lines)-1], `"citations":[]`)
}
