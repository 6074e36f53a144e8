package progress

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.ndjson")
	r := NewRecorder(path)

	require.NoError(t, r.Append(Record{Operation: "query", SessionId: "s1", Status: "started"}))
	require.NoError(t, r.Append(Record{Operation: "query", SessionId: "s1", Status: "completed"}))
	require.NoError(t, r.Append(Record{Operation: "query", SessionId: "s2", Status: "started"}))

	records, err := r.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// newest first
	assert.Equal(t, "s2", records[0].SessionId)
	assert.Equal(t, "completed", records[1].Status)
}

func TestRecentMissingFile(t *testing.T) {
	r := NewRecorder(filepath.Join(t.TempDir(), "absent.ndjson"))
	records, err := r.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
