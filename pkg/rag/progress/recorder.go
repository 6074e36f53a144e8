package progress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record is one audit entry for a pipeline operation, stored as a single
// JSON line so external tooling can tail the file.
type Record struct {
	Timestamp time.Time              `json:"timestamp"`
	Operation string                 `json:"operation"`
	SessionId string                 `json:"session_id,omitempty"`
	Status    string                 `json:"status"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Recorder appends Records to an NDJSON file.
type Recorder struct {
	mu       sync.Mutex
	filePath string
}

func NewRecorder(filePath string) *Recorder {
	return &Recorder{filePath: filePath}
}

// Append writes one record. Failures propagate so the caller can log them;
// the pipeline itself never fails on a broken audit file.
func (r *Recorder) Append(record Record) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal progress record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open progress file: %w", err)
	}
	defer f.Close()

	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append progress record: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent records, newest first. A missing
// file yields an empty slice.
func (r *Recorder) Recent(limit int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip torn lines from a crashed writer
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Reverse to newest first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
