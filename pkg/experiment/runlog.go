package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// RunEvent is one line of the run log
type RunEvent struct {
	Timestamp int64    `json:"timestamp"`
	Settings  Settings `json:"settings"`
	Metrics   Metrics  `json:"metrics"`
}

// RunLog appends every finished run to a JSONL file
type RunLog struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// OpenRunLog opens filename for appending, creating it if needed
func OpenRunLog(filename string) (*RunLog, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	return &RunLog{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Record writes one event; a nil RunLog ignores the call
func (rl *RunLog) Record(s Settings, m Metrics) error {
	if rl == nil {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.encoder.Encode(RunEvent{
		Timestamp: time.Now().Unix(),
		Settings:  s,
		Metrics:   m,
	})
}

// Close closes the underlying file
func (rl *RunLog) Close() error {
	if rl != nil && rl.file != nil {
		return rl.file.Close()
	}
	return nil
}
