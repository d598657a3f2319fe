package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// FileSink writes one JSON line per record. Safe for concurrent use.
type FileSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFileSink creates a sink writing JSON lines to w.
func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: w}
}

// Append writes the record as a single JSON line.
func (s *FileSink) Append(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}
	return nil
}

var _ Sink = (*FileSink)(nil)
