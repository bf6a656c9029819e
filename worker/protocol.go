// Package worker runs one upload batch in an isolated execution context and
// returns a single consolidated reply.
//
// The orchestrator and the worker share nothing: a Request goes in, exactly
// one Reply (or a dispatch failure) comes out. Both runners move messages as
// JSON-encoded copies.
package worker

import (
	"encoding/json"
	"fmt"
)

// Request is the initial message handed to a worker.
type Request struct {
	BatchID string   `json:"batch_id"`
	Paths   []string `json:"paths"`
}

// Result is the outcome for one local path. LocalPath is the join key.
type Result struct {
	LocalPath  string   `json:"local_path"`
	RemoteID   string   `json:"remote_id,omitempty"`
	URL        string   `json:"url,omitempty"`
	Bytes      int64    `json:"bytes,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
	Err        string   `json:"error,omitempty"`
	RolledBack bool     `json:"rolled_back,omitempty"`
}

// OK reports whether the path was uploaded and is still live remotely.
func (r Result) OK() bool {
	return r.Err == "" && r.RemoteID != "" && !r.RolledBack
}

// ReplyError is an unstructured failure raised inside the worker.
type ReplyError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *ReplyError) Error() string { return e.Message }

// Reply is the single message a worker sends back.
type Reply struct {
	BatchID string      `json:"batch_id"`
	Results []Result    `json:"results,omitempty"`
	Error   *ReplyError `json:"error,omitempty"`
}

// copyMessage round-trips v through JSON so no memory is shared across the
// worker boundary.
func copyMessage[T any](v T) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode message: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode message: %w", err)
	}
	return out, nil
}
