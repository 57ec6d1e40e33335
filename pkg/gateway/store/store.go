// Package store persists call records. Persistence is optional; when no
// database is configured the gateway runs with the no-op recorder.
package store

import (
	"context"
	"time"
)

// CallRecord is one bridged call's durable summary. Audio is never stored.
type CallRecord struct {
	SessionID   string
	Transport   string
	StreamSID   string
	StartedAt   time.Time
	EndedAt     time.Time
	CloseReason string
	ToolCalls   int
}

// Recorder writes call records. Implementations must tolerate End for a
// session that Start never saw.
type Recorder interface {
	Start(ctx context.Context, rec CallRecord) error
	End(ctx context.Context, sessionID string, endedAt time.Time, closeReason string, toolCalls int) error
	Close()
}

// NopRecorder drops everything. Used when persistence is disabled.
type NopRecorder struct{}

func (NopRecorder) Start(context.Context, CallRecord) error { return nil }

func (NopRecorder) End(context.Context, string, time.Time, string, int) error { return nil }

func (NopRecorder) Close() {}
