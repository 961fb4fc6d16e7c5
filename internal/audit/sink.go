package audit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink receives finished audit records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, rec *Record) error
}

// LogSink writes records as structured log lines. The default sink.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that writes to the given logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Write(ctx context.Context, rec *Record) error {
	ev := s.logger.Info()
	if rec.Severity == SeverityHigh || rec.Severity == SeverityCritical {
		ev = s.logger.Warn()
	}
	ev = ev.
		Str("trace_id", rec.TraceID).
		Str("portal", rec.Portal).
		Str("event_type", rec.EventType).
		Str("severity", string(rec.Severity)).
		Time("timestamp", rec.Timestamp)
	if rec.Route != "" {
		ev = ev.Str("method", rec.Method).Str("route", rec.Route).Str("client_ip", rec.ClientIP)
	}
	if rec.Outcome != "" {
		ev = ev.Str("outcome", string(rec.Outcome)).Int("status", rec.Status).Float64("latency_ms", rec.LatencyMS)
	}
	if rec.Detail != "" {
		ev = ev.Str("detail", rec.Detail)
	}
	if len(rec.StageTimings) > 0 {
		ev = ev.Interface("stage_timings", rec.StageTimings)
	}
	ev.Msg("audit")
	return nil
}

// RedisSink appends records to a Redis stream for an external collector.
type RedisSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisSink creates a sink appending to the given stream. maxLen caps
// the stream with approximate trimming; zero means unbounded.
func NewRedisSink(client redis.UniversalClient, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = "dotmac:audit"
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Write(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{"record": payload},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

// MemorySink buffers records in memory. Used by tests.
type MemorySink struct {
	mu      sync.Mutex
	records []*Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a snapshot of everything written so far.
func (s *MemorySink) Records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}
