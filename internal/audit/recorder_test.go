package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-framework-sub018/internal/config"
)

func testRequest() Request {
	return Request{
		TraceID:  "trace-42",
		Method:   "POST",
		Path:     "/api/billing/pay",
		ClientIP: "203.0.113.9",
	}
}

func TestRecorder_Complete(t *testing.T) {
	ctx := context.Background()
	timings := map[string]float64{"rate_limit": 0.4, "auth": 12.1}

	t.Run("standard level records identity fields without stage timings", func(t *testing.T) {
		sink := NewMemorySink()
		r := NewRecorder("customer", config.AuditStandard, sink, zerolog.Nop())

		r.Complete(ctx, testRequest(), OutcomeAllow, 200, 15*time.Millisecond, timings)

		records := sink.Records()
		require.Len(t, records, 1)
		rec := records[0]
		assert.Equal(t, EventRequestComplete, rec.EventType)
		assert.Equal(t, "trace-42", rec.TraceID)
		assert.Equal(t, "customer", rec.Portal)
		assert.Equal(t, OutcomeAllow, rec.Outcome)
		assert.Equal(t, 200, rec.Status)
		assert.InDelta(t, 15.0, rec.LatencyMS, 0.01)
		assert.Equal(t, "POST", rec.Method)
		assert.Equal(t, "/api/billing/pay", rec.Route)
		assert.Equal(t, "203.0.113.9", rec.ClientIP)
		assert.Nil(t, rec.StageTimings)
	})

	t.Run("minimal level strips identity fields", func(t *testing.T) {
		sink := NewMemorySink()
		r := NewRecorder("customer", config.AuditMinimal, sink, zerolog.Nop())

		r.Complete(ctx, testRequest(), OutcomeDeny, 403, time.Millisecond, timings)

		records := sink.Records()
		require.Len(t, records, 1)
		rec := records[0]
		assert.Equal(t, "trace-42", rec.TraceID, "trace id survives every level")
		assert.Empty(t, rec.Method)
		assert.Empty(t, rec.Route)
		assert.Empty(t, rec.ClientIP)
	})

	t.Run("comprehensive level includes stage timings", func(t *testing.T) {
		sink := NewMemorySink()
		r := NewRecorder("admin", config.AuditComprehensive, sink, zerolog.Nop())

		r.Complete(ctx, testRequest(), OutcomeAllow, 200, time.Millisecond, timings)

		records := sink.Records()
		require.Len(t, records, 1)
		assert.Equal(t, timings, records[0].StageTimings)
	})

	t.Run("severity follows the outcome", func(t *testing.T) {
		sink := NewMemorySink()
		r := NewRecorder("customer", config.AuditStandard, sink, zerolog.Nop())

		r.Complete(ctx, testRequest(), OutcomeAllow, 200, 0, nil)
		r.Complete(ctx, testRequest(), OutcomeDeny, 403, 0, nil)
		r.Complete(ctx, testRequest(), OutcomeError, 500, 0, nil)

		records := sink.Records()
		require.Len(t, records, 3)
		assert.Equal(t, SeverityInfo, records[0].Severity)
		assert.Equal(t, SeverityWarning, records[1].Severity)
		assert.Equal(t, SeverityHigh, records[2].Severity)
	})
}

func TestRecorder_Event(t *testing.T) {
	ctx := context.Background()

	t.Run("standard level keeps warning events", func(t *testing.T) {
		sink := NewMemorySink()
		r := NewRecorder("customer", config.AuditStandard, sink, zerolog.Nop())

		r.Event(ctx, testRequest(), EventCSRFMismatch, SeverityWarning, "header absent")

		records := sink.Records()
		require.Len(t, records, 1)
		assert.Equal(t, EventCSRFMismatch, records[0].EventType)
		assert.Equal(t, "header absent", records[0].Detail)
	})

	t.Run("minimal level drops below high severity", func(t *testing.T) {
		sink := NewMemorySink()
		r := NewRecorder("customer", config.AuditMinimal, sink, zerolog.Nop())

		r.Event(ctx, testRequest(), EventCSRFMismatch, SeverityWarning, "dropped")
		r.Event(ctx, testRequest(), EventRateLimitHit, SeverityInfo, "dropped")
		r.Event(ctx, testRequest(), EventVerifierDown, SeverityHigh, "kept")
		r.Event(ctx, testRequest(), EventStageFault, SeverityCritical, "kept")

		records := sink.Records()
		require.Len(t, records, 2)
		assert.Equal(t, EventVerifierDown, records[0].EventType)
		assert.Equal(t, EventStageFault, records[1].EventType)
	})
}

// failingSink always errors; the recorder must swallow it.
type failingSink struct{}

func (failingSink) Write(ctx context.Context, rec *Record) error {
	return fmt.Errorf("sink unavailable")
}

func TestRecorder_SinkFailureDoesNotPropagate(t *testing.T) {
	r := NewRecorder("customer", config.AuditStandard, failingSink{}, zerolog.Nop())

	assert.NotPanics(t, func() {
		r.Event(context.Background(), testRequest(), EventRateLimitHit, SeverityWarning, "x")
		r.Complete(context.Background(), testRequest(), OutcomeAllow, 200, time.Millisecond, nil)
	})
}

func TestLogSink_Write(t *testing.T) {
	sink := NewLogSink(zerolog.Nop())
	err := sink.Write(context.Background(), &Record{
		Timestamp: time.Now().UTC(),
		TraceID:   "t",
		Portal:    "customer",
		EventType: EventRequestComplete,
		Severity:  SeverityInfo,
		Outcome:   OutcomeAllow,
		Status:    200,
	})
	assert.NoError(t, err)
}
