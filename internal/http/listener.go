package http

import (
	"context"
	"sync/atomic"

	"ecodash/internal/amqp"
	"ecodash/internal/core"
	applog "ecodash/internal/log"
)

// ChangeEvents is the consuming side of the record.written exchange.
type ChangeEvents interface {
	ConsumeRecordWritten(ctx context.Context, handler func(context.Context, *amqp.RecordWrittenMessage) error) error
}

// ListenForChanges invalidates cached section lists when another process
// writes to the Record Source. It blocks until ctx is done.
func (s *Server) ListenForChanges(ctx context.Context, events ChangeEvents) error {
	return events.ConsumeRecordWritten(ctx, s.HandleRecordWritten)
}

// HandleRecordWritten drops the cache of the section named by msg. Unknown
// sections are acknowledged and ignored.
func (s *Server) HandleRecordWritten(ctx context.Context, msg *amqp.RecordWrittenMessage) error {
	atomic.AddInt64(&s.appMetrics.events, 1)
	section, err := core.ParseSection(string(msg.Section))
	if err != nil {
		s.logger.WarnContext(ctx, "Ignoring change event",
			"id", msg.ID,
			applog.FieldSection, string(msg.Section),
			"error", err)
		return nil
	}
	s.InvalidateSection(ctx, section)
	return nil
}
