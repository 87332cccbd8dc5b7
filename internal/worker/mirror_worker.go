package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ecodash/internal/amqp"
	"ecodash/internal/core"
	"ecodash/internal/report"
	"ecodash/internal/services"
	"ecodash/internal/sheets"
)

// MirrorWorker keeps a spreadsheet copy of every section report. Sections
// are rewritten when a record.written event names them and all of them on
// every tick, which covers events that were lost.
type MirrorWorker struct {
	src    report.Lister
	mirror sheets.ReportWriter
}

func NewMirrorWorker(src report.Lister, mirror sheets.ReportWriter) *MirrorWorker {
	return &MirrorWorker{src: src, mirror: mirror}
}

// HandleRecordWritten mirrors the section named by a change event. Events for
// unknown sections are logged and acknowledged.
func (w *MirrorWorker) HandleRecordWritten(ctx context.Context, msg *amqp.RecordWrittenMessage) error {
	slog.InfoContext(ctx, "Processing change event",
		"id", msg.ID,
		"section", string(msg.Section),
		"action", string(msg.Action))

	section, err := core.ParseSection(string(msg.Section))
	if err != nil {
		slog.WarnContext(ctx, "Ignoring change event", "id", msg.ID, "error", err)
		return nil
	}
	return w.MirrorSection(ctx, section)
}

// MirrorSection rebuilds one section report and writes it to the mirror.
func (w *MirrorWorker) MirrorSection(ctx context.Context, section core.Section) error {
	start := time.Now()
	tbl, err := report.Build(ctx, w.src, section, services.Filter{})
	if err != nil {
		return fmt.Errorf("build %s report: %w", section, err)
	}
	if err := w.mirror.WriteReport(ctx, tbl); err != nil {
		return fmt.Errorf("mirror %s report: %w", section, err)
	}
	slog.InfoContext(ctx, "Section mirrored",
		"section", string(section),
		"rows", len(tbl.Rows),
		"duration", time.Since(start))
	return nil
}

// MirrorAll mirrors every section. A failing section does not stop the
// others; all failures are returned joined.
func (w *MirrorWorker) MirrorAll(ctx context.Context) error {
	var errs []error
	for _, section := range core.Sections {
		if err := w.MirrorSection(ctx, section); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror section",
				"section", string(section),
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run mirrors every section once and then on each tick until ctx is done.
func (w *MirrorWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.MirrorAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup mirror failed", "error", err)
	}
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.MirrorAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic mirror failed", "error", err)
			}
		}
	}
}
