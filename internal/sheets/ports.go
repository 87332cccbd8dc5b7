// Package sheets holds the ports for mirroring section reports into a
// spreadsheet.
package sheets

import (
	"context"

	"ecodash/internal/core"
	"ecodash/internal/report"
)

// Ports for outbound adapters.
type (
	// ReportWriter replaces the tab of a section with a rendered report.
	ReportWriter interface {
		WriteReport(ctx context.Context, t report.Table) error
	}

	// ReportReader returns the rows last mirrored for a section, header first.
	ReportReader interface {
		ReadReport(ctx context.Context, section core.Section) ([][]string, error)
	}
)
