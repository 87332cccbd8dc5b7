package core

import (
	"fmt"
	"sort"
	"strconv"
)

// ExpenditureLine is one type's row inside a grouped view.
type ExpenditureLine struct {
	TypeID   string `json:"type_id"`
	TypeName string `json:"type_name"`
	ExpenditureComponents
	TotalDistributed  Amount `json:"total_distributed"`
	TotalExpenditures Amount `json:"total_expenditures"`
}

// GroupedExpenditureView collects all type rows of one (company, year).
// Types is keyed by type ID. The group totals are sums of the rows' stored
// totals, not recomputed from Types.
type GroupedExpenditureView struct {
	Company           string                     `json:"company"`
	Year              int                        `json:"year"`
	Types             map[string]ExpenditureLine `json:"types"`
	TotalDistributed  Amount                     `json:"total_distributed"`
	TotalExpenditures Amount                     `json:"total_expenditures"`
}

// GroupKey is the composite partition key "company-year".
func GroupKey(company string, year int) string {
	return company + "-" + strconv.Itoa(year)
}

func (g GroupedExpenditureView) Key() string {
	return GroupKey(g.Company, g.Year)
}

// Lines returns the type rows ordered by type name, then ID.
func (g GroupedExpenditureView) Lines() []ExpenditureLine {
	lines := make([]ExpenditureLine, 0, len(g.Types))
	for _, l := range g.Types {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].TypeName != lines[j].TypeName {
			return lines[i].TypeName < lines[j].TypeName
		}
		return lines[i].TypeID < lines[j].TypeID
	})
	return lines
}

// LineFromRecord keeps the non-key fields of a row as stored.
func LineFromRecord(r ExpenditureRecord) ExpenditureLine {
	return ExpenditureLine{
		TypeID:                r.TypeID,
		TypeName:              r.TypeName,
		ExpenditureComponents: r.ExpenditureComponents,
		TotalDistributed:      r.TotalDistributed,
		TotalExpenditures:     r.TotalExpenditures,
	}
}

// ImportResult is the Record Source's report for a spreadsheet upload.
type ImportResult struct {
	SuccessfulImports int      `json:"successful_imports"`
	Errors            int      `json:"errors"`
	ErrorDetails      []string `json:"error_details"`
	TotalProcessed    int      `json:"total_processed"`
}

// Truncate keeps at most limit error details, appending a note with the
// number of omitted ones. limit <= 0 keeps everything.
func (r ImportResult) Truncate(limit int) ImportResult {
	out := r
	if out.ErrorDetails == nil {
		out.ErrorDetails = []string{}
	}
	if limit <= 0 || len(out.ErrorDetails) <= limit {
		return out
	}
	omitted := len(out.ErrorDetails) - limit
	details := make([]string, 0, limit+1)
	details = append(details, out.ErrorDetails[:limit]...)
	details = append(details, fmt.Sprintf("... and %d more", omitted))
	out.ErrorDetails = details
	return out
}

// Summary is a one-line description suitable for a notification.
func (r ImportResult) Summary() string {
	if r.Errors == 0 {
		return fmt.Sprintf("Imported %d of %d rows", r.SuccessfulImports, r.TotalProcessed)
	}
	return fmt.Sprintf("Import rejected: %d errors in %d rows", r.Errors, r.TotalProcessed)
}
