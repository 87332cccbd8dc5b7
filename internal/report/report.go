// Package report renders section records as flat tables. The same table
// feeds the CSV, JSON and PDF writers, the spreadsheet mirror and the CLI.
package report

import (
	"context"
	"fmt"
	"strconv"

	"ecodash/internal/core"
	"ecodash/internal/services"
)

// Lister is the read side of the Record Source a report needs.
type Lister interface {
	ListValueGenerated(ctx context.Context) ([]core.ValueGeneratedRecord, error)
	ListExpenditures(ctx context.Context) ([]core.ExpenditureRecord, error)
	ListCapitalProviderPayments(ctx context.Context) ([]core.CapitalProviderPaymentRecord, error)
}

// Row is one table line. Total marks an expenditure group total line.
type Row struct {
	Cells []string `json:"cells"`
	Total bool     `json:"total,omitempty"`
}

// Table is a rendered section.
type Table struct {
	Section core.Section `json:"section"`
	Title   string       `json:"title"`
	Header  []string     `json:"header"`
	Rows    []Row        `json:"rows"`
}

// Build loads a section from the Record Source, filters it and renders it.
func Build(ctx context.Context, src Lister, section core.Section, f services.Filter) (Table, error) {
	switch section {
	case core.SectionValueGenerated:
		rows, err := src.ListValueGenerated(ctx)
		if err != nil {
			return Table{}, fmt.Errorf("list value generated: %w", err)
		}
		return ValueGenerated(services.FilterValueGenerated(rows, f)), nil
	case core.SectionExpenditures:
		rows, err := src.ListExpenditures(ctx)
		if err != nil {
			return Table{}, fmt.Errorf("list expenditures: %w", err)
		}
		return Expenditures(services.AggregateExpenditures(services.FilterExpenditures(rows, f))), nil
	case core.SectionCapitalProvider:
		rows, err := src.ListCapitalProviderPayments(ctx)
		if err != nil {
			return Table{}, fmt.Errorf("list capital provider payments: %w", err)
		}
		return CapitalProvider(services.FilterCapitalProvider(rows, f)), nil
	}
	return Table{}, fmt.Errorf("%w: %q", core.ErrUnknownSection, section)
}

func header(keys []string, fields []string, totals ...string) []string {
	h := make([]string, 0, len(keys)+len(fields)+len(totals))
	h = append(h, keys...)
	for _, f := range fields {
		h = append(h, core.Label(f))
	}
	for _, f := range totals {
		h = append(h, core.Label(f))
	}
	return h
}

func ValueGenerated(rows []core.ValueGeneratedRecord) Table {
	t := Table{
		Section: core.SectionValueGenerated,
		Title:   core.SectionValueGenerated.Title(),
		Header:  header([]string{"Year"}, core.ValueGeneratedFields, "total_revenue"),
		Rows:    make([]Row, 0, len(rows)),
	}
	for _, r := range rows {
		cells := []string{strconv.Itoa(r.Year)}
		for _, f := range core.ValueGeneratedFields {
			a, _ := r.Get(f)
			cells = append(cells, a.StringFixed(2))
		}
		cells = append(cells, r.TotalRevenue.StringFixed(2))
		t.Rows = append(t.Rows, Row{Cells: cells})
	}
	return t
}

// Expenditures lists every type line of a group followed by the group's
// total line. Group totals are the grouped view's, summed from stored
// totals.
func Expenditures(groups []core.GroupedExpenditureView) Table {
	t := Table{
		Section: core.SectionExpenditures,
		Title:   core.SectionExpenditures.Title(),
		Header:  header([]string{"Company", "Year", "Type"}, core.ExpenditureFields, "total_distributed", "total_expenditures"),
		Rows:    make([]Row, 0),
	}
	blanks := make([]string, len(core.ExpenditureFields))
	for _, g := range groups {
		year := strconv.Itoa(g.Year)
		for _, l := range g.Lines() {
			name := l.TypeName
			if name == "" {
				name = l.TypeID
			}
			cells := []string{g.Company, year, name}
			for _, f := range core.ExpenditureFields {
				a, _ := l.Get(f)
				cells = append(cells, a.StringFixed(2))
			}
			cells = append(cells, l.TotalDistributed.StringFixed(2), l.TotalExpenditures.StringFixed(2))
			t.Rows = append(t.Rows, Row{Cells: cells})
		}
		cells := append([]string{g.Company, year, "Total"}, blanks...)
		cells = append(cells, g.TotalDistributed.StringFixed(2), g.TotalExpenditures.StringFixed(2))
		t.Rows = append(t.Rows, Row{Cells: cells, Total: true})
	}
	return t
}

func CapitalProvider(rows []core.CapitalProviderPaymentRecord) Table {
	t := Table{
		Section: core.SectionCapitalProvider,
		Title:   core.SectionCapitalProvider.Title(),
		Header:  header([]string{"Year"}, core.CapitalProviderFields, "total"),
		Rows:    make([]Row, 0, len(rows)),
	}
	for _, r := range rows {
		cells := []string{strconv.Itoa(r.Year)}
		for _, f := range core.CapitalProviderFields {
			a, _ := r.Get(f)
			cells = append(cells, a.StringFixed(2))
		}
		cells = append(cells, r.Total.StringFixed(2))
		t.Rows = append(t.Rows, Row{Cells: cells})
	}
	return t
}

// Values returns the header and rows as a grid of cells.
func (t Table) Values() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	for _, r := range t.Rows {
		out = append(out, r.Cells)
	}
	return out
}
