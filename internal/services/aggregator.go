package services

import (
	"sort"
	"strconv"
	"strings"

	"ecodash/internal/core"
)

// AggregateExpenditures groups raw rows into one view per (company, year).
//
// Rows are partitioned on the exact "company-year" key. Each view keeps the
// row of every type it saw, keyed by type ID, and sums the rows' own stored
// totals. The result is ordered by year descending, then company ascending.
// A type appearing twice in one group keeps its last row, but both rows
// count towards the group totals.
func AggregateExpenditures(rows []core.ExpenditureRecord) []core.GroupedExpenditureView {
	groups := make(map[string]*core.GroupedExpenditureView)
	for _, r := range rows {
		key := core.GroupKey(r.Company, r.Year)
		g, ok := groups[key]
		if !ok {
			g = &core.GroupedExpenditureView{
				Company: r.Company,
				Year:    r.Year,
				Types:   make(map[string]core.ExpenditureLine),
			}
			groups[key] = g
		}
		g.Types[r.TypeID] = core.LineFromRecord(r)
		g.TotalDistributed = g.TotalDistributed.Add(r.TotalDistributed)
		g.TotalExpenditures = g.TotalExpenditures.Add(r.TotalExpenditures)
	}

	out := make([]core.GroupedExpenditureView, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Company < out[j].Company
	})
	return out
}

// Filter narrows a section list. Zero values match everything.
type Filter struct {
	Company string
	Year    int
	// Query is matched case-insensitively against company, type name and year.
	Query string
}

func (f Filter) IsEmpty() bool {
	return f.Company == "" && f.Year == 0 && strings.TrimSpace(f.Query) == ""
}

func (f Filter) matchYear(year int) bool {
	return f.Year == 0 || f.Year == year
}

func (f Filter) matchQuery(fields ...string) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	for _, v := range fields {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// FilterExpenditures runs before aggregation so group totals only include
// matching rows.
func FilterExpenditures(rows []core.ExpenditureRecord, f Filter) []core.ExpenditureRecord {
	if f.IsEmpty() {
		return rows
	}
	out := make([]core.ExpenditureRecord, 0, len(rows))
	for _, r := range rows {
		if f.Company != "" && r.Company != f.Company {
			continue
		}
		if !f.matchYear(r.Year) || !f.matchQuery(r.Company, r.TypeName, r.TypeID, strconv.Itoa(r.Year)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func FilterValueGenerated(rows []core.ValueGeneratedRecord, f Filter) []core.ValueGeneratedRecord {
	if f.IsEmpty() {
		return rows
	}
	out := make([]core.ValueGeneratedRecord, 0, len(rows))
	for _, r := range rows {
		if f.matchYear(r.Year) && f.matchQuery(strconv.Itoa(r.Year)) {
			out = append(out, r)
		}
	}
	return out
}

func FilterCapitalProvider(rows []core.CapitalProviderPaymentRecord, f Filter) []core.CapitalProviderPaymentRecord {
	if f.IsEmpty() {
		return rows
	}
	out := make([]core.CapitalProviderPaymentRecord, 0, len(rows))
	for _, r := range rows {
		if f.matchYear(r.Year) && f.matchQuery(strconv.Itoa(r.Year)) {
			out = append(out, r)
		}
	}
	return out
}
