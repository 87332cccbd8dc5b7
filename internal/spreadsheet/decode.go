package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"

	"ecodash/internal/core"
)

// Batch holds the records decoded from an upload. Processed counts non-blank
// data rows, including rows that failed to decode.
type Batch struct {
	Section         core.Section
	ValueGenerated  []core.ValueGeneratedRecord
	Expenditures    []core.ExpenditureRecord
	CapitalProvider []core.CapitalProviderPaymentRecord
	Processed       int
}

// Len is the number of decoded records.
func (b Batch) Len() int {
	return len(b.ValueGenerated) + len(b.Expenditures) + len(b.CapitalProvider)
}

var columnAliases = map[string]string{
	"type_id":          "type",
	"expenditure_type": "type",
	"company_id":       "company",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if alias, ok := columnAliases[h]; ok {
		return alias
	}
	return h
}

// Decode maps rows (header first) to derived records. File level problems
// such as a missing key column are returned as error; per-row problems are
// returned as messages prefixed with the spreadsheet row number.
func Decode(section core.Section, rows [][]string, types []core.ExpenditureType) (Batch, []string, error) {
	batch := Batch{Section: section}
	if len(rows) == 0 {
		return batch, nil, ErrEmptyFile
	}

	index := map[string]int{}
	for i, h := range rows[0] {
		index[normalizeHeader(h)] = i
	}
	for _, k := range section.KeyColumns() {
		if _, ok := index[k]; !ok {
			return batch, nil, fmt.Errorf("%w: %s", ErrMissingColumn, k)
		}
	}

	typeLookup := map[string]core.ExpenditureType{}
	for _, t := range types {
		typeLookup[strings.ToLower(t.ID)] = t
		typeLookup[strings.ToLower(t.Name)] = t
	}

	var rowErrors []string
	seen := map[string]int{}
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		batch.Processed++

		cell := func(col string) string {
			idx, ok := index[col]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		fail := func(err error) {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", line, err))
		}

		year, err := strconv.Atoi(cell("year"))
		if err != nil {
			fail(fmt.Errorf("%w: %q", core.ErrInvalidYear, cell("year")))
			continue
		}

		values := map[string]core.Amount{}
		bad := false
		for _, field := range section.Fields() {
			a, ok := core.ParseAmountStrict(cell(field))
			if !ok {
				fail(fmt.Errorf("invalid number in %s: %q", core.Label(field), cell(field)))
				bad = true
				break
			}
			values[field] = a
		}
		if bad {
			continue
		}

		var key string
		switch section {
		case core.SectionValueGenerated:
			r := core.ValueGeneratedRecord{Year: year}
			for f, a := range values {
				_ = r.Set(f, a)
			}
			r = core.DeriveValueGenerated(r)
			if err := r.Validate(); err != nil {
				fail(err)
				continue
			}
			key = strconv.Itoa(year)
			if prev, dup := seen[key]; dup {
				fail(fmt.Errorf("duplicate of row %d", prev))
				continue
			}
			batch.ValueGenerated = append(batch.ValueGenerated, r)

		case core.SectionCapitalProvider:
			r := core.CapitalProviderPaymentRecord{Year: year}
			for f, a := range values {
				_ = r.Set(f, a)
			}
			r = core.DeriveCapitalProvider(r)
			if err := r.Validate(); err != nil {
				fail(err)
				continue
			}
			key = strconv.Itoa(year)
			if prev, dup := seen[key]; dup {
				fail(fmt.Errorf("duplicate of row %d", prev))
				continue
			}
			batch.CapitalProvider = append(batch.CapitalProvider, r)

		case core.SectionExpenditures:
			t, ok := typeLookup[strings.ToLower(cell("type"))]
			if !ok {
				if cell("type") == "" {
					fail(core.ErrMissingType)
				} else {
					fail(fmt.Errorf("unknown expenditure type %q", cell("type")))
				}
				continue
			}
			r := core.ExpenditureRecord{Company: cell("company"), Year: year, TypeID: t.ID, TypeName: t.Name}
			for f, a := range values {
				_ = r.ExpenditureComponents.Set(f, a)
			}
			r = core.DeriveExpenditure(r)
			if err := r.Validate(); err != nil {
				fail(err)
				continue
			}
			if !r.HasValues() {
				fail(core.ErrEmptyRecord)
				continue
			}
			key = r.Key().String()
			if prev, dup := seen[key]; dup {
				fail(fmt.Errorf("duplicate of row %d", prev))
				continue
			}
			batch.Expenditures = append(batch.Expenditures, r)
		}
		seen[key] = line
	}
	return batch, rowErrors, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
