package source

import (
	"context"
	"fmt"

	"ecodash/internal/core"
	"ecodash/internal/spreadsheet"
)

// ApplyFunc writes a fully valid batch atomically. It returns one message per
// record whose key already exists, in which case nothing must be written.
type ApplyFunc func(ctx context.Context, batch spreadsheet.Batch) (conflicts []string, err error)

// RunImport is the import pipeline shared by the stores: decode the upload,
// reject the whole file on any row error, otherwise hand the batch to apply.
func RunImport(ctx context.Context, refs ReferenceReader, section core.Section, filename string, data []byte, apply ApplyFunc) (core.ImportResult, error) {
	var types []core.ExpenditureType
	if section == core.SectionExpenditures {
		var err error
		if types, err = refs.ListExpenditureTypes(ctx); err != nil {
			return core.ImportResult{}, fmt.Errorf("load expenditure types: %w", err)
		}
	}

	batch, rowErrors, err := spreadsheet.Parse(section, filename, data, types)
	if err != nil {
		return core.ImportResult{}, err
	}
	if section == core.SectionExpenditures && len(rowErrors) == 0 {
		if rowErrors, err = checkCompanies(ctx, refs, batch); err != nil {
			return core.ImportResult{}, err
		}
	}
	if len(rowErrors) > 0 {
		return spreadsheet.NewResult(batch.Processed, rowErrors), nil
	}

	conflicts, err := apply(ctx, batch)
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("apply import: %w", err)
	}
	return spreadsheet.NewResult(batch.Processed, conflicts), nil
}

func checkCompanies(ctx context.Context, refs ReferenceReader, batch spreadsheet.Batch) ([]string, error) {
	companies, err := refs.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load companies: %w", err)
	}
	known := make(map[string]bool, len(companies))
	for _, c := range companies {
		known[c.ID] = true
	}
	var out []string
	for _, r := range batch.Expenditures {
		if !known[r.Company] {
			out = append(out, fmt.Sprintf("%s: %v: company %q", r.Key(), core.ErrUnknownRef, r.Company))
		}
	}
	return out, nil
}

// ConflictMessage formats an existing-key import error.
func ConflictMessage(key string) string {
	return fmt.Sprintf("%s: %v", key, core.ErrAlreadyExists)
}
