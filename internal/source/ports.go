// Package source defines the Record Source ports. The Record Source owns the
// canonical disclosure records; everything else reads and writes through
// these interfaces.
package source

import (
	"context"

	"ecodash/internal/core"
)

type (
	ValueGeneratedStore interface {
		ListValueGenerated(ctx context.Context) ([]core.ValueGeneratedRecord, error)
		GetValueGenerated(ctx context.Context, year int) (core.ValueGeneratedRecord, error)
		CreateValueGenerated(ctx context.Context, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error)
		UpdateValueGenerated(ctx context.Context, year int, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error)
	}

	ExpenditureStore interface {
		ListExpenditures(ctx context.Context) ([]core.ExpenditureRecord, error)
		// GetExpenditures returns every type row of a (company, year) bucket.
		GetExpenditures(ctx context.Context, company string, year int) ([]core.ExpenditureRecord, error)
		CreateExpenditure(ctx context.Context, r core.ExpenditureRecord) (core.ExpenditureRecord, error)
		UpdateExpenditure(ctx context.Context, key core.ExpenditureKey, r core.ExpenditureRecord) (core.ExpenditureRecord, error)
	}

	// ExistenceChecker answers the duplicate probe for a single row.
	ExistenceChecker interface {
		ExpenditureExists(ctx context.Context, key core.ExpenditureKey) (bool, error)
	}

	CapitalProviderStore interface {
		ListCapitalProviderPayments(ctx context.Context) ([]core.CapitalProviderPaymentRecord, error)
		GetCapitalProviderPayment(ctx context.Context, year int) (core.CapitalProviderPaymentRecord, error)
		CreateCapitalProviderPayment(ctx context.Context, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error)
		UpdateCapitalProviderPayment(ctx context.Context, year int, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error)
	}

	ReferenceReader interface {
		ListCompanies(ctx context.Context) ([]core.Company, error)
		ListExpenditureTypes(ctx context.Context) ([]core.ExpenditureType, error)
	}

	// TemplateProvider returns an xlsx workbook with the section's import columns.
	TemplateProvider interface {
		Template(ctx context.Context, section core.Section) ([]byte, error)
	}

	// Importer applies a spreadsheet upload. A file with any invalid row is
	// rejected as a whole and nothing is written.
	Importer interface {
		Import(ctx context.Context, section core.Section, filename string, data []byte) (core.ImportResult, error)
	}

	RecordSource interface {
		ValueGeneratedStore
		ExpenditureStore
		ExistenceChecker
		CapitalProviderStore
		ReferenceReader
		TemplateProvider
		Importer
	}
)
