package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MinYear = 1900
	MaxYear = 9999
)

type (
	// ValueGeneratedRecord is the per-year revenue disclosure.
	ValueGeneratedRecord struct {
		Year                        int    `json:"year"`
		ElectricitySales            Amount `json:"electricity_sales"`
		OilRevenues                 Amount `json:"oil_revenues"`
		OtherRevenues               Amount `json:"other_revenues"`
		InterestIncome              Amount `json:"interest_income"`
		ShareInNetIncomeOfAssociate Amount `json:"share_in_net_income_of_associate"`
		MiscellaneousIncome         Amount `json:"miscellaneous_income"`
		TotalRevenue                Amount `json:"total_revenue"`
	}

	// ExpenditureType is reference data classifying expenditure rows.
	ExpenditureType struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Company is reference data for the companies a disclosure can belong to.
	Company struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// ExpenditureComponents are the non-key numeric fields of an expenditure
	// row. The first five are distributed to stakeholders; depreciation,
	// depletion and others are internal or non-cash.
	ExpenditureComponents struct {
		Government              Amount `json:"government"`
		LocalSupplierSpending   Amount `json:"local_supplier_spending"`
		ForeignSupplierSpending Amount `json:"foreign_supplier_spending"`
		Employee                Amount `json:"employee"`
		Community               Amount `json:"community"`
		Depreciation            Amount `json:"depreciation"`
		Depletion               Amount `json:"depletion"`
		Others                  Amount `json:"others"`
	}

	// ExpenditureRecord is one (company, year, type) row.
	ExpenditureRecord struct {
		Company  string `json:"company"`
		Year     int    `json:"year"`
		TypeID   string `json:"type_id"`
		TypeName string `json:"type_name,omitempty"`
		ExpenditureComponents
		TotalDistributed  Amount `json:"total_distributed"`
		TotalExpenditures Amount `json:"total_expenditures"`
	}

	// CapitalProviderPaymentRecord is the per-year payment to capital providers.
	CapitalProviderPaymentRecord struct {
		Year              int    `json:"year"`
		Interest          Amount `json:"interest"`
		DividendsToNCI    Amount `json:"dividends_to_nci"`
		DividendsToParent Amount `json:"dividends_to_parent"`
		Total             Amount `json:"total"`
	}

	// ExpenditureKey identifies a single expenditure row.
	ExpenditureKey struct {
		Company string
		Year    int
		TypeID  string
	}
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadyExists  = errors.New("record already exists")
	ErrEmptyRecord    = errors.New("at least one value must be greater than zero")
	ErrInvalidYear    = errors.New("invalid year")
	ErrMissingCompany = errors.New("company is required")
	ErrMissingType    = errors.New("expenditure type is required")
	ErrUnknownField   = errors.New("unknown field")
	ErrUnknownRef     = errors.New("unknown reference")
	ErrUnknownSection = errors.New("unknown section")
)

// ValidateYear checks the year is within the accepted range.
func ValidateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	return nil
}

// DefaultExpenditureTypes seed a fresh Record Source.
var DefaultExpenditureTypes = []ExpenditureType{
	{ID: "cos", Name: "Cost of Sales"},
	{ID: "ga", Name: "General & Administrative"},
	{ID: "opex", Name: "Operating Expenses"},
	{ID: "tax", Name: "Income Tax"},
}

func (r ValueGeneratedRecord) Validate() error {
	if err := ValidateYear(r.Year); err != nil {
		return err
	}
	if !anyPositive(r.components()...) {
		return ErrEmptyRecord
	}
	return nil
}

// Validate checks the key only. Whether the record carries any value is
// judged across all type lines of a submission, see HasValues.
func (r ExpenditureRecord) Validate() error {
	if strings.TrimSpace(r.Company) == "" {
		return ErrMissingCompany
	}
	if err := ValidateYear(r.Year); err != nil {
		return err
	}
	if strings.TrimSpace(r.TypeID) == "" {
		return ErrMissingType
	}
	return nil
}

func (r CapitalProviderPaymentRecord) Validate() error {
	if err := ValidateYear(r.Year); err != nil {
		return err
	}
	if !anyPositive(r.Interest, r.DividendsToNCI, r.DividendsToParent) {
		return ErrEmptyRecord
	}
	return nil
}

// HasValues reports whether at least one component is strictly positive.
func (c ExpenditureComponents) HasValues() bool {
	return anyPositive(c.all()...)
}

// Key returns the composite identity of the row.
func (r ExpenditureRecord) Key() ExpenditureKey {
	return ExpenditureKey{Company: r.Company, Year: r.Year, TypeID: r.TypeID}
}

func (k ExpenditureKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.Company, k.Year, k.TypeID)
}

func (r ValueGeneratedRecord) components() []Amount {
	return []Amount{
		r.ElectricitySales,
		r.OilRevenues,
		r.OtherRevenues,
		r.InterestIncome,
		r.ShareInNetIncomeOfAssociate,
		r.MiscellaneousIncome,
	}
}

func (c ExpenditureComponents) all() []Amount {
	return []Amount{
		c.Government,
		c.LocalSupplierSpending,
		c.ForeignSupplierSpending,
		c.Employee,
		c.Community,
		c.Depreciation,
		c.Depletion,
		c.Others,
	}
}

func anyPositive(amounts ...Amount) bool {
	for _, a := range amounts {
		if a.IsPositive() {
			return true
		}
	}
	return false
}
