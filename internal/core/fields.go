package core

import "fmt"

// Field names as used in JSON, form state and spreadsheet headers.
var (
	ValueGeneratedFields = []string{
		"electricity_sales",
		"oil_revenues",
		"other_revenues",
		"interest_income",
		"share_in_net_income_of_associate",
		"miscellaneous_income",
	}

	ExpenditureFields = []string{
		"government",
		"local_supplier_spending",
		"foreign_supplier_spending",
		"employee",
		"community",
		"depreciation",
		"depletion",
		"others",
	}

	CapitalProviderFields = []string{
		"interest",
		"dividends_to_nci",
		"dividends_to_parent",
	}
)

// FieldLabels are human readable column titles.
var FieldLabels = map[string]string{
	"electricity_sales":                "Electricity Sales",
	"oil_revenues":                     "Oil Revenues",
	"other_revenues":                   "Other Revenues",
	"interest_income":                  "Interest Income",
	"share_in_net_income_of_associate": "Share in Net Income of Associate",
	"miscellaneous_income":             "Miscellaneous Income",
	"total_revenue":                    "Total Revenue",
	"government":                       "Government",
	"local_supplier_spending":          "Local Supplier Spending",
	"foreign_supplier_spending":        "Foreign Supplier Spending",
	"employee":                         "Employee",
	"community":                        "Community",
	"depreciation":                     "Depreciation",
	"depletion":                        "Depletion",
	"others":                           "Others",
	"total_distributed":                "Total Distributed",
	"total_expenditures":               "Total Expenditures",
	"interest":                         "Interest",
	"dividends_to_nci":                 "Dividends to NCI",
	"dividends_to_parent":              "Dividends to Parent",
	"total":                            "Total",
}

// Label returns the column title for a field, or the field name itself.
func Label(field string) string {
	if l, ok := FieldLabels[field]; ok {
		return l
	}
	return field
}

func (r *ValueGeneratedRecord) field(name string) *Amount {
	switch name {
	case "electricity_sales":
		return &r.ElectricitySales
	case "oil_revenues":
		return &r.OilRevenues
	case "other_revenues":
		return &r.OtherRevenues
	case "interest_income":
		return &r.InterestIncome
	case "share_in_net_income_of_associate":
		return &r.ShareInNetIncomeOfAssociate
	case "miscellaneous_income":
		return &r.MiscellaneousIncome
	}
	return nil
}

// Set assigns a component by field name.
func (r *ValueGeneratedRecord) Set(name string, a Amount) error {
	p := r.field(name)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	*p = a
	return nil
}

// Get returns a component by field name.
func (r ValueGeneratedRecord) Get(name string) (Amount, bool) {
	p := r.field(name)
	if p == nil {
		return Zero, false
	}
	return *p, true
}

func (c *ExpenditureComponents) field(name string) *Amount {
	switch name {
	case "government":
		return &c.Government
	case "local_supplier_spending":
		return &c.LocalSupplierSpending
	case "foreign_supplier_spending":
		return &c.ForeignSupplierSpending
	case "employee":
		return &c.Employee
	case "community":
		return &c.Community
	case "depreciation":
		return &c.Depreciation
	case "depletion":
		return &c.Depletion
	case "others":
		return &c.Others
	}
	return nil
}

func (c *ExpenditureComponents) Set(name string, a Amount) error {
	p := c.field(name)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	*p = a
	return nil
}

func (c ExpenditureComponents) Get(name string) (Amount, bool) {
	p := c.field(name)
	if p == nil {
		return Zero, false
	}
	return *p, true
}

func (r *CapitalProviderPaymentRecord) field(name string) *Amount {
	switch name {
	case "interest":
		return &r.Interest
	case "dividends_to_nci":
		return &r.DividendsToNCI
	case "dividends_to_parent":
		return &r.DividendsToParent
	}
	return nil
}

func (r *CapitalProviderPaymentRecord) Set(name string, a Amount) error {
	p := r.field(name)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	*p = a
	return nil
}

func (r CapitalProviderPaymentRecord) Get(name string) (Amount, bool) {
	p := r.field(name)
	if p == nil {
		return Zero, false
	}
	return *p, true
}

// ValueGeneratedFromInputs builds a derived record from raw input strings.
// Missing or non-numeric inputs become 0; unknown keys are ignored.
func ValueGeneratedFromInputs(year int, in map[string]string) ValueGeneratedRecord {
	r := ValueGeneratedRecord{Year: year}
	for _, f := range ValueGeneratedFields {
		_ = r.Set(f, ParseAmount(in[f]))
	}
	return DeriveValueGenerated(r)
}

// ExpenditureFromInputs builds a derived expenditure row from raw input strings.
func ExpenditureFromInputs(company string, year int, typeID string, in map[string]string) ExpenditureRecord {
	r := ExpenditureRecord{Company: company, Year: year, TypeID: typeID}
	for _, f := range ExpenditureFields {
		_ = r.ExpenditureComponents.Set(f, ParseAmount(in[f]))
	}
	return DeriveExpenditure(r)
}

// CapitalProviderFromInputs builds a derived capital provider record from raw input strings.
func CapitalProviderFromInputs(year int, in map[string]string) CapitalProviderPaymentRecord {
	r := CapitalProviderPaymentRecord{Year: year}
	for _, f := range CapitalProviderFields {
		_ = r.Set(f, ParseAmount(in[f]))
	}
	return DeriveCapitalProvider(r)
}
