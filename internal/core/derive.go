package core

// The Derive functions are the only place totals are computed. Forms,
// storage, imports and exports all call them, so a stored total always
// matches its components at the time it was written.

// DeriveValueGenerated sets TotalRevenue to the sum of the six revenue lines.
func DeriveValueGenerated(r ValueGeneratedRecord) ValueGeneratedRecord {
	r.TotalRevenue = Sum(r.components()...)
	return r
}

// DeriveExpenditure sets TotalDistributed and TotalExpenditures.
func DeriveExpenditure(r ExpenditureRecord) ExpenditureRecord {
	r.TotalDistributed, r.TotalExpenditures = r.ExpenditureComponents.Totals()
	return r
}

// Totals returns (distributed, expenditures) for the components.
func (c ExpenditureComponents) Totals() (distributed, expenditures Amount) {
	distributed = Sum(c.Government, c.LocalSupplierSpending, c.ForeignSupplierSpending, c.Employee, c.Community)
	expenditures = Sum(distributed, c.Depreciation, c.Depletion, c.Others)
	return distributed, expenditures
}

// DeriveCapitalProvider sets Total = interest + dividends to NCI + dividends to parent.
func DeriveCapitalProvider(r CapitalProviderPaymentRecord) CapitalProviderPaymentRecord {
	r.Total = Sum(r.Interest, r.DividendsToNCI, r.DividendsToParent)
	return r
}
