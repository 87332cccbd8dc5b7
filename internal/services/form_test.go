package services

import (
	"encoding/json"
	"errors"
	"testing"

	"ecodash/internal/core"
)

func TestExpenditureFormLiveTotals(t *testing.T) {
	f := NewExpenditureForm(ModeCreate, "ACME", 2023)
	f.AddType(typeCoS)
	f.AddType(typeGA)

	steps := []struct {
		typeID, field, value string
		distributed, total   string
	}{
		{"cos", "government", "10", "10", "10"},
		{"cos", "depreciation", "5", "10", "15"},
		{"ga", "employee", "2.5", "12.5", "17.5"},
		{"ga", "employee", "abc", "10", "15"},
		{"cos", "government", "", "0", "5"},
	}
	for i, s := range steps {
		if err := f.Set(s.typeID, s.field, s.value); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if f.TotalDistributed.String() != s.distributed || f.TotalExpenditures.String() != s.total {
			t.Fatalf("step %d: expected %s/%s, got %s/%s", i, s.distributed, s.total, f.TotalDistributed, f.TotalExpenditures)
		}
	}
	if got := f.Types["cos"].TotalExpenditures.String(); got != "5" {
		t.Fatalf("expected cos line total 5, got %s", got)
	}
}

func TestExpenditureFormSetErrors(t *testing.T) {
	f := NewExpenditureForm(ModeCreate, "ACME", 2023)
	if err := f.Set("cos", "government", "1"); !errors.Is(err, core.ErrUnknownRef) {
		t.Fatalf("expected ErrUnknownRef for missing line, got %v", err)
	}
	f.AddType(typeCoS)
	if err := f.Set("cos", "salary", "1"); !errors.Is(err, core.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestExpenditureFormValidate(t *testing.T) {
	f := NewExpenditureForm(ModeCreate, "ACME", 2023)
	if err := f.Validate(); !errors.Is(err, core.ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
	f.AddType(typeCoS)
	f.AddType(typeGA)
	if err := f.Validate(); !errors.Is(err, core.ErrEmptyRecord) {
		t.Fatalf("expected ErrEmptyRecord, got %v", err)
	}
	_ = f.Set("ga", "others", "0.01")
	if err := f.Validate(); err != nil {
		t.Fatalf("one positive value across lines is enough, got %v", err)
	}
	_ = f.Set("ga", "others", "-3")
	if err := f.Validate(); !errors.Is(err, core.ErrEmptyRecord) {
		t.Fatalf("negative values do not count, got %v", err)
	}
}

func TestFormStateRoundTrip(t *testing.T) {
	f := NewExpenditureForm(ModeCreate, "ACME", 2023)
	f.AddType(typeCoS)
	_ = f.Set("cos", "community", "12")

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ExpenditureForm
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back.Recompute()
	if back.TotalDistributed.String() != "12" || back.Types["cos"].TypeName != "Cost of Sales" {
		t.Fatalf("state not preserved: %+v", back)
	}
}

func TestCapitalProviderFormTotal(t *testing.T) {
	f := NewCapitalProviderForm(ModeCreate, 2024)
	_ = f.Set("interest", "100")
	_ = f.Set("dividends_to_nci", "50")
	_ = f.Set("dividends_to_parent", "25")
	if f.Total.String() != "175" {
		t.Fatalf("expected 175, got %s", f.Total)
	}
	_ = f.Set("interest", "0")
	if f.Total.String() != "75" {
		t.Fatalf("expected 75, got %s", f.Total)
	}
	if err := f.Set("bogus", "1"); !errors.Is(err, core.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestFormsFromRecords(t *testing.T) {
	vg := core.ValueGeneratedFromInputs(2022, map[string]string{"electricity_sales": "3", "oil_revenues": "4"})
	vf := ValueGeneratedFormFromRecord(vg)
	if vf.Mode != ModeEdit || vf.TotalRevenue.String() != "7" || vf.Values["oil_revenues"] != "4" {
		t.Fatalf("unexpected value generated form %+v", vf)
	}
	cp := core.CapitalProviderFromInputs(2022, map[string]string{"interest": "1"})
	cf := CapitalProviderFormFromRecord(cp)
	if cf.Mode != ModeEdit || cf.Total.String() != "1" {
		t.Fatalf("unexpected capital provider form %+v", cf)
	}
	if ops := cf.Writes(nil); len(ops) != 1 || ops[0].Label != "update capital provider payment 2022" {
		t.Fatalf("unexpected ops %v", ops)
	}
}
