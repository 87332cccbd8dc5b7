package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ecodash/internal/core"
)

// Mode tells a form whether it creates new records or edits existing ones.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

func (m Mode) IsValid() bool {
	return m == ModeCreate || m == ModeEdit
}

// RecordWriter is the write half of the Record Source.
type RecordWriter interface {
	CreateValueGenerated(ctx context.Context, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error)
	UpdateValueGenerated(ctx context.Context, year int, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error)
	CreateExpenditure(ctx context.Context, r core.ExpenditureRecord) (core.ExpenditureRecord, error)
	UpdateExpenditure(ctx context.Context, key core.ExpenditureKey, r core.ExpenditureRecord) (core.ExpenditureRecord, error)
	CreateCapitalProviderPayment(ctx context.Context, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error)
	UpdateCapitalProviderPayment(ctx context.Context, year int, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error)
}

// WriteOp is a single create or update call.
type WriteOp struct {
	Label string
	Run   func(ctx context.Context, w RecordWriter) error
}

// Submission is form state the workflow can validate and write.
type Submission interface {
	Section() core.Section
	FormMode() Mode
	Validate() error
	// ConflictScope returns the type-groups to probe before a create.
	// ok is false when the submission needs no duplicate check.
	ConflictScope() (company string, year int, types []core.ExpenditureType, ok bool)
	// Writes returns one op per record. Types listed in overwrite already
	// exist and the user confirmed replacing them.
	Writes(overwrite map[string]bool) []WriteOp
}

// ExpenditureLineInput is the raw input for one expenditure type.
type ExpenditureLineInput struct {
	TypeName string            `json:"type_name"`
	Values   map[string]string `json:"values"`
	// Existing marks lines loaded from the Record Source in edit mode.
	Existing          bool        `json:"existing,omitempty"`
	TotalDistributed  core.Amount `json:"total_distributed"`
	TotalExpenditures core.Amount `json:"total_expenditures"`
}

// ExpenditureForm holds a (company, year) submission with one line per type,
// keyed by type ID.
type ExpenditureForm struct {
	Mode              Mode                            `json:"mode"`
	Company           string                          `json:"company"`
	Year              int                             `json:"year"`
	Types             map[string]ExpenditureLineInput `json:"types"`
	TotalDistributed  core.Amount                     `json:"total_distributed"`
	TotalExpenditures core.Amount                     `json:"total_expenditures"`
}

func NewExpenditureForm(mode Mode, company string, year int) *ExpenditureForm {
	return &ExpenditureForm{Mode: mode, Company: company, Year: year, Types: map[string]ExpenditureLineInput{}}
}

// ExpenditureFormFromRecords prefills an edit form from stored rows.
func ExpenditureFormFromRecords(company string, year int, rows []core.ExpenditureRecord) *ExpenditureForm {
	f := NewExpenditureForm(ModeEdit, company, year)
	for _, r := range rows {
		values := make(map[string]string, len(core.ExpenditureFields))
		for _, field := range core.ExpenditureFields {
			a, _ := r.Get(field)
			values[field] = a.String()
		}
		f.Types[r.TypeID] = ExpenditureLineInput{TypeName: r.TypeName, Values: values, Existing: true}
	}
	f.Recompute()
	return f
}

// AddType adds an empty line for a type if it is not present yet.
func (f *ExpenditureForm) AddType(t core.ExpenditureType) {
	if f.Types == nil {
		f.Types = map[string]ExpenditureLineInput{}
	}
	if _, ok := f.Types[t.ID]; ok {
		return
	}
	f.Types[t.ID] = ExpenditureLineInput{TypeName: t.Name, Values: map[string]string{}}
}

// RemoveType drops a line.
func (f *ExpenditureForm) RemoveType(typeID string) {
	delete(f.Types, typeID)
	f.Recompute()
}

// Set stores raw input for one field and recomputes every total.
func (f *ExpenditureForm) Set(typeID, field, value string) error {
	line, ok := f.Types[typeID]
	if !ok {
		return fmt.Errorf("%w: expenditure type %q not in form", core.ErrUnknownRef, typeID)
	}
	if _, known := (core.ExpenditureComponents{}).Get(field); !known {
		return fmt.Errorf("%w: %s", core.ErrUnknownField, field)
	}
	if line.Values == nil {
		line.Values = map[string]string{}
	}
	line.Values[field] = value
	f.Types[typeID] = line
	f.Recompute()
	return nil
}

// Recompute derives line and form totals from the raw inputs.
func (f *ExpenditureForm) Recompute() {
	f.TotalDistributed, f.TotalExpenditures = core.Zero, core.Zero
	for id, line := range f.Types {
		r := core.ExpenditureFromInputs(f.Company, f.Year, id, line.Values)
		line.TotalDistributed, line.TotalExpenditures = r.TotalDistributed, r.TotalExpenditures
		f.Types[id] = line
		f.TotalDistributed = f.TotalDistributed.Add(r.TotalDistributed)
		f.TotalExpenditures = f.TotalExpenditures.Add(r.TotalExpenditures)
	}
}

// TypeIDs returns the line keys in a stable order.
func (f *ExpenditureForm) TypeIDs() []string {
	ids := make([]string, 0, len(f.Types))
	for id := range f.Types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records builds one derived record per line.
func (f *ExpenditureForm) Records() []core.ExpenditureRecord {
	out := make([]core.ExpenditureRecord, 0, len(f.Types))
	for _, id := range f.TypeIDs() {
		line := f.Types[id]
		r := core.ExpenditureFromInputs(f.Company, f.Year, id, line.Values)
		r.TypeName = line.TypeName
		out = append(out, r)
	}
	return out
}

func (f *ExpenditureForm) Section() core.Section { return core.SectionExpenditures }
func (f *ExpenditureForm) FormMode() Mode        { return f.Mode }

// Validate requires a key and at least one strictly positive value across
// all lines. Errors wrapping core.ErrEmptyRecord mean the form is blank.
func (f *ExpenditureForm) Validate() error {
	if strings.TrimSpace(f.Company) == "" {
		return core.ErrMissingCompany
	}
	if err := core.ValidateYear(f.Year); err != nil {
		return err
	}
	if len(f.Types) == 0 {
		return core.ErrMissingType
	}
	empty := true
	for _, r := range f.Records() {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.HasValues() {
			empty = false
		}
	}
	if empty {
		return core.ErrEmptyRecord
	}
	return nil
}

func (f *ExpenditureForm) ConflictScope() (string, int, []core.ExpenditureType, bool) {
	if f.Mode == ModeEdit {
		return "", 0, nil, false
	}
	types := make([]core.ExpenditureType, 0, len(f.Types))
	for _, id := range f.TypeIDs() {
		types = append(types, core.ExpenditureType{ID: id, Name: f.Types[id].TypeName})
	}
	return f.Company, f.Year, types, true
}

func (f *ExpenditureForm) Writes(overwrite map[string]bool) []WriteOp {
	records := f.Records()
	ops := make([]WriteOp, 0, len(records))
	for _, r := range records {
		update := overwrite[r.TypeID] || (f.Mode == ModeEdit && f.Types[r.TypeID].Existing)
		if update {
			ops = append(ops, WriteOp{
				Label: "update " + r.Key().String(),
				Run: func(ctx context.Context, w RecordWriter) error {
					_, err := w.UpdateExpenditure(ctx, r.Key(), r)
					return err
				},
			})
			continue
		}
		ops = append(ops, WriteOp{
			Label: "create " + r.Key().String(),
			Run: func(ctx context.Context, w RecordWriter) error {
				_, err := w.CreateExpenditure(ctx, r)
				return err
			},
		})
	}
	return ops
}

// ValueGeneratedForm is the single-record form for one year's revenue.
type ValueGeneratedForm struct {
	Mode         Mode              `json:"mode"`
	Year         int               `json:"year"`
	Values       map[string]string `json:"values"`
	TotalRevenue core.Amount       `json:"total_revenue"`
}

func NewValueGeneratedForm(mode Mode, year int) *ValueGeneratedForm {
	return &ValueGeneratedForm{Mode: mode, Year: year, Values: map[string]string{}}
}

func ValueGeneratedFormFromRecord(r core.ValueGeneratedRecord) *ValueGeneratedForm {
	f := NewValueGeneratedForm(ModeEdit, r.Year)
	for _, field := range core.ValueGeneratedFields {
		a, _ := r.Get(field)
		f.Values[field] = a.String()
	}
	f.Recompute()
	return f
}

func (f *ValueGeneratedForm) Set(field, value string) error {
	if _, known := (core.ValueGeneratedRecord{}).Get(field); !known {
		return fmt.Errorf("%w: %s", core.ErrUnknownField, field)
	}
	if f.Values == nil {
		f.Values = map[string]string{}
	}
	f.Values[field] = value
	f.Recompute()
	return nil
}

func (f *ValueGeneratedForm) Recompute() {
	f.TotalRevenue = f.Record().TotalRevenue
}

func (f *ValueGeneratedForm) Record() core.ValueGeneratedRecord {
	return core.ValueGeneratedFromInputs(f.Year, f.Values)
}

func (f *ValueGeneratedForm) Section() core.Section { return core.SectionValueGenerated }
func (f *ValueGeneratedForm) FormMode() Mode        { return f.Mode }
func (f *ValueGeneratedForm) Validate() error       { return f.Record().Validate() }

func (f *ValueGeneratedForm) ConflictScope() (string, int, []core.ExpenditureType, bool) {
	return "", 0, nil, false
}

func (f *ValueGeneratedForm) Writes(map[string]bool) []WriteOp {
	r := f.Record()
	if f.Mode == ModeEdit {
		return []WriteOp{{
			Label: fmt.Sprintf("update value generated %d", r.Year),
			Run: func(ctx context.Context, w RecordWriter) error {
				_, err := w.UpdateValueGenerated(ctx, r.Year, r)
				return err
			},
		}}
	}
	return []WriteOp{{
		Label: fmt.Sprintf("create value generated %d", r.Year),
		Run: func(ctx context.Context, w RecordWriter) error {
			_, err := w.CreateValueGenerated(ctx, r)
			return err
		},
	}}
}

// CapitalProviderForm is the single-record form for one year's payments.
type CapitalProviderForm struct {
	Mode   Mode              `json:"mode"`
	Year   int               `json:"year"`
	Values map[string]string `json:"values"`
	Total  core.Amount       `json:"total"`
}

func NewCapitalProviderForm(mode Mode, year int) *CapitalProviderForm {
	return &CapitalProviderForm{Mode: mode, Year: year, Values: map[string]string{}}
}

func CapitalProviderFormFromRecord(r core.CapitalProviderPaymentRecord) *CapitalProviderForm {
	f := NewCapitalProviderForm(ModeEdit, r.Year)
	for _, field := range core.CapitalProviderFields {
		a, _ := r.Get(field)
		f.Values[field] = a.String()
	}
	f.Recompute()
	return f
}

func (f *CapitalProviderForm) Set(field, value string) error {
	if _, known := (core.CapitalProviderPaymentRecord{}).Get(field); !known {
		return fmt.Errorf("%w: %s", core.ErrUnknownField, field)
	}
	if f.Values == nil {
		f.Values = map[string]string{}
	}
	f.Values[field] = value
	f.Recompute()
	return nil
}

func (f *CapitalProviderForm) Recompute() {
	f.Total = f.Record().Total
}

func (f *CapitalProviderForm) Record() core.CapitalProviderPaymentRecord {
	return core.CapitalProviderFromInputs(f.Year, f.Values)
}

func (f *CapitalProviderForm) Section() core.Section { return core.SectionCapitalProvider }
func (f *CapitalProviderForm) FormMode() Mode        { return f.Mode }
func (f *CapitalProviderForm) Validate() error       { return f.Record().Validate() }

func (f *CapitalProviderForm) ConflictScope() (string, int, []core.ExpenditureType, bool) {
	return "", 0, nil, false
}

func (f *CapitalProviderForm) Writes(map[string]bool) []WriteOp {
	r := f.Record()
	if f.Mode == ModeEdit {
		return []WriteOp{{
			Label: fmt.Sprintf("update capital provider payment %d", r.Year),
			Run: func(ctx context.Context, w RecordWriter) error {
				_, err := w.UpdateCapitalProviderPayment(ctx, r.Year, r)
				return err
			},
		}}
	}
	return []WriteOp{{
		Label: fmt.Sprintf("create capital provider payment %d", r.Year),
		Run: func(ctx context.Context, w RecordWriter) error {
			_, err := w.CreateCapitalProviderPayment(ctx, r)
			return err
		},
	}}
}
