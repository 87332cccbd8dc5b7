package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"ecodash/internal/core"
	"ecodash/internal/source"
	"ecodash/internal/spreadsheet"
)

// Store is an in-process Record Source.
type Store struct {
	mu           sync.RWMutex
	companies    []core.Company
	types        []core.ExpenditureType
	generated    map[int]core.ValueGeneratedRecord
	expenditures map[core.ExpenditureKey]core.ExpenditureRecord
	capital      map[int]core.CapitalProviderPaymentRecord
}

var _ source.RecordSource = (*Store)(nil)

func New(companies []core.Company, types []core.ExpenditureType) *Store {
	return &Store{
		companies:    dedupeCompanies(companies),
		types:        dedupeTypes(types),
		generated:    map[int]core.ValueGeneratedRecord{},
		expenditures: map[core.ExpenditureKey]core.ExpenditureRecord{},
		capital:      map[int]core.CapitalProviderPaymentRecord{},
	}
}

// NewFromFiles seeds reference data from seed_companies.txt and
// seed_expenditure_types.txt in base. Each line is "id" or "id,name".
func NewFromFiles(base string) *Store {
	var companies []core.Company
	for _, l := range readLines(filepath.Join(base, "seed_companies.txt")) {
		id, name := splitPair(l)
		companies = append(companies, core.Company{ID: id, Name: name})
	}
	var types []core.ExpenditureType
	for _, l := range readLines(filepath.Join(base, "seed_expenditure_types.txt")) {
		id, name := splitPair(l)
		types = append(types, core.ExpenditureType{ID: id, Name: name})
	}
	if len(companies) == 0 {
		companies = []core.Company{{ID: "PARENT", Name: "Parent Company"}}
	}
	if len(types) == 0 {
		types = core.DefaultExpenditureTypes
	}
	return New(companies, types)
}

func (s *Store) ListCompanies(_ context.Context) ([]core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Company(nil), s.companies...), nil
}

func (s *Store) ListExpenditureTypes(_ context.Context) ([]core.ExpenditureType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.ExpenditureType(nil), s.types...), nil
}

func (s *Store) ListValueGenerated(_ context.Context) ([]core.ValueGeneratedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ValueGeneratedRecord, 0, len(s.generated))
	for _, r := range s.generated {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

func (s *Store) GetValueGenerated(_ context.Context, year int) (core.ValueGeneratedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.generated[year]
	if !ok {
		return core.ValueGeneratedRecord{}, fmt.Errorf("value generated %d: %w", year, core.ErrNotFound)
	}
	return r, nil
}

func (s *Store) CreateValueGenerated(_ context.Context, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	if err := core.ValidateYear(r.Year); err != nil {
		return core.ValueGeneratedRecord{}, err
	}
	r = core.DeriveValueGenerated(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generated[r.Year]; ok {
		return core.ValueGeneratedRecord{}, fmt.Errorf("value generated %d: %w", r.Year, core.ErrAlreadyExists)
	}
	s.generated[r.Year] = r
	return r, nil
}

func (s *Store) UpdateValueGenerated(_ context.Context, year int, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	r.Year = year
	r = core.DeriveValueGenerated(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generated[year]; !ok {
		return core.ValueGeneratedRecord{}, fmt.Errorf("value generated %d: %w", year, core.ErrNotFound)
	}
	s.generated[year] = r
	return r, nil
}

func (s *Store) ListExpenditures(_ context.Context) ([]core.ExpenditureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ExpenditureRecord, 0, len(s.expenditures))
	for _, r := range s.expenditures {
		out = append(out, s.withTypeName(r))
	}
	sortExpenditures(out)
	return out, nil
}

func (s *Store) GetExpenditures(_ context.Context, company string, year int) ([]core.ExpenditureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ExpenditureRecord
	for k, r := range s.expenditures {
		if k.Company == company && k.Year == year {
			out = append(out, s.withTypeName(r))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("expenditures %s/%d: %w", company, year, core.ErrNotFound)
	}
	sortExpenditures(out)
	return out, nil
}

func (s *Store) ExpenditureExists(_ context.Context, key core.ExpenditureKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.expenditures[key]
	return ok, nil
}

func (s *Store) CreateExpenditure(_ context.Context, r core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	if err := r.Validate(); err != nil {
		return core.ExpenditureRecord{}, err
	}
	r = core.DeriveExpenditure(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRefs(r); err != nil {
		return core.ExpenditureRecord{}, err
	}
	if _, ok := s.expenditures[r.Key()]; ok {
		return core.ExpenditureRecord{}, fmt.Errorf("expenditure %s: %w", r.Key(), core.ErrAlreadyExists)
	}
	r = s.withTypeName(r)
	s.expenditures[r.Key()] = r
	return r, nil
}

func (s *Store) UpdateExpenditure(_ context.Context, key core.ExpenditureKey, r core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	r.Company, r.Year, r.TypeID = key.Company, key.Year, key.TypeID
	r = core.DeriveExpenditure(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenditures[key]; !ok {
		return core.ExpenditureRecord{}, fmt.Errorf("expenditure %s: %w", key, core.ErrNotFound)
	}
	r = s.withTypeName(r)
	s.expenditures[key] = r
	return r, nil
}

func (s *Store) ListCapitalProviderPayments(_ context.Context) ([]core.CapitalProviderPaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CapitalProviderPaymentRecord, 0, len(s.capital))
	for _, r := range s.capital {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

func (s *Store) GetCapitalProviderPayment(_ context.Context, year int) (core.CapitalProviderPaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.capital[year]
	if !ok {
		return core.CapitalProviderPaymentRecord{}, fmt.Errorf("capital provider payment %d: %w", year, core.ErrNotFound)
	}
	return r, nil
}

func (s *Store) CreateCapitalProviderPayment(_ context.Context, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	if err := core.ValidateYear(r.Year); err != nil {
		return core.CapitalProviderPaymentRecord{}, err
	}
	r = core.DeriveCapitalProvider(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.capital[r.Year]; ok {
		return core.CapitalProviderPaymentRecord{}, fmt.Errorf("capital provider payment %d: %w", r.Year, core.ErrAlreadyExists)
	}
	s.capital[r.Year] = r
	return r, nil
}

func (s *Store) UpdateCapitalProviderPayment(_ context.Context, year int, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	r.Year = year
	r = core.DeriveCapitalProvider(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.capital[year]; !ok {
		return core.CapitalProviderPaymentRecord{}, fmt.Errorf("capital provider payment %d: %w", year, core.ErrNotFound)
	}
	s.capital[year] = r
	return r, nil
}

func (s *Store) Template(ctx context.Context, section core.Section) ([]byte, error) {
	companies, _ := s.ListCompanies(ctx)
	types, _ := s.ListExpenditureTypes(ctx)
	return spreadsheet.Template(section, companies, types)
}

func (s *Store) Import(ctx context.Context, section core.Section, filename string, data []byte) (core.ImportResult, error) {
	return source.RunImport(ctx, s, section, filename, data, s.applyBatch)
}

// applyBatch checks every key first and writes only when none exists.
func (s *Store) applyBatch(_ context.Context, b spreadsheet.Batch) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conflicts []string
	for _, r := range b.ValueGenerated {
		if _, ok := s.generated[r.Year]; ok {
			conflicts = append(conflicts, source.ConflictMessage(fmt.Sprint(r.Year)))
		}
	}
	for _, r := range b.Expenditures {
		if _, ok := s.expenditures[r.Key()]; ok {
			conflicts = append(conflicts, source.ConflictMessage(r.Key().String()))
		}
	}
	for _, r := range b.CapitalProvider {
		if _, ok := s.capital[r.Year]; ok {
			conflicts = append(conflicts, source.ConflictMessage(fmt.Sprint(r.Year)))
		}
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}

	for _, r := range b.ValueGenerated {
		s.generated[r.Year] = r
	}
	for _, r := range b.Expenditures {
		s.expenditures[r.Key()] = s.withTypeName(r)
	}
	for _, r := range b.CapitalProvider {
		s.capital[r.Year] = r
	}
	return nil, nil
}

// checkRefs must be called with the lock held.
func (s *Store) checkRefs(r core.ExpenditureRecord) error {
	companyOK, typeOK := false, false
	for _, c := range s.companies {
		if c.ID == r.Company {
			companyOK = true
			break
		}
	}
	for _, t := range s.types {
		if t.ID == r.TypeID {
			typeOK = true
			break
		}
	}
	if !companyOK {
		return fmt.Errorf("%w: company %q", core.ErrUnknownRef, r.Company)
	}
	if !typeOK {
		return fmt.Errorf("%w: expenditure type %q", core.ErrUnknownRef, r.TypeID)
	}
	return nil
}

func (s *Store) withTypeName(r core.ExpenditureRecord) core.ExpenditureRecord {
	for _, t := range s.types {
		if t.ID == r.TypeID {
			r.TypeName = t.Name
			break
		}
	}
	return r
}

func sortExpenditures(rows []core.ExpenditureRecord) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Company != b.Company {
			return a.Company < b.Company
		}
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.TypeID < b.TypeID
	})
}

func splitPair(line string) (string, string) {
	id, name, ok := strings.Cut(line, ",")
	id = strings.TrimSpace(id)
	if !ok || strings.TrimSpace(name) == "" {
		return id, id
	}
	return id, strings.TrimSpace(name)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func dedupeCompanies(in []core.Company) []core.Company {
	seen := map[string]struct{}{}
	out := make([]core.Company, 0, len(in))
	for _, c := range in {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		if c.Name == "" {
			c.Name = c.ID
		}
		out = append(out, c)
	}
	return out
}

func dedupeTypes(in []core.ExpenditureType) []core.ExpenditureType {
	seen := map[string]struct{}{}
	out := make([]core.ExpenditureType, 0, len(in))
	for _, t := range in {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		if t.Name == "" {
			t.Name = t.ID
		}
		out = append(out, t)
	}
	return out
}
