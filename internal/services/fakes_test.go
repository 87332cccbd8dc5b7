package services

import (
	"context"
	"errors"
	"sync"

	"ecodash/internal/core"
)

// fakeSource records every call and can fail or block selected ones.
type fakeSource struct {
	mu       sync.Mutex
	existing map[core.ExpenditureKey]bool
	probeErr map[string]error
	failType map[string]error
	probes   int
	creates  []core.ExpenditureRecord
	updates  []core.ExpenditureRecord
	vg       []core.ValueGeneratedRecord
	cp       []core.CapitalProviderPaymentRecord
	release  chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		existing: map[core.ExpenditureKey]bool{},
		probeErr: map[string]error{},
		failType: map[string]error{},
	}
}

func (f *fakeSource) ExpenditureExists(_ context.Context, key core.ExpenditureKey) (bool, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if err := f.probeErr[key.TypeID]; err != nil {
		return false, err
	}
	return f.existing[key], nil
}

func (f *fakeSource) CreateExpenditure(_ context.Context, r core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failType[r.TypeID]; err != nil {
		return core.ExpenditureRecord{}, err
	}
	f.creates = append(f.creates, r)
	return r, nil
}

func (f *fakeSource) UpdateExpenditure(_ context.Context, key core.ExpenditureKey, r core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failType[key.TypeID]; err != nil {
		return core.ExpenditureRecord{}, err
	}
	f.updates = append(f.updates, r)
	return r, nil
}

func (f *fakeSource) CreateValueGenerated(_ context.Context, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vg = append(f.vg, r)
	return r, nil
}

func (f *fakeSource) UpdateValueGenerated(_ context.Context, _ int, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	return f.CreateValueGenerated(context.Background(), r)
}

func (f *fakeSource) CreateCapitalProviderPayment(_ context.Context, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cp = append(f.cp, r)
	return r, nil
}

func (f *fakeSource) UpdateCapitalProviderPayment(_ context.Context, _ int, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	return f.CreateCapitalProviderPayment(context.Background(), r)
}

func (f *fakeSource) calls() (probes, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes, len(f.creates) + len(f.updates) + len(f.vg) + len(f.cp)
}

var errBoom = errors.New("boom")

var (
	typeCoS = core.ExpenditureType{ID: "cos", Name: "Cost of Sales"}
	typeGA  = core.ExpenditureType{ID: "ga", Name: "General & Administrative"}
)
