package adapters

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ecodash/internal/amqp"
	"ecodash/internal/core"
	"ecodash/internal/source/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.RecordWrittenMessage
	err  error
}

func (r *recordingPublisher) PublishRecordWritten(_ context.Context, msg *amqp.RecordWrittenMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func newSource(pub Publisher) *PublishingSource {
	store := memory.New([]core.Company{{ID: "ACME"}}, core.DefaultExpenditureTypes)
	return NewPublishingSource(store, pub)
}

func TestPublishingSourcePublishesSuccessfulWrites(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	src := newSource(pub)

	r := core.ExpenditureFromInputs("ACME", 2023, "cos", map[string]string{"government": "1"})
	if _, err := src.CreateExpenditure(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := src.CreateExpenditure(ctx, r); !errors.Is(err, core.ErrAlreadyExists) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := src.UpdateExpenditure(ctx, r.Key(), r); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(pub.msgs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.msgs))
	}
	first := pub.msgs[0]
	if first.Section != core.SectionExpenditures || first.Action != amqp.ActionCreate || first.TypeID != "cos" || first.Year != 2023 {
		t.Fatalf("unexpected create event %+v", first)
	}
	if pub.msgs[1].Action != amqp.ActionUpdate {
		t.Fatalf("expected update event, got %+v", pub.msgs[1])
	}
}

func TestPublishingSourceIgnoresPublishErrors(t *testing.T) {
	ctx := context.Background()
	src := newSource(&recordingPublisher{err: amqp.ErrCircuitOpen})

	cp := core.CapitalProviderFromInputs(2024, map[string]string{"interest": "1"})
	if _, err := src.CreateCapitalProviderPayment(ctx, cp); err != nil {
		t.Fatalf("write must succeed when publishing fails, got %v", err)
	}
	if _, err := src.GetCapitalProviderPayment(ctx, 2024); err != nil {
		t.Fatalf("record should be stored: %v", err)
	}
}

func TestPublishingSourceImport(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	src := newSource(pub)

	res, err := src.Import(ctx, core.SectionValueGenerated, "vg.csv", []byte("year,oil_revenues\n2021,1\n2022,2\n"))
	if err != nil || res.SuccessfulImports != 2 {
		t.Fatalf("import: %+v %v", res, err)
	}
	res, err = src.Import(ctx, core.SectionValueGenerated, "vg.csv", []byte("year,oil_revenues\n2021,1\n"))
	if err != nil || res.SuccessfulImports != 0 {
		t.Fatalf("expected rejected import, got %+v %v", res, err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Action != amqp.ActionImport || pub.msgs[0].Count != 2 {
		t.Fatalf("expected one import event, got %v", pub.msgs)
	}
}

func TestPublishingSourceNilPublisher(t *testing.T) {
	src := newSource(nil)
	vg := core.ValueGeneratedFromInputs(2020, map[string]string{"oil_revenues": "1"})
	if _, err := src.CreateValueGenerated(context.Background(), vg); err != nil {
		t.Fatalf("create: %v", err)
	}
}
