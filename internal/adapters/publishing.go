package adapters

import (
	"context"
	"log/slog"

	"ecodash/internal/amqp"
	"ecodash/internal/core"
	"ecodash/internal/source"
)

// Publisher is the AMQP side of the adapter.
type Publisher interface {
	PublishRecordWritten(ctx context.Context, msg *amqp.RecordWrittenMessage) error
}

// PublishingSource decorates a Record Source so every successful write is
// announced as a record.written event. Reads pass straight through.
type PublishingSource struct {
	source.RecordSource
	publisher Publisher
}

var _ source.RecordSource = (*PublishingSource)(nil)

func NewPublishingSource(src source.RecordSource, publisher Publisher) *PublishingSource {
	return &PublishingSource{RecordSource: src, publisher: publisher}
}

// publish never fails the write: the record is already stored.
func (p *PublishingSource) publish(ctx context.Context, msg *amqp.RecordWrittenMessage) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishRecordWritten(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish record written event",
			"error", err,
			"section", string(msg.Section),
			"action", string(msg.Action))
	}
}

func yearMessage(section core.Section, action amqp.Action, year int) *amqp.RecordWrittenMessage {
	msg := amqp.NewRecordWrittenMessage(section, action)
	msg.Year = year
	msg.Count = 1
	return msg
}

func expenditureMessage(action amqp.Action, key core.ExpenditureKey) *amqp.RecordWrittenMessage {
	msg := amqp.NewRecordWrittenMessage(core.SectionExpenditures, action)
	msg.Company, msg.Year, msg.TypeID = key.Company, key.Year, key.TypeID
	msg.Count = 1
	return msg
}

func (p *PublishingSource) CreateValueGenerated(ctx context.Context, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	out, err := p.RecordSource.CreateValueGenerated(ctx, r)
	if err == nil {
		p.publish(ctx, yearMessage(core.SectionValueGenerated, amqp.ActionCreate, out.Year))
	}
	return out, err
}

func (p *PublishingSource) UpdateValueGenerated(ctx context.Context, year int, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	out, err := p.RecordSource.UpdateValueGenerated(ctx, year, r)
	if err == nil {
		p.publish(ctx, yearMessage(core.SectionValueGenerated, amqp.ActionUpdate, year))
	}
	return out, err
}

func (p *PublishingSource) CreateExpenditure(ctx context.Context, r core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	out, err := p.RecordSource.CreateExpenditure(ctx, r)
	if err == nil {
		p.publish(ctx, expenditureMessage(amqp.ActionCreate, out.Key()))
	}
	return out, err
}

func (p *PublishingSource) UpdateExpenditure(ctx context.Context, key core.ExpenditureKey, r core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	out, err := p.RecordSource.UpdateExpenditure(ctx, key, r)
	if err == nil {
		p.publish(ctx, expenditureMessage(amqp.ActionUpdate, key))
	}
	return out, err
}

func (p *PublishingSource) CreateCapitalProviderPayment(ctx context.Context, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	out, err := p.RecordSource.CreateCapitalProviderPayment(ctx, r)
	if err == nil {
		p.publish(ctx, yearMessage(core.SectionCapitalProvider, amqp.ActionCreate, out.Year))
	}
	return out, err
}

func (p *PublishingSource) UpdateCapitalProviderPayment(ctx context.Context, year int, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	out, err := p.RecordSource.UpdateCapitalProviderPayment(ctx, year, r)
	if err == nil {
		p.publish(ctx, yearMessage(core.SectionCapitalProvider, amqp.ActionUpdate, year))
	}
	return out, err
}

// Import publishes one event per accepted file.
func (p *PublishingSource) Import(ctx context.Context, section core.Section, filename string, data []byte) (core.ImportResult, error) {
	res, err := p.RecordSource.Import(ctx, section, filename, data)
	if err == nil && res.SuccessfulImports > 0 {
		msg := amqp.NewRecordWrittenMessage(section, amqp.ActionImport)
		msg.Count = res.SuccessfulImports
		p.publish(ctx, msg)
	}
	return res, err
}
