package core

import "fmt"

// Section is one of the three disclosure tables.
type Section string

const (
	SectionValueGenerated  Section = "generated"
	SectionExpenditures    Section = "expenditures"
	SectionCapitalProvider Section = "capital-provider"
)

// Sections lists every section in display order.
var Sections = []Section{SectionValueGenerated, SectionExpenditures, SectionCapitalProvider}

// ParseSection accepts the URL form of a section name.
func ParseSection(s string) (Section, error) {
	switch Section(s) {
	case SectionValueGenerated, SectionExpenditures, SectionCapitalProvider:
		return Section(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
}

func (s Section) Title() string {
	switch s {
	case SectionValueGenerated:
		return "Economic Value Generated"
	case SectionExpenditures:
		return "Expenditures"
	case SectionCapitalProvider:
		return "Capital Provider Payments"
	}
	return string(s)
}

// Fields returns the numeric input fields of the section.
func (s Section) Fields() []string {
	switch s {
	case SectionValueGenerated:
		return ValueGeneratedFields
	case SectionExpenditures:
		return ExpenditureFields
	case SectionCapitalProvider:
		return CapitalProviderFields
	}
	return nil
}

// KeyColumns are the identifying columns used by templates and imports.
func (s Section) KeyColumns() []string {
	if s == SectionExpenditures {
		return []string{"company", "year", "type"}
	}
	return []string{"year"}
}
