// Package http is the dashboard's backend-for-frontend.
//
// This file implements utilities for parsing and validating request data:
// list filters, pagination and flat form submissions sent either as JSON or
// form-encoded bodies by HTMX.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"ecodash/internal/core"
	"ecodash/internal/services"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// PageParams is 1-based pagination. Size 0 disables paging.
type PageParams struct {
	Page int
	Size int
}

// ParsePageParams reads page and page_size, clamping bad values.
func ParsePageParams(query url.Values) PageParams {
	p := PageParams{Page: 1}
	if v, err := strconv.Atoi(strings.TrimSpace(query.Get("page"))); err == nil && v > 0 {
		p.Page = v
	}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			p.Size = min(v, maxPageSize)
		}
	} else if query.Has("page") {
		p.Size = defaultPageSize
	}
	return p
}

// Bounds returns the slice bounds of the page within n items.
func (p PageParams) Bounds(n int) (int, int) {
	if p.Size <= 0 {
		return 0, n
	}
	// Pages past the end are empty. skip is bounded before multiplying so
	// the offset cannot overflow.
	skip := max(p.Page-1, 0)
	if skip > n/p.Size {
		return n, n
	}
	start := min(skip*p.Size, n)
	return start, min(start+p.Size, n)
}

// ParseFilter reads company, year and q. An unparsable year is ignored.
func ParseFilter(query url.Values) services.Filter {
	f := services.Filter{
		Company: sanitizeInput(query.Get("company")),
		Query:   sanitizeInput(query.Get("q")),
	}
	if y, err := strconv.Atoi(strings.TrimSpace(query.Get("year"))); err == nil {
		f.Year = y
	}
	return f
}

// RequestBodyParser handles JSON and form-encoded bodies with flat keys.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once and stores it for parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(r.Body)
	}
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Keys returns every top-level key, sorted.
func (p *RequestBodyParser) Keys() []string {
	var keys []string
	for k := range p.jsonData {
		keys = append(keys, k)
	}
	for k := range p.formData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and CR.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseMode defaults to create.
func parseMode(s string) (services.Mode, error) {
	if s == "" {
		return services.ModeCreate, nil
	}
	m := services.Mode(strings.ToLower(s))
	if !m.IsValid() {
		return "", fmt.Errorf("invalid mode %q", s)
	}
	return m, nil
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidYear, s)
	}
	return year, nil
}

// SingleForm is what the value-generated and capital-provider forms share.
type SingleForm interface {
	services.Submission
	Set(field, value string) error
	Recompute()
}

// ParseSingleForm builds a value-generated or capital-provider form from
// flat fields: mode, year and one key per numeric field. Unknown keys are
// ignored.
func ParseSingleForm(section core.Section, p *RequestBodyParser) (SingleForm, error) {
	mode, err := parseMode(p.Get("mode"))
	if err != nil {
		return nil, err
	}
	year, err := parseYear(p.Get("year"))
	if err != nil {
		return nil, err
	}

	var form SingleForm
	switch section {
	case core.SectionValueGenerated:
		form = services.NewValueGeneratedForm(mode, year)
	case core.SectionCapitalProvider:
		form = services.NewCapitalProviderForm(mode, year)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownSection, section)
	}
	for _, field := range section.Fields() {
		if err := form.Set(field, p.Get(field)); err != nil {
			return nil, err
		}
	}
	return form, nil
}

// ParseExpenditureForm builds an expenditure form from flat fields: mode,
// company, year, an optional comma separated "types" list and one
// "<type_id>.<field>" key per value. Every type named by either is added
// as a line; names come from the reference types.
func ParseExpenditureForm(p *RequestBodyParser, types []core.ExpenditureType) (*services.ExpenditureForm, error) {
	mode, err := parseMode(p.Get("mode"))
	if err != nil {
		return nil, err
	}
	year, err := parseYear(p.Get("year"))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]core.ExpenditureType, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}

	form := services.NewExpenditureForm(mode, p.Get("company"), year)
	addLine := func(id string) error {
		t, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: expenditure type %q", core.ErrUnknownRef, id)
		}
		form.AddType(t)
		return nil
	}

	for _, id := range strings.Split(p.Get("types"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			if err := addLine(id); err != nil {
				return nil, err
			}
		}
	}
	for _, key := range p.Keys() {
		id, field, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		if err := addLine(id); err != nil {
			return nil, err
		}
		if err := form.Set(id, field, p.Get(key)); err != nil {
			return nil, err
		}
	}
	form.Recompute()
	return form, nil
}
