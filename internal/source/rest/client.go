// Package rest is the Record Source client for the disclosure REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ecodash/internal/core"
	"ecodash/internal/source"
)

// APIError is a non-2xx answer from the Record Source.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("record source: %d %s", e.StatusCode, e.Detail)
}

// Is maps HTTP statuses onto the core sentinels so callers can use errors.Is
// without knowing the transport.
func (e *APIError) Is(target error) bool {
	switch target {
	case core.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case core.ErrAlreadyExists:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ source.RecordSource = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func pathf(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			escaped[i] = url.PathEscape(v)
		default:
			escaped[i] = v
		}
	}
	return fmt.Sprintf(format, escaped...)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Record source request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload map[string]any
	detail := ""
	if json.Unmarshal(data, &payload) == nil {
		for _, k := range []string{"detail", "error", "message"} {
			if s, ok := payload[k].(string); ok && s != "" {
				detail = s
				break
			}
		}
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.do(ctx, method, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) ListValueGenerated(ctx context.Context) ([]core.ValueGeneratedRecord, error) {
	var out []core.ValueGeneratedRecord
	err := c.getJSON(ctx, "/economic/value-generated-data", &out)
	return out, err
}

func (c *Client) GetValueGenerated(ctx context.Context, year int) (core.ValueGeneratedRecord, error) {
	var out core.ValueGeneratedRecord
	err := c.getJSON(ctx, pathf("/economic/value-generated/%d", year), &out)
	return out, err
}

func (c *Client) CreateValueGenerated(ctx context.Context, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	var out core.ValueGeneratedRecord
	err := c.sendJSON(ctx, http.MethodPost, "/economic/value-generated", core.DeriveValueGenerated(r), &out)
	return out, err
}

func (c *Client) UpdateValueGenerated(ctx context.Context, year int, r core.ValueGeneratedRecord) (core.ValueGeneratedRecord, error) {
	var out core.ValueGeneratedRecord
	r.Year = year
	err := c.sendJSON(ctx, http.MethodPut, pathf("/economic/value-generated/%d", year), core.DeriveValueGenerated(r), &out)
	return out, err
}

func (c *Client) ListExpenditures(ctx context.Context) ([]core.ExpenditureRecord, error) {
	var out []core.ExpenditureRecord
	err := c.getJSON(ctx, "/economic/expenditures", &out)
	return out, err
}

func (c *Client) GetExpenditures(ctx context.Context, company string, year int) ([]core.ExpenditureRecord, error) {
	var out []core.ExpenditureRecord
	err := c.getJSON(ctx, pathf("/economic/expenditures/%s/%d", company, year), &out)
	return out, err
}

func (c *Client) CreateExpenditure(ctx context.Context, r core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	var out core.ExpenditureRecord
	err := c.sendJSON(ctx, http.MethodPost, "/economic/expenditures", core.DeriveExpenditure(r), &out)
	return out, err
}

func (c *Client) UpdateExpenditure(ctx context.Context, key core.ExpenditureKey, r core.ExpenditureRecord) (core.ExpenditureRecord, error) {
	var out core.ExpenditureRecord
	r.Company, r.Year, r.TypeID = key.Company, key.Year, key.TypeID
	path := pathf("/economic/expenditures/%s/%d/%s", key.Company, key.Year, key.TypeID)
	err := c.sendJSON(ctx, http.MethodPut, path, core.DeriveExpenditure(r), &out)
	return out, err
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

func (c *Client) ExpenditureExists(ctx context.Context, key core.ExpenditureKey) (bool, error) {
	var out existsResponse
	err := c.getJSON(ctx, pathf("/economic/check-expenditure/%s/%d/%s", key.Company, key.Year, key.TypeID), &out)
	return out.Exists, err
}

func (c *Client) ListCapitalProviderPayments(ctx context.Context) ([]core.CapitalProviderPaymentRecord, error) {
	var out []core.CapitalProviderPaymentRecord
	err := c.getJSON(ctx, "/economic/capital-provider-payments", &out)
	return out, err
}

func (c *Client) GetCapitalProviderPayment(ctx context.Context, year int) (core.CapitalProviderPaymentRecord, error) {
	var out core.CapitalProviderPaymentRecord
	err := c.getJSON(ctx, pathf("/economic/capital-provider-payments/%d", year), &out)
	return out, err
}

func (c *Client) CreateCapitalProviderPayment(ctx context.Context, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	var out core.CapitalProviderPaymentRecord
	err := c.sendJSON(ctx, http.MethodPost, "/economic/capital-provider-payments", core.DeriveCapitalProvider(r), &out)
	return out, err
}

func (c *Client) UpdateCapitalProviderPayment(ctx context.Context, year int, r core.CapitalProviderPaymentRecord) (core.CapitalProviderPaymentRecord, error) {
	var out core.CapitalProviderPaymentRecord
	r.Year = year
	err := c.sendJSON(ctx, http.MethodPut, pathf("/economic/capital-provider-payments/%d", year), core.DeriveCapitalProvider(r), &out)
	return out, err
}

func (c *Client) ListCompanies(ctx context.Context) ([]core.Company, error) {
	var out []core.Company
	err := c.getJSON(ctx, "/reference/companies", &out)
	return out, err
}

func (c *Client) ListExpenditureTypes(ctx context.Context) ([]core.ExpenditureType, error) {
	var out []core.ExpenditureType
	err := c.getJSON(ctx, "/reference/expenditure-types", &out)
	return out, err
}

func (c *Client) Template(ctx context.Context, section core.Section) ([]byte, error) {
	if _, err := core.ParseSection(string(section)); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodGet, "/economic/template-"+string(section), "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return data, nil
}

// Import uploads the file as multipart field "file".
func (c *Client) Import(ctx context.Context, section core.Section, filename string, data []byte) (core.ImportResult, error) {
	if _, err := core.ParseSection(string(section)); err != nil {
		return core.ImportResult{}, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return core.ImportResult{}, fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return core.ImportResult{}, fmt.Errorf("close multipart: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/economic/import-"+string(section), w.FormDataContentType(), &buf)
	if err != nil {
		return core.ImportResult{}, err
	}
	defer resp.Body.Close()

	var out core.ImportResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return core.ImportResult{}, fmt.Errorf("decode import result: %w", err)
	}
	return out, nil
}

// StatusCode extracts the HTTP status of an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
