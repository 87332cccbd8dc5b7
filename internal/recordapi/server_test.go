package recordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ecodash/internal/core"
	applog "ecodash/internal/log"
	"ecodash/internal/source/memory"
	"ecodash/internal/source/rest"
)

func newTestServer(t *testing.T, config Config) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New([]core.Company{{ID: "ACME", Name: "Acme Energy"}}, core.DefaultExpenditureTypes)
	srv := NewServer(":0", store, config, applog.New(applog.Config{Output: io.Discard}))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func detail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body["detail"]
}

func TestValueGeneratedEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	h := srv.Handler

	rr := do(t, h, http.MethodGet, "/economic/value-generated-data", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty list: %d %q", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/economic/value-generated", `{"year":2023,"electricity_sales":100,"oil_revenues":"50.5","total_revenue":1}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var created core.ValueGeneratedRecord
	_ = json.Unmarshal(rr.Body.Bytes(), &created)
	if created.TotalRevenue.String() != "150.5" {
		t.Fatalf("total must be derived server-side, got %s", created.TotalRevenue)
	}
	if !strings.Contains(rr.Body.String(), `"total_revenue":150.5`) {
		t.Fatalf("amounts must travel as numbers: %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, "/economic/value-generated", `{"year":2023,"oil_revenues":1}`)
	if rr.Code != http.StatusConflict || detail(t, rr) == "" {
		t.Fatalf("expected 409 with detail, got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPut, "/economic/value-generated/2023", `{"oil_revenues":7}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"total_revenue":7`) {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}

	if rr = do(t, h, http.MethodPut, "/economic/value-generated/2001", `{"oil_revenues":7}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr = do(t, h, http.MethodGet, "/economic/value-generated/abc", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad year, got %d", rr.Code)
	}
	if rr = do(t, h, http.MethodPost, "/economic/value-generated", `{"year":`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rr.Code)
	}
}

func TestExpenditureEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	h := srv.Handler

	rr := do(t, h, http.MethodGet, "/economic/check-expenditure/ACME/2023/cos", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"exists":false`) {
		t.Fatalf("check before create: %d %s", rr.Code, rr.Body.String())
	}

	body := `{"company":"ACME","year":2023,"type_id":"cos","government":10,"depletion":5}`
	if rr = do(t, h, http.MethodPost, "/economic/expenditures", body); rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	if rr = do(t, h, http.MethodPost, "/economic/expenditures", body); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if rr = do(t, h, http.MethodPost, "/economic/expenditures", `{"company":"ZETA","year":2023,"type_id":"cos"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown company, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/economic/check-expenditure/ACME/2023/cos", "")
	if !strings.Contains(rr.Body.String(), `"exists":true`) {
		t.Fatalf("check after create: %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodPut, "/economic/expenditures/ACME/2023/cos", `{"employee":3}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"total_expenditures":3`) {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/economic/expenditures/ACME/2023", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"type_name":"Cost of Sales"`) {
		t.Fatalf("bucket: %d %s", rr.Code, rr.Body.String())
	}
	if rr = do(t, h, http.MethodGet, "/economic/expenditures/ACME/1999", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestReferenceAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	h := srv.Handler

	rr := do(t, h, http.MethodGet, "/reference/companies", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Acme Energy") {
		t.Fatalf("companies: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, http.MethodGet, "/reference/expenditure-types", "")
	if !strings.Contains(rr.Body.String(), `"id":"ga"`) {
		t.Fatalf("types: %s", rr.Body.String())
	}
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, h, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing middleware headers: %v", rr.Header())
	}
}

func TestTemplateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	rr := do(t, srv.Handler, http.MethodGet, "/economic/template-expenditures", "")
	if rr.Code != http.StatusOK || rr.Body.Len() == 0 {
		t.Fatalf("template: %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "template-expenditures.xlsx") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	if rr = do(t, srv.Handler, http.MethodGet, "/economic/template-other", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown section template should be 404, got %d", rr.Code)
	}
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func postImport(t *testing.T, h http.Handler, section, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/economic/import-"+section, body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestImportEndpoint(t *testing.T) {
	config := DefaultConfig()
	config.ErrorLimit = 1
	srv, store := newTestServer(t, config)

	rr := postImport(t, srv.Handler, "capital-provider", "cp.csv", "year,interest,dividends_to_nci\n2021,1,2\n2022,3,4\n")
	if rr.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}
	var res core.ImportResult
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.SuccessfulImports != 2 || res.Errors != 0 || res.TotalProcessed != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	got, err := store.GetCapitalProviderPayment(context.Background(), 2022)
	if err != nil || got.Total.String() != "7" {
		t.Fatalf("imported record: %+v %v", got, err)
	}

	rr = postImport(t, srv.Handler, "capital-provider", "cp.csv", "year,interest\nabc,1\n2021,1\n1800,2\n")
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if rr.Code != http.StatusOK || res.SuccessfulImports != 0 || res.Errors != 2 {
		t.Fatalf("expected rejected file, got %d %+v", rr.Code, res)
	}
	if len(res.ErrorDetails) != 2 || !strings.HasPrefix(res.ErrorDetails[1], "... and") {
		t.Fatalf("expected truncated details, got %v", res.ErrorDetails)
	}

	if rr = postImport(t, srv.Handler, "generated", "notes.txt", "x"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported file, got %d", rr.Code)
	}
}

func TestImportUploadLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxUploadBytes = 64
	srv, _ := newTestServer(t, config)

	rr := postImport(t, srv.Handler, "generated", "vg.csv", "year,oil_revenues\n"+strings.Repeat("2021,1\n", 50))
	if rr.Code != http.StatusRequestEntityTooLarge && rr.Code != http.StatusBadRequest {
		t.Fatalf("expected upload to be refused, got %d", rr.Code)
	}
}

// The REST client and this server speak the same contract.
func TestRESTClientRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, DefaultConfig())
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	ctx := context.Background()
	client := rest.NewClient(ts.URL, 0)

	cp := core.CapitalProviderFromInputs(2024, map[string]string{"interest": "100", "dividends_to_nci": "50", "dividends_to_parent": "25"})
	got, err := client.CreateCapitalProviderPayment(ctx, cp)
	if err != nil || got.Total.String() != "175" {
		t.Fatalf("create: %+v %v", got, err)
	}
	if _, err := client.CreateCapitalProviderPayment(ctx, cp); !errors.Is(err, core.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists through the wire, got %v", err)
	}

	key := core.ExpenditureKey{Company: "ACME", Year: 2023, TypeID: "ga"}
	if exists, err := client.ExpenditureExists(ctx, key); err != nil || exists {
		t.Fatalf("exists before create: %v %v", exists, err)
	}
	if _, err := client.CreateExpenditure(ctx, core.ExpenditureFromInputs("ACME", 2023, "ga", map[string]string{"community": "9"})); err != nil {
		t.Fatalf("create expenditure: %v", err)
	}
	if exists, err := client.ExpenditureExists(ctx, key); err != nil || !exists {
		t.Fatalf("exists after create: %v %v", exists, err)
	}
	if _, err := client.GetExpenditures(ctx, "ACME", 1999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	res, err := client.Import(ctx, core.SectionValueGenerated, "vg.csv", []byte("year,oil_revenues\n2020,4\n"))
	if err != nil || res.SuccessfulImports != 1 {
		t.Fatalf("import: %+v %v", res, err)
	}
	list, err := client.ListValueGenerated(ctx)
	if err != nil || len(list) != 1 || list[0].TotalRevenue.String() != "4" {
		t.Fatalf("list: %v %v", list, err)
	}
	data, err := client.Template(ctx, core.SectionCapitalProvider)
	if err != nil || len(data) == 0 {
		t.Fatalf("template: %v", err)
	}
}
