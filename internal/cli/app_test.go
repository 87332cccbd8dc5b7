package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ecodash/internal/console"
	"ecodash/internal/core"
)

type fakeRemote struct {
	valueGenerated []core.ValueGeneratedRecord
	expenditures   []core.ExpenditureRecord
	capital        []core.CapitalProviderPaymentRecord

	importResult core.ImportResult
	imported     []byte
	listErr      error
}

func (f *fakeRemote) ListValueGenerated(context.Context) ([]core.ValueGeneratedRecord, error) {
	return f.valueGenerated, f.listErr
}

func (f *fakeRemote) ListExpenditures(context.Context) ([]core.ExpenditureRecord, error) {
	return f.expenditures, f.listErr
}

func (f *fakeRemote) ListCapitalProviderPayments(context.Context) ([]core.CapitalProviderPaymentRecord, error) {
	return f.capital, f.listErr
}

func (f *fakeRemote) ListCompanies(context.Context) ([]core.Company, error) {
	return []core.Company{{ID: "ACME", Name: "Acme Energy"}}, nil
}

func (f *fakeRemote) ListExpenditureTypes(context.Context) ([]core.ExpenditureType, error) {
	return core.DefaultExpenditureTypes, nil
}

func (f *fakeRemote) Template(_ context.Context, section core.Section) ([]byte, error) {
	return []byte("xlsx-" + string(section)), nil
}

func (f *fakeRemote) Import(_ context.Context, _ core.Section, _ string, data []byte) (core.ImportResult, error) {
	f.imported = data
	return f.importResult, nil
}

type harness struct {
	app     *CLIApp
	out     *bytes.Buffer
	remote  *fakeRemote
	url     string
	timeout time.Duration
}

func newHarness(t *testing.T, remote *fakeRemote) *harness {
	t.Helper()
	h := &harness{out: &bytes.Buffer{}, remote: remote}
	h.app = NewCLIApp("test", console.NewWithWriter(h.out), func(baseURL string, timeout time.Duration) Remote {
		h.url, h.timeout = baseURL, timeout
		return remote
	})
	h.app.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return h
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	return h.app.ExecuteArgs(t.Context(), args...)
}

func expenditure(company string, year int, typeID, typeName, government string) core.ExpenditureRecord {
	r := core.ExpenditureFromInputs(company, year, typeID, map[string]string{"government": government})
	r.TypeName = typeName
	return r
}

func seededRemote() *fakeRemote {
	return &fakeRemote{
		valueGenerated: []core.ValueGeneratedRecord{
			core.ValueGeneratedFromInputs(2023, map[string]string{"electricity_sales": "100.5", "oil_revenues": "50"}),
		},
		expenditures: []core.ExpenditureRecord{
			expenditure("ACME", 2023, "cos", "Cost of Sales", "5"),
			expenditure("BETA", 2022, "ga", "General & Administrative", "7"),
		},
	}
}

func TestListPrintsReport(t *testing.T) {
	h := newHarness(t, seededRemote())
	if err := h.run(t, "list", "generated"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(h.out.String(), "150.50") {
		t.Errorf("output missing total revenue:\n%s", h.out.String())
	}
	if h.url != defaultAPIURL || h.timeout != defaultTimeout {
		t.Errorf("remote = %q %v", h.url, h.timeout)
	}
}

func TestListFiltersByCompany(t *testing.T) {
	h := newHarness(t, seededRemote())
	if err := h.run(t, "list", "expenditures", "--company", "BETA"); err != nil {
		t.Fatalf("list: %v", err)
	}
	out := h.out.String()
	if !strings.Contains(out, "BETA") || strings.Contains(out, "ACME") {
		t.Errorf("company filter not applied:\n%s", out)
	}
}

func TestListEmptyAndErrors(t *testing.T) {
	h := newHarness(t, &fakeRemote{})
	if err := h.run(t, "list", "capital-provider"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(h.out.String(), "No capital provider payments records") {
		t.Errorf("expected empty notice, got:\n%s", h.out.String())
	}

	if err := h.run(t, "list", "bogus"); !errors.Is(err, core.ErrUnknownSection) {
		t.Errorf("unknown section err = %v", err)
	}
	if err := h.run(t, "list", "generated", "--year", "1800"); !errors.Is(err, core.ErrInvalidYear) {
		t.Errorf("bad year err = %v", err)
	}

	failing := newHarness(t, &fakeRemote{listErr: errors.New("boom")})
	if err := failing.run(t, "list", "generated"); err == nil {
		t.Error("expected list error")
	}
}

func TestExportWritesFiles(t *testing.T) {
	h := newHarness(t, seededRemote())
	dir := t.TempDir()

	err := h.run(t, "export", "--dir", dir, "--section", "generated,expenditures", "--report-type", "csv,json", "--report-name", "q1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	for _, name := range []string{
		"q1_generated_20240301.csv",
		"q1_generated_20240301.json",
		"q1_expenditures_20240301.csv",
		"q1_expenditures_20240301.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "q1_capital-provider_20240301.csv")); err == nil {
		t.Error("unrequested section exported")
	}

	data, err := os.ReadFile(filepath.Join(dir, "q1_expenditures_20240301.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Cost of Sales") {
		t.Errorf("csv missing type name:\n%s", data)
	}
}

func TestExportRejectsBadArguments(t *testing.T) {
	h := newHarness(t, seededRemote())
	if err := h.run(t, "export", "--dir", t.TempDir(), "--report-type", "xml"); err == nil {
		t.Error("expected unsupported format error")
	}
	if err := h.run(t, "export", "--dir", t.TempDir(), "--section", "nope"); !errors.Is(err, core.ErrUnknownSection) {
		t.Errorf("unknown section err = %v", err)
	}
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, "ecodash.yaml", "api_url: http://records:9000/\ntimeout: 3s\nformats: [json]\nsections: [capital-provider]\ndir: "+dir+"\n")

	h := newHarness(t, seededRemote())
	if err := h.run(t, "export", "-C", cfgPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	if h.url != "http://records:9000" || h.timeout != 3*time.Second {
		t.Errorf("remote = %q %v", h.url, h.timeout)
	}
	if _, err := os.Stat(filepath.Join(dir, "ecodash_capital-provider_20240301.json")); err != nil {
		t.Errorf("config file settings not applied: %v", err)
	}

	if err := h.run(t, "reference", "-C", cfgPath, "--api-url", "http://other:1", "--timeout", "1s"); err != nil {
		t.Fatalf("reference: %v", err)
	}
	if h.url != "http://other:1" || h.timeout != time.Second {
		t.Errorf("flags did not override config file: %q %v", h.url, h.timeout)
	}
	if !strings.Contains(h.out.String(), "Acme Energy") || !strings.Contains(h.out.String(), "Income Tax") {
		t.Errorf("reference output:\n%s", h.out.String())
	}
}

func TestTemplateCommand(t *testing.T) {
	h := newHarness(t, seededRemote())
	path := filepath.Join(t.TempDir(), "tpl.xlsx")
	if err := h.run(t, "template", "expenditures", "-o", path); err != nil {
		t.Fatalf("template: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "xlsx-expenditures" {
		t.Errorf("template file = %q, %v", data, err)
	}
}

func TestImportCommand(t *testing.T) {
	file := writeFile(t, "upload.xlsx", "payload")

	ok := newHarness(t, &fakeRemote{importResult: core.ImportResult{SuccessfulImports: 2, TotalProcessed: 2}})
	if err := ok.run(t, "import", "generated", file); err != nil {
		t.Fatalf("import: %v", err)
	}
	if string(ok.remote.imported) != "payload" {
		t.Errorf("uploaded %q", ok.remote.imported)
	}
	if !strings.Contains(ok.out.String(), "Imported 2 of 2 rows") {
		t.Errorf("output:\n%s", ok.out.String())
	}

	rejected := newHarness(t, &fakeRemote{importResult: core.ImportResult{
		Errors:         1,
		TotalProcessed: 3,
		ErrorDetails:   []string{"row 2: invalid year"},
	}})
	if err := rejected.run(t, "import", "generated", file); !errors.Is(err, ErrImportRejected) {
		t.Fatalf("err = %v, want ErrImportRejected", err)
	}
	if !strings.Contains(rejected.out.String(), "row 2: invalid year") {
		t.Errorf("error details not printed:\n%s", rejected.out.String())
	}
}
