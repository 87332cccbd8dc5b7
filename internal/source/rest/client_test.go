package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ecodash/internal/core"
)

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail field", http.StatusConflict, `{"detail":"record already exists"}`, "record already exists"},
		{"error field", http.StatusBadRequest, `{"error":"bad year"}`, "bad year"},
		{"message field", http.StatusBadRequest, `{"message":"nope"}`, "nope"},
		{"plain text body", http.StatusInternalServerError, "boom", "Internal Server Error"},
		{"empty detail", http.StatusNotFound, `{"detail":""}`, "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL, 0).ListCompanies(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Detail != tt.want || apiErr.StatusCode != tt.status {
				t.Errorf("got %d %q, want %d %q", apiErr.StatusCode, apiErr.Detail, tt.status, tt.want)
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode = %d", StatusCode(err))
			}
		})
	}
}

func TestAPIErrorIs(t *testing.T) {
	if !errors.Is(&APIError{StatusCode: 404}, core.ErrNotFound) {
		t.Error("404 should match ErrNotFound")
	}
	if !errors.Is(&APIError{StatusCode: 409}, core.ErrAlreadyExists) {
		t.Error("409 should match ErrAlreadyExists")
	}
	if errors.Is(&APIError{StatusCode: 500}, core.ErrNotFound) {
		t.Error("500 must not match ErrNotFound")
	}
	if StatusCode(errors.New("plain")) != 0 {
		t.Error("non-API errors have no status")
	}
}

func TestWritesSendDerivedRecords(t *testing.T) {
	var got core.ExpenditureRecord
	var gotPath, gotMethod string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.EscapedPath(), r.Method
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", 0)
	rec := core.ExpenditureFromInputs("", 0, "", map[string]string{"government": "10", "depreciation": "5"})
	key := core.ExpenditureKey{Company: "A B", Year: 2022, TypeID: "cos"}
	out, err := c.UpdateExpenditure(context.Background(), key, rec)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/economic/expenditures/A%20B/2022/cos" {
		t.Errorf("unexpected request %s %s", gotMethod, gotPath)
	}
	if got.Company != "A B" || got.Year != 2022 || got.TypeID != "cos" {
		t.Errorf("key not carried in body: %+v", got)
	}
	if got.TotalDistributed.String() != "10" || got.TotalExpenditures.String() != "15" {
		t.Errorf("totals not derived: %s %s", got.TotalDistributed, got.TotalExpenditures)
	}
	if out.TotalExpenditures.String() != "15" {
		t.Errorf("response not decoded: %+v", out)
	}
}

func TestExistsProbe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/economic/check-expenditure/ACME/2023/ga" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"exists":true}`))
	}))
	defer ts.Close()

	ok, err := NewClient(ts.URL, 0).ExpenditureExists(context.Background(), core.ExpenditureKey{Company: "ACME", Year: 2023, TypeID: "ga"})
	if err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
}

func TestImportMultipart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/economic/import-generated" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "vg.csv" || string(data) != "year\n" {
			http.Error(w, "unexpected upload", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(core.ImportResult{SuccessfulImports: 3, TotalProcessed: 3, ErrorDetails: []string{}})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 0)
	res, err := c.Import(context.Background(), core.SectionValueGenerated, "vg.csv", []byte("year\n"))
	if err != nil || res.SuccessfulImports != 3 {
		t.Fatalf("import: %+v %v", res, err)
	}

	if _, err := c.Import(context.Background(), core.Section("bogus"), "x.csv", nil); !errors.Is(err, core.ErrUnknownSection) {
		t.Fatalf("expected ErrUnknownSection, got %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient(ts.URL, 0).ListValueGenerated(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
