//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"ecodash/internal/core"
	"ecodash/internal/report"
)

// Integration tests require a real spreadsheet and service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	client.tabPrefix = "itest " + time.Now().Format("20060102150405") + " "

	tbl := report.CapitalProvider([]core.CapitalProviderPaymentRecord{
		core.CapitalProviderFromInputs(2022, map[string]string{"interest": "1", "dividends_to_nci": "2"}),
	})
	if err := client.WriteReport(ctx, tbl); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	rows, err := client.ReadReport(ctx, core.SectionCapitalProvider)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "Year" || rows[1][0] != "2022" {
		t.Errorf("unexpected mirrored rows: %v", rows)
	}
}
