package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kakeibo/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-id"})
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-id", CredentialsFile: t.TempDir() + "/missing.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", " sheet-id ")
	t.Setenv("GOOGLE_SHEET_NAME", "Budget")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/creds.json")

	cfg := ConfigFromEnv()
	if cfg.SpreadsheetID != "sheet-id" || cfg.SheetName != "Budget" {
		t.Errorf("ConfigFromEnv() = %+v", cfg)
	}
	if cfg.CredentialsFile != "/etc/creds.json" {
		t.Errorf("CredentialsFile = %q, want GOOGLE_APPLICATION_CREDENTIALS fallback", cfg.CredentialsFile)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Kakeibo", 2025, "2025 Kakeibo"},
		{"Expenses", 2024, "2024 Expenses"},
		{"", 2023, ""},
		{"Test Sheet", 2022, "2022 Test Sheet"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}

func TestClient_ExportMonthWithoutService(t *testing.T) {
	c := NewWithService(nil, "sheet-id", "")
	_, err := c.ExportMonth(context.Background(), core.Project{ID: "p1"}, "2024-06", core.MonthlyData{})
	if err == nil {
		t.Fatal("expected error with nil service")
	}
}

func TestClient_ExportMonthInvalidMonth(t *testing.T) {
	c := &Client{svc: &gsheet.Service{}, spreadsheetID: "sheet-id", sheetBase: "Kakeibo"}
	_, err := c.ExportMonth(context.Background(), core.Project{ID: "p1"}, "June", core.MonthlyData{})
	if !errors.Is(err, core.ErrInvalidKey) {
		t.Errorf("error = %v, want ErrInvalidKey", err)
	}
}

func TestClient_ExportMonthAppendsRows(t *testing.T) {
	var gotPath string
	var gotBody gsheet.ValueRange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"spreadsheetId": "sheet-id",
			"updates":       map[string]any{"updatedRange": "'2024 Kakeibo'!A2:E3", "updatedRows": 2},
		})
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	c := NewWithService(svc, "sheet-id", "")

	data := core.MonthlyData{
		Categories: []core.Category{{ID: "c1", Name: "Food"}},
		Expenses: []core.Expense{
			{ID: "e2", CategoryID: "c1", Amount: 900, Description: "Dinner", Date: "2024-06-20"},
			{ID: "e1", CategoryID: "c1", Amount: 400, Description: "Lunch", Date: "2024-06-02"},
		},
	}
	res, err := c.ExportMonth(context.Background(), core.Project{ID: "p1"}, "2024-06", data)
	if err != nil {
		t.Fatalf("ExportMonth() error = %v", err)
	}

	if !strings.Contains(gotPath, "sheet-id") || !strings.Contains(gotPath, "2024 Kakeibo") || !strings.HasSuffix(gotPath, ":append") {
		t.Errorf("request path = %q", gotPath)
	}
	if len(gotBody.Values) != 2 {
		t.Fatalf("rows sent = %d, want 2", len(gotBody.Values))
	}
	if gotBody.Values[0][1] != "2024-06-02" || gotBody.Values[0][2] != "Food" {
		t.Errorf("first row = %v, want earliest expense first", gotBody.Values[0])
	}
	if res.Rows != 2 || res.Range != "'2024 Kakeibo'!A2:E3" {
		t.Errorf("ExportMonth() = %+v", res)
	}
}

func TestClient_ExportMonthEmptyWritesNothing(t *testing.T) {
	c := &Client{svc: &gsheet.Service{}, spreadsheetID: "sheet-id", sheetBase: "Kakeibo"}
	res, err := c.ExportMonth(context.Background(), core.Project{ID: "p1"}, "2024-06", core.MonthlyData{})
	if err != nil {
		t.Fatalf("ExportMonth() error = %v", err)
	}
	if res.Rows != 0 {
		t.Errorf("rows = %d, want 0", res.Rows)
	}
}
