package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testClientJSON = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`

func TestOAuthConfig(t *testing.T) {
	cfg, err := OAuthConfig(testClientJSON, "")
	if err != nil {
		t.Fatalf("OAuthConfig() error = %v", err)
	}
	if cfg.ClientID != "id.apps.googleusercontent.com" {
		t.Errorf("ClientID = %q", cfg.ClientID)
	}
	if len(cfg.Scopes) != 1 || !strings.Contains(cfg.Scopes[0], "spreadsheets") {
		t.Errorf("Scopes = %v", cfg.Scopes)
	}

	if _, err := OAuthConfig("", ""); err == nil || !strings.Contains(err.Error(), "missing oauth client") {
		t.Errorf("expected missing client error, got %v", err)
	}
	if _, err := OAuthConfig("{not json", ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}

	got, err := LoadToken("", path)
	if err != nil {
		t.Fatalf("LoadToken() error = %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("LoadToken() = %+v, want %+v", got, want)
	}
}

func TestLoadToken_Errors(t *testing.T) {
	tests := []struct {
		name, inline, file, want string
	}{
		{"missing", "", "", "missing oauth token"},
		{"malformed", "{", "", "decode oauth token"},
		{"empty", `{"token_type":"Bearer"}`, "", "neither access nor refresh"},
		{"unreadable", "", "/nonexistent/token.json", "read oauth token file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadToken(tt.inline, tt.file)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadToken() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNew_OAuthTakesPrecedence(t *testing.T) {
	client, err := New(context.Background(), Config{
		SpreadsheetID:   "sheet-id",
		CredentialsFile: "/nonexistent/service-account.json",
		OAuthClientJSON: testClientJSON,
		OAuthTokenJSON:  `{"access_token":"access","token_type":"Bearer"}`,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.svc == nil || client.sheetBase != defaultSheetName {
		t.Errorf("unexpected client %+v", client)
	}
}

func TestConfigFromEnv_OAuth(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "/etc/client.json")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "/etc/token.json")
	cfg := ConfigFromEnv()
	if !cfg.hasOAuth() {
		t.Errorf("hasOAuth() = false for %+v", cfg)
	}
}
