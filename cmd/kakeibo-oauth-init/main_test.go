package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
		wantErr    bool
	}{
		{"success", "?state=s1&code=abc", http.StatusOK, "abc", false},
		{"state mismatch", "?state=other&code=abc", http.StatusBadRequest, "", false},
		{"missing code", "?state=s1", http.StatusBadRequest, "", false},
		{"provider error", "?error=access_denied", http.StatusBadRequest, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codeCh := make(chan string, 1)
			errCh := make(chan error, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s1", codeCh, errCh).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			select {
			case code := <-codeCh:
				if code != tt.wantCode {
					t.Errorf("code = %q, want %q", code, tt.wantCode)
				}
			default:
				if tt.wantCode != "" {
					t.Errorf("no code forwarded, want %q", tt.wantCode)
				}
			}
			if got := len(errCh) == 1; got != tt.wantErr {
				t.Errorf("error forwarded = %v, want %v", got, tt.wantErr)
			}
		})
	}
}

func TestCallbackHandler_DropsSecondCode(t *testing.T) {
	codeCh := make(chan string, 1)
	h := callbackHandler("s1", codeCh, make(chan error, 1))
	for _, code := range []string{"first", "second"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=s1&code="+code, nil))
	}
	if got := <-codeCh; got != "first" {
		t.Errorf("code = %q, want first", got)
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("OAUTH_REDIRECT_PORT", "")
	if got := getenv("OAUTH_REDIRECT_PORT", defaultRedirectPort); got != "8085" {
		t.Errorf("getenv() = %q", got)
	}
	t.Setenv("OAUTH_REDIRECT_PORT", "9000")
	if got := getenv("OAUTH_REDIRECT_PORT", defaultRedirectPort); got != "9000" {
		t.Errorf("getenv() = %q", got)
	}
}
