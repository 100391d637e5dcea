package sharing

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/monthly"
)

func sharedProject(allowEdit bool) core.Project {
	return core.Project{ID: "p1", Name: "Home", UserID: "owner", IsShared: true, ShareToken: "tok-123", AllowEdit: allowEdit}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		project core.Project
		token   string
		want    Access
	}{
		{"read only", sharedProject(false), "tok-123", Access{Granted: true}},
		{"editable", sharedProject(true), "tok-123", Access{Granted: true, Editable: true}},
		{"wrong token", sharedProject(true), "tok-999", Access{}},
		{"empty token", sharedProject(true), "", Access{}},
		{"not shared", core.Project{ShareToken: "tok-123"}, "tok-123", Access{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.project, tt.token); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestResolveFor(t *testing.T) {
	p := sharedProject(false)
	if got := ResolveFor(p, "owner", ""); !got.Editable || !got.Owner {
		t.Errorf("owner should get editable access, got %+v", got)
	}
	if got := ResolveFor(p, "user_visitor", "tok-123"); got.Editable || !got.Granted {
		t.Errorf("visitor should get read access, got %+v", got)
	}
	if got := ResolveFor(p, "", ""); got.Granted {
		t.Errorf("anonymous without token should be denied, got %+v", got)
	}
}

func TestGenerateToken(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Za-z0-9_-]{24}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateToken()
		if err != nil {
			t.Fatal(err)
		}
		if !pattern.MatchString(tok) {
			t.Fatalf("token %q is not 24 url-safe characters", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestShareUnshare(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p := Share(core.Project{ID: "p1"}, "tok", true, now)
	if !p.IsShared || p.ShareToken != "tok" || !p.AllowEdit || p.SharedAt == nil || !p.LastModified.Equal(now) {
		t.Errorf("unexpected shared project %+v", p)
	}

	later := now.Add(time.Hour)
	p = Unshare(p, later)
	if p.IsShared || p.ShareToken != "" || p.AllowEdit || p.SharedAt != nil {
		t.Errorf("unexpected unshared project %+v", p)
	}
	if Resolve(p, "tok").Granted {
		t.Error("old token still grants access")
	}
}

func TestShareURL(t *testing.T) {
	if got := ShareURL("https://kakeibo.example/", "abc"); got != "https://kakeibo.example/shared/abc" {
		t.Errorf("unexpected url %s", got)
	}
}

func TestNewView(t *testing.T) {
	store := monthly.New(nil, monthly.Options{ProjectID: "p1"})

	if _, err := NewView(store, Access{}); !errors.Is(err, core.ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}

	view, err := NewView(store, Access{Granted: true, Editable: true})
	if err != nil || view != store {
		t.Errorf("editable access should return the store itself")
	}

	view, err = NewView(store, Access{Granted: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := view.AddCategory("2024-06", monthly.NewCategory{Name: "Food"}); !errors.Is(err, core.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}
