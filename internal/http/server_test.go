package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	applog "kakeibo/internal/log"
	"kakeibo/internal/services"
	memsheet "kakeibo/internal/sheets/memory"
	"kakeibo/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type apiFixture struct {
	remote   *memory.Store
	exporter *memsheet.Exporter
	server   *Server
}

func newAPIFixture(t *testing.T, withExporter bool) *apiFixture {
	t.Helper()
	f := &apiFixture{remote: memory.New(), exporter: memsheet.New()}
	local := cache.NewLRUCache[[]byte](10, 0)
	processor := services.NewSyncProcessor(f.remote, local, nil, services.DefaultSyncProcessorConfig())
	projects := services.NewProjectService(f.remote, processor, services.ProjectServiceOptions{
		Local:        local,
		Lists:        cache.NewLRUCache[[]core.Project](10, time.Minute),
		ShareBaseURL: "https://kakeibo.example",
		Now:          func() time.Time { return fixedNow },
	})

	opts := Options{
		Projects: projects,
		Health:   f.remote,
		Logger:   applog.Discard(),
		Now:      func() time.Time { return fixedNow },
	}
	if withExporter {
		opts.Exporter = f.exporter
	}
	f.server = NewServer(":0", opts)
	t.Cleanup(func() { _ = f.server.Shutdown(context.Background()) })
	return f
}

type requestOption func(*http.Request)

func asUser(id string) requestOption {
	return func(r *http.Request) { r.Header.Set(UserIDHeader, id) }
}

func withToken(token string) requestOption {
	return func(r *http.Request) { r.Header.Set(ShareTokenHeader, token) }
}

func (f *apiFixture) do(t *testing.T, method, target string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, target, reader)
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = "203.0.113.10:4000"
	for _, opt := range opts {
		opt(r)
	}
	rec := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func (f *apiFixture) createProject(t *testing.T, owner string) core.Project {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "Household"}, asUser(owner))
	expectStatus(t, rec, http.StatusCreated)
	return decode[projectResponse](t, rec).Project
}

func (f *apiFixture) addCategory(t *testing.T, owner, projectID, name string, budget int64) core.Category {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/projects/"+projectID+"/months/2024-06/categories",
		map[string]any{"name": name, "budget": budget}, asUser(owner))
	expectStatus(t, rec, http.StatusCreated)
	return decode[core.Category](t, rec)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec)["status"]; got != "ok" {
		t.Errorf("status = %v, want ok", got)
	}
	if !strings.HasPrefix(rec.Header().Get(UserIDHeader), anonymousPrefix) {
		t.Errorf("anonymous callers should get an identity, got %q", rec.Header().Get(UserIDHeader))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request ID missing")
	}
}

func TestIdentity_KeepsProvidedUserID(t *testing.T) {
	f := newAPIFixture(t, false)
	rec := f.do(t, http.MethodGet, "/healthz", nil, asUser("user_known"))
	if got := rec.Header().Get(UserIDHeader); got != "user_known" {
		t.Errorf("%s = %q, want user_known", UserIDHeader, got)
	}
}

func TestReady(t *testing.T) {
	f := newAPIFixture(t, false)
	expectStatus(t, f.do(t, http.MethodGet, "/readyz", nil), http.StatusOK)

	f.remote.SetFailure(errors.New("disk unavailable"))
	rec := f.do(t, http.MethodGet, "/readyz", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if got := decode[map[string]any](t, rec)["status"]; got != "not_ready" {
		t.Errorf("status = %v, want not_ready", got)
	}
}

func TestMetrics(t *testing.T) {
	f := newAPIFixture(t, false)
	f.do(t, http.MethodGet, "/healthz", nil)
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "http_requests_total 2") {
		t.Errorf("metrics body = %s", rec.Body.String())
	}
}

func TestProjects_CRUD(t *testing.T) {
	f := newAPIFixture(t, false)
	p := f.createProject(t, "user_a")

	rec := f.do(t, http.MethodGet, "/api/projects", nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	list := decode[map[string][]core.Project](t, rec)["projects"]
	if len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("projects = %+v", list)
	}

	rec = f.do(t, http.MethodGet, "/api/projects", nil, asUser("user_b"))
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string][]core.Project](t, rec)["projects"]; len(got) != 0 {
		t.Errorf("other users should see no projects, got %d", len(got))
	}

	rec = f.do(t, http.MethodPut, "/api/projects/"+p.ID, map[string]string{"name": "Renamed"}, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	if got := decode[projectResponse](t, rec).Project.Name; got != "Renamed" {
		t.Errorf("name = %q, want Renamed", got)
	}

	expectStatus(t, f.do(t, http.MethodPut, "/api/projects/"+p.ID, map[string]string{"name": "Hijacked"}, asUser("user_b")), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodDelete, "/api/projects/"+p.ID, nil, asUser("user_a")), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodGet, "/api/projects/"+p.ID, nil, asUser("user_a")), http.StatusNotFound)
}

func TestProjects_CreateValidation(t *testing.T) {
	f := newAPIFixture(t, false)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty name", map[string]string{"name": "  "}, http.StatusUnprocessableEntity},
		{"long name", map[string]string{"name": strings.Repeat("x", 101)}, http.StatusUnprocessableEntity},
		{"unknown field", map[string]string{"name": "ok", "owner": "x"}, http.StatusBadRequest},
		{"not json", "name=ok", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/projects", tt.body, asUser("user_a"))
			expectStatus(t, rec, tt.want)
			if decode[errorBody](t, rec).Error == "" {
				t.Error("error responses should carry a message")
			}
		})
	}
}

func TestMonths_ExpenseFlow(t *testing.T) {
	f := newAPIFixture(t, false)
	p := f.createProject(t, "user_a")
	food := f.addCategory(t, "user_a", p.ID, "Food", 30000)
	base := "/api/projects/" + p.ID + "/months/2024-06"

	rec := f.do(t, http.MethodPost, base+"/expenses",
		map[string]any{"categoryId": food.ID, "amount": 1200, "description": " lunch ", "date": "2024-06-10"},
		asUser("user_a"))
	expectStatus(t, rec, http.StatusCreated)
	exp := decode[core.Expense](t, rec)
	if exp.ID == "" || exp.Description != "lunch" {
		t.Errorf("expense = %+v", exp)
	}

	rec = f.do(t, http.MethodPatch, base+"/expenses/"+exp.ID, map[string]any{"amount": 1500}, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)

	rec = f.do(t, http.MethodGet, base, nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	month := decode[monthResponse](t, rec)
	if len(month.Categories) != 1 || month.Categories[0].Spent != 1500 {
		t.Errorf("month = %+v, want spent 1500", month)
	}

	rec = f.do(t, http.MethodGet, "/api/projects/"+p.ID+"/months", nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	months := decode[monthsResponse](t, rec)
	if len(months.Months) != 1 || months.Months[0] != "2024-06" || months.Current != "2024-06" {
		t.Errorf("months = %+v", months)
	}

	expectStatus(t, f.do(t, http.MethodDelete, base+"/expenses/"+exp.ID, nil, asUser("user_a")), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodDelete, base+"/expenses/"+exp.ID, nil, asUser("user_a")), http.StatusNoContent)

	rec = f.do(t, http.MethodGet, base, nil, asUser("user_a"))
	if got := decode[monthResponse](t, rec); len(got.Expenses) != 0 || got.Categories[0].Spent != 0 {
		t.Errorf("month after delete = %+v", got)
	}
}

func TestMonths_Errors(t *testing.T) {
	f := newAPIFixture(t, false)
	p := f.createProject(t, "user_a")
	food := f.addCategory(t, "user_a", p.ID, "Food", 30000)
	base := "/api/projects/" + p.ID + "/months/"

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid month", http.MethodGet, base + "2024-13", nil, http.StatusBadRequest},
		{"negative amount", http.MethodPost, base + "2024-06/expenses",
			map[string]any{"categoryId": food.ID, "amount": -1, "date": "2024-06-01"}, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, base + "2024-06/expenses",
			map[string]any{"categoryId": food.ID, "amount": 1, "date": "June 1"}, http.StatusUnprocessableEntity},
		{"unknown category", http.MethodPost, base + "2024-06/expenses",
			map[string]any{"categoryId": "missing", "amount": 1, "date": "2024-06-01"}, http.StatusNotFound},
		{"unknown expense", http.MethodPatch, base + "2024-06/expenses/missing",
			map[string]any{"amount": 1}, http.StatusNotFound},
		{"unknown category update", http.MethodPatch, base + "2024-06/categories/missing",
			map[string]any{"budget": 1}, http.StatusNotFound},
		{"bad day type", http.MethodPost, base + "2024-06/categories",
			map[string]any{"name": "Fun", "dayCalculationType": "holidays"}, http.StatusUnprocessableEntity},
		{"category id not updatable", http.MethodPatch, base + "2024-06/expenses/x",
			map[string]any{"categoryId": food.ID}, http.StatusBadRequest},
		{"unknown project", http.MethodGet, "/api/projects/nope/months/2024-06", nil, http.StatusNotFound},
		{"invalid from", http.MethodPost, base + "2024-07/copy?from=2024-7", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, f.do(t, tt.method, tt.path, tt.body, asUser("user_a")), tt.want)
		})
	}
}

func TestMonths_SetAndCopy(t *testing.T) {
	f := newAPIFixture(t, false)
	p := f.createProject(t, "user_a")
	base := "/api/projects/" + p.ID + "/months/"

	body := `{"categories":[{"id":"c1","name":"Rent","budget":80000,"spent":5}],
		"expenses":[{"id":"e1","categoryId":"c1","amount":80000,"date":"2024-05-01"}]}`
	rec := f.do(t, http.MethodPut, base+"2024-05", body, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	if got := decode[monthResponse](t, rec); got.Categories[0].Spent != 80000 {
		t.Errorf("spent should be recomputed, got %d", got.Categories[0].Spent)
	}

	rec = f.do(t, http.MethodPost, base+"2024-06/copy", nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusCreated)
	copied := decode[map[string]any](t, rec)
	if copied["from"] != "2024-05" {
		t.Errorf("from = %v, want the previous month", copied["from"])
	}

	rec = f.do(t, http.MethodGet, base+"2024-06", nil, asUser("user_a"))
	month := decode[monthResponse](t, rec)
	if len(month.Categories) != 1 || month.Categories[0].Name != "Rent" || month.Categories[0].ID == "c1" || month.Categories[0].Spent != 0 {
		t.Errorf("copied month = %+v", month)
	}
}

func TestAnalysisAndCompare(t *testing.T) {
	f := newAPIFixture(t, false)
	p := f.createProject(t, "user_a")
	food := f.addCategory(t, "user_a", p.ID, "Food", 30000)
	base := "/api/projects/" + p.ID + "/months/"

	for _, e := range []map[string]any{
		{"categoryId": food.ID, "amount": 3000, "date": "2024-06-01"},
		{"categoryId": food.ID, "amount": 2000, "date": "2024-06-10"},
	} {
		expectStatus(t, f.do(t, http.MethodPost, base+"2024-06/expenses", e, asUser("user_a")), http.StatusCreated)
	}
	expectStatus(t, f.do(t, http.MethodPut, base+"2024-05",
		`{"categories":[{"id":"c","name":"Food","budget":30000}],"expenses":[{"id":"x","categoryId":"c","amount":4000,"date":"2024-05-03"}]}`,
		asUser("user_a")), http.StatusOK)

	rec := f.do(t, http.MethodGet, base+"2024-06/analysis", nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	analysis := decode[analysisResponse](t, rec)
	if analysis.Reference != "2024-06-15" || analysis.Budget.TotalSpent != 5000 || analysis.Budget.DaysRemaining != 16 {
		t.Errorf("analysis = %+v", analysis.Budget)
	}
	if len(analysis.Categories) != 1 {
		t.Errorf("category analyses = %d, want 1", len(analysis.Categories))
	}

	rec = f.do(t, http.MethodGet, base+"2024-05/analysis", nil, asUser("user_a"))
	if got := decode[analysisResponse](t, rec).Reference; got != "2024-05-31" {
		t.Errorf("past months should be evaluated at their last day, got %s", got)
	}
	rec = f.do(t, http.MethodGet, base+"2024-06/analysis?date=2024-06-01", nil, asUser("user_a"))
	if got := decode[analysisResponse](t, rec).Reference; got != "2024-06-01" {
		t.Errorf("explicit date ignored, got %s", got)
	}
	expectStatus(t, f.do(t, http.MethodGet, base+"2024-06/analysis?date=tomorrow", nil, asUser("user_a")), http.StatusUnprocessableEntity)

	rec = f.do(t, http.MethodGet, base+"2024-06/compare", nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	cmp := decode[compareResponse](t, rec)
	if cmp.With != "2024-05" || cmp.SpentChange != 1000 || len(cmp.Categories) != 1 {
		t.Errorf("compare = %+v", cmp)
	}
	if cmp.Categories[0].Trend != "up" {
		t.Errorf("trend = %s, want up", cmp.Categories[0].Trend)
	}
}

func TestSharing(t *testing.T) {
	f := newAPIFixture(t, false)
	p := f.createProject(t, "user_a")
	food := f.addCategory(t, "user_a", p.ID, "Food", 30000)
	month := "/api/projects/" + p.ID + "/months/2024-06"
	expense := map[string]any{"categoryId": food.ID, "amount": 100, "date": "2024-06-02"}

	expectStatus(t, f.do(t, http.MethodGet, "/api/projects/"+p.ID, nil, asUser("user_b")), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodGet, month, nil, asUser("user_b")), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/share", nil, asUser("user_b")), http.StatusForbidden)

	rec := f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/share", nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	shared := decode[shareResponse](t, rec)
	token := shared.Project.ShareToken
	if len(token) != 24 || shared.URL != "https://kakeibo.example/shared/"+token {
		t.Fatalf("share = %+v", shared)
	}

	rec = f.do(t, http.MethodGet, "/api/shared/"+token, nil, asUser("user_b"))
	expectStatus(t, rec, http.StatusOK)
	if got := decode[projectResponse](t, rec).Access; !got.Granted || got.Editable {
		t.Errorf("access = %+v, want read-only", got)
	}

	expectStatus(t, f.do(t, http.MethodGet, month, nil, asUser("user_b"), withToken(token)), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodGet, month+"?token="+token, nil, asUser("user_b")), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodPost, month+"/expenses", expense, asUser("user_b"), withToken(token)), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodGet, "/api/projects/"+p.ID+"/months/2024-09", nil, asUser("user_b"), withToken(token)), http.StatusOK)

	rec = f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/share", map[string]bool{"allowEdit": true}, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	editToken := decode[shareResponse](t, rec).Project.ShareToken
	if editToken == token {
		t.Error("re-sharing should issue a new token")
	}
	expectStatus(t, f.do(t, http.MethodGet, month, nil, asUser("user_b"), withToken(token)), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodPost, month+"/expenses", expense, asUser("user_b"), withToken(editToken)), http.StatusCreated)

	expectStatus(t, f.do(t, http.MethodDelete, "/api/projects/"+p.ID+"/share", nil, asUser("user_a")), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodGet, month, nil, asUser("user_b"), withToken(editToken)), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodGet, "/api/shared/"+editToken, nil), http.StatusForbidden)
}

func TestSyncStatus(t *testing.T) {
	f := newAPIFixture(t, false)
	p := f.createProject(t, "user_a")

	rec := f.do(t, http.MethodGet, "/api/projects/"+p.ID+"/sync", nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	if got := decode[services.SyncStatus](t, rec); got.ProjectID != p.ID || !got.Online {
		t.Errorf("status = %+v", got)
	}
	expectStatus(t, f.do(t, http.MethodGet, "/api/projects/"+p.ID+"/sync", nil, asUser("user_b")), http.StatusForbidden)
}

func TestExport(t *testing.T) {
	f := newAPIFixture(t, true)
	p := f.createProject(t, "user_a")
	food := f.addCategory(t, "user_a", p.ID, "Food", 30000)
	base := "/api/projects/" + p.ID + "/months/2024-06"
	expectStatus(t, f.do(t, http.MethodPost, base+"/expenses",
		map[string]any{"categoryId": food.ID, "amount": 900, "date": "2024-06-03"}, asUser("user_a")), http.StatusCreated)

	rec := f.do(t, http.MethodPost, base+"/export", nil, asUser("user_a"))
	expectStatus(t, rec, http.StatusOK)
	if got := decode[exportResponse](t, rec); got.Rows != 1 {
		t.Errorf("export = %+v", got)
	}
	if rows := f.exporter.Rows(p.ID); len(rows) != 1 || rows[0][2] != "Food" {
		t.Errorf("exported rows = %v", rows)
	}
}

func TestExport_NotConfigured(t *testing.T) {
	f := newAPIFixture(t, false)
	p := f.createProject(t, "user_a")
	expectStatus(t, f.do(t, http.MethodPost, "/api/projects/"+p.ID+"/months/2024-06/export", nil, asUser("user_a")), http.StatusNotFound)
}

func TestRejectsUnusualMethods(t *testing.T) {
	f := newAPIFixture(t, false)
	expectStatus(t, f.do(t, "TRACE", "/healthz", nil), http.StatusMethodNotAllowed)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidKey, http.StatusBadRequest},
		{errInvalidBody, http.StatusBadRequest},
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{core.ErrProjectNotFound, http.StatusNotFound},
		{core.ErrReadOnly, http.StatusForbidden},
		{core.ErrAccessDenied, http.StatusForbidden},
		{errors.Join(errors.New("load"), core.ErrPersistence), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
