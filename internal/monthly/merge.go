package monthly

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"kakeibo/internal/core"
	applog "kakeibo/internal/log"
)

const (
	RejectInvalidKey    RejectReason = "invalid_key"
	RejectMalformedData RejectReason = "malformed_data"
)

type (
	RejectReason string

	// Rejection records a month entry that was dropped while parsing a snapshot.
	Rejection struct {
		Key    string       `json:"key"`
		Reason RejectReason `json:"reason"`
		Err    error        `json:"-"`
	}

	// MergeReport describes the outcome of applying a remote snapshot.
	MergeReport struct {
		Replaced []string // keys present locally and overwritten by remote
		Added    []string // keys only present remotely
		Kept     []string // local-only keys
		Dropped  []string // invalid local keys removed
		Changed  bool
	}

	// rawMonth detects missing arrays, which decode to nil pointers.
	rawMonth struct {
		Categories *[]core.Category `json:"categories"`
		Expenses   *[]core.Expense  `json:"expenses"`
	}
)

func (r Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("month %q: %s: %v", r.Key, r.Reason, r.Err)
	}
	return fmt.Sprintf("month %q: %s", r.Key, r.Reason)
}

func (r Rejection) Unwrap() error {
	if r.Reason == RejectInvalidKey {
		return core.ErrInvalidKey
	}
	return core.ErrMalformedRemoteData
}

// ParseSnapshot validates an untyped remote document month by month. Every
// entry ends up either in the result or in the rejections, in key order.
func ParseSnapshot(raw map[string]json.RawMessage) (core.ProjectData, []Rejection) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make(core.ProjectData, len(raw))
	var rejected []Rejection
	for _, key := range keys {
		if !core.ValidMonthKey(key) {
			rejected = append(rejected, Rejection{Key: key, Reason: RejectInvalidKey})
			continue
		}
		m, err := parseMonth(raw[key])
		if err != nil {
			rejected = append(rejected, Rejection{Key: key, Reason: RejectMalformedData, Err: err})
			continue
		}
		data[key] = m
	}
	return data, rejected
}

// DecodeSnapshot parses a serialised project document.
func DecodeSnapshot(b []byte) (core.ProjectData, []Rejection, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrMalformedRemoteData, err)
	}
	data, rejected := ParseSnapshot(raw)
	return data, rejected, nil
}

func parseMonth(b json.RawMessage) (core.MonthlyData, error) {
	var rm rawMonth
	if err := json.Unmarshal(b, &rm); err != nil {
		return core.MonthlyData{}, err
	}
	if rm.Categories == nil {
		return core.MonthlyData{}, fmt.Errorf("missing categories")
	}
	if rm.Expenses == nil {
		return core.MonthlyData{}, fmt.Errorf("missing expenses")
	}
	return normalize(core.MonthlyData{Categories: *rm.Categories, Expenses: *rm.Expenses}), nil
}

// normalize drops duplicate ids (first wins), fills the default day type and
// recomputes spent.
func normalize(m core.MonthlyData) core.MonthlyData {
	out := core.MonthlyData{
		Categories: make([]core.Category, 0, len(m.Categories)),
		Expenses:   make([]core.Expense, 0, len(m.Expenses)),
	}
	seen := make(map[string]bool, len(m.Categories))
	for _, c := range m.Categories {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		c.DayCalculationType = c.DayCalculationType.Normalize()
		out.Categories = append(out.Categories, c)
	}
	seen = make(map[string]bool, len(m.Expenses))
	for _, e := range m.Expenses {
		if e.ID != "" && seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out.Expenses = append(out.Expenses, e)
	}
	out.Reconcile()
	return out
}

// Merge combines local and remote data last-write-wins per month: remote
// buckets replace local ones, local-only buckets stay and invalid keys on
// either side are dropped.
func Merge(local, remote core.ProjectData) core.ProjectData {
	merged, _ := merge(local, remote)
	return merged
}

func merge(local, remote core.ProjectData) (core.ProjectData, MergeReport) {
	var report MergeReport
	out := make(core.ProjectData, len(local)+len(remote))
	for _, key := range core.SortedMonthKeys(local) {
		if !core.ValidMonthKey(key) {
			report.Dropped = append(report.Dropped, key)
			continue
		}
		out[key] = local[key].Clone()
	}
	for _, key := range core.SortedMonthKeys(remote) {
		if !core.ValidMonthKey(key) {
			continue
		}
		if _, ok := out[key]; ok {
			report.Replaced = append(report.Replaced, key)
		} else {
			report.Added = append(report.Added, key)
		}
		out[key] = normalize(remote[key])
	}
	for _, key := range core.SortedMonthKeys(local) {
		if _, ok := remote[key]; !ok && core.ValidMonthKey(key) {
			report.Kept = append(report.Kept, key)
		}
	}
	return out, report
}

// ApplyRemote merges a remote snapshot into the store without scheduling a save.
func (s *Store) ApplyRemote(remote core.ProjectData) MergeReport {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	before, _ := Encode(s.st.months)
	merged, report := merge(s.st.months, remote)
	after, _ := Encode(merged)
	report.Changed = !bytes.Equal(before, after)
	s.st.months = merged

	if report.Changed {
		s.st.logger.Debug("Applied remote snapshot",
			applog.FieldOperation, applog.OpMerge,
			"replaced", len(report.Replaced),
			"added", len(report.Added),
			"kept", len(report.Kept))
	}
	return report
}

// Encode serialises project data canonically; map keys are sorted.
func Encode(data core.ProjectData) ([]byte, error) {
	if data == nil {
		data = core.ProjectData{}
	}
	return json.Marshal(data)
}
