// Package monthly owns a project's month buckets and keeps every category's
// spent total equal to the sum of its expenses.
package monthly

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kakeibo/internal/core"
	applog "kakeibo/internal/log"
)

// Persister receives a snapshot after every successful mutation.
type Persister interface {
	Schedule(projectID string, data core.ProjectData)
}

type (
	NewExpense struct {
		CategoryID  string `json:"categoryId"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
		Date        string `json:"date"`
	}

	// ExpenseUpdate changes the non-nil fields. The category is fixed for the
	// lifetime of an expense.
	ExpenseUpdate struct {
		Amount      *int64  `json:"amount,omitempty"`
		Description *string `json:"description,omitempty"`
		Date        *string `json:"date,omitempty"`
	}

	NewCategory struct {
		Name               string                  `json:"name"`
		Budget             int64                   `json:"budget"`
		Icon               string                  `json:"icon"`
		DayCalculationType core.DayCalculationType `json:"dayCalculationType"`
	}

	// CategoryUpdate changes the non-nil fields. Spent is derived and cannot be set.
	CategoryUpdate struct {
		Name               *string                  `json:"name,omitempty"`
		Budget             *int64                   `json:"budget,omitempty"`
		Icon               *string                  `json:"icon,omitempty"`
		DayCalculationType *core.DayCalculationType `json:"dayCalculationType,omitempty"`
	}

	Options struct {
		ProjectID string
		IDFunc    func() string
		Persister Persister
		ReadOnly  bool
		Now       func() time.Time
		Logger    *slog.Logger
	}
)

type state struct {
	mu        sync.Mutex
	projectID string
	months    core.ProjectData
	newID     func() string
	persister Persister
	logger    *slog.Logger
	closed    atomic.Bool
}

// Store is a handle on a project's month data. Handles created with
// ReadOnlyView share the data but reject mutations.
type Store struct {
	st       *state
	readOnly bool
	current  string
}

// New builds a store from already validated data. Invalid keys are dropped.
func New(data core.ProjectData, opts Options) *Store {
	if opts.IDFunc == nil {
		opts.IDFunc = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	st := &state{
		projectID: opts.ProjectID,
		months:    make(core.ProjectData, len(data)),
		newID:     opts.IDFunc,
		persister: opts.Persister,
		logger:    opts.Logger.With(applog.FieldComponent, applog.ComponentStore, applog.FieldProjectID, opts.ProjectID),
	}
	for key, m := range data {
		if !core.ValidMonthKey(key) {
			st.logger.Warn("Dropping invalid month key", applog.FieldMonth, key)
			continue
		}
		st.months[key] = normalize(m)
	}

	return &Store{
		st:       st,
		readOnly: opts.ReadOnly,
		current:  core.MonthKey(opts.Now()),
	}
}

func (s *Store) ProjectID() string {
	return s.st.projectID
}

func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Close ends persistence for the project. Every handle on the data, views
// included, then rejects mutations with ErrProjectNotFound.
func (s *Store) Close() {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.closed.Store(true)
}

func (s *Store) Closed() bool {
	return s.st.closed.Load()
}

// ReadOnlyView returns a handle on the same data that rejects every mutation.
func (s *Store) ReadOnlyView() *Store {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return &Store{st: s.st, readOnly: true, current: s.current}
}

// Month returns a copy of the month, or an empty month when absent.
func (s *Store) Month(key string) core.MonthlyData {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.months[key].Clone()
}

// SetMonth replaces a whole month. Spent totals are recomputed from the expenses.
func (s *Store) SetMonth(key string, data core.MonthlyData) error {
	if !core.ValidMonthKey(key) {
		return fmt.Errorf("set month: %w: %q", core.ErrInvalidKey, key)
	}
	if err := s.writable(); err != nil {
		return err
	}
	data = normalize(data)
	for i := range data.Expenses {
		if data.Expenses[i].ID == "" {
			data.Expenses[i].ID = s.st.newID()
		}
	}
	if err := validateMonth(data); err != nil {
		return fmt.Errorf("set month %s: %w", key, err)
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.months[key] = data
	s.st.persist()
	return nil
}

func (s *Store) CurrentMonth() string {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.current
}

// SelectMonth moves the cursor. An editable store creates an empty bucket for
// a month it has not seen yet.
func (s *Store) SelectMonth(key string) error {
	if !core.ValidMonthKey(key) {
		return fmt.Errorf("select month: %w: %q", core.ErrInvalidKey, key)
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.current = key
	if _, ok := s.st.months[key]; !ok && !s.readOnly && !s.st.closed.Load() {
		s.st.months[key] = core.MonthlyData{}.Clone()
		s.st.persist()
	}
	return nil
}

// AvailableMonths lists the stored month keys in ascending order.
func (s *Store) AvailableMonths() []string {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return core.SortedMonthKeys(s.st.months)
}

// Snapshot returns a deep copy of all months.
func (s *Store) Snapshot() core.ProjectData {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.months.Clone()
}

// AddExpense appends an expense and adds its amount to the category in one step.
func (s *Store) AddExpense(month string, in NewExpense) (core.Expense, error) {
	if err := s.checkMutation(month); err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Date:        strings.TrimSpace(in.Date),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m := s.st.months[month]
	ci := m.CategoryIndex(e.CategoryID)
	if ci < 0 {
		return core.Expense{}, fmt.Errorf("add expense: %w: %s", core.ErrCategoryNotFound, e.CategoryID)
	}
	m = m.Clone()
	e.ID = s.st.newID()
	m.Expenses = append(m.Expenses, e)
	m.Categories[ci].Spent += e.Amount
	s.st.months[month] = m

	s.st.logger.Debug("Expense added", applog.NewFields().WithProject(s.st.projectID, month).WithExpense(e.ID, e.CategoryID, e.Amount).ToSlice()...)
	s.st.persist()
	return e, nil
}

// UpdateExpense applies the update and moves the amount delta onto the owning category.
func (s *Store) UpdateExpense(month, id string, upd ExpenseUpdate) (core.Expense, error) {
	if err := s.checkMutation(month); err != nil {
		return core.Expense{}, err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m := s.st.months[month]
	ei := m.ExpenseIndex(id)
	if ei < 0 {
		return core.Expense{}, fmt.Errorf("update expense: %w: %s", core.ErrExpenseNotFound, id)
	}

	old := m.Expenses[ei]
	e := old
	if upd.Amount != nil {
		e.Amount = *upd.Amount
	}
	if upd.Description != nil {
		e.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Date != nil {
		e.Date = strings.TrimSpace(*upd.Date)
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	m = m.Clone()
	m.Expenses[ei] = e
	if ci := m.CategoryIndex(e.CategoryID); ci >= 0 {
		m.Categories[ci].Spent += e.Amount - old.Amount
	}
	s.st.months[month] = m
	s.st.persist()
	return e, nil
}

// DeleteExpense removes the expense and subtracts its amount. Deleting an
// absent expense is a no-op.
func (s *Store) DeleteExpense(month, id string) error {
	if err := s.checkMutation(month); err != nil {
		return err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m := s.st.months[month]
	ei := m.ExpenseIndex(id)
	if ei < 0 {
		return nil
	}
	e := m.Expenses[ei]
	m = m.Clone()
	m.Expenses = slices.Delete(m.Expenses, ei, ei+1)
	if ci := m.CategoryIndex(e.CategoryID); ci >= 0 {
		m.Categories[ci].Spent -= e.Amount
	}
	s.st.months[month] = m
	s.st.persist()
	return nil
}

func (s *Store) AddCategory(month string, in NewCategory) (core.Category, error) {
	if err := s.checkMutation(month); err != nil {
		return core.Category{}, err
	}
	c := core.Category{
		Name:               strings.TrimSpace(in.Name),
		Budget:             in.Budget,
		Icon:               in.Icon,
		DayCalculationType: in.DayCalculationType.Normalize(),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m := s.st.months[month].Clone()
	c.ID = s.st.newID()
	m.Categories = append(m.Categories, c)
	s.st.months[month] = m
	s.st.persist()
	return c, nil
}

func (s *Store) UpdateCategory(month, id string, upd CategoryUpdate) (core.Category, error) {
	if err := s.checkMutation(month); err != nil {
		return core.Category{}, err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m := s.st.months[month]
	ci := m.CategoryIndex(id)
	if ci < 0 {
		return core.Category{}, fmt.Errorf("update category: %w: %s", core.ErrCategoryNotFound, id)
	}

	c := m.Categories[ci]
	if upd.Name != nil {
		c.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Budget != nil {
		c.Budget = *upd.Budget
	}
	if upd.Icon != nil {
		c.Icon = *upd.Icon
	}
	if upd.DayCalculationType != nil {
		c.DayCalculationType = upd.DayCalculationType.Normalize()
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	m = m.Clone()
	m.Categories[ci] = c
	s.st.months[month] = m
	s.st.persist()
	return c, nil
}

// DeleteCategory removes the category together with all of its expenses.
// Deleting an absent category is a no-op.
func (s *Store) DeleteCategory(month, id string) error {
	if err := s.checkMutation(month); err != nil {
		return err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m := s.st.months[month]
	ci := m.CategoryIndex(id)
	if ci < 0 {
		return nil
	}
	m = m.Clone()
	m.Categories = slices.Delete(m.Categories, ci, ci+1)
	m.Expenses = slices.DeleteFunc(m.Expenses, func(e core.Expense) bool { return e.CategoryID == id })
	s.st.months[month] = m
	s.st.persist()
	return nil
}

// CopyCategories seeds month to with the categories of month from. Names
// already present in to are skipped; copies get fresh ids and zero spent.
func (s *Store) CopyCategories(from, to string) ([]core.Category, error) {
	if !core.ValidMonthKey(from) {
		return nil, fmt.Errorf("copy categories: %w: %q", core.ErrInvalidKey, from)
	}
	if err := s.checkMutation(to); err != nil {
		return nil, err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	src := s.st.months[from]
	dst := s.st.months[to].Clone()
	existing := make(map[string]bool, len(dst.Categories))
	for _, c := range dst.Categories {
		existing[c.Name] = true
	}

	added := make([]core.Category, 0, len(src.Categories))
	for _, c := range src.Categories {
		if existing[c.Name] {
			continue
		}
		c.ID = s.st.newID()
		c.Spent = 0
		existing[c.Name] = true
		dst.Categories = append(dst.Categories, c)
		added = append(added, c)
	}
	if len(added) == 0 {
		return added, nil
	}
	s.st.months[to] = dst
	s.st.persist()
	return added, nil
}

func (s *Store) checkMutation(month string) error {
	if !core.ValidMonthKey(month) {
		return fmt.Errorf("%w: %q", core.ErrInvalidKey, month)
	}
	return s.writable()
}

func (s *Store) writable() error {
	if s.st.closed.Load() {
		return core.ErrProjectNotFound
	}
	if s.readOnly {
		return core.ErrReadOnly
	}
	return nil
}

// persist hands a snapshot to the persister. Callers hold mu so snapshots
// reach the persister in mutation order. A closed store persists nothing.
func (st *state) persist() {
	if st.persister == nil || st.closed.Load() {
		return
	}
	st.persister.Schedule(st.projectID, st.months.Clone())
}

func validateMonth(m core.MonthlyData) error {
	ids := make(map[string]bool, len(m.Categories))
	for _, c := range m.Categories {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("category %s: %w", c.ID, err)
		}
		ids[c.ID] = true
	}
	for _, e := range m.Expenses {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("expense %s: %w", e.ID, err)
		}
		if !ids[e.CategoryID] {
			return fmt.Errorf("expense %s: %w: %s", e.ID, core.ErrCategoryNotFound, e.CategoryID)
		}
	}
	return nil
}
