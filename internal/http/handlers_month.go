package http

import (
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/monthly"
)

type (
	monthResponse struct {
		Month      string          `json:"month"`
		Categories []core.Category `json:"categories"`
		Expenses   []core.Expense  `json:"expenses"`
	}

	monthsResponse struct {
		Months  []string `json:"months"`
		Current string   `json:"current"`
	}
)

func newMonthResponse(key string, m core.MonthlyData) monthResponse {
	return monthResponse{Month: key, Categories: m.Categories, Expenses: m.Expenses}
}

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(monthsResponse{
		Months:  op.Store.AvailableMonths(),
		Current: core.MonthKey(s.now()),
	}).Write(w)
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(newMonthResponse(key, op.Store.Month(key))).Write(w)
}

func (s *Server) handleSetMonth(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var data core.MonthlyData
	if err := decodeJSON(w, r, &data); err != nil {
		s.writeError(w, r, err)
		return
	}
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	if err := op.Store.SetMonth(key, data); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newMonthResponse(key, op.Store.Month(key))).Write(w)
}

// handleCopyCategories seeds the month with another month's categories,
// the previous month unless ?from= names one.
func (s *Server) handleCopyCategories(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	from, err := optionalMonth(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if from == "" {
		if from, err = core.ShiftMonthKey(key, -1); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	copied, err := op.Store.CopyCategories(from, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]any{
		"from":       from,
		"month":      key,
		"categories": copied,
	}).Write(w)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in monthly.NewExpense
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.Description = sanitizeInput(in.Description)
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	e, err := op.Store.AddExpense(key, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(e).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var upd monthly.ExpenseUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	upd.Description = sanitizePtr(upd.Description)
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	e, err := op.Store.UpdateExpense(key, r.PathValue("expenseId"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	if err := op.Store.DeleteExpense(key, r.PathValue("expenseId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in monthly.NewCategory
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.Name = sanitizeInput(in.Name)
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	c, err := op.Store.AddCategory(key, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(c).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var upd monthly.CategoryUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	upd.Name = sanitizePtr(upd.Name)
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	c, err := op.Store.UpdateCategory(key, r.PathValue("categoryId"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(c).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	op, ok := s.open(w, r)
	if !ok {
		return
	}
	if err := op.Store.DeleteCategory(key, r.PathValue("categoryId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}
