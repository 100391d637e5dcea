package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kakeibo/internal/cli"
	"kakeibo/internal/compare"
	"kakeibo/internal/core"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List your projects",
	RunE:  runProjects,
}

var monthsCmd = &cobra.Command{
	Use:   "months <project-id>",
	Short: "Month totals of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonths,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(monthsCmd)
}

func runProjects(cmd *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	projects, err := s.projects.ListProjects(cmd.Context(), flagUser)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("\n  No projects found.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("PROJECTS"))
	fmt.Println()

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			p.ID,
			cli.Truncate(p.Name, 24),
			sharedLabel(p),
			p.LastModified.Format(core.DateLayout),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"ID", "Name", "Shared", "Modified"},
		Rows:    rows,
	}))
	return nil
}

func sharedLabel(p core.Project) string {
	switch {
	case !p.IsShared:
		return "no"
	case p.AllowEdit:
		return "edit"
	default:
		return "view"
	}
}

func runMonths(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	op, err := s.open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	months := op.Store.AvailableMonths()
	if len(months) == 0 {
		fmt.Println("\n  No months recorded.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(op.Project.Name))
	fmt.Println()

	rows := make([][]string, 0, len(months))
	for _, key := range months {
		st := compare.Stats(op.Store.Month(key))
		rows = append(rows, []string{
			key,
			strconv.Itoa(st.CategoryCount),
			strconv.Itoa(st.ExpenseCount),
			cli.FormatYen(st.TotalBudget),
			cli.FormatYen(st.TotalSpent),
			cli.FormatPercent(st.UtilizationRate),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Month", "Categories", "Expenses", "Budget", "Spent", "Used"},
		Rows:    rows,
	}))
	return nil
}
