package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kakeibo/internal/analytics"
	"kakeibo/internal/cli"
	"kakeibo/internal/compare"
	"kakeibo/internal/core"
)

var flagDate string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <project-id> [YYYY-MM]",
	Short: "Budget analysis of a month",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAnalyze,
}

var compareCmd = &cobra.Command{
	Use:   "compare <project-id> [YYYY-MM] [YYYY-MM]",
	Short: "Compare a month with another one",
	Args:  cobra.RangeArgs(1, 3),
	RunE:  runCompare,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagDate, "date", "", "Reference date YYYY-MM-DD (default: the month's natural date)")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(compareCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	month, err := monthArg(args, 1)
	if err != nil {
		return err
	}
	ref, err := referenceDate(month)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()
	op, err := s.open(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	ins := analytics.Summarize(op.Store.Month(month), ref)
	b := ins.Budget

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("%s  %s", op.Project.Name, month)))
	fmt.Println()

	projected := "not projected"
	if b.ProjectedEndDate != nil {
		projected = *b.ProjectedEndDate
	}
	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Reference date", ins.Reference},
		{"Budget", cli.FormatYen(b.TotalBudget)},
		{"Spent", cli.FormatYen(b.TotalSpent)},
		{"Remaining", cli.FormatYen(b.TotalRemaining)},
		{"Days remaining", fmt.Sprintf("%d", b.DaysRemaining)},
		{"Daily allowance", cli.FormatYenFloat(b.DailyAverage)},
		{"Actual daily spend", cli.FormatYenFloat(b.ActualDailySpending)},
		{"Burn rate", cli.FormatPercent(b.BurnRate)},
		{"Budget runs out", projected},
		{"Savings rate", cli.FormatPercent(b.SavingsRate)},
		{"Trend", string(ins.Pattern.SpendingTrend)},
	}))
	fmt.Println()

	if len(ins.Categories) > 0 {
		rows := make([][]string, 0, len(ins.Categories))
		for _, c := range ins.Categories {
			rows = append(rows, []string{
				cli.Truncate(c.Icon+" "+c.Name, 22),
				cli.FormatYen(c.Budget),
				cli.FormatYen(c.Spent),
				cli.FormatYen(c.Remaining),
				fmt.Sprintf("%d", c.DaysRemaining),
				cli.FormatYenFloat(c.DailyAverage),
				cli.RenderLevel(string(c.RiskLevel)),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Categories",
			Headers: []string{"Category", "Budget", "Spent", "Left", "Days", "Per day", "Risk"},
			Rows:    rows,
		}))
		fmt.Println()
	}

	for _, c := range ins.Categories {
		fmt.Printf("  %s %s\n", c.Name+":", cli.RenderMuted(c.Recommendation))
	}
	for _, r := range ins.Recommendations {
		fmt.Printf("  %s %s %s -> %s  %s\n", cli.RenderLevel(string(r.Type)), r.CategoryID,
			cli.FormatYen(r.CurrentAmount), cli.FormatYen(r.SuggestedAmount), cli.RenderMuted(r.Reason))
	}
	return nil
}

func referenceDate(month string) (time.Time, error) {
	if flagDate != "" {
		return core.ParseDate(flagDate)
	}
	return analytics.ReferenceDate(month, time.Now())
}

func runCompare(cmd *cobra.Command, args []string) error {
	month, err := monthArg(args, 1)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()
	op, err := s.open(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	with := compare.DefaultCompareMonth(op.Store.AvailableMonths(), month)
	if len(args) == 3 {
		if with, err = monthArg(args, 2); err != nil {
			return err
		}
	}
	res := compare.CompareMonths(op.Store.Month(month), op.Store.Month(with))

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("%s  vs  %s", month, with)))
	fmt.Println()
	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Spent", fmt.Sprintf("%s vs %s (%s)", cli.FormatYen(res.Current.TotalSpent), cli.FormatYen(res.Compare.TotalSpent), cli.FormatChange(res.SpentChangePercent))},
		{"Budget", fmt.Sprintf("%s vs %s (%s)", cli.FormatYen(res.Current.TotalBudget), cli.FormatYen(res.Compare.TotalBudget), cli.FormatChange(res.BudgetChangePercent))},
		{"Utilization", fmt.Sprintf("%s vs %s", cli.FormatPercent(res.Current.UtilizationRate), cli.FormatPercent(res.Compare.UtilizationRate))},
	}))
	fmt.Println()

	if len(res.Categories) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(res.Categories))
	for _, c := range res.Categories {
		rows = append(rows, []string{
			cli.Truncate(c.Icon+" "+c.Name, 22),
			cli.FormatYen(c.CurrentSpent),
			cli.FormatYen(c.CompareSpent),
			cli.FormatYen(c.Change),
			cli.FormatChange(c.ChangePercent),
			cli.RenderLevel(string(c.Trend)),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Category", month, with, "Change", "%", "Trend"},
		Rows:    rows,
	}))
	return nil
}
