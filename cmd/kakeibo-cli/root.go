package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kakeibo/internal/cli"
	"kakeibo/internal/core"
	applog "kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

var (
	flagDB    string
	flagUser  string
	flagToken string

	shareBaseURL string
)

var rootCmd = &cobra.Command{
	Use:           "kakeibo-cli",
	Short:         "Monthly budget tracker CLI",
	Long:          "Inspect budget projects, analyse months and manage share links from the terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cli.LoadEnvFile()
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		cli.SetupLogger(cfg.LogLevel, applog.ComponentCLI)
		if !cmd.Flags().Changed("db") {
			flagDB = cfg.SQLiteDBPath
		}
		shareBaseURL = cfg.ShareBaseURL
		return nil
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "  Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (default SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", os.Getenv("KAKEIBO_USER"), "Identity to act as (default KAKEIBO_USER)")
	rootCmd.PersistentFlags().StringVarP(&flagToken, "token", "t", "", "Share token for projects owned by someone else")
}

// session bundles what every command needs to read projects.
type session struct {
	repo     *storage.SQLiteRepository
	projects *services.ProjectService
}

// openSession opens the SQLite store. Month data is read only; no sync
// processor runs in the CLI.
func openSession() (*session, error) {
	repo, err := storage.NewSQLiteRepository(flagDB)
	if err != nil {
		return nil, err
	}
	return &session{
		repo:     repo,
		projects: services.NewProjectService(repo, nil, services.ProjectServiceOptions{ShareBaseURL: shareBaseURL}),
	}, nil
}

func (s *session) Close() {
	_ = s.repo.Close()
}

func (s *session) open(ctx context.Context, projectID string) (services.OpenedProject, error) {
	return s.projects.Open(ctx, flagUser, projectID, flagToken)
}

func requireUser() error {
	if flagUser == "" {
		return fmt.Errorf("no identity: pass --user or set KAKEIBO_USER")
	}
	return nil
}

// monthArg returns args[i] when present, else the current month.
func monthArg(args []string, i int) (string, error) {
	if len(args) <= i {
		return core.MonthKey(time.Now()), nil
	}
	if !core.ValidMonthKey(args[i]) {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidKey, args[i])
	}
	return args[i], nil
}
