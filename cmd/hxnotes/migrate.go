package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hxnotes/internal/database"
	"hxnotes/internal/database/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Evolve the database schema in two steps: plan, then apply",
}

var migratePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Describe pending schema steps without applying them",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, closeDB, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		pending, err := m.Plan(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(pending) == 0 {
			fmt.Fprintln(out, "No changes detected.")
			return nil
		}
		fmt.Fprintf(out, "%d pending step(s):\n", len(pending))
		for _, s := range pending {
			fmt.Fprintf(out, "\n-- %s\n%s\n", s.Name, s.SQL)
		}
		return nil
	},
}

var migrateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending schema steps; a second run is a no-op",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, closeDB, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		n, err := m.Apply(cmd.Context())
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No migrations to apply.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d step(s).\n", n)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List applied and pending schema steps",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, closeDB, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		status, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tSTATE\tAPPLIED AT")
		for _, s := range status {
			state, at := "pending", "-"
			if s.Applied {
				state, at = "applied", s.AppliedAt.In(cfg.Location()).Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, state, at)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migratePlanCmd, migrateApplyCmd, migrateStatusCmd)
}

func openMigrator(cmd *cobra.Command) (*migration.Migrator, func(), error) {
	db, err := database.NewPostgres(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return migration.New(db, log, cfg.Database.Host), func() { _ = db.Close() }, nil
}
