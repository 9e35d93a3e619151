package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thomasfsr/gymlog/src/importer"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openGateway(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			db.Close()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", a.cfg.DB.Driver)
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a workout history export for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			return runImport(cmd, a, userID, args[0])
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id (the WhatsApp number for WhatsApp users)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runImport(cmd *cobra.Command, a *app, userID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := importer.Parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	ctx := cmd.Context()
	db, err := openGateway(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := res.Save(ctx, db, userID)
	if err != nil {
		return err
	}
	a.log.Info().Int64("user_id", userID).Str("file", path).Int("workouts", stats.Workouts).Msg("import finished")
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d workouts, %d sets, %d new exercises (%d rows skipped)\n",
		stats.Workouts, stats.Sets, stats.Exercises, res.Dropped)
	return nil
}
