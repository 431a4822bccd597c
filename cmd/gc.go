package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/config"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store/sqldb"
)

// gcCmd runs one artifact sweep and exits. The server also sweeps on its
// cron schedule; this exists for operators and cleanup jobs.
func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Run one artifact garbage-collection sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			db, err := sqldb.Open(cfg.Database.PostgresDSN, cfg.Database.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()

			art, err := artifacts.New(cfg.Outputs.Dir, db)
			if err != nil {
				return err
			}
			if err := artifacts.NewGC(art, cfg.Outputs.TTL, cfg.Outputs.GCSchedule).Sweep(context.Background()); err != nil {
				slog.Error("gc.sweep_failed", "error", err)
				os.Exit(1)
			}
			return nil
		},
	}
}
