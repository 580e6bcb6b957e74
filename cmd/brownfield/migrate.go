package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacopone/brownkit-sub001/internal/orchestrator"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

var (
	migrateCheck    bool
	migrateRollback bool
	migrateForce    bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the state file to the current schema",
	Long: `Upgrade .brownfield/state.json to schema ` + types.CurrentSchemaVersion + `.
A backup is written next to the state file before anything changes.

  --check      only report whether a migration is needed
  --rollback   restore the backup of the last migration
  --force      with --rollback, restore even if the state changed since`,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkflow("brownfield migrate")
		opts := orchestrator.MigrateOptions{Check: migrateCheck, Rollback: migrateRollback, Force: migrateForce}
		if opts.Rollback {
			mustConfirm("Restore the state file from the last migration backup?")
		}

		r, err := w.Migrate(context.Background(), opts)
		if err != nil {
			exitError(err)
		}

		switch {
		case opts.Check && r.Needed:
			fmt.Printf("%s State needs migration to %s. Run 'brownfield migrate'.\n", yellow("⚠"), types.CurrentSchemaVersion)
		case opts.Check:
			fmt.Printf("%s State is at schema %s\n", green("✓"), types.CurrentSchemaVersion)
		case r.RolledBack:
			fmt.Printf("%s State restored from backup\n", green("✓"))
		case r.Result != nil && r.Result.Migrated():
			fmt.Printf("%s Migrated state %s → %s\n", green("✓"), r.Result.FromVersion, r.Result.ToVersion)
			for _, step := range r.Result.Applied {
				fmt.Printf("  %s %s\n", gray("•"), step)
			}
			fmt.Printf("  Backup: %s\n", r.Result.BackupPath)
		default:
			fmt.Printf("%s State already at schema %s\n", green("✓"), types.CurrentSchemaVersion)
		}
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateCheck, "check", false, "Only report whether a migration is needed")
	migrateCmd.Flags().BoolVar(&migrateRollback, "rollback", false, "Restore the pre-migration backup")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Roll back even if the state changed since the migration")
	migrateCmd.MarkFlagsMutuallyExclusive("check", "rollback")
	migrateCmd.MarkFlagsMutuallyExclusive("check", "force")
	rootCmd.AddCommand(migrateCmd)
}
