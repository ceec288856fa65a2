package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/ledger"
)

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the ledger schema up to date",
		Long: `Run pending schema migrations. Opening the ledger migrates implicitly;
this command exists to migrate explicitly (for example before a
deploy) and to inspect the schema version without writing.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the schema version without migrating",
		Args:  cobra.NoArgs,
		RunE:  runMigrateStatus,
	}

	cmd.AddCommand(status)

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	// Opening the store runs every pending migration.
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	version, err := cc.Store.MigrationVersion()
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]int64{"version": version})
	}
	r.Success(fmt.Sprintf("Schema is up to date at version %d", version))
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	cc := NewCommandContextWithoutStore(cmd)
	r := cc.Renderer

	if _, err := os.Stat(cc.Cfg.Database); err != nil {
		return fmt.Errorf("ledger database %s does not exist yet", cc.Cfg.Database)
	}

	store, err := ledger.OpenReadOnly(cc.Cfg.Database, ledger.Options{})
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := store.MigrationVersion()
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]int64{"version": version})
	}
	r.Printf("Schema version: %d\n", version)
	return nil
}
