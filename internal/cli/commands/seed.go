package commands

import (
	"fmt"

	"github.com/conduit-lang/trident/internal/cli/ui"
	"github.com/conduit-lang/trident/internal/session"
	"github.com/spf13/cobra"
)

// NewSeedCommand creates the seed command
func NewSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>...",
		Short: "Store fixture files in the session store",
		Long: `Store every record of the given fixture files (a map from model name to
a list of records, as JSON or YAML) in the configured session store.
With the sqlite3 or postgres driver the records persist for later runs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSeed,
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	total := 0
	for _, path := range args {
		n, err := session.LoadFixtureFile(cmd.Context(), env.store, path)
		total += n
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("stored %d records in the %s session", total, env.cfg.Session.Driver), noColor))
	return nil
}
