package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	fetchFlags dumpFlags
	fetchWhere []string
)

// NewFetchCommand creates the fetch command
func NewFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <model> [id]",
		Short: "Fetch records through the session and dump them",
		Long: `Fetch one record by id, or every record matching --where, from the
configured session. Relationships named by --include are resolved lazily
through the same session before dumping.

Examples:
  trident fetch Plan 1 --include operations.field_values,wires
  trident fetch Operation --where status=pending --format yaml`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runFetch,
	}

	fetchFlags.bind(cmd)
	cmd.Flags().StringArrayVarP(&fetchWhere, "where", "w", nil, "Match records by key=value (repeatable)")

	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	t, err := env.model(cmd, args[0])
	if err != nil {
		return err
	}
	opts, err := fetchFlags.options()
	if err != nil {
		return err
	}
	format, err := fetchFlags.outputFormat(env)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	loader := env.resolver.Loader()

	if len(args) == 2 {
		raw, err := env.store.Find(ctx, t.Name, scalar(args[1]))
		if err != nil {
			return err
		}
		if raw == nil {
			return fmt.Errorf("%s %s not found", t.Name, args[1])
		}
		rec, err := loader.Load(t.Name, raw)
		if err != nil {
			return err
		}
		out, err := env.dumper.Dump(ctx, rec, opts)
		if err != nil {
			return reportDumpError(cmd, err)
		}
		return write(cmd, format, out)
	}

	query, err := parseQuery(fetchWhere)
	if err != nil {
		return err
	}
	raw, err := env.store.Where(ctx, t.Name, query)
	if err != nil {
		return err
	}
	recs, err := loader.LoadMany(t.Name, raw)
	if err != nil {
		return err
	}
	out, err := env.dumper.DumpMany(ctx, recs, opts)
	if err != nil {
		return reportDumpError(cmd, err)
	}
	return write(cmd, format, out)
}
