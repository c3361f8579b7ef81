package commands

import (
	"github.com/conduit-lang/trident/internal/orm/copier"
	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/spf13/cobra"
)

var (
	copyOpts  dumpFlags
	copyInput string
)

// NewCopyCommand creates the copy command
func NewCopyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy <model> <file>",
		Short: "Make an anonymous copy of a record graph",
		Long: `Load a payload file, resolve the relationships named by --include, and
dump a copy of the whole graph with every persisted id cleared. Records
shared within the graph stay shared in the copy.

Example:
  trident copy Plan plan.json --include operations.field_values.wires`,
		Args: cobra.ExactArgs(2),
		RunE: runCopy,
	}

	copyOpts.bind(cmd)
	cmd.Flags().StringVar(&copyInput, "input-format", "json", "Format of standard input")

	return cmd
}

func runCopy(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	t, err := env.model(cmd, args[0])
	if err != nil {
		return err
	}
	recs, single, err := loadPayload(cmd, env, t.Name, args[1], copyInput)
	if err != nil {
		return err
	}
	opts, err := copyOpts.options()
	if err != nil {
		return err
	}
	format, err := copyOpts.outputFormat(env)
	if err != nil {
		return err
	}

	// resolves everything the copy should reach
	ctx := cmd.Context()
	if _, err := env.dumper.DumpMany(ctx, recs, opts); err != nil {
		return reportDumpError(cmd, err)
	}

	c := copier.New(copier.WithLogger(env.logger))
	copies := make([]*record.Record, len(recs))
	for i, rec := range recs {
		if copies[i], err = c.Copy(rec); err != nil {
			return err
		}
	}

	out, err := env.dumper.DumpMany(ctx, copies, opts)
	if err != nil {
		return err
	}
	if single {
		return write(cmd, format, out[0])
	}
	return write(cmd, format, out)
}
