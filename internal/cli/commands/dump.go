package commands

import (
	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/conduit-lang/trident/internal/payload"
	"github.com/spf13/cobra"
)

var (
	dumpOpts  dumpFlags
	dumpInput string
)

// NewDumpCommand creates the dump command
func NewDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <model> <file>",
		Short: "Load a payload file as records and dump it",
		Long: `Load a JSON, YAML or CBOR payload holding one record or a list of
records. Relationships present in the payload are used as loaded; the
others named by --include are resolved through the configured session.
Use "-" to read standard input.`,
		Args: cobra.ExactArgs(2),
		RunE: runDump,
	}

	dumpOpts.bind(cmd)
	cmd.Flags().StringVar(&dumpInput, "input-format", "json", "Format of standard input")

	return cmd
}

func runDump(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	t, err := env.model(cmd, args[0])
	if err != nil {
		return err
	}
	recs, single, err := loadPayload(cmd, env, t.Name, args[1], dumpInput)
	if err != nil {
		return err
	}
	opts, err := dumpOpts.options()
	if err != nil {
		return err
	}
	format, err := dumpOpts.outputFormat(env)
	if err != nil {
		return err
	}

	out, err := env.dumper.DumpMany(cmd.Context(), recs, opts)
	if err != nil {
		return reportDumpError(cmd, err)
	}
	if single {
		return write(cmd, format, out[0])
	}
	return write(cmd, format, out)
}

// loadPayload loads the records of a payload file. single reports whether
// the payload held one record rather than a list.
func loadPayload(cmd *cobra.Command, env *environment, model, path, input string) (recs []*record.Record, single bool, err error) {
	fallback, err := payload.ParseFormat(input)
	if err != nil {
		return nil, false, err
	}
	raw, err := readPayload(cmd, path, fallback)
	if err != nil {
		return nil, false, err
	}

	loader := env.resolver.Loader()
	if _, ok := raw.([]interface{}); ok {
		recs, err = loader.LoadMany(model, raw)
		return recs, false, err
	}
	rec, err := loader.Load(model, raw)
	if err != nil {
		return nil, false, err
	}
	return []*record.Record{rec}, true, nil
}
