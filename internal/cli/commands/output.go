package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/conduit-lang/trident/internal/cli/ui"
	"github.com/conduit-lang/trident/internal/orm/dumper"
	"github.com/conduit-lang/trident/internal/orm/resolver"
	"github.com/conduit-lang/trident/internal/payload"
	"github.com/spf13/cobra"
)

// dumpFlags are the dump options shared by fetch, dump and copy
type dumpFlags struct {
	include []string
	only    []string
	exclude []string
	format  string
}

func (f *dumpFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.include, "include", "i", nil, "Relationships to expand, as dotted paths (operations.field_values)")
	cmd.Flags().StringSliceVar(&f.only, "only", nil, "Dump just these fields")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Fields to leave out")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format: json, yaml or cbor (default: dump.format)")
}

func (f *dumpFlags) options() (dumper.Options, error) {
	include, err := dumper.ParsePaths(f.include...)
	if err != nil {
		return dumper.Options{}, err
	}
	return dumper.Options{Only: f.only, Exclude: f.exclude, Include: include}, nil
}

func (f *dumpFlags) outputFormat(env *environment) (payload.Format, error) {
	name := f.format
	if name == "" {
		name = env.cfg.Dump.Format
	}
	return payload.ParseFormat(name)
}

// write encodes v to the command output
func write(cmd *cobra.Command, format payload.Format, v interface{}) error {
	data, err := payload.MarshalIndent(format, v)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(data); err != nil {
		return err
	}
	if format == payload.JSON {
		_, err = fmt.Fprintln(out)
	}
	return err
}

// readPayload reads a payload file, or standard input when path is "-"
func readPayload(cmd *cobra.Command, path string, fallback payload.Format) (interface{}, error) {
	var (
		data   []byte
		err    error
		format = fallback
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		if format, err = payload.FormatFromPath(path); err != nil {
			return nil, err
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return payload.Unmarshal(format, data)
}

// reportDumpError explains unknown relationships before returning err
func reportDumpError(cmd *cobra.Command, err error) error {
	var unknown *resolver.UnknownAttributeError
	if errors.As(err, &unknown) {
		ui.UnknownRelationship(unknown.Model, unknown.Name, unknown.Relationships, noColor).Write(cmd.ErrOrStderr())
	}
	return err
}

// parseQuery turns key=value arguments into a where query. Repeated keys
// match any of their values.
func parseQuery(pairs []string) (map[string]interface{}, error) {
	query := make(map[string]interface{})
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query %q, expected key=value", pair)
		}
		v := scalar(value)
		switch prev := query[key].(type) {
		case nil:
			query[key] = v
		case []interface{}:
			query[key] = append(prev, v)
		default:
			query[key] = []interface{}{prev, v}
		}
	}
	return query, nil
}

// scalar reads a command-line value, keeping integers numeric
func scalar(s string) interface{} {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
