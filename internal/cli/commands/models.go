package commands

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/trident/internal/cli/ui"
	"github.com/conduit-lang/trident/internal/models"
	"github.com/conduit-lang/trident/internal/server"
	"github.com/spf13/cobra"
)

// NewModelsCommand creates the models command
func NewModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models [model]",
		Short: "List the declared model types",
		Long:  "List every declared model type, or show the fields and relationships of one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runModels,
	}
}

func runModels(cmd *cobra.Command, args []string) error {
	registry, err := models.NewRegistry()
	if err != nil {
		return err
	}
	infos := server.Describe(registry)
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		table := ui.NewTable(noColor, "MODEL", "FIELDS", "RELATIONSHIPS")
		for _, info := range infos {
			rels := make([]string, len(info.Relationships))
			for i, rel := range info.Relationships {
				rels[i] = rel.Name
			}
			table.AddRow(info.Name, fmt.Sprint(len(info.Fields)), strings.Join(rels, ", "))
		}
		table.Render(out)
		return nil
	}

	for _, info := range infos {
		if info.Name != args[0] {
			continue
		}

		ui.Header(out, info.Name, noColor)
		kv := ui.NewKeyValueTable(noColor)
		kv.AddRow("fields", strings.Join(info.Fields, ", "))
		kv.AddRow("load all", fmt.Sprint(info.LoadAll))
		kv.Render(out)
		fmt.Fprintln(out)

		table := ui.NewTable(noColor, "RELATIONSHIP", "TARGET", "CARDINALITY", "KIND")
		for _, rel := range info.Relationships {
			table.AddRow(rel.Name, rel.Target, rel.Cardinality, rel.Kind)
		}
		table.Render(out)
		return nil
	}

	ui.UnknownModel(args[0], registry.List(), noColor).Write(cmd.ErrOrStderr())
	return fmt.Errorf("unknown model %s", args[0])
}
