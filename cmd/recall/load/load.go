// Package loadcmder provides the load command for printing a saved memory.
package loadcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apisearch "github.com/papercomputeco/recall/api/search"
	"github.com/papercomputeco/recall/cmd/recall/bootstrap"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
)

type loadCommander struct {
	flags config.EngineFlagValues

	specFolder string
	anchorID   string
	memoryID   int64
	jsonOut    bool
	raw        bool
	configDir  string

	out    io.Writer
	v      *viper.Viper
	logger *slog.Logger
}

const loadLongDesc string = `Print a saved memory.

Loads the most recent memory of a spec folder, or one memory by id. With
--anchor only the marked section is printed:

  <!-- ANCHOR:decisions -->
  ...
  <!-- /ANCHOR:decisions -->

Examples:
  recall load --spec-folder specs/001
  recall load --spec-folder specs/001 --anchor decisions
  recall load --id 42 --raw`

const loadShortDesc string = "Print a saved memory"

func NewLoadCmd() *cobra.Command {
	cmder := &loadCommander{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: loadShortDesc,
		Long:  loadLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bootstrap.Viper(cmd, config.EngineFlags, config.EngineFlagKeys)
			if err != nil {
				return err
			}
			cmder.v = v
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			cmder.logger = bootstrap.Logger(cmd)
			return cmder.run(cmd)
		},
	}

	config.AddEngineFlags(cmd, &cmder.flags)
	cmd.Flags().StringVarP(&cmder.specFolder, "spec-folder", "f", "", "Load the most recent memory of this spec folder")
	cmd.Flags().StringVar(&cmder.anchorID, "anchor", "", "Print only this anchor section")
	cmd.Flags().Int64Var(&cmder.memoryID, "id", 0, "Load a memory by id")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print only the content")
	cmd.MarkFlagsMutuallyExclusive("spec-folder", "id")
	cmd.MarkFlagsOneRequired("spec-folder", "id")

	return cmd
}

func (c *loadCommander) run(cmd *cobra.Command) error {
	eng, err := bootstrap.Open(c.v, bootstrap.Options{ConfigDir: c.configDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := apisearch.Load(cmd.Context(), eng, apisearch.LoadInput{
		SpecFolder: c.specFolder,
		AnchorID:   c.anchorID,
		MemoryID:   c.memoryID,
	})
	if err != nil {
		return err
	}

	switch {
	case c.jsonOut:
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case c.raw:
		fmt.Fprintln(c.out, result.Content)
		return nil
	}

	fmt.Fprintf(c.out, "\n  %s %s\n",
		cliui.IDStyle.Render(fmt.Sprintf("#%d", result.ID)),
		cliui.HeaderStyle.Render(result.Title),
	)
	fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(result.SpecFolder+"  "+result.FilePath))
	if result.Anchor != "" {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("anchor:"), cliui.ValueStyle.Render(result.Anchor))
	}
	fmt.Fprintf(c.out, "\n%s\n\n", result.Content)
	return nil
}
