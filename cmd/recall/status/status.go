// Package statuscmder provides the status command for displaying the state of
// the memory index.
package statuscmder

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/cmd/recall/bootstrap"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
)

type statusCommander struct {
	flags config.EngineFlagValues

	jsonOut   bool
	configDir string

	out    io.Writer
	v      *viper.Viper
	logger *slog.Logger
}

const statusLongDesc string = `Show the state of the memory index.

Prints where the index lives, how many memories it holds, how many are still
waiting for an embedding, and whether vector search is available.

Examples:
  recall status
  recall status --json`

const statusShortDesc string = "Show memory index state"

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
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
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print stats as JSON")

	return cmd
}

func (c *statusCommander) run(cmd *cobra.Command) error {
	dbPath, err := bootstrap.ResolveSQLitePath(c.v, c.configDir)
	if err != nil {
		return err
	}

	eng, err := bootstrap.Open(c.v, bootstrap.Options{ConfigDir: c.configDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.WarmTriggers(cmd.Context()); err != nil {
		return err
	}
	stats, err := eng.Stats(cmd.Context())
	if err != nil {
		return err
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	mode := "vector"
	if stats.Degraded {
		mode = cliui.WarnStyle.Render("trigger-only")
	}

	fmt.Fprintln(c.out)
	cliui.KeyValue(c.out, 12, "Index:", dbPath)
	cliui.KeyValue(c.out, 12, "Search:", mode)
	cliui.KeyValue(c.out, 12, "Memories:", strconv.Itoa(stats.Store.Total))
	cliui.KeyValue(c.out, 12, "Embedded:", strconv.Itoa(stats.Store.Completed))
	cliui.KeyValue(c.out, 12, "Pending:", strconv.Itoa(stats.Store.Pending))
	cliui.KeyValue(c.out, 12, "Failed:", strconv.Itoa(stats.Store.Failed))
	cliui.KeyValue(c.out, 12, "Phrases:", strconv.Itoa(stats.Triggers.Phrases))
	if !stats.Store.LastCreatedAt.IsZero() {
		cliui.KeyValue(c.out, 12, "Last saved:", stats.Store.LastCreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(c.out)
	return nil
}
